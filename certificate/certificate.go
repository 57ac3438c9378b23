// Package certificate builds the provenance page appended to every export.
package certificate

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/fetch"
)

// Signer is one signer block of the certificate.
type Signer struct {
	audit.SignerRecord
	// Signature is the encoded raster of the signer's first signature
	// field, if any.
	Signature []byte
}

// Data is everything the certificate page shows.
type Data struct {
	Reference     string
	DocumentTitle string
	DocumentID    string
	SentAt        *time.Time
	CompletedAt   *time.Time
	Digest        string
	Signers       []Signer
}

// Build folds the audit trail of doc into certificate data.
func Build(doc *document.Document, events []audit.Event, dir audit.Directory, digest string) Data {
	tl := audit.Milestones(events)
	data := Data{
		DocumentTitle: doc.Title,
		DocumentID:    doc.ID,
		SentAt:        tl.SentAt,
		CompletedAt:   tl.CompletedAt,
		Digest:        digest,
	}
	var sent time.Time
	if tl.SentAt != nil {
		sent = *tl.SentAt
	}
	data.Reference = Reference(doc.ID, sent)

	for _, rec := range audit.Signers(events, dir) {
		data.Signers = append(data.Signers, Signer{
			SignerRecord: rec,
			Signature:    signatureOf(doc, rec.Assignee),
		})
	}
	return data
}

func signatureOf(doc *document.Document, a document.Assignee) []byte {
	for _, f := range doc.FieldsFor(a) {
		if f.Type != document.FieldSignature || !f.Filled() {
			continue
		}
		if _, data, err := fetch.DecodeDataURI(f.Value); err == nil {
			return data
		}
	}
	return nil
}

// Reference derives the human-readable certificate number.
func Reference(docID string, sentAt time.Time) string {
	stamp := ""
	if !sentAt.IsZero() {
		stamp = sentAt.UTC().Format(time.RFC3339Nano)
	}
	sum := blake2b.Sum256([]byte(docID + "|" + stamp))
	return "SF-" + strings.ToUpper(hex.EncodeToString(sum[:])[:10])
}

// Digest hashes the exported content for tamper evidence. Parts are length
// delimited so moving bytes between parts changes the result.
func Digest(parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * (7 - i)))
		}
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentDigest hashes the source file the pages were drawn from, then the
// rich-text content and field values of doc in page and field order. source
// is nil for composed documents.
func DocumentDigest(doc *document.Document, source []byte) string {
	parts := [][]byte{source}
	for _, page := range doc.ContentPages() {
		parts = append(parts, []byte(doc.PageContent(page)))
	}
	for _, f := range doc.Fields {
		parts = append(parts, []byte(f.ID), []byte(f.Value))
	}
	return Digest(parts...)
}
