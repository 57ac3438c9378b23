// Package writer produces new PDF files and incremental updates of
// existing ones.
package writer

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/georgepadayatti/signflow/pdf/generic"
)

// PageAppender is implemented by both writers.
type PageAppender interface {
	AddObject(obj generic.Object) generic.Reference
	AppendPage(box generic.Rectangle, content []byte, resources *generic.Dictionary) (generic.Reference, error)
	Write(out io.Writer) error
}

// PdfFileWriter assembles a new document.
type PdfFileWriter struct {
	Version  string
	Producer string
	// Now stamps the creation date; tests pin it for stable output.
	Now func() time.Time

	objects  []generic.Object
	root     *generic.Dictionary
	rootRef  generic.Reference
	pages    *generic.Dictionary
	pagesRef generic.Reference
}

// NewPdfFileWriter creates an empty document with a catalog and page tree.
func NewPdfFileWriter() *PdfFileWriter {
	w := &PdfFileWriter{Version: "1.7", Producer: "signflow", Now: time.Now}
	w.pages = generic.Dict("Type", generic.Name("Pages"), "Kids", generic.Array{}, "Count", generic.Integer(0))
	w.pagesRef = w.AddObject(w.pages)
	w.root = generic.Dict("Type", generic.Name("Catalog"), "Pages", w.pagesRef)
	w.rootRef = w.AddObject(w.root)
	return w
}

// AddObject adds an object and returns its reference.
func (w *PdfFileWriter) AddObject(obj generic.Object) generic.Reference {
	w.objects = append(w.objects, obj)
	return generic.Ref(len(w.objects))
}

// AppendPage adds a page with one Flate-compressed content stream.
func (w *PdfFileWriter) AppendPage(box generic.Rectangle, content []byte, resources *generic.Dictionary) (generic.Reference, error) {
	page := newPage(w.pagesRef, box, resources)
	if content != nil {
		stream, err := generic.NewFlateStream(nil, content)
		if err != nil {
			return generic.Reference{}, err
		}
		page.Set("Contents", w.AddObject(stream))
	}
	ref := w.AddObject(page)
	w.pages.Set("Kids", append(w.pages.Array("Kids"), ref))
	w.pages.Set("Count", generic.Integer(len(w.pages.Array("Kids"))))
	return ref, nil
}

// PageCount returns the number of pages added so far.
func (w *PdfFileWriter) PageCount() int {
	return len(w.pages.Array("Kids"))
}

func newPage(parent generic.Reference, box generic.Rectangle, resources *generic.Dictionary) *generic.Dictionary {
	if resources == nil {
		resources = generic.NewDictionary()
	}
	return generic.Dict(
		"Type", generic.Name("Page"),
		"Parent", parent,
		"MediaBox", box.Array(),
		"Resources", resources,
	)
}

// Write serialises the document with a classic xref table.
func (w *PdfFileWriter) Write(out io.Writer) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", w.Version)
	buf.Write([]byte{'%', 0xE2, 0xE3, 0xCF, 0xD3, '\n'})

	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	info := generic.Dict(
		"Producer", generic.NewTextString(w.Producer),
		"CreationDate", generic.NewString(FormatDate(now())),
	)
	objects := append(append([]generic.Object(nil), w.objects...), info)
	infoRef := generic.Ref(len(objects))

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		ind := &generic.Indirect{Reference: generic.Ref(i + 1), Object: obj}
		if err := ind.Write(&buf); err != nil {
			return fmt.Errorf("failed to write object %d: %w", i+1, err)
		}
	}

	id := blake2b.Sum256(buf.Bytes())
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}

	trailer := generic.Dict(
		"Size", generic.Integer(len(objects)+1),
		"Root", w.rootRef,
		"Info", infoRef,
		"ID", generic.Array{
			&generic.String{Value: id[:16], Hex: true},
			&generic.String{Value: id[:16], Hex: true},
		},
	)
	buf.WriteString("trailer\n")
	if err := trailer.Write(&buf); err != nil {
		return err
	}
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

// FormatDate formats a time as a PDF date string.
func FormatDate(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("D:%s%s%02d'%02d'", t.Format("20060102150405"), sign, offset/3600, (offset%3600)/60)
}
