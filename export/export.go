// Package export turns a document into a single PDF with a certificate page
// appended last.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/certificate"
	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/fetch"
	"github.com/georgepadayatti/signflow/geometry"
	"github.com/georgepadayatti/signflow/logging"
	"github.com/georgepadayatti/signflow/pdf/writer"
	"github.com/georgepadayatti/signflow/raster"
	"github.com/georgepadayatti/signflow/stamp"
)

// ErrExportFailure wraps every error that aborts an export. No partial
// output is returned with it.
var ErrExportFailure = errors.New("export failed")

// Artifact is a rendered document that can still take pages.
type Artifact struct {
	Writer writer.PageAppender
	// Pages is the number of content pages.
	Pages int
	// Source holds the loaded background file, if the document has one.
	Source []byte
}

// Strategy renders the content pages of one kind of document.
type Strategy interface {
	Render(ctx context.Context, doc *document.Document) (*Artifact, error)
}

// Deps are the collaborators shared by the strategies.
type Deps struct {
	Loader   fetch.SourceLoader
	Renderer *raster.Renderer
	Style    *stamp.StampStyle
	Mapper   geometry.Mapper
	Logger   logrus.FieldLogger
}

func (d Deps) mapper() geometry.Mapper {
	if d.Mapper.PageWidthPt == 0 {
		return geometry.A4()
	}
	return d.Mapper
}

// ForDocument picks the strategy for the document's background kind.
func ForDocument(doc *document.Document, deps Deps) (Strategy, error) {
	switch doc.Background {
	case document.BackgroundExistingPdf:
		return &OverlayStrategy{Deps: deps}, nil
	case document.BackgroundRichText, document.BackgroundImage:
		return &RasterStrategy{Deps: deps}, nil
	}
	return nil, fmt.Errorf("%w: document %s has no background", ErrExportFailure, doc.ID)
}

// Exporter runs a strategy and appends the certificate.
type Exporter struct {
	Deps      Deps
	Directory audit.Directory
}

// NewExporter creates an exporter.
func NewExporter(deps Deps, dir audit.Directory) *Exporter {
	deps.Logger = logging.OrDiscard(deps.Logger)
	return &Exporter{Deps: deps, Directory: dir}
}

// Export renders doc with its audit trail into one PDF buffer.
func (e *Exporter) Export(ctx context.Context, doc *document.Document, trail []audit.Event) ([]byte, error) {
	strategy, err := ForDocument(doc, e.Deps)
	if err != nil {
		return nil, err
	}
	art, err := strategy.Render(ctx, doc)
	if err != nil {
		return nil, failure(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, failure(err)
	}

	data := certificate.Build(doc, trail, e.Directory, certificate.DocumentDigest(doc, art.Source))
	if err := certificate.Append(art.Writer, data, e.Deps.Logger); err != nil {
		return nil, failure(err)
	}

	var buf bytes.Buffer
	if err := art.Writer.Write(&buf); err != nil {
		return nil, failure(err)
	}
	logging.OrDiscard(e.Deps.Logger).WithFields(logrus.Fields{
		"document": doc.ID,
		"pages":    art.Pages + 1,
		"bytes":    buf.Len(),
	}).Info("exported document")
	return buf.Bytes(), nil
}

func failure(err error) error {
	if errors.Is(err, ErrExportFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrExportFailure, err)
}

// FileName returns the download name for a document title.
func FileName(title string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if clean == "" {
		clean = "document"
	}
	return clean + "_preview.pdf"
}
