package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/logging"
	"github.com/georgepadayatti/signflow/pdf/reader"
	"github.com/georgepadayatti/signflow/pdf/writer"
	"github.com/georgepadayatti/signflow/stamp"
)

// OverlayStrategy draws field values over the pages of an existing PDF as
// an incremental update.
type OverlayStrategy struct {
	Deps
}

// Render implements Strategy.
func (s *OverlayStrategy) Render(ctx context.Context, doc *document.Document) (*Artifact, error) {
	log := logging.OrDiscard(s.Logger).WithField("document", doc.ID)
	if doc.FileURL == "" {
		return nil, fmt.Errorf("%w: document has no source PDF", ErrExportFailure)
	}
	if s.Loader == nil {
		return nil, fmt.Errorf("%w: no source loader configured", ErrExportFailure)
	}
	data, err := s.Loader.Load(ctx, doc.FileURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load source PDF: %w", err)
	}
	r, err := reader.NewPdfFileReaderFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read source PDF: %w", err)
	}
	if r.Rebuilt {
		log.Warn("source PDF had a damaged cross-reference table")
	}

	w := writer.NewIncrementalPdfFileWriter(r)
	n := r.NumPages()
	for _, f := range doc.Fields {
		if f.PageNumber > n && f.Filled() {
			log.WithFields(logrus.Fields{"field": f.ID, "page": f.PageNumber, "pages": n}).
				Warn("field is beyond the source page count, skipping")
		}
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.stampPage(w, r, doc, i, log); err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
	}
	return &Artifact{Writer: w, Pages: n, Source: data}, nil
}

func (s *OverlayStrategy) stampPage(w *writer.IncrementalPdfFileWriter, r *reader.PdfFileReader, doc *document.Document, index int, log logrus.FieldLogger) error {
	fields := doc.FieldsOnPage(index + 1)
	if len(fields) == 0 {
		return nil
	}
	page, err := r.Page(index)
	if err != nil {
		return err
	}
	box := page.MediaBox
	m := s.mapper().WithPageSize(box.Width(), box.Height())

	o, err := stamp.NewPageOverlay(w, r, index)
	if err != nil {
		return err
	}
	for _, f := range fields {
		flog := log.WithFields(logrus.Fields{"field": f.ID, "page": f.PageNumber})
		pt, err := m.PercentToPoints(f.Position, f.Size.H)
		if err != nil {
			flog.WithError(err).Warn("field has invalid geometry, skipping")
			continue
		}
		size := m.SizeToPoints(f.Size)
		st, err := stamp.ForField(f, size.W, size.H, s.Style)
		if err != nil {
			flog.WithError(err).Warn("skipping field")
			continue
		}
		if st == nil {
			continue
		}
		if err := o.Place(st, box.LLX+pt.X, box.LLY+pt.Y); err != nil {
			if errors.Is(err, stamp.ErrEmbed) {
				flog.WithError(err).Warn("skipping field")
				continue
			}
			return err
		}
	}
	return o.ApplyTo(w, index)
}
