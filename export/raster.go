package export

import (
	"context"
	"fmt"
	"image"

	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/geometry"
	"github.com/georgepadayatti/signflow/pdf/content"
	"github.com/georgepadayatti/signflow/pdf/generic"
	"github.com/georgepadayatti/signflow/pdf/images"
	"github.com/georgepadayatti/signflow/pdf/writer"
	"github.com/georgepadayatti/signflow/raster"
)

// RasterStrategy captures every page as an image and places each one on a
// fresh A4 page. Fields are baked into the capture.
type RasterStrategy struct {
	Deps
}

// Render implements Strategy.
func (s *RasterStrategy) Render(ctx context.Context, doc *document.Document) (*Artifact, error) {
	renderer := s.Renderer
	if renderer == nil {
		var err error
		if renderer, err = raster.NewRenderer(s.Logger); err != nil {
			return nil, err
		}
	}

	var (
		background image.Image
		source     []byte
	)
	if doc.Background == document.BackgroundImage {
		var err error
		if background, source, err = s.loadBackground(ctx, doc); err != nil {
			return nil, err
		}
	}

	w := writer.NewPdfFileWriter()
	box := generic.Rectangle{URX: geometry.A4Width, URY: geometry.A4Height}
	for page := 1; page <= doc.Pages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := renderer.RenderPage(ctx, doc, page, background)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", page, err)
		}
		x, err := images.EmbedImage(w, img)
		if err != nil {
			return nil, fmt.Errorf("failed to embed page %d: %w", page, err)
		}
		body := content.NewBuilder().
			SaveState().
			Transform(geometry.A4Width, 0, 0, geometry.A4Height, 0, 0).
			DrawXObject("Page").
			RestoreState().
			Bytes()
		res := generic.Dict("XObject", generic.Dict("Page", x.Ref))
		if _, err := w.AppendPage(box, body, res); err != nil {
			return nil, err
		}
	}
	return &Artifact{Writer: w, Pages: doc.Pages, Source: source}, nil
}

func (s *RasterStrategy) loadBackground(ctx context.Context, doc *document.Document) (image.Image, []byte, error) {
	if doc.FileURL == "" {
		return nil, nil, fmt.Errorf("%w: image background has no source", ErrExportFailure)
	}
	if s.Loader == nil {
		return nil, nil, fmt.Errorf("%w: no source loader configured", ErrExportFailure)
	}
	data, err := s.Loader.Load(ctx, doc.FileURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load background image: %w", err)
	}
	img, err := raster.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return img, data, nil
}
