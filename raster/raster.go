// Package raster captures document pages as images with their field values
// baked in.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/fetch"
	"github.com/georgepadayatti/signflow/geometry"
	"github.com/georgepadayatti/signflow/logging"
	"github.com/georgepadayatti/signflow/richtext"
)

// DefaultScale renders A4 at 1190x1684 pixels.
const DefaultScale = 2.0

// ErrDecode is returned for background images that cannot be decoded.
var ErrDecode = errors.New("failed to decode image")

var ruleColor = color.RGBA{0xCC, 0xCC, 0xCC, 0xFF}

// Decode reads a PNG, JPEG, GIF, BMP, TIFF or WebP image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Renderer draws pages. Calls are serialised because font faces are not
// safe for concurrent drawing.
type Renderer struct {
	Scale      float64
	Typesetter *richtext.Typesetter
	Mapper     geometry.Mapper
	Logger     logrus.FieldLogger

	mu sync.Mutex
}

// NewRenderer creates a renderer with its own typesetter.
func NewRenderer(logger logrus.FieldLogger) (*Renderer, error) {
	ts, err := richtext.NewTypesetter()
	if err != nil {
		return nil, err
	}
	return &Renderer{
		Scale:      DefaultScale,
		Typesetter: ts,
		Mapper:     geometry.A4(),
		Logger:     logging.OrDiscard(logger),
	}, nil
}

// RenderPage draws page (1-based) of doc. background is the decoded image
// of an image-backed document and is ignored otherwise.
func (r *Renderer) RenderPage(ctx context.Context, doc *document.Document, page int, background image.Image) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > doc.Pages {
		return nil, fmt.Errorf("%w: page %d of %d", document.ErrInvalidField, page, doc.Pages)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	w, h := r.Mapper.PixelSize(r.Scale)
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	switch doc.Background {
	case document.BackgroundRichText:
		if err := r.drawMarkup(canvas, doc.PageContent(page)); err != nil {
			return nil, fmt.Errorf("failed to draw page %d: %w", page, err)
		}
	case document.BackgroundImage:
		if page == 1 && background != nil {
			drawBackground(canvas, background)
		}
	}

	for _, f := range doc.FieldsOnPage(page) {
		if !f.Filled() {
			continue
		}
		if err := r.drawField(canvas, f); err != nil {
			r.Logger.WithError(err).WithFields(logrus.Fields{
				"document": doc.ID,
				"field":    f.ID,
				"page":     page,
			}).Warn("skipping field on raster page")
		}
	}
	return canvas, nil
}

// drawBackground scales img to the canvas width, clipped at the bottom.
func drawBackground(dst *image.RGBA, img image.Image) {
	sb := img.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return
	}
	w := dst.Bounds().Dx()
	h := int(math.Round(float64(sb.Dy()) * float64(w) / float64(sb.Dx())))
	draw.CatmullRom.Scale(dst, image.Rect(0, 0, w, h), img, sb, draw.Over, nil)
}

func (r *Renderer) drawMarkup(dst *image.RGBA, markup string) error {
	if markup == "" {
		return nil
	}
	layout, err := r.Typesetter.LayoutMarkup(markup, richtext.PageBox.W)
	if err != nil {
		return err
	}
	s := r.Scale
	for _, line := range layout.Lines {
		y := (richtext.Margin + line.Baseline) * s
		if line.Rule {
			x0 := int((richtext.Margin + line.Indent) * s)
			x1 := int((richtext.Margin + richtext.PageBox.W) * s)
			yy := int(y)
			draw.Draw(dst, image.Rect(x0, yy, x1, yy+int(math.Max(1, s))), image.NewUniform(ruleColor), image.Point{}, draw.Src)
			continue
		}
		if line.Prefix != "" {
			if err := r.text(dst, line.Prefix, richtext.Style{}, line.Size*s, (richtext.Margin+line.PrefixX)*s, y); err != nil {
				return err
			}
		}
		for _, word := range line.Words {
			if err := r.text(dst, word.Text, word.Style, line.Size*s, (richtext.Margin+word.X)*s, y); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Renderer) drawField(dst *image.RGBA, f document.Field) error {
	rect, err := r.Mapper.PixelRect(f.Position, f.Size, r.Scale)
	if err != nil {
		return err
	}
	heightPt := r.Mapper.SizeToPoints(f.Size).H
	size := math.Min(12, 0.6*heightPt) * r.Scale
	baseline := float64(rect.Max.Y) - 0.25*float64(rect.Dy())

	switch {
	case f.Type.IsRaster():
		_, data, err := fetch.DecodeDataURI(f.Value)
		if err != nil {
			return err
		}
		img, err := Decode(data)
		if err != nil {
			return err
		}
		draw.CatmullRom.Scale(dst, rect, img, img.Bounds(), draw.Over, nil)
		return nil
	case f.Type == document.FieldCheckbox:
		if f.Value != document.CheckedValue {
			return nil
		}
		width, err := r.Typesetter.Measure("X", richtext.Style{}, size)
		if err != nil {
			return err
		}
		x := float64(rect.Min.X) + (float64(rect.Dx())-width)/2
		return r.text(dst, "X", richtext.Style{}, size, x, baseline)
	}
	return r.text(dst, f.Value, richtext.Style{}, size, float64(rect.Min.X)+2*r.Scale, baseline)
}

// text draws s with its baseline at (x, y) in pixels.
func (r *Renderer) text(dst *image.RGBA, s string, st richtext.Style, sizePx, x, y float64) error {
	face, err := r.Typesetter.Face(st, sizePx)
	if err != nil {
		return err
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)},
	}
	d.DrawString(s)
	return nil
}
