package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/geometry"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	return r
}

func solid(c color.Color, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngURI(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func countDark(img *image.RGBA, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.R < 128 && c.G < 128 && c.B < 128 {
				n++
			}
		}
	}
	return n
}

func richDoc(t *testing.T) *document.Document {
	t.Helper()
	doc := document.New("Raster")
	if err := doc.SetBackground(document.BackgroundRichText, ""); err != nil {
		t.Fatalf("SetBackground failed: %v", err)
	}
	return doc
}

func TestRenderRichTextPage(t *testing.T) {
	doc := richDoc(t)
	if err := doc.SetPageContent(1, "<h1>Agreement</h1><p>Hello world</p>"); err != nil {
		t.Fatalf("SetPageContent failed: %v", err)
	}
	img, err := newRenderer(t).RenderPage(context.Background(), doc, 1, nil)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1190 || b.Dy() != 1684 {
		t.Fatalf("Expected a 1190x1684 canvas, got %v", b)
	}
	if countDark(img, image.Rect(100, 100, 700, 260)) == 0 {
		t.Error("Expected text near the top margin")
	}
	if countDark(img, image.Rect(0, 1400, 1190, 1684)) != 0 {
		t.Error("Expected the bottom of the page to stay blank")
	}
}

func TestRenderBakesFields(t *testing.T) {
	doc := richDoc(t)
	blue := color.NRGBA{0, 0, 255, 255}
	doc.Fields = []document.Field{
		{ID: "sig", Type: document.FieldSignature, Position: geometry.Percent{X: 10, Y: 10}, Size: geometry.Size{W: 200, H: 40}, PageNumber: 1, Value: pngURI(t, solid(blue, 4, 2)), Assignee: document.AssigneeContact},
		{ID: "box", Type: document.FieldCheckbox, Position: geometry.Percent{X: 50, Y: 50}, Size: geometry.Size{W: 30, H: 30}, PageNumber: 1, Value: document.CheckedValue, Assignee: document.AssigneeContact},
		{ID: "bad", Type: document.FieldImage, Position: geometry.Percent{X: 10, Y: 70}, Size: geometry.Size{W: 100, H: 40}, PageNumber: 1, Value: "data:image/png;base64,AAAA", Assignee: document.AssigneeContact},
	}

	img, err := newRenderer(t).RenderPage(context.Background(), doc, 1, nil)
	if err != nil {
		t.Fatalf("Expected undecodable fields to be skipped, got %v", err)
	}
	// (10%, 10%) of 1190x1684 is (119, 168.4); 200x40 points at scale 2.
	c := img.RGBAAt(319, 208)
	if c.B < 200 || c.R > 50 {
		t.Errorf("Expected the signature raster to be blue, got %v", c)
	}
	if countDark(img, image.Rect(595, 842, 655, 902)) == 0 {
		t.Error("Expected the checkbox X to be drawn")
	}
}

func TestRenderImageBackground(t *testing.T) {
	doc := document.New("Scan")
	if err := doc.SetBackground(document.BackgroundImage, "scan.png"); err != nil {
		t.Fatalf("SetBackground failed: %v", err)
	}
	doc.AddPage()
	red := solid(color.NRGBA{255, 0, 0, 255}, 100, 50)

	r := newRenderer(t)
	img, err := r.RenderPage(context.Background(), doc, 1, red)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if c := img.RGBAAt(600, 100); c.R != 255 || c.G > 10 {
		t.Errorf("Expected the scaled background, got %v", c)
	}
	// 100x50 scaled to 1190 wide is 595 tall.
	if c := img.RGBAAt(600, 900); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Expected white below the image, got %v", c)
	}

	second, err := r.RenderPage(context.Background(), doc, 2, red)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if c := second.RGBAAt(600, 100); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Expected the image only on page 1, got %v", c)
	}
}

func TestRenderErrors(t *testing.T) {
	doc := richDoc(t)
	r := newRenderer(t)
	if _, err := r.RenderPage(context.Background(), doc, 2, nil); !errors.Is(err, document.ErrInvalidField) {
		t.Errorf("Expected ErrInvalidField for a missing page, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderPage(ctx, doc, 1, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if _, err := Decode([]byte("nope")); !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}
