// Package stamp draws field values as form XObjects placed on PDF pages.
package stamp

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/fetch"
	"github.com/georgepadayatti/signflow/pdf/content"
	"github.com/georgepadayatti/signflow/pdf/fonts"
	"github.com/georgepadayatti/signflow/pdf/generic"
	"github.com/georgepadayatti/signflow/pdf/images"
)

// ErrEmbed is returned when a field's image value cannot be embedded.
var ErrEmbed = errors.New("failed to embed field image")

// Stamper is anything that can be stamped onto a PDF page.
type Stamper interface {
	// CreateAppearanceStream builds the form XObject. Objects it depends on
	// are added through w.
	CreateAppearanceStream(w images.Adder) (*generic.Stream, error)
	// GetDimensions returns the width and height of the stamp in points.
	GetDimensions() (width, height float64)
}

// StampStyle configures text appearances.
type StampStyle struct {
	Font *fonts.Font
	// MaxFontSize caps the size derived from the box height.
	MaxFontSize float64
	// FontRatio is the font size as a fraction of the box height.
	FontRatio float64
	// Padding is the left inset in points.
	Padding float64
	// Baseline is the baseline height as a fraction of the box height.
	Baseline  float64
	TextColor color.RGBA
}

// DefaultStampStyle returns Helvetica, black, at most 12pt.
func DefaultStampStyle() *StampStyle {
	return &StampStyle{
		Font:        fonts.New(fonts.Helvetica),
		MaxFontSize: 12,
		FontRatio:   0.6,
		Padding:     2,
		Baseline:    0.25,
		TextColor:   color.RGBA{0, 0, 0, 255},
	}
}

// FontSize returns the size used for a box of the given height.
func (s *StampStyle) FontSize(height float64) float64 {
	return math.Min(s.MaxFontSize, s.FontRatio*height)
}

func (s *StampStyle) fill(b *content.Builder) {
	b.SetFillRGB(float64(s.TextColor.R)/255, float64(s.TextColor.G)/255, float64(s.TextColor.B)/255)
}

// formXObject wraps drawing operators in a form XObject of the given size.
func formXObject(width, height float64, data []byte, resources *generic.Dictionary) *generic.Stream {
	dict := generic.Dict(
		"Type", generic.Name("XObject"),
		"Subtype", generic.Name("Form"),
		"BBox", generic.Rectangle{URX: width, URY: height}.Array(),
	)
	if resources == nil {
		resources = generic.NewDictionary()
	}
	dict.Set("Resources", resources)
	return generic.NewStream(dict, data)
}

func fontResources(f *fonts.Font) *generic.Dictionary {
	return generic.Dict("Font", generic.Dict("F1", f.Dict()))
}

// TextStamp draws one line of text near the bottom of its box.
type TextStamp struct {
	Style  *StampStyle
	Text   string
	Width  float64
	Height float64
}

// NewTextStamp creates a text stamp for a box of the given size.
func NewTextStamp(text string, width, height float64, style *StampStyle) *TextStamp {
	if style == nil {
		style = DefaultStampStyle()
	}
	return &TextStamp{Style: style, Text: text, Width: width, Height: height}
}

// Render returns the content stream of the appearance. Text wider than the
// box is cut with an ellipsis.
func (s *TextStamp) Render() []byte {
	size := s.Style.FontSize(s.Height)
	text := s.Style.Font.Truncate(s.Text, size, s.Width-s.Style.Padding)
	b := content.NewBuilder().SaveState()
	s.Style.fill(b)
	b.BeginText().
		SetFont("F1", size).
		TextPosition(s.Style.Padding, s.Style.Baseline*s.Height).
		ShowText(s.Style.Font.Encode(text)).
		EndText().
		RestoreState()
	return b.Bytes()
}

// CreateAppearanceStream implements Stamper.
func (s *TextStamp) CreateAppearanceStream(images.Adder) (*generic.Stream, error) {
	return formXObject(s.Width, s.Height, s.Render(), fontResources(s.Style.Font)), nil
}

// GetDimensions implements Stamper.
func (s *TextStamp) GetDimensions() (width, height float64) {
	return s.Width, s.Height
}

// CheckStamp draws an "X" centred in its box when checked.
type CheckStamp struct {
	Style   *StampStyle
	Checked bool
	Width   float64
	Height  float64
}

// NewCheckStamp creates a checkbox stamp from a field value.
func NewCheckStamp(value string, width, height float64, style *StampStyle) *CheckStamp {
	if style == nil {
		style = DefaultStampStyle()
	}
	return &CheckStamp{Style: style, Checked: value == document.CheckedValue, Width: width, Height: height}
}

// Render returns the content stream of the appearance.
func (s *CheckStamp) Render() []byte {
	if !s.Checked {
		return nil
	}
	size := s.Style.FontSize(s.Height)
	x := (s.Width - s.Style.Font.StringWidth("X", size)) / 2
	b := content.NewBuilder().SaveState()
	s.Style.fill(b)
	b.BeginText().
		SetFont("F1", size).
		TextPosition(x, s.Style.Baseline*s.Height).
		ShowText([]byte("X")).
		EndText().
		RestoreState()
	return b.Bytes()
}

// CreateAppearanceStream implements Stamper.
func (s *CheckStamp) CreateAppearanceStream(images.Adder) (*generic.Stream, error) {
	return formXObject(s.Width, s.Height, s.Render(), fontResources(s.Style.Font)), nil
}

// GetDimensions implements Stamper.
func (s *CheckStamp) GetDimensions() (width, height float64) {
	return s.Width, s.Height
}

// ForField picks the stamp for a field value drawn in a box of the given
// size in points. It returns nil when there is nothing to draw.
func ForField(f document.Field, width, height float64, style *StampStyle) (Stamper, error) {
	if !f.Filled() {
		return nil, nil
	}
	switch {
	case f.Type.IsRaster():
		_, data, err := fetch.DecodeDataURI(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrEmbed, f.ID, err)
		}
		return NewImageStamp(data, width, height), nil
	case f.Type == document.FieldCheckbox:
		if f.Value != document.CheckedValue {
			return nil, nil
		}
		return NewCheckStamp(f.Value, width, height, style), nil
	}
	return NewTextStamp(f.Value, width, height, style), nil
}
