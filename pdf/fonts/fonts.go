// Package fonts provides the standard Type 1 fonts used for stamped text.
// Text is encoded with WinAnsiEncoding; characters outside it become '?'.
package fonts

import (
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/georgepadayatti/signflow/pdf/generic"
)

// StandardFont is one of the PDF base fonts that need no embedding.
type StandardFont string

const (
	Helvetica     StandardFont = "Helvetica"
	HelveticaBold StandardFont = "Helvetica-Bold"
)

// Metrics holds the font metrics needed for single-line layout, in
// thousandths of an em.
type Metrics struct {
	Ascender     float64
	Descender    float64
	CapHeight    float64
	DefaultWidth float64
	// ASCII widths for codes 32..126.
	ascii [95]float64
}

// Font is a standard font with WinAnsi encoding.
type Font struct {
	name    StandardFont
	metrics *Metrics
}

// New returns the named standard font. Unknown names fall back to Helvetica.
func New(name StandardFont) *Font {
	m := &Metrics{Ascender: 718, Descender: -207, CapHeight: 718, DefaultWidth: 556}
	switch name {
	case HelveticaBold:
		m.ascii = helveticaBold
	default:
		name = Helvetica
		m.ascii = helvetica
	}
	return &Font{name: name, metrics: m}
}

// Name returns the base font name.
func (f *Font) Name() StandardFont {
	return f.name
}

// Metrics returns the font metrics.
func (f *Font) Metrics() *Metrics {
	return f.metrics
}

// Dict returns the font resource dictionary.
func (f *Font) Dict() *generic.Dictionary {
	return generic.Dict(
		"Type", generic.Name("Font"),
		"Subtype", generic.Name("Type1"),
		"BaseFont", generic.Name(string(f.name)),
		"Encoding", generic.Name("WinAnsiEncoding"),
	)
}

// Encode converts s to WinAnsi bytes.
func (f *Font) Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// width returns the advance of r in thousandths of an em.
func (f *Font) width(r rune) float64 {
	if r >= 32 && r <= 126 {
		return f.metrics.ascii[r-32]
	}
	if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
		return f.metrics.ascii['?'-32]
	}
	return f.metrics.DefaultWidth
}

// StringWidth measures s at size in points.
func (f *Font) StringWidth(s string, size float64) float64 {
	var w float64
	for _, r := range s {
		w += f.width(r)
	}
	return w * size / 1000
}

// LineHeight returns the distance between baselines at size.
func (f *Font) LineHeight(size float64) float64 {
	return (f.metrics.Ascender - f.metrics.Descender) * size / 1000 * 1.15
}

// Truncate shortens s with a trailing "..." so it fits maxWidth.
func (f *Font) Truncate(s string, size, maxWidth float64) string {
	if f.StringWidth(s, size) <= maxWidth {
		return s
	}
	runes := []rune(s)
	for n := len(runes) - 1; n > 0; n-- {
		cut := strings.TrimRight(string(runes[:n]), " ") + "..."
		if f.StringWidth(cut, size) <= maxWidth {
			return cut
		}
	}
	return ""
}

// Wrap breaks text into lines no wider than maxWidth. A single word wider
// than the line is kept whole.
func (f *Font) Wrap(text string, size, maxWidth float64) []string {
	var lines []string
	words := strings.Fields(text)
	if len(words) == 0 {
		return lines
	}
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if f.StringWidth(candidate, size) <= maxWidth {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}

var helvetica = [95]float64{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space../
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, // 0..9
	278, 278, 584, 584, 584, 556, 1015, // :..@
	667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, // A..M
	722, 778, 667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, // N..Z
	278, 278, 278, 469, 556, 333, // [..`
	556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, // a..m
	556, 556, 556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, // n..z
	334, 260, 334, 584, // {..~
}

var helveticaBold = [95]float64{
	278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556,
	333, 333, 584, 584, 584, 611, 975,
	722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833,
	722, 778, 667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611,
	333, 278, 333, 584, 556, 333,
	556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889,
	611, 611, 611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500,
	389, 280, 389, 584,
}
