package richtext

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/georgepadayatti/signflow/geometry"
)

// Margin is the fixed page margin, in points, around rich-text content.
const Margin = 56.0

// PageBox is the content box of a rich-text page in points.
var PageBox = geometry.Size{W: geometry.A4Width - 2*Margin, H: geometry.A4Height - 2*Margin}

// PlacedWord is a word positioned on a laid-out line. X is relative to the
// left edge of the content box.
type PlacedWord struct {
	X     float64
	Text  string
	Style Style
}

// Line is one laid-out line. Baseline is measured downward from the top of
// the content box. A Rule line is a horizontal separator.
type Line struct {
	Baseline float64
	Size     float64
	Words    []PlacedWord
	Rule     bool
	Indent   float64
	Prefix   string
	PrefixX  float64
}

// Layout is the result of typesetting markup into a column.
type Layout struct {
	Lines    []Line
	Height   float64
	Trailing float64
}

type faceKey struct {
	style Style
	size  float64
}

// Typesetter measures and wraps text with the Go font family. It is safe for
// concurrent use.
type Typesetter struct {
	mu    sync.Mutex
	fonts map[Style]*opentype.Font
	faces map[faceKey]font.Face
}

// NewTypesetter parses the embedded Go fonts.
func NewTypesetter() (*Typesetter, error) {
	sources := map[Style][]byte{
		{}:                         goregular.TTF,
		{Bold: true}:               gobold.TTF,
		{Italic: true}:             goitalic.TTF,
		{Bold: true, Italic: true}: gobolditalic.TTF,
		{Mono: true}:               gomono.TTF,
	}
	ts := &Typesetter{
		fonts: make(map[Style]*opentype.Font, len(sources)),
		faces: make(map[faceKey]font.Face),
	}
	for st, ttf := range sources {
		f, err := opentype.Parse(ttf)
		if err != nil {
			return nil, fmt.Errorf("failed to parse font: %w", err)
		}
		ts.fonts[st] = f
	}
	return ts, nil
}

var (
	defaultOnce sync.Once
	defaultTS   *Typesetter
	defaultErr  error
)

// Default returns a shared typesetter.
func Default() (*Typesetter, error) {
	defaultOnce.Do(func() {
		defaultTS, defaultErr = NewTypesetter()
	})
	return defaultTS, defaultErr
}

// Face returns a face for the style at the given size in points (or pixels
// when the caller renders at a scale).
func (ts *Typesetter) Face(st Style, size float64) (font.Face, error) {
	if st.Mono {
		st = Style{Mono: true}
	}
	key := faceKey{style: st, size: size}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if f, ok := ts.faces[key]; ok {
		return f, nil
	}
	face, err := opentype.NewFace(ts.fonts[st], &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create face: %w", err)
	}
	ts.faces[key] = face
	return face, nil
}

// Measure returns the advance width of s in points.
func (ts *Typesetter) Measure(s string, st Style, size float64) (float64, error) {
	face, err := ts.Face(st, size)
	if err != nil {
		return 0, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return fixedToFloat(font.MeasureString(face, s)), nil
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// LayoutMarkup typesets page markup into a column of the given width.
func (ts *Typesetter) LayoutMarkup(markup string, width float64) (Layout, error) {
	var out Layout
	for _, blk := range Blocks(markup) {
		l, err := ts.LayoutBlock(blk, width)
		if err != nil {
			return Layout{}, err
		}
		for _, line := range l.Lines {
			line.Baseline += out.Height
			out.Lines = append(out.Lines, line)
		}
		out.Height += l.Height
		out.Trailing = l.Trailing
	}
	return out, nil
}

// LayoutBlock typesets a single block. The returned height includes the
// spacing after the block's last paragraph, which is also reported as
// Trailing.
func (ts *Typesetter) LayoutBlock(blk Block, width float64) (Layout, error) {
	var out Layout
	for _, p := range blk.Paras() {
		lineH := p.Size * LineHeight
		if p.Rule {
			out.Lines = append(out.Lines, Line{Baseline: out.Height + lineH/2, Size: p.Size, Rule: true, Indent: p.Indent})
			out.Height += lineH + p.SpaceAfter
			out.Trailing = p.SpaceAfter
			continue
		}

		lines, err := ts.wrap(p, width)
		if err != nil {
			return Layout{}, err
		}
		if len(lines) == 0 {
			lines = [][]PlacedWord{nil}
		}
		for i, words := range lines {
			out.Height += lineH
			line := Line{
				Baseline: out.Height - (lineH-p.Size)/2 - p.Size*0.2,
				Size:     p.Size,
				Words:    words,
				Indent:   p.Indent,
			}
			if i == 0 && p.Prefix != "" {
				w, err := ts.Measure(p.Prefix+" ", Style{}, p.Size)
				if err != nil {
					return Layout{}, err
				}
				line.Prefix = p.Prefix
				line.PrefixX = max(0, p.Indent-w)
			}
			out.Lines = append(out.Lines, line)
		}
		out.Height += p.SpaceAfter
		out.Trailing = p.SpaceAfter
	}
	return out, nil
}

func (ts *Typesetter) wrap(p Para, width float64) ([][]PlacedWord, error) {
	avail := width - p.Indent
	var (
		lines [][]PlacedWord
		cur   []PlacedWord
		x     float64
	)

	for _, word := range p.Words {
		w, err := ts.Measure(word.Text, word.Style, p.Size)
		if err != nil {
			return nil, err
		}

		if len(cur) > 0 {
			space, err := ts.Measure(" ", word.Style, p.Size)
			if err != nil {
				return nil, err
			}
			if p.NoWrap || x+space+w <= avail {
				cur = append(cur, PlacedWord{X: p.Indent + x + space, Text: word.Text, Style: word.Style})
				x += space + w
				continue
			}
			lines = append(lines, cur)
			cur, x = nil, 0
		}

		if p.NoWrap || w <= avail {
			cur = append(cur, PlacedWord{X: p.Indent, Text: word.Text, Style: word.Style})
			x = w
			continue
		}

		// Words wider than the column break at rune boundaries.
		rest := word.Text
		for {
			n, pw, err := ts.fit(rest, word.Style, p.Size, avail)
			if err != nil {
				return nil, err
			}
			cur = append(cur, PlacedWord{X: p.Indent, Text: rest[:n], Style: word.Style})
			rest = rest[n:]
			x = pw
			if rest == "" {
				break
			}
			lines = append(lines, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}
	return lines, nil
}

// fit returns the byte length of the longest prefix of s (at least one rune)
// that fits within width, and its measured width.
func (ts *Typesetter) fit(s string, st Style, size, width float64) (int, float64, error) {
	n := 0
	w := 0.0
	for n < len(s) {
		_, sz := utf8.DecodeRuneInString(s[n:])
		cw, err := ts.Measure(s[:n+sz], st, size)
		if err != nil {
			return 0, 0, err
		}
		if cw > width && n > 0 {
			break
		}
		n += sz
		w = cw
	}
	return n, w, nil
}
