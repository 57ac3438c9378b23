package richtext

import (
	"strings"

	"github.com/georgepadayatti/signflow/geometry"
)

// Measurer decides where page markup overflows the content box. It keeps
// whole blocks and cuts at the first block that no longer fits.
type Measurer struct {
	Typesetter *Typesetter
	Box        geometry.Size
}

// NewMeasurer returns a measurer for the standard page content box.
func NewMeasurer(ts *Typesetter) *Measurer {
	return &Measurer{Typesetter: ts, Box: PageBox}
}

// Split returns the markup that fits on the page and the overflow that does
// not. Both are byte-exact slices of content. A first block taller than the
// box stays on the page so a caller moving overflow forward always makes
// progress.
func (m *Measurer) Split(content string) (string, string, error) {
	blocks := Blocks(content)
	used := 0.0
	for i, blk := range blocks {
		l, err := m.Typesetter.LayoutBlock(blk, m.Box.W)
		if err != nil {
			return "", "", err
		}
		if i > 0 && used+l.Height-l.Trailing > m.Box.H {
			return strings.TrimRight(content[:blk.Start], " \t\r\n"), content[blk.Start:], nil
		}
		used += l.Height
	}
	return content, "", nil
}

// Height returns the laid-out height of markup in the measurer's column.
func (m *Measurer) Height(content string) (float64, error) {
	l, err := m.Typesetter.LayoutMarkup(content, m.Box.W)
	if err != nil {
		return 0, err
	}
	return l.Height - l.Trailing, nil
}
