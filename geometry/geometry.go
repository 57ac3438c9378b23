// Package geometry converts between the three coordinate spaces a document
// passes through: percentages of the rendered page, raster pixels, and PDF
// points with a bottom-left origin.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInvalidGeometry is returned for malformed coordinate inputs.
var ErrInvalidGeometry = errors.New("invalid geometry")

// ISO A4 in points. Every exported page uses this size.
const (
	A4Width  = 595.0
	A4Height = 842.0
)

// Point is a location in some coordinate space (pixels or points).
type Point struct {
	X, Y float64
}

// Size is a width and height pair.
type Size struct {
	W, H float64
}

// Percent is a position expressed as percentages (0-100) of the page's
// rendered width and height, measured from the top-left corner.
type Percent struct {
	X, Y float64
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (p Percent) valid() bool {
	return finite(p.X, p.Y) && p.X >= 0 && p.X <= 100 && p.Y >= 0 && p.Y <= 100
}

// ScreenToPercent converts a pointer location on screen into page percentages.
// The page origin is subtracted first, then the optional drag offset (the
// distance between the pointer and the field's top-left corner when the drag
// started), and the remainder is normalised by the rendered page size.
func ScreenToPercent(pointer, pageOrigin Point, rendered Size, dragOffset *Point) (Percent, error) {
	if !finite(pointer.X, pointer.Y, pageOrigin.X, pageOrigin.Y, rendered.W, rendered.H) {
		return Percent{}, fmt.Errorf("%w: non-finite input", ErrInvalidGeometry)
	}
	if rendered.W <= 0 || rendered.H <= 0 {
		return Percent{}, fmt.Errorf("%w: rendered page size %gx%g", ErrInvalidGeometry, rendered.W, rendered.H)
	}

	x := pointer.X - pageOrigin.X
	y := pointer.Y - pageOrigin.Y
	if dragOffset != nil {
		if !finite(dragOffset.X, dragOffset.Y) {
			return Percent{}, fmt.Errorf("%w: non-finite drag offset", ErrInvalidGeometry)
		}
		x -= dragOffset.X
		y -= dragOffset.Y
	}

	return Percent{X: x / rendered.W * 100, Y: y / rendered.H * 100}, nil
}

// Mapper maps page percentages onto a page of fixed point dimensions.
// PxToPt converts field sizes from screen pixels to points; it is 1 when the
// page is rendered on screen at its point width.
type Mapper struct {
	PageWidthPt  float64
	PageHeightPt float64
	PxToPt       float64
}

// A4 returns the mapper for the system-wide page size with a 1:1 pixel scale.
func A4() Mapper {
	return Mapper{PageWidthPt: A4Width, PageHeightPt: A4Height, PxToPt: 1}
}

// ForRenderedWidth returns an A4 mapper whose pixel scale accounts for pages
// rendered on screen at the given pixel width.
func ForRenderedWidth(px float64) (Mapper, error) {
	if !finite(px) || px <= 0 {
		return Mapper{}, fmt.Errorf("%w: rendered width %g", ErrInvalidGeometry, px)
	}
	m := A4()
	m.PxToPt = A4Width / px
	return m, nil
}

// WithPageSize returns a copy of the mapper for a page of a different size,
// keeping the pixel scale.
func (m Mapper) WithPageSize(w, h float64) Mapper {
	m.PageWidthPt = w
	m.PageHeightPt = h
	return m
}

func (m Mapper) check() error {
	if !finite(m.PageWidthPt, m.PageHeightPt, m.PxToPt) || m.PageWidthPt <= 0 || m.PageHeightPt <= 0 || m.PxToPt <= 0 {
		return fmt.Errorf("%w: page %gx%g scale %g", ErrInvalidGeometry, m.PageWidthPt, m.PageHeightPt, m.PxToPt)
	}
	return nil
}

// PercentToPoints returns the PDF coordinates of the lower-left corner of a
// field box whose top-left corner sits at p. The vertical axis is flipped
// because PDF pages grow upwards from the bottom edge.
func (m Mapper) PercentToPoints(p Percent, fieldHeightPx float64) (Point, error) {
	if err := m.check(); err != nil {
		return Point{}, err
	}
	if !p.valid() {
		return Point{}, fmt.Errorf("%w: position (%g, %g)", ErrInvalidGeometry, p.X, p.Y)
	}
	if !finite(fieldHeightPx) || fieldHeightPx < 0 {
		return Point{}, fmt.Errorf("%w: field height %g", ErrInvalidGeometry, fieldHeightPx)
	}

	x := p.X / 100 * m.PageWidthPt
	y := m.PageHeightPt - (p.Y / 100 * m.PageHeightPt) - fieldHeightPx*m.PxToPt
	return Point{X: x, Y: y}, nil
}

// PointsToPercent is the inverse of PercentToPoints.
func (m Mapper) PointsToPercent(pt Point, fieldHeightPx float64) (Percent, error) {
	if err := m.check(); err != nil {
		return Percent{}, err
	}
	if !finite(pt.X, pt.Y, fieldHeightPx) || fieldHeightPx < 0 {
		return Percent{}, fmt.Errorf("%w: point (%g, %g)", ErrInvalidGeometry, pt.X, pt.Y)
	}

	p := Percent{
		X: pt.X / m.PageWidthPt * 100,
		Y: (m.PageHeightPt - pt.Y - fieldHeightPx*m.PxToPt) / m.PageHeightPt * 100,
	}
	if !p.valid() {
		return Percent{}, fmt.Errorf("%w: point (%g, %g) is off the page", ErrInvalidGeometry, pt.X, pt.Y)
	}
	return p, nil
}

// SizeToPoints converts a field size in pixels to points.
func (m Mapper) SizeToPoints(s Size) Size {
	return Size{W: s.W * m.PxToPt, H: s.H * m.PxToPt}
}

// PixelRect returns the pixel box of a field on a raster capture of the page
// rendered at the given scale. Its anchoring matches PercentToPoints so the
// raster and overlay exports place fields identically.
func (m Mapper) PixelRect(p Percent, s Size, scale float64) (image.Rectangle, error) {
	if err := m.check(); err != nil {
		return image.Rectangle{}, err
	}
	if !p.valid() || !finite(s.W, s.H, scale) || s.W < 0 || s.H < 0 || scale <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: field box at (%g, %g)", ErrInvalidGeometry, p.X, p.Y)
	}

	pt := m.SizeToPoints(s)
	x0 := p.X / 100 * m.PageWidthPt * scale
	y0 := p.Y / 100 * m.PageHeightPt * scale
	return image.Rect(
		int(math.Round(x0)),
		int(math.Round(y0)),
		int(math.Round(x0+pt.W*scale)),
		int(math.Round(y0+pt.H*scale)),
	), nil
}

// PixelSize returns the raster dimensions of the page at the given scale.
func (m Mapper) PixelSize(scale float64) (int, int) {
	return int(math.Round(m.PageWidthPt * scale)), int(math.Round(m.PageHeightPt * scale))
}
