// Package content builds and inspects PDF content streams.
package content

import (
	"bytes"

	"github.com/georgepadayatti/signflow/pdf/generic"
)

// Builder accumulates content stream operators.
type Builder struct {
	buf bytes.Buffer
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) op(name string, operands ...float64) *Builder {
	for _, v := range operands {
		b.buf.WriteString(generic.FormatNumber(v))
		b.buf.WriteByte(' ')
	}
	b.buf.WriteString(name)
	b.buf.WriteByte('\n')
	return b
}

func (b *Builder) SaveState() *Builder    { return b.op("q") }
func (b *Builder) RestoreState() *Builder { return b.op("Q") }

// Transform concatenates a matrix onto the CTM.
func (b *Builder) Transform(a, bb, c, d, e, f float64) *Builder {
	return b.op("cm", a, bb, c, d, e, f)
}

// Translate shifts the origin.
func (b *Builder) Translate(tx, ty float64) *Builder {
	return b.Transform(1, 0, 0, 1, tx, ty)
}

func (b *Builder) Rectangle(x, y, w, h float64) *Builder { return b.op("re", x, y, w, h) }
func (b *Builder) MoveTo(x, y float64) *Builder          { return b.op("m", x, y) }
func (b *Builder) LineTo(x, y float64) *Builder          { return b.op("l", x, y) }
func (b *Builder) Fill() *Builder                        { return b.op("f") }
func (b *Builder) Stroke() *Builder                      { return b.op("S") }
func (b *Builder) SetLineWidth(w float64) *Builder       { return b.op("w", w) }

// SetFillRGB sets the non-stroking colour with components in 0..1.
func (b *Builder) SetFillRGB(r, g, bl float64) *Builder { return b.op("rg", r, g, bl) }

// SetStrokeRGB sets the stroking colour with components in 0..1.
func (b *Builder) SetStrokeRGB(r, g, bl float64) *Builder { return b.op("RG", r, g, bl) }

func (b *Builder) BeginText() *Builder { return b.op("BT") }
func (b *Builder) EndText() *Builder   { return b.op("ET") }

// SetFont selects a font resource by name.
func (b *Builder) SetFont(name string, size float64) *Builder {
	b.name(name)
	return b.op("Tf", size)
}

// TextPosition moves to the start of the next line.
func (b *Builder) TextPosition(x, y float64) *Builder { return b.op("Td", x, y) }

// ShowText shows already-encoded bytes as a literal string.
func (b *Builder) ShowText(encoded []byte) *Builder {
	b.buf.Write(generic.EscapeLiteral(encoded))
	b.buf.WriteByte(' ')
	return b.op("Tj")
}

// DrawXObject paints a named XObject resource.
func (b *Builder) DrawXObject(name string) *Builder {
	b.name(name)
	return b.op("Do")
}

// SetGState applies a named ExtGState resource.
func (b *Builder) SetGState(name string) *Builder {
	b.name(name)
	return b.op("gs")
}

func (b *Builder) name(n string) {
	_ = generic.Name(n).Write(&b.buf)
	b.buf.WriteByte(' ')
}

// Raw appends pre-built content.
func (b *Builder) Raw(data []byte) *Builder {
	b.buf.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		b.buf.WriteByte('\n')
	}
	return b
}

// Bytes returns the content built so far.
func (b *Builder) Bytes() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// Operation is one operator with its operands.
type Operation struct {
	Operator string
	Operands []generic.Object
}

// Parse splits a content stream into operations. Inline images are not
// supported.
func Parse(data []byte) ([]Operation, error) {
	var ops []Operation
	var operands []generic.Object
	p := generic.NewParser(data, 0)
	for {
		p.SkipWhitespace()
		if p.Pos() >= len(data) {
			return ops, nil
		}
		c := data[p.Pos()]
		if c == '/' || c == '(' || c == '<' || c == '[' || c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			obj, err := p.ParseObject()
			if err != nil {
				return nil, err
			}
			operands = append(operands, obj)
			continue
		}
		kw := p.Keyword()
		if kw == "" {
			p.Seek(p.Pos() + 1)
			continue
		}
		switch kw {
		case "true", "false", "null":
			obj, _ := generic.NewParser([]byte(kw), 0).ParseObject()
			operands = append(operands, obj)
			continue
		}
		ops = append(ops, Operation{Operator: kw, Operands: operands})
		operands = nil
	}
}
