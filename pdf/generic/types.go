// Package generic provides the PDF object model used by the reader and the
// writers.
package generic

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// Object is any PDF object that can serialise itself.
type Object interface {
	Write(w io.Writer) error
	Clone() Object
}

// Reference points at an indirect object.
type Reference struct {
	Number     int
	Generation int
}

// Ref is shorthand for a generation-zero reference.
func Ref(num int) Reference {
	return Reference{Number: num}
}

func (r Reference) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d %d R", r.Number, r.Generation)
	return err
}

func (r Reference) Clone() Object { return r }

func (r Reference) String() string {
	return fmt.Sprintf("%d %d R", r.Number, r.Generation)
}

// Indirect is a numbered object as it appears in a file body.
type Indirect struct {
	Reference
	Object Object
}

// Write writes the "n g obj ... endobj" wrapper.
func (i *Indirect) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%d %d obj\n", i.Number, i.Generation); err != nil {
		return err
	}
	obj := i.Object
	if obj == nil {
		obj = Null{}
	}
	if err := obj.Write(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendobj\n")
	return err
}

func (i *Indirect) Clone() Object {
	return &Indirect{Reference: i.Reference, Object: i.Object.Clone()}
}

// Null is the PDF null object.
type Null struct{}

func (Null) Write(w io.Writer) error {
	_, err := io.WriteString(w, "null")
	return err
}

func (n Null) Clone() Object { return n }

// Boolean is a PDF boolean.
type Boolean bool

func (b Boolean) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatBool(bool(b)))
	return err
}

func (b Boolean) Clone() Object { return b }

// Integer is a PDF integer.
type Integer int64

func (i Integer) Write(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(i), 10))
	return err
}

func (i Integer) Clone() Object { return i }

// Real is a PDF real number.
type Real float64

func (r Real) Write(w io.Writer) error {
	_, err := io.WriteString(w, FormatNumber(float64(r)))
	return err
}

func (r Real) Clone() Object { return r }

// FormatNumber renders a number the way content streams and dictionaries
// expect it: no exponent and at most four decimals.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	s := strconv.FormatFloat(math.Round(v*10000)/10000, 'f', -1, 64)
	if s == "-0" {
		return "0"
	}
	return s
}

// Number extracts a numeric value from an Integer or Real.
func Number(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case Integer:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

// Name is a PDF name, stored without the leading slash.
type Name string

func (n Name) Write(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < '!' || c > '~' || bytes.IndexByte([]byte("#%/()<>[]{}"), c) >= 0 {
			fmt.Fprintf(&buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (n Name) Clone() Object { return n }

// String is a PDF string. Hex strings are written in angle brackets.
type String struct {
	Value []byte
	Hex   bool
}

// NewString creates a literal string from raw bytes.
func NewString(s string) *String {
	return &String{Value: []byte(s)}
}

// NewTextString creates a text string, switching to UTF-16BE with a byte
// order mark when the text is not representable as Latin-1.
func NewTextString(s string) *String {
	for _, r := range s {
		if r > 0xFF {
			buf := []byte{0xFE, 0xFF}
			for _, r := range s {
				if r > 0xFFFF {
					r -= 0x10000
					hi, lo := 0xD800+(r>>10), 0xDC00+(r&0x3FF)
					buf = append(buf, byte(hi>>8), byte(hi), byte(lo>>8), byte(lo))
					continue
				}
				buf = append(buf, byte(r>>8), byte(r))
			}
			return &String{Value: buf}
		}
	}
	latin := make([]byte, 0, len(s))
	for _, r := range s {
		latin = append(latin, byte(r))
	}
	return &String{Value: latin}
}

func (s *String) Write(w io.Writer) error {
	if s.Hex {
		_, err := fmt.Fprintf(w, "<%X>", s.Value)
		return err
	}
	_, err := w.Write(EscapeLiteral(s.Value))
	return err
}

// EscapeLiteral renders bytes as a parenthesised literal string.
func EscapeLiteral(v []byte) []byte {
	buf := make([]byte, 0, len(v)+2)
	buf = append(buf, '(')
	for _, c := range v {
		switch c {
		case '\\', '(', ')':
			buf = append(buf, '\\', c)
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		default:
			if c < 32 || c > 126 {
				buf = append(buf, fmt.Sprintf("\\%03o", c)...)
			} else {
				buf = append(buf, c)
			}
		}
	}
	return append(buf, ')')
}

func (s *String) Clone() Object {
	return &String{Value: append([]byte(nil), s.Value...), Hex: s.Hex}
}

// Text decodes a text string.
func (s *String) Text() string {
	v := s.Value
	if len(v) >= 2 && v[0] == 0xFE && v[1] == 0xFF {
		units := make([]uint16, 0, len(v)/2)
		for i := 2; i+1 < len(v); i += 2 {
			units = append(units, uint16(v[i])<<8|uint16(v[i+1]))
		}
		runes := make([]rune, 0, len(units))
		for i := 0; i < len(units); i++ {
			u := rune(units[i])
			if u >= 0xD800 && u < 0xDC00 && i+1 < len(units) {
				u = 0x10000 + (u-0xD800)<<10 + (rune(units[i+1]) - 0xDC00)
				i++
			}
			runes = append(runes, u)
		}
		return string(runes)
	}
	runes := make([]rune, len(v))
	for i, c := range v {
		runes[i] = rune(c)
	}
	return string(runes)
}

// Array is a PDF array.
type Array []Object

func (a Array) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, item := range a {
		if i > 0 {
			if _, err := io.WriteString(w, " "); err != nil {
				return err
			}
		}
		if err := item.Write(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

func (a Array) Clone() Object {
	out := make(Array, len(a))
	for i, item := range a {
		out[i] = item.Clone()
	}
	return out
}

// Numbers returns the array as floats, failing on non-numeric items.
func (a Array) Numbers() ([]float64, bool) {
	out := make([]float64, len(a))
	for i, item := range a {
		v, ok := Number(item)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Dictionary is a PDF dictionary that preserves key order.
type Dictionary struct {
	keys   []string
	values map[string]Object
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{values: make(map[string]Object)}
}

// Dict builds a dictionary from alternating key/value arguments.
func Dict(pairs ...any) *Dictionary {
	d := NewDictionary()
	for i := 0; i+1 < len(pairs); i += 2 {
		d.Set(pairs[i].(string), pairs[i+1].(Object))
	}
	return d
}

func (d *Dictionary) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "<<"); err != nil {
		return err
	}
	for _, k := range d.keys {
		if err := Name(k).Write(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
		if err := d.values[k].Write(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, ">>")
	return err
}

func (d *Dictionary) Clone() Object {
	out := NewDictionary()
	for _, k := range d.keys {
		out.Set(k, d.values[k].Clone())
	}
	return out
}

// Set stores a value, keeping the original position of an existing key.
func (d *Dictionary) Set(key string, v Object) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Get returns the raw value for key, or nil.
func (d *Dictionary) Get(key string) Object {
	if d == nil {
		return nil
	}
	return d.values[key]
}

// Has reports whether key is present.
func (d *Dictionary) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.values[key]
	return ok
}

// Delete removes key.
func (d *Dictionary) Delete(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (d *Dictionary) Keys() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.keys...)
}

// SortedKeys returns the keys in lexical order.
func (d *Dictionary) SortedKeys() []string {
	keys := d.Keys()
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Name returns a name value or "".
func (d *Dictionary) Name(key string) string {
	if n, ok := d.Get(key).(Name); ok {
		return string(n)
	}
	return ""
}

// Int returns an integer value.
func (d *Dictionary) Int(key string) (int, bool) {
	if i, ok := d.Get(key).(Integer); ok {
		return int(i), true
	}
	return 0, false
}

// Array returns an array value or nil.
func (d *Dictionary) Array(key string) Array {
	if a, ok := d.Get(key).(Array); ok {
		return a
	}
	return nil
}

// Dict returns a direct dictionary value or nil.
func (d *Dictionary) Dict(key string) *Dictionary {
	if v, ok := d.Get(key).(*Dictionary); ok {
		return v
	}
	return nil
}

// Stream is a dictionary followed by a byte payload. Data holds the bytes
// exactly as they appear in the file, that is, after filters are applied.
type Stream struct {
	Dict *Dictionary
	Data []byte
}

// NewStream wraps already-encoded data.
func NewStream(dict *Dictionary, data []byte) *Stream {
	if dict == nil {
		dict = NewDictionary()
	}
	return &Stream{Dict: dict, Data: data}
}

func (s *Stream) Write(w io.Writer) error {
	s.Dict.Set("Length", Integer(len(s.Data)))
	if err := s.Dict.Write(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\nstream\n"); err != nil {
		return err
	}
	if _, err := w.Write(s.Data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendstream")
	return err
}

func (s *Stream) Clone() Object {
	return &Stream{Dict: s.Dict.Clone().(*Dictionary), Data: append([]byte(nil), s.Data...)}
}

// Rectangle is a PDF rectangle in default user space.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

// RectFromArray reads a rectangle from a four-number array, normalising the
// corner order.
func RectFromArray(a Array) (Rectangle, error) {
	v, ok := a.Numbers()
	if !ok || len(v) != 4 {
		return Rectangle{}, fmt.Errorf("%w: rectangle needs four numbers", ErrInvalidObject)
	}
	return Rectangle{
		LLX: math.Min(v[0], v[2]), LLY: math.Min(v[1], v[3]),
		URX: math.Max(v[0], v[2]), URY: math.Max(v[1], v[3]),
	}, nil
}

// Array converts the rectangle to a PDF array.
func (r Rectangle) Array() Array {
	return Array{Real(r.LLX), Real(r.LLY), Real(r.URX), Real(r.URY)}
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }
