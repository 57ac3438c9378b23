// Package filters implements the stream filters needed to read and write
// PDF content.
package filters

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Common errors
var (
	ErrUnsupportedFilter = errors.New("unsupported filter")
	ErrDecodeFailed      = errors.New("decode failed")
)

// Params holds the integer decode parameters a filter understands
// (Predictor, Columns, Colors, BitsPerComponent).
type Params map[string]int

func (p Params) get(key string, def int) int {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Filter is a reversible stream transformation.
type Filter interface {
	Name() string
	Decode(data []byte, params Params) ([]byte, error)
	Encode(data []byte, params Params) ([]byte, error)
}

var registry = map[string]Filter{}

// Register adds a filter under its name and any abbreviations.
func Register(f Filter, aliases ...string) {
	registry[f.Name()] = f
	for _, a := range aliases {
		registry[a] = f
	}
}

// Get looks up a filter by name.
func Get(name string) (Filter, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
	}
	return f, nil
}

func init() {
	Register(Flate{}, "Fl")
	Register(ASCIIHex{}, "AHx")
	Register(ASCII85{}, "A85")
}

// DecodeStream applies the named filters in order. params may be shorter
// than names.
func DecodeStream(data []byte, names []string, params []Params) ([]byte, error) {
	out := data
	for i, name := range names {
		f, err := Get(name)
		if err != nil {
			return nil, err
		}
		var p Params
		if i < len(params) {
			p = params[i]
		}
		if out, err = f.Decode(out, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EncodeStream applies the named filters so that DecodeStream with the same
// names restores data.
func EncodeStream(data []byte, names []string) ([]byte, error) {
	out := data
	for i := len(names) - 1; i >= 0; i-- {
		f, err := Get(names[i])
		if err != nil {
			return nil, err
		}
		if out, err = f.Encode(out, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Flate is the zlib based FlateDecode filter.
type Flate struct{}

func (Flate) Name() string { return "FlateDecode" }

func (Flate) Decode(data []byte, params Params) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if pred := params.get("Predictor", 1); pred >= 10 {
		colors := params.get("Colors", 1)
		bpc := params.get("BitsPerComponent", 8)
		columns := params.get("Columns", 1)
		return unpredictPNG(out, (columns*colors*bpc+7)/8, (colors*bpc+7)/8)
	} else if pred == 2 {
		return nil, fmt.Errorf("%w: TIFF predictor", ErrUnsupportedFilter)
	}
	return out, nil
}

func (Flate) Encode(data []byte, _ Params) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("flate encode failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flate encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// unpredictPNG reverses per-row PNG filtering. Each row carries a leading
// filter-type byte.
func unpredictPNG(data []byte, rowLen, bpp int) ([]byte, error) {
	if rowLen <= 0 {
		return nil, fmt.Errorf("%w: bad predictor columns", ErrDecodeFailed)
	}
	stride := rowLen + 1
	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	for i := 0; i+stride <= len(data); i += stride {
		kind, row := data[i], data[i+1:i+stride]
		cur := make([]byte, rowLen)
		for j := range row {
			var left, upLeft byte
			if j >= bpp {
				left = cur[j-bpp]
				upLeft = prev[j-bpp]
			}
			up := prev[j]
			switch kind {
			case 0:
				cur[j] = row[j]
			case 1:
				cur[j] = row[j] + left
			case 2:
				cur[j] = row[j] + up
			case 3:
				cur[j] = row[j] + byte((int(left)+int(up))/2)
			case 4:
				cur[j] = row[j] + paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("%w: PNG filter type %d", ErrDecodeFailed, kind)
			}
		}
		out = append(out, cur...)
		prev = cur
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ASCIIHex is the ASCIIHexDecode filter.
type ASCIIHex struct{}

func (ASCIIHex) Name() string { return "ASCIIHexDecode" }

func (ASCIIHex) Decode(data []byte, _ Params) ([]byte, error) {
	digits := make([]byte, 0, len(data))
	for _, c := range data {
		if c == '>' {
			break
		}
		if c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0 {
			continue
		}
		digits = append(digits, c)
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, digits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out, nil
}

func (ASCIIHex) Encode(data []byte, _ Params) ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(data)), hex.EncodedLen(len(data))+1)
	hex.Encode(out, data)
	return append(out, '>'), nil
}

// ASCII85 is the ASCII85Decode filter.
type ASCII85 struct{}

func (ASCII85) Name() string { return "ASCII85Decode" }

func (ASCII85) Decode(data []byte, _ Params) ([]byte, error) {
	data = bytes.TrimSpace(data)
	data = bytes.TrimPrefix(data, []byte("<~"))
	if i := bytes.Index(data, []byte("~>")); i >= 0 {
		data = data[:i]
	}
	out := make([]byte, 4*len(data)/5+4)
	n, _, err := ascii85.Decode(out, data, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out[:n], nil
}

func (ASCII85) Encode(data []byte, _ Params) ([]byte, error) {
	out := make([]byte, ascii85.MaxEncodedLen(len(data)))
	n := ascii85.Encode(out, data)
	return append(out[:n], '~', '>'), nil
}
