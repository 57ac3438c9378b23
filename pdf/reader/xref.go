package reader

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"github.com/georgepadayatti/signflow/pdf/generic"
)

func (r *PdfFileReader) loadXRef() error {
	offset, err := r.findStartXRef()
	if err != nil {
		return err
	}
	r.StartXRef = offset

	visited := make(map[int]bool)
	for first := true; offset > 0 || first; first = false {
		if visited[offset] {
			return fmt.Errorf("%w: xref loop at %d", ErrInvalidPDF, offset)
		}
		visited[offset] = true

		trailer, isStream, err := r.readSection(offset)
		if err != nil {
			return err
		}
		if first {
			r.Trailer = trailer
			r.HasXRefStream = isStream
		}
		// Hybrid files: the xref stream referenced from a table trailer
		// takes precedence over older sections.
		if stm, ok := trailer.Int("XRefStm"); ok && !isStream && !visited[stm] {
			visited[stm] = true
			if _, _, err := r.readSection(stm); err != nil {
				return err
			}
		}
		prev, ok := trailer.Int("Prev")
		if !ok {
			break
		}
		offset = prev
	}
	return nil
}

func (r *PdfFileReader) findStartXRef() (int, error) {
	tail := r.data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	i := bytes.LastIndex(tail, []byte("startxref"))
	if i < 0 {
		return 0, ErrNoXRef
	}
	p := generic.NewParser(tail, i+len("startxref"))
	offset, err := strconv.Atoi(p.Keyword())
	if err != nil || offset <= 0 || offset >= len(r.data) {
		return 0, fmt.Errorf("%w: bad startxref", ErrNoXRef)
	}
	return offset, nil
}

// readSection reads one table or stream section. Entries already known
// from newer sections are kept.
func (r *PdfFileReader) readSection(offset int) (*generic.Dictionary, bool, error) {
	if offset < 0 || offset >= len(r.data) {
		return nil, false, fmt.Errorf("%w: xref offset %d", ErrInvalidPDF, offset)
	}
	p := generic.NewParser(r.data, offset)
	p.SkipWhitespace()
	if bytes.HasPrefix(r.data[p.Pos():], []byte("xref")) {
		p.Seek(p.Pos() + 4)
		trailer, err := r.readTable(p)
		return trailer, false, err
	}
	trailer, err := r.readStream(p)
	return trailer, true, err
}

func (r *PdfFileReader) readTable(p *generic.Parser) (*generic.Dictionary, error) {
	for {
		save := p.Pos()
		tok := p.Keyword()
		if tok == "trailer" {
			break
		}
		start, err := strconv.Atoi(tok)
		if err != nil {
			p.Seek(save)
			return nil, fmt.Errorf("%w: bad subsection header %q", ErrInvalidPDF, tok)
		}
		count, err := strconv.Atoi(p.Keyword())
		if err != nil {
			return nil, fmt.Errorf("%w: bad subsection count", ErrInvalidPDF)
		}
		for i := 0; i < count; i++ {
			off, err1 := strconv.Atoi(p.Keyword())
			gen, err2 := strconv.Atoi(p.Keyword())
			kind := p.Keyword()
			if err1 != nil || err2 != nil || (kind != "n" && kind != "f") {
				return nil, fmt.Errorf("%w: bad entry for object %d", ErrInvalidPDF, start+i)
			}
			num := start + i
			if _, seen := r.XRef[num]; seen {
				continue
			}
			if kind == "n" {
				r.XRef[num] = XRefEntry{Type: EntryInUse, Offset: off, Generation: gen}
			} else {
				r.XRef[num] = XRefEntry{Type: EntryFree, Generation: gen}
			}
		}
	}
	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trailer: %w", err)
	}
	trailer, ok := obj.(*generic.Dictionary)
	if !ok {
		return nil, fmt.Errorf("%w: trailer is not a dictionary", ErrInvalidPDF)
	}
	return trailer, nil
}

func (r *PdfFileReader) readStream(p *generic.Parser) (*generic.Dictionary, error) {
	ind, err := p.ParseIndirect(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse xref stream: %w", err)
	}
	s, ok := ind.Object.(*generic.Stream)
	if !ok || s.Dict.Name("Type") != "XRef" {
		return nil, fmt.Errorf("%w: no xref at offset", ErrInvalidPDF)
	}
	data, err := s.Decoded()
	if err != nil {
		return nil, fmt.Errorf("failed to decode xref stream: %w", err)
	}
	w, ok := s.Dict.Array("W").Numbers()
	if !ok || len(w) != 3 {
		return nil, fmt.Errorf("%w: bad /W in xref stream", ErrInvalidPDF)
	}
	widths := [3]int{int(w[0]), int(w[1]), int(w[2])}
	rowLen := widths[0] + widths[1] + widths[2]
	if rowLen == 0 {
		return nil, fmt.Errorf("%w: empty /W in xref stream", ErrInvalidPDF)
	}

	size, _ := s.Dict.Int("Size")
	index := []float64{0, float64(size)}
	if arr := s.Dict.Array("Index"); arr != nil {
		if index, ok = arr.Numbers(); !ok || len(index)%2 != 0 {
			return nil, fmt.Errorf("%w: bad /Index in xref stream", ErrInvalidPDF)
		}
	}

	pos := 0
	for i := 0; i < len(index); i += 2 {
		start, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(data) {
				return nil, fmt.Errorf("%w: xref stream truncated", ErrInvalidPDF)
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			num := start + j
			if _, seen := r.XRef[num]; seen {
				continue
			}
			kind := 1
			if widths[0] > 0 {
				kind = field(row[:widths[0]])
			}
			f2 := field(row[widths[0] : widths[0]+widths[1]])
			f3 := field(row[widths[0]+widths[1]:])
			switch kind {
			case 0:
				r.XRef[num] = XRefEntry{Type: EntryFree, Generation: f3}
			case 1:
				r.XRef[num] = XRefEntry{Type: EntryInUse, Offset: f2, Generation: f3}
			case 2:
				r.XRef[num] = XRefEntry{Type: EntryCompressed, StreamNum: f2, Index: f3}
			}
		}
	}
	return s.Dict, nil
}

func field(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}

var objHeader = regexp.MustCompile(`(?m)(?:^|[\r\n\s])(\d+)\s+(\d+)\s+obj\b`)

// rebuild reconstructs the cross-reference table by scanning the body for
// object headers. Later definitions replace earlier ones.
func (r *PdfFileReader) rebuild() error {
	r.Rebuilt = true
	for _, m := range objHeader.FindAllSubmatchIndex(r.data, -1) {
		num, _ := strconv.Atoi(string(r.data[m[2]:m[3]]))
		gen, _ := strconv.Atoi(string(r.data[m[4]:m[5]]))
		r.XRef[num] = XRefEntry{Type: EntryInUse, Offset: m[2], Generation: gen}
	}
	if len(r.XRef) == 0 {
		return fmt.Errorf("%w: no objects found", ErrInvalidPDF)
	}

	// Prefer the last classic trailer.
	if i := bytes.LastIndex(r.data, []byte("trailer")); i >= 0 {
		p := generic.NewParser(r.data, i+len("trailer"))
		if obj, err := p.ParseObject(); err == nil {
			if d, ok := obj.(*generic.Dictionary); ok && d.Has("Root") {
				r.Trailer = d
				return nil
			}
		}
	}

	// Otherwise look for an xref stream dictionary or a catalog.
	var catalog, xrefDict *generic.Dictionary
	var catalogRef generic.Reference
	for num := range r.XRef {
		obj, err := r.GetObject(num)
		if err != nil {
			continue
		}
		switch v := obj.(type) {
		case *generic.Stream:
			if v.Dict.Name("Type") == "XRef" && v.Dict.Has("Root") {
				xrefDict = v.Dict
			}
		case *generic.Dictionary:
			if v.Name("Type") == "Catalog" && (catalog == nil || num > catalogRef.Number) {
				catalog, catalogRef = v, generic.Ref(num)
			}
		}
	}
	switch {
	case xrefDict != nil:
		r.Trailer = xrefDict
	case catalog != nil:
		r.Trailer = generic.Dict("Root", catalogRef)
	default:
		return fmt.Errorf("%w: no document catalog found", ErrInvalidPDF)
	}
	return nil
}
