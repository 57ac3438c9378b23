// Package reader provides PDF file reading and parsing.
package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/georgepadayatti/signflow/pdf/generic"
)

// Common errors
var (
	ErrInvalidPDF     = errors.New("invalid PDF file")
	ErrNoXRef         = errors.New("no xref found")
	ErrObjectNotFound = errors.New("object not found")
	ErrEncrypted      = errors.New("PDF is encrypted")
)

// EntryType distinguishes cross-reference entries.
type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

// XRefEntry locates one object.
type XRefEntry struct {
	Type       EntryType
	Offset     int
	Generation int
	// For compressed entries: the containing object stream and index.
	StreamNum int
	Index     int
}

// PdfFileReader reads objects and the page tree from an in-memory PDF.
type PdfFileReader struct {
	data    []byte
	Version string
	Trailer *generic.Dictionary
	XRef    map[int]XRefEntry

	// StartXRef is the offset of the newest cross-reference section.
	StartXRef int
	// HasXRefStream is set when the newest section is an xref stream.
	HasXRefStream bool
	// Rebuilt is set when the cross-reference data was reconstructed by
	// scanning the file body.
	Rebuilt bool

	objects    map[int]generic.Object
	objStreams map[int]*objectStream
	resolving  map[int]bool
	pages      []Page
}

// NewPdfFileReader reads all of r and parses it.
func NewPdfFileReader(r io.Reader) (*PdfFileReader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF data: %w", err)
	}
	return NewPdfFileReaderFromBytes(data)
}

// NewPdfFileReaderFromBytes parses a PDF held in memory. Damaged
// cross-reference data is rebuilt by scanning for object headers.
// Encrypted files are rejected with ErrEncrypted.
func NewPdfFileReaderFromBytes(data []byte) (*PdfFileReader, error) {
	r := &PdfFileReader{data: data}
	if err := r.parseHeader(); err != nil {
		return nil, err
	}

	r.reset()
	if err := r.loadXRef(); err != nil || r.checkRoot() != nil {
		r.reset()
		if err := r.rebuild(); err != nil {
			return nil, err
		}
		if err := r.checkRoot(); err != nil {
			return nil, err
		}
	}
	if r.Trailer.Has("Encrypt") {
		return nil, ErrEncrypted
	}
	if err := r.loadPages(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PdfFileReader) reset() {
	r.XRef = make(map[int]XRefEntry)
	r.objects = make(map[int]generic.Object)
	r.objStreams = make(map[int]*objectStream)
	r.resolving = make(map[int]bool)
	r.Trailer = nil
	r.HasXRefStream = false
	r.Rebuilt = false
}

func (r *PdfFileReader) parseHeader() error {
	head := r.data
	if len(head) > 1024 {
		head = head[:1024]
	}
	i := bytes.Index(head, []byte("%PDF-"))
	if i < 0 {
		return fmt.Errorf("%w: missing header", ErrInvalidPDF)
	}
	v := head[i+5:]
	end := bytes.IndexAny(v, "\r\n ")
	if end < 0 {
		end = len(v)
	}
	r.Version = string(v[:end])
	return nil
}

func (r *PdfFileReader) checkRoot() error {
	if r.Trailer == nil {
		return fmt.Errorf("%w: missing trailer", ErrInvalidPDF)
	}
	if _, err := r.Root(); err != nil {
		return err
	}
	return nil
}

// Data returns the raw file bytes.
func (r *PdfFileReader) Data() []byte {
	return r.data
}

// Size returns one more than the highest object number in use.
func (r *PdfFileReader) Size() int {
	size, _ := r.Trailer.Int("Size")
	for num := range r.XRef {
		if num >= size {
			size = num + 1
		}
	}
	return size
}

// Root returns the document catalog.
func (r *PdfFileReader) Root() (*generic.Dictionary, error) {
	root, err := r.ResolveDict(r.Trailer.Get("Root"))
	if err != nil || root == nil {
		return nil, fmt.Errorf("%w: missing document catalog", ErrInvalidPDF)
	}
	return root, nil
}

// RootRef returns the trailer's /Root reference.
func (r *PdfFileReader) RootRef() (generic.Reference, bool) {
	ref, ok := r.Trailer.Get("Root").(generic.Reference)
	return ref, ok
}

// GetObject loads the object with the given number.
func (r *PdfFileReader) GetObject(num int) (generic.Object, error) {
	if obj, ok := r.objects[num]; ok {
		return obj, nil
	}
	entry, ok := r.XRef[num]
	if !ok || entry.Type == EntryFree {
		return nil, fmt.Errorf("%w: %d", ErrObjectNotFound, num)
	}
	if r.resolving[num] {
		return nil, fmt.Errorf("%w: circular reference to %d", ErrInvalidPDF, num)
	}
	r.resolving[num] = true
	defer delete(r.resolving, num)

	var obj generic.Object
	var err error
	switch entry.Type {
	case EntryInUse:
		obj, err = r.objectAt(num, entry.Offset)
	case EntryCompressed:
		obj, err = r.compressedObject(entry.StreamNum, entry.Index)
	}
	if err != nil {
		return nil, err
	}
	r.objects[num] = obj
	return obj, nil
}

func (r *PdfFileReader) objectAt(num, offset int) (generic.Object, error) {
	if offset < 0 || offset >= len(r.data) {
		return nil, fmt.Errorf("%w: offset %d for object %d", ErrInvalidPDF, offset, num)
	}
	ind, err := generic.NewParser(r.data, offset).ParseIndirect(r.lengthOf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse object %d: %w", num, err)
	}
	if ind.Number != num {
		return nil, fmt.Errorf("%w: expected object %d at %d, found %d", ErrInvalidPDF, num, offset, ind.Number)
	}
	return ind.Object, nil
}

func (r *PdfFileReader) lengthOf(ref generic.Reference) (int, bool) {
	obj, err := r.GetObject(ref.Number)
	if err != nil {
		return 0, false
	}
	n, ok := obj.(generic.Integer)
	return int(n), ok
}

// Resolve follows a reference. Other objects are returned unchanged.
func (r *PdfFileReader) Resolve(obj generic.Object) (generic.Object, error) {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(generic.Reference)
		if !ok {
			return obj, nil
		}
		var err error
		if obj, err = r.GetObject(ref.Number); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: reference chain too long", ErrInvalidPDF)
}

// ResolveDict resolves obj and returns it as a dictionary. A stream yields
// its dictionary. A missing value yields nil without error.
func (r *PdfFileReader) ResolveDict(obj generic.Object) (*generic.Dictionary, error) {
	if obj == nil {
		return nil, nil
	}
	v, err := r.Resolve(obj)
	if err != nil {
		return nil, err
	}
	switch d := v.(type) {
	case *generic.Dictionary:
		return d, nil
	case *generic.Stream:
		return d.Dict, nil
	case generic.Null:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: expected dictionary, got %T", ErrInvalidPDF, v)
}

// ResolveArray resolves obj and returns it as an array.
func (r *PdfFileReader) ResolveArray(obj generic.Object) (generic.Array, error) {
	if obj == nil {
		return nil, nil
	}
	v, err := r.Resolve(obj)
	if err != nil {
		return nil, err
	}
	if a, ok := v.(generic.Array); ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: expected array, got %T", ErrInvalidPDF, v)
}

type objectStream struct {
	data    []byte
	offsets []int
}

func (r *PdfFileReader) compressedObject(streamNum, index int) (generic.Object, error) {
	os, err := r.objectStream(streamNum)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(os.offsets) {
		return nil, fmt.Errorf("%w: index %d in object stream %d", ErrObjectNotFound, index, streamNum)
	}
	return generic.NewParser(os.data, os.offsets[index]).ParseObject()
}

func (r *PdfFileReader) objectStream(num int) (*objectStream, error) {
	if os, ok := r.objStreams[num]; ok {
		return os, nil
	}
	obj, err := r.GetObject(num)
	if err != nil {
		return nil, err
	}
	s, ok := obj.(*generic.Stream)
	if !ok {
		return nil, fmt.Errorf("%w: object %d is not an object stream", ErrInvalidPDF, num)
	}
	data, err := s.Decoded()
	if err != nil {
		return nil, fmt.Errorf("failed to decode object stream %d: %w", num, err)
	}
	n, _ := s.Dict.Int("N")
	first, _ := s.Dict.Int("First")

	os := &objectStream{data: data}
	p := generic.NewParser(data[:min(first, len(data))], 0)
	for i := 0; i < n; i++ {
		if _, err := strconv.Atoi(p.Keyword()); err != nil {
			return nil, fmt.Errorf("%w: object stream %d header", ErrInvalidPDF, num)
		}
		off, err := strconv.Atoi(p.Keyword())
		if err != nil {
			return nil, fmt.Errorf("%w: object stream %d header", ErrInvalidPDF, num)
		}
		os.offsets = append(os.offsets, first+off)
	}
	r.objStreams[num] = os
	return os, nil
}
