package reader

import (
	"fmt"

	"github.com/georgepadayatti/signflow/pdf/generic"
)

// Page is a leaf of the page tree with its inheritable attributes applied.
type Page struct {
	Ref       generic.Reference
	Dict      *generic.Dictionary
	MediaBox  generic.Rectangle
	Resources *generic.Dictionary
	Rotate    int
}

type inherited struct {
	mediaBox  generic.Object
	resources generic.Object
	rotate    generic.Object
}

func (r *PdfFileReader) loadPages() error {
	root, err := r.Root()
	if err != nil {
		return err
	}
	ref, ok := root.Get("Pages").(generic.Reference)
	if !ok {
		return fmt.Errorf("%w: catalog has no page tree reference", ErrInvalidPDF)
	}
	r.pages = nil
	return r.walk(ref, inherited{}, make(map[int]bool))
}

func (r *PdfFileReader) walk(ref generic.Reference, inh inherited, seen map[int]bool) error {
	if seen[ref.Number] {
		return fmt.Errorf("%w: page tree cycle at %s", ErrInvalidPDF, ref)
	}
	seen[ref.Number] = true

	node, err := r.ResolveDict(ref)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("%w: missing page tree node %s", ErrInvalidPDF, ref)
	}
	if v := node.Get("MediaBox"); v != nil {
		inh.mediaBox = v
	}
	if v := node.Get("Resources"); v != nil {
		inh.resources = v
	}
	if v := node.Get("Rotate"); v != nil {
		inh.rotate = v
	}

	kids := node.Get("Kids")
	if node.Name("Type") == "Page" || kids == nil {
		return r.addPage(ref, node, inh)
	}
	arr, err := r.ResolveArray(kids)
	if err != nil {
		return err
	}
	for _, kid := range arr {
		kref, ok := kid.(generic.Reference)
		if !ok {
			return fmt.Errorf("%w: page tree kid is not a reference", ErrInvalidPDF)
		}
		if err := r.walk(kref, inh, seen); err != nil {
			return err
		}
	}
	return nil
}

func (r *PdfFileReader) addPage(ref generic.Reference, dict *generic.Dictionary, inh inherited) error {
	page := Page{Ref: ref, Dict: dict, MediaBox: generic.Rectangle{URX: 612, URY: 792}}
	if inh.mediaBox != nil {
		arr, err := r.ResolveArray(inh.mediaBox)
		if err != nil {
			return err
		}
		if page.MediaBox, err = generic.RectFromArray(arr); err != nil {
			return err
		}
	}
	if inh.resources != nil {
		res, err := r.ResolveDict(inh.resources)
		if err != nil {
			return err
		}
		page.Resources = res
	}
	if page.Resources == nil {
		page.Resources = generic.NewDictionary()
	}
	if inh.rotate != nil {
		if v, err := r.Resolve(inh.rotate); err == nil {
			if n, ok := generic.Number(v); ok {
				page.Rotate = ((int(n)%360)+360)%360
			}
		}
	}
	r.pages = append(r.pages, page)
	return nil
}

// NumPages returns the number of pages in document order.
func (r *PdfFileReader) NumPages() int {
	return len(r.pages)
}

// Page returns the page with the given zero-based index.
func (r *PdfFileReader) Page(index int) (Page, error) {
	if index < 0 || index >= len(r.pages) {
		return Page{}, fmt.Errorf("%w: page %d of %d", ErrObjectNotFound, index+1, len(r.pages))
	}
	return r.pages[index], nil
}

// Pages returns all pages in document order.
func (r *PdfFileReader) Pages() []Page {
	return append([]Page(nil), r.pages...)
}

// Contents returns the page's decoded content streams concatenated.
func (r *PdfFileReader) Contents(p Page) ([]byte, error) {
	obj, err := r.Resolve(p.Dict.Get("Contents"))
	if err != nil {
		return nil, err
	}
	var streams []generic.Object
	switch v := obj.(type) {
	case *generic.Stream:
		streams = []generic.Object{v}
	case generic.Array:
		streams = v
	}
	var out []byte
	for _, s := range streams {
		v, err := r.Resolve(s)
		if err != nil {
			return nil, err
		}
		stream, ok := v.(*generic.Stream)
		if !ok {
			continue
		}
		data, err := stream.Decoded()
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		out = append(out, '\n')
	}
	return out, nil
}
