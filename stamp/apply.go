package stamp

import (
	"fmt"

	"github.com/georgepadayatti/signflow/pdf/content"
	"github.com/georgepadayatti/signflow/pdf/generic"
	"github.com/georgepadayatti/signflow/pdf/images"
	"github.com/georgepadayatti/signflow/pdf/reader"
	"github.com/georgepadayatti/signflow/pdf/writer"
)

// resourcePrefix names the XObjects an Overlay registers.
const resourcePrefix = "SFStamp"

// Overlay collects stamps for one page: each placed stamp becomes an XObject
// resource and a "q 1 0 0 1 x y cm /Name Do Q" snippet.
type Overlay struct {
	w        images.Adder
	taken    map[string]bool
	next     int
	body     *content.Builder
	xobjects *generic.Dictionary
}

// NewOverlay creates an empty overlay adding its objects through w.
func NewOverlay(w images.Adder) *Overlay {
	return &Overlay{
		w:        w,
		taken:    make(map[string]bool),
		next:     1,
		body:     content.NewBuilder(),
		xobjects: generic.NewDictionary(),
	}
}

// NewPageOverlay creates an overlay for an existing page, avoiding the
// XObject names the page already uses.
func NewPageOverlay(w *writer.IncrementalPdfFileWriter, r *reader.PdfFileReader, index int) (*Overlay, error) {
	page, err := r.Page(index)
	if err != nil {
		return nil, err
	}
	existing, err := r.ResolveDict(page.Resources.Get("XObject"))
	if err != nil {
		return nil, fmt.Errorf("failed to read page %d resources: %w", index+1, err)
	}
	o := NewOverlay(w)
	o.Reserve(existing.Keys()...)
	return o, nil
}

// Reserve marks resource names as unavailable.
func (o *Overlay) Reserve(names ...string) {
	for _, n := range names {
		o.taken[n] = true
	}
}

func (o *Overlay) name() string {
	for {
		n := fmt.Sprintf("%s%d", resourcePrefix, o.next)
		o.next++
		if !o.taken[n] {
			o.taken[n] = true
			return n
		}
	}
}

// Place adds s with its lower-left corner at (x, y) in page space.
func (o *Overlay) Place(s Stamper, x, y float64) error {
	appearance, err := s.CreateAppearanceStream(o.w)
	if err != nil {
		return err
	}
	name := o.name()
	o.xobjects.Set(name, o.w.AddObject(appearance))
	o.body.SaveState().Translate(x, y).DrawXObject(name).RestoreState()
	return nil
}

// Empty reports whether nothing was placed.
func (o *Overlay) Empty() bool {
	return o.xobjects.Len() == 0
}

// Content returns the operators painting every placed stamp.
func (o *Overlay) Content() []byte {
	return o.body.Bytes()
}

// Resources returns the resource dictionary the content needs.
func (o *Overlay) Resources() *generic.Dictionary {
	return generic.Dict("XObject", o.xobjects.Clone())
}

// ApplyTo draws the overlay over page index of an incremental update.
func (o *Overlay) ApplyTo(w *writer.IncrementalPdfFileWriter, index int) error {
	if o.Empty() {
		return nil
	}
	return w.AddToPage(index, o.Content(), o.Resources())
}
