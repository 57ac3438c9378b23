// Package document holds the canonical in-memory model of a composable
// document: its background layer, pages, per-page rich content and fields.
package document

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// BackgroundKind is the kind of layer every page of a document is drawn on.
type BackgroundKind string

const (
	BackgroundNone        BackgroundKind = ""
	BackgroundRichText    BackgroundKind = "text"
	BackgroundImage       BackgroundKind = "image"
	BackgroundExistingPdf BackgroundKind = "pdf"
)

// ParseBackgroundKind validates a background kind name. "none" is accepted as
// an alias for the empty kind.
func ParseBackgroundKind(s string) (BackgroundKind, error) {
	switch k := BackgroundKind(s); k {
	case BackgroundNone, BackgroundRichText, BackgroundImage, BackgroundExistingPdf:
		return k, nil
	case "none":
		return BackgroundNone, nil
	}
	return "", fmt.Errorf("%w: unknown background %q", ErrInvalidField, s)
}

// Status is the signing lifecycle state. It only moves forward.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusCompleted Status = "completed"
)

// ParseStatus validates a status name. An empty status is a draft.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusSent, StatusCompleted:
		return st, nil
	case "":
		return StatusDraft, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Document is a multi-page document with a shared background and a list of
// fields. Fields keep insertion order.
type Document struct {
	ID         string
	Title      string
	Status     Status
	FileURL    string
	Background BackgroundKind
	Pages      int
	Content    map[int]string
	Fields     []Field
}

// New creates an empty draft document.
func New(title string) *Document {
	return &Document{
		ID:      uuid.NewString(),
		Title:   title,
		Status:  StatusDraft,
		Content: make(map[int]string),
	}
}

// NewFieldID allocates a field identifier.
func NewFieldID() string {
	return uuid.NewString()
}

// SetBackground selects the background layer. Switching kinds keeps existing
// fields at their percentage coordinates. A chosen background always has at
// least one page.
func (d *Document) SetBackground(kind BackgroundKind, sourceRef string) error {
	if d.Status != StatusDraft {
		return fmt.Errorf("%w: background can only change in draft, status is %s", ErrDocumentLocked, d.Status)
	}
	if kind == BackgroundNone {
		if len(d.Fields) > 0 || d.Pages > 0 {
			return fmt.Errorf("%w: cannot clear the background of a document with pages", ErrInvalidField)
		}
		d.Background = BackgroundNone
		d.FileURL = ""
		return nil
	}
	if _, err := ParseBackgroundKind(string(kind)); err != nil {
		return err
	}
	d.Background = kind
	d.FileURL = sourceRef
	d.EnsurePageCount(1)
	return nil
}

// AddPage appends a page and returns its 1-based number.
func (d *Document) AddPage() int {
	d.Pages++
	return d.Pages
}

// EnsurePageCount grows the document to at least n pages. It never shrinks.
// It reports whether pages were added.
func (d *Document) EnsurePageCount(n int) bool {
	if n <= d.Pages {
		return false
	}
	d.Pages = n
	return true
}

// PageContent returns the markup stored for a rich-text page.
func (d *Document) PageContent(page int) string {
	return d.Content[page]
}

// SetPageContent stores the markup for a rich-text page.
func (d *Document) SetPageContent(page int, markup string) error {
	if page < 1 || page > d.Pages {
		return fmt.Errorf("%w: page %d of %d", ErrInvalidField, page, d.Pages)
	}
	if d.Content == nil {
		d.Content = make(map[int]string)
	}
	if markup == "" {
		delete(d.Content, page)
		return nil
	}
	d.Content[page] = markup
	return nil
}

// UpsertField inserts a field or replaces the one with the same id.
func (d *Document) UpsertField(f Field) error {
	if err := f.validate(d.Pages); err != nil {
		return err
	}
	for i := range d.Fields {
		if d.Fields[i].ID == f.ID {
			d.Fields[i] = f
			return nil
		}
	}
	d.Fields = append(d.Fields, f)
	return nil
}

// RemoveField deletes a field. Unknown ids are ignored.
func (d *Document) RemoveField(id string) {
	for i := range d.Fields {
		if d.Fields[i].ID == id {
			d.Fields = append(d.Fields[:i], d.Fields[i+1:]...)
			return
		}
	}
}

// Field returns a copy of the field with the given id.
func (d *Document) Field(id string) (Field, bool) {
	for _, f := range d.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// FieldsOnPage returns the fields placed on a page, in insertion order.
func (d *Document) FieldsOnPage(page int) []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.PageNumber == page {
			out = append(out, f)
		}
	}
	return out
}

// FieldsFor returns the fields assigned to a party.
func (d *Document) FieldsFor(a Assignee) []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Assignee == a {
			out = append(out, f)
		}
	}
	return out
}

// AllFilled reports whether the document has fields and every one of them
// carries a value.
func (d *Document) AllFilled() bool {
	if len(d.Fields) == 0 {
		return false
	}
	for _, f := range d.Fields {
		if !f.Filled() {
			return false
		}
	}
	return true
}

// ContentPages returns the page numbers holding rich content, ascending.
func (d *Document) ContentPages() []int {
	pages := make([]int, 0, len(d.Content))
	for p := range d.Content {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.Content = make(map[int]string, len(d.Content))
	for k, v := range d.Content {
		c.Content[k] = v
	}
	c.Fields = append([]Field(nil), d.Fields...)
	return &c
}
