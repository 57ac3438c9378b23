package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/georgepadayatti/signflow/geometry"
)

// Record is the persisted shape of a document as stored by the external
// document store.
type Record struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Status   string   `json:"status"`
	FileURL  string   `json:"file_url"`
	Metadata Metadata `json:"metadata"`
}

// Metadata carries the composable part of a record.
type Metadata struct {
	Fields   []FieldRecord     `json:"fields"`
	Content  map[string]string `json:"content"`
	Type     string            `json:"type"`
	NumPages int               `json:"numPages"`
}

// FieldRecord is the persisted shape of a field.
type FieldRecord struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Label      string  `json:"label,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	PageNumber int     `json:"pageNumber"`
	Value      string  `json:"value"`
	Assignee   string  `json:"assignee"`
}

// UnmarshalJSON accepts both the current record shape and legacy records
// whose metadata is a bare field array. Legacy metadata is normalised here so
// nothing past the load boundary sees the difference.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		Title    string          `json:"title"`
		Status   string          `json:"status"`
		FileURL  string          `json:"file_url"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.ID = raw.ID
	r.Title = raw.Title
	r.Status = raw.Status
	r.FileURL = raw.FileURL
	r.Metadata = Metadata{}

	md := bytes.TrimSpace(raw.Metadata)
	switch {
	case len(md) == 0 || bytes.Equal(md, []byte("null")):
	case md[0] == '[':
		var fields []FieldRecord
		if err := json.Unmarshal(md, &fields); err != nil {
			return fmt.Errorf("legacy metadata: %w", err)
		}
		r.Metadata = legacyMetadata(fields, raw.FileURL)
	default:
		if err := json.Unmarshal(md, &r.Metadata); err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
	}
	return nil
}

// legacyMetadata infers the background of a bare field array. With a source
// file it is an uploaded PDF. Fields without one were placed on a blank
// composed page, so they get a rich-text background.
func legacyMetadata(fields []FieldRecord, fileURL string) Metadata {
	m := Metadata{Fields: fields, Content: map[string]string{}}
	switch {
	case fileURL != "":
		m.Type = string(BackgroundExistingPdf)
		m.NumPages = 1
	case len(fields) > 0:
		m.Type = string(BackgroundRichText)
	}
	for _, f := range fields {
		if f.PageNumber > m.NumPages {
			m.NumPages = f.PageNumber
		}
	}
	if m.NumPages == 0 && len(fields) > 0 {
		m.NumPages = 1
	}
	return m
}

// DecodeRecord parses a persisted record.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}

// EncodeRecord serialises a record.
func EncodeRecord(r Record) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// ToRecord converts the document to its persisted shape.
func (d *Document) ToRecord() Record {
	fields := make([]FieldRecord, 0, len(d.Fields))
	for _, f := range d.Fields {
		fields = append(fields, FieldRecord{
			ID:         f.ID,
			Type:       string(f.Type),
			Label:      f.Label,
			X:          f.Position.X,
			Y:          f.Position.Y,
			Width:      f.Size.W,
			Height:     f.Size.H,
			PageNumber: f.PageNumber,
			Value:      f.Value,
			Assignee:   string(f.Assignee),
		})
	}

	content := make(map[string]string, len(d.Content))
	for page, markup := range d.Content {
		content[strconv.Itoa(page)] = markup
	}

	return Record{
		ID:      d.ID,
		Title:   d.Title,
		Status:  string(d.Status),
		FileURL: d.FileURL,
		Metadata: Metadata{
			Fields:   fields,
			Content:  content,
			Type:     string(d.Background),
			NumPages: d.Pages,
		},
	}
}

// FromRecord rebuilds a document from its persisted shape. Fields missing an
// id, page, size or assignee (as written by older clients) get defaults.
func FromRecord(r Record) (*Document, error) {
	status, err := ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}
	kind, err := ParseBackgroundKind(r.Metadata.Type)
	if err != nil {
		return nil, err
	}

	d := &Document{
		ID:         r.ID,
		Title:      r.Title,
		Status:     status,
		FileURL:    r.FileURL,
		Background: kind,
		Pages:      r.Metadata.NumPages,
		Content:    make(map[int]string, len(r.Metadata.Content)),
	}
	if d.ID == "" {
		return nil, fmt.Errorf("%w: record has no id", ErrInvalidField)
	}
	if kind != BackgroundNone {
		d.EnsurePageCount(1)
	}

	for key, markup := range r.Metadata.Content {
		page, err := strconv.Atoi(key)
		if err != nil || page < 1 {
			return nil, fmt.Errorf("%w: content key %q is not a page number", ErrInvalidField, key)
		}
		d.EnsurePageCount(page)
		d.Content[page] = markup
	}

	for _, fr := range r.Metadata.Fields {
		f := Field{
			ID:         fr.ID,
			Type:       FieldType(fr.Type),
			Label:      fr.Label,
			Position:   geometry.Percent{X: fr.X, Y: fr.Y},
			Size:       geometry.Size{W: fr.Width, H: fr.Height},
			PageNumber: fr.PageNumber,
			Value:      fr.Value,
			Assignee:   Assignee(fr.Assignee),
		}
		if f.ID == "" {
			f.ID = NewFieldID()
		}
		if f.PageNumber == 0 {
			f.PageNumber = 1
		}
		if f.Assignee == "" {
			f.Assignee = AssigneeContact
		}
		if f.Size.W == 0 && f.Size.H == 0 {
			f.Size = DefaultSize(f.Type)
		}
		if err := d.UpsertField(f); err != nil {
			return nil, err
		}
	}
	if kind == BackgroundNone && (d.Pages > 0 || len(d.Fields) > 0) {
		return nil, fmt.Errorf("%w: record without a background has %d pages and %d fields",
			ErrInvalidField, d.Pages, len(d.Fields))
	}
	return d, nil
}
