package document

import (
	"fmt"
	"math"

	"github.com/georgepadayatti/signflow/geometry"
)

// FieldType is the closed set of field kinds.
type FieldType string

const (
	FieldSignature FieldType = "signature"
	FieldInitials  FieldType = "initials"
	FieldDate      FieldType = "date"
	FieldText      FieldType = "text"
	FieldCheckbox  FieldType = "checkbox"
	FieldImage     FieldType = "image"
)

// CheckedValue is the value of a ticked checkbox.
const CheckedValue = "checked"

// ParseFieldType validates a field type name.
func ParseFieldType(s string) (FieldType, error) {
	switch t := FieldType(s); t {
	case FieldSignature, FieldInitials, FieldDate, FieldText, FieldCheckbox, FieldImage:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidField, s)
}

// IsRaster reports whether values of this type are data-URI images.
func (t FieldType) IsRaster() bool {
	return t == FieldSignature || t == FieldImage
}

// DefaultSize returns the on-screen pixel size a new field of this type gets.
func DefaultSize(t FieldType) geometry.Size {
	switch t {
	case FieldInitials:
		return geometry.Size{W: 60, H: 40}
	case FieldCheckbox:
		return geometry.Size{W: 30, H: 30}
	default:
		return geometry.Size{W: 200, H: 40}
	}
}

// Assignee is the party responsible for supplying a field's value.
type Assignee string

const (
	AssigneeBusiness Assignee = "business"
	AssigneeContact  Assignee = "contact"
)

// ParseAssignee validates an assignee name.
func ParseAssignee(s string) (Assignee, error) {
	switch a := Assignee(s); a {
	case AssigneeBusiness, AssigneeContact:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown assignee %q", ErrInvalidField, s)
}

// Field is a positioned, typed placeholder on a page.
type Field struct {
	ID         string
	Type       FieldType
	Label      string
	Position   geometry.Percent
	Size       geometry.Size
	PageNumber int
	Value      string
	Assignee   Assignee
}

// Filled reports whether the field carries a value.
func (f Field) Filled() bool {
	return f.Value != ""
}

func (f Field) validate(pages int) error {
	if f.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidField)
	}
	if _, err := ParseFieldType(string(f.Type)); err != nil {
		return err
	}
	if _, err := ParseAssignee(string(f.Assignee)); err != nil {
		return err
	}
	if f.PageNumber < 1 || f.PageNumber > pages {
		return fmt.Errorf("%w: field %s references page %d of %d", ErrInvalidField, f.ID, f.PageNumber, pages)
	}
	for _, v := range []float64{f.Position.X, f.Position.Y, f.Size.W, f.Size.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: field %s has non-finite geometry", ErrInvalidField, f.ID)
		}
	}
	if f.Size.W <= 0 || f.Size.H <= 0 {
		return fmt.Errorf("%w: field %s has empty size", ErrInvalidField, f.ID)
	}
	if f.Position.X < 0 || f.Position.X > 100 || f.Position.Y < 0 || f.Position.Y > 100 {
		return fmt.Errorf("%w: field %s is positioned off the page", ErrInvalidField, f.ID)
	}
	return nil
}
