// Package detection defines the form-field candidate every detector emits
// and the closed vocabularies it is built from.
package detection

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownFieldType is returned when parsing an unrecognized field type.
	ErrUnknownFieldType = errors.New("unknown field type")
	// ErrUnknownSource is returned when parsing an unrecognized detection source.
	ErrUnknownSource = errors.New("unknown detection source")
)

// FieldType is the semantic kind of a form field
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeMultiline FieldType = "multiline"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeDate      FieldType = "date"
	FieldTypeNumber    FieldType = "number"
	FieldTypeSignature FieldType = "signature"
	FieldTypeUnknown   FieldType = "unknown"
)

// FieldTypes lists every field type in declaration order.
var FieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeMultiline,
	FieldTypeCheckbox,
	FieldTypeDate,
	FieldTypeNumber,
	FieldTypeSignature,
	FieldTypeUnknown,
}

// ParseFieldType converts a case-insensitive name into a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	ft := FieldType(strings.ToLower(strings.TrimSpace(s)))
	if ft.Valid() {
		return ft, nil
	}
	return FieldTypeUnknown, fmt.Errorf("%w: %q", ErrUnknownFieldType, s)
}

// Valid reports whether ft is one of the declared field types.
func (ft FieldType) Valid() bool {
	for _, known := range FieldTypes {
		if ft == known {
			return true
		}
	}
	return false
}

// Source identifies which detector produced a candidate
type Source string

const (
	SourceStructure Source = "structure"
	SourceGeometric Source = "geometric"
	SourceVision    Source = "vision"
	SourceAcroForm  Source = "acroform"
	// SourceMerged only ever tags merger output.
	SourceMerged Source = "merged"
)

// Sources lists every source from highest to lowest priority.
var Sources = []Source{
	SourceStructure,
	SourceGeometric,
	SourceVision,
	SourceAcroForm,
	SourceMerged,
}

// ParseSource converts a case-insensitive name into a Source.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	if src.Rank() < len(Sources) {
		return src, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Rank returns the position of s in the priority order, 0 being the most
// trusted. Unknown sources rank after every known one.
func (s Source) Rank() int {
	for i, known := range Sources {
		if s == known {
			return i
		}
	}
	return len(Sources)
}

// Outranks reports whether s has strictly higher priority than other.
func (s Source) Outranks(other Source) bool {
	return s.Rank() < other.Rank()
}

// IsInput reports whether s may appear on a detector's output.
func (s Source) IsInput() bool {
	return s != SourceMerged && s.Rank() < len(Sources)
}
