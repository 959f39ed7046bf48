package detection

import (
	"encoding/json"
	"fmt"

	"github.com/a3tai/pdf-field-reconciler/internal/geometry"
)

// Candidate is one field proposal from a single detector. It is a value
// type: every modifier returns a new Candidate and == compares structurally.
type Candidate struct {
	page        int
	bbox        geometry.BBox
	fieldType   FieldType
	label       string
	confidence  float64
	source      Source
	templateKey string
}

// New creates a candidate. Page indexes are zero-based.
func New(page int, bbox geometry.BBox, fieldType FieldType, label string, confidence float64, source Source) Candidate {
	return Candidate{
		page:       page,
		bbox:       bbox,
		fieldType:  fieldType,
		label:      label,
		confidence: confidence,
		source:     source,
	}
}

// Page returns the zero-based page index.
func (c Candidate) Page() int { return c.page }

// BBox returns the normalized bounding box.
func (c Candidate) BBox() geometry.BBox { return c.bbox }

// FieldType returns the semantic field type.
func (c Candidate) FieldType() FieldType { return c.fieldType }

// Label returns the human-readable label, possibly a generic placeholder.
func (c Candidate) Label() string { return c.label }

// Confidence returns the detector confidence in [0,1].
func (c Candidate) Confidence() float64 { return c.confidence }

// Source returns the detector that produced the candidate.
func (c Candidate) Source() Source { return c.source }

// TemplateKey returns the optional template key, empty when unset.
func (c Candidate) TemplateKey() string { return c.templateKey }

// Equal reports whether every attribute of c and o matches.
func (c Candidate) Equal(o Candidate) bool { return c == o }

// IoU returns the intersection over union of the two boxes, ignoring pages.
func (c Candidate) IoU(o Candidate) float64 { return c.bbox.IoU(o.bbox) }

// WithBBox returns a copy with a different box.
func (c Candidate) WithBBox(b geometry.BBox) Candidate {
	c.bbox = b
	return c
}

// WithFieldType returns a copy with a different field type.
func (c Candidate) WithFieldType(ft FieldType) Candidate {
	c.fieldType = ft
	return c
}

// WithLabel returns a copy with a different label.
func (c Candidate) WithLabel(label string) Candidate {
	c.label = label
	return c
}

// WithConfidence returns a copy with a different confidence.
func (c Candidate) WithConfidence(confidence float64) Candidate {
	c.confidence = confidence
	return c
}

// WithSource returns a copy with a different source tag.
func (c Candidate) WithSource(s Source) Candidate {
	c.source = s
	return c
}

// WithTemplateKey returns a copy carrying a template key.
func (c Candidate) WithTemplateKey(key string) Candidate {
	c.templateKey = key
	return c
}

// String implements fmt.Stringer.
func (c Candidate) String() string {
	return fmt.Sprintf("%s %s %q p%d %s conf=%.2f", c.source, c.fieldType, c.label, c.page, c.bbox, c.confidence)
}

type candidateJSON struct {
	PageIndex   int           `json:"page_index"`
	BBox        geometry.BBox `json:"bbox"`
	FieldType   FieldType     `json:"field_type"`
	Label       string        `json:"label"`
	Confidence  float64       `json:"confidence"`
	Source      Source        `json:"source"`
	TemplateKey *string       `json:"template_key"`
}

// MarshalJSON implements json.Marshaler.
func (c Candidate) MarshalJSON() ([]byte, error) {
	out := candidateJSON{
		PageIndex:  c.page,
		BBox:       c.bbox,
		FieldType:  c.fieldType,
		Label:      c.label,
		Confidence: c.confidence,
		Source:     c.source,
	}
	if c.templateKey != "" {
		key := c.templateKey
		out.TemplateKey = &key
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Field type and source must
// name known values; geometry is accepted as-is.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var raw candidateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode candidate: %w", err)
	}

	ft := FieldTypeUnknown
	if raw.FieldType != "" {
		parsed, err := ParseFieldType(string(raw.FieldType))
		if err != nil {
			return err
		}
		ft = parsed
	}

	src, err := ParseSource(string(raw.Source))
	if err != nil {
		return err
	}

	*c = New(raw.PageIndex, raw.BBox, ft, raw.Label, raw.Confidence, src)
	if raw.TemplateKey != nil {
		c.templateKey = *raw.TemplateKey
	}
	return nil
}
