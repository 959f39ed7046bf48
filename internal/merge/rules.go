package merge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/a3tai/pdf-field-reconciler/internal/detection"
	"github.com/a3tai/pdf-field-reconciler/internal/geometry"
)

// LabelPatternsVersion identifies the generic-label pattern set below.
// Bump it whenever DefaultGenericLabelPrefixes changes.
const LabelPatternsVersion = "2"

// DefaultGenericLabelPrefixes are the placeholder names detectors emit when
// no real label was found. A label is generic when it is one of these
// followed by a single space and a decimal number, e.g. "Text Field 12".
var DefaultGenericLabelPrefixes = []string{
	"Field",
	"Text Field",
	"Checkbox",
	"Signature",
	"Widget",
	"XObject Field",
}

// Checkbox size heuristics, as fractions of the page.
const (
	CheckboxMaxSide   = 0.05
	CheckboxMinAspect = 0.5
	CheckboxMaxAspect = 2.0
)

// LabelMatcher decides whether a label is a synthetic placeholder.
type LabelMatcher struct {
	prefixes []string
	pattern  *regexp.Regexp
}

// NewLabelMatcher builds a matcher for the given prefixes. An empty list
// falls back to DefaultGenericLabelPrefixes.
func NewLabelMatcher(prefixes []string) (*LabelMatcher, error) {
	if len(prefixes) == 0 {
		prefixes = DefaultGenericLabelPrefixes
	}

	quoted := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("generic label prefix cannot be empty")
		}
		quoted = append(quoted, regexp.QuoteMeta(p))
	}

	pattern, err := regexp.Compile(`^(?:` + strings.Join(quoted, "|") + `) [0-9]+$`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile generic label pattern: %w", err)
	}

	return &LabelMatcher{
		prefixes: append([]string(nil), prefixes...),
		pattern:  pattern,
	}, nil
}

var defaultLabels = mustLabelMatcher(DefaultGenericLabelPrefixes)

func mustLabelMatcher(prefixes []string) *LabelMatcher {
	m, err := NewLabelMatcher(prefixes)
	if err != nil {
		panic(err)
	}
	return m
}

// IsGeneric reports whether label is empty, blank, or a placeholder.
func (m *LabelMatcher) IsGeneric(label string) bool {
	if strings.TrimSpace(label) == "" {
		return true
	}
	return m.pattern.MatchString(label)
}

// Prefixes returns a copy of the configured prefixes.
func (m *LabelMatcher) Prefixes() []string {
	return append([]string(nil), m.prefixes...)
}

// IsGenericLabel checks label against the default pattern set.
func IsGenericLabel(label string) bool {
	return defaultLabels.IsGeneric(label)
}

// IsCheckboxSized reports whether a box is small and roughly square.
func IsCheckboxSized(b geometry.BBox) bool {
	if b.Width() > CheckboxMaxSide || b.Height() > CheckboxMaxSide {
		return false
	}
	if b.Height() <= 0 {
		return false
	}
	aspect := b.Width() / b.Height()
	return aspect >= CheckboxMinAspect && aspect <= CheckboxMaxAspect
}

// SameField reports whether two candidates describe the same physical
// field: same page and IoU strictly above the threshold.
func SameField(a, b detection.Candidate, threshold float64) bool {
	return a.Page() == b.Page() && a.IoU(b) > threshold
}

// TypeRule is one entry of the type-override table. When Match returns true
// the keeper's field type becomes Result and evaluation stops. A rule with
// an empty Result pins the keeper's current type.
type TypeRule struct {
	Name        string
	Description string
	Match       func(keeper, donor detection.Candidate) bool
	Result      detection.FieldType
}

// DefaultTypeRules is the ordered override table applied when a lower
// priority donor is absorbed into a keeper. Order matters: the first
// matching rule wins.
var DefaultTypeRules = []TypeRule{
	{
		Name:        "structure_authoritative",
		Description: "native structure widgets keep their declared type",
		Match: func(keeper, _ detection.Candidate) bool {
			return keeper.Source() == detection.SourceStructure
		},
	},
	{
		Name:        "checkbox_over_generic",
		Description: "a checkbox donor replaces an unknown or checkbox-sized text keeper",
		Match: func(keeper, donor detection.Candidate) bool {
			if donor.FieldType() != detection.FieldTypeCheckbox {
				return false
			}
			switch keeper.FieldType() {
			case detection.FieldTypeUnknown:
				return true
			case detection.FieldTypeText:
				return IsCheckboxSized(keeper.BBox())
			}
			return false
		},
		Result: detection.FieldTypeCheckbox,
	},
	{
		Name:        "geometric_signature_over_vision_text",
		Description: "a geometric signature strip replaces a vision text guess",
		Match: func(keeper, donor detection.Candidate) bool {
			return donor.Source() == detection.SourceGeometric &&
				donor.FieldType() == detection.FieldTypeSignature &&
				keeper.Source() == detection.SourceVision &&
				keeper.FieldType() == detection.FieldTypeText
		},
		Result: detection.FieldTypeSignature,
	},
}

// Resolver applies the conflict rules to a keeper and the donor it absorbs.
type Resolver struct {
	Rules  []TypeRule
	Labels *LabelMatcher
}

// DefaultResolver uses DefaultTypeRules and the default label patterns.
func DefaultResolver() Resolver {
	return Resolver{Rules: DefaultTypeRules, Labels: defaultLabels}
}

// Resolution is the outcome of absorbing one donor.
type Resolution struct {
	Keeper        detection.Candidate
	TypeRule      string
	TypeChanged   bool
	LabelInherits bool
}

// Resolve returns the keeper after absorbing donor. The keeper keeps its
// geometry and source; only type, label and confidence can change.
func (r Resolver) Resolve(keeper, donor detection.Candidate) Resolution {
	labels := r.Labels
	if labels == nil {
		labels = defaultLabels
	}

	res := Resolution{Keeper: keeper}

	for _, rule := range r.Rules {
		if rule.Match == nil || !rule.Match(keeper, donor) {
			continue
		}
		res.TypeRule = rule.Name
		if rule.Result != "" && rule.Result != keeper.FieldType() {
			res.Keeper = res.Keeper.WithFieldType(rule.Result)
			res.TypeChanged = true
		}
		break
	}

	if labels.IsGeneric(keeper.Label()) && !labels.IsGeneric(donor.Label()) {
		res.Keeper = res.Keeper.WithLabel(donor.Label())
		res.LabelInherits = true
	}

	if donor.Confidence() > res.Keeper.Confidence() {
		res.Keeper = res.Keeper.WithConfidence(donor.Confidence())
	}

	return res
}
