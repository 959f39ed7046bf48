package structure

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/a3tai/pdf-field-reconciler/internal/geometry"
	"github.com/a3tai/pdf-field-reconciler/internal/pdftext"
)

const (
	// LabelSearchDistance is how far left of or above a widget printed text
	// is considered its label, as a fraction of the page.
	LabelSearchDistance = 0.15
	maxLabelRunes       = 100
)

// inferLabel returns the text left of box, or failing that the text above
// it. Empty when neither cleans up to a usable label.
func inferLabel(box geometry.BBox, runs []pdftext.Run) string {
	left := geometry.FromRect(max(0, box.X()-LabelSearchDistance), box.Y(), box.X(), box.Top())
	if s := cleanLabel(textIn(left, runs)); s != "" {
		return s
	}
	above := geometry.FromRect(box.X(), box.Top(), box.Right(), min(1, box.Top()+LabelSearchDistance))
	return cleanLabel(textIn(above, runs))
}

// textIn joins, in reading order, every run touching region.
func textIn(region geometry.BBox, runs []pdftext.Run) string {
	var hits []pdftext.Run
	for _, r := range runs {
		if region.IntersectionArea(r.Box) > 0 {
			hits = append(hits, r)
		}
	}
	slices.SortStableFunc(hits, func(a, b pdftext.Run) int {
		if c := cmp.Compare(b.Box.Y(), a.Box.Y()); c != 0 {
			return c
		}
		return cmp.Compare(a.Box.X(), b.Box.X())
	})

	parts := make([]string, len(hits))
	for i, r := range hits {
		parts[i] = r.Text
	}
	return strings.Join(parts, " ")
}

// cleanLabel collapses whitespace, drops trailing colons and caps length.
// Labels shorter than two characters or made only of punctuation are
// rejected.
func cleanLabel(s string) string {
	label := strings.Join(strings.Fields(s), " ")
	label = strings.TrimRight(label, ":")
	label = strings.TrimSpace(label)

	if utf8.RuneCountInString(label) > maxLabelRunes {
		label = strings.TrimSpace(string([]rune(label)[:maxLabelRunes]))
	}
	if utf8.RuneCountInString(label) < 2 {
		return ""
	}
	if strings.Trim(label, ".:;,!?-_") == "" {
		return ""
	}
	return label
}
