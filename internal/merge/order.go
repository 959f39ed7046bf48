package merge

import (
	"cmp"
	"slices"

	"github.com/a3tai/pdf-field-reconciler/internal/detection"
)

// Sort returns a copy of cands in reading order: ascending page, then
// descending bbox y (top of the page first, since y grows upward), then
// ascending bbox x. Equal keys keep their input order.
//
// Form rendering downstream depends on this order; changing it is a
// breaking change.
func Sort(cands []detection.Candidate) []detection.Candidate {
	out := slices.Clone(cands)
	if out == nil {
		out = []detection.Candidate{}
	}
	slices.SortStableFunc(out, compareReadingOrder)
	return out
}

func compareReadingOrder(a, b detection.Candidate) int {
	if c := cmp.Compare(a.Page(), b.Page()); c != 0 {
		return c
	}
	if c := cmp.Compare(b.BBox().Y(), a.BBox().Y()); c != 0 {
		return c
	}
	return cmp.Compare(a.BBox().X(), b.BBox().X())
}

// Overlap names two same-page candidates whose IoU exceeds a threshold.
type Overlap struct {
	I, J int
	IoU  float64
}

// ResidualOverlaps lists every same-page pair in cands with IoU above the
// threshold. Merger output never has any.
func ResidualOverlaps(cands []detection.Candidate, threshold float64) []Overlap {
	var out []Overlap
	for i := range cands {
		for j := i + 1; j < len(cands); j++ {
			if SameField(cands[i], cands[j], threshold) {
				out = append(out, Overlap{I: i, J: j, IoU: cands[i].IoU(cands[j])})
			}
		}
	}
	return out
}
