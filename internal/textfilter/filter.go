// Package textfilter drops field candidates that sit on printed text.
//
// Overlap is measured as intersection over the candidate's own area, not
// IoU: a long text line passing through a small box rejects the box even
// though the line itself is barely covered.
package textfilter

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/a3tai/pdf-field-reconciler/internal/detection"
	"github.com/a3tai/pdf-field-reconciler/internal/geometry"
	"github.com/a3tai/pdf-field-reconciler/internal/pdftext"
)

// DefaultThreshold rejects candidates with 30% or more of their area on text.
const DefaultThreshold = 0.30

// MinRegionSide skips text regions thinner than this in either direction.
const MinRegionSide = 0.001

// Filter removes candidates covered by text.
type Filter struct {
	threshold float64
	log       zerolog.Logger
}

// New builds a Filter. Thresholds outside [0,1] are clamped with a warning;
// NaN falls back to DefaultThreshold.
func New(threshold float64, logger zerolog.Logger) *Filter {
	switch {
	case math.IsNaN(threshold):
		logger.Warn().Float64("default", DefaultThreshold).Msg("text overlap threshold is NaN, using default")
		threshold = DefaultThreshold
	case threshold < 0:
		logger.Warn().Float64("threshold", threshold).Msg("text overlap threshold below 0, clamping to 0")
		threshold = 0
	case threshold > 1:
		logger.Warn().Float64("threshold", threshold).Msg("text overlap threshold above 1, clamping to 1")
		threshold = 1
	}
	return &Filter{threshold: threshold, log: logger.With().Str("component", "textfilter").Logger()}
}

// Threshold returns the effective threshold after clamping.
func (f *Filter) Threshold() float64 {
	return f.threshold
}

// Rejection records a candidate removed by the filter.
type Rejection struct {
	Candidate detection.Candidate
	Overlap   float64
}

// Apply keeps candidates whose text overlap is below the threshold. regions
// maps page index to text boxes on that page. Order is preserved.
func (f *Filter) Apply(cands []detection.Candidate, regions map[int][]geometry.BBox) ([]detection.Candidate, []Rejection) {
	kept := make([]detection.Candidate, 0, len(cands))
	var rejected []Rejection

	for _, c := range cands {
		overlap := c.BBox().OverlapFraction(regions[c.Page()])
		if overlap < f.threshold {
			kept = append(kept, c)
			continue
		}
		rejected = append(rejected, Rejection{Candidate: c, Overlap: overlap})
		f.log.Debug().
			Int("page", c.Page()).
			Str("label", c.Label()).
			Float64("overlap", overlap).
			Float64("threshold", f.threshold).
			Msg("rejected field on printed text")
	}

	f.log.Debug().Int("input", len(cands)).Int("kept", len(kept)).Msg("text overlap filter done")
	return kept, rejected
}

// ApplyFile reads the text of the PDF at path and filters cands against it.
// If the text cannot be read the candidates are returned unfiltered along
// with the error.
func (f *Filter) ApplyFile(ctx context.Context, path string, cands []detection.Candidate) ([]detection.Candidate, []Rejection, error) {
	if len(cands) == 0 {
		return []detection.Candidate{}, nil, nil
	}

	pages, err := pdftext.ReadFile(ctx, path)
	if err != nil {
		f.log.Error().Err(err).Str("path", path).Msg("failed to extract text regions, returning fields unfiltered")
		return cands, nil, err
	}

	kept, rejected := f.Apply(cands, Regions(pages))
	return kept, rejected, nil
}

// Regions turns extracted pages into the per-page region map Apply takes,
// dropping regions too small to matter.
func Regions(pages []pdftext.Page) map[int][]geometry.BBox {
	out := make(map[int][]geometry.BBox, len(pages))
	for _, p := range pages {
		var boxes []geometry.BBox
		for _, b := range p.Boxes() {
			b = b.Clamp()
			if b.Width() < MinRegionSide || b.Height() < MinRegionSide {
				continue
			}
			boxes = append(boxes, b)
		}
		out[p.Index] = boxes
	}
	return out
}
