package textfilter

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-field-reconciler/internal/detection"
	"github.com/a3tai/pdf-field-reconciler/internal/geometry"
	"github.com/a3tai/pdf-field-reconciler/internal/pdftest"
	"github.com/a3tai/pdf-field-reconciler/internal/pdftext"
)

func field(page int, x, y, w, h float64, label string) detection.Candidate {
	return detection.New(page, geometry.NewBBox(x, y, w, h), detection.FieldTypeText, label, 0.9, detection.SourceVision)
}

func TestNewClampsThreshold(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
		warn bool
	}{
		{0.3, 0.3, false},
		{0, 0, false},
		{1, 1, false},
		{-0.5, 0, true},
		{1.5, 1, true},
		{math.NaN(), DefaultThreshold, true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		f := New(tt.in, zerolog.New(&buf))
		assert.Equal(t, tt.want, f.Threshold())
		assert.Equal(t, tt.warn, bytes.Contains(buf.Bytes(), []byte(`"level":"warn"`)), "threshold %v", tt.in)
	}
}

func TestApply(t *testing.T) {
	regions := map[int][]geometry.BBox{
		0: {geometry.NewBBox(0.1, 0.8, 0.4, 0.02)},
		1: {geometry.NewBBox(0.5, 0.5, 0.1, 0.1)},
	}
	onText := field(0, 0.1, 0.8, 0.2, 0.02, "on text")
	partial := field(0, 0.45, 0.8, 0.2, 0.02, "quarter covered")
	blank := field(0, 0.1, 0.5, 0.3, 0.03, "blank line")
	otherPage := field(1, 0.1, 0.8, 0.2, 0.02, "other page")
	noText := field(2, 0.5, 0.5, 0.1, 0.1, "no text on page")

	f := New(DefaultThreshold, zerolog.Nop())
	kept, rejected := f.Apply([]detection.Candidate{onText, partial, blank, otherPage, noText}, regions)

	assert.Equal(t, []detection.Candidate{partial, blank, otherPage, noText}, kept)
	require.Len(t, rejected, 1)
	assert.Equal(t, onText, rejected[0].Candidate)
	assert.InDelta(t, 1.0, rejected[0].Overlap, 1e-9)
}

func TestApplyThresholdIsInclusive(t *testing.T) {
	regions := map[int][]geometry.BBox{0: {geometry.NewBBox(0, 0, 0.25, 1)}}
	c := field(0, 0, 0.5, 1, 0.25, "quarter")

	kept, _ := New(0.25, zerolog.Nop()).Apply([]detection.Candidate{c}, regions)
	assert.Empty(t, kept)

	kept, _ = New(0.26, zerolog.Nop()).Apply([]detection.Candidate{c}, regions)
	assert.Len(t, kept, 1)
}

func TestApplyZeroThresholdRejectsEverything(t *testing.T) {
	c := field(0, 0.1, 0.1, 0.1, 0.1, "anything")
	kept, rejected := New(0, zerolog.Nop()).Apply([]detection.Candidate{c}, nil)
	assert.Empty(t, kept)
	assert.Len(t, rejected, 1)
}

func TestRegionsDropsSlivers(t *testing.T) {
	pages := []pdftext.Page{
		{Index: 0, Runs: []pdftext.Run{
			{Text: "Name", Box: geometry.NewBBox(0.1, 0.8, 0.1, 0.02)},
			{Text: "|", Box: geometry.NewBBox(0.5, 0.8, 0.0005, 0.02)},
			{Text: "Edge", Box: geometry.NewBBox(0.95, 0.8, 0.1, 0.02)},
		}},
		{Index: 1},
	}

	regions := Regions(pages)

	require.Len(t, regions[0], 2)
	assert.InDelta(t, 0.05, regions[0][1].Width(), 1e-9)
	assert.Empty(t, regions[1])
}

func TestApplyFile(t *testing.T) {
	path := pdftest.WriteFile(t, pdftest.Page{Text: []pdftest.Text{
		{X: 72, Y: 700, Size: 12, S: "Applicant information"},
	}})

	onText := field(0, 72.0/612, 700.0/792, 0.1, 12.0/792, "heading")
	blank := field(0, 0.3, 0.5, 0.3, 0.03, "Name")

	f := New(DefaultThreshold, zerolog.Nop())
	kept, rejected, err := f.ApplyFile(context.Background(), path, []detection.Candidate{onText, blank})

	require.NoError(t, err)
	assert.Equal(t, []detection.Candidate{blank}, kept)
	require.Len(t, rejected, 1)
	assert.Equal(t, "heading", rejected[0].Candidate.Label())
}

func TestApplyFileUnreadable(t *testing.T) {
	c := field(0, 0.1, 0.1, 0.1, 0.1, "keep")
	f := New(DefaultThreshold, zerolog.Nop())

	kept, rejected, err := f.ApplyFile(context.Background(), "/nonexistent.pdf", []detection.Candidate{c})
	assert.Error(t, err)
	assert.Equal(t, []detection.Candidate{c}, kept)
	assert.Empty(t, rejected)

	kept, _, err = f.ApplyFile(context.Background(), "/nonexistent.pdf", nil)
	assert.NoError(t, err)
	assert.Empty(t, kept)
}
