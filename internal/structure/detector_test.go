package structure

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-field-reconciler/internal/detection"
	"github.com/a3tai/pdf-field-reconciler/internal/geometry"
	"github.com/a3tai/pdf-field-reconciler/internal/pdftest"
	"github.com/a3tai/pdf-field-reconciler/internal/pdftext"
)

func TestNew(t *testing.T) {
	d := New(Config{}, zerolog.Nop())
	assert.Equal(t, DefaultConfidence, d.confidence)
	assert.False(t, d.inferLabels)

	d = New(Config{Confidence: 0.9, InferLabels: true}, zerolog.Nop())
	assert.Equal(t, 0.9, d.confidence)
	assert.True(t, d.inferLabels)

	d = New(Config{Confidence: 3}, zerolog.Nop())
	assert.Equal(t, DefaultConfidence, d.confidence)
}

func TestDetectFileWidgets(t *testing.T) {
	path := pdftest.WriteFile(t,
		pdftest.Page{Widgets: []pdftest.Widget{
			{Rect: [4]float64{72, 700, 300, 720}, FT: "Tx", T: "full_name", TU: "Full Name"},
			{Rect: [4]float64{72, 600, 300, 660}, FT: "Tx", Ff: flagMultiline, T: "notes"},
			{Rect: [4]float64{72, 500, 84, 512}, FT: "Btn", T: "agree"},
			{Rect: [4]float64{100, 500, 112, 512}, FT: "Btn", Ff: flagRadio, T: "choice"},
			{Rect: [4]float64{200, 500, 260, 520}, FT: "Btn", Ff: flagPushbutton, T: "submit"},
			{Rect: [4]float64{72, 400, 200, 420}, FT: "Ch", T: "state"},
			{Rect: [4]float64{300, 400, 400, 430}, FT: "Sig", T: "sig"},
			{Rect: [4]float64{300, 300, 400, 320}, Subtype: "Link"},
		}},
		pdftest.Page{Width: 300, Height: 400, Widgets: []pdftest.Widget{
			{Rect: [4]float64{150, 300, 30, 200}, FT: "Tx", InheritFT: true},
		}},
	)

	cands, err := New(Config{}, zerolog.Nop()).DetectFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, cands, 7)

	want := []struct {
		page  int
		ft    detection.FieldType
		label string
	}{
		{0, detection.FieldTypeText, "Full Name"},
		{0, detection.FieldTypeMultiline, "notes"},
		{0, detection.FieldTypeCheckbox, "agree"},
		{0, detection.FieldTypeCheckbox, "choice"},
		{0, detection.FieldTypeText, "state"},
		{0, detection.FieldTypeSignature, "sig"},
		{1, detection.FieldTypeText, "Widget 1"},
	}
	for i, w := range want {
		assert.Equal(t, w.page, cands[i].Page(), "field %d", i)
		assert.Equal(t, w.ft, cands[i].FieldType(), "field %d", i)
		assert.Equal(t, w.label, cands[i].Label(), "field %d", i)
		assert.Equal(t, detection.SourceStructure, cands[i].Source())
		assert.Equal(t, DefaultConfidence, cands[i].Confidence())
	}

	first := cands[0].BBox()
	assert.InDelta(t, 72.0/612, first.X(), 1e-9)
	assert.InDelta(t, 700.0/792, first.Y(), 1e-9)
	assert.InDelta(t, 228.0/612, first.Width(), 1e-9)
	assert.InDelta(t, 20.0/792, first.Height(), 1e-9)

	flipped := cands[6].BBox()
	assert.InDelta(t, 0.1, flipped.X(), 1e-9)
	assert.InDelta(t, 0.5, flipped.Y(), 1e-9)
	assert.InDelta(t, 0.4, flipped.Width(), 1e-9)
	assert.InDelta(t, 0.25, flipped.Height(), 1e-9)
}

func TestDetectFileInfersLabels(t *testing.T) {
	path := pdftest.WriteFile(t, pdftest.Page{
		Text: []pdftest.Text{
			{X: 72, Y: 704, Size: 12, S: "Email:"},
			{X: 300, Y: 630, Size: 12, S: "Phone number"},
		},
		Widgets: []pdftest.Widget{
			{Rect: [4]float64{120, 700, 280, 720}, FT: "Tx"},
			{Rect: [4]float64{300, 600, 450, 620}, FT: "Tx"},
			{Rect: [4]float64{300, 200, 450, 220}, FT: "Tx"},
		},
	})

	with, err := New(Config{InferLabels: true}, zerolog.Nop()).DetectFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, with, 3)
	assert.Equal(t, "Email", with[0].Label())
	assert.Equal(t, "Phone number", with[1].Label())
	assert.Equal(t, "Widget 3", with[2].Label())

	without, err := New(Config{}, zerolog.Nop()).DetectFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Widget 1", without[0].Label())
}

func TestDetectFileDedupesRepeatedWidgets(t *testing.T) {
	path := pdftest.WriteFile(t, pdftest.Page{Widgets: []pdftest.Widget{
		{Rect: [4]float64{72, 700, 300, 720}, FT: "Tx", T: "first"},
		{Rect: [4]float64{73, 700, 300, 720}, FT: "Tx", T: "second"},
	}})

	cands, err := New(Config{}, zerolog.Nop()).DetectFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "first", cands[0].Label())
}

func TestDetectFileNoWidgets(t *testing.T) {
	path := pdftest.WriteFile(t, pdftest.Page{})

	cands, err := New(Config{}, zerolog.Nop()).DetectFile(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestDetectErrors(t *testing.T) {
	d := New(Config{}, zerolog.Nop())

	_, err := d.DetectFile(context.Background(), "/nonexistent/form.pdf")
	assert.Error(t, err)

	_, err = d.Detect(context.Background(), strings.NewReader("not a pdf"), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Detect(ctx, bytes.NewReader(pdftest.Build(pdftest.Page{})), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Name:", "Name"},
		{"  Date   of\nBirth : ", "Date of Birth"},
		{"X", ""},
		{"...", ""},
		{"-_-", ""},
		{"", ""},
		{strings.Repeat("a", 150), strings.Repeat("a", 100)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanLabel(tt.in), "input %q", tt.in)
	}
}

func TestInferLabelPrefersLeft(t *testing.T) {
	box := geometry.NewBBox(0.3, 0.5, 0.3, 0.03)
	runs := []pdftext.Run{
		{Text: "Above", Box: geometry.NewBBox(0.3, 0.55, 0.1, 0.015)},
		{Text: "Left:", Box: geometry.NewBBox(0.2, 0.505, 0.08, 0.015)},
		{Text: "Far left", Box: geometry.NewBBox(0.0, 0.505, 0.1, 0.015)},
	}

	assert.Equal(t, "Left", inferLabel(box, runs))
	assert.Equal(t, "Above", inferLabel(box, runs[:1]))
	assert.Equal(t, "", inferLabel(box, runs[2:]))
}
