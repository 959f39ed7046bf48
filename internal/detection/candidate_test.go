package detection

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-field-reconciler/internal/geometry"
)

func TestSourceRank(t *testing.T) {
	assert.True(t, SourceStructure.Outranks(SourceGeometric))
	assert.True(t, SourceGeometric.Outranks(SourceVision))
	assert.True(t, SourceVision.Outranks(SourceAcroForm))
	assert.True(t, SourceAcroForm.Outranks(SourceMerged))
	assert.False(t, SourceVision.Outranks(SourceVision))
	assert.False(t, SourceVision.Outranks(SourceStructure))

	assert.Equal(t, len(Sources), Source("bogus").Rank())
	assert.True(t, SourceStructure.IsInput())
	assert.False(t, SourceMerged.IsInput())
	assert.False(t, Source("bogus").IsInput())
}

func TestParseSource(t *testing.T) {
	src, err := ParseSource(" Vision ")
	require.NoError(t, err)
	assert.Equal(t, SourceVision, src)

	_, err = ParseSource("ocr")
	assert.True(t, errors.Is(err, ErrUnknownSource))
}

func TestParseFieldType(t *testing.T) {
	for _, ft := range FieldTypes {
		parsed, err := ParseFieldType(string(ft))
		require.NoError(t, err)
		assert.Equal(t, ft, parsed)
	}

	ft, err := ParseFieldType("radio")
	assert.True(t, errors.Is(err, ErrUnknownFieldType))
	assert.Equal(t, FieldTypeUnknown, ft)
}

func TestCandidateIsValue(t *testing.T) {
	box := geometry.NewBBox(0.1, 0.1, 0.3, 0.05)
	original := New(0, box, FieldTypeText, "Field 1", 0.9, SourceGeometric)

	relabeled := original.WithLabel("Name")
	retyped := original.WithFieldType(FieldTypeCheckbox)

	assert.Equal(t, "Field 1", original.Label())
	assert.Equal(t, FieldTypeText, original.FieldType())
	assert.Equal(t, "Name", relabeled.Label())
	assert.Equal(t, FieldTypeCheckbox, retyped.FieldType())

	assert.True(t, original.Equal(New(0, box, FieldTypeText, "Field 1", 0.9, SourceGeometric)))
	assert.False(t, original.Equal(relabeled))
	assert.InDelta(t, 1.0, original.IoU(relabeled), 1e-9)
}

func TestCandidateJSON(t *testing.T) {
	c := New(2, geometry.NewBBox(0.1, 0.2, 0.3, 0.04), FieldTypeDate, "Date of Birth", 0.8, SourceVision).
		WithTemplateKey("dob")

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []Candidate{c}))
	assert.JSONEq(t, `[{
		"page_index": 2,
		"bbox": {"x": 0.1, "y": 0.2, "width": 0.3, "height": 0.04},
		"field_type": "date",
		"label": "Date of Birth",
		"confidence": 0.8,
		"source": "vision",
		"template_key": "dob"
	}]`, buf.String())

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, c, decoded[0])
}

func TestDecodeRejectsUnknownVocabulary(t *testing.T) {
	_, err := DecodeString(`[{"page_index":0,"bbox":{"x":0,"y":0,"width":0.1,"height":0.1},"field_type":"radio","source":"vision"}]`)
	assert.True(t, errors.Is(err, ErrUnknownFieldType))

	_, err = DecodeString(`[{"page_index":0,"bbox":{"x":0,"y":0,"width":0.1,"height":0.1},"field_type":"text","source":"ocr"}]`)
	assert.True(t, errors.Is(err, ErrUnknownSource))
}

func TestDecodeEmpty(t *testing.T) {
	cands, err := DecodeString("")
	require.NoError(t, err)
	assert.Empty(t, cands)
	assert.NotNil(t, cands)

	cands, err = DecodeString("null")
	require.NoError(t, err)
	assert.NotNil(t, cands)

	cands, err = Decode(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geometric.json")
	content := `[{"page_index":0,"bbox":{"x":0.2,"y":0.2,"width":0.05,"height":0.05},"field_type":"checkbox","label":"Field 1","confidence":0.7,"source":"geometric"}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cands, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, FieldTypeCheckbox, cands[0].FieldType())
	assert.Equal(t, SourceGeometric, cands[0].Source())
	assert.Empty(t, cands[0].TemplateKey())

	cands, err = ReadFile("")
	require.NoError(t, err)
	assert.Empty(t, cands)

	_, err = ReadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
