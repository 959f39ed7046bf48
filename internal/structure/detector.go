// Package structure finds form fields declared in the PDF itself: widget
// annotations with a field type, read through pdfcpu.
package structure

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog"

	"github.com/a3tai/pdf-field-reconciler/internal/detection"
	"github.com/a3tai/pdf-field-reconciler/internal/geometry"
	"github.com/a3tai/pdf-field-reconciler/internal/pdftext"
)

// Field flag bits (PDF 32000-1, 12.7.4).
const (
	flagMultiline  = 1 << 12
	flagRadio      = 1 << 15
	flagPushbutton = 1 << 16
)

const (
	// DefaultConfidence is assigned to native widgets.
	DefaultConfidence = 0.98
	// MinSide drops widgets thinner than this after normalization.
	MinSide = 0.001
	// DuplicateIoU collapses widgets declared twice at the same place.
	DuplicateIoU = 0.5
	// maxParentDepth bounds the walk up the field tree.
	maxParentDepth = 32
)

// Config controls a Detector.
type Config struct {
	// InferLabels looks for printed text left of or above widgets that
	// carry no name.
	InferLabels bool
	// Confidence overrides DefaultConfidence when positive.
	Confidence float64
}

// Detector turns widget annotations into Structure candidates.
type Detector struct {
	inferLabels bool
	confidence  float64
	log         zerolog.Logger
}

// New creates a Detector.
func New(cfg Config, logger zerolog.Logger) *Detector {
	conf := cfg.Confidence
	if conf <= 0 || conf > 1 {
		conf = DefaultConfidence
	}
	return &Detector{
		inferLabels: cfg.InferLabels,
		confidence:  conf,
		log:         logger.With().Str("component", "structure").Logger(),
	}
}

// DetectFile detects widgets in the PDF at path.
func (d *Detector) DetectFile(ctx context.Context, path string) ([]detection.Candidate, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer file.Close()

	var text []pdftext.Page
	if d.inferLabels {
		text, err = pdftext.ReadFile(ctx, path)
		if err != nil {
			d.log.Warn().Err(err).Str("path", path).Msg("text unavailable, widget labels will not be inferred")
			text = nil
		}
	}

	return d.Detect(ctx, file, text)
}

// Detect reads widgets from rs. text, when non-nil, is used to infer
// labels for unnamed widgets.
func (d *Detector) Detect(ctx context.Context, rs io.ReadSeeker, text []pdftext.Page) ([]detection.Candidate, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}

	var out []detection.Candidate
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var runs []pdftext.Run
		if pageNr-1 < len(text) {
			runs = text[pageNr-1].Runs
		}

		found, err := d.page(pdfCtx, pageNr, runs)
		if err != nil {
			d.log.Warn().Err(err).Int("page", pageNr-1).Msg("skipping page")
			continue
		}
		d.log.Debug().Int("page", pageNr-1).Int("widgets", len(found)).Msg("widget annotations")
		out = append(out, found...)
	}

	out = dedupe(out)
	d.log.Debug().Int("fields", len(out)).Msg("structure detection done")
	return out, nil
}

func (d *Detector) page(pdfCtx *model.Context, pageNr int, runs []pdftext.Run) ([]detection.Candidate, error) {
	pageDict, _, inherited, err := pdfCtx.PageDict(pageNr, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %d: %w", pageNr, err)
	}
	if pageDict == nil {
		return nil, nil
	}

	media := mediaBox(inherited)

	annotsObj, found := pageDict.Find("Annots")
	if !found {
		return nil, nil
	}
	annots, err := pdfCtx.DereferenceArray(annotsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Annots: %w", err)
	}

	var out []detection.Candidate
	for _, obj := range annots {
		annot, err := pdfCtx.DereferenceDict(obj)
		if err != nil || annot == nil {
			continue
		}
		if name(pdfCtx, annot, "Subtype") != "Widget" {
			continue
		}

		ft, ok := fieldType(pdfCtx, annot)
		if !ok {
			continue
		}

		box, ok := widgetBox(pdfCtx, annot, media)
		if !ok {
			d.log.Debug().Int("page", pageNr-1).Msg("widget without usable Rect")
			continue
		}

		label := widgetLabel(pdfCtx, annot)
		if label == "" && runs != nil {
			label = inferLabel(box, runs)
		}
		if label == "" {
			label = fmt.Sprintf("Widget %d", len(out)+1)
		}

		out = append(out, detection.New(pageNr-1, box, ft, label, d.confidence, detection.SourceStructure))
	}
	return out, nil
}

// mediaBox falls back to US Letter when the page tree has none.
func mediaBox(inherited *model.InheritedPageAttrs) *types.Rectangle {
	if inherited != nil && inherited.MediaBox != nil &&
		inherited.MediaBox.Width() > 0 && inherited.MediaBox.Height() > 0 {
		return inherited.MediaBox
	}
	return types.NewRectangle(0, 0, pdftext.DefaultPageWidth, pdftext.DefaultPageHeight)
}

// fieldType maps FT and Ff, inherited through Parent, to a field type.
// Pushbuttons are not fillable and report false.
func fieldType(pdfCtx *model.Context, annot types.Dict) (detection.FieldType, bool) {
	flags := integer(pdfCtx, annot, "Ff")

	switch name(pdfCtx, annot, "FT") {
	case "Btn":
		if flags&flagPushbutton != 0 {
			return "", false
		}
		// Radio buttons fill like checkboxes.
		return detection.FieldTypeCheckbox, true
	case "Tx":
		if flags&flagMultiline != 0 {
			return detection.FieldTypeMultiline, true
		}
		return detection.FieldTypeText, true
	case "Ch":
		return detection.FieldTypeText, true
	case "Sig":
		return detection.FieldTypeSignature, true
	default:
		return detection.FieldTypeUnknown, true
	}
}

func widgetBox(pdfCtx *model.Context, annot types.Dict, media *types.Rectangle) (geometry.BBox, bool) {
	rectObj, found := annot.Find("Rect")
	if !found {
		return geometry.BBox{}, false
	}
	arr, err := pdfCtx.DereferenceArray(rectObj)
	if err != nil || len(arr) != 4 {
		return geometry.BBox{}, false
	}

	var c [4]float64
	for i, o := range arr {
		f, err := pdfCtx.DereferenceNumber(o)
		if err != nil {
			return geometry.BBox{}, false
		}
		c[i] = f
	}

	w, h := media.Width(), media.Height()
	box := geometry.FromRect(
		(math.Min(c[0], c[2])-media.LL.X)/w,
		(math.Min(c[1], c[3])-media.LL.Y)/h,
		(math.Max(c[0], c[2])-media.LL.X)/w,
		(math.Max(c[1], c[3])-media.LL.Y)/h,
	).Clamp()

	if !box.IsFinite() || box.Width() < MinSide || box.Height() < MinSide {
		return geometry.BBox{}, false
	}
	return box, true
}

// widgetLabel prefers the tooltip, which is meant for people, over the
// partial field name.
func widgetLabel(pdfCtx *model.Context, annot types.Dict) string {
	for _, key := range []string{"TU", "T"} {
		if s := cleanLabel(text(pdfCtx, annot, key)); s != "" {
			return s
		}
	}
	return ""
}

// lookup finds key on the dict or the nearest ancestor field.
func lookup(pdfCtx *model.Context, d types.Dict, key string) (types.Object, bool) {
	for depth := 0; d != nil && depth < maxParentDepth; depth++ {
		if obj, found := d.Find(key); found {
			return obj, true
		}
		parentObj, found := d.Find("Parent")
		if !found {
			return nil, false
		}
		parent, err := pdfCtx.DereferenceDict(parentObj)
		if err != nil {
			return nil, false
		}
		d = parent
	}
	return nil, false
}

func name(pdfCtx *model.Context, d types.Dict, key string) string {
	obj, found := lookup(pdfCtx, d, key)
	if !found {
		return ""
	}
	n, err := pdfCtx.DereferenceName(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return string(n)
}

func text(pdfCtx *model.Context, d types.Dict, key string) string {
	obj, found := lookup(pdfCtx, d, key)
	if !found {
		return ""
	}
	s, err := pdfCtx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return s
}

func integer(pdfCtx *model.Context, d types.Dict, key string) int {
	obj, found := lookup(pdfCtx, d, key)
	if !found {
		return 0
	}
	i, err := pdfCtx.DereferenceInteger(obj)
	if err != nil || i == nil {
		return 0
	}
	return int(*i)
}

// dedupe drops widgets that repeat a higher-confidence widget on the same
// page. Survivors keep their relative order.
func dedupe(cands []detection.Candidate) []detection.Candidate {
	idx := make([]int, len(cands))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(cands[b].Confidence(), cands[a].Confidence())
	})

	keep := make([]bool, len(cands))
	var kept []detection.Candidate
	for _, i := range idx {
		c := cands[i]
		dup := slices.ContainsFunc(kept, func(k detection.Candidate) bool {
			return k.Page() == c.Page() && k.IoU(c) > DuplicateIoU
		})
		if !dup {
			keep[i] = true
			kept = append(kept, c)
		}
	}

	out := make([]detection.Candidate, 0, len(kept))
	for i, c := range cands {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}
