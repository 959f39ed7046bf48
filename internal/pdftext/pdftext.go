// Package pdftext reads positioned text from PDF pages and groups glyphs
// into runs with normalized bounding boxes.
package pdftext

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/a3tai/pdf-field-reconciler/internal/geometry"
)

// US Letter, used when a page has no usable MediaBox.
const (
	DefaultPageWidth  = 612.0
	DefaultPageHeight = 792.0
)

// Run is a horizontal sequence of glyphs sharing a baseline and font size.
type Run struct {
	Text string
	Box  geometry.BBox
}

// Page holds the runs of one page, in content stream order.
type Page struct {
	Index  int
	Width  float64
	Height float64
	Runs   []Run
	// Err is set when the page content could not be decoded.
	Err error
}

// Boxes returns the run boxes, skipping blank runs.
func (p Page) Boxes() []geometry.BBox {
	out := make([]geometry.BBox, 0, len(p.Runs))
	for _, r := range p.Runs {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		out = append(out, r.Box)
	}
	return out
}

// ReadFile extracts text runs from every page of the PDF at path. Pages are
// zero-indexed in the result. A page whose content stream is broken gets an
// empty run list and a non-nil Err; the rest of the document still loads.
func ReadFile(ctx context.Context, path string) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pages := make([]Page, 0, r.NumPage())
	for n := 1; n <= r.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, readPage(r.Page(n), n-1))
	}
	return pages, nil
}

func readPage(p pdf.Page, index int) (page Page) {
	page = Page{Index: index, Width: DefaultPageWidth, Height: DefaultPageHeight}
	if p.V.IsNull() {
		page.Err = fmt.Errorf("page %d is missing", index)
		return page
	}

	llx, lly := 0.0, 0.0
	if box, ok := mediaBox(p.V); ok {
		llx, lly = box[0], box[1]
		page.Width, page.Height = box[2]-box[0], box[3]-box[1]
	}

	defer func() {
		if r := recover(); r != nil {
			page.Runs = nil
			page.Err = fmt.Errorf("panic decoding page %d content: %v", index, r)
		}
	}()

	glyphs := p.Content().Text
	page.Runs = groupRuns(glyphs, llx, lly, page.Width, page.Height)
	return page
}

// mediaBox reads the page MediaBox, falling back to the one inherited from
// the parent page tree node.
func mediaBox(v pdf.Value) (box [4]float64, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	for node := v; !node.IsNull(); node = node.Key("Parent") {
		mb := node.Key("MediaBox")
		if mb.Kind() != pdf.Array || mb.Len() != 4 {
			continue
		}
		for i := 0; i < 4; i++ {
			val := mb.Index(i)
			switch val.Kind() {
			case pdf.Integer:
				box[i] = float64(val.Int64())
			case pdf.Real:
				box[i] = val.Float64()
			default:
				return box, false
			}
		}
		if box[0] > box[2] {
			box[0], box[2] = box[2], box[0]
		}
		if box[1] > box[3] {
			box[1], box[3] = box[3], box[1]
		}
		return box, box[2] > box[0] && box[3] > box[1]
	}
	return box, false
}

// groupRuns joins consecutive glyphs on one baseline into runs and
// normalizes them against the page. Glyph height is taken as the font size.
func groupRuns(glyphs []pdf.Text, llx, lly, width, height float64) []Run {
	type span struct {
		text             strings.Builder
		x, y, right, top float64
		size             float64
	}

	var (
		runs []Run
		cur  *span
	)
	flush := func() {
		if cur == nil {
			return
		}
		if strings.TrimSpace(cur.text.String()) != "" {
			box := geometry.FromRect(
				(cur.x-llx)/width, (cur.y-lly)/height,
				(cur.right-llx)/width, (cur.top-lly)/height,
			)
			runs = append(runs, Run{Text: strings.TrimSpace(cur.text.String()), Box: box})
		}
		cur = nil
	}

	for _, g := range glyphs {
		size := g.FontSize
		if size <= 0 {
			size = 12
		}
		if cur != nil && continues(cur.right, cur.y, cur.size, g.X, g.Y, size) {
			// Space glyphs are not reported, only the gap they leave.
			if g.X > cur.right+cur.size*0.15 {
				cur.text.WriteByte(' ')
			}
			cur.text.WriteString(g.S)
			cur.right = math.Max(cur.right, g.X+g.W)
			continue
		}
		flush()
		cur = &span{x: g.X, y: g.Y, right: g.X + g.W, top: g.Y + size, size: size}
		cur.text.WriteString(g.S)
	}
	flush()

	return runs
}

// continues reports whether a glyph at (x, y) extends a run ending at
// right on baseline runY.
func continues(right, runY, runSize, x, y, size float64) bool {
	if math.Abs(y-runY) > runSize*0.1 || math.Abs(size-runSize) > 0.5 {
		return false
	}
	return x >= right-runSize*0.2 && x <= right+runSize*0.6
}
