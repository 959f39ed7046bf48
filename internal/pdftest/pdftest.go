// Package pdftest writes small single-purpose PDFs for tests: pages with
// printed text and AcroForm widgets at known positions.
package pdftest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Widget is one merged field/widget annotation.
type Widget struct {
	// Rect is llx, lly, urx, ury in points.
	Rect [4]float64
	// FT is the field type name: Tx, Btn, Ch or Sig. Empty omits the key.
	FT string
	Ff int
	T  string
	TU string
	// InheritFT moves FT onto a parent field dictionary.
	InheritFT bool
	// Subtype defaults to Widget.
	Subtype string
}

// Text is one line of Helvetica drawn at X, Y (baseline, points).
type Text struct {
	X, Y float64
	Size float64
	S    string
}

// Page describes one page. A zero size means US Letter.
type Page struct {
	Width, Height float64
	Widgets       []Widget
	Text          []Text
}

type builder struct {
	objs []string
}

func (b *builder) reserve() int {
	b.objs = append(b.objs, "")
	return len(b.objs)
}

func (b *builder) set(n int, body string) {
	b.objs[n-1] = body
}

// Build renders pages into a complete PDF with a valid xref table.
func Build(pages ...Page) []byte {
	b := &builder{}
	catalog := b.reserve()
	pagesObj := b.reserve()
	acroForm := b.reserve()
	font := b.reserve()

	b.set(font, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding"+
		" /FirstChar 32 /LastChar 126 /Widths ["+strings.TrimSpace(strings.Repeat("500 ", 95))+"] >>")

	var kids, fields []string
	for _, p := range pages {
		w, h := p.Width, p.Height
		if w == 0 || h == 0 {
			w, h = 612, 792
		}
		pageObj := b.reserve()
		contentObj := b.reserve()

		var stream strings.Builder
		for _, t := range p.Text {
			size := t.Size
			if size == 0 {
				size = 12
			}
			fmt.Fprintf(&stream, "BT /F1 %g Tf 1 0 0 1 %g %g Tm (%s) Tj ET\n", size, t.X, t.Y, escape(t.S))
		}
		b.set(contentObj, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", stream.Len(), stream.String()))

		var annots []string
		for _, wd := range p.Widgets {
			n := b.reserve()
			annots = append(annots, ref(n))
			fields = append(fields, ref(n))

			subtype := wd.Subtype
			if subtype == "" {
				subtype = "Widget"
			}
			var d strings.Builder
			fmt.Fprintf(&d, "<< /Type /Annot /Subtype /%s /Rect [%g %g %g %g] /P %s",
				subtype, wd.Rect[0], wd.Rect[1], wd.Rect[2], wd.Rect[3], ref(pageObj))
			if wd.FT != "" {
				if wd.InheritFT {
					parent := b.reserve()
					b.set(parent, fmt.Sprintf("<< /FT /%s /Ff %d /Kids [%s] >>", wd.FT, wd.Ff, ref(n)))
					fmt.Fprintf(&d, " /Parent %s", ref(parent))
				} else {
					fmt.Fprintf(&d, " /FT /%s", wd.FT)
				}
			}
			if wd.Ff != 0 && !wd.InheritFT {
				fmt.Fprintf(&d, " /Ff %d", wd.Ff)
			}
			if wd.T != "" {
				fmt.Fprintf(&d, " /T (%s)", escape(wd.T))
			}
			if wd.TU != "" {
				fmt.Fprintf(&d, " /TU (%s)", escape(wd.TU))
			}
			d.WriteString(" >>")
			b.set(n, d.String())
		}

		page := fmt.Sprintf("<< /Type /Page /Parent %s /MediaBox [0 0 %g %g] /Resources << /Font << /F1 %s >> >> /Contents %s",
			ref(pagesObj), w, h, ref(font), ref(contentObj))
		if len(annots) > 0 {
			page += " /Annots [" + strings.Join(annots, " ") + "]"
		}
		b.set(pageObj, page+" >>")
		kids = append(kids, ref(pageObj))
	}

	b.set(pagesObj, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids)))
	b.set(acroForm, fmt.Sprintf("<< /Fields [%s] >>", strings.Join(fields, " ")))
	b.set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %s /AcroForm %s >>", ref(pagesObj), ref(acroForm)))

	var out strings.Builder
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(b.objs))
	for i, body := range b.objs {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(b.objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root %s >>\nstartxref\n%d\n%%%%EOF\n", len(b.objs)+1, ref(catalog), xref)

	return []byte(out.String())
}

// WriteFile builds the PDF into a temp dir owned by t and returns its path.
func WriteFile(t testing.TB, pages ...Page) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "form.pdf")
	if err := os.WriteFile(path, Build(pages...), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func ref(n int) string {
	return fmt.Sprintf("%d 0 R", n)
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
