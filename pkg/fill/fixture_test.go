package fill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/novvoo/go-pdffill/pkg/anchor"
	"github.com/novvoo/go-pdffill/pkg/pdf"
)

// label is a text run shown at a baseline position
type label struct {
	text string
	x, y float64
}

// buildPDF creates a letter-size document, one page per entry, with every
// label drawn in STSong-Light so CJK and ASCII text both extract
func buildPDF(t *testing.T, pages ...[]label) []byte {
	t.Helper()
	b := pdf.NewBuilder()
	font := pdf.AddStandardCJKFont(b)
	for _, labels := range pages {
		var sb strings.Builder
		for _, l := range labels {
			fmt.Fprintf(&sb, "BT /F1 12 Tf 1 0 0 1 %g %g Tm %s Tj ET\n", l.x, l.y, font.Encode(l.text))
		}
		b.AddPage(pdf.Rectangle{URX: 612, URY: 792}, []byte(sb.String()),
			pdf.Dictionary{"Font": pdf.Dictionary{"F1": font.Ref()}})
	}
	return b.Bytes()
}

func sourceOf(t *testing.T, data []byte) *PDFSource {
	t.Helper()
	doc, err := pdf.NewDocument(data)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return NewPDFSource(doc)
}

func writePDF(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "form.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// keywordBox finds text verbatim on a page and returns its box
func keywordBox(t *testing.T, src Source, page int, text string) anchor.Rect {
	t.Helper()
	chars, err := src.Characters(page)
	if err != nil {
		t.Fatal(err)
	}
	n := len([]rune(text))
	for i := 0; i+n <= len(chars); i++ {
		var sb strings.Builder
		for _, c := range chars[i : i+n] {
			sb.WriteString(c.Text)
		}
		if sb.String() == text {
			return anchor.BBoxOf(chars, i, i+n)
		}
	}
	t.Fatalf("%q not on page %d", text, page)
	return anchor.Rect{}
}
