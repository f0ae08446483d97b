// Package fill locates keywords in a document and places values next to
// them.
package fill

import (
	"os"
	"sync"

	"github.com/novvoo/go-pdffill/pkg/anchor"
	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/layout"
	"github.com/novvoo/go-pdffill/pkg/pdf"
)

// Source is a paged document with per-character text
type Source interface {
	NumPages() int
	Geometry(page int) (layout.PageGeometry, error)
	// Characters returns the page's glyphs in extraction space
	// (top-left origin, y down)
	Characters(page int) ([]anchor.Character, error)
}

// PDFSource adapts a parsed PDF. Characters are extracted once per page.
type PDFSource struct {
	doc *pdf.Document

	mu    sync.Mutex
	chars map[int][]anchor.Character
}

// OpenPDF reads and parses the PDF at path
func OpenPDF(path string) (*PDFSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fillerr.New(fillerr.InputNotFound, "open "+path, err)
	}
	doc, err := pdf.NewDocument(data)
	if err != nil {
		return nil, fillerr.New(fillerr.InvalidDocument, "parse "+path, err)
	}
	if len(doc.Pages) == 0 {
		return nil, fillerr.Errorf(fillerr.InvalidDocument, "parse "+path, "document has no pages")
	}
	return NewPDFSource(doc), nil
}

// NewPDFSource wraps an already parsed document
func NewPDFSource(doc *pdf.Document) *PDFSource {
	return &PDFSource{doc: doc, chars: make(map[int][]anchor.Character)}
}

// Document returns the underlying document
func (s *PDFSource) Document() *pdf.Document {
	return s.doc
}

// NumPages returns the page count
func (s *PDFSource) NumPages() int {
	return len(s.doc.Pages)
}

func (s *PDFSource) page(i int) (*pdf.Page, error) {
	if i < 0 || i >= len(s.doc.Pages) {
		return nil, fillerr.Errorf(fillerr.PageIndexOutOfRange, "page",
			"page %d of %d", i, len(s.doc.Pages))
	}
	return s.doc.Pages[i], nil
}

// Geometry returns the page's media box size and origin
func (s *PDFSource) Geometry(i int) (layout.PageGeometry, error) {
	p, err := s.page(i)
	if err != nil {
		return layout.PageGeometry{}, err
	}
	mb := p.MediaBox
	return layout.PageGeometry{
		Width:   mb.Width(),
		Height:  mb.Height(),
		OriginX: mb.LLX,
		OriginY: mb.LLY,
	}, nil
}

// Characters returns the page's glyph boxes
func (s *PDFSource) Characters(i int) ([]anchor.Character, error) {
	p, err := s.page(i)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.chars[i]; ok {
		return cached, nil
	}

	raw, err := p.Characters()
	if err != nil {
		return nil, fillerr.New(fillerr.InvalidDocument, "extract", err)
	}
	chars := make([]anchor.Character, len(raw))
	for j, c := range raw {
		chars[j] = anchor.Character{
			Text:   c.Text,
			X0:     c.X0,
			X1:     c.X1,
			Top:    c.Top,
			Bottom: c.Bottom,
		}
	}
	s.chars[i] = chars
	return chars, nil
}
