// Package layout wraps and positions the values of a fill plan on their
// pages. Every rendering backend places text through this package so the
// result looks the same whichever backend draws it.
package layout

import (
	"sort"
	"strings"
)

// DrawItem is one value to draw, anchored in drawing space (origin at the
// bottom-left of the page, y upward).
type DrawItem struct {
	Key         string
	Text        string
	X, Y        float64
	MaxWidth    *float64
	LineSpacing *float64
}

// DrawPlan holds the draw items of each page in insertion order
type DrawPlan struct {
	pages map[int][]DrawItem
}

// NewDrawPlan creates an empty plan
func NewDrawPlan() *DrawPlan {
	return &DrawPlan{pages: make(map[int][]DrawItem)}
}

// Add appends an item to a page
func (p *DrawPlan) Add(page int, item DrawItem) {
	p.pages[page] = append(p.pages[page], item)
}

// Items returns the items of a page
func (p *DrawPlan) Items(page int) []DrawItem {
	if p == nil {
		return nil
	}
	return p.pages[page]
}

// Pages returns the indexes of pages with items, ascending
func (p *DrawPlan) Pages() []int {
	if p == nil {
		return nil
	}
	out := make([]int, 0, len(p.pages))
	for i, items := range p.pages {
		if len(items) > 0 {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// Len returns the total number of items
func (p *DrawPlan) Len() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, items := range p.pages {
		n += len(items)
	}
	return n
}

// Text returns all item text, used to check font coverage
func (p *DrawPlan) Text() string {
	var sb strings.Builder
	for _, page := range p.Pages() {
		for _, item := range p.pages[page] {
			sb.WriteString(item.Text)
		}
	}
	return sb.String()
}

// PageGeometry is the size of a page and the origin of its media box
type PageGeometry struct {
	Width, Height    float64
	OriginX, OriginY float64
}

// Style holds the text style shared by all items of a fill
type Style struct {
	FontName    string
	FontPath    string
	FontSize    float64
	Color       [3]uint8
	LineSpacing float64
	Margin      float64
	Clamp       bool

	// Raster backend only
	RasterScale float64
	RasterAlpha uint8
}

// Style defaults
const (
	DefaultFontSize    = 12.0
	DefaultLineSpacing = 14.0
	DefaultMargin      = 2.0
	DefaultRasterScale = 2.0
)

// DefaultStyle returns black 12pt text with clamping on
func DefaultStyle() Style {
	return Style{
		FontName:    "Helvetica",
		FontSize:    DefaultFontSize,
		LineSpacing: DefaultLineSpacing,
		Margin:      DefaultMargin,
		Clamp:       true,
		RasterScale: DefaultRasterScale,
		RasterAlpha: 255,
	}
}
