package anchor

import (
	"fmt"
	"math"
)

// Character is one extracted glyph in extraction space: origin at the
// top-left of the page, y growing downward.
type Character struct {
	Text   string
	X0, X1 float64
	Top    float64
	Bottom float64
}

// Rect is a box in extraction space
type Rect struct {
	X0, Top, X1, Bottom float64
}

// Point is a position; which space it lives in depends on the caller
type Point struct {
	X, Y float64
}

// Default offsets of the write position from the right edge of a keyword
const (
	DefaultOffsetX = 50.0
	DefaultOffsetY = 0.0
)

// BBoxOf returns the union of the boxes of chars[start:end]. The window
// must be non-empty and inside chars.
func BBoxOf(chars []Character, start, end int) Rect {
	if start < 0 || end > len(chars) || start >= end {
		panic(fmt.Sprintf("anchor: invalid window [%d, %d) of %d characters", start, end, len(chars)))
	}
	r := Rect{
		X0:     math.Inf(1),
		Top:    math.Inf(1),
		X1:     math.Inf(-1),
		Bottom: math.Inf(-1),
	}
	for _, c := range chars[start:end] {
		r.X0 = math.Min(r.X0, c.X0)
		r.Top = math.Min(r.Top, c.Top)
		r.X1 = math.Max(r.X1, c.X1)
		r.Bottom = math.Max(r.Bottom, c.Bottom)
	}
	return r
}

// ToDrawingY converts a y coordinate between extraction space and drawing
// space (origin bottom-left, y upward). The conversion is its own inverse.
func ToDrawingY(y, pageHeight float64) float64 {
	return pageHeight - y
}

// RightOfBaseline returns the point right of the box on its bottom edge,
// shifted by (dx, dy), in extraction space.
func RightOfBaseline(box Rect, dx, dy float64) Point {
	return Point{X: box.X1 + dx, Y: box.Bottom + dy}
}

// ApplyOffset shifts a point
func ApplyOffset(p Point, dx, dy float64) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}
