package layout

import (
	"math"
	"strings"

	"github.com/novvoo/go-pdffill/pkg/fillerr"
)

// Metrics measures rendered text
type Metrics interface {
	StringWidth(text, fontName string, size float64) float64
}

// EstimateMetrics approximates widths without font data: ASCII runes are
// 0.6 em wide, everything else a full em.
type EstimateMetrics struct{}

// StringWidth implements Metrics
func (EstimateMetrics) StringWidth(text, _ string, size float64) float64 {
	return EstimateWidth(text, size)
}

// EstimateWidth is the width estimate used when no font can be measured
func EstimateWidth(text string, size float64) float64 {
	w := 0.0
	for _, r := range text {
		if r < 0x80 {
			w += size * 0.6
		} else {
			w += size
		}
	}
	return w
}

// Engine wraps and places text
type Engine struct {
	metrics Metrics
}

// NewEngine creates an engine measuring with m; nil means estimates
func NewEngine(m Metrics) *Engine {
	if m == nil {
		m = EstimateMetrics{}
	}
	return &Engine{metrics: m}
}

// Metrics returns the engine's metrics
func (e *Engine) Metrics() Metrics {
	return e.metrics
}

// splitLines splits on line breaks; a trailing break adds no empty line
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Wrap breaks text into lines no wider than maxWidth. Without a positive
// maxWidth only the text's own line breaks split it. A rune wider than
// maxWidth still gets a line of its own.
func (e *Engine) Wrap(text, fontName string, size, maxWidth float64) []string {
	raw := splitLines(text)
	if maxWidth <= 0 {
		return raw
	}

	var out []string
	for _, line := range raw {
		current := ""
		for _, r := range line {
			trial := current + string(r)
			if current == "" || e.metrics.StringWidth(trial, fontName, size) <= maxWidth {
				current = trial
				continue
			}
			out = append(out, current)
			current = string(r)
		}
		out = append(out, current)
	}
	return out
}

// Baseline extents as a fraction of the font size
const (
	AscentRatio  = 0.8
	DescentRatio = 0.2
)

// ClampBaseline keeps a baseline inside the page so neither the ascent
// nor the descent of the line crosses the margin. If the font does not
// fit between the margins at all, y is clamped to the margins alone.
func ClampBaseline(x, y, pageWidth, pageHeight, fontSize, margin float64) (float64, float64) {
	return ClampBaselineRatio(x, y, pageWidth, pageHeight, fontSize, margin, AscentRatio, DescentRatio)
}

// ClampBaselineRatio is ClampBaseline with explicit ascent and descent ratios
func ClampBaselineRatio(x, y, pageWidth, pageHeight, fontSize, margin, ascentRatio, descentRatio float64) (float64, float64) {
	cx := clamp(x, margin, pageWidth-margin)

	ascent := math.Max(0, fontSize*ascentRatio)
	descent := math.Max(0, fontSize*descentRatio)
	yMin := margin + descent
	yMax := pageHeight - margin - ascent
	if yMin > yMax {
		yMin, yMax = margin, pageHeight-margin
	}
	return cx, clamp(y, yMin, yMax)
}

// clamp limits v to [lo, hi]; lo wins when the range is empty
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// PlacedLine is a wrapped line at its final baseline position, relative to
// the page's bottom-left corner
type PlacedLine struct {
	Text string
	X, Y float64
}

// PlaceLines wraps an item and positions each line. Lines go down by the
// item's line spacing (or the style's). With clamping on every baseline
// is clamped and x is pulled left so the measured line ends inside the
// margin.
func (e *Engine) PlaceLines(item DrawItem, geom PageGeometry, style Style) ([]PlacedLine, error) {
	if !finite(item.X, item.Y, geom.Width, geom.Height, style.FontSize) || geom.Width <= 0 || geom.Height <= 0 {
		return nil, fillerr.Errorf(fillerr.LayoutBuildFailed, "place "+item.Key,
			"invalid geometry: item (%v, %v) page %vx%v size %v", item.X, item.Y, geom.Width, geom.Height, style.FontSize)
	}

	maxWidth := 0.0
	if item.MaxWidth != nil {
		maxWidth = *item.MaxWidth
	}
	spacing := style.LineSpacing
	if item.LineSpacing != nil {
		spacing = *item.LineSpacing
	}

	lines := e.Wrap(item.Text, style.FontName, style.FontSize, maxWidth)
	placed := make([]PlacedLine, 0, len(lines))
	y := item.Y
	for _, line := range lines {
		px, py := item.X, y
		if style.Clamp {
			cx, cy := ClampBaseline(item.X, y, geom.Width, geom.Height, style.FontSize, style.Margin)
			lineW := e.metrics.StringWidth(line, style.FontName, style.FontSize)
			maxX := math.Max(style.Margin, geom.Width-style.Margin-lineW)
			px, py = math.Min(math.Max(style.Margin, cx), maxX), cy
		}
		placed = append(placed, PlacedLine{Text: line, X: px, Y: py})
		y -= spacing
	}
	return placed, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
