package render

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/fonts"
	"github.com/novvoo/go-pdffill/pkg/layout"
	"github.com/novvoo/go-pdffill/pkg/logging"
	"github.com/novvoo/go-pdffill/pkg/pdf"
)

// FontSource lists candidate fonts in priority order. *fonts.Scanner
// implements it.
type FontSource interface {
	Candidates() []fonts.Descriptor
}

// Options configures a Renderer
type Options struct {
	// Fonts supplies candidates when the style names no font file
	Fonts FontSource
	// Metrics measures lines; faces picked by the renderer are registered here
	Metrics *fonts.Metrics
	// TempDir holds overlay documents; empty means os.TempDir()
	TempDir string
	// KeepTemp leaves overlay documents on disk and lists them in the output
	KeepTemp bool
	// Retry wraps temp file I/O; nil means DefaultRetry()
	Retry *RetryPolicy

	Logger *slog.Logger
}

// Output is the result of one render
type Output struct {
	Data      []byte
	Requested Backend
	Executed  Backend
	// Digest is the BLAKE2b-256 of Data in hex
	Digest string
	// FontName is the font the text was drawn with
	FontName  string
	TempFiles []string
}

// Renderer draws layout plans onto documents
type Renderer struct {
	opts    Options
	logger  *slog.Logger
	metrics *fonts.Metrics
	engine  *layout.Engine
	retry   RetryPolicy
}

// NewRenderer creates a renderer
func NewRenderer(opts Options) *Renderer {
	r := &Renderer{
		opts:    opts,
		logger:  logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
		retry:   DefaultRetry(),
	}
	if r.metrics == nil {
		r.metrics = fonts.NewMetrics()
	}
	if opts.Retry != nil {
		r.retry = *opts.Retry
	}
	if r.opts.TempDir == "" {
		r.opts.TempDir = os.TempDir()
	}
	r.engine = layout.NewEngine(r.metrics)
	return r
}

// Render draws plan onto doc with the requested backend. A direct embed
// that cannot get a usable font falls back to the overlay backend. The
// document itself is never modified; the result is a new byte slice.
func (r *Renderer) Render(ctx context.Context, doc *pdf.Document, plan *layout.DrawPlan, style layout.Style, backend Backend) (*Output, error) {
	if doc == nil {
		return nil, fillerr.Errorf(fillerr.InvalidDocument, "render", "no document")
	}
	if plan == nil {
		plan = layout.NewDrawPlan()
	}
	for _, p := range plan.Pages() {
		if p < 0 || p >= len(doc.Pages) {
			return nil, fillerr.Errorf(fillerr.PageIndexOutOfRange, "render",
				"page %d of %d", p, len(doc.Pages))
		}
	}

	out := &Output{Requested: backend, Executed: backend}
	var (
		data []byte
		err  error
	)
	switch {
	case plan.Len() == 0:
		// Nothing to draw; the output is a copy of the input
		data = bytes.Clone(doc.Data())
	case backend == DirectEmbed:
		data, err = r.direct(doc, plan, style, out)
		if fillerr.Is(err, fillerr.FontEmbedFailed) {
			r.logger.Warn("direct embed unavailable, falling back to overlay", "error", err)
			out.Executed = OverlayMerge
			data, err = r.overlay(ctx, doc, plan, style, out)
		}
	case backend == OverlayMerge:
		data, err = r.overlay(ctx, doc, plan, style, out)
	case backend == RasterOverlay:
		data, err = r.raster(doc, plan, style, out)
	default:
		err = fillerr.Errorf(fillerr.ConfigInvalid, "render", "unknown backend %v", backend)
	}
	if err != nil {
		return nil, err
	}

	out.Data = data
	out.Digest = Digest(data)
	r.logger.Debug("rendered",
		"requested", out.Requested,
		"executed", out.Executed,
		"items", plan.Len(),
		"font", out.FontName,
		"bytes", len(data))
	return out, nil
}

// Digest returns the BLAKE2b-256 of data in hex
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// resolveFace finds a font for text. A font file named by the style wins;
// otherwise the candidates are tried in order.
func (r *Renderer) resolveFace(style layout.Style, text string, embeddable bool) (*fonts.Face, error) {
	if style.FontPath != "" {
		d, ok := fonts.DescriptorFor(style.FontPath)
		if !ok {
			return nil, fmt.Errorf("unsupported font file %s", style.FontPath)
		}
		face, err := fonts.LoadFace(d)
		if err != nil {
			return nil, err
		}
		if embeddable && !face.Embeddable() {
			return nil, fmt.Errorf("font %s is not an embeddable TrueType font", d.Path)
		}
		if missing := face.Missing(text); len(missing) > 0 {
			return nil, fmt.Errorf("font %s: %w: %q", d.Path, pdf.ErrMissingGlyph, string(missing))
		}
		return face, nil
	}
	if r.opts.Fonts == nil {
		return nil, fonts.ErrNoFont
	}
	return fonts.Preferred(r.opts.Fonts.Candidates(), text, embeddable)
}

// registerFace makes face measurable under its name and returns a style
// whose lines are measured with it
func (r *Renderer) registerFace(style layout.Style, face *fonts.Face) layout.Style {
	name := face.Name
	if name == "" {
		name = "embedded"
	}
	r.metrics.Register(name, face)
	style.FontName = name
	return style
}

// geometryOf returns the drawing geometry of a page
func geometryOf(page *pdf.Page) layout.PageGeometry {
	mb := page.MediaBox
	return layout.PageGeometry{
		Width:   mb.Width(),
		Height:  mb.Height(),
		OriginX: mb.LLX,
		OriginY: mb.LLY,
	}
}

// pageLines places every item of one page
func (r *Renderer) pageLines(plan *layout.DrawPlan, page int, geom layout.PageGeometry, style layout.Style) ([]layout.PlacedLine, error) {
	var lines []layout.PlacedLine
	for _, item := range plan.Items(page) {
		placed, err := r.engine.PlaceLines(item, geom, style)
		if err != nil {
			return nil, err
		}
		lines = append(lines, placed...)
	}
	return lines, nil
}

// textContent writes a text object drawing lines with font
func textContent(font pdf.FontResource, name pdf.Name, lines []layout.PlacedLine, geom layout.PageGeometry, style layout.Style) []byte {
	var buf bytes.Buffer
	buf.WriteString("q\nBT\n")
	fmt.Fprintf(&buf, "%s %s Tf\n", name, num(style.FontSize))
	fmt.Fprintf(&buf, "%s %s %s rg\n",
		num(float64(style.Color[0])/255), num(float64(style.Color[1])/255), num(float64(style.Color[2])/255))
	for _, line := range lines {
		if line.Text == "" {
			continue
		}
		fmt.Fprintf(&buf, "1 0 0 1 %s %s Tm\n%s Tj\n",
			num(geom.OriginX+line.X), num(geom.OriginY+line.Y), font.Encode(line.Text))
	}
	buf.WriteString("ET\nQ\n")
	return buf.Bytes()
}

// num formats a content stream number with at most four decimals
func num(v float64) string {
	v = math.Round(v*10000) / 10000
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
