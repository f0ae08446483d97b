package fill

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/novvoo/go-pdffill/pkg/anchor"
	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/layout"
	"github.com/novvoo/go-pdffill/pkg/logging"
	"github.com/novvoo/go-pdffill/pkg/render"
)

// Options configures a Filler
type Options struct {
	Overrides *anchor.Overrides
	// Threshold is the minimum match score; nil means the default
	Threshold *float64
	Separator rune
	// DefaultPage is the zero-based page searched without a selection
	DefaultPage int
	Style       layout.Style
	Backend     render.Backend
	// Render configures the renderer; its Logger defaults to Logger
	Render render.Options
	Logger *slog.Logger
}

// Request is one fill of a document
type Request struct {
	// Input is the PDF path; Source, when set, is used instead
	Input  string
	Source *PDFSource
	Values Values
	// Pages is a one-based selection ("all", "1,3-5"). Empty searches the
	// default page only; a selection that parses empty searches all pages.
	Pages string
	// Output, when set, receives the filled document
	Output string
	// Backend overrides Options.Backend
	Backend *render.Backend
}

// Filler runs the whole pipeline: locate, plan, render, write
type Filler struct {
	planner  Planner
	renderer *render.Renderer
	style    layout.Style
	backend  render.Backend
	logger   *slog.Logger
}

// NewFiller creates a filler
func NewFiller(opts Options) *Filler {
	logger := logging.OrNop(opts.Logger)
	if opts.Render.Logger == nil {
		opts.Render.Logger = logger
	}
	if opts.Style.FontSize == 0 {
		opts.Style = layout.DefaultStyle()
	}
	return &Filler{
		planner: Planner{
			Overrides:   opts.Overrides,
			Threshold:   opts.Threshold,
			Separator:   opts.Separator,
			DefaultPage: opts.DefaultPage,
			Logger:      logger,
		},
		renderer: render.NewRenderer(opts.Render),
		style:    opts.Style,
		backend:  opts.Backend,
		logger:   logger,
	}
}

// FindKeyword locates keyword on one page. A negative threshold uses the
// filler's threshold; 0 accepts any window that shares a character.
func (f *Filler) FindKeyword(src Source, keyword string, page int, threshold float64) (*KeywordHit, error) {
	if threshold < 0 {
		threshold = f.planner.threshold()
	}
	return f.planner.FindKeyword(src, keyword, page, threshold)
}

// Fill locates each value's keyword, draws the values and, when
// req.Output is set, writes the result. Keywords that cannot be located
// only show up in Stats.
func (f *Filler) Fill(ctx context.Context, req Request) (*render.Output, Stats, error) {
	src := req.Source
	if src == nil {
		var err error
		if src, err = OpenPDF(req.Input); err != nil {
			return nil, Stats{}, err
		}
	}

	var pages []int
	if strings.TrimSpace(req.Pages) != "" {
		pages = ParsePageSelection(req.Pages, src.NumPages(), true, f.logger)
		if len(pages) == 0 {
			pages = allPages(src.NumPages())
		}
	}

	plan, stats, err := f.planner.Plan(src, req.Values, pages)
	if err != nil {
		return nil, stats, err
	}

	backend := f.backend
	if req.Backend != nil {
		backend = *req.Backend
	}
	out, err := f.renderer.Render(ctx, src.Document(), plan, f.style, backend)
	if err != nil {
		return nil, stats, err
	}

	if req.Output != "" {
		if err := writeOutput(req.Output, out.Data); err != nil {
			return nil, stats, err
		}
	}

	f.logger.Info("filled",
		"input", req.Input,
		"output", req.Output,
		"total", stats.Total,
		"matched", len(stats.Matched),
		"missing", len(stats.Missing),
		"backend", out.Executed,
		"digest", out.Digest)
	if len(stats.Missing) > 0 {
		f.logger.Warn("keywords not located", "keys", stats.Missing)
	}
	return out, stats, nil
}

// writeOutput writes data to path through a temp file in the same
// directory so readers never see a partial document
func writeOutput(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fillerr.New(fillerr.WriteFailed, "write "+path, err)
	}
	tmp, err := os.CreateTemp(dir, ".pdffill-*")
	if err != nil {
		return fillerr.New(fillerr.WriteFailed, "write "+path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fillerr.New(fillerr.WriteFailed, "write "+path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fillerr.New(fillerr.WriteFailed, "write "+path, err)
	}
	if err := tmp.Close(); err != nil {
		return fillerr.New(fillerr.WriteFailed, "write "+path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fillerr.New(fillerr.WriteFailed, "write "+path, err)
	}
	return nil
}
