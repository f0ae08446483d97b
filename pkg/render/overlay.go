package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/fonts"
	"github.com/novvoo/go-pdffill/pkg/layout"
	"github.com/novvoo/go-pdffill/pkg/pdf"
)

// overlay builds a text-only document with the same page sizes, writes it
// to a temp file, reopens it and stamps each page that has items onto the
// base document
func (r *Renderer) overlay(ctx context.Context, doc *pdf.Document, plan *layout.DrawPlan, style layout.Style, out *Output) ([]byte, error) {
	b := pdf.NewBuilder()
	font, style := r.overlayFont(b, style, plan.Text())
	out.FontName = font.BaseFont()

	for i, page := range doc.Pages {
		geom := geometryOf(page)
		lines, err := r.pageLines(plan, i, geom, style)
		if err != nil {
			return nil, err
		}
		var content []byte
		if len(lines) > 0 {
			content = textContent(font, "F1", lines, geom, style)
		}
		b.AddPage(page.MediaBox, content, pdf.Dictionary{
			"Font": pdf.Dictionary{"F1": font.Ref()},
		})
	}

	path := filepath.Join(r.opts.TempDir, "overlay_"+uuid.NewString()+".pdf")
	defer func() {
		if r.opts.KeepTemp {
			out.TempFiles = append(out.TempFiles, path)
			return
		}
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			r.logger.Warn("remove temp overlay", "path", path, "error", rmErr)
		}
	}()

	layer := b.Bytes()
	if err := r.retry.Do(ctx, r.logger, "write overlay", func() error {
		return os.WriteFile(path, layer, 0o600)
	}); err != nil {
		return nil, fillerr.New(fillerr.WriteFailed, "write overlay", err)
	}

	var overlayDoc *pdf.Document
	if err := r.retry.Do(ctx, r.logger, "open overlay", func() error {
		var openErr error
		overlayDoc, openErr = pdf.Open(path)
		return openErr
	}); err != nil {
		return nil, fillerr.New(fillerr.DocumentMergeFailed, "open overlay", err)
	}
	if len(overlayDoc.Pages) != len(doc.Pages) {
		return nil, fillerr.Errorf(fillerr.DocumentMergeFailed, "merge overlay",
			"overlay has %d pages, document has %d", len(overlayDoc.Pages), len(doc.Pages))
	}

	w := pdf.NewIncrementalWriter(doc)
	for _, p := range plan.Pages() {
		if err := w.MergeOverlay(doc.Pages[p], overlayDoc.Pages[p]); err != nil {
			return nil, fillerr.New(fillerr.DocumentMergeFailed, "merge overlay", err)
		}
		r.logger.Debug("page merged", "backend", OverlayMerge, "page", p)
	}
	data, err := w.Bytes()
	if err != nil {
		return nil, fillerr.New(fillerr.WriteFailed, "overlay", err)
	}
	return data, nil
}

// overlayFont embeds a TrueType face covering text when one is available,
// else falls back to STSong-Light
func (r *Renderer) overlayFont(b *pdf.Builder, style layout.Style, text string) (pdf.FontResource, layout.Style) {
	face, err := r.resolveFace(style, text, true)
	if err == nil {
		font, embedErr := pdf.EmbedTrueType(b, face.Data, text)
		if embedErr == nil {
			return font, r.registerFace(style, face)
		}
		err = embedErr
	}
	r.logger.Debug("overlay uses standard CJK font", "reason", err)
	style.FontName = fonts.STSongLight
	return pdf.AddStandardCJKFont(b), style
}
