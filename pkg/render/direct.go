package render

import (
	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/layout"
	"github.com/novvoo/go-pdffill/pkg/pdf"
)

// direct embeds a TrueType face covering the plan and appends the text to
// each page's content stream as an incremental update
func (r *Renderer) direct(doc *pdf.Document, plan *layout.DrawPlan, style layout.Style, out *Output) ([]byte, error) {
	text := plan.Text()
	face, err := r.resolveFace(style, text, true)
	if err != nil {
		return nil, fillerr.New(fillerr.FontEmbedFailed, "direct embed", err)
	}

	w := pdf.NewIncrementalWriter(doc)
	font, err := pdf.EmbedTrueType(w, face.Data, text)
	if err != nil {
		return nil, fillerr.New(fillerr.FontEmbedFailed, "direct embed", err)
	}
	style = r.registerFace(style, face)
	out.FontName = font.BaseFont()

	for _, p := range plan.Pages() {
		page := doc.Pages[p]
		geom := geometryOf(page)
		lines, err := r.pageLines(plan, p, geom, style)
		if err != nil {
			return nil, err
		}

		name := w.UniqueName(page, "Font", "FillF")
		content := textContent(font, name, lines, geom, style)
		if err := w.AppendPageContent(page, content, pdf.ResourceSet{
			Fonts: map[pdf.Name]pdf.Object{name: font.Ref()},
		}); err != nil {
			return nil, fillerr.New(fillerr.WriteFailed, "direct embed", err)
		}
		r.logger.Debug("page drawn", "backend", DirectEmbed, "page", p, "lines", len(lines))
	}
	data, err := w.Bytes()
	if err != nil {
		return nil, fillerr.New(fillerr.WriteFailed, "direct embed", err)
	}
	return data, nil
}
