package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/fonts"
	"github.com/novvoo/go-pdffill/pkg/layout"
	"github.com/novvoo/go-pdffill/pkg/pdf"
)

// basicFontName 没有可用字体时的位图字体
const basicFontName = "basicfont-7x13"

// lineDrawer 在像素坐标 (x, 基线 y) 处绘制一行文本
type lineDrawer interface {
	drawLine(dst *image.RGBA, src image.Image, text string, x, y float64) error
}

// raster 将每页的文本绘制到透明 RGBA 图像，再以带 SMask 的图像覆盖整页
func (r *Renderer) raster(doc *pdf.Document, plan *layout.DrawPlan, style layout.Style, out *Output) ([]byte, error) {
	scale := style.RasterScale
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = layout.DefaultRasterScale
	}
	px := style.FontSize * scale

	var drawer lineDrawer
	face, err := r.resolveFace(style, plan.Text(), false)
	if err != nil {
		r.logger.Debug("raster uses basic font", "reason", err)
		drawer = basicDrawer{size: px}
		out.FontName = basicFontName
	} else {
		style = r.registerFace(style, face)
		drawer, err = newFaceDrawer(face, px)
		if err != nil {
			return nil, fillerr.New(fillerr.FontEmbedFailed, "raster", err)
		}
		out.FontName = face.Name
	}

	src := image.NewUniform(color.NRGBA{
		R: style.Color[0],
		G: style.Color[1],
		B: style.Color[2],
		A: style.RasterAlpha,
	})

	w := pdf.NewIncrementalWriter(doc)
	for _, p := range plan.Pages() {
		page := doc.Pages[p]
		geom := geometryOf(page)
		lines, err := r.pageLines(plan, p, geom, style)
		if err != nil {
			return nil, err
		}

		width := int(math.Ceil(geom.Width * scale))
		height := int(math.Ceil(geom.Height * scale))
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for _, line := range lines {
			if line.Text == "" {
				continue
			}
			// 图像 y 轴向下
			if err := drawer.drawLine(img, src, line.Text, line.X*scale, (geom.Height-line.Y)*scale); err != nil {
				return nil, fillerr.New(fillerr.LayoutBuildFailed, "raster", err)
			}
		}

		if err := w.AddImageOverlay(page, img); err != nil {
			return nil, fillerr.New(fillerr.WriteFailed, "raster", err)
		}
		r.logger.Debug("page rasterized", "backend", RasterOverlay, "page", p, "lines", len(lines), "width", width, "height", height)
	}
	data, err := w.Bytes()
	if err != nil {
		return nil, fillerr.New(fillerr.WriteFailed, "raster", err)
	}
	return data, nil
}

// newFaceDrawer TrueType 用 freetype 绘制，OTF/TTC 用 opentype
func newFaceDrawer(face *fonts.Face, px float64) (lineDrawer, error) {
	if face.Format == fonts.FormatTTF && face.TrueType != nil {
		return freetypeDrawer{font: face.TrueType, size: px}, nil
	}

	var (
		f   *opentype.Font
		err error
	)
	if face.Format == fonts.FormatTTC {
		coll, cerr := opentype.ParseCollection(face.Data)
		if cerr != nil {
			return nil, cerr
		}
		if coll.NumFonts() == 0 {
			return nil, fmt.Errorf("empty font collection %s", face.Path)
		}
		f, err = coll.Font(0)
	} else {
		f, err = opentype.Parse(face.Data)
	}
	if err != nil {
		return nil, err
	}

	ff, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    px,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	return xfaceDrawer{face: ff}, nil
}

// freetypeDrawer 使用 FreeType 上下文绘制
type freetypeDrawer struct {
	font *truetype.Font
	size float64
}

func (d freetypeDrawer) drawLine(dst *image.RGBA, src image.Image, text string, x, y float64) error {
	// DPI 为 72 时字号即像素大小
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(d.font)
	c.SetFontSize(d.size)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(src)
	c.SetHinting(font.HintingNone)

	_, err := c.DrawString(text, fixedPoint(x, y))
	return err
}

// xfaceDrawer 使用 x/image 的 font.Face 绘制
type xfaceDrawer struct {
	face font.Face
}

func (d xfaceDrawer) drawLine(dst *image.RGBA, src image.Image, text string, x, y float64) error {
	dr := font.Drawer{Dst: dst, Src: src, Face: d.face, Dot: fixedPoint(x, y)}
	dr.DrawString(text)
	return nil
}

// basicDrawer 以 7x13 位图字体绘制，再缩放到目标字号
type basicDrawer struct {
	size float64
}

func (d basicDrawer) drawLine(dst *image.RGBA, src image.Image, text string, x, y float64) error {
	face := basicfont.Face7x13
	advance := font.MeasureString(face, text).Ceil()
	if advance <= 0 {
		return nil
	}
	metrics := face.Metrics()
	ascent, descent := metrics.Ascent.Ceil(), metrics.Descent.Ceil()

	tmp := image.NewRGBA(image.Rect(0, 0, advance, ascent+descent))
	dr := font.Drawer{Dst: tmp, Src: src, Face: face, Dot: fixed.P(0, ascent)}
	dr.DrawString(text)

	k := d.size / float64(ascent+descent)
	target := image.Rect(
		int(math.Round(x)),
		int(math.Round(y-float64(ascent)*k)),
		int(math.Round(x+float64(advance)*k)),
		int(math.Round(y+float64(descent)*k)),
	)
	draw.BiLinear.Scale(dst, target, tmp, tmp.Bounds(), draw.Over, nil)
	return nil
}

func fixedPoint(x, y float64) fixed.Point26_6 {
	return fixed.Point26_6{
		X: fixed.Int26_6(math.Round(x * 64)),
		Y: fixed.Int26_6(math.Round(y * 64)),
	}
}
