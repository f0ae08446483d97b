package pdf

import (
	"fmt"
	"math"
)

// Char is one shown glyph with its box in page coordinates measured from
// the top-left corner of the media box (y grows downward).
type Char struct {
	Text   string
	X0, X1 float64
	Top    float64
	Bottom float64

	FontName string
	Size     float64
}

// maxFormDepth bounds Form XObject recursion
const maxFormDepth = 8

// Characters extracts every shown glyph of the page in content order
func (p *Page) Characters() ([]Char, error) {
	contents, err := p.GetContents()
	if err != nil {
		return nil, fmt.Errorf("page %d contents: %w", p.Number, err)
	}

	ex := &charExtractor{
		doc:   p.doc,
		page:  p,
		fonts: make(map[int]*Font),
		gs:    newTextState(),
	}
	ex.run(contents, p.Resources, 0)
	return ex.chars, nil
}

// textState is the part of the graphics state that affects glyph placement
type textState struct {
	ctm       [6]float64
	font      *Font
	fontSize  float64
	charSpace float64
	wordSpace float64
	scale     float64 // Tz / 100
	leading   float64
	rise      float64
}

func newTextState() textState {
	return textState{ctm: identityMatrix(), scale: 1}
}

type charExtractor struct {
	doc   *Document
	page  *Page
	fonts map[int]*Font

	gs    textState
	stack []textState
	tm    [6]float64
	tlm   [6]float64

	chars []Char
}

func (ex *charExtractor) run(contents []byte, resources Dictionary, depth int) {
	ops, _ := NewContentStreamParser(contents).ParseOperations()
	for _, op := range ops {
		ex.apply(op, resources, depth)
	}
}

func (ex *charExtractor) apply(op Operation, resources Dictionary, depth int) {
	args := op.Operands
	num := func(i int) float64 {
		if i < len(args) {
			return objectToFloat(args[i])
		}
		return 0
	}

	switch op.Operator {
	case "q":
		ex.stack = append(ex.stack, ex.gs)
	case "Q":
		if n := len(ex.stack); n > 0 {
			ex.gs = ex.stack[n-1]
			ex.stack = ex.stack[:n-1]
		}
	case "cm":
		if len(args) >= 6 {
			m := [6]float64{num(0), num(1), num(2), num(3), num(4), num(5)}
			ex.gs.ctm = multiplyMatrix(m, ex.gs.ctm)
		}

	case "BT":
		ex.tm = identityMatrix()
		ex.tlm = identityMatrix()
	case "Tf":
		if len(args) >= 2 {
			if name, ok := args[0].(Name); ok {
				ex.gs.font = ex.fontFor(resources, string(name))
			}
			ex.gs.fontSize = num(1)
		}
	case "Tc":
		ex.gs.charSpace = num(0)
	case "Tw":
		ex.gs.wordSpace = num(0)
	case "Tz":
		ex.gs.scale = num(0) / 100
	case "TL":
		ex.gs.leading = num(0)
	case "Ts":
		ex.gs.rise = num(0)

	case "Td":
		ex.moveLine(num(0), num(1))
	case "TD":
		ex.gs.leading = -num(1)
		ex.moveLine(num(0), num(1))
	case "Tm":
		if len(args) >= 6 {
			ex.tlm = [6]float64{num(0), num(1), num(2), num(3), num(4), num(5)}
			ex.tm = ex.tlm
		}
	case "T*":
		ex.moveLine(0, -ex.gs.leading)

	case "Tj":
		if len(args) >= 1 {
			if s, ok := args[0].(String); ok {
				ex.show(s.Value)
			}
		}
	case "'":
		ex.moveLine(0, -ex.gs.leading)
		if len(args) >= 1 {
			if s, ok := args[0].(String); ok {
				ex.show(s.Value)
			}
		}
	case "\"":
		if len(args) >= 3 {
			ex.gs.wordSpace = num(0)
			ex.gs.charSpace = num(1)
			ex.moveLine(0, -ex.gs.leading)
			if s, ok := args[2].(String); ok {
				ex.show(s.Value)
			}
		}
	case "TJ":
		if len(args) >= 1 {
			if arr, ok := args[0].(Array); ok {
				ex.showArray(arr)
			}
		}

	case "Do":
		if len(args) >= 1 && depth < maxFormDepth {
			if name, ok := args[0].(Name); ok {
				ex.doForm(resources, string(name), depth)
			}
		}
	}
}

// moveLine starts a new line offset from the start of the current one
func (ex *charExtractor) moveLine(tx, ty float64) {
	ex.tlm = multiplyMatrix([6]float64{1, 0, 0, 1, tx, ty}, ex.tlm)
	ex.tm = ex.tlm
}

// show places every glyph of a shown string
func (ex *charExtractor) show(data []byte) {
	font := ex.gs.font
	if font == nil {
		// Text before Tf: treat as a bare Latin-1 font
		font = &Font{widthScale: 1, encoding: winAnsiEncoding()}
	}

	fs := ex.gs.fontSize
	th := ex.gs.scale
	descent := font.Descent / 1000

	for len(data) > 0 {
		code, n := font.NextCode(data)
		data = data[n:]
		text := font.Text(code)
		w0 := font.Width(code, text) / 1000

		trm := multiplyMatrix(
			[6]float64{fs * th, 0, 0, fs, 0, ex.gs.rise},
			multiplyMatrix(ex.tm, ex.gs.ctm),
		)
		ex.emit(text, font, trm, w0, descent)

		tx := w0*fs + ex.gs.charSpace
		if font.IsSpace(code, n) {
			tx += ex.gs.wordSpace
		}
		ex.tm = multiplyMatrix([6]float64{1, 0, 0, 1, tx * th, 0}, ex.tm)
	}
}

// showArray handles TJ: strings interleaved with positioning numbers
func (ex *charExtractor) showArray(arr Array) {
	for _, item := range arr {
		switch v := item.(type) {
		case String:
			ex.show(v.Value)
		case Integer, Real:
			tx := -objectToFloat(v) / 1000 * ex.gs.fontSize * ex.gs.scale
			ex.tm = multiplyMatrix([6]float64{1, 0, 0, 1, tx, 0}, ex.tm)
		}
	}
}

// emit records one glyph; its box spans the advance horizontally and one
// em vertically starting at the font descent.
func (ex *charExtractor) emit(text string, font *Font, trm [6]float64, w0, descent float64) {
	corners := [4][2]float64{
		{0, descent}, {w0, descent}, {0, descent + 1}, {w0, descent + 1},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x := c[0]*trm[0] + c[1]*trm[2] + trm[4]
		y := c[0]*trm[1] + c[1]*trm[3] + trm[5]
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	mb := ex.page.MediaBox
	ex.chars = append(ex.chars, Char{
		Text:     text,
		X0:       minX - mb.LLX,
		X1:       maxX - mb.LLX,
		Top:      mb.URY - maxY,
		Bottom:   mb.URY - minY,
		FontName: font.Name,
		Size:     math.Hypot(trm[2], trm[3]),
	})
}

// fontFor resolves a font resource by name, caching indirect fonts
func (ex *charExtractor) fontFor(resources Dictionary, name string) *Font {
	fonts, ok := ex.doc.resolveDict(resources.Get("Font"))
	if !ok {
		return nil
	}
	ref := fonts.Get(name)
	if r, isRef := ref.(Reference); isRef {
		if f, cached := ex.fonts[r.ObjectNumber]; cached {
			return f
		}
	}
	dict, ok := ex.doc.resolveDict(ref)
	if !ok {
		return nil
	}
	f := ex.doc.loadFont(dict)
	if r, isRef := ref.(Reference); isRef {
		ex.fonts[r.ObjectNumber] = f
	}
	return f
}

// doForm runs a Form XObject's content with its own matrix and resources
func (ex *charExtractor) doForm(resources Dictionary, name string, depth int) {
	xobjects, ok := ex.doc.resolveDict(resources.Get("XObject"))
	if !ok {
		return
	}
	form, ok := ex.doc.resolve(xobjects.Get(name)).(Stream)
	if !ok {
		return
	}
	if st, _ := form.Dictionary.GetName("Subtype"); st != "Form" {
		return
	}
	data, err := form.Decode()
	if err != nil {
		return
	}

	formRes := resources
	if res, ok := ex.doc.resolveDict(form.Dictionary.Get("Resources")); ok {
		formRes = res
	}

	saved, savedTM, savedTLM := ex.gs, ex.tm, ex.tlm
	if m, ok := ex.doc.resolve(form.Dictionary.Get("Matrix")).(Array); ok && len(m) == 6 {
		fm := [6]float64{}
		for i := range fm {
			fm[i] = objectToFloat(m[i])
		}
		ex.gs.ctm = multiplyMatrix(fm, ex.gs.ctm)
	}
	ex.run(data, formRes, depth+1)
	ex.gs, ex.tm, ex.tlm = saved, savedTM, savedTLM
}

func identityMatrix() [6]float64 {
	return [6]float64{1, 0, 0, 1, 0, 0}
}

// multiplyMatrix returns a x b in PDF row-vector convention
func multiplyMatrix(a, b [6]float64) [6]float64 {
	return [6]float64{
		a[0]*b[0] + a[1]*b[2],
		a[0]*b[1] + a[1]*b[3],
		a[2]*b[0] + a[3]*b[2],
		a[2]*b[1] + a[3]*b[3],
		a[4]*b[0] + a[5]*b[2] + b[4],
		a[4]*b[1] + a[5]*b[3] + b[5],
	}
}
