package pdf

import (
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// Font is the extraction view of a page font: how to split a shown string
// into codes, what text each code stands for and how wide it is.
type Font struct {
	Name      string
	Subtype   string
	Composite bool

	toUnicode  *CMap
	codespace  *CMap // embedded Type0 encoding CMap, codespace only
	unicodeCID bool  // predefined Uni*-UCS2 / UTF16 encodings: code is Unicode
	encoding   map[byte]rune

	firstChar    int
	widths       []float64
	cidWidths    map[uint32]float64
	defaultWidth float64
	builtin      map[byte]float64
	widthScale   float64 // Type3 FontMatrix scale into 1/1000 units

	// Descent in glyph units (negative below the baseline)
	Descent float64
}

// loadFont builds a Font from its dictionary
func (d *Document) loadFont(dict Dictionary) *Font {
	f := &Font{widthScale: 1}
	if n, ok := dict.GetName("Subtype"); ok {
		f.Subtype = string(n)
	}
	if n, ok := dict.GetName("BaseFont"); ok {
		f.Name = string(n)
	}

	if stream, ok := d.resolve(dict.Get("ToUnicode")).(Stream); ok {
		if data, err := stream.Decode(); err == nil {
			f.toUnicode = ParseCMap(data)
		}
	}

	if f.Subtype == "Type0" {
		f.loadComposite(d, dict)
	} else {
		f.loadSimple(d, dict)
	}
	return f
}

func (f *Font) loadComposite(d *Document, dict Dictionary) {
	f.Composite = true
	f.defaultWidth = 1000

	switch enc := d.resolve(dict.Get("Encoding")).(type) {
	case Name:
		name := string(enc)
		f.unicodeCID = strings.Contains(name, "UCS2") || strings.Contains(name, "UTF16")
	case Stream:
		if data, err := enc.Decode(); err == nil {
			f.codespace = ParseCMap(data)
		}
	}

	descendants, _ := d.resolve(dict.Get("DescendantFonts")).(Array)
	if len(descendants) == 0 {
		return
	}
	cid, ok := d.resolveDict(descendants[0])
	if !ok {
		return
	}
	if dw, ok := cid.GetFloat("DW"); ok {
		f.defaultWidth = dw
	}
	if w, ok := d.resolve(cid.Get("W")).(Array); ok {
		f.cidWidths = parseCIDWidths(d, w)
	}
	if fd, ok := d.resolveDict(cid.Get("FontDescriptor")); ok {
		f.Descent, _ = fd.GetFloat("Descent")
	}
}

// parseCIDWidths reads a W array: c [w1 w2 ...] and cFirst cLast w entries
func parseCIDWidths(d *Document, w Array) map[uint32]float64 {
	out := make(map[uint32]float64)
	for i := 0; i < len(w); {
		first := uint32(objectToFloat(d.resolve(w[i])))
		if i+1 >= len(w) {
			break
		}
		if arr, ok := d.resolve(w[i+1]).(Array); ok {
			for j, v := range arr {
				out[first+uint32(j)] = objectToFloat(d.resolve(v))
			}
			i += 2
			continue
		}
		if i+2 >= len(w) {
			break
		}
		last := uint32(objectToFloat(d.resolve(w[i+1])))
		width := objectToFloat(d.resolve(w[i+2]))
		for c := first; c <= last && c-first < 0x10000; c++ {
			out[c] = width
		}
		i += 3
	}
	return out
}

func (f *Font) loadSimple(d *Document, dict Dictionary) {
	base := strings.TrimPrefix(f.Name, subsetPrefix(f.Name))

	if fc, ok := dict.GetInt("FirstChar"); ok {
		f.firstChar = int(fc)
	}
	if ws, ok := d.resolve(dict.Get("Widths")).(Array); ok {
		f.widths = make([]float64, len(ws))
		for i, w := range ws {
			f.widths[i] = objectToFloat(d.resolve(w))
		}
	}
	if f.Subtype == "Type3" {
		if fm, ok := d.resolve(dict.Get("FontMatrix")).(Array); ok && len(fm) == 6 {
			f.widthScale = objectToFloat(fm[0]) * 1000
		}
	}

	f.encoding = winAnsiEncoding()
	switch enc := d.resolve(dict.Get("Encoding")).(type) {
	case Name:
		if enc == "MacRomanEncoding" {
			applyMacRoman(f.encoding)
		}
	case Dictionary:
		if diffs, ok := d.resolve(enc.Get("Differences")).(Array); ok {
			applyDifferences(f.encoding, diffs)
		}
	}

	if fd, ok := d.resolveDict(dict.Get("FontDescriptor")); ok {
		f.Descent, _ = fd.GetFloat("Descent")
		if f.widths == nil {
			if mw, ok := fd.GetFloat("MissingWidth"); ok && mw > 0 {
				f.defaultWidth = mw
			}
		}
	}

	// Standard 14 fonts usually come without Widths
	if f.widths == nil {
		f.builtin, f.defaultWidth = standardWidths(base)
		if f.Descent == 0 {
			f.Descent = standardDescent(base)
		}
	}
}

// subsetPrefix returns the "ABCDEF+" prefix of a subset font name
func subsetPrefix(name string) string {
	if len(name) > 7 && name[6] == '+' {
		for i := 0; i < 6; i++ {
			if name[i] < 'A' || name[i] > 'Z' {
				return ""
			}
		}
		return name[:7]
	}
	return ""
}

// NextCode splits the next code off a shown string
func (f *Font) NextCode(data []byte) (code uint32, n int) {
	if !f.Composite {
		return uint32(data[0]), 1
	}
	if f.codespace != nil && len(f.codespace.codespaces) > 0 {
		return f.codespace.NextCode(data, 2)
	}
	return (*CMap)(nil).NextCode(data, 2)
}

// Text returns the Unicode text of a code
func (f *Font) Text(code uint32) string {
	if f.toUnicode != nil {
		if s, ok := f.toUnicode.Lookup(code); ok {
			return s
		}
	}
	if f.Composite {
		// Identity encodings without ToUnicode: assume CID == Unicode
		if f.unicodeCID || code >= 0x20 {
			return string(rune(code))
		}
		return ""
	}
	if r, ok := f.encoding[byte(code)]; ok {
		return string(r)
	}
	return string(rune(code))
}

// Width returns the advance of a code in glyph units (1/1000 em)
func (f *Font) Width(code uint32, text string) float64 {
	if f.Composite {
		cid := code
		if f.unicodeCID && code >= 0x20 && code <= 0x7E {
			// Adobe CJK orderings place printable ASCII at CID 1-95
			cid = code - 0x1F
		} else if f.unicodeCID {
			return f.defaultWidth
		}
		if w, ok := f.cidWidths[cid]; ok {
			return w
		}
		return f.defaultWidth
	}

	idx := int(code) - f.firstChar
	if f.widths != nil && idx >= 0 && idx < len(f.widths) {
		return f.widths[idx] * f.widthScale
	}
	if w, ok := f.builtin[byte(code)]; ok {
		return w
	}
	if f.defaultWidth > 0 && f.widths != nil {
		return f.defaultWidth
	}
	return estimateGlyphWidth(text, f.defaultWidth)
}

// estimateGlyphWidth guesses a width for fonts without metrics
func estimateGlyphWidth(text string, fallback float64) float64 {
	for _, r := range text {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			return 1000
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 500
}

// IsSpace reports whether word spacing applies to code
func (f *Font) IsSpace(code uint32, n int) bool {
	return n == 1 && code == 32
}

// winAnsiEncoding returns Latin-1 with the WinAnsi 0x80-0x9F block
func winAnsiEncoding() map[byte]rune {
	enc := make(map[byte]rune, 256)
	for i := 0x20; i < 0x100; i++ {
		enc[byte(i)] = rune(i)
	}
	high := []rune{
		0x20AC, 0, 0x201A, 0x0192, 0x201E, 0x2026, 0x2020, 0x2021,
		0x02C6, 0x2030, 0x0160, 0x2039, 0x0152, 0, 0x017D, 0,
		0, 0x2018, 0x2019, 0x201C, 0x201D, 0x2022, 0x2013, 0x2014,
		0x02DC, 0x2122, 0x0161, 0x203A, 0x0153, 0, 0x017E, 0x0178,
	}
	for i, r := range high {
		if r != 0 {
			enc[byte(0x80+i)] = r
		}
	}
	return enc
}

// applyMacRoman overrides the upper half with the common MacRoman letters
func applyMacRoman(enc map[byte]rune) {
	mac := map[byte]rune{
		0x80: 'Ä', 0x81: 'Å', 0x82: 'Ç', 0x83: 'É', 0x84: 'Ñ', 0x85: 'Ö', 0x86: 'Ü',
		0x87: 'á', 0x88: 'à', 0x89: 'â', 0x8A: 'ä', 0x8B: 'ã', 0x8C: 'å', 0x8D: 'ç',
		0x8E: 'é', 0x8F: 'è', 0x90: 'ê', 0x91: 'ë', 0x92: 'í', 0x93: 'ì', 0x94: 'î',
		0x95: 'ï', 0x96: 'ñ', 0x97: 'ó', 0x98: 'ò', 0x99: 'ô', 0x9A: 'ö', 0x9B: 'õ',
		0x9C: 'ú', 0x9D: 'ù', 0x9E: 'û', 0x9F: 'ü', 0xD0: '–', 0xD1: '—',
		0xD2: '“', 0xD3: '”', 0xD4: '‘', 0xD5: '’',
	}
	for k, v := range mac {
		enc[k] = v
	}
}

// applyDifferences applies an /Differences array to enc
func applyDifferences(enc map[byte]rune, diffs Array) {
	code := 0
	for _, item := range diffs {
		switch v := item.(type) {
		case Integer:
			code = int(v)
		case Name:
			if code >= 0 && code < 256 {
				if r, ok := glyphNameToRune(string(v)); ok {
					enc[byte(code)] = r
				}
			}
			code++
		}
	}
}

var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "quoteright": '’',
	"parenleft": '(', "parenright": ')', "asterisk": '*', "plus": '+', "comma": ',',
	"hyphen": '-', "minus": '−', "period": '.', "slash": '/', "colon": ':', "semicolon": ';',
	"less": '<', "equal": '=', "greater": '>', "question": '?', "at": '@',
	"bracketleft": '[', "backslash": '\\', "bracketright": ']', "underscore": '_',
	"quoteleft": '‘', "braceleft": '{', "bar": '|', "braceright": '}', "asciitilde": '~',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
	"endash": '–', "emdash": '—', "bullet": '•', "quotedblleft": '“', "quotedblright": '”',
	"fi": 'ﬁ', "fl": 'ﬂ', "degree": '°', "section": '§', "copyright": '©', "registered": '®',
}

// glyphNameToRune maps a glyph name to Unicode
func glyphNameToRune(name string) (rune, bool) {
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if len(name) == 1 {
		return rune(name[0]), true
	}
	if strings.HasPrefix(name, "uni") && len(name) == 7 {
		if v, err := strconv.ParseUint(name[3:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	return 0, false
}

// helveticaWidths are the AFM advance widths of Helvetica for 0x20..0x7E
var helveticaWidths = [95]float64{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

// standardWidths returns builtin widths for a standard 14 font family
func standardWidths(base string) (map[byte]float64, float64) {
	lower := strings.ToLower(base)
	widths := make(map[byte]float64, 95)
	switch {
	case strings.Contains(lower, "courier"):
		for i := 0x20; i < 0x7F; i++ {
			widths[byte(i)] = 600
		}
		return widths, 600
	case strings.Contains(lower, "helvetica"), strings.Contains(lower, "arial"),
		strings.Contains(lower, "times"):
		for i, w := range helveticaWidths {
			widths[byte(0x20+i)] = w
		}
		return widths, 556
	}
	return nil, 0
}

func standardDescent(base string) float64 {
	lower := strings.ToLower(base)
	switch {
	case strings.Contains(lower, "courier"):
		return -157
	case strings.Contains(lower, "times"):
		return -217
	case strings.Contains(lower, "helvetica"), strings.Contains(lower, "arial"):
		return -207
	}
	return 0
}
