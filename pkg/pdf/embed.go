package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/math/fixed"
)

// ErrMissingGlyph is returned when an embedded font cannot show a rune
var ErrMissingGlyph = errors.New("font has no glyph")

// FontResource is a font that has been added to a document and can encode
// text for a content stream.
type FontResource interface {
	// Ref is the Type0 font dictionary
	Ref() Reference
	// BaseFont is the PostScript name written to the font dictionary
	BaseFont() string
	// Encode returns text as a hex string operand for Tj
	Encode(text string) string
}

// EmbeddedFont is a TrueType font embedded as a CIDFontType2 with an
// Identity-H encoding, so codes are glyph ids.
type EmbeddedFont struct {
	ref    Reference
	name   string
	glyphs map[rune]truetype.Index
}

// Ref returns the Type0 font dictionary reference
func (ef *EmbeddedFont) Ref() Reference { return ef.ref }

// BaseFont returns the embedded font name
func (ef *EmbeddedFont) BaseFont() string { return ef.name }

// Encode returns the glyph ids of text as a hex string. Runes that were
// not registered when the font was embedded are dropped.
func (ef *EmbeddedFont) Encode(text string) string {
	var sb strings.Builder
	sb.WriteByte('<')
	for _, r := range text {
		gid, ok := ef.glyphs[r]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "%04X", uint16(gid))
	}
	sb.WriteByte('>')
	return sb.String()
}

// EmbedTrueType adds a TrueType font program to w. Every rune of text must
// be covered by the font; text is also what the ToUnicode map is built from.
func EmbedTrueType(w ObjectAdder, data []byte, text string) (*EmbeddedFont, error) {
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}

	glyphs := make(map[rune]truetype.Index)
	for _, r := range text {
		if _, seen := glyphs[r]; seen {
			continue
		}
		idx := f.Index(r)
		if idx == 0 {
			if unicode.IsControl(r) {
				continue
			}
			return nil, fmt.Errorf("%w for %q", ErrMissingGlyph, r)
		}
		glyphs[r] = idx
	}

	name := postScriptName(f)
	em := fixed.Int26_6(1000)
	bounds := f.Bounds(em)

	fontFile := NewFlateStream(Dictionary{"Length1": Integer(len(data))}, data)
	fontFileRef := w.Add(fontFile)

	descriptorRef := w.Add(Dictionary{
		"Type":        Name("FontDescriptor"),
		"FontName":    Name(name),
		"Flags":       Integer(32),
		"FontBBox":    Array{Integer(bounds.Min.X), Integer(bounds.Min.Y), Integer(bounds.Max.X), Integer(bounds.Max.Y)},
		"ItalicAngle": Integer(0),
		"Ascent":      Integer(bounds.Max.Y),
		"Descent":     Integer(bounds.Min.Y),
		"CapHeight":   Integer(bounds.Max.Y),
		"StemV":       Integer(80),
		"FontFile2":   fontFileRef,
	})

	// W: one entry per used glyph, ordered by glyph id
	gids := make([]int, 0, len(glyphs))
	seenGID := make(map[truetype.Index]bool)
	for _, idx := range glyphs {
		if !seenGID[idx] {
			seenGID[idx] = true
			gids = append(gids, int(idx))
		}
	}
	sort.Ints(gids)
	widths := Array{}
	for _, gid := range gids {
		adv := f.HMetric(em, truetype.Index(gid)).AdvanceWidth
		widths = append(widths, Integer(gid), Array{Integer(adv)})
	}

	cidRef := w.Add(Dictionary{
		"Type":     Name("Font"),
		"Subtype":  Name("CIDFontType2"),
		"BaseFont": Name(name),
		"CIDSystemInfo": Dictionary{
			"Registry":   String{Value: []byte("Adobe")},
			"Ordering":   String{Value: []byte("Identity")},
			"Supplement": Integer(0),
		},
		"FontDescriptor": descriptorRef,
		"DW":             Integer(1000),
		"W":              widths,
		"CIDToGIDMap":    Name("Identity"),
	})

	toUnicodeRef := w.Add(NewFlateStream(nil, toUnicodeCMap(glyphs)))

	ref := w.Add(Dictionary{
		"Type":            Name("Font"),
		"Subtype":         Name("Type0"),
		"BaseFont":        Name(name),
		"Encoding":        Name("Identity-H"),
		"DescendantFonts": Array{cidRef},
		"ToUnicode":       toUnicodeRef,
	})

	return &EmbeddedFont{ref: ref, name: name, glyphs: glyphs}, nil
}

// postScriptName returns a name usable as /BaseFont
func postScriptName(f *truetype.Font) string {
	name := f.Name(truetype.NameIDPostscriptName)
	if name == "" {
		name = f.Name(truetype.NameIDFontFullName)
	}
	name = strings.Map(func(r rune) rune {
		if r <= ' ' || r > '~' || strings.ContainsRune("()<>[]{}/%#", r) {
			return -1
		}
		return r
	}, name)
	if name == "" {
		return "EmbeddedFont"
	}
	return name
}

// toUnicodeCMap writes a bfchar CMap from glyph ids back to text
func toUnicodeCMap(glyphs map[rune]truetype.Index) []byte {
	byGID := make(map[truetype.Index]rune, len(glyphs))
	for r, gid := range glyphs {
		if prev, ok := byGID[gid]; !ok || r < prev {
			byGID[gid] = r
		}
	}
	gids := make([]int, 0, len(byGID))
	for gid := range byGID {
		gids = append(gids, int(gid))
	}
	sort.Ints(gids)

	var buf bytes.Buffer
	buf.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	buf.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	buf.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	buf.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")

	// bfchar sections hold at most 100 entries
	for start := 0; start < len(gids); start += 100 {
		end := start + 100
		if end > len(gids) {
			end = len(gids)
		}
		fmt.Fprintf(&buf, "%d beginbfchar\n", end-start)
		for _, gid := range gids[start:end] {
			fmt.Fprintf(&buf, "<%04X> <%X>\n", gid, encodeUTF16BE(string(byGID[truetype.Index(gid)])))
		}
		buf.WriteString("endbfchar\n")
	}
	buf.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return buf.Bytes()
}

// StandardCJKFont is the non-embedded STSong-Light font with the
// UniGB-UCS2-H encoding. Viewers substitute a local CJK face for it.
type StandardCJKFont struct {
	ref Reference
}

// STSongLight is the base font name of the standard simplified Chinese font
const STSongLight = "STSong-Light"

// AddStandardCJKFont adds the STSong-Light font dictionaries to w
func AddStandardCJKFont(w ObjectAdder) *StandardCJKFont {
	descriptorRef := w.Add(Dictionary{
		"Type":        Name("FontDescriptor"),
		"FontName":    Name(STSongLight),
		"Flags":       Integer(6),
		"FontBBox":    Array{Integer(-25), Integer(-254), Integer(1000), Integer(880)},
		"ItalicAngle": Integer(0),
		"Ascent":      Integer(880),
		"Descent":     Integer(-120),
		"CapHeight":   Integer(880),
		"StemV":       Integer(93),
	})
	cidRef := w.Add(Dictionary{
		"Type":     Name("Font"),
		"Subtype":  Name("CIDFontType0"),
		"BaseFont": Name(STSongLight),
		"CIDSystemInfo": Dictionary{
			"Registry":   String{Value: []byte("Adobe")},
			"Ordering":   String{Value: []byte("GB1")},
			"Supplement": Integer(2),
		},
		"FontDescriptor": descriptorRef,
		"DW":             Integer(1000),
		"W":              Array{Integer(1), Integer(95), Integer(500)},
	})
	ref := w.Add(Dictionary{
		"Type":            Name("Font"),
		"Subtype":         Name("Type0"),
		"BaseFont":        Name(STSongLight),
		"Encoding":        Name("UniGB-UCS2-H"),
		"DescendantFonts": Array{cidRef},
	})
	return &StandardCJKFont{ref: ref}
}

// Ref returns the Type0 font dictionary reference
func (sf *StandardCJKFont) Ref() Reference { return sf.ref }

// BaseFont returns STSong-Light
func (sf *StandardCJKFont) BaseFont() string { return STSongLight }

// Encode writes text as UCS-2 codes. Runes outside the BMP are dropped.
func (sf *StandardCJKFont) Encode(text string) string {
	var sb strings.Builder
	sb.WriteByte('<')
	for _, r := range text {
		if r > 0xFFFF || unicode.IsControl(r) {
			continue
		}
		fmt.Fprintf(&sb, "%04X", r)
	}
	sb.WriteByte('>')
	return sb.String()
}
