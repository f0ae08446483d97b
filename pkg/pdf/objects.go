// Package pdf reads PDF documents, extracts positioned characters from their
// pages and writes new or incrementally updated documents.
package pdf

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Object is any PDF value. String returns its serialized form.
type Object interface {
	String() string
}

type (
	Null    struct{}
	Boolean bool
	Integer int64
	Real    float64
	Name    string
	Array   []Object

	// Dictionary keys are stored without the leading slash
	Dictionary map[Name]Object
)

// String is a PDF string. IsHex only affects how it is written back.
type String struct {
	Value []byte
	IsHex bool
}

// Stream holds raw, still encoded data
type Stream struct {
	Dictionary Dictionary
	Data       []byte
}

// Reference is an indirect object reference "num gen R"
type Reference struct {
	ObjectNumber     int
	GenerationNumber int
}

func (Null) String() string      { return "null" }
func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }
func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }
func (r Real) String() string    { return formatReal(float64(r)) }
func (a Array) String() string   { return serialize(a) }
func (d Dictionary) String() string {
	return serialize(d)
}
func (s Stream) String() string { return serialize(s.Dictionary) + " stream" }
func (r Reference) String() string {
	return fmt.Sprintf("%d %d R", r.ObjectNumber, r.GenerationNumber)
}

func (s String) String() string {
	if s.IsHex {
		return fmt.Sprintf("<%X>", s.Value)
	}
	return "(" + literalEscaper.Replace(string(s.Value)) + ")"
}

var literalEscaper = strings.NewReplacer(`(`, `\(`, `)`, `\)`, `\`, `\\`, "\r", `\r`, "\n", `\n`)

// String writes the name with #XX escapes for anything outside the
// regular printable range.
func (n Name) String() string {
	var sb strings.Builder
	sb.WriteByte('/')
	for i := 0; i < len(n); i++ {
		if c := n[i]; c < '!' || c > '~' || c == '#' || isDelimiter(c) {
			fmt.Fprintf(&sb, "#%02X", c)
		} else {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// formatReal prints at most four decimals and never an exponent
func formatReal(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

var (
	utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

// Text decodes a text string: UTF-16BE or UTF-8 when a byte order mark
// says so, PDFDocEncoding otherwise.
func (s String) Text() string {
	switch v := s.Value; {
	case len(v) >= 2 && v[0] == 0xFE && v[1] == 0xFF:
		return decodeUTF16BE(v[2:])
	case bytes.HasPrefix(v, utf8BOM):
		return string(v[len(utf8BOM):])
	default:
		return decodePDFDocEncoding(v)
	}
}

func decodeUTF16BE(data []byte) string {
	out, err := utf16be.NewDecoder().Bytes(data)
	if err != nil {
		return ""
	}
	return string(out)
}

// encodeUTF16BE encodes s without a byte order mark
func encodeUTF16BE(s string) []byte {
	out, _ := utf16be.NewEncoder().Bytes([]byte(s))
	return out
}

// decodePDFDocEncoding reads PDFDocEncoding as Latin-1, which it matches
// for every printable code outside 0x18-0x1F and 0x80-0xA0.
func decodePDFDocEncoding(data []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// Get returns the raw value under key, nil when absent
func (d Dictionary) Get(key string) Object {
	return d[Name(key)]
}

func (d Dictionary) GetName(key string) (Name, bool) {
	n, ok := d.Get(key).(Name)
	return n, ok
}

// GetInt accepts reals too, truncating them
func (d Dictionary) GetInt(key string) (int64, bool) {
	f, ok := d.GetFloat(key)
	return int64(f), ok
}

func (d Dictionary) GetFloat(key string) (float64, bool) {
	switch v := d.Get(key).(type) {
	case Integer:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

func (d Dictionary) GetArray(key string) (Array, bool) {
	a, ok := d.Get(key).(Array)
	return a, ok
}

func (d Dictionary) GetDict(key string) (Dictionary, bool) {
	sub, ok := d.Get(key).(Dictionary)
	return sub, ok
}

// Clone returns a shallow copy, never nil
func (d Dictionary) Clone() Dictionary {
	out := make(Dictionary, len(d))
	maps.Copy(out, d)
	return out
}

// Decode applies the stream's filter chain
func (s Stream) Decode() ([]byte, error) {
	if s.Dictionary.Get("Filter") == nil {
		return s.Data, nil
	}
	return decodeFilters(s.Data, s.Dictionary)
}

// NewFlateStream compresses data into a FlateDecode stream. dict is
// modified in place when non-nil.
func NewFlateStream(dict Dictionary, data []byte) Stream {
	if dict == nil {
		dict = Dictionary{}
	}
	dict["Filter"] = Name("FlateDecode")
	return Stream{Dictionary: dict, Data: flateEncode(data)}
}

func serialize(obj Object) string {
	var buf bytes.Buffer
	writeObject(&buf, obj)
	return buf.String()
}

// writeObject serializes obj with sorted dictionary keys, so equal
// objects always produce equal bytes. Stream lengths are recomputed.
func writeObject(buf *bytes.Buffer, obj Object) {
	switch v := obj.(type) {
	case nil:
		buf.WriteString("null")
	case Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, item)
		}
		buf.WriteByte(']')
	case Dictionary:
		buf.WriteString("<<")
		keys := make([]Name, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(k.String())
			buf.WriteByte(' ')
			writeObject(buf, v[k])
		}
		buf.WriteString(">>")
	case Stream:
		dict := v.Dictionary.Clone()
		dict["Length"] = Integer(len(v.Data))
		writeObject(buf, dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	default:
		buf.WriteString(v.String())
	}
}

// objectToFloat reads a number, 0 for anything else
func objectToFloat(obj Object) float64 {
	switch v := obj.(type) {
	case Integer:
		return float64(v)
	case Real:
		return float64(v)
	}
	return 0
}
