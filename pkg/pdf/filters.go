package pdf

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	tifflzw "golang.org/x/image/tiff/lzw"
)

// decoder undoes one stream filter
type decoder func(data []byte, params Dictionary) ([]byte, error)

var decoders = map[Name]decoder{
	"FlateDecode":     flateDecode,
	"ASCIIHexDecode":  asciiHexDecode,
	"ASCII85Decode":   ascii85Decode,
	"LZWDecode":       lzwDecode,
	"RunLengthDecode": runLengthDecode,
	// Image codecs stay encoded
	"DCTDecode": passThrough,
	"JPXDecode": passThrough,
}

// abbreviations used by inline images
var filterAliases = map[Name]Name{
	"Fl":  "FlateDecode",
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"LZW": "LZWDecode",
	"RL":  "RunLengthDecode",
	"DCT": "DCTDecode",
}

// decodeFilters runs data through the stream's filter chain
func decodeFilters(data []byte, dict Dictionary) ([]byte, error) {
	names := nameList(dict.Get("Filter"))
	parms := parmList(dict.Get("DecodeParms"), len(names))
	for i, name := range names {
		if full, ok := filterAliases[name]; ok {
			name = full
		}
		dec, ok := decoders[name]
		if !ok {
			return nil, fmt.Errorf("unsupported filter: %s", name)
		}
		var err error
		if data, err = dec(data, parms[i]); err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
	}
	return data, nil
}

func nameList(obj Object) []Name {
	switch v := obj.(type) {
	case Name:
		return []Name{v}
	case Array:
		out := make([]Name, 0, len(v))
		for _, item := range v {
			if n, ok := item.(Name); ok {
				out = append(out, n)
			}
		}
		return out
	}
	return nil
}

// parmList returns exactly n parameter dictionaries, nil where absent
func parmList(obj Object, n int) []Dictionary {
	out := make([]Dictionary, n)
	switch v := obj.(type) {
	case Dictionary:
		if n > 0 {
			out[0] = v
		}
	case Array:
		for i := 0; i < n && i < len(v); i++ {
			out[i], _ = v[i].(Dictionary)
		}
	}
	return out
}

func passThrough(data []byte, _ Dictionary) ([]byte, error) {
	return data, nil
}

func flateDecode(data []byte, params Dictionary) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// Truncated streams are common; keep what was inflated
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return unpredict(out, params)
}

// flateEncode compresses data for writing
func flateEncode(data []byte) []byte {
	var buf bytes.Buffer
	w, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

// lzwDecode handles both code-width switch points. EarlyChange 1, the
// default, is the TIFF flavour.
func lzwDecode(data []byte, params Dictionary) ([]byte, error) {
	var r io.ReadCloser
	if ec, ok := params.GetInt("EarlyChange"); ok && ec == 0 {
		r = lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	} else {
		r = tifflzw.NewReader(bytes.NewReader(data), tifflzw.MSB, 8)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return unpredict(out, params)
}

func asciiHexDecode(data []byte, _ Dictionary) ([]byte, error) {
	if end := bytes.IndexByte(data, '>'); end >= 0 {
		data = data[:end]
	}
	digits := stripSpace(data)
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, digits); err != nil {
		return nil, err
	}
	return out, nil
}

func ascii85Decode(data []byte, _ Dictionary) ([]byte, error) {
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("<~"))
	if end := bytes.Index(data, []byte("~>")); end >= 0 {
		data = data[:end]
	}
	src := stripSpace(data)
	out := make([]byte, 4*len(src)+4)
	n, _, err := ascii85.Decode(out, src, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func stripSpace(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if !isWhitespace(b) {
			out = append(out, b)
		}
	}
	return out
}

var errShortRun = errors.New("run exceeds data")

func runLengthDecode(data []byte, _ Dictionary) ([]byte, error) {
	var out bytes.Buffer
	for len(data) > 0 {
		n := int(data[0])
		data = data[1:]
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			if n+1 > len(data) {
				return nil, errShortRun
			}
			out.Write(data[:n+1])
			data = data[n+1:]
		default:
			if len(data) == 0 {
				return nil, errShortRun
			}
			out.Write(bytes.Repeat(data[:1], 257-n))
			data = data[1:]
		}
	}
	return out.Bytes(), nil
}

// unpredict reverses a TIFF (2) or PNG (10-15) predictor
func unpredict(data []byte, params Dictionary) ([]byte, error) {
	predictor, _ := params.GetInt("Predictor")
	if predictor <= 1 {
		return data, nil
	}

	get := func(key string, def int64) int {
		if v, ok := params.GetInt(key); ok && v > 0 {
			return int(v)
		}
		return int(def)
	}
	colors := get("Colors", 1)
	bpc := get("BitsPerComponent", 8)
	columns := get("Columns", 1)
	bpp := max((colors*bpc+7)/8, 1)
	stride := (columns*colors*bpc + 7) / 8

	if predictor == 2 {
		if bpc != 8 {
			return data, nil
		}
		for row := 0; row+stride <= len(data); row += stride {
			for i := row + bpp; i < row+stride; i++ {
				data[i] += data[i-bpp]
			}
		}
		return data, nil
	}

	if len(data)%(stride+1) != 0 {
		return nil, fmt.Errorf("predictor rows do not divide %d bytes", len(data))
	}
	out := make([]byte, 0, len(data)/(stride+1)*stride)
	prev := make([]byte, stride)
	for off := 0; off < len(data); off += stride + 1 {
		cur := append([]byte(nil), data[off+1:off+1+stride]...)
		unfilterPNGRow(data[off], cur, prev, bpp)
		out = append(out, cur...)
		prev = cur
	}
	return out, nil
}

// unfilterPNGRow reverses one PNG row filter in place
func unfilterPNGRow(kind byte, cur, prev []byte, bpp int) {
	for i := range cur {
		var left, upLeft byte
		if i >= bpp {
			left, upLeft = cur[i-bpp], prev[i-bpp]
		}
		up := prev[i]
		switch kind {
		case 1:
			cur[i] += left
		case 2:
			cur[i] += up
		case 3:
			cur[i] += byte((int(left) + int(up)) / 2)
		case 4:
			cur[i] += paeth(left, up, upLeft)
		}
	}
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := p-int(a), p-int(b), p-int(c)
	if pa < 0 {
		pa = -pa
	}
	if pb < 0 {
		pb = -pb
	}
	if pc < 0 {
		pc = -pc
	}
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}
