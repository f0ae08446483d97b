package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// xrefEntry locates one object: at Offset in the file, or as member Index
// of object stream Stream.
type xrefEntry struct {
	Offset     int64
	Generation int
	InUse      bool
	Stream     int
	Index      int
}

// objectStream is a decoded /Type /ObjStm with its member offsets
type objectStream struct {
	body    []byte
	offsets []int
}

// locateStartXRef reads the offset after the last startxref keyword
func (d *Document) locateStartXRef() (int64, error) {
	tail := d.data[max(0, len(d.data)-2048):]
	i := bytes.LastIndex(tail, []byte("startxref"))
	if i < 0 {
		return 0, errors.New("startxref not found")
	}
	fields := bytes.Fields(tail[i+len("startxref"):])
	if len(fields) == 0 {
		return 0, errors.New("startxref without offset")
	}
	off, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil || off < 0 || off >= int64(len(d.data)) {
		return 0, fmt.Errorf("invalid startxref offset %q", fields[0])
	}
	return off, nil
}

// loadXRef walks the cross-reference sections starting with the newest.
// Entries and trailer keys seen first win, so later updates shadow older
// ones.
func (d *Document) loadXRef(start int64) error {
	queue := []int64{start}
	seen := make(map[int64]bool)
	for len(queue) > 0 {
		off := queue[0]
		queue = queue[1:]
		if seen[off] || off < 0 || off >= int64(len(d.data)) {
			continue
		}
		seen[off] = true

		trailer, err := d.readSection(off)
		if err != nil {
			return err
		}
		if d.Trailer == nil {
			d.Trailer = Dictionary{}
		}
		for k, v := range trailer {
			if _, ok := d.Trailer[k]; !ok {
				d.Trailer[k] = v
			}
		}

		// Hybrid files keep extra entries in an xref stream
		for _, key := range []string{"XRefStm", "Prev"} {
			if n, ok := trailer.Get(key).(Integer); ok {
				queue = append(queue, int64(n))
			}
		}
	}
	return nil
}

func (d *Document) readSection(off int64) (Dictionary, error) {
	for off < int64(len(d.data)) && isWhitespace(d.data[off]) {
		off++
	}
	if bytes.HasPrefix(d.data[off:], []byte("xref")) {
		return d.readXRefTable(off + int64(len("xref")))
	}
	return d.readXRefStream(off)
}

func (d *Document) addEntry(num int, e xrefEntry) {
	if _, ok := d.xref[num]; !ok {
		d.xref[num] = e
	}
}

// readXRefTable reads classic "first count" subsections up to the
// trailer keyword and returns the trailer dictionary.
func (d *Document) readXRefTable(off int64) (Dictionary, error) {
	lx := NewLexerFromBytes(d.data[off:])
	for {
		at := lx.pos
		raw, ok := lx.ReadLine()
		if !ok {
			return nil, errors.New("xref table without trailer")
		}
		// the trailer dictionary may share the keyword's line
		if i := bytes.Index(raw, []byte("trailer")); i >= 0 {
			lx.pos = at + i + len("trailer")
			break
		}

		head := bytes.Fields(raw)
		if len(head) != 2 {
			continue
		}
		first, err1 := strconv.Atoi(string(head[0]))
		count, err2 := strconv.Atoi(string(head[1]))
		if err1 != nil || err2 != nil || count < 0 {
			continue
		}
		for num := first; num < first+count; num++ {
			line, ok := lx.ReadLine()
			if !ok {
				return nil, errors.New("truncated xref subsection")
			}
			// nnnnnnnnnn ggggg n
			f := bytes.Fields(line)
			if len(f) < 3 {
				continue
			}
			offset, _ := strconv.ParseInt(string(f[0]), 10, 64)
			gen, _ := strconv.Atoi(string(f[1]))
			d.addEntry(num, xrefEntry{Offset: offset, Generation: gen, InUse: f[2][0] == 'n'})
		}
	}

	obj, err := NewParser(lx).ParseObject()
	if err != nil {
		return nil, fmt.Errorf("trailer: %w", err)
	}
	trailer, ok := obj.(Dictionary)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	return trailer, nil
}

// readXRefStream reads a /Type /XRef stream; its dictionary doubles as
// the trailer.
func (d *Document) readXRefStream(off int64) (Dictionary, error) {
	_, _, obj, err := NewParserFromBytes(d.data[off:]).ParseIndirectObject()
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(Stream)
	if !ok {
		return nil, fmt.Errorf("no xref stream at offset %d", off)
	}
	data, err := stream.Decode()
	if err != nil {
		return nil, err
	}

	widths := intsOf(stream.Dictionary.Get("W"))
	if len(widths) != 3 {
		return nil, errors.New("xref stream /W must have three entries")
	}
	row := widths[0] + widths[1] + widths[2]
	if row <= 0 {
		return nil, errors.New("xref stream /W is empty")
	}
	index := intsOf(stream.Dictionary.Get("Index"))
	if index == nil {
		size, _ := stream.Dictionary.GetInt("Size")
		index = []int{0, int(size)}
	}

	for i := 0; i+1 < len(index); i += 2 {
		for num := index[i]; num < index[i]+index[i+1] && len(data) >= row; num++ {
			f := splitXRefRow(data[:row], widths)
			data = data[row:]
			if widths[0] == 0 {
				// type defaults to 1 when its field is absent
				f[0] = 1
			}
			switch f[0] {
			case 0:
				d.addEntry(num, xrefEntry{})
			case 1:
				d.addEntry(num, xrefEntry{Offset: int64(f[1]), Generation: f[2], InUse: true})
			case 2:
				d.addEntry(num, xrefEntry{Stream: f[1], Index: f[2], InUse: true})
			}
		}
	}
	return stream.Dictionary, nil
}

// splitXRefRow decodes the three big-endian fields of one row
func splitXRefRow(row []byte, widths []int) [3]int {
	var out [3]int
	for i, w := range widths {
		for _, b := range row[:w] {
			out[i] = out[i]<<8 | int(b)
		}
		row = row[w:]
	}
	return out
}

func intsOf(obj Object) []int {
	arr, ok := obj.(Array)
	if !ok {
		return nil
	}
	out := make([]int, len(arr))
	for i, v := range arr {
		out[i] = int(objectToFloat(v))
	}
	return out
}

// objectStream decodes object stream num once and caches its layout
func (d *Document) objectStream(num int) (*objectStream, error) {
	if objs, ok := d.objStreams[num]; ok {
		return objs, nil
	}
	obj, err := d.GetObject(num)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(Stream)
	if !ok {
		return nil, fmt.Errorf("object stream %d is not a stream", num)
	}
	data, err := stream.Decode()
	if err != nil {
		return nil, err
	}

	first, ok := stream.Dictionary.GetInt("First")
	if !ok || first < 0 || first > int64(len(data)) {
		return nil, fmt.Errorf("object stream %d has no valid /First", num)
	}
	n, _ := stream.Dictionary.GetInt("N")

	// header: n pairs of "objnum offset"
	header := NewParserFromBytes(data[:first])
	objs := &objectStream{body: data[first:]}
	for i := int64(0); i < n; i++ {
		pair := [2]Object{}
		for j := range pair {
			if pair[j], err = header.ParseObject(); err != nil {
				return nil, fmt.Errorf("object stream %d header: %w", num, err)
			}
		}
		objs.offsets = append(objs.offsets, int(objectToFloat(pair[1])))
	}
	d.objStreams[num] = objs
	return objs, nil
}

func (d *Document) compressedObject(stream, index int) (Object, error) {
	objs, err := d.objectStream(stream)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(objs.offsets) {
		return nil, fmt.Errorf("index %d outside object stream %d", index, stream)
	}
	off := objs.offsets[index]
	if off < 0 || off >= len(objs.body) {
		return nil, fmt.Errorf("member offset %d outside object stream %d", off, stream)
	}
	return NewParserFromBytes(objs.body[off:]).ParseObject()
}
