package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// ErrEncrypted is returned for encrypted documents that cannot be opened
// with the given password, or that use an unsupported security handler
var ErrEncrypted = errors.New("encrypted document")

// ErrNotPDF is returned when the data has no PDF header
var ErrNotPDF = errors.New("not a PDF file")

// maxRefChain bounds reference-to-reference indirection
const maxRefChain = 32

// Document is a parsed PDF held in memory. Objects are parsed lazily and
// cached on first use.
type Document struct {
	Version string
	Trailer Dictionary
	Root    Dictionary
	Pages   []*Page

	data       []byte
	startXRef  int64
	xref       map[int]xrefEntry
	objects    map[int]Object
	objStreams map[int]*objectStream

	security   *securityHandler
	encryptNum int
}

// Page is a leaf of the page tree with its inherited attributes resolved
type Page struct {
	doc *Document

	Ref        Reference
	Dictionary Dictionary
	// Number is one-based
	Number    int
	MediaBox  Rectangle
	Resources Dictionary
}

// Rectangle is a normalized PDF rectangle (LLX <= URX, LLY <= URY)
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// letterSize applies when no page tree node carries a MediaBox
var letterSize = Rectangle{0, 0, 612, 792}

// Open reads and parses a PDF file
func Open(filename string) (*Document, error) {
	return OpenWithPassword(filename, "")
}

// OpenWithPassword reads a PDF file that may be encrypted. password is
// tried as the user password, then as the owner password.
func OpenWithPassword(filename, password string) (*Document, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return NewDocumentWithPassword(data, password)
}

// NewDocument parses PDF data. The cross-reference chain and the page tree
// are read eagerly; everything else on demand. Encrypted documents open
// when their user password is empty.
func NewDocument(data []byte) (*Document, error) {
	return NewDocumentWithPassword(data, "")
}

// NewDocumentWithPassword is NewDocument for documents whose user password
// is not empty
func NewDocumentWithPassword(data []byte, password string) (*Document, error) {
	d := &Document{
		data:       data,
		xref:       make(map[int]xrefEntry),
		objects:    make(map[int]Object),
		objStreams: make(map[int]*objectStream),
	}
	if err := d.load(password); err != nil {
		return nil, err
	}
	return d, nil
}

// Data returns the bytes the document was parsed from
func (d *Document) Data() []byte {
	return d.data
}

func (d *Document) load(password string) error {
	// junk may precede the header
	hdr := bytes.Index(d.data[:min(len(d.data), 1024)], []byte("%PDF-"))
	if hdr < 0 {
		return ErrNotPDF
	}
	line := d.data[hdr+len("%PDF-"):]
	if end := bytes.IndexAny(line, "\r\n"); end > 0 {
		d.Version = string(bytes.TrimSpace(line[:end]))
	}

	start, err := d.locateStartXRef()
	if err != nil {
		return err
	}
	d.startXRef = start
	if err := d.loadXRef(start); err != nil {
		return fmt.Errorf("xref: %w", err)
	}

	if enc := d.Trailer.Get("Encrypt"); enc != nil {
		if err := d.setupSecurity(enc, password); err != nil {
			return err
		}
	}
	root, ok := d.resolveDict(d.Trailer.Get("Root"))
	if !ok {
		return errors.New("trailer has no catalog")
	}
	d.Root = root
	return d.collectPages()
}

// ResolveObject follows references until it reaches a direct object
func (d *Document) ResolveObject(obj Object) (Object, error) {
	for n := 0; n < maxRefChain; n++ {
		ref, ok := obj.(Reference)
		if !ok {
			return obj, nil
		}
		var err error
		if obj, err = d.GetObject(ref.ObjectNumber); err != nil {
			return nil, err
		}
	}
	return nil, errors.New("reference chain too deep")
}

// resolve is ResolveObject with errors mapped to nil
func (d *Document) resolve(obj Object) Object {
	out, err := d.ResolveObject(obj)
	if err != nil {
		return nil
	}
	return out
}

func (d *Document) resolveDict(obj Object) (Dictionary, bool) {
	dict, ok := d.resolve(obj).(Dictionary)
	return dict, ok
}

// GetObject returns object num. Free and missing objects read as null.
func (d *Document) GetObject(num int) (Object, error) {
	if obj, ok := d.objects[num]; ok {
		return obj, nil
	}
	e, ok := d.xref[num]
	if !ok || !e.InUse {
		return Null{}, nil
	}

	var obj Object
	var err error
	if e.Stream > 0 {
		obj, err = d.compressedObject(e.Stream, e.Index)
	} else {
		obj, err = d.objectAt(e.Offset)
		// members of object streams were decrypted with their container
		if err == nil && d.security != nil && num != d.encryptNum {
			obj, err = d.security.decryptObject(obj, num, e.Generation)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	d.objects[num] = obj
	return obj, nil
}

func (d *Document) objectAt(off int64) (Object, error) {
	if off < 0 || off >= int64(len(d.data)) {
		return nil, fmt.Errorf("offset %d outside the file", off)
	}
	p := NewParserFromBytes(d.data[off:])
	p.lengthOf = d.lookupLength
	_, _, obj, err := p.ParseIndirectObject()
	return obj, err
}

// lookupLength resolves an indirect /Length. Objects stored directly in
// the file are parsed without a length hook so a stream read never
// recurses into another stream.
func (d *Document) lookupLength(ref Reference) (int, bool) {
	var obj Object
	if e, ok := d.xref[ref.ObjectNumber]; ok && e.InUse && e.Stream == 0 &&
		e.Offset >= 0 && e.Offset < int64(len(d.data)) {
		_, _, obj, _ = NewParserFromBytes(d.data[e.Offset:]).ParseIndirectObject()
	} else {
		obj, _ = d.GetObject(ref.ObjectNumber)
	}
	n, ok := obj.(Integer)
	return int(n), ok
}

// inherited carries the attributes a Pages node passes down to its kids
type inherited struct {
	resources Dictionary
	mediaBox  *Rectangle
}

func (d *Document) collectPages() error {
	tree, ok := d.resolveDict(d.Root.Get("Pages"))
	if !ok {
		return errors.New("catalog has no page tree")
	}
	d.walkPages(tree, Reference{}, inherited{}, make(map[int]bool))
	return nil
}

// walkPages appends the leaves under node in order. Kids already visited
// are skipped, which also breaks cycles.
func (d *Document) walkPages(node Dictionary, ref Reference, inh inherited, visited map[int]bool) {
	if res, ok := d.resolveDict(node.Get("Resources")); ok {
		inh.resources = res
	}
	if box, ok := d.resolve(node.Get("MediaBox")).(Array); ok && len(box) == 4 {
		r := arrayToRectangle(box)
		inh.mediaBox = &r
	}

	typ, _ := node.GetName("Type")
	kids, hasKids := d.resolve(node.Get("Kids")).(Array)
	if typ != "Pages" && (typ != "" || !hasKids) {
		d.addPage(node, ref, inh)
		return
	}

	for _, kid := range kids {
		kref, isRef := kid.(Reference)
		if isRef {
			if visited[kref.ObjectNumber] {
				continue
			}
			visited[kref.ObjectNumber] = true
		}
		if child, ok := d.resolveDict(kid); ok {
			d.walkPages(child, kref, inh, visited)
		}
	}
}

func (d *Document) addPage(node Dictionary, ref Reference, inh inherited) {
	p := &Page{
		doc:        d,
		Ref:        ref,
		Dictionary: node,
		Number:     len(d.Pages) + 1,
		MediaBox:   letterSize,
		Resources:  inh.resources,
	}
	if inh.mediaBox != nil {
		p.MediaBox = *inh.mediaBox
	}
	if p.Resources == nil {
		p.Resources = Dictionary{}
	}
	d.Pages = append(d.Pages, p)
}

// arrayToRectangle reads a four-number array into a normalized Rectangle
func arrayToRectangle(arr Array) Rectangle {
	x0, y0 := objectToFloat(arr[0]), objectToFloat(arr[1])
	x1, y1 := objectToFloat(arr[2]), objectToFloat(arr[3])
	return Rectangle{min(x0, x1), min(y0, y1), max(x0, x1), max(y0, y1)}
}

func rectangleToArray(r Rectangle) Array {
	return Array{Real(r.LLX), Real(r.LLY), Real(r.URX), Real(r.URY)}
}

// NumPages returns the number of pages
func (d *Document) NumPages() int {
	return len(d.Pages)
}

// GetPage returns page num, counting from 1
func (d *Document) GetPage(num int) (*Page, error) {
	if num < 1 || num > len(d.Pages) {
		return nil, fmt.Errorf("page %d out of range 1-%d", num, len(d.Pages))
	}
	return d.Pages[num-1], nil
}

// GetContents returns the decoded page content. An array of content
// streams is joined with newlines; undecodable parts are skipped.
func (p *Page) GetContents() ([]byte, error) {
	obj, err := p.doc.ResolveObject(p.Dictionary.Get("Contents"))
	if err != nil {
		return nil, err
	}

	switch v := obj.(type) {
	case nil, Null:
		return nil, nil
	case Stream:
		return v.Decode()
	case Array:
		var buf bytes.Buffer
		for _, part := range v {
			s, ok := p.doc.resolve(part).(Stream)
			if !ok {
				continue
			}
			if data, err := s.Decode(); err == nil {
				buf.Write(data)
				buf.WriteByte('\n')
			}
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("page %d: /Contents is %T", p.Number, obj)
}

func (p *Page) Width() float64  { return p.MediaBox.Width() }
func (p *Page) Height() float64 { return p.MediaBox.Height() }

// Close drops the document's buffers
func (d *Document) Close() error {
	d.data = nil
	d.objects = nil
	d.objStreams = nil
	d.xref = nil
	return nil
}
