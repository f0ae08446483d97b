package pdf

import (
	"bytes"
	"fmt"
	"sort"
)

// ObjectAdder is implemented by writers that can allocate indirect objects
type ObjectAdder interface {
	Add(obj Object) Reference
}

// writeIndirect writes "N G obj ... endobj" and returns the offset it started at
func writeIndirect(buf *bytes.Buffer, num int, obj Object) int {
	offset := buf.Len()
	fmt.Fprintf(buf, "%d 0 obj\n", num)
	writeObject(buf, obj)
	buf.WriteString("\nendobj\n")
	return offset
}

// writeXRef writes an xref section for the given object offsets, grouping
// consecutive numbers into subsections.
func writeXRef(buf *bytes.Buffer, offsets map[int]int, withFree bool) {
	nums := make([]int, 0, len(offsets)+1)
	for n := range offsets {
		nums = append(nums, n)
	}
	if withFree {
		nums = append(nums, 0)
	}
	sort.Ints(nums)

	buf.WriteString("xref\n")
	for i := 0; i < len(nums); {
		j := i + 1
		for j < len(nums) && nums[j] == nums[j-1]+1 {
			j++
		}
		fmt.Fprintf(buf, "%d %d\n", nums[i], j-i)
		for _, n := range nums[i:j] {
			if n == 0 {
				buf.WriteString("0000000000 65535 f \n")
				continue
			}
			fmt.Fprintf(buf, "%010d 00000 n \n", offsets[n])
		}
		i = j
	}
}

func writeTrailer(buf *bytes.Buffer, trailer Dictionary, xrefOffset int) {
	buf.WriteString("trailer\n")
	writeObject(buf, trailer)
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
}

// Builder writes a new document from scratch
type Builder struct {
	objects  []Object // objects[i] is object number i+1
	pagesRef Reference
	pages    Array
}

// NewBuilder creates an empty document builder
func NewBuilder() *Builder {
	b := &Builder{}
	b.Add(nil) // catalog, filled in by Bytes
	b.pagesRef = b.Add(nil)
	return b
}

// Add allocates a new indirect object
func (b *Builder) Add(obj Object) Reference {
	b.objects = append(b.objects, obj)
	return Reference{ObjectNumber: len(b.objects)}
}

// Set replaces the object behind ref
func (b *Builder) Set(ref Reference, obj Object) {
	b.objects[ref.ObjectNumber-1] = obj
}

// AddPage appends a page with the given media box, content and resources
func (b *Builder) AddPage(mediaBox Rectangle, content []byte, resources Dictionary) Reference {
	if resources == nil {
		resources = Dictionary{}
	}
	contentRef := b.Add(NewFlateStream(nil, content))
	pageRef := b.Add(Dictionary{
		"Type":      Name("Page"),
		"Parent":    b.pagesRef,
		"MediaBox":  rectangleToArray(mediaBox),
		"Resources": resources,
		"Contents":  contentRef,
	})
	b.pages = append(b.pages, pageRef)
	return pageRef
}

// Bytes serializes the document
func (b *Builder) Bytes() []byte {
	b.Set(Reference{ObjectNumber: 1}, Dictionary{
		"Type":  Name("Catalog"),
		"Pages": b.pagesRef,
	})
	b.Set(b.pagesRef, Dictionary{
		"Type":  Name("Pages"),
		"Kids":  b.pages,
		"Count": Integer(len(b.pages)),
	})

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	buf.WriteString("%\xe2\xe3\xcf\xd3\n") // Binary marker

	offsets := make(map[int]int, len(b.objects))
	for i, obj := range b.objects {
		offsets[i+1] = writeIndirect(&buf, i+1, obj)
	}

	xrefOffset := buf.Len()
	writeXRef(&buf, offsets, true)
	writeTrailer(&buf, Dictionary{
		"Size": Integer(len(b.objects) + 1),
		"Root": Reference{ObjectNumber: 1},
	}, xrefOffset)
	return buf.Bytes()
}

// IncrementalWriter appends new and changed objects to an existing
// document as an incremental update, leaving the original bytes intact.
type IncrementalWriter struct {
	doc     *Document
	next    int
	objects map[int]Object
	names   map[string]int
}

// NewIncrementalWriter prepares an update of doc
func NewIncrementalWriter(doc *Document) *IncrementalWriter {
	next := 1
	if size, ok := doc.Trailer.GetInt("Size"); ok {
		next = int(size)
	}
	for n := range doc.xref {
		if n >= next {
			next = n + 1
		}
	}
	return &IncrementalWriter{
		doc:     doc,
		next:    next,
		objects: make(map[int]Object),
		names:   make(map[string]int),
	}
}

// Document returns the document being updated
func (w *IncrementalWriter) Document() *Document {
	return w.doc
}

// Add allocates a new indirect object
func (w *IncrementalWriter) Add(obj Object) Reference {
	ref := Reference{ObjectNumber: w.next}
	w.next++
	w.objects[ref.ObjectNumber] = obj
	return ref
}

// Update replaces an existing object in the update section
func (w *IncrementalWriter) Update(ref Reference, obj Object) {
	w.objects[ref.ObjectNumber] = obj
}

// Resolve follows references, preferring objects pending in this update
func (w *IncrementalWriter) Resolve(obj Object) Object {
	for depth := 0; depth < 32; depth++ {
		ref, ok := obj.(Reference)
		if !ok {
			return obj
		}
		if pending, ok := w.objects[ref.ObjectNumber]; ok {
			obj = pending
			continue
		}
		obj = w.doc.resolve(ref)
	}
	return nil
}

// Pending reports how many objects the update holds
func (w *IncrementalWriter) Pending() int {
	return len(w.objects)
}

// Bytes returns the original document followed by the update section
func (w *IncrementalWriter) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(w.doc.data)
	if n := len(w.doc.data); n > 0 && w.doc.data[n-1] != '\n' && w.doc.data[n-1] != '\r' {
		buf.WriteByte('\n')
	}

	nums := make([]int, 0, len(w.objects))
	for n := range w.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	offsets := make(map[int]int, len(nums))
	for _, n := range nums {
		obj := w.objects[n]
		// appended objects use the document's key, so the update stays
		// readable with the original password
		if sec := w.doc.security; sec != nil {
			enc, err := sec.encryptObject(obj, n, 0)
			if err != nil {
				return nil, fmt.Errorf("encrypt object %d: %w", n, err)
			}
			obj = enc
		}
		offsets[n] = writeIndirect(&buf, n, obj)
	}

	trailer := Dictionary{
		"Size": Integer(w.next),
		"Prev": Integer(w.doc.startXRef),
	}
	for _, key := range []string{"Root", "Info", "ID", "Encrypt"} {
		if v := w.doc.Trailer.Get(key); v != nil {
			trailer[Name(key)] = v
		}
	}

	xrefOffset := buf.Len()
	writeXRef(&buf, offsets, false)
	writeTrailer(&buf, trailer, xrefOffset)
	return buf.Bytes(), nil
}

// ResourceSet lists resources to merge into a page's resource dictionary
type ResourceSet struct {
	Fonts     map[Name]Object
	XObjects  map[Name]Object
	ExtGState map[Name]Object
}

// UniqueName returns a resource name with the given prefix that is not
// used by the page yet. Names are numbered per writer so repeated calls
// stay deterministic.
func (w *IncrementalWriter) UniqueName(page *Page, category, prefix string) Name {
	existing, _ := w.Resolve(w.pageResources(page).Get(category)).(Dictionary)
	for {
		w.names[prefix]++
		name := Name(fmt.Sprintf("%s%d", prefix, w.names[prefix]))
		if existing == nil || existing[name] == nil {
			return name
		}
	}
}

// pageResources returns the page's effective resource dictionary,
// including pending changes.
func (w *IncrementalWriter) pageResources(page *Page) Dictionary {
	if pending, ok := w.objects[page.Ref.ObjectNumber].(Dictionary); ok {
		if res, ok := w.Resolve(pending.Get("Resources")).(Dictionary); ok {
			return res
		}
	}
	return page.Resources
}

// AppendPageContent draws content on top of the page. The existing content
// is wrapped in q/Q so its graphics state cannot leak into the new content.
func (w *IncrementalWriter) AppendPageContent(page *Page, content []byte, res ResourceSet) error {
	if page.Ref.ObjectNumber == 0 {
		return fmt.Errorf("page %d is not an indirect object", page.Number)
	}

	pageDict := page.Dictionary
	if pending, ok := w.objects[page.Ref.ObjectNumber].(Dictionary); ok {
		pageDict = pending
	}
	pageDict = pageDict.Clone()

	// Materialize inherited attributes on the page itself
	resources := w.pageResources(page).Clone()
	if pageDict.Get("MediaBox") == nil {
		pageDict["MediaBox"] = rectangleToArray(page.MediaBox)
	}
	mergeResources(w, resources, "Font", res.Fonts)
	mergeResources(w, resources, "XObject", res.XObjects)
	mergeResources(w, resources, "ExtGState", res.ExtGState)
	pageDict["Resources"] = resources

	var contents Array
	_, alreadyWrapped := w.objects[page.Ref.ObjectNumber]
	switch existing := pageDict.Get("Contents").(type) {
	case Reference:
		if alreadyWrapped {
			contents = Array{existing}
			break
		}
		if arr, ok := w.Resolve(existing).(Array); ok {
			contents = append(contents, arr...)
		} else {
			contents = Array{existing}
		}
	case Array:
		contents = append(contents, existing...)
	}

	if len(contents) > 0 && !alreadyWrapped {
		open := w.Add(Stream{Dictionary: Dictionary{}, Data: []byte("q\n")})
		closeRef := w.Add(Stream{Dictionary: Dictionary{}, Data: []byte("\nQ\n")})
		contents = append(Array{open}, contents...)
		contents = append(contents, closeRef)
	}
	contents = append(contents, w.Add(NewFlateStream(nil, content)))
	pageDict["Contents"] = contents

	w.Update(page.Ref, pageDict)
	return nil
}

// mergeResources adds entries to one resource category
func mergeResources(w *IncrementalWriter, resources Dictionary, category string, entries map[Name]Object) {
	if len(entries) == 0 {
		return
	}
	dict, _ := w.Resolve(resources.Get(category)).(Dictionary)
	dict = dict.Clone()
	for name, obj := range entries {
		dict[name] = obj
	}
	resources[Name(category)] = dict
}
