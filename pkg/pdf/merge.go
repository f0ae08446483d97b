package pdf

import (
	"fmt"
	"image"
)

// importer copies objects from another document into an update, giving
// each copied indirect object a new number.
type importer struct {
	src    *Document
	w      *IncrementalWriter
	mapped map[int]Reference
}

func newImporter(src *Document, w *IncrementalWriter) *importer {
	return &importer{src: src, w: w, mapped: make(map[int]Reference)}
}

func (im *importer) copy(obj Object) Object {
	switch v := obj.(type) {
	case Reference:
		if ref, ok := im.mapped[v.ObjectNumber]; ok {
			return ref
		}
		ref := im.w.Add(nil)
		im.mapped[v.ObjectNumber] = ref
		im.w.Update(ref, im.copy(im.src.resolve(v)))
		return ref
	case Array:
		out := make(Array, len(v))
		for i, item := range v {
			out[i] = im.copy(item)
		}
		return out
	case Dictionary:
		out := make(Dictionary, len(v))
		for k, item := range v {
			// Never pull in the source page tree
			if k == "Parent" {
				continue
			}
			out[k] = im.copy(item)
		}
		return out
	case Stream:
		dict, _ := im.copy(v.Dictionary).(Dictionary)
		return Stream{Dictionary: dict, Data: v.Data}
	}
	return obj
}

// MergeOverlay stamps overlayPage (from another document) on top of page.
// The overlay is imported as a Form XObject aligned on the lower-left
// corners of both media boxes.
func (w *IncrementalWriter) MergeOverlay(page *Page, overlayPage *Page) error {
	content, err := overlayPage.GetContents()
	if err != nil {
		return fmt.Errorf("overlay contents: %w", err)
	}

	im := newImporter(overlayPage.doc, w)
	resources, _ := im.copy(overlayPage.Resources).(Dictionary)
	if resources == nil {
		resources = Dictionary{}
	}

	ob := overlayPage.MediaBox
	pb := page.MediaBox
	form := NewFlateStream(Dictionary{
		"Type":      Name("XObject"),
		"Subtype":   Name("Form"),
		"BBox":      rectangleToArray(ob),
		"Matrix":    Array{Integer(1), Integer(0), Integer(0), Integer(1), Real(pb.LLX - ob.LLX), Real(pb.LLY - ob.LLY)},
		"Resources": resources,
	}, content)
	formRef := w.Add(form)

	name := w.UniqueName(page, "XObject", "FillOv")
	draw := fmt.Sprintf("q\n%s Do\nQ\n", name)
	return w.AppendPageContent(page, []byte(draw), ResourceSet{
		XObjects: map[Name]Object{name: formRef},
	})
}

// AddImageOverlay draws img stretched over the page's media box. The alpha
// channel becomes a soft mask so transparent pixels leave the page visible.
func (w *IncrementalWriter) AddImageOverlay(page *Page, img image.Image) error {
	ref := AddImage(w, img)
	name := w.UniqueName(page, "XObject", "FillIm")
	mb := page.MediaBox
	draw := fmt.Sprintf("q\n%s 0 0 %s %s %s cm\n%s Do\nQ\n",
		formatReal(mb.Width()), formatReal(mb.Height()),
		formatReal(mb.LLX), formatReal(mb.LLY), name)
	return w.AppendPageContent(page, []byte(draw), ResourceSet{
		XObjects: map[Name]Object{name: ref},
	})
}

// AddImage adds img as an RGB image XObject with a DeviceGray soft mask
func AddImage(w ObjectAdder, img image.Image) Reference {
	b := img.Bounds()
	rgb := make([]byte, 0, b.Dx()*b.Dy()*3)
	alpha := make([]byte, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			// Un-premultiply so the mask and colour combine back correctly
			if a > 0 && a < 0xffff {
				r, g, bl = r*0xffff/a, g*0xffff/a, bl*0xffff/a
			}
			rgb = append(rgb, byte(r>>8), byte(g>>8), byte(bl>>8))
			alpha = append(alpha, byte(a>>8))
		}
	}

	maskRef := w.Add(NewFlateStream(Dictionary{
		"Type":             Name("XObject"),
		"Subtype":          Name("Image"),
		"Width":            Integer(b.Dx()),
		"Height":           Integer(b.Dy()),
		"ColorSpace":       Name("DeviceGray"),
		"BitsPerComponent": Integer(8),
	}, alpha))

	return w.Add(NewFlateStream(Dictionary{
		"Type":             Name("XObject"),
		"Subtype":          Name("Image"),
		"Width":            Integer(b.Dx()),
		"Height":           Integer(b.Dy()),
		"ColorSpace":       Name("DeviceRGB"),
		"BitsPerComponent": Integer(8),
		"SMask":            maskRef,
	}, rgb))
}
