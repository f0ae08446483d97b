// Package render draws a layout plan onto a PDF with one of three backends.
package render

import (
	"fmt"
	"strings"
)

// Backend selects how values are drawn onto the page
type Backend int

const (
	// DirectEmbed embeds a TrueType font and appends text to the page content
	DirectEmbed Backend = iota
	// OverlayMerge builds a text-only document and stamps its pages on top
	OverlayMerge
	// RasterOverlay draws text into a transparent image placed over the page
	RasterOverlay
)

var backendNames = [...]string{
	DirectEmbed:   "direct",
	OverlayMerge:  "overlay",
	RasterOverlay: "raster",
}

func (b Backend) String() string {
	if b < 0 || int(b) >= len(backendNames) {
		return fmt.Sprintf("Backend(%d)", int(b))
	}
	return backendNames[b]
}

// ParseBackend accepts a backend name or one of its aliases
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "embed", "pymupdf":
		return DirectEmbed, nil
	case "overlay", "merge", "reportlab":
		return OverlayMerge, nil
	case "raster", "image":
		return RasterOverlay, nil
	}
	return 0, fmt.Errorf("unknown backend %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (b Backend) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so config files can name
// backends
func (b *Backend) UnmarshalText(text []byte) error {
	v, err := ParseBackend(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
