package fill

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Output naming defaults
const (
	DefaultOutputSuffix = "_filled.pdf"
	DefaultIndexPad     = 3
	timestampLayout     = "20060102_150405"
)

// Naming builds output file names of the form {stem}_{timestamp}{suffix}
// and {stem}_{timestamp}_{index}{suffix}. A non-empty Prefix replaces the
// input's stem.
type Naming struct {
	Dir      string
	Suffix   string
	Prefix   string
	IndexPad int
	// Now defaults to time.Now
	Now func() time.Time
}

// DefaultNaming writes into ./output
func DefaultNaming() Naming {
	return Naming{Dir: "output", Suffix: DefaultOutputSuffix, IndexPad: DefaultIndexPad}
}

func (n Naming) stem(input string) string {
	if p := strings.TrimSpace(n.Prefix); p != "" {
		return p
	}
	if input == "" {
		return "output"
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (n Naming) timestamp() string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return now().Format(timestampLayout)
}

func (n Naming) suffix() string {
	if n.Suffix == "" {
		return DefaultOutputSuffix
	}
	return n.Suffix
}

// Path returns the output path for a single fill of input
func (n Naming) Path(input string) string {
	return filepath.Join(n.Dir, fmt.Sprintf("%s_%s%s", n.stem(input), n.timestamp(), n.suffix()))
}

// Indexed returns the output path for the index-th record of a batch.
// Negative indexes are written as 0.
func (n Naming) Indexed(input string, index int) string {
	pad := n.IndexPad
	if pad <= 0 {
		pad = DefaultIndexPad
	}
	return filepath.Join(n.Dir, fmt.Sprintf("%s_%s_%0*d%s", n.stem(input), n.timestamp(), pad, max(0, index), n.suffix()))
}
