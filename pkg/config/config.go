// Package config handles pdffill configuration loading.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/novvoo/go-pdffill/pkg/anchor"
	"github.com/novvoo/go-pdffill/pkg/fill"
	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/fonts"
	"github.com/novvoo/go-pdffill/pkg/layout"
	"github.com/novvoo/go-pdffill/pkg/render"
)

// Config is the root configuration structure.
type Config struct {
	Matching MatchingConfig `yaml:"matching"`
	Style    StyleConfig    `yaml:"style"`
	Render   RenderConfig   `yaml:"render"`
	Fonts    FontsConfig    `yaml:"fonts"`
	Output   OutputConfig   `yaml:"output"`
	Keywords Keywords       `yaml:"keywords,omitempty"`
	// Pages is a one-based page selection ("all", "1,3-5")
	Pages string `yaml:"pages,omitempty"`
}

// MatchingConfig holds keyword search settings.
type MatchingConfig struct {
	Threshold      float64 `yaml:"threshold"`
	AliasSeparator string  `yaml:"alias_separator"`
	DefaultPage    int     `yaml:"default_page"`
}

// StyleConfig holds text style settings.
type StyleConfig struct {
	FontName    string  `yaml:"font_name"`
	FontPath    string  `yaml:"font_path,omitempty"`
	FontSize    float64 `yaml:"font_size"`
	Color       Color   `yaml:"color"`
	LineSpacing float64 `yaml:"line_spacing"`
	Margin      float64 `yaml:"margin"`
	// Clamp is a pointer so an explicit false survives defaults
	Clamp       *bool   `yaml:"clamp"`
	RasterScale float64 `yaml:"raster_scale"`
	RasterAlpha int     `yaml:"raster_alpha"`
}

// RenderConfig holds backend settings.
type RenderConfig struct {
	Backend    render.Backend `yaml:"backend"`
	KeepTemp   bool           `yaml:"keep_temp"`
	TempDir    string         `yaml:"temp_dir,omitempty"`
	Retries    int            `yaml:"retries"`
	RetryDelay time.Duration  `yaml:"retry_delay"`
	Workers    int            `yaml:"workers,omitempty"`
}

// FontsConfig holds font discovery settings.
type FontsConfig struct {
	Paths      []string `yaml:"paths,omitempty"`
	Dirs       []string `yaml:"dirs,omitempty"`
	SkipSystem bool     `yaml:"skip_system,omitempty"`
}

// OutputConfig holds output naming settings.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	Suffix   string `yaml:"suffix"`
	Prefix   string `yaml:"prefix,omitempty"`
	IndexPad int    `yaml:"index_pad"`
}

// Default returns the built-in configuration.
func Default() *Config {
	clamp := true
	naming := fill.DefaultNaming()
	retry := render.DefaultRetry()
	return &Config{
		Matching: MatchingConfig{
			Threshold:      anchor.DefaultThreshold,
			AliasSeparator: string(anchor.AliasSeparator),
			DefaultPage:    anchor.DefaultPage,
		},
		Style: StyleConfig{
			FontName:    "Helvetica",
			FontSize:    layout.DefaultFontSize,
			LineSpacing: layout.DefaultLineSpacing,
			Margin:      layout.DefaultMargin,
			Clamp:       &clamp,
			RasterScale: layout.DefaultRasterScale,
			RasterAlpha: 255,
		},
		Render: RenderConfig{
			Backend:    render.DirectEmbed,
			Retries:    retry.Retries,
			RetryDelay: retry.Delay,
		},
		Output: OutputConfig{
			Dir:      naming.Dir,
			Suffix:   naming.Suffix,
			IndexPad: naming.IndexPad,
		},
	}
}

// Load loads configuration from a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fillerr.New(fillerr.ConfigInvalid, "read config "+path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, normalizes keyword aliases and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fillerr.New(fillerr.ConfigInvalid, "parse config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Keywords.normalize(cfg.Separator())
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns default if not found.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Save writes the configuration to a file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfigPath returns pdffill.yaml in the working directory, or
// config/pdffill.yaml when only that one exists.
func DefaultConfigPath() string {
	if _, err := os.Stat("pdffill.yaml"); err == nil {
		return "pdffill.yaml"
	}
	if _, err := os.Stat("config/pdffill.yaml"); err == nil {
		return "config/pdffill.yaml"
	}
	return "pdffill.yaml"
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if t := c.Matching.Threshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("matching.threshold %v not in [0, 1]", t))
	}
	if utf8.RuneCountInString(c.Matching.AliasSeparator) != 1 {
		errs = append(errs, fmt.Errorf("matching.alias_separator %q must be one character", c.Matching.AliasSeparator))
	}
	if c.Matching.DefaultPage < 0 {
		errs = append(errs, fmt.Errorf("matching.default_page %d is negative", c.Matching.DefaultPage))
	}
	if c.Style.FontSize <= 0 {
		errs = append(errs, fmt.Errorf("style.font_size %v must be positive", c.Style.FontSize))
	}
	if c.Style.LineSpacing <= 0 {
		errs = append(errs, fmt.Errorf("style.line_spacing %v must be positive", c.Style.LineSpacing))
	}
	if c.Style.Margin < 0 {
		errs = append(errs, fmt.Errorf("style.margin %v is negative", c.Style.Margin))
	}
	if c.Style.RasterScale <= 0 {
		errs = append(errs, fmt.Errorf("style.raster_scale %v must be positive", c.Style.RasterScale))
	}
	if a := c.Style.RasterAlpha; a < 0 || a > 255 {
		errs = append(errs, fmt.Errorf("style.raster_alpha %d not in [0, 255]", a))
	}
	if c.Render.Retries < 0 {
		errs = append(errs, fmt.Errorf("render.retries %d is negative", c.Render.Retries))
	}
	if c.Render.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("render.retry_delay %v is negative", c.Render.RetryDelay))
	}
	if c.Render.Workers < 0 {
		errs = append(errs, fmt.Errorf("render.workers %d is negative", c.Render.Workers))
	}
	if c.Output.IndexPad < 0 {
		errs = append(errs, fmt.Errorf("output.index_pad %d is negative", c.Output.IndexPad))
	}
	for _, e := range c.Keywords.Entries() {
		if p, ok := e.Override.PageIndex(); ok && p < 0 {
			errs = append(errs, fmt.Errorf("keywords.%s.page %d is negative", e.Key, p))
		}
		if w := e.Override.MaxWidth; w != nil && *w < 0 {
			errs = append(errs, fmt.Errorf("keywords.%s.max_width %v is negative", e.Key, *w))
		}
		if s := e.Override.LineSpacing; s != nil && *s <= 0 {
			errs = append(errs, fmt.Errorf("keywords.%s.line_spacing %v must be positive", e.Key, *s))
		}
	}
	if len(errs) > 0 {
		return fillerr.New(fillerr.ConfigInvalid, "validate config", errors.Join(errs...))
	}
	return nil
}

// Separator returns the alias separator rune
func (c *Config) Separator() rune {
	r, _ := utf8.DecodeRuneInString(c.Matching.AliasSeparator)
	if r == utf8.RuneError {
		return anchor.AliasSeparator
	}
	return r
}

// LayoutStyle builds the text style
func (c *Config) LayoutStyle() layout.Style {
	s := layout.DefaultStyle()
	if c.Style.FontName != "" {
		s.FontName = c.Style.FontName
	}
	s.FontPath = c.Style.FontPath
	s.FontSize = c.Style.FontSize
	s.Color = [3]uint8(c.Style.Color)
	s.LineSpacing = c.Style.LineSpacing
	s.Margin = c.Style.Margin
	if c.Style.Clamp != nil {
		s.Clamp = *c.Style.Clamp
	}
	s.RasterScale = c.Style.RasterScale
	s.RasterAlpha = uint8(c.Style.RasterAlpha)
	return s
}

// Retry builds the retry policy for temp file I/O
func (c *Config) Retry() *render.RetryPolicy {
	p := render.DefaultRetry()
	p.Retries = c.Render.Retries
	p.Delay = c.Render.RetryDelay
	return &p
}

// FontScanner builds the font discovery for the configured paths
func (c *Config) FontScanner(logger *slog.Logger) *fonts.Scanner {
	return fonts.NewScanner(fonts.ScannerOptions{
		Paths:      c.Fonts.Paths,
		Dirs:       c.Fonts.Dirs,
		SkipSystem: c.Fonts.SkipSystem,
		Logger:     logger,
	})
}

// FillerOptions wires the configuration into a fill.Options
func (c *Config) FillerOptions(logger *slog.Logger) fill.Options {
	threshold := c.Matching.Threshold
	return fill.Options{
		Overrides:   c.Keywords.Overrides(),
		Threshold:   &threshold,
		Separator:   c.Separator(),
		DefaultPage: c.Matching.DefaultPage,
		Style:       c.LayoutStyle(),
		Backend:     c.Render.Backend,
		Render: render.Options{
			Fonts:    c.FontScanner(logger),
			TempDir:  c.Render.TempDir,
			KeepTemp: c.Render.KeepTemp,
			Retry:    c.Retry(),
			Logger:   logger,
		},
		Logger: logger,
	}
}

// Naming builds the output naming scheme
func (c *Config) Naming() fill.Naming {
	return fill.Naming{
		Dir:      c.Output.Dir,
		Suffix:   c.Output.Suffix,
		Prefix:   c.Output.Prefix,
		IndexPad: c.Output.IndexPad,
	}
}

// Color is an RGB text color written as "#RRGGBB" or [r, g, b]
type Color [3]uint8

// UnmarshalYAML implements yaml.Unmarshaler
func (c *Color) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		s := strings.TrimPrefix(strings.TrimSpace(node.Value), "#")
		if len(s) != 6 {
			return fmt.Errorf("line %d: color %q is not #RRGGBB", node.Line, node.Value)
		}
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return fmt.Errorf("line %d: color %q: %w", node.Line, node.Value, err)
		}
		*c = Color{uint8(v >> 16), uint8(v >> 8), uint8(v)}
		return nil
	case yaml.SequenceNode:
		var parts []int
		if err := node.Decode(&parts); err != nil {
			return err
		}
		if len(parts) != 3 {
			return fmt.Errorf("line %d: color needs 3 components, got %d", node.Line, len(parts))
		}
		for i, p := range parts {
			if p < 0 || p > 255 {
				return fmt.Errorf("line %d: color component %d not in [0, 255]", node.Line, p)
			}
			c[i] = uint8(p)
		}
		return nil
	}
	return fmt.Errorf("line %d: color must be a string or a list", node.Line)
}

// MarshalYAML implements yaml.Marshaler
func (c Color) MarshalYAML() (any, error) {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]), nil
}

// Keywords holds per-keyword overrides in file order
type Keywords struct {
	overrides *anchor.Overrides
}

// Overrides returns the overrides; nil when none are configured
func (k *Keywords) Overrides() *anchor.Overrides {
	return k.overrides
}

// Entries returns the overrides in file order
func (k *Keywords) Entries() []anchor.OverrideEntry {
	return k.overrides.Entries()
}

// Set adds or replaces one keyword's override
func (k *Keywords) Set(key string, ov anchor.Override) {
	if k.overrides == nil {
		k.overrides = &anchor.Overrides{}
	}
	k.overrides.Set(key, ov)
}

// IsZero lets omitempty skip an empty keyword map
func (k Keywords) IsZero() bool {
	return k.overrides.Len() == 0
}

func (k *Keywords) normalize(sep rune) {
	if k.overrides.Len() == 0 {
		return
	}
	k.overrides = anchor.NormalizeKeywordConfig(k.overrides, sep)
}

// UnmarshalYAML decodes a mapping, keeping the file order of its keys. A
// key without a body gets an empty override.
func (k *Keywords) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: keywords must be a mapping", node.Line)
	}
	out := &anchor.Overrides{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, body := node.Content[i], node.Content[i+1]
		var ov anchor.Override
		if body.Tag != "!!null" {
			if err := body.Decode(&ov); err != nil {
				return fmt.Errorf("keyword %q: %w", key.Value, err)
			}
		}
		out.Set(key.Value, ov)
	}
	k.overrides = out
	return nil
}

// MarshalYAML writes the overrides as a mapping in their own order
func (k Keywords) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range k.overrides.Entries() {
		body := &yaml.Node{}
		if err := body.Encode(e.Override); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key}, body)
	}
	return node, nil
}
