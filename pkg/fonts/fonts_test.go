package fonts

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/novvoo/go-pdffill/pkg/layout"
)

func writeFont(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFace(t *testing.T) {
	face, err := ParseFace(goregular.TTF, FormatTTF)
	if err != nil {
		t.Fatalf("ParseFace failed: %v", err)
	}
	if !face.Embeddable() {
		t.Error("Expected Go Regular to be embeddable")
	}
	if !face.HasGlyph('A') {
		t.Error("Expected glyph for A")
	}
	if face.HasGlyph('中') {
		t.Error("Expected no glyph for 中")
	}

	missing := face.Missing("AB中文A\n")
	if len(missing) != 2 || missing[0] != '中' || missing[1] != '文' {
		t.Errorf("Expected missing [中 文], got %q", missing)
	}
	if !face.Covers("Hello, World") {
		t.Error("Expected Latin text to be covered")
	}

	adv, ok := face.Advance('W')
	if !ok || adv <= 0 || adv > 2 {
		t.Errorf("Expected a sane advance for W, got %v %v", adv, ok)
	}
	if _, ok := face.Advance('中'); ok {
		t.Error("Expected no advance for missing glyph")
	}
}

func TestParseFaceRejectsGarbage(t *testing.T) {
	if _, err := ParseFace([]byte("not a font"), FormatTTF); err == nil {
		t.Error("Expected error for garbage data")
	}
}

func TestMetrics(t *testing.T) {
	face, err := ParseFace(goregular.TTF, FormatTTF)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMetrics()
	m.Register("GoRegular", face)

	adv, _ := face.Advance('A')
	got := m.StringWidth("AA", "GoRegular", 10)
	if math.Abs(got-2*adv*10) > 1e-9 {
		t.Errorf("Expected %v, got %v", 2*adv*10, got)
	}

	// Cached value is reused
	if again := m.StringWidth("AA", "GoRegular", 10); again != got {
		t.Errorf("Expected cached width %v, got %v", got, again)
	}

	// Missing glyphs fall back to the estimate
	mixed := m.StringWidth("A中", "GoRegular", 10)
	if math.Abs(mixed-(adv*10+10)) > 1e-9 {
		t.Errorf("Expected %v, got %v", adv*10+10, mixed)
	}

	// Unknown fonts use the estimate
	if w := m.StringWidth("ab中", "Unknown", 10); w != layout.EstimateWidth("ab中", 10) {
		t.Errorf("Expected estimate, got %v", w)
	}

	if w := m.StringWidth("A中", STSongLight, 10); w != 15 {
		t.Errorf("Expected STSong-Light width 15, got %v", w)
	}
	if !IsStandardCJK("stsong-light") {
		t.Error("Expected case-insensitive STSong-Light match")
	}
}

func TestScannerCandidates(t *testing.T) {
	dir := t.TempDir()
	configured := writeFont(t, dir, "configured/custom.ttf")
	extra := writeFont(t, dir, "extra/b.ttf")
	writeFont(t, dir, "extra/a.ttf")
	known := writeFont(t, dir, "known/known.ttf")
	writeFont(t, dir, "system/z-latin.ttf")
	writeFont(t, dir, "system/sub/wqy-zenhei.ttc")
	if err := os.WriteFile(filepath.Join(dir, "system", "readme.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewScanner(ScannerOptions{
		Paths:      []string{configured, filepath.Join(dir, "missing.ttf"), filepath.Join(dir, "font.pfb")},
		Dirs:       []string{filepath.Join(dir, "extra")},
		KnownPaths: []string{known, extra},
		SystemDirs: []string{filepath.Join(dir, "system")},
	})

	got := s.Candidates()
	want := []struct {
		name   string
		source Source
		cjk    bool
	}{
		{"custom", SourceConfigured, false},
		{"a", SourceDirectory, false},
		{"b", SourceDirectory, false},
		{"known", SourceKnown, false},
		{"wqy-zenhei", SourceSystem, true},
		{"z-latin", SourceSystem, false},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d candidates, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Name != w.name || got[i].Source != w.source || got[i].IsCJK != w.cjk {
			t.Errorf("Candidate %d: expected %+v, got %+v", i, w, got[i])
		}
	}
	if got[4].Format != FormatTTC {
		t.Errorf("Expected ttc format, got %s", got[4].Format)
	}
}

func TestPreferred(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.ttf")
	if err := os.WriteFile(bad, []byte("broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	good := writeFont(t, dir, "good.ttf")

	candidates := NewScanner(ScannerOptions{
		Paths:      []string{bad, good},
		KnownPaths: []string{},
		SkipSystem: true,
	}).Candidates()

	face, err := Preferred(candidates, "Hello", true)
	if err != nil {
		t.Fatalf("Preferred failed: %v", err)
	}
	if face.Path != good {
		t.Errorf("Expected %s, got %s", good, face.Path)
	}

	if _, err := Preferred(candidates, "中文", false); err == nil {
		t.Error("Expected no face covering CJK text")
	}
	if _, err := Preferred(nil, "x", false); err != ErrNoFont {
		t.Errorf("Expected ErrNoFont, got %v", err)
	}
}
