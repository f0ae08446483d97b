package render

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/layout"
	"github.com/novvoo/go-pdffill/pkg/pdf"
)

// labelPDF builds a one-page letter document showing "Name:" at (72, 700)
func labelPDF(t *testing.T) *pdf.Document {
	t.Helper()
	b := pdf.NewBuilder()
	font := b.Add(pdf.Dictionary{
		"Type":     pdf.Name("Font"),
		"Subtype":  pdf.Name("Type1"),
		"BaseFont": pdf.Name("Helvetica"),
	})
	b.AddPage(pdf.Rectangle{URX: 612, URY: 792},
		[]byte("BT /F1 12 Tf 72 700 Td (Name:) Tj ET"),
		pdf.Dictionary{"Font": pdf.Dictionary{"F1": font}})
	doc, err := pdf.NewDocument(b.Bytes())
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return doc
}

func valuePlan(text string) *layout.DrawPlan {
	plan := layout.NewDrawPlan()
	plan.Add(0, layout.DrawItem{Key: "name", Text: text, X: 130, Y: 700})
	return plan
}

func pageText(t *testing.T, data []byte) (string, []pdf.Char) {
	t.Helper()
	doc, err := pdf.NewDocument(data)
	if err != nil {
		t.Fatalf("reopen output: %v", err)
	}
	chars, err := doc.Pages[0].Characters()
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	var sb strings.Builder
	for _, c := range chars {
		sb.WriteString(c.Text)
	}
	return sb.String(), chars
}

func noRetry() *RetryPolicy {
	return &RetryPolicy{}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want Backend
	}{
		{"direct", DirectEmbed},
		{"embed", DirectEmbed},
		{"PyMuPDF", DirectEmbed},
		{"overlay", OverlayMerge},
		{" merge ", OverlayMerge},
		{"reportlab", OverlayMerge},
		{"raster", RasterOverlay},
		{"image", RasterOverlay},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if err != nil {
				t.Fatalf("ParseBackend(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	if _, err := ParseBackend("svg"); err == nil {
		t.Error("Expected error for unknown backend")
	}

	var b Backend
	if err := b.UnmarshalText([]byte("raster")); err != nil || b != RasterOverlay {
		t.Errorf("Expected raster from UnmarshalText, got %v (%v)", b, err)
	}
	if Backend(7).String() != "Backend(7)" {
		t.Errorf("Expected Backend(7), got %s", Backend(7))
	}
}

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	calls := 0
	p := RetryPolicy{Retries: 2}
	err := p.Do(ctx, nil, "op", func() error {
		calls++
		if calls < 3 {
			return boom
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Expected success on third call, got %v after %d calls", err, calls)
	}

	calls = 0
	err = p.Do(ctx, nil, "op", func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Errorf("Expected boom after 3 calls, got %v after %d calls", err, calls)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	calls = 0
	err = p.Do(cancelled, nil, "op", func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Errorf("Expected context.Canceled without calls, got %v after %d calls", err, calls)
	}

	if d := DefaultRetry(); d.Retries != 2 || d.Delay.Milliseconds() != 200 || d.Backoff != 2 {
		t.Errorf("Unexpected default retry policy %+v", d)
	}
}

func TestRenderEmptyPlan(t *testing.T) {
	doc := labelPDF(t)
	r := NewRenderer(Options{TempDir: t.TempDir()})

	out, err := r.Render(context.Background(), doc, layout.NewDrawPlan(), layout.DefaultStyle(), DirectEmbed)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.Equal(out.Data, doc.Data()) {
		t.Error("Expected an unchanged copy for an empty plan")
	}
	if out.Digest != Digest(doc.Data()) {
		t.Errorf("Expected digest of the input, got %s", out.Digest)
	}
	if len(out.Digest) != 64 {
		t.Errorf("Expected 64 hex digits, got %d", len(out.Digest))
	}
}

func TestRenderPageOutOfRange(t *testing.T) {
	doc := labelPDF(t)
	plan := layout.NewDrawPlan()
	plan.Add(3, layout.DrawItem{Key: "k", Text: "v", X: 10, Y: 10})

	_, err := NewRenderer(Options{}).Render(context.Background(), doc, plan, layout.DefaultStyle(), OverlayMerge)
	if !fillerr.Is(err, fillerr.PageIndexOutOfRange) {
		t.Errorf("Expected PageIndexOutOfRange, got %v", err)
	}
}

// Direct embed without any usable font falls back to the overlay backend
func TestRenderFallsBackToOverlay(t *testing.T) {
	tmp := t.TempDir()
	doc := labelPDF(t)
	r := NewRenderer(Options{TempDir: tmp, Retry: noRetry()})

	out, err := r.Render(context.Background(), doc, valuePlan("Alice"), layout.DefaultStyle(), DirectEmbed)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out.Requested != DirectEmbed || out.Executed != OverlayMerge {
		t.Errorf("Expected direct -> overlay, got %v -> %v", out.Requested, out.Executed)
	}
	if out.FontName != pdf.STSongLight {
		t.Errorf("Expected %s, got %s", pdf.STSongLight, out.FontName)
	}

	text, chars := pageText(t, out.Data)
	if text != "Name:Alice" {
		t.Errorf("Expected Name:Alice, got %q", text)
	}
	if math.Abs(chars[5].X0-130) > 0.01 {
		t.Errorf("Expected value at x=130, got %v", chars[5].X0)
	}

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("Expected temp overlay removed, found %d files", len(entries))
	}
	if !bytes.HasPrefix(out.Data, doc.Data()) {
		t.Error("Expected an incremental update preserving the original bytes")
	}
}

func TestRenderKeepTemp(t *testing.T) {
	tmp := t.TempDir()
	r := NewRenderer(Options{TempDir: tmp, KeepTemp: true, Retry: noRetry()})

	out, err := r.Render(context.Background(), labelPDF(t), valuePlan("张三"), layout.DefaultStyle(), OverlayMerge)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if len(out.TempFiles) != 1 {
		t.Fatalf("Expected 1 temp file, got %v", out.TempFiles)
	}
	if filepath.Dir(out.TempFiles[0]) != tmp || !strings.HasPrefix(filepath.Base(out.TempFiles[0]), "overlay_") {
		t.Errorf("Unexpected temp file %s", out.TempFiles[0])
	}
	if _, err := os.Stat(out.TempFiles[0]); err != nil {
		t.Errorf("Expected temp file kept: %v", err)
	}

	text, _ := pageText(t, out.Data)
	if text != "Name:张三" {
		t.Errorf("Expected Name:张三, got %q", text)
	}
}

func TestRenderOverlayDeterministic(t *testing.T) {
	r := NewRenderer(Options{TempDir: t.TempDir(), Retry: noRetry()})
	doc := labelPDF(t)

	first, err := r.Render(context.Background(), doc, valuePlan("Alice"), layout.DefaultStyle(), OverlayMerge)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Render(context.Background(), doc, valuePlan("Alice"), layout.DefaultStyle(), OverlayMerge)
	if err != nil {
		t.Fatal(err)
	}
	if first.Digest != second.Digest {
		t.Errorf("Expected identical output, got %s and %s", first.Digest, second.Digest)
	}
}

func writeGoRegular(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "goregular.ttf")
	if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRenderDirectEmbed(t *testing.T) {
	style := layout.DefaultStyle()
	style.FontPath = writeGoRegular(t)
	style.Color = [3]uint8{255, 0, 0}

	r := NewRenderer(Options{TempDir: t.TempDir()})
	out, err := r.Render(context.Background(), labelPDF(t), valuePlan("Bob"), style, DirectEmbed)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out.Executed != DirectEmbed {
		t.Errorf("Expected direct embed, got %v", out.Executed)
	}
	if !strings.Contains(out.FontName, "Go") {
		t.Errorf("Expected the Go font, got %s", out.FontName)
	}
	if !bytes.Contains(out.Data, []byte("/FontFile2")) {
		t.Error("Expected an embedded font program")
	}

	text, chars := pageText(t, out.Data)
	if text != "Name:Bob" {
		t.Errorf("Expected Name:Bob, got %q", text)
	}
	if math.Abs(chars[5].X0-130) > 0.01 {
		t.Errorf("Expected value at x=130, got %v", chars[5].X0)
	}
	if chars[5].FontName == chars[0].FontName {
		t.Error("Expected the value drawn with the embedded font")
	}
}

// A TrueType font missing glyphs of the value cannot be embedded
func TestRenderDirectMissingGlyphFallsBack(t *testing.T) {
	style := layout.DefaultStyle()
	style.FontPath = writeGoRegular(t)

	r := NewRenderer(Options{TempDir: t.TempDir(), Retry: noRetry()})
	out, err := r.Render(context.Background(), labelPDF(t), valuePlan("李四"), style, DirectEmbed)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out.Executed != OverlayMerge || out.FontName != pdf.STSongLight {
		t.Errorf("Expected overlay with %s, got %v with %s", pdf.STSongLight, out.Executed, out.FontName)
	}
}

func TestRenderRaster(t *testing.T) {
	tests := []struct {
		name     string
		fontPath bool
		wantFont string
	}{
		{"basic font", false, basicFontName},
		{"truetype", true, "goregular"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			style := layout.DefaultStyle()
			if tt.fontPath {
				style.FontPath = writeGoRegular(t)
			}
			r := NewRenderer(Options{})
			out, err := r.Render(context.Background(), labelPDF(t), valuePlan("Carol"), style, RasterOverlay)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if out.Executed != RasterOverlay {
				t.Errorf("Expected raster, got %v", out.Executed)
			}
			if out.FontName != tt.wantFont {
				t.Errorf("Expected font %s, got %s", tt.wantFont, out.FontName)
			}

			doc, err := pdf.NewDocument(out.Data)
			if err != nil {
				t.Fatal(err)
			}
			xobjects, ok := doc.Pages[0].Resources.GetDict("XObject")
			if !ok || xobjects["FillIm1"] == nil {
				t.Errorf("Expected image XObject FillIm1, got %v", xobjects)
			}
			if !bytes.Contains(out.Data, []byte("/SMask")) {
				t.Error("Expected an alpha soft mask")
			}
		})
	}
}

func TestNum(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{12, "12"},
		{0.5, "0.5"},
		{1.0 / 3, "0.3333"},
		{-0.00001, "0"},
		{130.25, "130.25"},
	}
	for _, tt := range tests {
		if got := num(tt.in); got != tt.want {
			t.Errorf("num(%v): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}
