package fill

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/novvoo/go-pdffill/pkg/anchor"
	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/render"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func ptr[T any](v T) *T {
	return &v
}

func TestPlanAnchorsRightOfKeyword(t *testing.T) {
	src := sourceOf(t, buildPDF(t, []label{{"身份证号：", 72, 700}}))
	box := keywordBox(t, src, 0, "身份证号：")

	p := &Planner{}
	plan, stats, err := p.Plan(src, Values{{Key: "身份证号：", Value: "123456789012345678"}}, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	items := plan.Items(0)
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if !near(items[0].X, box.X1+50) {
		t.Errorf("Expected x %v, got %v", box.X1+50, items[0].X)
	}
	if !near(items[0].Y, 792-box.Bottom) {
		t.Errorf("Expected y %v, got %v", 792-box.Bottom, items[0].Y)
	}
	if items[0].Text != "123456789012345678" {
		t.Errorf("Unexpected text %q", items[0].Text)
	}
	if stats.Total != 1 || len(stats.Matched) != 1 || len(stats.Missing) != 0 {
		t.Errorf("Expected 1/1/0, got %+v", stats)
	}
}

func TestPlanFuzzyThreshold(t *testing.T) {
	src := sourceOf(t, buildPDF(t, []label{{"企业名称：", 72, 650}}))
	values := Values{{Key: "企业名：", Value: "Acme"}}

	tests := []struct {
		threshold float64
		matched   int
		missing   int
	}{
		{0.95, 0, 1},
		{0.5, 1, 0},
	}
	for _, tt := range tests {
		p := &Planner{Threshold: &tt.threshold}
		_, stats, err := p.Plan(src, values, nil)
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		if len(stats.Matched) != tt.matched || len(stats.Missing) != tt.missing {
			t.Errorf("threshold %v: expected %d matched %d missing, got %+v",
				tt.threshold, tt.matched, tt.missing, stats)
		}
	}
}

func TestPlanZeroThreshold(t *testing.T) {
	src := sourceOf(t, buildPDF(t, []label{{"企业名称：", 72, 650}}))
	// shares one character with the label: ratio 0.2
	values := Values{{Key: "企ABCD", Value: "Acme"}}

	_, stats, err := (&Planner{}).Plan(src, values, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(stats.Missing) != 1 {
		t.Errorf("Expected a miss at the default threshold, got %+v", stats)
	}

	_, stats, err = (&Planner{Threshold: ptr(0.0)}).Plan(src, values, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(stats.Matched) != 1 {
		t.Errorf("Expected an explicit 0 threshold to accept the window, got %+v", stats)
	}

	f := NewFiller(Options{Threshold: ptr(0.0)})
	if _, err := f.FindKeyword(src, "企ABCD", 0, -1); err != nil {
		t.Errorf("Expected FindKeyword to use the filler's 0 threshold, got %v", err)
	}
}

func TestFillPageSelection(t *testing.T) {
	path := writePDF(t, buildPDF(t,
		[]label{{"K1:", 72, 700}},
		[]label{{"K2:", 72, 700}},
	))
	values := Values{{Key: "K1:", Value: "one"}, {Key: "K2:", Value: "two"}}

	tests := []struct {
		pages   string
		matched []string
		missing []string
	}{
		{"1", []string{"K1:"}, []string{"K2:"}},
		{"all", []string{"K1:", "K2:"}, nil},
		{"2", []string{"K2:"}, []string{"K1:"}},
		// Nothing valid selected falls back to every page
		{"99", []string{"K1:", "K2:"}, nil},
		// No selection searches the default page only
		{"", []string{"K1:"}, []string{"K2:"}},
	}

	for _, tt := range tests {
		t.Run("pages="+tt.pages, func(t *testing.T) {
			// K1: and K2: score 0.67 against each other
			f := NewFiller(Options{Threshold: ptr(0.9), Backend: render.OverlayMerge, Render: render.Options{TempDir: t.TempDir()}})
			_, stats, err := f.Fill(context.Background(), Request{Input: path, Values: values, Pages: tt.pages})
			if err != nil {
				t.Fatalf("Fill failed: %v", err)
			}
			if strings.Join(stats.Matched, ",") != strings.Join(tt.matched, ",") {
				t.Errorf("Expected matched %v, got %v", tt.matched, stats.Matched)
			}
			if strings.Join(stats.Missing, ",") != strings.Join(tt.missing, ",") {
				t.Errorf("Expected missing %v, got %v", tt.missing, stats.Missing)
			}
		})
	}
}

func TestPlanAliasResolution(t *testing.T) {
	src := sourceOf(t, buildPDF(t, []label{{"CANON:", 100, 500}}))
	overrides := &anchor.Overrides{}
	overrides.Set("CANON:", anchor.Override{Aliases: []string{"CANON:", "AL1:", "AL2:"}})
	p := &Planner{Overrides: overrides}

	viaAlias, stats, err := p.Plan(src, Values{{Key: "AL1:", Value: "x"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.Matched) != 1 {
		t.Fatalf("Expected alias to resolve, got %+v", stats)
	}
	direct, _, err := p.Plan(src, Values{{Key: "CANON:", Value: "x"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	a, b := viaAlias.Items(0)[0], direct.Items(0)[0]
	if !near(a.X, b.X) || !near(a.Y, b.Y) {
		t.Errorf("Expected same position, got (%v, %v) and (%v, %v)", a.X, a.Y, b.X, b.Y)
	}
	if a.Key != "AL1:" {
		t.Errorf("Expected the input key kept, got %s", a.Key)
	}
}

func TestPlanOverrides(t *testing.T) {
	src := sourceOf(t, buildPDF(t,
		[]label{{"Name:", 72, 700}},
		[]label{{"Date:", 72, 600}},
	))
	nameBox := keywordBox(t, src, 0, "Name:")
	dateBox := keywordBox(t, src, 1, "Date:")

	overrides := &anchor.Overrides{}
	overrides.Set("Name:", anchor.Override{
		OffsetX:     ptr(60.0),
		OffsetY:     ptr(-5.0),
		MaxWidth:    ptr(100.0),
		LineSpacing: ptr(18.0),
	})
	overrides.Set("Date:", anchor.Override{Page: ptr(1)})
	overrides.Set("Lost:", anchor.Override{Page: ptr(7)})

	p := &Planner{Overrides: overrides}
	plan, stats, err := p.Plan(src, Values{
		{Key: "Name:", Value: "Alice"},
		{Key: "Date:", Value: "2024-01-01"},
		{Key: "Lost:", Value: "x"},
		{Key: "Blank:", Value: "   "},
	}, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if stats.Total != 3 {
		t.Errorf("Expected blank values not counted, got total %d", stats.Total)
	}
	if len(stats.Missing) != 1 || stats.Missing[0] != "Lost:" {
		t.Errorf("Expected Lost: missing, got %v", stats.Missing)
	}

	name := plan.Items(0)[0]
	if !near(name.X, nameBox.X1+60) || !near(name.Y, 792-nameBox.Bottom-5) {
		t.Errorf("Unexpected name position (%v, %v)", name.X, name.Y)
	}
	if name.MaxWidth == nil || *name.MaxWidth != 100 || name.LineSpacing == nil || *name.LineSpacing != 18 {
		t.Errorf("Expected max width and line spacing carried, got %+v", name)
	}

	date := plan.Items(1)
	if len(date) != 1 || !near(date[0].X, dateBox.X1+50) {
		t.Errorf("Expected Date: on page 1, got %+v", date)
	}
}

func TestFindKeyword(t *testing.T) {
	src := sourceOf(t, buildPDF(t, []label{{"Total:", 300, 100}}))
	f := NewFiller(Options{})

	hit, err := f.FindKeyword(src, "Total:", 0, 0)
	if err != nil {
		t.Fatalf("FindKeyword failed: %v", err)
	}
	if hit.Score != 1 || hit.PageIndex != 0 || hit.Keyword != "Total:" {
		t.Errorf("Unexpected hit %+v", hit)
	}
	if !near(hit.Anchor.X, hit.BBox.X1+50) || !near(hit.Anchor.Y, 792-hit.BBox.Bottom) {
		t.Errorf("Unexpected anchor %+v for box %+v", hit.Anchor, hit.BBox)
	}
	if !near(hit.BBox.X0, 300) {
		t.Errorf("Expected box at x 300, got %v", hit.BBox.X0)
	}

	if _, err := f.FindKeyword(src, "Subtotal before tax", 0, 0.9); !fillerr.Is(err, fillerr.KeywordNotLocated) {
		t.Errorf("Expected KeywordNotLocated, got %v", err)
	}
	if _, err := f.FindKeyword(src, "Total:", 1, 0); !fillerr.Is(err, fillerr.PageIndexOutOfRange) {
		t.Errorf("Expected PageIndexOutOfRange, got %v", err)
	}
}

func TestFillWritesOutput(t *testing.T) {
	path := writePDF(t, buildPDF(t, []label{{"姓名：", 72, 700}}))
	out := filepath.Join(t.TempDir(), "nested", "out.pdf")

	f := NewFiller(Options{Backend: render.DirectEmbed, Render: render.Options{TempDir: t.TempDir()}})
	res, stats, err := f.Fill(context.Background(), Request{
		Input:  path,
		Values: Values{{Key: "姓名：", Value: " 张三 "}},
		Output: out,
	})
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if res.Executed != render.OverlayMerge {
		t.Errorf("Expected overlay fallback without fonts, got %v", res.Executed)
	}
	if len(stats.Matched) != 1 {
		t.Errorf("Expected 1 match, got %+v", stats)
	}

	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Expected output file: %v", err)
	}
	if render.Digest(written) != res.Digest {
		t.Error("Expected written bytes to match the digest")
	}

	src, err := OpenPDF(out)
	if err != nil {
		t.Fatal(err)
	}
	hit, err := NewFiller(Options{}).FindKeyword(src, "张三", 0, 0)
	if err != nil {
		t.Fatalf("Expected the value in the output: %v", err)
	}
	if hit.Score != 1 {
		t.Errorf("Expected trimmed value drawn, got score %v", hit.Score)
	}
}

func TestFillInputErrors(t *testing.T) {
	f := NewFiller(Options{})
	ctx := context.Background()

	_, _, err := f.Fill(ctx, Request{Input: filepath.Join(t.TempDir(), "missing.pdf")})
	if !fillerr.Is(err, fillerr.InputNotFound) {
		t.Errorf("Expected InputNotFound, got %v", err)
	}
	if code := fillerr.KindOf(err).Code; code != 1001 {
		t.Errorf("Expected code 1001, got %d", code)
	}

	garbage := filepath.Join(t.TempDir(), "garbage.pdf")
	if err := os.WriteFile(garbage, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err = f.Fill(ctx, Request{Input: garbage})
	if !fillerr.Is(err, fillerr.InvalidDocument) {
		t.Errorf("Expected InvalidDocument, got %v", err)
	}
}

func TestBatch(t *testing.T) {
	path := writePDF(t, buildPDF(t, []label{{"Name:", 72, 700}}))
	dir := t.TempDir()
	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	f := NewFiller(Options{Backend: render.OverlayMerge, Render: render.Options{TempDir: t.TempDir()}})
	results, err := f.Batch(context.Background(), BatchRequest{
		Input: path,
		Records: []Values{
			{{Key: "Name:", Value: "Alice"}},
			{{Key: "Name:", Value: "Bob"}},
			{{Key: "Nothing:", Value: "x"}},
		},
		Naming:  Naming{Dir: dir, Now: func() time.Time { return stamp }},
		Workers: 2,
	})
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	for i, res := range results {
		want := filepath.Join(dir, "form_20240102_030405_00"+string(rune('1'+i))+"_filled.pdf")
		if res.Output != want {
			t.Errorf("Expected %s, got %s", want, res.Output)
		}
		if res.Err != nil {
			t.Errorf("Record %d failed: %v", res.Index, res.Err)
		}
		if _, err := os.Stat(res.Output); err != nil {
			t.Errorf("Expected output for record %d: %v", res.Index, err)
		}
	}
	if results[0].Digest == results[1].Digest {
		t.Error("Expected different outputs for different values")
	}
	if len(results[2].Stats.Missing) != 1 {
		t.Errorf("Expected a missing keyword in record 3, got %+v", results[2].Stats)
	}
}

func TestBatchReportsRecordErrors(t *testing.T) {
	f := NewFiller(Options{})
	results, err := f.Batch(context.Background(), BatchRequest{
		Input:   filepath.Join(t.TempDir(), "missing.pdf"),
		Records: []Values{{{Key: "a", Value: "b"}}},
		Naming:  Naming{Dir: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("Expected per-record errors only, got %v", err)
	}
	if !fillerr.Is(results[0].Err, fillerr.InputNotFound) {
		t.Errorf("Expected InputNotFound, got %v", results[0].Err)
	}
}
