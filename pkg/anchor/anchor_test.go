package anchor

import (
	"math"
	"testing"
)

// lineOf lays out text as one line of fixed-width characters
func lineOf(text string, x, top, advance, size float64) []Character {
	var chars []Character
	for _, r := range text {
		chars = append(chars, Character{
			Text:   string(r),
			X0:     x,
			X1:     x + advance,
			Top:    top,
			Bottom: top + size,
		})
		x += advance
	}
	return chars
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"身份证号：", "身份证号:"},
		{"　姓名：　", "姓名:"},
		{"a\r\nb", "a  b"},
		{"  plain  ", "plain"},
		{"", ""},
		{"\n", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"企业名称：", " a：b　c\n", "\r\r", "K1:", "混合 text：１"}
	for _, s := range inputs {
		once := Normalize(s)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", s, once, twice)
		}
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abcd", "abcd", 1},
		{"abcd", "wxyz", 0},
		{"", "", 1},
		{"企业名:", "企业名称", 0.75},
		{"企业名:", "业名称:", 0.75},
		{"abcd", "bcda", 0.75},
	}

	for _, tt := range tests {
		got := Ratio(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Ratio(%q, %q): expected %v, got %v", tt.a, tt.b, tt.want, got)
		}
		if back := Ratio(tt.b, tt.a); math.Abs(back-got) > 1e-9 && tt.a != "abcd" {
			t.Errorf("Ratio(%q, %q) = %v, reversed %v", tt.a, tt.b, got, back)
		}
	}
}

func TestBestWindowVerbatim(t *testing.T) {
	chars := lineOf("申请人：张三 身份证号：", 72, 100, 12, 12)

	start, end, score, ok := BestWindow(chars, "身份证号：", 1.0)
	if !ok {
		t.Fatal("Expected verbatim keyword to match at threshold 1.0")
	}
	if score != 1 {
		t.Errorf("Expected score 1, got %v", score)
	}

	var text string
	for _, c := range chars[start:end] {
		text += c.Text
	}
	if Normalize(text) != Normalize("身份证号：") {
		t.Errorf("Expected window text %q, got %q", "身份证号：", text)
	}
}

func TestBestWindowFuzzy(t *testing.T) {
	chars := lineOf("企业名称：某某科技", 50, 200, 10, 10)

	if _, _, _, ok := BestWindow(chars, "企业名：", 0.95); ok {
		t.Error("Expected no match at threshold 0.95")
	}

	start, end, score, ok := BestWindow(chars, "企业名：", 0.5)
	if !ok {
		t.Fatal("Expected fuzzy match at threshold 0.5")
	}
	if start != 0 || end != 4 {
		t.Errorf("Expected first maximal window [0, 4), got [%d, %d)", start, end)
	}
	if math.Abs(score-0.75) > 1e-9 {
		t.Errorf("Expected score 0.75, got %v", score)
	}
}

func TestBestWindowMonotonic(t *testing.T) {
	chars := lineOf("姓名：李四 联系电话：13800138000 地址：北京", 0, 0, 10, 10)
	keywords := []string{"姓名：", "联系电话：", "电话号码：", "邮箱：", "地址:", "住址："}
	thresholds := []float64{0.3, 0.5, 0.6, 0.8, 0.95, 1.0}

	prev := map[string]bool{}
	for i, th := range thresholds {
		cur := map[string]bool{}
		for _, kw := range keywords {
			if _, _, _, ok := BestWindow(chars, kw, th); ok {
				cur[kw] = true
			}
		}
		if i > 0 {
			for kw := range cur {
				if !prev[kw] {
					t.Errorf("%q matched at %v but not at lower threshold %v", kw, th, thresholds[i-1])
				}
			}
		}
		prev = cur
	}
}

func TestBestWindowEdgeCases(t *testing.T) {
	chars := lineOf("ab", 0, 0, 5, 10)

	if _, _, _, ok := BestWindow(chars, "", 0); ok {
		t.Error("Expected empty keyword not to match")
	}
	if _, _, _, ok := BestWindow(nil, "ab", 0); ok {
		t.Error("Expected empty page not to match")
	}

	// Fewer characters than the keyword leave no full-length window
	if start, end, _, ok := BestWindow(chars, "abc", 0.6); ok {
		t.Errorf("Expected no match on a page shorter than the keyword, got [%d, %d)", start, end)
	}
	if start, end, _, ok := BestWindow(lineOf("企业名", 0, 0, 12, 12), "企业名称：", 0.6); ok {
		t.Errorf("Expected partial label not to match the longer keyword, got [%d, %d)", start, end)
	}

	// Exactly the keyword's length is one window
	start, end, score, ok := BestWindow(lineOf("abc", 0, 0, 5, 10), "abc", 0.6)
	if !ok || start != 0 || end != 3 || score != 1 {
		t.Errorf("Expected [0, 3) with score 1, got [%d, %d) %v ok=%v", start, end, score, ok)
	}
}

func TestBBoxOf(t *testing.T) {
	chars := []Character{
		{Text: "a", X0: 10, X1: 15, Top: 100, Bottom: 110},
		{Text: "b", X0: 15, X1: 21, Top: 98, Bottom: 111},
		{Text: "c", X0: 21, X1: 26, Top: 101, Bottom: 109},
	}

	got := BBoxOf(chars, 0, 3)
	want := Rect{X0: 10, Top: 98, X1: 26, Bottom: 111}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	if got := BBoxOf(chars, 2, 3); got != (Rect{X0: 21, Top: 101, X1: 26, Bottom: 109}) {
		t.Errorf("Expected single character box, got %+v", got)
	}
}

func TestBBoxOfPanicsOnEmptyWindow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for empty window")
		}
	}()
	BBoxOf([]Character{{Text: "a"}}, 1, 1)
}

func TestCoordinates(t *testing.T) {
	if got := ToDrawingY(120, 842); got != 722 {
		t.Errorf("Expected 722, got %v", got)
	}
	if got := ToDrawingY(ToDrawingY(33.5, 792), 792); got != 33.5 {
		t.Errorf("Expected round trip to 33.5, got %v", got)
	}

	box := Rect{X0: 10, Top: 100, X1: 60, Bottom: 112}
	if got := RightOfBaseline(box, DefaultOffsetX, DefaultOffsetY); got != (Point{110, 112}) {
		t.Errorf("Expected (110, 112), got %+v", got)
	}
	if got := ApplyOffset(Point{1, 2}, 10, -5); got != (Point{11, -3}) {
		t.Errorf("Expected (11, -3), got %+v", got)
	}
}

func TestSplitAliases(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"身份证号：|身份证号码| 身份号码 ", []string{"身份证号：", "身份证号码", "身份号码"}},
		{"a|a|b", []string{"a", "b"}},
		{"single", []string{"single"}},
		{" || ", []string{"||"}},
		{" x ", []string{"x"}},
	}

	for _, tt := range tests {
		got := SplitAliases(tt.in, AliasSeparator)
		if len(got) != len(tt.want) {
			t.Errorf("SplitAliases(%q): expected %q, got %q", tt.in, tt.want, got)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SplitAliases(%q): expected %q, got %q", tt.in, tt.want, got)
				break
			}
		}
	}
}

func TestOverridesResolve(t *testing.T) {
	page := 1
	ovs := &Overrides{}
	ovs.Set("CANON:", Override{Aliases: []string{"CANON:", "AL1:", "AL2:"}})
	ovs.Set("OTHER:", Override{Page: &page, Aliases: []string{"AL2:", "O:"}})

	tests := []struct {
		key   string
		canon string
		ok    bool
	}{
		{"CANON:", "CANON:", true},
		{"OTHER:", "OTHER:", true},
		{"AL1:", "CANON:", true},
		{"AL2:", "CANON:", true}, // first entry wins
		{"X:|O:", "OTHER:", true},
		{"nothing", "", false},
	}

	for _, tt := range tests {
		canon, ov, ok := ovs.Resolve(tt.key, AliasSeparator)
		if ok != tt.ok || canon != tt.canon {
			t.Errorf("Resolve(%q): expected (%q, %v), got (%q, %v)", tt.key, tt.canon, tt.ok, canon, ok)
		}
		if ok && ov == nil {
			t.Errorf("Resolve(%q): expected override", tt.key)
		}
	}

	if _, _, ok := (*Overrides)(nil).Resolve("a", AliasSeparator); ok {
		t.Error("Expected nil overrides to resolve nothing")
	}
}

func TestOverrideDefaults(t *testing.T) {
	var ov *Override
	if dx, dy := ov.Offsets(); dx != 50 || dy != 0 {
		t.Errorf("Expected default offsets (50, 0), got (%v, %v)", dx, dy)
	}
	if p, set := ov.PageIndex(); p != 0 || set {
		t.Errorf("Expected default page 0 unset, got %d %v", p, set)
	}

	x, page := 80.0, 2
	ov = &Override{OffsetX: &x, Page: &page}
	if dx, dy := ov.Offsets(); dx != 80 || dy != 0 {
		t.Errorf("Expected offsets (80, 0), got (%v, %v)", dx, dy)
	}
	if p, set := ov.PageIndex(); p != 2 || !set {
		t.Errorf("Expected page 2 set, got %d %v", p, set)
	}
}

func TestNormalizeKeywordConfig(t *testing.T) {
	x := 60.0
	raw := &Overrides{}
	raw.Set("身份证号：|身份证号码", Override{OffsetX: &x})
	raw.Set("姓名：", Override{Aliases: []string{"名字："}})

	got := NormalizeKeywordConfig(raw, AliasSeparator)
	if got.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", got.Len())
	}

	ov, ok := got.Get("身份证号：")
	if !ok {
		t.Fatal("Expected canonical key 身份证号：")
	}
	if *ov.OffsetX != 60 {
		t.Errorf("Expected offset 60 kept, got %v", *ov.OffsetX)
	}
	if len(ov.Aliases) != 2 || ov.Aliases[0] != "身份证号：" || ov.Aliases[1] != "身份证号码" {
		t.Errorf("Unexpected aliases %q", ov.Aliases)
	}

	ov, _ = got.Get("姓名：")
	if len(ov.Aliases) != 2 || ov.Aliases[0] != "姓名：" || ov.Aliases[1] != "名字：" {
		t.Errorf("Unexpected aliases %q", ov.Aliases)
	}

	if canon, _, ok := got.Resolve("身份证号码", AliasSeparator); !ok || canon != "身份证号：" {
		t.Errorf("Expected alias to resolve to canonical key, got %q %v", canon, ok)
	}
}
