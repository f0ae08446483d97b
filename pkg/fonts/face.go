package fonts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"unicode"

	gotext "github.com/go-text/typesetting/font"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/math/fixed"
)

// ErrNoFont 没有可用字体
var ErrNoFont = errors.New("no usable font found")

// Face 已加载的字体文件
type Face struct {
	Path   string
	Name   string
	Format Format
	Data   []byte

	// TrueType 由 freetype 解析，单个 TTF 文件时可嵌入 PDF
	TrueType *truetype.Font

	// go-text 的 Face 不能并发使用
	mu   sync.Mutex
	font *gotext.Face
}

// LoadFace 读取并解析字体文件
func LoadFace(d Descriptor) (*Face, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", d.Path, err)
	}
	face, err := ParseFace(data, d.Format)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", d.Path, err)
	}
	face.Path = d.Path
	face.Name = d.Name
	return face, nil
}

// ParseFace 解析字体数据；TTC 取集合中的第一个字体
func ParseFace(data []byte, format Format) (*Face, error) {
	face := &Face{Format: format, Data: data}

	if format == FormatTTC {
		faces, err := gotext.ParseTTC(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		if len(faces) == 0 {
			return nil, errors.New("empty font collection")
		}
		face.font = faces[0]
	} else {
		f, err := gotext.ParseTTF(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		face.font = f
	}

	// freetype 只处理 TrueType 轮廓；OTF(CFF) 解析失败时仅保留 go-text 度量
	if tt, err := truetype.Parse(data); err == nil {
		face.TrueType = tt
	}
	return face, nil
}

// Embeddable 是否可以作为 FontFile2 嵌入
func (f *Face) Embeddable() bool {
	return f != nil && f.Format == FormatTTF && f.TrueType != nil
}

// HasGlyph 字体是否包含该字符
func (f *Face) HasGlyph(r rune) bool {
	if f.TrueType != nil {
		return f.TrueType.Index(r) != 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.font.NominalGlyph(r)
	return ok
}

// Missing 返回 text 中字体没有字形的字符（忽略控制字符）
func (f *Face) Missing(text string) []rune {
	var missing []rune
	seen := make(map[rune]bool)
	for _, r := range text {
		if seen[r] || unicode.IsControl(r) {
			continue
		}
		seen[r] = true
		if !f.HasGlyph(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// Covers 字体是否覆盖 text 的全部字符
func (f *Face) Covers(text string) bool {
	return len(f.Missing(text)) == 0
}

// Advance 返回字符宽度（em 单位），第二个返回值表示字体是否有该字形。
// TrueType 字体按 1/1000 em 取整，与嵌入时写入的 W 数组一致
func (f *Face) Advance(r rune) (float64, bool) {
	if f.TrueType != nil {
		idx := f.TrueType.Index(r)
		if idx == 0 {
			return 0, false
		}
		adv := f.TrueType.HMetric(fixed.Int26_6(1000), idx).AdvanceWidth
		return float64(adv) / 1000, true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	gid, ok := f.font.NominalGlyph(r)
	if !ok {
		return 0, false
	}
	upem := float64(f.font.Upem())
	if upem == 0 {
		upem = 1000
	}
	return float64(f.font.HorizontalAdvance(gid)) / upem, true
}

// Preferred 依次尝试候选字体，返回第一个能加载并覆盖 text 的字体。
// embeddable 为 true 时只接受可嵌入的 TrueType 字体
func Preferred(candidates []Descriptor, text string, embeddable bool) (*Face, error) {
	var lastErr error
	for _, d := range candidates {
		if embeddable && d.Format != FormatTTF {
			continue
		}
		face, err := LoadFace(d)
		if err != nil {
			lastErr = err
			continue
		}
		if embeddable && !face.Embeddable() {
			continue
		}
		if !face.Covers(text) {
			continue
		}
		return face, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFont, lastErr)
	}
	return nil, ErrNoFont
}
