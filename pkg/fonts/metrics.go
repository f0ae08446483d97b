package fonts

import (
	"strings"
	"sync"

	"github.com/novvoo/go-pdffill/pkg/layout"
)

// STSongLight 非嵌入的标准中文字体名
const STSongLight = "STSong-Light"

// Metrics 按字体名测量文本宽度，缓存每个字符的宽度。
// 未注册的字体按 ASCII 0.6 em、其他 1 em 估算
type Metrics struct {
	mu       sync.RWMutex
	faces    map[string]*Face
	advances map[string]map[rune]float64
}

// NewMetrics 创建字体度量缓存
func NewMetrics() *Metrics {
	return &Metrics{
		faces:    make(map[string]*Face),
		advances: make(map[string]map[rune]float64),
	}
}

// Register 将字体注册到名字下，覆盖旧的缓存
func (m *Metrics) Register(name string, face *Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces[name] = face
	delete(m.advances, name)
}

// Face 返回注册在名字下的字体
func (m *Metrics) Face(name string) (*Face, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.faces[name]
	return f, ok
}

// StringWidth 测量文本宽度（pt）
func (m *Metrics) StringWidth(text, fontName string, size float64) float64 {
	if fontName == STSongLight {
		return cidFontWidth(text, size)
	}

	m.mu.RLock()
	face := m.faces[fontName]
	m.mu.RUnlock()
	if face == nil {
		return layout.EstimateWidth(text, size)
	}

	w := 0.0
	for _, r := range text {
		w += m.advance(fontName, face, r) * size
	}
	return w
}

// advance 返回缓存的字符宽度（em）
func (m *Metrics) advance(name string, face *Face, r rune) float64 {
	m.mu.RLock()
	adv, ok := m.advances[name][r]
	m.mu.RUnlock()
	if ok {
		return adv
	}

	adv, found := face.Advance(r)
	if !found {
		adv = layout.EstimateWidth(string(r), 1)
	}

	m.mu.Lock()
	if m.advances[name] == nil {
		m.advances[name] = make(map[rune]float64)
	}
	m.advances[name][r] = adv
	m.mu.Unlock()
	return adv
}

// cidFontWidth STSong-Light 的宽度：ASCII 半角 500，其余全角 1000
func cidFontWidth(text string, size float64) float64 {
	w := 0.0
	for _, r := range text {
		if r >= 0x20 && r <= 0x7E {
			w += 0.5 * size
		} else {
			w += size
		}
	}
	return w
}

// Names 返回已注册的字体名
func (m *Metrics) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.faces))
	for n := range m.faces {
		names = append(names, n)
	}
	return names
}

// IsStandardCJK 是否为非嵌入的标准中文字体
func IsStandardCJK(name string) bool {
	return strings.EqualFold(name, STSongLight)
}
