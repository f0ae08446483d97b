// Package fonts 负责字体发现、加载与度量
package fonts

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/novvoo/go-pdffill/pkg/logging"
)

// Format 字体文件格式
type Format string

const (
	FormatTTF Format = "ttf"
	FormatOTF Format = "otf"
	FormatTTC Format = "ttc"
)

// Source 候选字体的来源，决定优先级
type Source string

const (
	SourceConfigured Source = "configured"
	SourceDirectory  Source = "directory"
	SourceKnown      Source = "known"
	SourceSystem     Source = "system"
)

// Descriptor 描述一个候选字体文件
type Descriptor struct {
	Path   string
	Name   string
	Format Format
	IsCJK  bool
	Source Source
}

// DefaultCandidatePaths 常见中文字体的固定位置，按优先级排列
var DefaultCandidatePaths = []string{
	// Windows
	"C:/Windows/Fonts/msyh.ttc",
	"C:/Windows/Fonts/simsun.ttc",
	"C:/Windows/Fonts/simhei.ttf",
	// macOS
	"/System/Library/Fonts/STHeiti Light.ttc",
	"/System/Library/Fonts/STHeiti Medium.ttc",
	"/System/Library/Fonts/STSong.ttf",
	"/Library/Fonts/Arial Unicode.ttf",
	"/Library/Fonts/SimSun.ttf",
	// Linux
	"/usr/share/fonts/truetype/arphic/ukai.ttc",
	"/usr/share/fonts/truetype/wqy/wqy-zenhei.ttc",
}

// ScannerOptions 配置字体扫描
type ScannerOptions struct {
	// Paths 显式指定的字体文件，优先级最高
	Paths []string
	// Dirs 额外扫描的目录，排在固定候选之前
	Dirs []string
	// KnownPaths 固定候选路径；nil 表示 DefaultCandidatePaths
	KnownPaths []string
	// SystemDirs 系统字体目录；nil 表示按平台选择
	SystemDirs []string
	// SkipSystem 不扫描系统目录
	SkipSystem bool

	Logger *slog.Logger
}

// Scanner 发现可用字体文件
type Scanner struct {
	opts   ScannerOptions
	logger *slog.Logger

	once       sync.Once
	candidates []Descriptor
}

// NewScanner 创建字体扫描器
func NewScanner(opts ScannerOptions) *Scanner {
	if opts.KnownPaths == nil {
		opts.KnownPaths = DefaultCandidatePaths
	}
	if opts.SystemDirs == nil {
		opts.SystemDirs = systemFontDirectories()
	}
	return &Scanner{opts: opts, logger: logging.OrNop(opts.Logger)}
}

// Candidates 返回去重后的候选字体，按优先级排序：
// 显式路径、额外目录、固定候选、系统目录（CJK 字体在前）。
// 结果在第一次调用后缓存
func (s *Scanner) Candidates() []Descriptor {
	s.once.Do(func() {
		s.candidates = s.scan()
	})
	return s.candidates
}

func (s *Scanner) scan() []Descriptor {
	var out []Descriptor
	seen := make(map[string]bool)

	add := func(path string, src Source) {
		format, ok := formatOf(path)
		if !ok {
			return
		}
		key := path
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if seen[key] {
			return
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		seen[key] = true
		out = append(out, newDescriptor(path, format, src))
	}

	for _, p := range s.opts.Paths {
		if _, ok := formatOf(p); !ok {
			s.logger.Warn("unsupported font file ignored", "path", p)
			continue
		}
		add(p, SourceConfigured)
	}
	for _, dir := range s.opts.Dirs {
		for _, p := range listFontFiles(dir) {
			add(p, SourceDirectory)
		}
	}
	for _, p := range s.opts.KnownPaths {
		add(p, SourceKnown)
	}

	if !s.opts.SkipSystem {
		var system []string
		for _, dir := range s.opts.SystemDirs {
			system = append(system, listFontFiles(dir)...)
		}
		// CJK 字体优先，其余按路径排序
		sort.SliceStable(system, func(i, j int) bool {
			ci := isCJKName(filepath.Base(system[i]))
			cj := isCJKName(filepath.Base(system[j]))
			if ci != cj {
				return ci
			}
			return system[i] < system[j]
		})
		for _, p := range system {
			add(p, SourceSystem)
		}
	}

	s.logger.Debug("font candidates", "count", len(out))
	return out
}

// DescriptorFor 为单个字体文件生成描述，不检查文件是否存在
func DescriptorFor(path string) (Descriptor, bool) {
	format, ok := formatOf(path)
	if !ok {
		return Descriptor{}, false
	}
	return newDescriptor(path, format, SourceConfigured), true
}

func newDescriptor(path string, format Format, src Source) Descriptor {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Descriptor{
		Path:   path,
		Name:   name,
		Format: format,
		IsCJK:  isCJKName(name),
		Source: src,
	}
}

// systemFontDirectories 返回当前平台的系统字体目录
func systemFontDirectories() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		windir := os.Getenv("WINDIR")
		if windir == "" {
			windir = "C:\\Windows"
		}
		return []string{filepath.Join(windir, "Fonts")}
	case "darwin":
		return []string{
			"/System/Library/Fonts",
			"/Library/Fonts",
			filepath.Join(home, "Library", "Fonts"),
		}
	default:
		return []string{
			"/usr/share/fonts",
			"/usr/local/share/fonts",
			filepath.Join(home, ".fonts"),
			filepath.Join(home, ".local", "share", "fonts"),
		}
	}
}

// listFontFiles 递归列出目录中的字体文件，按路径排序
func listFontFiles(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := formatOf(path); ok {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

func formatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttf":
		return FormatTTF, true
	case ".otf":
		return FormatOTF, true
	case ".ttc":
		return FormatTTC, true
	}
	return "", false
}

// cjkKeywords 从字体名判断是否为中日韩字体
var cjkKeywords = []string{
	"cjk", "chinese", "japanese", "korean",
	"simhei", "simsun", "yahei", "msyh", "kaiti", "fangsong",
	"mingliu", "hiragino", "gothic", "mincho",
	"malgun", "batang", "gulim",
	"source han", "sourcehan", "pingfang", "heiti", "stsong", "songti",
	"wqy", "ukai", "uming", "arial unicode", "noto sans sc", "notosanssc",
}

// isCJKName 按名称启发式判断 CJK 字体
func isCJKName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range cjkKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
