package anchor

import "strings"

// AliasSeparator separates synonyms inside one keyword, as in "姓名|名字"
const AliasSeparator = '|'

// DefaultPage is the page searched when neither an override nor a page
// selection says otherwise
const DefaultPage = 0

// SplitAliases splits raw on sep, trims every part and drops empty and
// repeated parts. If nothing is left the trimmed input is returned.
func SplitAliases(raw string, sep rune) []string {
	parts := strings.Split(raw, string(sep))
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{strings.TrimSpace(raw)}
	}
	return out
}

// Override adjusts how one keyword is placed. Unset fields fall back to
// the defaults.
type Override struct {
	Page        *int     `yaml:"page,omitempty" json:"page,omitempty"`
	OffsetX     *float64 `yaml:"offset_x,omitempty" json:"offset_x,omitempty"`
	OffsetY     *float64 `yaml:"offset_y,omitempty" json:"offset_y,omitempty"`
	MaxWidth    *float64 `yaml:"max_width,omitempty" json:"max_width,omitempty"`
	LineSpacing *float64 `yaml:"line_spacing,omitempty" json:"line_spacing,omitempty"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// PageIndex returns the configured page and whether one was set
func (o *Override) PageIndex() (int, bool) {
	if o == nil || o.Page == nil {
		return DefaultPage, false
	}
	return *o.Page, true
}

// Offsets returns the configured offsets or the defaults
func (o *Override) Offsets() (dx, dy float64) {
	dx, dy = DefaultOffsetX, DefaultOffsetY
	if o == nil {
		return dx, dy
	}
	if o.OffsetX != nil {
		dx = *o.OffsetX
	}
	if o.OffsetY != nil {
		dy = *o.OffsetY
	}
	return dx, dy
}

// AliasList returns the configured aliases
func (o *Override) AliasList() []string {
	if o == nil {
		return nil
	}
	return o.Aliases
}

// OverrideEntry is one keyword's override
type OverrideEntry struct {
	Key      string
	Override Override
}

// Overrides is an ordered keyword -> override map. Alias lookup walks the
// entries in insertion order, so the first matching entry always wins.
type Overrides struct {
	entries []OverrideEntry
	index   map[string]int
}

// Set adds or replaces the override for key, keeping its first position
func (o *Overrides) Set(key string, ov Override) {
	if o.index == nil {
		o.index = make(map[string]int)
	}
	if i, ok := o.index[key]; ok {
		o.entries[i].Override = ov
		return
	}
	o.index[key] = len(o.entries)
	o.entries = append(o.entries, OverrideEntry{Key: key, Override: ov})
}

// Get returns the override stored under exactly key
func (o *Overrides) Get(key string) (*Override, bool) {
	if o == nil {
		return nil, false
	}
	i, ok := o.index[key]
	if !ok {
		return nil, false
	}
	return &o.entries[i].Override, true
}

// Len returns the number of entries
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.entries)
}

// Entries returns the entries in insertion order
func (o *Overrides) Entries() []OverrideEntry {
	if o == nil {
		return nil
	}
	return o.entries
}

// Resolve finds the override for an input key: an exact key match first,
// then the first entry whose aliases share a member with the key's own
// aliases.
func (o *Overrides) Resolve(key string, sep rune) (canonical string, ov *Override, ok bool) {
	if ov, ok := o.Get(key); ok {
		return key, ov, true
	}
	if o.Len() == 0 {
		return "", nil, false
	}

	candidates := SplitAliases(key, sep)
	for i := range o.entries {
		e := &o.entries[i]
		for _, alias := range e.Override.Aliases {
			for _, c := range candidates {
				if alias == c {
					return e.Key, &e.Override, true
				}
			}
		}
	}
	return "", nil, false
}

// NormalizeKeywordConfig rewrites keys written with alias syntax ("a|b|c")
// to their first alias and merges the remaining ones into the override's
// alias list, keeping the first occurrence of each alias.
func NormalizeKeywordConfig(raw *Overrides, sep rune) *Overrides {
	out := &Overrides{}
	for _, e := range raw.Entries() {
		aliases := SplitAliases(e.Key, sep)
		canonical := aliases[0]

		ov := e.Override
		merged := mergeUnique(nil, aliases...)
		merged = mergeUnique(merged, ov.Aliases...)
		if existing, ok := out.Get(canonical); ok {
			merged = mergeUnique(existing.Aliases, merged...)
		}
		ov.Aliases = merged
		out.Set(canonical, ov)
	}
	return out
}

// mergeUnique appends items not yet in list
func mergeUnique(list []string, items ...string) []string {
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		dup := false
		for _, have := range list {
			if have == it {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, it)
		}
	}
	return list
}
