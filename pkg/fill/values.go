package fill

import (
	"fmt"
	"sort"
	"strings"
)

// Value is one keyword and the text to place next to it
type Value struct {
	Key   string
	Value string
}

// Values keeps input order, which is also drawing order
type Values []Value

// ValuesFromMap converts a map, ordering keys lexically
func ValuesFromMap(m map[string]string) Values {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Values, 0, len(keys))
	for _, k := range keys {
		out = append(out, Value{Key: k, Value: m[k]})
	}
	return out
}

// ParseAssignments parses key=value pairs. The first '=' splits, so values
// may contain '='.
func ParseAssignments(pairs []string) (Values, error) {
	out := make(Values, 0, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid assignment %q, want key=value", p)
		}
		out = append(out, Value{Key: strings.TrimSpace(k), Value: v})
	}
	return out, nil
}

// Sanitize trims values and drops blank ones
func (v Values) Sanitize() Values {
	out := make(Values, 0, len(v))
	for _, kv := range v {
		s := strings.TrimSpace(kv.Value)
		if s == "" {
			continue
		}
		out = append(out, Value{Key: kv.Key, Value: s})
	}
	return out
}

// Map returns the values as a map; later duplicates win
func (v Values) Map() map[string]string {
	m := make(map[string]string, len(v))
	for _, kv := range v {
		m[kv.Key] = kv.Value
	}
	return m
}
