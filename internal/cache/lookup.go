package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Lookup holds the logical components a cached value is looked up by, e.g.
// keywords, industry and audience for competitor research.
//
// Components are normalized before hashing: strings are trimmed and
// lower-cased, string lists are additionally de-duplicated and sorted, so
// {"keywords": ["SEO", "ads"]} and {"keywords": ["ads ", "seo"]} share a key.
type Lookup map[string]any

func (l Lookup) canonical() string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(normalizeString(name))
		b.WriteByte('=')
		b.WriteString(normalizeValue(l[name]))
	}
	return b.String()
}

func normalizeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return normalizeString(val)
	case []string:
		return normalizeList(val)
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			items = append(items, fmt.Sprint(item))
		}
		return normalizeList(items)
	case map[string]string:
		nested := make(Lookup, len(val))
		for k, s := range val {
			nested[k] = s
		}
		return "{" + nested.canonical() + "}"
	case map[string]any:
		return "{" + Lookup(val).canonical() + "}"
	default:
		return normalizeString(fmt.Sprint(val))
	}
}

func normalizeString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeList(items []string) string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		n := normalizeString(item)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return "[" + strings.Join(out, ",") + "]"
}
