package research

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "been": true,
	"before": true, "being": true, "both": true, "could": true, "does": true,
	"each": true, "from": true, "have": true, "here": true, "into": true,
	"just": true, "like": true, "more": true, "most": true, "only": true,
	"other": true, "over": true, "same": true, "should": true, "some": true,
	"such": true, "than": true, "that": true, "their": true, "them": true,
	"then": true, "there": true, "these": true, "they": true, "this": true,
	"those": true, "through": true, "very": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "while": true, "will": true,
	"with": true, "would": true, "your": true, "yours": true, "ours": true,
	"cookie": true, "cookies": true, "privacy": true, "policy": true,
}

// Keywords returns up to n of the most frequent meaningful words in text,
// ties broken alphabetically.
func Keywords(text string, n int) []string {
	if n <= 0 {
		return []string{}
	}
	counts := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	}) {
		w = strings.Trim(w, "-")
		if len([]rune(w)) < 4 || stopwords[w] {
			continue
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}
