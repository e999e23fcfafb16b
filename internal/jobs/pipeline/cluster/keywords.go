package cluster

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "that": true,
	"this": true, "are": true, "was": true, "were": true, "has": true, "have": true,
	"had": true, "not": true, "but": true, "its": true, "into": true, "over": true,
	"after": true, "before": true, "about": true, "says": true, "said": true, "will": true,
	"would": true, "could": true, "should": true, "than": true, "then": true, "they": true,
	"their": true, "them": true, "what": true, "when": true, "where": true, "who": true,
	"why": true, "how": true, "new": true, "more": true, "most": true, "you": true,
	"your": true, "our": true, "out": true, "all": true, "can": true, "just": true,
	"also": true, "amid": true, "via": true, "his": true, "her": true, "she": true,
}

// Keywords returns up to max distinct content words of text, most frequent
// first. Title words should be passed first; ties keep first appearance.
func Keywords(text string, max int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	counts := map[string]int{}
	var order []string
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopwords[f] || isNumber(f) {
			continue
		}
		if counts[f] == 0 {
			order = append(order, f)
		}
		counts[f]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if max > 0 && len(order) > max {
		order = order[:max]
	}
	return order
}

// Merge appends the new words of add to base, keeping at most max words.
func Merge(base, add []string, max int) []string {
	have := make(map[string]bool, len(base))
	out := append([]string(nil), base...)
	for _, w := range base {
		have[w] = true
	}
	for _, w := range add {
		if max > 0 && len(out) >= max {
			break
		}
		if !have[w] {
			have[w] = true
			out = append(out, w)
		}
	}
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
