package ingest

import (
	"html"
	"strings"
)

// stripTags removes markup and entities from feed summaries and collapses
// whitespace.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
	}
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
			b.WriteByte(' ')
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(b.String())), " ")
}
