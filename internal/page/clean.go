package page

import (
	"regexp"
	"strings"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*?>`)
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	noisePattern = regexp.MustCompile(`[^\p{L}\p{N}\s.,:;!?+#/()&'%-]`)
	spacePattern = regexp.MustCompile(`[ \t\f\v\r]+`)
	linesPattern = regexp.MustCompile(`\n\s*\n+`)
)

// Clean normalizes page text before extraction: leftover tags and URLs are
// removed, symbols outside common punctuation become spaces and whitespace
// runs are collapsed. Characters used in technology names (C++, C#, Node.js)
// are kept.
func Clean(text string) string {
	text = tagPattern.ReplaceAllString(text, " ")
	text = urlPattern.ReplaceAllString(text, " ")
	text = noisePattern.ReplaceAllString(text, " ")
	text = spacePattern.ReplaceAllString(text, " ")
	text = linesPattern.ReplaceAllString(text, "\n")

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}

	return strings.Join(out, "\n")
}
