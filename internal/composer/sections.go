package composer

import (
	"slices"
	"strings"
)

// Section headers every composed document is asked to contain, in order.
const (
	HeaderEvaluation  = "EVALUATION SUMMARY"
	HeaderSuggestions = "CV IMPROVEMENT SUGGESTIONS"
	HeaderCoverLetter = "COVER LETTER"
)

var Headers = []string{HeaderEvaluation, HeaderSuggestions, HeaderCoverLetter}

// Outline reports which headers a document contains.
type Outline struct {
	Found   []string
	InOrder bool
}

// Complete reports whether all headers are present in the expected order.
func (o Outline) Complete() bool {
	return len(o.Found) == len(Headers) && o.InOrder
}

func (o Outline) Missing() []string {
	var missing []string
	for _, h := range Headers {
		if !slices.Contains(o.Found, h) {
			missing = append(missing, h)
		}
	}
	return missing
}

// Sections locates the headers case-insensitively. Composed text is never
// rejected on this basis; the outline is informational.
func Sections(text string) Outline {
	upper := strings.ToUpper(text)
	outline := Outline{InOrder: true}
	last := -1

	for _, h := range Headers {
		pos := strings.Index(upper, h)
		if pos < 0 {
			continue
		}
		outline.Found = append(outline.Found, h)
		if pos < last {
			outline.InOrder = false
		}
		last = pos
	}

	return outline
}

// HeaderOf reports the header a single line announces. Markdown emphasis and
// a trailing colon are ignored.
func HeaderOf(line string) (string, bool) {
	l := strings.ToUpper(strings.Trim(strings.TrimSpace(line), "#*_: "))
	for _, h := range Headers {
		if l == h {
			return h, true
		}
	}
	return "", false
}
