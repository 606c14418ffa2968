package sentence

import (
	"regexp"
	"strings"
)

// boundary marks the end of a sentence: terminal punctuation followed by
// whitespace. Any trailing remainder without terminal punctuation is treated
// as its own sentence.
var boundary = regexp.MustCompile(`[.!?]\s+`)

// spans returns the [start, end) byte spans of sentences within text.
func spans(text string) [][2]int {
	var out [][2]int
	last := 0
	for _, m := range boundary.FindAllStringIndex(text, -1) {
		out = append(out, [2]int{last, m[0] + 1})
		last = m[1]
	}
	if last < len(text) {
		out = append(out, [2]int{last, len(text)})
	}
	return out
}

// Split breaks text into sentences using the boundary rule, trimming
// surrounding whitespace and dropping empty results. The convert stage uses
// the same rule as the aggregator so both stages agree on sentence units.
func Split(text string) []string {
	var out []string
	for _, sp := range spans(text) {
		s := strings.TrimSpace(text[sp[0]:sp[1]])
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
