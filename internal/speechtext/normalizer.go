// Package speechtext converts extracted markdown into text suitable for
// speech synthesis. Formatting syntax is stripped while the natural reading
// flow is preserved; numbered list markers are kept because they read well
// aloud.
package speechtext

import (
	"regexp"
	"strings"
)

// rule is a single named text transformation. Rules are applied in order;
// each one is independent and testable in isolation.
type rule struct {
	name string
	re   *regexp.Regexp
	repl string
}

// rules is the ordered transformation chain. Images must be stripped before
// links so `![alt](url)` never degrades into a bare `!alt`.
var rules = []rule{
	{"fenced-code", regexp.MustCompile("(?s)```.*?```"), ""},
	{"inline-code", regexp.MustCompile("`([^`]+)`"), "$1"},
	{"image", regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`), ""},
	{"link", regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`), "$1"},
	{"reference-link", regexp.MustCompile(`\[([^\]]+)\]\[[^\]]*\]`), "$1"},
	{"link-definition", regexp.MustCompile(`(?m)^\[[^\]]+\]:\s*.*$`), ""},
	{"heading", regexp.MustCompile(`(?m)^#{1,6}\s+`), ""},
	{"bold-italic-star", regexp.MustCompile(`\*\*\*([^*]+)\*\*\*`), "$1"},
	{"bold-star", regexp.MustCompile(`\*\*([^*]+)\*\*`), "$1"},
	{"italic-star", regexp.MustCompile(`\*([^*]+)\*`), "$1"},
	{"bold-italic-underscore", regexp.MustCompile(`___([^_]+)___`), "$1"},
	{"bold-underscore", regexp.MustCompile(`__([^_]+)__`), "$1"},
	{"italic-underscore", regexp.MustCompile(`_([^_]+)_`), "$1"},
	{"strikethrough", regexp.MustCompile(`~~([^~]+)~~`), "$1"},
	// Bullet markers only; numbered lists are deliberately left alone.
	{"bullet", regexp.MustCompile(`(?m)^\s*[-*+]\s+`), ""},
	{"horizontal-rule", regexp.MustCompile(`(?m)^[ \t]*[-*_]{3,}[ \t]*$`), ""},
	{"html-tag", regexp.MustCompile(`<[^>]+>`), ""},
	{"blockquote", regexp.MustCompile(`(?m)^>\s+`), ""},
	{"table-separator", regexp.MustCompile(`(?m)^\|?[ \t]*:?-+:?[ \t]*\|[ \t]*:?-+:?[ \t]*.*$`), ""},
	{"table-pipe", regexp.MustCompile(`\|`), " "},
	{"space-run", regexp.MustCompile(` +`), " "},
	{"newline-run", regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// Normalize strips markdown syntax from text, producing speech-ready output.
// It is deterministic, pure and total: empty input yields empty output.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.repl)
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
