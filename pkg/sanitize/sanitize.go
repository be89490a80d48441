// Package sanitize normalises free-text user input before it is stored or displayed.
package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text strips every HTML element, unescapes entities left behind by the policy, removes control
// characters and stray angle brackets, and collapses runs of whitespace into single spaces.
func Text(input string) string {
	return collapse(clean(input), false)
}

// Multiline behaves like Text but keeps line breaks, trimming each line and dropping blank runs.
func Multiline(input string) string {
	return collapse(clean(input), true)
}

// Phone keeps only characters that can appear in a dialable number.
func Phone(input string) string {
	cleaned := clean(input)

	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		switch {
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			b.WriteRune(r)
		}
	}
	return collapse(b.String(), false)
}

// Truncate shortens value to at most max runes.
func Truncate(value string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return strings.TrimSpace(string(runes[:max]))
}

// maxUnescapePasses bounds how many layers of entity encoding clean will peel off.
const maxUnescapePasses = 8

func clean(input string) string {
	if input == "" {
		return ""
	}
	// Entity-encoded markup turns into live markup once unescaped, so repeat until stable.
	stripped := input
	for i := 0; i < maxUnescapePasses; i++ {
		next := html.UnescapeString(strict.Sanitize(stripped))
		if next == stripped {
			break
		}
		stripped = next
	}

	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '<' || r == '>' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped)
}

func collapse(value string, keepLines bool) string {
	if !keepLines {
		return strings.Join(strings.Fields(value), " ")
	}

	lines := strings.Split(strings.ReplaceAll(value, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
