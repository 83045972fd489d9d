package output

import (
	"regexp"
	"strings"
)

var (
	openingFence = regexp.MustCompile("```[\\w-]*\n")
	anyFence     = regexp.MustCompile("```")
)

// Clean strips markdown code fences (with or without a language tag) and any
// blank lines before the first line of content.
func Clean(text string) string {
	text = openingFence.ReplaceAllString(text, "")
	text = anyFence.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	return strings.Join(lines[start:], "\n")
}
