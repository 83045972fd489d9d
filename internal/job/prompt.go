package job

import (
	"fmt"
	"path/filepath"

	"github.com/elixir-editor/assist/internal/skeleton"
)

const (
	DefaultModel     = "anthropic/claude-3.7-sonnet"
	DefaultMaxTokens = 4096

	DefaultSystemPrompt = "You are an expert senior polyglot software developer, architect who re-writes and refactors code. " +
		"You do not give any other output apart from the re-written code provided. " +
		"Do not include markdown code blocks or language identifiers in your response - just the raw code."
)

const promptTemplate = `
File: %s
Content:
` + "```" + `%s
%s
` + "```" + `

Please re-write the code making improvements. Only provide the refactored code, no explanations or other text.
`

// BuildPrompt asks for a rewrite of one file, fencing its content with the
// file's extension as the language tag.
func BuildPrompt(path, content string) string {
	return fmt.Sprintf(promptTemplate, filepath.Base(path), skeleton.FenceTag(path), content)
}
