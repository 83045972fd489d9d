package skeleton

import (
	"path/filepath"
	"strings"
)

// DetectLanguage maps a file path to a language name by extension
func DetectLanguage(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx", ".mjs":
		return "javascript"
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".java":
		return "java"
	case ".cs":
		return "csharp"
	case ".rs":
		return "rust"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".cxx", ".hpp", ".hxx":
		return "cpp"
	case ".rb":
		return "ruby"
	case ".php":
		return "php"
	case ".swift":
		return "swift"
	case ".kt", ".kts":
		return "kotlin"
	case ".scala":
		return "scala"
	case ".ex", ".exs":
		return "elixir"
	default:
		return "unknown"
	}
}

// FenceTag returns the tag used on a fenced code block for the file:
// the bare extension, or "" when the file has none.
func FenceTag(filePath string) string {
	return strings.TrimPrefix(filepath.Ext(filePath), ".")
}

// Supported reports whether block extraction is likely to find anything in the
// file's language. Brace-less languages fall through to line reconciliation.
func Supported(filePath string) bool {
	switch DetectLanguage(filePath) {
	case "python", "ruby", "elixir", "unknown":
		return false
	}
	return true
}
