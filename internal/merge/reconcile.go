package merge

import (
	"strings"

	"github.com/elixir-editor/assist/internal/skeleton"
)

// MergeByBlocks replaces named blocks of source with the candidate's versions.
//
// Candidate blocks are visited in scan order. A block whose name exists in source
// replaces the first literal occurrence of the source block's text in the working
// result; a block with a new name is appended after a blank line. When the
// candidate has no blocks at all, source is returned unchanged.
func MergeByBlocks(source, candidate string) string {
	candBlocks := skeleton.ExtractBlocks(candidate)
	if candBlocks.Len() == 0 {
		return source
	}
	srcBlocks := skeleton.ExtractBlocks(source)

	result := source
	for _, cb := range candBlocks.Blocks() {
		if sb, ok := srcBlocks.Get(cb.Name); ok {
			result = strings.Replace(result, sb.FullText, cb.FullText, 1)
			continue
		}
		result += "\n\n" + cb.FullText
	}
	return result
}

// MergeByLines aligns source and candidate by position using the default floor.
func MergeByLines(source, candidate string) string {
	return mergeByLines(source, candidate, DefaultThresholds().LineOverlapFloor)
}

// mergeByLines keeps a source line only where it matches the candidate line at
// the same index, ignoring surrounding whitespace. There is no insertion or
// deletion detection: one extra line in the candidate shifts every later pair.
func mergeByLines(source, candidate string, floor float64) string {
	srcLines := SplitLines(source)
	candLines := SplitLines(candidate)

	if Overlap(srcLines, candLines) < floor {
		return candidate
	}

	n := len(srcLines)
	if len(candLines) > n {
		n = len(candLines)
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i >= len(srcLines):
			out = append(out, candLines[i])
		case i >= len(candLines):
			out = append(out, srcLines[i])
		case strings.TrimSpace(srcLines[i]) == strings.TrimSpace(candLines[i]):
			out = append(out, srcLines[i])
		default:
			out = append(out, candLines[i])
		}
	}
	return strings.Join(out, "\n")
}
