package merge

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/elixir-editor/assist/pkg/types"
)

// Preview summarises what applying merged over source would change, line by line.
func Preview(source, merged string) types.DiffSummary {
	summary := types.DiffSummary{
		SourceLines: len(SplitLines(source)),
		MergedLines: len(SplitLines(merged)),
	}
	if source == merged {
		return summary
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToRunes(source, merged)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(a, b, false), lineArray)

	var sb strings.Builder
	for _, d := range diffs {
		lines := diffLines(d.Text)
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			summary.Inserted += len(lines)
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			summary.Deleted += len(lines)
			prefix = "-"
		default:
			prefix = " "
		}
		for _, line := range lines {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	summary.Unified = sb.String()
	return summary
}

// diffLines splits a line-mode diff chunk into its lines without the
// terminating newline of the last one.
func diffLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
