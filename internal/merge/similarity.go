package merge

import "strings"

// SplitLines splits text on "\n" only. An empty text is a single empty line.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

// Overlap scores how much of other already appears in base, as a fraction in [0, 1].
//
// Lines are compared after trimming surrounding whitespace. Every line of other that
// is present in base counts, duplicates included, and the total is divided by the
// longer of the two sequences. The score is not symmetric: Overlap(a, b) and
// Overlap(b, a) can differ when one side repeats lines.
//
// Two empty sequences score 1. Exactly one empty sequence scores 0.
func Overlap(baseLines, otherLines []string) float64 {
	if len(baseLines) == 0 && len(otherLines) == 0 {
		return 1
	}
	if len(baseLines) == 0 || len(otherLines) == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(baseLines))
	for _, line := range baseLines {
		seen[strings.TrimSpace(line)] = struct{}{}
	}

	common := 0
	for _, line := range otherLines {
		if _, ok := seen[strings.TrimSpace(line)]; ok {
			common++
		}
	}

	longest := len(baseLines)
	if len(otherLines) > longest {
		longest = len(otherLines)
	}
	return float64(common) / float64(longest)
}
