// Package merge reconciles a proposed rewrite of a buffer with the buffer's
// current text. It never fails: ambiguous input falls through to a less precise
// strategy, and the last strategy always produces text.
package merge

import (
	"github.com/elixir-editor/assist/internal/logging"
	"github.com/elixir-editor/assist/pkg/types"
)

// Thresholds tune the strategy ladder
type Thresholds struct {
	// Candidate must have at least this many lines relative to source to be
	// taken wholesale.
	WholesaleLengthRatio float64
	// Overlap must be strictly above this for a wholesale take.
	WholesaleOverlap float64
	// Below this overlap the line reconciler returns the candidate unchanged.
	LineOverlapFloor float64
}

// DefaultThresholds returns the reference tuning
func DefaultThresholds() Thresholds {
	return Thresholds{
		WholesaleLengthRatio: 0.8,
		WholesaleOverlap:     0.5,
		LineOverlapFloor:     0.3,
	}
}

// Merger runs the strategy ladder with a fixed set of thresholds.
type Merger struct {
	thresholds Thresholds
}

// NewMerger creates a Merger. Zero-valued thresholds fall back to the defaults.
func NewMerger(th Thresholds) *Merger {
	def := DefaultThresholds()
	if th.WholesaleLengthRatio <= 0 {
		th.WholesaleLengthRatio = def.WholesaleLengthRatio
	}
	if th.WholesaleOverlap <= 0 {
		th.WholesaleOverlap = def.WholesaleOverlap
	}
	if th.LineOverlapFloor <= 0 {
		th.LineOverlapFloor = def.LineOverlapFloor
	}
	return &Merger{thresholds: th}
}

// Thresholds returns the tuning the merger was built with
func (m *Merger) Thresholds() Thresholds {
	return m.thresholds
}

// Decide picks a strategy and produces the merged text.
//
// Order:
//  1. an empty candidate keeps source; an empty source takes the candidate
//  2. a candidate of comparable length with high overlap is taken wholesale
//  3. block replacement, if it changes anything
//  4. positional line alignment
func (m *Merger) Decide(source, candidate string) types.MergeDecision {
	defer logging.Trace("merge.Decide")()

	if candidate == "" {
		return types.MergeDecision{Strategy: types.StrategyUnchanged, Text: source}
	}
	if source == "" {
		return types.MergeDecision{Strategy: types.StrategyWholesale, Text: candidate}
	}

	srcLines := SplitLines(source)
	candLines := SplitLines(candidate)
	overlap := Overlap(srcLines, candLines)

	if float64(len(candLines)) >= m.thresholds.WholesaleLengthRatio*float64(len(srcLines)) &&
		overlap > m.thresholds.WholesaleOverlap {
		logging.Debug("merge: wholesale (overlap=%.2f, lines %d -> %d)", overlap, len(srcLines), len(candLines))
		return types.MergeDecision{Strategy: types.StrategyWholesale, Text: candidate, Overlap: overlap}
	}

	if merged := MergeByBlocks(source, candidate); merged != source {
		logging.Debug("merge: block replacement (overlap=%.2f)", overlap)
		return types.MergeDecision{Strategy: types.StrategyBlock, Text: merged, Overlap: overlap}
	}

	logging.Debug("merge: line alignment (overlap=%.2f)", overlap)
	return types.MergeDecision{
		Strategy: types.StrategyLine,
		Text:     mergeByLines(source, candidate, m.thresholds.LineOverlapFloor),
		Overlap:  overlap,
	}
}

// Merge reconciles candidate into source with the default thresholds
func Merge(source, candidate string) string {
	return NewMerger(DefaultThresholds()).Decide(source, candidate).Text
}
