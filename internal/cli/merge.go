package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/elixir-editor/assist/internal/buffer"
	"github.com/elixir-editor/assist/internal/merge"
	"github.com/elixir-editor/assist/pkg/types"
)

var (
	mergeWrite bool
	mergeDiff  bool
	mergeJSON  bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source> <candidate>",
	Short: "Reconcile a rewritten file into the original",
	Long: `Reconcile a candidate rewrite into a source file without calling the model.

The merge picks the first strategy that applies:
  unchanged   the candidate is empty
  wholesale   the candidate is about as long as the source and mostly the same lines
  block       named functions and classes in the candidate replace the source's
  line        lines are aligned by position, keeping the source's whitespace

Pass "-" as the candidate to read it from stdin. Thresholds come from
.elixir-assist/config.toml when a project is found.

Examples:
  elixir-assist merge app.js rewrite.js
  elixir-assist merge app.js rewrite.js --diff
  pbpaste | elixir-assist merge app.js - --write`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().BoolVarP(&mergeWrite, "write", "w", false, "Write the merged text back to <source>")
	mergeCmd.Flags().BoolVar(&mergeDiff, "diff", false, "Print a line diff instead of the merged text")
	mergeCmd.Flags().BoolVar(&mergeJSON, "json", false, "Print the decision and diff summary as JSON")
}

func runMerge(cmd *cobra.Command, args []string) error {
	p, err := openProject(false)
	if err != nil {
		return err
	}
	defer p.Close()

	src := buffer.NewFileBuffer(args[0])
	source, err := src.ReadCurrentText()
	if err != nil {
		return err
	}
	candidate, err := readCandidate(cmd, args[1])
	if err != nil {
		return err
	}

	mc := p.store.Get().Merge
	merger := merge.NewMerger(merge.Thresholds{
		WholesaleLengthRatio: mc.WholesaleLengthRatio,
		WholesaleOverlap:     mc.WholesaleOverlap,
		LineOverlapFloor:     mc.LineOverlapFloor,
	})
	decision := merger.Decide(source, candidate)
	diff := merge.Preview(source, decision.Text)

	out := cmd.OutOrStdout()
	switch {
	case mergeJSON:
		data, err := json.MarshalIndent(struct {
			Decision types.MergeDecision `json:"decision"`
			Diff     types.DiffSummary   `json:"diff"`
		}{decision, diff}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case mergeDiff:
		printDiff(out, decision, diff)
	case !mergeWrite:
		fmt.Fprint(out, decision.Text)
	}

	if mergeWrite {
		if !diff.Changed() {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: no changes (%s)\n", args[0], decision.Strategy)
			return nil
		}
		if err := src.WriteText(decision.Text); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: merged with %s strategy (+%d -%d)\n",
			args[0], decision.Strategy, diff.Inserted, diff.Deleted)
	}
	return nil
}

func readCandidate(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// printDiff writes the strategy header and unified line diff
func printDiff(w io.Writer, decision types.MergeDecision, diff types.DiffSummary) {
	fmt.Fprintf(w, "strategy: %s (overlap %.2f)\n", decision.Strategy, decision.Overlap)
	fmt.Fprintf(w, "lines: %d -> %d (+%d -%d)\n", diff.SourceLines, diff.MergedLines, diff.Inserted, diff.Deleted)
	if diff.Changed() {
		fmt.Fprintln(w)
		fmt.Fprint(w, diff.Unified)
	}
}
