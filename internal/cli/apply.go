package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/elixir-editor/assist/internal/assist"
)

var (
	applyList    bool
	applyDiscard bool
)

var applyCmd = &cobra.Command{
	Use:   "apply [file]",
	Short: "Write a pending merge into its file",
	Long: `Write the merge computed by 'refactor' into the file. The file must still
hold the text the merge was computed against; if it was edited since, run
the refactor again.

Examples:
  elixir-assist apply src/app.js
  elixir-assist apply --list
  elixir-assist apply --discard src/app.js`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVarP(&applyList, "list", "l", false, "List pending merges")
	applyCmd.Flags().BoolVar(&applyDiscard, "discard", false, "Drop the pending merge instead of writing it")
}

func runApply(cmd *cobra.Command, args []string) error {
	p, err := openProject(true)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()

	if applyList || len(args) == 0 {
		pending, err := p.pending.ListPending()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(out, "No pending merges.")
			return nil
		}
		for _, pm := range pending {
			fmt.Fprintf(out, "%s  %-9s  %s\n", pm.CreatedAt.Format("2006-01-02 15:04"), pm.Strategy, pm.Path)
		}
		return nil
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	if applyDiscard {
		if err := p.pending.DeletePending(path); err != nil {
			return err
		}
		fmt.Fprintf(out, "Discarded pending merge for %s\n", path)
		return nil
	}

	a := assist.New(p.store, p.assistOptions()...)
	defer a.Close()

	ev, err := a.Apply(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Applied %s merge to %s\n", ev.Decision.Strategy, ev.Path)
	return nil
}
