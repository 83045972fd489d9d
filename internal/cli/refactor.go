package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/elixir-editor/assist/internal/assist"
	"github.com/elixir-editor/assist/internal/config"
)

var (
	refactorApply bool
	refactorPrint bool
	refactorQuiet bool
)

var refactorCmd = &cobra.Command{
	Use:   "refactor <file>",
	Short: "Ask the model to rewrite a file and merge the answer",
	Long: `Send a file to the model, poll for the rewrite and reconcile it with the
file. Progress streams to stderr while the job runs; the merge preview goes
to stdout. The merge is kept as pending until applied, either with --apply
or later with 'elixir-assist apply <file>'.

Polling checks the job once per poll.interval_ms, up to poll.max_attempts
times. Ctrl-C cancels the job.

Examples:
  elixir-assist refactor src/app.js
  elixir-assist refactor src/app.js --apply
  elixir-assist refactor src/app.js --print > rewritten.js`,
	Args: cobra.ExactArgs(1),
	RunE: runRefactor,
}

func init() {
	refactorCmd.Flags().BoolVarP(&refactorApply, "apply", "a", false, "Write the merge into the file when the job completes")
	refactorCmd.Flags().BoolVarP(&refactorPrint, "print", "p", false, "Print the merged text instead of the diff")
	refactorCmd.Flags().BoolVarP(&refactorQuiet, "quiet", "q", false, "Do not report progress")
}

func runRefactor(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	p, err := openProject(false)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a := assist.New(p.store, p.assistOptions()...)
	defer a.Close()

	return refactorFile(ctx, cmd, a, p.store, path)
}

// refactorFile runs one analysis on path and reports it
func refactorFile(ctx context.Context, cmd *cobra.Command, a *assist.Assistant, store *config.Store, path string) error {
	gen, err := a.Analyze(ctx, path)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	out := cmd.OutOrStdout()
	maxAttempts := store.Get().Poll.MaxAttempts

	for ev := range a.Events() {
		if ev.Generation != gen {
			continue
		}
		switch ev.Kind {
		case assist.EventPartial:
			if !refactorQuiet {
				fmt.Fprintf(stderr, "\r[%d/%d] received %d bytes", ev.Attempts, maxAttempts, len(ev.Text))
			}

		case assist.EventFailed:
			if !refactorQuiet {
				fmt.Fprintln(stderr)
			}
			return fmt.Errorf("%s after %d attempts: %w", ev.State, ev.Attempts, ev.Err)

		case assist.EventCompleted:
			if !refactorQuiet {
				fmt.Fprintf(stderr, "\rcompleted after %d attempts\n", ev.Attempts)
			}
			if refactorPrint {
				fmt.Fprint(out, ev.Decision.Text)
			} else {
				printDiff(out, *ev.Decision, *ev.Diff)
			}

			if !ev.Diff.Changed() {
				fmt.Fprintln(stderr, "nothing to apply")
				return nil
			}
			if !refactorApply {
				fmt.Fprintf(stderr, "pending; run 'elixir-assist apply %s' to write it\n", path)
				return nil
			}
			if _, err := a.Apply(path); err != nil {
				return err
			}
			fmt.Fprintf(stderr, "applied %s merge to %s\n", ev.Decision.Strategy, path)
			return nil
		}
	}
	return ctx.Err()
}
