package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elixir-editor/assist/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current elixir-assist status",
	Long: `Show the current status of elixir-assist.

Displays:
- Project location
- Whether analysis can run (AI enabled and a token present)
- Model and polling settings
- Pending merges and history counts`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := openProject(true)
	if err != nil {
		return err
	}
	defer p.Close()

	cfg := p.store.Get()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "elixir-assist Status")
	fmt.Fprintln(out, "====================")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Location: %s\n", p.dir)
	fmt.Fprintln(out)

	ready := "ready"
	if !cfg.AI.Enabled {
		ready = "disabled"
	} else if cfg.AI.APIToken == "" {
		ready = "missing API token"
	}
	fmt.Fprintln(out, "Analysis:")
	fmt.Fprintf(out, "  State:            %s\n", ready)
	fmt.Fprintf(out, "  Token:            %s\n", config.MaskToken(cfg.AI.APIToken))
	fmt.Fprintf(out, "  Model:            %s\n", cfg.AI.ModelVersion)
	fmt.Fprintf(out, "  Polling:          every %s, up to %d attempts\n", cfg.Poll.Interval(), cfg.Poll.MaxAttempts)
	fmt.Fprintf(out, "  Analyze on save:  %t\n", cfg.AI.AnalyzeOnSave)
	fmt.Fprintln(out)

	pending, err := p.pending.ListPending()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Merges:")
	fmt.Fprintf(out, "  Pending:          %d\n", len(pending))

	if p.history != nil {
		stats, err := p.history.GetStats()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  Recorded:         %d (%d applied)\n", stats["merges"], stats["applied"])
		fmt.Fprintf(out, "  Jobs:             %d\n", stats["jobs"])
	}
	return nil
}
