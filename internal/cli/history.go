package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elixir-editor/assist/internal/storage"
	"github.com/elixir-editor/assist/pkg/types"
)

var (
	historyLimit  int
	historyMerges bool
	historyPath   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded jobs and merges",
	Long: `List the jobs and merges recorded in .elixir-assist/history.db, newest first.

Examples:
  elixir-assist history
  elixir-assist history --merges --path src/app.js
  elixir-assist history show job-20240101-1a2b3c4d
  elixir-assist history stats`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one job or merge in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history counts",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of records")
	historyCmd.Flags().BoolVarP(&historyMerges, "merges", "m", false, "List merges instead of jobs")
	historyCmd.Flags().StringVar(&historyPath, "path", "", "Only merges of this file")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
}

func openHistory() (*project, error) {
	p, err := openProject(true)
	if err != nil {
		return nil, err
	}
	if p.history == nil {
		p.Close()
		return nil, errors.New("history is disabled ([history] enabled = false)")
	}
	return p, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	p, err := openHistory()
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()

	if historyMerges || historyPath != "" {
		path := historyPath
		if path != "" {
			if path, err = filepath.Abs(path); err != nil {
				return err
			}
		}
		merges, err := p.history.ListMerges(path, historyLimit)
		if err != nil {
			return err
		}
		if len(merges) == 0 {
			fmt.Fprintln(out, "No merges recorded.")
			return nil
		}
		for _, m := range merges {
			applied := " "
			if m.Applied {
				applied = "*"
			}
			fmt.Fprintf(out, "%s %s  %s  %-9s %.2f  %s\n", applied, m.ID,
				m.CreatedAt.Format("2006-01-02 15:04:05"), m.Strategy, m.Overlap, m.Path)
		}
		return nil
	}

	jobs, err := p.history.ListJobs(historyLimit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs recorded.")
		return nil
	}
	for _, j := range jobs {
		fmt.Fprintf(out, "%s  %s  %-14s %3d attempts  %s\n", j.ID,
			j.CreatedAt.Format("2006-01-02 15:04:05"), j.State, j.Attempts, j.Path)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	p, err := openHistory()
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	id := args[0]

	switch {
	case strings.HasPrefix(id, "job-"):
		j, err := p.history.GetJob(id)
		if err != nil {
			return err
		}
		printJob(out, j)
	case strings.HasPrefix(id, "merge-"):
		m, err := p.history.GetMerge(id)
		if err != nil {
			return err
		}
		printMerge(out, m)
	default:
		return fmt.Errorf("%s: %w (ids start with job- or merge-)", id, storage.ErrNotFound)
	}
	return nil
}

func printJob(out io.Writer, j *types.JobRecord) {
	fmt.Fprintf(out, "Job:        %s\n", j.ID)
	fmt.Fprintf(out, "Prediction: %s\n", j.PredictionID)
	fmt.Fprintf(out, "Generation: %d\n", j.Generation)
	fmt.Fprintf(out, "File:       %s\n", j.Path)
	fmt.Fprintf(out, "Model:      %s\n", j.Model)
	fmt.Fprintf(out, "State:      %s after %d attempts\n", j.State, j.Attempts)
	fmt.Fprintf(out, "Started:    %s\n", j.CreatedAt.Format("2006-01-02 15:04:05"))
	if !j.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Finished:   %s\n", j.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if j.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", j.Error)
	}
	if j.Output != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, j.Output)
	}
}

func printMerge(out io.Writer, m *types.MergeRecord) {
	fmt.Fprintf(out, "Merge:    %s\n", m.ID)
	fmt.Fprintf(out, "Job:      %s\n", m.JobID)
	fmt.Fprintf(out, "File:     %s\n", m.Path)
	fmt.Fprintf(out, "Strategy: %s (overlap %.2f)\n", m.Strategy, m.Overlap)
	fmt.Fprintf(out, "Applied:  %t\n", m.Applied)
	fmt.Fprintf(out, "Created:  %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "--- merged")
	fmt.Fprintln(out, m.Merged)
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	p, err := openHistory()
	if err != nil {
		return err
	}
	defer p.Close()

	stats, err := p.history.GetStats()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "┌─────────────────────────────────────────────┐")
	fmt.Fprintln(out, "│           elixir-assist History             │")
	fmt.Fprintln(out, "├─────────────────────────────────────────────┤")
	fmt.Fprintf(out, "│   Jobs:              %-20d   │\n", stats["jobs"])
	fmt.Fprintf(out, "│   Merges:            %-20d   │\n", stats["merges"])
	fmt.Fprintf(out, "│   Applied:           %-20d   │\n", stats["applied"])
	fmt.Fprintln(out, "└─────────────────────────────────────────────┘")
	return nil
}
