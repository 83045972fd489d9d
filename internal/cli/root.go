package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var projectDirFlag string

var rootCmd = &cobra.Command{
	Use:   "elixir-assist",
	Short: "AI refactoring for the buffer you are editing",
	Long: `elixir-assist - AI Refactoring Assistant

elixir-assist sends the buffer you are editing to a hosted model, polls for
the rewrite while it streams, and reconciles the answer with your code:
whole-file replacement when the rewrite is close, function and class blocks
when it is partial, line alignment otherwise. Nothing is written until you
apply the merge.

Quick Start:
  elixir-assist init                 Create .elixir-assist/ with a default config
  elixir-assist refactor main.js     Rewrite a file and show the merge
  elixir-assist apply main.js        Write the pending merge
  elixir-assist serve --nvim $NVIM   Command channel for an editor`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDirFlag, "dir", "C", "", "Directory to search for .elixir-assist (default: current directory)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(refactorCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}
