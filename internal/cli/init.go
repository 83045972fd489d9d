package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/elixir-editor/assist/internal/config"
)

var (
	initForce         bool
	initToken         string
	initAnalyzeOnSave bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize elixir-assist in the current directory",
	Long: `Initialize elixir-assist in the current directory (or --dir).

This creates a .elixir-assist/ directory holding config.toml, the job and
merge history, pending merges and the log file. The directory ignores itself
in git because the config may hold an API token.

The token can also come from REPLICATE_API_TOKEN or ELIXIR_ASSIST_API_TOKEN.

Example:
  elixir-assist init
  elixir-assist init --token r8_xxx --analyze-on-save
  elixir-assist init --force     # Overwrite an existing config.toml`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config.toml")
	initCmd.Flags().StringVar(&initToken, "token", "", "API token to store in config.toml")
	initCmd.Flags().BoolVar(&initAnalyzeOnSave, "analyze-on-save", false, "Run an analysis whenever a buffer is saved")
}

func runInit(cmd *cobra.Command, args []string) error {
	base := projectDirFlag
	if base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		base = cwd
	}

	dir := filepath.Join(base, config.DirName)
	cfgPath := config.Path(dir)

	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		fmt.Fprintf(cmd.OutOrStdout(), "elixir-assist already initialized at %s\n", dir)
		fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite config.toml.")
		return nil
	}

	if err := os.MkdirAll(filepath.Join(dir, "pending"), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	cfg := config.Default()
	cfg.AI.APIToken = initToken
	cfg.AI.AnalyzeOnSave = initAnalyzeOnSave
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*\n"), 0644); err != nil {
		return fmt.Errorf("failed to write .gitignore: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized elixir-assist in %s\n", dir)
	fmt.Fprintln(out)
	if initToken == "" {
		fmt.Fprintln(out, "Set an API token before running an analysis:")
		fmt.Fprintln(out, "  export REPLICATE_API_TOKEN=r8_...")
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  elixir-assist refactor <file>     Rewrite a file and preview the merge")
	fmt.Fprintln(out, "  elixir-assist serve               Start the editor command channel")
	return nil
}
