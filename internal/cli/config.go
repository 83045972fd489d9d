package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elixir-editor/assist/internal/config"
)

var configShowToken bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, config.toml and environment overrides,
as TOML. The API token is masked unless --show-token is given.

Environment overrides:
  REPLICATE_API_TOKEN, ELIXIR_ASSIST_API_TOKEN   ai.api_token (the latter wins)
  ELIXIR_ASSIST_MODEL                            ai.model_version
  ELIXIR_ASSIST_BASE_URL                         ai.base_url
  ELIXIR_ASSIST_ENABLED                          ai.enabled
  ELIXIR_ASSIST_LOG_LEVEL                        log.level`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowToken, "show-token", false, "Print the API token unmasked")
}

func runConfig(cmd *cobra.Command, args []string) error {
	p, err := openProject(false)
	if err != nil {
		return err
	}
	defer p.Close()

	cfg := p.store.Get()
	shown := &cfg
	if !configShowToken {
		shown = cfg.Redacted()
	}

	data, err := config.Marshal(shown)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path := p.store.Path(); path != "" {
		fmt.Fprintf(out, "# %s\n", path)
	} else {
		fmt.Fprintln(out, "# no project found; defaults and environment only")
	}
	fmt.Fprint(out, string(data))
	return nil
}
