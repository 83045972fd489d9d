package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/elixir-editor/assist/internal/assist"
	"github.com/elixir-editor/assist/internal/buffer"
	"github.com/elixir-editor/assist/internal/config"
	"github.com/elixir-editor/assist/internal/logging"
	"github.com/elixir-editor/assist/internal/rpc"
)

var (
	serveNvim    string
	serveNoWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the editor command channel",
	Long: `Start the command channel: newline-delimited JSON-RPC 2.0 on stdin/stdout.

Methods: initialize, analyze, merge, pending, apply, cancel, saved, status,
shutdown. Progress arrives as notifications assist/partial, assist/completed,
assist/failed and assist/applied, each tagged with the analysis generation.

With --nvim the buffer is always Neovim's current buffer, reached over the
given RPC address; otherwise request paths name files on disk.

config.toml is reloaded when it changes unless --no-watch is given.

Examples:
  elixir-assist serve
  elixir-assist serve --nvim $NVIM`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveNvim, "nvim", "", "Neovim RPC address (socket path or host:port)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload config.toml on change")
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := openProject(false)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := p.assistOptions()
	if serveNvim != "" {
		nv, err := buffer.DialNvim(serveNvim)
		if err != nil {
			return fmt.Errorf("failed to connect to neovim at %s: %w", serveNvim, err)
		}
		defer nv.Close()
		opts = append(opts, assist.WithOpener(func(string) (buffer.Buffer, error) { return nv, nil }))
	}

	if p.store.Path() != "" && !serveNoWatch {
		go func() {
			if err := config.Watch(ctx, p.store, config.DefaultDebounce); err != nil && ctx.Err() == nil {
				logging.Warn("config watch stopped: %v", err)
			}
		}()
	}

	a := assist.New(p.store, opts...)
	server := rpc.NewServer(a, rpc.WithVersion(buildVersion))

	logging.Info("serve: session %s started (project %q)", server.Session().ID, p.dir)
	return server.Serve(ctx)
}
