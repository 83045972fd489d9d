package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/elixir-editor/assist/internal/assist"
	"github.com/elixir-editor/assist/internal/config"
	"github.com/elixir-editor/assist/internal/logging"
	"github.com/elixir-editor/assist/internal/storage"
)

// project is everything a command needs from .elixir-assist. Commands that
// tolerate a missing project get defaults plus environment overrides and no
// persistence.
type project struct {
	dir     string
	store   *config.Store
	history *storage.History
	pending *storage.JSONStore
	logger  *logging.Logger
}

// findProjectDir honours --dir, then the working directory
func findProjectDir() (string, error) {
	if projectDirFlag != "" {
		return config.FindDir(projectDirFlag)
	}
	return config.FindDirFromCwd()
}

func openProject(required bool) (*project, error) {
	dir, err := findProjectDir()
	if err != nil {
		if required || !errors.Is(err, config.ErrNoProject) {
			return nil, fmt.Errorf("%w (run 'elixir-assist init' first)", err)
		}
		cfg := config.Default()
		config.ApplyEnv(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &project{store: config.NewStore("", cfg)}, nil
	}

	store, err := config.OpenStore(config.Path(dir))
	if err != nil {
		return nil, err
	}
	cfg := store.Get()

	p := &project{
		dir:     dir,
		store:   store,
		pending: storage.NewJSONStore(dir),
	}

	if cfg.Log.File != "" {
		logger, err := logging.Init(logging.Options{
			File:  config.Resolve(dir, cfg.Log.File),
			Level: cfg.Log.Level,
			JSON:  cfg.Log.JSON,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		} else {
			p.logger = logger
		}
	}

	if cfg.History.Enabled {
		h, err := storage.OpenHistory(config.Resolve(dir, cfg.History.File))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
		} else {
			p.history = h
		}
	}

	return p, nil
}

// assistOptions wires the project's persistence into an assistant
func (p *project) assistOptions() []assist.Option {
	var opts []assist.Option
	if p.history != nil {
		opts = append(opts, assist.WithHistory(p.history))
	}
	if p.pending != nil {
		opts = append(opts, assist.WithPending(p.pending))
	}
	return opts
}

func (p *project) Close() {
	if p.history != nil {
		p.history.Close()
	}
	if p.logger != nil {
		p.logger.Close()
		logging.SetDefault(logging.New(io.Discard, logging.LevelError, false))
	}
}
