package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"git.home.luguber.info/inful/docmake/internal/browser"
	"git.home.luguber.info/inful/docmake/internal/preview"
	"git.home.luguber.info/inful/docmake/internal/sphinx"
	"git.home.luguber.info/inful/docmake/internal/state"
)

// HTMLLiveCmd implements the 'htmllive' command: build, serve, watch, reload.
type HTMLLiveCmd struct {
	Port        int  `short:"p" default:"0" help:"Override the configured server port."`
	OpenBrowser bool `name:"open-browser" help:"Open the preview in the default browser once serving."`
}

func (h *HTMLLiveCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if h.Port != 0 {
		cfg.Live.Port = h.Port
	}

	runner, err := runBuild(cfg, sphinx.BuilderHTML, "htmllive", true)
	if err != nil {
		return err
	}

	var store *state.Store
	if dbPath := cfg.State.DatabasePath(); dbPath != "" {
		if s, err := state.Open(dbPath); err == nil {
			store = s
			defer func() { _ = store.Close() }()
		} else {
			slog.Debug("run history unavailable", "error", err)
		}
	}

	sigctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Watch and skip paths must share a form for the prefix exclusion to hold.
	absSource, err := filepath.Abs(cfg.Source)
	if err != nil {
		return fmt.Errorf("resolve source dir: %w", err)
	}
	absBuild, err := filepath.Abs(cfg.Build.Directory)
	if err != nil {
		return fmt.Errorf("resolve build dir: %w", err)
	}
	absVenv, err := filepath.Abs(cfg.Venv.Directory)
	if err != nil {
		return fmt.Errorf("resolve venv dir: %w", err)
	}

	openBrowser := h.OpenBrowser || cfg.Live.OpenBrowser
	return preview.Run(sigctx, preview.Options{
		Port:     cfg.Live.Port,
		SiteDir:  runner.OutputDir(sphinx.BuilderHTML),
		WatchDir: absSource,
		SkipDirs: []string{absBuild, absVenv},
		Rebuild:  rebuildFunc(runner),
		Store:    store,
		Interval: cfg.Live.Interval(),
		OnStarted: func(url string) {
			if !openBrowser {
				return
			}
			if err := browser.Open(url); err != nil {
				slog.Warn("failed to open browser", "error", err)
			}
		},
	})
}
