package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/docmake/internal/browser"
	"git.home.luguber.info/inful/docmake/internal/config"
	"git.home.luguber.info/inful/docmake/internal/observability"
	"git.home.luguber.info/inful/docmake/internal/sphinx"
)

// HTMLCmd implements the 'html' command.
type HTMLCmd struct{}

func (h *HTMLCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	_, err = runBuild(cfg, sphinx.BuilderHTML, "html", true)
	return err
}

// DirHTMLCmd implements the 'dirhtml' command.
type DirHTMLCmd struct{}

func (d *DirHTMLCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	_, err = runBuild(cfg, sphinx.BuilderDirHTML, "dirhtml", true)
	return err
}

// HTMLViewCmd implements the 'htmlview' command.
type HTMLViewCmd struct{}

func (h *HTMLViewCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	runner, err := runBuild(cfg, sphinx.BuilderHTML, "htmlview", true)
	if err != nil {
		return err
	}

	index, err := filepath.Abs(runner.IndexPage(sphinx.BuilderHTML))
	if err != nil {
		return fmt.Errorf("resolve index page: %w", err)
	}
	url := "file://" + filepath.ToSlash(index)
	slog.Info("Opening rendered site", "url", url)
	if err := browser.Open(url); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

// runBuild ensures the venv and runs one sphinx build. With record set it
// writes a run-history row; commands that treat the build as an inner stage
// (linkcheck) record their own row instead.
func runBuild(cfg *config.Config, builder sphinx.Builder, target string, record bool) (*sphinx.Runner, error) {
	ctx, runID := newRunContext(target)
	started := time.Now()

	vm := newVenvManager(cfg)
	if err := vm.Ensure(ctx); err != nil {
		return nil, err
	}

	runner := newSphinxRunner(cfg, vm)
	if v := sphinx.DetectVersion(ctx, runner.Bin); v != "" {
		observability.DebugContext(ctx, "Detected sphinx", slog.String("version", v))
	}

	buildErr := runner.Build(ctx, builder)
	warnings := runner.WarningCount()
	if record {
		recordRun(ctx, cfg, runID, target, started, buildErr == nil, warnings)
	}
	if buildErr != nil {
		return nil, buildErr
	}

	observability.InfoContext(ctx, "Build completed",
		slog.String("output", runner.OutputDir(builder)),
		slog.Int("warnings", warnings),
		slog.Duration("duration", time.Since(started).Round(time.Millisecond)))
	fmt.Println("Build completed successfully")
	return runner, nil
}

// rebuildFunc returns the closure the preview server uses for rebuilds.
func rebuildFunc(runner *sphinx.Runner) func(context.Context) error {
	return func(ctx context.Context) error {
		return runner.Build(ctx, sphinx.BuilderHTML)
	}
}
