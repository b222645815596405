package commands

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/docmake/internal/config"
	"git.home.luguber.info/inful/docmake/internal/gitinfo"
	"git.home.luguber.info/inful/docmake/internal/observability"
	"git.home.luguber.info/inful/docmake/internal/sphinx"
	"git.home.luguber.info/inful/docmake/internal/state"
	"git.home.luguber.info/inful/docmake/internal/venv"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"docmake.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	HTML       HTMLCmd       `cmd:"" name:"html" help:"Render source documents to HTML"`
	HTMLView   HTMLViewCmd   `cmd:"" name:"htmlview" help:"Build, then open the generated index page in a browser"`
	HTMLLive   HTMLLiveCmd   `cmd:"" name:"htmllive" help:"Build and serve with live reload"`
	DirHTML    DirHTMLCmd    `cmd:"" name:"dirhtml" help:"Render with the directory-per-document HTML builder"`
	LinkCheck  LinkCheckCmd  `cmd:"" name:"linkcheck" help:"Validate links in the rendered output"`
	Clean      CleanCmd      `cmd:"" name:"clean" help:"Remove the build output directory"`
	CleanVenv  CleanVenvCmd  `cmd:"" name:"clean-venv" help:"Remove the provisioned virtual environment"`
	Venv       VenvCmd       `cmd:"" name:"venv" help:"Provision the virtual environment and install pinned dependencies"`
	Lint       LintCmd       `cmd:"" name:"lint" help:"Run the pre-commit hook suite across all files"`
	Test       TestCmd       `cmd:"" name:"test" help:"Run the project's test suite with warnings as errors"`
	Spellcheck SpellcheckCmd `cmd:"" name:"spellcheck" help:"Run the spelling-check hook in manual mode"`
	Pages      PagesCmd      `cmd:"" name:"pages" help:"Deprecated, use html" hidden:""`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig loads the configuration behind the root --config flag.
func loadConfig(root *CLI) (*config.Config, error) {
	return config.Load(root.Config)
}

// newRunContext attaches a fresh run id and the target name to the context.
func newRunContext(target string) (context.Context, string) {
	runID := uuid.NewString()
	ctx := observability.WithTarget(observability.WithRunID(context.Background(), runID), target)
	return ctx, runID
}

// newVenvManager builds the venv manager from configuration.
func newVenvManager(cfg *config.Config) *venv.Manager {
	return venv.NewManager(cfg.Venv.Directory, cfg.Venv.Python, cfg.Venv.Requirements)
}

// newSphinxRunner builds the sphinx runner against the venv's sphinx-build.
func newSphinxRunner(cfg *config.Config, vm *venv.Manager) *sphinx.Runner {
	r := sphinx.NewRunner(vm.Tool("sphinx-build"), cfg.Source, cfg.Build.Directory,
		cfg.Build.Jobs, cfg.Build.FailOnWarningEnabled())
	r.Nitpicky = cfg.Build.Nitpicky
	return r
}

// recordRun persists one run row; history being unavailable never fails a build.
func recordRun(ctx context.Context, cfg *config.Config, runID, target string, started time.Time, success bool, warnings int) {
	dbPath := cfg.State.DatabasePath()
	if dbPath == "" {
		return
	}
	store, err := state.Open(dbPath)
	if err != nil {
		slog.Debug("run history unavailable", "error", err)
		return
	}
	defer func() { _ = store.Close() }()

	info := gitinfo.Resolve(cfg.Source)
	run := state.Run{
		ID:        runID,
		Target:    target,
		StartedAt: started,
		Duration:  time.Since(started),
		Success:   success,
		Warnings:  warnings,
		Commit:    info.Commit,
		Dirty:     info.Dirty,
	}
	if err := store.Record(ctx, run); err != nil {
		slog.Debug("run history write failed", "error", err)
	}
}
