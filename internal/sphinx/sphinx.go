// Package sphinx invokes sphinx-build as a black box and interprets just
// enough of its surface (exit code, warnings log) to drive the build targets.
package sphinx

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	derrors "git.home.luguber.info/inful/docmake/internal/errors"
	"git.home.luguber.info/inful/docmake/internal/observability"
)

// Builder selects the sphinx output mode.
type Builder string

const (
	BuilderHTML    Builder = "html"
	BuilderDirHTML Builder = "dirhtml"
)

// WarningsLogName is the dedicated warnings log inside the build directory.
const WarningsLogName = "warnings.log"

// Runner drives sphinx-build for one source tree.
type Runner struct {
	Bin           string // sphinx-build executable (venv path)
	Source        string // source directory containing conf.py
	BuildDir      string // build output root
	Jobs          string // -j value ("auto" or a number)
	FailOnWarning bool
	Nitpicky      bool // -n, warn about every missing reference

	// run executes the build process; replaced in tests.
	run func(ctx context.Context, name string, args ...string) error
}

// NewRunner creates a sphinx runner.
func NewRunner(bin, source, buildDir, jobs string, failOnWarning bool) *Runner {
	return &Runner{
		Bin:           bin,
		Source:        source,
		BuildDir:      buildDir,
		Jobs:          jobs,
		FailOnWarning: failOnWarning,
		run:           runSphinx,
	}
}

func runSphinx(ctx context.Context, name string, args ...string) error {
	// #nosec G204 -- executable path comes from the venv manager
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// OutputDir returns the directory a builder renders into.
func (r *Runner) OutputDir(builder Builder) string {
	return filepath.Join(r.BuildDir, string(builder))
}

// WarningsLog returns the path of the warnings log file.
func (r *Runner) WarningsLog() string {
	return filepath.Join(r.BuildDir, WarningsLogName)
}

// IndexPage returns the rendered index page for a builder.
func (r *Runner) IndexPage(builder Builder) string {
	return filepath.Join(r.OutputDir(builder), "index.html")
}

// BuildArgs assembles the sphinx-build argument list for a builder.
func (r *Runner) BuildArgs(builder Builder) []string {
	args := []string{
		"-b", string(builder),
		"-j", r.Jobs,
		"-d", filepath.Join(r.BuildDir, ".doctrees"),
		"-w", r.WarningsLog(),
		// Sources are linked direct to VCS, no need to copy them into the output.
		"-D", "html_copy_source=0",
	}
	if r.Nitpicky {
		args = append(args, "-n")
	}
	if r.FailOnWarning {
		args = append(args, "-W", "--keep-going")
	}
	return append(args, r.Source, r.OutputDir(builder))
}

// Build renders the source tree with the given builder. Warnings are teed by
// sphinx into the warnings log; with FailOnWarning they fail the build after a
// complete pass (--keep-going).
func (r *Runner) Build(ctx context.Context, builder Builder) error {
	if err := os.MkdirAll(r.BuildDir, 0o755); err != nil {
		return derrors.Wrap(err, derrors.CategoryFileSystem, derrors.SeverityFatal, "failed to create build directory").
			WithContext("dir", r.BuildDir)
	}
	// Truncate the log so it only reflects this run.
	_ = os.Remove(r.WarningsLog())

	observability.InfoContext(ctx, "Running sphinx-build",
		slog.String("builder", string(builder)),
		slog.String("output", r.OutputDir(builder)))

	if err := r.run(ctx, r.Bin, r.BuildArgs(builder)...); err != nil {
		warnings := r.WarningCount()
		return derrors.Wrap(err, derrors.CategorySphinx, derrors.SeverityFatal, "sphinx-build failed").
			WithContext("builder", string(builder)).
			WithContext("warnings", warnings).
			WithContext("warnings_log", r.WarningsLog())
	}
	return nil
}

// WarningCount reads the warnings log and counts non-empty lines.
// Best-effort; a missing log yields zero.
func (r *Runner) WarningCount() int {
	f, err := os.Open(r.WarningsLog())
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	return count
}
