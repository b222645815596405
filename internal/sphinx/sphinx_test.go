package sphinx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	derrors "git.home.luguber.info/inful/docmake/internal/errors"
)

func newTestRunner(t *testing.T, failOnWarning bool) *Runner {
	t.Helper()
	dir := t.TempDir()
	return NewRunner(
		filepath.Join(dir, ".venv", "bin", "sphinx-build"),
		filepath.Join(dir, "docs"),
		filepath.Join(dir, "build"),
		"auto",
		failOnWarning,
	)
}

func TestBuildArgs(t *testing.T) {
	r := newTestRunner(t, true)
	args := r.BuildArgs(BuilderHTML)

	wantPairs := map[string]string{
		"-b": "html",
		"-j": "auto",
		"-d": filepath.Join(r.BuildDir, ".doctrees"),
		"-w": r.WarningsLog(),
		"-D": "html_copy_source=0",
	}
	for flag, value := range wantPairs {
		i := slices.Index(args, flag)
		if i < 0 || i+1 >= len(args) {
			t.Fatalf("flag %s missing from args %v", flag, args)
		}
		if args[i+1] != value {
			t.Errorf("%s = %q, want %q", flag, args[i+1], value)
		}
	}

	if !slices.Contains(args, "-W") || !slices.Contains(args, "--keep-going") {
		t.Errorf("fail-on-warning args missing: %v", args)
	}

	// Positional source and output come last.
	if args[len(args)-2] != r.Source {
		t.Errorf("penultimate arg = %q, want source %q", args[len(args)-2], r.Source)
	}
	if args[len(args)-1] != r.OutputDir(BuilderHTML) {
		t.Errorf("last arg = %q, want output %q", args[len(args)-1], r.OutputDir(BuilderHTML))
	}
}

func TestBuildArgs_WarningsNotFatal(t *testing.T) {
	r := newTestRunner(t, false)
	args := r.BuildArgs(BuilderDirHTML)

	if slices.Contains(args, "-W") {
		t.Errorf("-W present without fail-on-warning: %v", args)
	}
	if i := slices.Index(args, "-b"); i < 0 || args[i+1] != "dirhtml" {
		t.Errorf("builder not dirhtml: %v", args)
	}
}

func TestBuildArgs_Nitpicky(t *testing.T) {
	r := newTestRunner(t, true)

	if slices.Contains(r.BuildArgs(BuilderHTML), "-n") {
		t.Errorf("-n present without nitpicky: %v", r.BuildArgs(BuilderHTML))
	}

	r.Nitpicky = true
	if !slices.Contains(r.BuildArgs(BuilderHTML), "-n") {
		t.Errorf("-n missing with nitpicky: %v", r.BuildArgs(BuilderHTML))
	}
}

func TestOutputPaths(t *testing.T) {
	r := newTestRunner(t, true)

	if got := r.OutputDir(BuilderHTML); got != filepath.Join(r.BuildDir, "html") {
		t.Errorf("OutputDir = %q", got)
	}
	if got := r.IndexPage(BuilderDirHTML); got != filepath.Join(r.BuildDir, "dirhtml", "index.html") {
		t.Errorf("IndexPage = %q", got)
	}
	if got := r.WarningsLog(); got != filepath.Join(r.BuildDir, WarningsLogName) {
		t.Errorf("WarningsLog = %q", got)
	}
}

func TestBuild_InvokesRunner(t *testing.T) {
	r := newTestRunner(t, true)
	var gotName string
	var gotArgs []string
	r.run = func(_ context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	}

	if err := r.Build(context.Background(), BuilderHTML); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if gotName != r.Bin {
		t.Errorf("ran %q, want %q", gotName, r.Bin)
	}
	if !slices.Equal(gotArgs, r.BuildArgs(BuilderHTML)) {
		t.Errorf("args = %v, want %v", gotArgs, r.BuildArgs(BuilderHTML))
	}
	if _, err := os.Stat(r.BuildDir); err != nil {
		t.Errorf("build dir not created: %v", err)
	}
}

func TestBuild_FailureIsSphinxError(t *testing.T) {
	r := newTestRunner(t, true)
	r.run = func(context.Context, string, ...string) error {
		return errors.New("exit status 2")
	}

	err := r.Build(context.Background(), BuilderHTML)
	if !derrors.IsCategory(err, derrors.CategorySphinx) {
		t.Fatalf("expected sphinx category error, got %v", err)
	}
}

func TestBuild_TruncatesStaleWarningsLog(t *testing.T) {
	r := newTestRunner(t, false)
	if err := os.MkdirAll(r.BuildDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(r.WarningsLog(), []byte("old warning\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r.run = func(context.Context, string, ...string) error { return nil }

	if err := r.Build(context.Background(), BuilderHTML); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := r.WarningCount(); got != 0 {
		t.Errorf("WarningCount after clean build = %d, want 0", got)
	}
}

func TestWarningCount(t *testing.T) {
	r := newTestRunner(t, true)

	if got := r.WarningCount(); got != 0 {
		t.Errorf("missing log WarningCount = %d, want 0", got)
	}

	if err := os.MkdirAll(r.BuildDir, 0o755); err != nil {
		t.Fatal(err)
	}
	log := "docs/index.rst:4: WARNING: undefined label\n\ndocs/pep-0001.rst:10: WARNING: duplicate\n"
	if err := os.WriteFile(r.WarningsLog(), []byte(log), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := r.WarningCount(); got != 2 {
		t.Errorf("WarningCount = %d, want 2", got)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"plain", "sphinx-build 8.1.3\n", "8.1.3"},
		{"parenthesised", "Sphinx (sphinx-build) 7.2.6\n", "7.2.6"},
		{"no version", "something else\n", "something else"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := parseVersion(test.output); got != test.want {
				t.Errorf("parseVersion(%q) = %q, want %q", test.output, got, test.want)
			}
		})
	}
}
