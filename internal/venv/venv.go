// Package venv provisions and manages the Python virtual environment holding
// the documentation toolchain. Provisioning prefers uv when it is on PATH and
// falls back to the stock venv module plus pip.
package venv

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	derrors "git.home.luguber.info/inful/docmake/internal/errors"
)

// Manager provisions and resolves paths inside one virtual environment.
type Manager struct {
	Dir          string // venv directory, e.g. ".venv"
	Python       string // base interpreter used for the fallback path
	Requirements string // pinned requirements file

	// run executes an external command; replaced in tests.
	run func(ctx context.Context, env []string, name string, args ...string) error
	// lookPath resolves a binary on PATH; replaced in tests.
	lookPath func(name string) (string, error)
}

// NewManager creates a venv manager for the given directory and requirements file.
func NewManager(dir, python, requirements string) *Manager {
	return &Manager{
		Dir:          dir,
		Python:       python,
		Requirements: requirements,
		run:          runCommand,
		lookPath:     exec.LookPath,
	}
}

func runCommand(ctx context.Context, env []string, name string, args ...string) error {
	// #nosec G204 -- tool names are fixed or resolved via LookPath
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd.Run()
}

// Exists reports whether the venv directory is present.
func (m *Manager) Exists() bool {
	st, err := os.Stat(m.Dir)
	return err == nil && st.IsDir()
}

// BinDir returns the directory holding the venv's executables.
func (m *Manager) BinDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(m.Dir, "Scripts")
	}
	return filepath.Join(m.Dir, "bin")
}

// Tool returns the path of an executable inside the venv.
func (m *Manager) Tool(name string) string {
	return filepath.Join(m.BinDir(), name)
}

// PythonPath returns the venv interpreter path.
func (m *Manager) PythonPath() string {
	return m.Tool("python3")
}

// Provision creates the venv and installs pinned requirements. An existing
// venv is left untouched; recreate it with clean-venv first.
func (m *Manager) Provision(ctx context.Context) error {
	if m.Exists() {
		fmt.Println("venv already exists.")
		fmt.Println("To recreate it, remove it first with `docmake clean-venv'.")
		return nil
	}

	if _, err := os.Stat(m.Requirements); err != nil {
		return derrors.Wrap(err, derrors.CategoryVenv, derrors.SeverityFatal, "requirements file not found").
			WithContext("requirements", m.Requirements)
	}

	if uvPath, err := m.lookPath("uv"); err == nil {
		return m.provisionWithUV(ctx, uvPath)
	}
	return m.provisionWithPip(ctx)
}

func (m *Manager) provisionWithUV(ctx context.Context, uvPath string) error {
	slog.Info("Creating venv with uv", "dir", m.Dir)
	if err := m.run(ctx, nil, uvPath, "venv", m.Dir); err != nil {
		return derrors.Wrap(err, derrors.CategoryVenv, derrors.SeverityFatal, "uv venv failed").
			WithContext("dir", m.Dir)
	}
	env := []string{"VIRTUAL_ENV=" + m.Dir}
	if err := m.run(ctx, env, uvPath, "pip", "install", "-r", m.Requirements); err != nil {
		return derrors.Wrap(err, derrors.CategoryVenv, derrors.SeverityFatal, "uv pip install failed").
			WithContext("requirements", m.Requirements)
	}
	slog.Info("venv created", "dir", m.Dir, "installer", "uv")
	return nil
}

func (m *Manager) provisionWithPip(ctx context.Context) error {
	slog.Info("Creating venv with python -m venv", "dir", m.Dir, "python", m.Python)
	if err := m.run(ctx, nil, m.Python, "-m", "venv", m.Dir); err != nil {
		return derrors.Wrap(err, derrors.CategoryVenv, derrors.SeverityFatal, "python -m venv failed").
			WithContext("dir", m.Dir)
	}
	py := m.PythonPath()
	if err := m.run(ctx, nil, py, "-m", "pip", "install", "--upgrade", "pip"); err != nil {
		return derrors.Wrap(err, derrors.CategoryVenv, derrors.SeverityFatal, "pip upgrade failed")
	}
	if err := m.run(ctx, nil, py, "-m", "pip", "install", "-r", m.Requirements); err != nil {
		return derrors.Wrap(err, derrors.CategoryVenv, derrors.SeverityFatal, "pip install failed").
			WithContext("requirements", m.Requirements)
	}
	slog.Info("venv created", "dir", m.Dir, "installer", "pip")
	return nil
}

// Ensure provisions the venv when it is missing.
func (m *Manager) Ensure(ctx context.Context) error {
	if m.Exists() {
		return nil
	}
	return m.Provision(ctx)
}

// Remove deletes the venv directory.
func (m *Manager) Remove() error {
	if !m.Exists() {
		slog.Info("venv not present, nothing to remove", "dir", m.Dir)
		return nil
	}
	if err := os.RemoveAll(m.Dir); err != nil {
		return derrors.Wrap(err, derrors.CategoryFileSystem, derrors.SeverityError, "failed to remove venv").
			WithContext("dir", m.Dir)
	}
	slog.Info("venv removed", "dir", m.Dir)
	return nil
}

// RunTool executes a venv-installed executable with the venv's bin directory
// prepended to PATH, so hooks that re-exec their tools resolve correctly.
func (m *Manager) RunTool(ctx context.Context, name string, args ...string) error {
	if !m.Exists() {
		return derrors.New(derrors.CategoryVenv, derrors.SeverityFatal, "venv not provisioned; run `docmake venv` first").
			WithContext("dir", m.Dir)
	}
	env := []string{
		"PATH=" + m.BinDir() + string(os.PathListSeparator) + os.Getenv("PATH"),
		"VIRTUAL_ENV=" + m.Dir,
	}
	if err := m.run(ctx, env, m.Tool(name), args...); err != nil {
		return derrors.Wrap(err, derrors.CategoryToolchain, derrors.SeverityError, name+" failed")
	}
	return nil
}
