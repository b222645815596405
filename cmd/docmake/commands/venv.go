package commands

import (
	"fmt"
	"log/slog"
	"os"

	derrors "git.home.luguber.info/inful/docmake/internal/errors"
)

// VenvCmd implements the 'venv' command.
type VenvCmd struct{}

func (v *VenvCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, _ := newRunContext("venv")
	return newVenvManager(cfg).Provision(ctx)
}

// CleanCmd implements the 'clean' command.
type CleanCmd struct{}

func (c *CleanCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return removeDir(cfg.Build.Directory, "build output")
}

// CleanVenvCmd implements the 'clean-venv' command.
type CleanVenvCmd struct{}

func (c *CleanVenvCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return newVenvManager(cfg).Remove()
}

func removeDir(dir, what string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		slog.Info("nothing to clean", "dir", dir)
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return derrors.Wrap(err, derrors.CategoryFileSystem, derrors.SeverityError, "failed to remove "+what).
			WithContext("dir", dir)
	}
	slog.Info("removed "+what, "dir", dir)
	return nil
}
