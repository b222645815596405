package commands

import (
	"fmt"
)

// LintCmd implements the 'lint' command: the full pre-commit hook suite.
type LintCmd struct{}

func (l *LintCmd) Run(_ *Global, root *CLI) error {
	return runVenvTool(root, "lint", "pre-commit", "run", "--all-files")
}

// SpellcheckCmd implements the 'spellcheck' command: the codespell hook,
// which only runs in the manual stage.
type SpellcheckCmd struct{}

func (s *SpellcheckCmd) Run(_ *Global, root *CLI) error {
	return runVenvTool(root, "spellcheck",
		"pre-commit", "run", "--all-files", "--hook-stage", "manual", "codespell")
}

// TestCmd implements the 'test' command: pytest with warnings as errors.
type TestCmd struct{}

func (t *TestCmd) Run(_ *Global, root *CLI) error {
	return runVenvTool(root, "test", "python3", "-m", "pytest", "-W", "error")
}

// runVenvTool ensures the venv exists and executes one of its tools.
func runVenvTool(root *CLI, target, tool string, args ...string) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, _ := newRunContext(target)
	vm := newVenvManager(cfg)
	if err := vm.Ensure(ctx); err != nil {
		return err
	}
	return vm.RunTool(ctx, tool, args...)
}
