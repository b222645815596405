package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docmake/cmd/docmake/commands"
	"git.home.luguber.info/inful/docmake/internal/version"
)

func main() {
	cli := commands.CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("docmake"),
		kong.Description("Build orchestrator for the Sphinx documentation toolchain"),
		kong.UsageOnError(),
		kong.Vars{"version": fmt.Sprintf("docmake %s (%s)", version.Version, version.GitCommit)},
	)

	if err := ctx.Run(&commands.Global{Logger: slog.Default()}); err != nil {
		slog.Error("Command failed", "error", err)
		if errors.Is(err, commands.ErrDeprecatedTarget) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
