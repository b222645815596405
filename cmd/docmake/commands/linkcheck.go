package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/docmake/internal/config"
	derrors "git.home.luguber.info/inful/docmake/internal/errors"
	"git.home.luguber.info/inful/docmake/internal/linkcheck"
	"git.home.luguber.info/inful/docmake/internal/observability"
	"git.home.luguber.info/inful/docmake/internal/sphinx"
)

// buildForCheck renders the site as the inner stage of linkcheck. It does not
// record a run row; the linkcheck command records exactly one for the whole
// invocation. Replaced in tests.
var buildForCheck = func(cfg *config.Config) (*sphinx.Runner, error) {
	return runBuild(cfg, sphinx.BuilderHTML, "linkcheck", false)
}

// LinkCheckCmd implements the 'linkcheck' command: build, then verify every
// link in the rendered output.
type LinkCheckCmd struct {
	SkipBuild  bool `name:"skip-build" help:"Verify an existing build instead of rebuilding first."`
	NoExternal bool `name:"no-external" help:"Skip outbound HTTP links, verify only the output tree."`
}

func (l *LinkCheckCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if l.NoExternal {
		off := false
		cfg.LinkCheck.External = &off
	}

	var runner *sphinx.Runner
	if l.SkipBuild {
		runner = newSphinxRunner(cfg, newVenvManager(cfg))
	} else {
		runner, err = buildForCheck(cfg)
		if err != nil {
			return err
		}
	}

	ctx, runID := newRunContext("linkcheck")
	started := time.Now()
	outputDir := runner.OutputDir(sphinx.BuilderHTML)

	service, err := linkcheck.NewService(&cfg.LinkCheck, outputDir, runID)
	if err != nil {
		return derrors.Wrap(err, derrors.CategoryLinkCheck, derrors.SeverityFatal, "failed to create link checker")
	}
	defer func() { _ = service.Close() }()

	result, err := service.Run(ctx)
	if err != nil {
		return derrors.Wrap(err, derrors.CategoryLinkCheck, derrors.SeverityFatal, "link verification failed")
	}

	reportPath := filepath.Join(cfg.Build.Directory, "linkcheck", "report.html")
	if err := linkcheck.WriteReport(result, reportPath, time.Now()); err != nil {
		slog.Warn("failed to write link report", "error", err)
	} else {
		observability.InfoContext(ctx, "Link report written", slog.String("path", reportPath))
	}

	recordRun(ctx, cfg, runID, "linkcheck", started, !result.HasBroken(), len(result.Broken))

	fmt.Printf("Checked %d links across %d pages in %s\n",
		result.LinksChecked, result.Pages, result.Duration.Round(time.Millisecond))
	if result.HasBroken() {
		for _, b := range result.Broken {
			fmt.Fprintf(os.Stderr, "broken: %s -> %s (%s)\n", b.Page, b.URL, b.Reason)
		}
		return derrors.New(derrors.CategoryLinkCheck, derrors.SeverityError,
			fmt.Sprintf("%d broken links", len(result.Broken)))
	}
	fmt.Println("All links resolved")
	return nil
}
