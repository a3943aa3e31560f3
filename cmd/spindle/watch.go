package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/spindle/internal/build"
	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/dev"
	"github.com/vango-dev/spindle/internal/errors"
)

func watchCmd() *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build and rebuild on change",
		Long: `Build the application, then watch the sources and rebuild what changed.

Only the assets whose sources changed are rebuilt. Editing the target
HTML file re-reads every declaration.

Examples:
  spindle watch
  spindle watch --dist=public`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(&flags)
		},
	}

	flags.register(cmd)
	return cmd
}

func runWatch(flags *buildFlags) error {
	cfg, err := loadConfig(flags.apply)
	if err != nil {
		return err
	}

	printBanner()
	info("Watching %s", cfg.Build.Target)
	fmt.Println()

	p := newPipeline(cfg, nil)
	watcher, err := newWatcher(p)
	if err != nil {
		return err
	}
	defer watcher.Close()

	var rebuilder *dev.Rebuilder
	rebuilder = dev.NewRebuilder(dev.RebuilderOptions{
		Runner:   p.orchestrator,
		HTMLPath: cfg.TargetPath(),
		Logger:   p.log,
		OnReport: func(report *build.Report, err error) {
			printReport(report, err)
			watcher.Follow(cfg, rebuilder.Graph())
		},
	})

	ctx, cancel := signalContext()
	defer cancel()

	// A failed first build still watches so the user can fix it.
	_, _ = rebuilder.Build(ctx)

	return watchAndRebuild(ctx, p, watcher, rebuilder)
}

// newWatcher watches the roots known before the first build. Roots found
// by later builds are added through Watcher.Follow.
func newWatcher(p *pipeline) (*dev.Watcher, error) {
	return dev.NewWatcher(dev.WatcherConfig{
		Paths:  dev.CollectWatchPaths(p.config, nil),
		Ignore: watchIgnore(p.config),
		Dist:   p.config.DistPath(),
		Logger: p.log,
	})
}

// watchAndRebuild runs the watch loop until ctx is done.
func watchAndRebuild(ctx context.Context, p *pipeline, watcher *dev.Watcher, rebuilder *dev.Rebuilder) error {
	for _, root := range watcher.Roots() {
		p.log.Debug("watching", "path", root)
	}

	debouncer := &dev.Debouncer{
		Window:  p.config.DebounceDuration(),
		Metrics: p.metrics,
	}
	err := dev.RunWatchLoop(ctx, watcher, debouncer, rebuilder)
	fmt.Println()
	info("Stopped")
	return err
}

func watchIgnore(cfg *config.Config) []string {
	if len(cfg.Watch.Ignore) == 0 {
		return nil
	}
	return append(append([]string(nil), dev.DefaultIgnore...), cfg.Watch.Ignore...)
}

// printReport prints a one-line summary of a watch-mode run.
func printReport(report *build.Report, err error) {
	if err != nil {
		errorMsg("Build failed")
		errors.PrintError(err)
		return
	}
	switch report.Status {
	case build.StatusSuccess:
		success("Built %d assets in %s", len(report.Nodes), report.Duration.Round(1000000))
	case build.StatusPartialFailure:
		warn("Built with %d of %d assets failing", len(report.Failed()), len(report.Nodes))
		reportFailures(report)
	default:
		errorMsg("All %d assets failed", len(report.Nodes))
		reportFailures(report)
	}
}
