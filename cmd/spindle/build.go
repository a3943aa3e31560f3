package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/spindle/internal/build"
	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/dev"
	"github.com/vango-dev/spindle/internal/errors"
)

// buildFlags are the overrides shared by build, watch and serve.
type buildFlags struct {
	release     bool
	dist        string
	publicURL   string
	concurrency int
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.release, "release", false, "Build optimised assets")
	cmd.Flags().StringVarP(&f.dist, "dist", "d", "", "Output directory (default from config)")
	cmd.Flags().StringVar(&f.publicURL, "public-url", "", "URL prefix for emitted references (default from config)")
	cmd.Flags().IntVarP(&f.concurrency, "jobs", "j", 0, "Maximum parallel asset builds (default one per CPU)")
}

func (f *buildFlags) apply(cfg *config.Config) {
	if f.release {
		cfg.Build.Release = true
	}
	if f.dist != "" {
		cfg.Build.Dist = f.dist
	}
	if f.publicURL != "" {
		cfg.Build.PublicURL = f.publicURL
	}
	if f.concurrency != 0 {
		cfg.Build.Concurrency = f.concurrency
	}
}

func buildCmd() *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the application once",
		Long: `Build every asset declared in the target HTML file.

This command:
  • Compiles the Go WebAssembly target and its JS glue
  • Compiles Sass and copies stylesheets, files and icons
  • Writes content-hashed outputs to the dist directory
  • Writes the rewritten index.html and manifest.json

The exit code is non-zero unless every asset built.

Examples:
  spindle build
  spindle build --release
  spindle build --dist=public --public-url=/app/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(&flags)
		},
	}

	flags.register(cmd)
	return cmd
}

func runBuild(flags *buildFlags) error {
	cfg, err := loadConfig(flags.apply)
	if err != nil {
		return err
	}

	printBanner()
	info("Building %s", cfg.Build.Target)
	fmt.Println()

	p := newPipeline(cfg, func(step string) { info("%s", step) })
	rebuilder := dev.NewRebuilder(dev.RebuilderOptions{
		Runner:   p.orchestrator,
		HTMLPath: cfg.TargetPath(),
		Logger:   p.log,
	})

	ctx, cancel := signalContext()
	defer cancel()

	report, err := rebuilder.Build(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	printOutputs(cfg, report)

	if report.Status != build.StatusSuccess {
		reportFailures(report)
		return errors.New("E140").
			WithDetailf("%d of %d assets failed", len(report.Failed()), len(report.Nodes))
	}

	success("Build complete in %s", report.Duration.Round(1000000))
	return nil
}

// printOutputs lists the files a run produced, relative to the project.
func printOutputs(cfg *config.Config, report *build.Report) {
	if globals.quiet {
		return
	}
	dist := cfg.Build.Dist
	if rel, err := filepath.Rel(cfg.Root(), cfg.DistPath()); err == nil {
		dist = rel
	}

	fmt.Println("  Output:")
	fmt.Printf("    %s/\n", filepath.ToSlash(dist))
	for _, n := range report.Nodes {
		if !n.OK() {
			fmt.Printf("    ├── %s  %s\n", n.Href, colorize("31", "failed"))
			continue
		}
		for _, o := range n.Result.Outputs() {
			fmt.Printf("    ├── %s  (%s)\n", n.Result.URLPath(o), formatBytes(int64(len(o.Bytes))))
		}
	}
	fmt.Printf("    ├── manifest.json\n")
	fmt.Printf("    └── index.html  (%s)\n", formatBytes(int64(len(report.HTML))))
	fmt.Println()
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
