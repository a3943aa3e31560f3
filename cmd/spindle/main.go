package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/spindle/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┌─┐┬┌┐┌┌┬┐┬  ┌─┐
  └─┐├─┘││││ │││  ├┤
  └─┘┴  ┴┘└┘─┴┘┴─┘└─┘
`

// globalFlags are shared by every command.
type globalFlags struct {
	config  string
	verbose int
	quiet   bool
	noColor bool
	offline bool
}

var globals globalFlags

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spindle",
		Short: "Build and serve Go WebAssembly web applications",
		Long: `Spindle bundles Go WebAssembly web applications.

Declare assets in your index.html with <link data-spindle ...> and
spindle will:

  • Compile the Go WebAssembly target and its JS glue
  • Compile Sass and copy stylesheets, files and icons
  • Name every output by content hash
  • Rewrite the HTML to reference the built files
  • Rebuild only what changed and live-reload the browser`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if os.Getenv("NO_COLOR") != "" {
				globals.noColor = true
			}
			if globals.noColor {
				errors.DisableColors()
			}
			if globals.config == "" {
				globals.config = os.Getenv("SPINDLE_CONFIG")
			}
			slog.SetDefault(newLogger())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globals.config, "config", "c", "", "Path to the configuration file (env SPINDLE_CONFIG)")
	flags.CountVarP(&globals.verbose, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	flags.BoolVarP(&globals.quiet, "quiet", "q", false, "Only log errors")
	flags.BoolVar(&globals.noColor, "no-color", false, "Disable coloured output (env NO_COLOR)")
	flags.BoolVar(&globals.offline, "offline", false, "Do not let tools reach the network")

	rootCmd.AddCommand(
		initCmd(),
		buildCmd(),
		watchCmd(),
		serveCmd(),
		cleanCmd(),
		configCmd(),
		toolsCmd(),
		publishCmd(),
		versionCmd(),
	)
	return rootCmd
}

// newLogger builds the process logger from the verbosity flags.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	switch {
	case globals.quiet:
		level = slog.LevelError
	case globals.verbose == 1:
		level = slog.LevelInfo
	case globals.verbose >= 2:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// printBanner prints the spindle ASCII art banner.
func printBanner() {
	if globals.quiet {
		return
	}
	fmt.Print(banner)
}

func colorize(code, s string) string {
	if globals.noColor {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// success prints a success message.
func success(format string, args ...any) {
	if globals.quiet {
		return
	}
	fmt.Printf("%s %s\n", colorize("32", "✓"), fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	if globals.quiet {
		return
	}
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("%s %s\n", colorize("33", "⚠"), fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", colorize("31", "✗"), fmt.Sprintf(format, args...))
}
