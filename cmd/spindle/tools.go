package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/toolchain"
)

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the external toolchain",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configured tools and whether each is on PATH",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}

			statuses := toolchain.Lookup(toolsFromConfig(cfg))

			fmt.Println()
			for _, st := range statuses {
				if st.Found {
					fmt.Printf("  %s %-9s %s\n", colorize("32", "✓"), st.Name, st.Path)
				} else {
					fmt.Printf("  %s %-9s %s (not found)\n", colorize("31", "✗"), st.Name, st.Value)
				}
			}
			fmt.Println()
			return nil
		},
	})

	return cmd
}

// toolsFromConfig maps the tools section onto the adapters' executables.
func toolsFromConfig(cfg *config.Config) toolchain.Tools {
	return toolchain.Tools{
		Go:      cfg.Tools.Go,
		Sass:    cfg.Tools.Sass,
		WasmOpt: cfg.Tools.WasmOpt,
		Esbuild: cfg.Tools.Esbuild,
	}
}
