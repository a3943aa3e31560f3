package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/errors"
)

func cleanCmd() *cobra.Command {
	var dist string

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the dist directory",
		Long: `Remove the build output directory.

The directory must be inside the project and must not be the project
root itself.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(func(cfg *config.Config) {
				if dist != "" {
					cfg.Build.Dist = dist
				}
			})
			if err != nil {
				return err
			}
			return runClean(cfg)
		},
	}

	cmd.Flags().StringVarP(&dist, "dist", "d", "", "Output directory (default from config)")
	return cmd
}

func runClean(cfg *config.Config) error {
	target := cfg.DistPath()
	if err := checkCleanTarget(cfg.Root(), target); err != nil {
		return err
	}

	if _, err := os.Stat(target); os.IsNotExist(err) {
		info("Nothing to clean")
		return nil
	}
	if err := os.RemoveAll(target); err != nil {
		return errors.New("E300").WithDetail("removing " + target).Wrap(err)
	}
	success("Removed %s", target)
	return nil
}

// checkCleanTarget refuses to remove the project root or anything outside
// it.
func checkCleanTarget(root, target string) error {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return errors.New("E141").Wrap(err)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return errors.New("E141").Wrap(err)
	}

	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.New("E141").
			WithDetail(targetAbs + " is not a directory inside " + rootAbs)
	}
	return nil
}
