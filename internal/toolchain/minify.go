package toolchain

import (
	"context"
	"os"
	"path/filepath"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/errors"
)

// minifyJS runs esbuild --minify over a release build's JavaScript. The
// original bytes are kept when the build is not a release, the declaration
// sets data-no-minify, or esbuild is unavailable or fails.
func minifyJS(ctx context.Context, opts Options, d asset.Descriptor, name string, data []byte) []byte {
	if !opts.Release || d.HasOption("no-minify") || len(data) == 0 {
		return data
	}

	tmp, err := os.MkdirTemp("", "spindle-js-*")
	if err != nil {
		opts.Logger.Warn("minifying javascript skipped", "file", name, "error", err)
		return data
	}
	defer os.RemoveAll(tmp)

	src := filepath.Join(tmp, filepath.Base(name))
	if err := os.WriteFile(src, data, 0o644); err != nil {
		opts.Logger.Warn("minifying javascript skipped", "file", name, "error", err)
		return data
	}

	out, err := opts.Runner.Run(ctx, Command{
		Name: opts.Tools.Esbuild,
		Args: []string{"--minify", "--log-level=error", src},
		Dir:  tmp,
	})
	switch {
	case errors.IsCode(err, "E201"):
		opts.Logger.Debug("esbuild not found, javascript left unminified", "file", name)
		return data
	case err != nil:
		opts.Logger.Warn("minifying javascript failed", "file", name, "error", err)
		return data
	case len(out) == 0:
		return data
	}
	return out
}
