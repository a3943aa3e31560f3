package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/errors"
)

// FileAdapter copies a file verbatim under a content-hashed name. It serves
// both copy-file and icon declarations.
type FileAdapter struct {
	opts Options
	tool string
}

// Build reads the source and names it by content.
func (a *FileAdapter) Build(ctx context.Context, d asset.Descriptor) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readSource(d)
	if err != nil {
		return nil, err
	}
	base, ext := d.Basename()
	out, err := newOutput(a.opts, a.tool, base, ext, data, integrityFor(a.opts, d))
	if err != nil {
		return nil, err
	}
	return &Result{
		Primary:    out,
		TargetPath: d.TargetPath(),
		Deps:       []string{d.Source},
	}, nil
}

// InlineAdapter reads a script or stylesheet that is embedded in the HTML.
type InlineAdapter struct {
	opts Options
}

// Build reads the snippet. Only .js, .mjs and .css sources are accepted;
// scripts are minified in release builds.
func (a *InlineAdapter) Build(ctx context.Context, d asset.Descriptor) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, ext := d.Basename()
	ext = strings.ToLower(ext)
	if t := d.Option("type"); t != "" {
		ext = strings.ToLower(t)
	}
	switch ext {
	case "js", "mjs", "css":
	default:
		return nil, errors.Toolchain("inline", "cannot inline "+d.Href+": expected a .js, .mjs or .css file")
	}

	data, err := readSource(d)
	if err != nil {
		return nil, err
	}
	if ext != "css" {
		data = minifyJS(ctx, a.opts, d, filepath.Base(d.Source), data)
	}
	return &Result{
		Primary: Output{
			Bytes: data,
			Hash:  ContentHash(data),
		},
		Deps:        []string{d.Source},
		Inline:      true,
		ContentType: ext,
	}, nil
}

func readSource(d asset.Descriptor) ([]byte, error) {
	data, err := os.ReadFile(d.Source)
	if err != nil {
		return nil, sourceErr(d, err)
	}
	return data, nil
}

func sourceErr(d asset.Descriptor, err error) error {
	return errors.New("E303").
		WithTool(d.Tool()).
		WithDetail("reading " + d.Source).
		Wrap(err)
}
