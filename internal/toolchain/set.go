package toolchain

import (
	"context"
	"log/slog"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/errors"
)

// Adapter builds one kind of asset.
type Adapter interface {
	Build(ctx context.Context, d asset.Descriptor) (*Result, error)
}

// Tools names the external executables.
type Tools struct {
	Go      string
	Sass    string
	WasmOpt string
	Esbuild string
}

// Options configures every adapter in a Set.
type Options struct {
	// Runner executes external tools. Defaults to ExecRunner.
	Runner Runner

	// Tools names the executables.
	Tools Tools

	// Release enables optimised builds.
	Release bool

	// Integrity is the default SRI digest.
	Integrity string

	// NoFileHash names outputs {basename}.{ext} instead of embedding the
	// content hash.
	NoFileHash bool

	// Logger receives debug output.
	Logger *slog.Logger
}

// Set holds one adapter per asset kind.
type Set struct {
	wasm       *WasmAdapter
	stylesheet *StylesheetAdapter
	copyFile   *FileAdapter
	icon       *FileAdapter
	inline     *InlineAdapter
}

// NewSet creates the adapters.
func NewSet(opts Options) *Set {
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tools.Go == "" {
		opts.Tools.Go = "go"
	}
	if opts.Tools.Sass == "" {
		opts.Tools.Sass = "sass"
	}
	if opts.Tools.WasmOpt == "" {
		opts.Tools.WasmOpt = "wasm-opt"
	}
	if opts.Tools.Esbuild == "" {
		opts.Tools.Esbuild = "esbuild"
	}
	return &Set{
		wasm:       &WasmAdapter{opts: opts},
		stylesheet: &StylesheetAdapter{opts: opts},
		copyFile:   &FileAdapter{opts: opts, tool: "copy-file"},
		icon:       &FileAdapter{opts: opts, tool: "icon"},
		inline:     &InlineAdapter{opts: opts},
	}
}

// For returns the adapter for a kind.
func (s *Set) For(k asset.Kind) (Adapter, error) {
	switch k {
	case asset.KindWasm:
		return s.wasm, nil
	case asset.KindStylesheet:
		return s.stylesheet, nil
	case asset.KindCopyFile:
		return s.copyFile, nil
	case asset.KindIcon:
		return s.icon, nil
	case asset.KindInline:
		return s.inline, nil
	}
	return nil, errors.New("E102").WithDetailf("no adapter for kind %d", int(k))
}

// Build dispatches d to its adapter.
func (s *Set) Build(ctx context.Context, d asset.Descriptor) (*Result, error) {
	a, err := s.For(d.Kind)
	if err != nil {
		return nil, err
	}
	return a.Build(ctx, d)
}

func integrityFor(opts Options, d asset.Descriptor) string {
	if d.HasOption("integrity") {
		return d.Option("integrity")
	}
	return opts.Integrity
}

func newOutput(opts Options, tool, base, ext string, data []byte, algo string) (Output, error) {
	out, err := NewOutput(base, ext, data, algo)
	if err != nil {
		return Output{}, errors.Toolchain(tool, err.Error())
	}
	if opts.NoFileHash {
		out.Name = PlainName(base, ext)
	}
	return out, nil
}
