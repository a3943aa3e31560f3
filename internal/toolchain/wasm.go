package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/errors"
)

// WasmAdapter compiles a Go main package for GOOS=js GOARCH=wasm, then turns
// the module into something a browser can load: it validates the bytecode,
// optionally runs wasm-opt, and ships the runtime's JS glue next to it.
type WasmAdapter struct {
	opts Options

	gorootMu sync.Mutex
	goroot   string
}

var wasmEnv = []string{"GOOS=js", "GOARCH=wasm"}

// Build produces {bin}-{hash}.wasm plus {bin}-{hash}.js, and the hashed
// initializer module when one is declared.
func (a *WasmAdapter) Build(ctx context.Context, d asset.Descriptor) (*Result, error) {
	const tool = "wasm"

	st, err := os.Stat(d.Source)
	if err != nil {
		return nil, sourceErr(d, err)
	}
	dir := d.Source
	if !st.IsDir() {
		dir = filepath.Dir(d.Source)
	}

	bin := d.Option("bin")
	if bin == "" {
		bin = filepath.Base(dir)
	}
	pkg := d.Option("package")
	if pkg == "" {
		pkg = "."
	}

	tmp, err := os.MkdirTemp("", "spindle-wasm-*")
	if err != nil {
		return nil, errors.Toolchain(tool, "creating scratch dir").Wrap(err)
	}
	defer os.RemoveAll(tmp)

	wasmPath := filepath.Join(tmp, "main.wasm")
	args := []string{"build", "-o", wasmPath}
	if a.opts.Release {
		args = append(args, "-trimpath", "-ldflags=-s -w")
	}
	args = append(args, pkg)

	a.opts.Logger.Debug("compiling wasm target", "dir", dir, "package", pkg, "release", a.opts.Release)
	if _, err := a.opts.Runner.Run(ctx, Command{Name: a.opts.Tools.Go, Args: args, Dir: dir, Env: wasmEnv}); err != nil {
		return nil, asToolchain(tool, err)
	}

	if level := d.Option("wasm-opt"); level != "" {
		optPath := filepath.Join(tmp, "main.opt.wasm")
		optArgs := []string{"-O" + strings.TrimPrefix(level, "O"), "--enable-bulk-memory", wasmPath, "-o", optPath}
		if _, err := a.opts.Runner.Run(ctx, Command{Name: a.opts.Tools.WasmOpt, Args: optArgs, Dir: dir}); err != nil {
			return nil, asToolchain(tool, err)
		}
		wasmPath = optPath
	}

	module, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, errors.Toolchain(tool, "compiler produced no module").Wrap(err)
	}
	if err := validateModule(ctx, module); err != nil {
		return nil, errors.Toolchain(tool, err.Error()).Wrap(err)
	}

	glue, err := a.glue(ctx)
	if err != nil {
		return nil, asToolchain(tool, err)
	}
	glue = minifyJS(ctx, a.opts, d, bin+".js", glue)

	deps, err := a.deps(ctx, dir, pkg)
	if err != nil {
		// The module built, so dependency discovery failing only costs
		// watch precision.
		a.opts.Logger.Warn("listing wasm dependencies failed", "dir", dir, "error", err)
		deps = nil
	}

	algo := integrityFor(a.opts, d)
	wasmOut, err := newOutput(a.opts, tool, bin, "wasm", module, algo)
	if err != nil {
		return nil, err
	}
	glueOut, err := newOutput(a.opts, tool, bin, "js", glue, algo)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Primary:    wasmOut,
		Extra:      []Output{glueOut},
		TargetPath: d.TargetPath(),
		Deps:       deps,
	}
	if d.Initializer != "" {
		initOut, err := a.initializer(ctx, d, algo)
		if err != nil {
			return nil, err
		}
		res.Initializer = &initOut
		res.Deps = append(res.Deps, d.Initializer)
	}
	return res, nil
}

// initializer reads the data-initializer module and names it like any
// other output.
func (a *WasmAdapter) initializer(ctx context.Context, d asset.Descriptor, algo string) (Output, error) {
	data, err := os.ReadFile(d.Initializer)
	if err != nil {
		return Output{}, errors.New("E303").
			WithTool("wasm").
			WithDetail("reading initializer " + d.Initializer).
			Wrap(err)
	}
	name := filepath.Base(d.Initializer)
	data = minifyJS(ctx, a.opts, d, name, data)
	ext := filepath.Ext(name)
	return newOutput(a.opts, "wasm", strings.TrimSuffix(name, ext), strings.TrimPrefix(ext, "."), data, algo)
}

// validateModule compiles the bytecode without instantiating it and checks
// that it expects the Go JS runtime.
func validateModule(ctx context.Context, module []byte) error {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, module)
	if err != nil {
		return fmt.Errorf("invalid wasm module: %w", err)
	}
	defer compiled.Close(ctx)

	for _, fn := range compiled.ImportedFunctions() {
		mod, _, _ := fn.Import()
		if mod == "gojs" || mod == "go" {
			return nil
		}
	}
	return fmt.Errorf("wasm module does not import the Go JS runtime (gojs); was it built with GOOS=js?")
}

// glue returns the content of the toolchain's wasm_exec.js.
func (a *WasmAdapter) glue(ctx context.Context) ([]byte, error) {
	goroot, err := a.lookupGoroot(ctx)
	if err != nil {
		return nil, err
	}

	for _, rel := range []string{"lib/wasm/wasm_exec.js", "misc/wasm/wasm_exec.js"} {
		data, err := os.ReadFile(filepath.Join(goroot, filepath.FromSlash(rel)))
		if err == nil {
			return data, nil
		}
	}
	return nil, errors.Toolchain("wasm", "wasm_exec.js not found under GOROOT "+goroot)
}

// lookupGoroot asks the go tool for GOROOT. Only a successful answer is
// cached; a failed lookup is retried on the next build.
func (a *WasmAdapter) lookupGoroot(ctx context.Context) (string, error) {
	a.gorootMu.Lock()
	defer a.gorootMu.Unlock()
	if a.goroot != "" {
		return a.goroot, nil
	}

	out, err := a.opts.Runner.Run(ctx, Command{Name: a.opts.Tools.Go, Args: []string{"env", "GOROOT"}})
	if err != nil {
		return "", err
	}
	goroot := strings.TrimSpace(string(out))
	if goroot == "" {
		return "", errors.Toolchain("wasm", "go env GOROOT returned nothing")
	}
	a.goroot = goroot
	return goroot, nil
}

type listedPackage struct {
	Dir        string
	GoFiles    []string
	CgoFiles   []string
	EmbedFiles []string
	Standard   bool
	Module     *struct {
		GoMod string
	}
}

// deps lists every non-standard source file the package compiles from.
func (a *WasmAdapter) deps(ctx context.Context, dir, pkg string) ([]string, error) {
	out, err := a.opts.Runner.Run(ctx, Command{
		Name: a.opts.Tools.Go,
		Args: []string{"list", "-deps", "-json", pkg},
		Dir:  dir,
		Env:  wasmEnv,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(out))
	for {
		var p listedPackage
		if err := dec.Decode(&p); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decoding go list output: %w", err)
		}
		if p.Standard {
			continue
		}
		for _, group := range [][]string{p.GoFiles, p.CgoFiles, p.EmbedFiles} {
			for _, f := range group {
				add(filepath.Join(p.Dir, f))
			}
		}
		if p.Module != nil && p.Module.GoMod != "" {
			add(p.Module.GoMod)
			add(filepath.Join(filepath.Dir(p.Module.GoMod), "go.sum"))
		}
	}
	return files, nil
}
