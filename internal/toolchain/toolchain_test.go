package toolchain

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/errors"
)

// fakeRunner answers tool invocations from a callback and records them.
type fakeRunner struct {
	mu    sync.Mutex
	calls []Command
	fn    func(Command) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, c Command) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return f.fn(c)
}

func (f *fakeRunner) called(name string, arg0 string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Name == name && len(c.Args) > 0 && c.Args[0] == arg0 {
			n++
		}
	}
	return n
}

// goWasmModule is the smallest module that imports from the Go JS runtime.
func goWasmModule() []byte {
	mod := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	// type section: (func (param i32))
	mod = append(mod, 0x01, 0x05, 0x01, 0x60, 0x01, 0x7f, 0x00)
	// import section: gojs.runtime.wasmExit as func type 0
	imp := []byte{0x01, 0x04}
	imp = append(imp, "gojs"...)
	imp = append(imp, 0x10)
	imp = append(imp, "runtime.wasmExit"...)
	imp = append(imp, 0x00, 0x00)
	mod = append(mod, 0x02, byte(len(imp)))
	return append(mod, imp...)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// goToolchain fakes `go build`, `go env GOROOT` and `go list`.
func goToolchain(t *testing.T, module []byte, buildErr error) *fakeRunner {
	goroot := t.TempDir()
	writeFile(t, filepath.Join(goroot, "lib", "wasm", "wasm_exec.js"), "globalThis.Go = class {};\n")

	return &fakeRunner{fn: func(c Command) ([]byte, error) {
		switch {
		case c.Name == "sass":
			return []byte("body{color:red}"), nil
		case c.Name == "esbuild":
			return os.ReadFile(c.Args[len(c.Args)-1])
		case c.Args[0] == "build":
			if buildErr != nil {
				return nil, buildErr
			}
			return nil, os.WriteFile(c.Args[2], module, 0o644)
		case c.Args[0] == "env":
			return []byte(goroot + "\n"), nil
		case c.Args[0] == "list":
			var buf strings.Builder
			enc := json.NewEncoder(&buf)
			enc.Encode(map[string]any{"Dir": "/usr/lib/go/src/fmt", "GoFiles": []string{"print.go"}, "Standard": true})
			enc.Encode(map[string]any{
				"Dir":     c.Dir,
				"GoFiles": []string{"main.go"},
				"Module":  map[string]any{"GoMod": filepath.Join(c.Dir, "go.mod")},
			})
			return []byte(buf.String()), nil
		}
		t.Fatalf("unexpected command %s", c)
		return nil, nil
	}}
}

func TestContentHash_Stable(t *testing.T) {
	a := ContentHash([]byte("body{color:red}"))
	b := ContentHash([]byte("body{color:red}"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, ContentHash([]byte("body{color:blue}")))
	assert.Equal(t, "style-"+a+".css", HashedName("style", "css", a))
}

func TestIntegrity(t *testing.T) {
	v, err := Integrity("sha384", []byte("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(v, "sha384-"))

	v, err = Integrity("none", []byte("x"))
	require.NoError(t, err)
	assert.Empty(t, v)

	_, err = Integrity("md5", []byte("x"))
	assert.Error(t, err)
}

func TestStylesheet_SCSS(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "style.scss")
	writeFile(t, src, "@use 'vars';\n@import \"components/button\";\nbody { color: vars.$c; }\n")
	writeFile(t, filepath.Join(dir, "_vars.scss"), "$c: red;\n")
	writeFile(t, filepath.Join(dir, "components", "_button.scss"), "@use 'sass:math';\n")

	runner := goToolchain(t, nil, nil)
	set := NewSet(Options{Runner: runner, Release: true, Integrity: "sha384"})

	res, err := set.Build(context.Background(), asset.Descriptor{Kind: asset.KindStylesheet, Rel: "scss", Source: src})
	require.NoError(t, err)

	hash := ContentHash([]byte("body{color:red}"))
	assert.Equal(t, "style-"+hash+".css", res.Primary.Name)
	assert.Equal(t, "body{color:red}", string(res.Primary.Bytes))
	assert.True(t, strings.HasPrefix(res.Primary.Integrity, "sha384-"))
	assert.ElementsMatch(t, []string{
		src,
		filepath.Join(dir, "_vars.scss"),
		filepath.Join(dir, "components", "_button.scss"),
	}, res.Deps)

	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0].Args, "--style=compressed")
	assert.Equal(t, src, runner.calls[0].Args[len(runner.calls[0].Args)-1])
}

func TestStylesheet_SassFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.scss")
	writeFile(t, src, "body {")

	runner := &fakeRunner{fn: func(Command) ([]byte, error) {
		return nil, errors.New("E200").WithDetail("Error: expected \"}\".")
	}}
	_, err := NewSet(Options{Runner: runner}).Build(context.Background(),
		asset.Descriptor{Kind: asset.KindStylesheet, Rel: "scss", Source: src})

	require.Error(t, err)
	var se *errors.SpindleError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errors.CategoryToolchain, se.Category)
	assert.Equal(t, "scss", se.Tool)
	assert.Contains(t, se.Detail, "expected")
}

func TestStylesheet_PlainCSS(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "theme.css")
	writeFile(t, src, "h1{margin:0}")

	runner := &fakeRunner{fn: func(c Command) ([]byte, error) {
		t.Fatalf("css must not invoke tools, got %s", c)
		return nil, nil
	}}
	res, err := NewSet(Options{Runner: runner}).Build(context.Background(),
		asset.Descriptor{Kind: asset.KindStylesheet, Rel: "css", Source: src, Options: map[string]string{"integrity": "none", "target-path": "css"}})
	require.NoError(t, err)
	assert.Equal(t, "h1{margin:0}", string(res.Primary.Bytes))
	assert.Empty(t, res.Primary.Integrity)
	assert.Equal(t, "css/"+res.Primary.Name, res.URLPath(res.Primary))
}

func TestFileAdapters(t *testing.T) {
	dir := t.TempDir()
	robots := filepath.Join(dir, "robots.txt")
	icon := filepath.Join(dir, "favicon.ico")
	writeFile(t, robots, "User-agent: *\n")
	writeFile(t, icon, "\x00\x00\x01\x00")

	set := NewSet(Options{})
	res, err := set.Build(context.Background(), asset.Descriptor{Kind: asset.KindCopyFile, Source: robots})
	require.NoError(t, err)
	assert.Equal(t, "robots-"+ContentHash([]byte("User-agent: *\n"))+".txt", res.Primary.Name)

	res, err = set.Build(context.Background(), asset.Descriptor{Kind: asset.KindIcon, Source: icon})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Primary.Name, "favicon-"))
	assert.True(t, strings.HasSuffix(res.Primary.Name, ".ico"))

	_, err = set.Build(context.Background(), asset.Descriptor{Kind: asset.KindCopyFile, Rel: "copy-file", Source: filepath.Join(dir, "missing")})
	assert.True(t, errors.IsCode(err, "E303"), "got %v", err)
}

func TestFileAdapter_NoFileHash(t *testing.T) {
	dir := t.TempDir()
	robots := filepath.Join(dir, "robots.txt")
	writeFile(t, robots, "User-agent: *\n")

	res, err := NewSet(Options{NoFileHash: true}).Build(context.Background(),
		asset.Descriptor{Kind: asset.KindCopyFile, Source: robots})
	require.NoError(t, err)
	assert.Equal(t, "robots.txt", res.Primary.Name)
	assert.Equal(t, ContentHash([]byte("User-agent: *\n")), res.Primary.Hash)
}

func TestInlineAdapter_MinifiesScriptsInRelease(t *testing.T) {
	dir := t.TempDir()
	js := filepath.Join(dir, "boot.js")
	css := filepath.Join(dir, "base.css")
	writeFile(t, js, "window.answer = 40 + 2;\n")
	writeFile(t, css, "* { margin: 0; }\n")

	runner := &fakeRunner{fn: func(c Command) ([]byte, error) {
		require.Equal(t, "esbuild", c.Name)
		require.Contains(t, c.Args, "--minify")
		return []byte("window.answer=42;\n"), nil
	}}
	set := NewSet(Options{Runner: runner, Release: true})

	res, err := set.Build(context.Background(), asset.Descriptor{Kind: asset.KindInline, Source: js})
	require.NoError(t, err)
	assert.Equal(t, "window.answer=42;\n", string(res.Primary.Bytes))

	res, err = set.Build(context.Background(), asset.Descriptor{
		Kind: asset.KindInline, Source: js, Options: map[string]string{"no-minify": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "window.answer = 40 + 2;\n", string(res.Primary.Bytes))

	res, err = set.Build(context.Background(), asset.Descriptor{Kind: asset.KindInline, Source: css})
	require.NoError(t, err)
	assert.Equal(t, "* { margin: 0; }\n", string(res.Primary.Bytes))
	assert.Equal(t, 1, runner.called("esbuild", "--minify"))
}

func TestMinifyJS_KeepsSourceWithoutEsbuild(t *testing.T) {
	runner := &fakeRunner{fn: func(c Command) ([]byte, error) {
		return nil, errors.New("E201").WithDetail("esbuild was not found in PATH")
	}}
	set := NewSet(Options{Runner: runner, Release: true})

	out := minifyJS(context.Background(), set.inline.opts, asset.Descriptor{}, "boot.js", []byte("let a = 1;"))
	assert.Equal(t, "let a = 1;", string(out))
	assert.Equal(t, 1, runner.called("esbuild", "--minify"))

	out = minifyJS(context.Background(), NewSet(Options{Runner: runner}).inline.opts, asset.Descriptor{}, "boot.js", []byte("let a = 1;"))
	assert.Equal(t, "let a = 1;", string(out))
	assert.Equal(t, 1, runner.called("esbuild", "--minify"), "debug builds never minify")
}

func TestWasmAdapter_Initializer(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.go"), "package main\nfunc main() {}\n")
	initJS := filepath.Join(dir, "setup.js")
	writeFile(t, initJS, "export default () => {};\n")

	set := NewSet(Options{Runner: goToolchain(t, goWasmModule(), nil)})
	res, err := set.Build(context.Background(), asset.Descriptor{
		Kind: asset.KindWasm, Rel: "wasm", Source: dir, Initializer: initJS,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Initializer)
	assert.Equal(t, "setup-"+ContentHash([]byte("export default () => {};\n"))+".js", res.Initializer.Name)
	assert.Len(t, res.Outputs(), 3)
	assert.Contains(t, res.Deps, initJS)

	_, err = set.Build(context.Background(), asset.Descriptor{
		Kind: asset.KindWasm, Rel: "wasm", Source: dir, Initializer: filepath.Join(dir, "missing.js"),
	})
	assert.True(t, errors.IsCode(err, "E303"), "got %v", err)
}

func TestInlineAdapter(t *testing.T) {
	dir := t.TempDir()
	js := filepath.Join(dir, "boot.mjs")
	writeFile(t, js, "console.log('hi')")
	txt := filepath.Join(dir, "notes.txt")
	writeFile(t, txt, "x")

	set := NewSet(Options{})
	res, err := set.Build(context.Background(), asset.Descriptor{Kind: asset.KindInline, Source: js})
	require.NoError(t, err)
	assert.True(t, res.Inline)
	assert.Equal(t, "mjs", res.ContentType)
	assert.Empty(t, res.Outputs())

	_, err = set.Build(context.Background(), asset.Descriptor{Kind: asset.KindInline, Source: txt, Href: "notes.txt"})
	assert.Equal(t, errors.CategoryToolchain, errors.CategoryOf(err))
}

func TestWasmAdapter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.go"), "package main\nfunc main() {}\n")

	module := goWasmModule()
	runner := goToolchain(t, module, nil)
	set := NewSet(Options{Runner: runner, Release: true, Integrity: "sha384"})

	res, err := set.Build(context.Background(), asset.Descriptor{
		Kind: asset.KindWasm, Rel: "wasm", Source: dir, Options: map[string]string{"bin": "app"},
	})
	require.NoError(t, err)

	assert.Equal(t, "app-"+ContentHash(module)+".wasm", res.Primary.Name)
	require.Len(t, res.Extra, 1)
	assert.True(t, strings.HasPrefix(res.Extra[0].Name, "app-"))
	assert.True(t, strings.HasSuffix(res.Extra[0].Name, ".js"))
	assert.Contains(t, string(res.Extra[0].Bytes), "globalThis.Go")
	assert.Len(t, res.Outputs(), 2)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "main.go"),
		filepath.Join(dir, "go.mod"),
		filepath.Join(dir, "go.sum"),
	}, res.Deps)

	build := runner.calls[0]
	assert.Equal(t, dir, build.Dir)
	assert.Contains(t, build.Env, "GOOS=js")
	assert.Contains(t, build.Env, "GOARCH=wasm")
	assert.Contains(t, build.Args, "-trimpath")

	// GOROOT is resolved once per adapter.
	_, err = set.Build(context.Background(), asset.Descriptor{Kind: asset.KindWasm, Source: dir})
	require.NoError(t, err)
	assert.Equal(t, 1, runner.called("go", "env"))
}

func TestWasmAdapter_RetriesFailedGorootLookup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.go"), "package main\nfunc main() {}\n")

	runner := goToolchain(t, goWasmModule(), nil)
	answer := runner.fn
	failures := 1
	runner.fn = func(c Command) ([]byte, error) {
		if c.Args[0] == "env" && failures > 0 {
			failures--
			return nil, errors.New("E201").WithDetail("go: not found")
		}
		return answer(c)
	}
	set := NewSet(Options{Runner: runner})
	desc := asset.Descriptor{Kind: asset.KindWasm, Rel: "wasm", Source: dir}

	_, err := set.Build(context.Background(), desc)
	require.Error(t, err)

	res, err := set.Build(context.Background(), desc)
	require.NoError(t, err)
	require.Len(t, res.Extra, 1)
	assert.Contains(t, string(res.Extra[0].Bytes), "globalThis.Go")
	assert.Equal(t, 2, runner.called("go", "env"))
}

func TestWasmAdapter_CompileError(t *testing.T) {
	dir := t.TempDir()
	runner := goToolchain(t, nil, errors.New("E200").WithDetail("./main.go:3:2: undefined: x"))

	_, err := NewSet(Options{Runner: runner}).Build(context.Background(),
		asset.Descriptor{Kind: asset.KindWasm, Rel: "wasm", Source: dir})
	var se *errors.SpindleError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "wasm", se.Tool)
	assert.Contains(t, se.Detail, "undefined: x")
}

func TestWasmAdapter_RejectsInvalidModule(t *testing.T) {
	dir := t.TempDir()
	runner := goToolchain(t, []byte("not wasm"), nil)

	_, err := NewSet(Options{Runner: runner}).Build(context.Background(),
		asset.Descriptor{Kind: asset.KindWasm, Rel: "wasm", Source: dir})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryToolchain, errors.CategoryOf(err))
	assert.Contains(t, err.Error(), "invalid wasm module")
}

func TestWasmAdapter_RequiresGoRuntimeImport(t *testing.T) {
	// A valid module with no imports at all.
	empty := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	err := validateModule(context.Background(), empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gojs")

	assert.NoError(t, validateModule(context.Background(), goWasmModule()))
}

func TestSet_UnknownKind(t *testing.T) {
	_, err := NewSet(Options{}).For(asset.Kind(99))
	assert.True(t, errors.IsCode(err, "E102"))
}

func TestSassPartials_IgnoresBuiltinsAndMissing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.scss")
	writeFile(t, src, "@use \"sass:map\";\n@use 'missing';\n@import url(http://x/y.css);\n")
	assert.Empty(t, sassPartials(src))
}
