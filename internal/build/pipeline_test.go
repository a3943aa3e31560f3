package build

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
	"github.com/vango-dev/spindle/internal/graph"
	"github.com/vango-dev/spindle/internal/toolchain"
)

// toolRunner fakes sass and the go tool for the real adapter set.
type toolRunner struct {
	t      *testing.T
	goroot string
	module []byte

	mu    sync.Mutex
	calls []toolchain.Command
}

func newToolRunner(t *testing.T) *toolRunner {
	goroot := t.TempDir()
	glue := filepath.Join(goroot, "lib", "wasm", "wasm_exec.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(glue), 0o755))
	require.NoError(t, os.WriteFile(glue, []byte("globalThis.Go = class {};\n"), 0o644))
	return &toolRunner{t: t, goroot: goroot, module: gojsModule()}
}

func (r *toolRunner) Run(_ context.Context, c toolchain.Command) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()

	switch {
	case c.Name == "sass":
		return []byte("body{color:red}"), nil
	case c.Name == "go" && c.Args[0] == "build":
		return nil, os.WriteFile(c.Args[2], r.module, 0o644)
	case c.Name == "go" && c.Args[0] == "env":
		return []byte(r.goroot + "\n"), nil
	case c.Name == "go" && c.Args[0] == "list":
		var buf strings.Builder
		json.NewEncoder(&buf).Encode(map[string]any{"Dir": c.Dir, "GoFiles": []string{"main.go"}})
		return []byte(buf.String()), nil
	}
	r.t.Errorf("unexpected command %s", c)
	return nil, nil
}

// gojsModule is the smallest module importing from the Go JS runtime.
func gojsModule() []byte {
	mod := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	mod = append(mod, 0x01, 0x05, 0x01, 0x60, 0x01, 0x7f, 0x00)
	imp := []byte{0x01, 0x04}
	imp = append(imp, "gojs"...)
	imp = append(imp, 0x10)
	imp = append(imp, "runtime.wasmExit"...)
	imp = append(imp, 0x00, 0x00)
	mod = append(mod, 0x02, byte(len(imp)))
	return append(mod, imp...)
}

func writeProject(t *testing.T, html string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":  html,
		"style.scss":  "$c: red;\nbody { color: $c; }\n",
		"app/main.go": "package main\nfunc main() {}\n",
		"init.js":     "export default function () { window.ready = true; }\n",
		"boot.js":     "window.boot = 1;\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func parseProject(t *testing.T, dir string) (*asset.Document, *graph.Graph) {
	t.Helper()
	doc, err := asset.ParseFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	return doc, graph.FromDescriptors(nil, doc.Path, doc.Descriptors)
}

func TestRun_RealAdaptersEndToEnd(t *testing.T) {
	dir := writeProject(t, `<!DOCTYPE html>
<html><head>
<link data-spindle rel="scss" href="style.scss">
</head><body>
<link data-spindle rel="wasm" href="app" data-bin="app" data-initializer="init.js">
</body></html>`)
	runner := newToolRunner(t)
	dist := filepath.Join(dir, "dist")
	orch := New(Options{
		Dist:          dist,
		Adapters:      toolchain.NewSet(toolchain.Options{Runner: runner, Integrity: "none"}),
		InjectScripts: true,
	})

	doc, g := parseProject(t, dir)
	first, err := orch.Run(context.Background(), g, doc, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, first.Status, "failed: %v", first.Errors())

	cssHash := toolchain.ContentHash([]byte("body{color:red}"))
	cssName := "style-" + cssHash + ".css"
	css, err := os.ReadFile(filepath.Join(dist, cssName))
	require.NoError(t, err)
	assert.Equal(t, "body{color:red}", string(css))

	wasmName := "app-" + toolchain.ContentHash(gojsModule()) + ".wasm"
	assert.FileExists(t, filepath.Join(dist, wasmName))

	index, err := os.ReadFile(filepath.Join(dist, "index.html"))
	require.NoError(t, err)
	html := string(index)
	assert.Contains(t, html, `<link rel="stylesheet" href="/`+cssName+`"/>`)
	assert.Contains(t, html, `href="/`+wasmName+`"`)

	initName := "init-" + toolchain.ContentHash([]byte("export default function () { window.ready = true; }\n")) + ".js"
	assert.FileExists(t, filepath.Join(dist, initName))
	assert.Contains(t, html, `import setup from "/`+initName+`";`)
	assert.Less(t, strings.Index(html, "import setup"), strings.Index(html, "new Go()"))

	doc, g = parseProject(t, dir)
	second, err := orch.Run(context.Background(), g, doc, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, second.Status)

	byKind := func(r *Report, k asset.Kind) string {
		for _, n := range r.Nodes {
			if n.Kind == k {
				return n.Result.Primary.Name
			}
		}
		return ""
	}
	assert.Equal(t, cssName, byKind(second, asset.KindStylesheet))
	assert.Equal(t, byKind(first, asset.KindWasm), byKind(second, asset.KindWasm))
	assert.Empty(t, second.Written, "identical outputs are not rewritten")
}

func TestRun_SkippedDeclarationIsRemoved(t *testing.T) {
	doc := parse(t, `<html><head>
<link data-spindle rel="css" href="style.css">
<link data-spindle data-spindle-skip rel="copy-file" href="robots.txt">
</head></html>`)
	g := graph.FromDescriptors(nil, doc.Path, doc.Descriptors)
	require.Equal(t, 1, g.Len())

	stub := newStub()
	orch, _ := newOrchestrator(t, stub)
	report, err := orch.Run(context.Background(), g, doc, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Zero(t, stub.callCount("robots.txt"))

	html := string(report.HTML)
	assert.NotContains(t, html, "robots")
	assert.NotContains(t, html, "spindle:")
}

func TestRun_CreateNonce(t *testing.T) {
	dir := writeProject(t, `<html><head>
<link data-spindle rel="inline" href="boot.js">
</head><body>
<link data-spindle rel="wasm" href="app">
</body></html>`)
	orch := New(Options{
		Dist:          filepath.Join(dir, "dist"),
		Adapters:      toolchain.NewSet(toolchain.Options{Runner: newToolRunner(t)}),
		InjectScripts: true,
		CreateNonce:   true,
	})
	doc, g := parseProject(t, dir)
	report, err := orch.Run(context.Background(), g, doc, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, report.Status, "failed: %v", report.Errors())

	html := string(report.HTML)
	nonce := `nonce="` + NoncePlaceholder + `"`
	assert.Equal(t, 3, strings.Count(html, nonce), "inline script, glue and bootstrap:\n%s", html)
}

func TestRun_Patterns(t *testing.T) {
	paramFile := filepath.Join(t.TempDir(), "greeting.txt")
	require.NoError(t, os.WriteFile(paramFile, []byte("from a file"), 0o644))

	doc := parse(t, threeAssets)
	g := graph.FromDescriptors(nil, doc.Path, doc.Descriptors)
	orch := New(Options{
		Dist:          filepath.Join(t.TempDir(), "dist"),
		Adapters:      newStub(),
		InjectScripts: true,
		PublicURL:     "/app/",
		Patterns: Patterns{
			Preload: `<link rel="modulepreload" href="{base}{js}" crossorigin="{crossorigin}">`,
			Script:  `<script type="module">import init from '{base}{js}'; init('{base}{wasm}', '{greeting}', '{note}');</script>`,
			Params:  map[string]string{"greeting": "hello", "note": "@" + paramFile, "base": "ignored"},
		},
	})

	report, err := orch.Run(context.Background(), g, doc, nil)
	require.NoError(t, err)

	var wasm *NodeReport
	for i := range report.Nodes {
		if report.Nodes[i].Kind == asset.KindWasm {
			wasm = &report.Nodes[i]
		}
	}
	require.NotNil(t, wasm)
	js := wasm.Result.Extra[0].Name
	module := wasm.Result.Primary.Name

	html := string(report.HTML)
	assert.Contains(t, html, `<link rel="modulepreload" href="/app/`+js+`" crossorigin="anonymous"/>`)
	assert.Contains(t, html, `import init from '/app/`+js+`'; init('/app/`+module+`', 'hello', 'from a file');`)
	assert.NotContains(t, html, "new Go()")
	assert.NotContains(t, html, "ignored")
}

func TestRun_PatternWithMissingParamFileMarksFailure(t *testing.T) {
	doc := parse(t, threeAssets)
	g := graph.FromDescriptors(nil, doc.Path, doc.Descriptors)
	orch := New(Options{
		Dist:          filepath.Join(t.TempDir(), "dist"),
		Adapters:      newStub(),
		InjectScripts: true,
		Patterns: Patterns{
			Script: `<script>{x}</script>`,
			Params: map[string]string{"x": "@" + filepath.Join(t.TempDir(), "missing.txt")},
		},
	})

	report, err := orch.Run(context.Background(), g, doc, nil)
	require.NoError(t, err)
	assert.Contains(t, string(report.HTML), "<!-- spindle: wasm app failed: pattern param x:")
}
