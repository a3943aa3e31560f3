package templates

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"text/template"

	"github.com/vango-dev/spindle/internal/errors"
)

// Config contains template configuration.
type Config struct {
	// ProjectName is the name of the project, used as the page title and
	// the WASM output basename.
	ProjectName string

	// ModulePath is the Go module path.
	ModulePath string

	// Description is a short project description.
	Description string

	// Port is written into the generated spindle.yaml.
	Port int
}

// Template represents a project template.
type Template struct {
	// Name is the template name.
	Name string

	// Description describes the template.
	Description string

	// Files is a map of relative paths to file contents.
	Files map[string]string
}

// Available templates.
var templates = map[string]*Template{
	"minimal": minimalTemplate(),
	"styled":  styledTemplate(),
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, errors.New("E144").
			WithDetail("Template '" + name + "' not found").
			WithSuggestion("Available templates: minimal, styled")
	}
	return tmpl, nil
}

// List returns all available template names, sorted.
func List() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Paths returns the template's relative file paths, sorted.
func (t *Template) Paths() []string {
	paths := make([]string, 0, len(t.Files))
	for p := range t.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Create generates a project from the template. Nothing is written when
// any target file already exists.
func (t *Template) Create(dir string, cfg Config) ([]string, error) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	paths := t.Paths()
	for _, relPath := range paths {
		fullPath := filepath.Join(dir, relPath)
		if _, err := os.Stat(fullPath); err == nil {
			return nil, errors.New("E145").WithDetail(fullPath + " already exists")
		}
	}

	written := make([]string, 0, len(paths))
	for _, relPath := range paths {
		// Execute template
		tmpl, err := template.New(relPath).Parse(t.Files[relPath])
		if err != nil {
			return written, errors.Newf(errors.CategoryCLI, "invalid template %s: %v", relPath, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, cfg); err != nil {
			return written, errors.Newf(errors.CategoryCLI, "template execute error %s: %v", relPath, err)
		}

		// Write file
		fullPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return written, errors.New("E300").WithDetail(filepath.Dir(fullPath)).Wrap(err)
		}

		if err := os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
			return written, errors.New("E300").WithDetail(fullPath).Wrap(err)
		}
		written = append(written, relPath)
	}

	return written, nil
}

const goMod = `module {{.ModulePath}}

go 1.23
`

const spindleYAML = `build:
  target: index.html
  dist: dist
  publicUrl: /

serve:
  port: {{.Port}}
  autoreload: true
`

const gitignore = `dist/
.env
`

const mainGo = `//go:build js && wasm

package main

import "syscall/js"

func main() {
	doc := js.Global().Get("document")
	root := doc.Call("getElementById", "app")

	heading := doc.Call("createElement", "h1")
	heading.Set("textContent", "Hello from {{.ProjectName}}")
	root.Call("appendChild", heading)

	// Keep the module alive for callbacks.
	select {}
}
`

// minimalTemplate returns the minimal template.
func minimalTemplate() *Template {
	return &Template{
		Name:        "minimal",
		Description: "A Go WebAssembly entry point and an index.html",
		Files: map[string]string{
			"go.mod":       goMod,
			"spindle.yaml": spindleYAML,
			".gitignore":   gitignore,
			"main.go":      mainGo,
			"index.html": `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.ProjectName}}</title>
  <link data-spindle rel="wasm" href="." data-bin="{{.ProjectName}}">
</head>
<body>
  <div id="app"></div>
</body>
</html>
`,
		},
	}
}

// styledTemplate returns the template with a Sass stylesheet and copied
// static files.
func styledTemplate() *Template {
	return &Template{
		Name:        "styled",
		Description: "Go WebAssembly with a Sass stylesheet and static files",
		Files: map[string]string{
			"go.mod":       goMod,
			"spindle.yaml": spindleYAML,
			".gitignore":   gitignore,
			"main.go":      mainGo,
			"index.html": `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <meta name="description" content="{{.Description}}">
  <title>{{.ProjectName}}</title>
  <link data-spindle rel="scss" href="styles/main.scss">
  <link data-spindle rel="copy-file" href="static/robots.txt">
  <link data-spindle rel="wasm" href="." data-bin="{{.ProjectName}}">
</head>
<body>
  <div id="app"></div>
</body>
</html>
`,
			"styles/_theme.scss": `$primary: #3b82f6;
$text: #1f2937;
$font: system-ui, -apple-system, sans-serif;
`,
			"styles/main.scss": `@use "theme";

body {
  margin: 0;
  font-family: theme.$font;
  color: theme.$text;
}

#app h1 {
  color: theme.$primary;
  text-align: center;
  margin-top: 4rem;
}
`,
			"static/robots.txt": `User-agent: *
Allow: /
`,
		},
	}
}
