package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/errors"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"minimal", false},
		{"styled", false},
		{"nonexistent", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Get(tt.name)
			if tt.wantErr {
				if !errors.IsCode(err, "E144") {
					t.Errorf("Expected E144, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tmpl.Name != tt.name {
				t.Errorf("Name = %q, want %q", tmpl.Name, tt.name)
			}
			if tmpl.Description == "" {
				t.Error("Template should have a description")
			}
		})
	}
}

func TestList(t *testing.T) {
	names := List()
	if strings.Join(names, ",") != "minimal,styled" {
		t.Errorf("List() = %v", names)
	}
}

func TestTemplate_Create_Minimal(t *testing.T) {
	tmpDir := t.TempDir()

	tmpl, _ := Get("minimal")
	written, err := tmpl.Create(tmpDir, Config{
		ProjectName: "test-app",
		ModulePath:  "github.com/test/test-app",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(written) != len(tmpl.Files) {
		t.Errorf("wrote %d files, want %d", len(written), len(tmpl.Files))
	}

	goMod, _ := os.ReadFile(filepath.Join(tmpDir, "go.mod"))
	if !strings.Contains(string(goMod), "module github.com/test/test-app") {
		t.Error("Module path not substituted in go.mod")
	}

	mainGo, _ := os.ReadFile(filepath.Join(tmpDir, "main.go"))
	if !strings.HasPrefix(string(mainGo), "//go:build js && wasm") {
		t.Error("main.go should be constrained to js/wasm")
	}

	doc, err := asset.ParseFile(filepath.Join(tmpDir, "index.html"))
	if err != nil {
		t.Fatalf("generated index.html does not parse: %v", err)
	}
	if len(doc.Descriptors) != 1 {
		t.Fatalf("got %d declarations, want 1", len(doc.Descriptors))
	}
	d := doc.Descriptors[0]
	if d.Kind != asset.KindWasm {
		t.Errorf("Kind = %v, want wasm", d.Kind)
	}
	if d.Option("bin") != "test-app" {
		t.Errorf("bin = %q, want test-app", d.Option("bin"))
	}
}

func TestTemplate_Create_Styled(t *testing.T) {
	tmpDir := t.TempDir()

	tmpl, _ := Get("styled")
	if _, err := tmpl.Create(tmpDir, Config{
		ProjectName: "my-app",
		ModulePath:  "myapp",
		Description: "My awesome app",
	}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	doc, err := asset.ParseFile(filepath.Join(tmpDir, "index.html"))
	if err != nil {
		t.Fatalf("generated index.html does not parse: %v", err)
	}

	want := []asset.Kind{asset.KindStylesheet, asset.KindCopyFile, asset.KindWasm}
	if len(doc.Descriptors) != len(want) {
		t.Fatalf("got %d declarations, want %d", len(doc.Descriptors), len(want))
	}
	for i, d := range doc.Descriptors {
		if d.Kind != want[i] {
			t.Errorf("declaration %d kind = %v, want %v", i, d.Kind, want[i])
		}
		if d.Kind != asset.KindWasm {
			if _, err := os.Stat(d.Source); err != nil {
				t.Errorf("declared source %s was not generated", d.Source)
			}
		}
	}

	html, _ := os.ReadFile(filepath.Join(tmpDir, "index.html"))
	if !strings.Contains(string(html), "My awesome app") {
		t.Error("Description not substituted in index.html")
	}
}

func TestTemplate_Create_ConfigLoads(t *testing.T) {
	tmpDir := t.TempDir()

	tmpl, _ := Get("minimal")
	if _, err := tmpl.Create(tmpDir, Config{ProjectName: "app", ModulePath: "app", Port: 3000}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	cfg, err := config.Load(tmpDir)
	if err != nil {
		t.Fatalf("generated spindle.yaml does not load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("generated config is invalid: %v", err)
	}
	if cfg.Serve.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Serve.Port)
	}
}

func TestTemplate_Create_RefusesOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	existing := filepath.Join(tmpDir, "index.html")
	if err := os.WriteFile(existing, []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}

	tmpl, _ := Get("minimal")
	written, err := tmpl.Create(tmpDir, Config{ProjectName: "app", ModulePath: "app"})
	if !errors.IsCode(err, "E145") {
		t.Fatalf("expected E145, got %v", err)
	}
	if len(written) != 0 {
		t.Errorf("wrote %v before refusing", written)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "go.mod")); !os.IsNotExist(err) {
		t.Error("no file should be written when one already exists")
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "keep me" {
		t.Error("existing file was modified")
	}
}
