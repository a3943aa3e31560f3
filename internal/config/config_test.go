package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/spindle/internal/errors"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Serve.Port != DefaultPort {
		t.Errorf("Serve.Port = %d, want %d", cfg.Serve.Port, DefaultPort)
	}
	if cfg.Serve.Host != DefaultHost {
		t.Errorf("Serve.Host = %q, want %q", cfg.Serve.Host, DefaultHost)
	}
	if cfg.Build.Dist != DefaultDist {
		t.Errorf("Build.Dist = %q, want %q", cfg.Build.Dist, DefaultDist)
	}
	if cfg.Build.Target != DefaultTarget {
		t.Errorf("Build.Target = %q, want %q", cfg.Build.Target, DefaultTarget)
	}
	if !cfg.Build.InjectScripts {
		t.Error("Build.InjectScripts should default to true")
	}
	if !cfg.Serve.Autoreload {
		t.Error("Serve.Autoreload should default to true")
	}
	if !cfg.Build.FileHash {
		t.Error("Build.FileHash should default to true")
	}
	if cfg.Build.CreateNonce {
		t.Error("Build.CreateNonce should default to false")
	}
	if cfg.Tools.Esbuild != "esbuild" {
		t.Errorf("Tools.Esbuild = %q, want esbuild", cfg.Tools.Esbuild)
	}
}

func TestLoad_OutputOptions(t *testing.T) {
	tmpDir := t.TempDir()
	yamlConfig := `build:
  filehash: false
  createNonce: true
  patternScript: "<script>init('{base}{wasm}')</script>"
  patternParams:
    greeting: "@greeting.txt"
tools:
  esbuild: /opt/esbuild
`
	if err := os.WriteFile(filepath.Join(tmpDir, "spindle.yaml"), []byte(yamlConfig), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Build.FileHash {
		t.Error("Build.FileHash should be false")
	}
	if !cfg.Build.CreateNonce {
		t.Error("Build.CreateNonce should be true")
	}
	if cfg.Build.PatternScript != "<script>init('{base}{wasm}')</script>" {
		t.Errorf("Build.PatternScript = %q", cfg.Build.PatternScript)
	}
	if cfg.Build.PatternParams["greeting"] != "@greeting.txt" {
		t.Errorf("Build.PatternParams = %v", cfg.Build.PatternParams)
	}
	root, _ := filepath.Abs(tmpDir)
	if got := cfg.PatternParams()["greeting"]; got != "@"+filepath.Join(root, "greeting.txt") {
		t.Errorf("PatternParams()[greeting] = %q", got)
	}
	if cfg.Tools.Esbuild != "/opt/esbuild" {
		t.Errorf("Tools.Esbuild = %q", cfg.Tools.Esbuild)
	}
	if cfg.Tools.Go != "go" {
		t.Errorf("Tools.Go = %q, want go", cfg.Tools.Go)
	}
}

func TestLoad_YAML(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := Load(tmpDir); !errors.IsCode(err, "E120") {
		t.Errorf("Load on empty dir: err = %v, want E120", err)
	}

	yamlConfig := `build:
  dist: public
  publicUrl: app
  release: true
serve:
  port: 9000
  autoreload: false
  proxies:
    - prefix: /api
      backend: http://localhost:9001
    - prefix: /api/v2
      backend: http://localhost:9002
watch:
  debounce: 100ms
tools:
  sass: /opt/sass/sass
`
	if err := os.WriteFile(filepath.Join(tmpDir, "spindle.yaml"), []byte(yamlConfig), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Serve.Port != 9000 {
		t.Errorf("Serve.Port = %d, want 9000", cfg.Serve.Port)
	}
	if cfg.Serve.Autoreload {
		t.Error("Serve.Autoreload should be false")
	}
	if cfg.Build.PublicURL != "/app/" {
		t.Errorf("Build.PublicURL = %q, want /app/", cfg.Build.PublicURL)
	}
	if !cfg.Build.Release {
		t.Error("Build.Release should be true")
	}
	if cfg.Build.Target != DefaultTarget {
		t.Errorf("Build.Target = %q, want default", cfg.Build.Target)
	}
	if cfg.Tools.Sass != "/opt/sass/sass" {
		t.Errorf("Tools.Sass = %q", cfg.Tools.Sass)
	}
	if cfg.Tools.Go != "go" {
		t.Errorf("Tools.Go = %q, want go", cfg.Tools.Go)
	}
	if cfg.DebounceDuration() != 100*time.Millisecond {
		t.Errorf("DebounceDuration = %v, want 100ms", cfg.DebounceDuration())
	}
	if cfg.Serve.Proxies[0].Prefix != "/api/v2" {
		t.Errorf("Proxies not sorted longest prefix first: %+v", cfg.Serve.Proxies)
	}

	resolvedRoot, _ := filepath.Abs(tmpDir)
	if cfg.Root() != resolvedRoot {
		t.Errorf("Root() = %q, want %q", cfg.Root(), resolvedRoot)
	}
	if cfg.DistPath() != filepath.Join(resolvedRoot, "public") {
		t.Errorf("DistPath() = %q", cfg.DistPath())
	}
	if cfg.TargetPath() != filepath.Join(resolvedRoot, "index.html") {
		t.Errorf("TargetPath() = %q", cfg.TargetPath())
	}
}

func TestLoad_JSON(t *testing.T) {
	tmpDir := t.TempDir()
	jsonConfig := `{"build": {"target": "web/index.html", "concurrency": 2}, "serve": {"port": 3000}}`
	if err := os.WriteFile(filepath.Join(tmpDir, "spindle.json"), []byte(jsonConfig), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Build.Concurrency != 2 {
		t.Errorf("Build.Concurrency = %d, want 2", cfg.Build.Concurrency)
	}
	if !strings.HasSuffix(cfg.TargetPath(), filepath.Join("web", "index.html")) {
		t.Errorf("TargetPath() = %q", cfg.TargetPath())
	}
	if cfg.Serve.Port != 3000 {
		t.Errorf("Serve.Port = %d, want 3000", cfg.Serve.Port)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "spindle.yaml"), []byte("build: [oops"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(tmpDir)
	if !errors.IsCode(err, "E121") {
		t.Errorf("err = %v, want E121", err)
	}
}

func TestLoad_FilePriority(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "spindle.json"), []byte(`{"serve":{"port":1111}}`), 0644)
	os.WriteFile(filepath.Join(tmpDir, "spindle.yaml"), []byte("serve:\n  port: 2222\n"), 0644)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Serve.Port != 2222 {
		t.Errorf("Serve.Port = %d, want spindle.yaml to win", cfg.Serve.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "spindle.yaml"), []byte("build:\n  dist: out\n"), 0644)
	os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("SPINDLE_PUBLIC_URL=/static\n"), 0644)
	t.Setenv("SPINDLE_DIST", "build")
	t.Setenv("SPINDLE_PORT", "4321")
	t.Setenv("SPINDLE_RELEASE", "true")
	t.Setenv("SPINDLE_PUBLIC_URL", "")
	os.Unsetenv("SPINDLE_PUBLIC_URL")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Build.Dist != "build" {
		t.Errorf("Build.Dist = %q, want build", cfg.Build.Dist)
	}
	if cfg.Serve.Port != 4321 {
		t.Errorf("Serve.Port = %d, want 4321", cfg.Serve.Port)
	}
	if !cfg.Build.Release {
		t.Error("Build.Release should be true")
	}
	if cfg.Build.PublicURL != "/static/" {
		t.Errorf("Build.PublicURL = %q, want /static/ from .env", cfg.Build.PublicURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "port zero", mutate: func(c *Config) { c.Serve.Port = 0 }, wantCode: "E122"},
		{name: "port too large", mutate: func(c *Config) { c.Serve.Port = 70000 }, wantCode: "E122"},
		{
			name:     "proxy prefix without slash",
			mutate:   func(c *Config) { c.Serve.Proxies = []ProxyConfig{{Prefix: "api", Backend: "http://x"}} },
			wantCode: "E123",
		},
		{
			name:     "proxy backend relative",
			mutate:   func(c *Config) { c.Serve.Proxies = []ProxyConfig{{Prefix: "/api", Backend: "localhost:9000"}} },
			wantCode: "E123",
		},
		{
			name:   "websocket backend",
			mutate: func(c *Config) { c.Serve.Proxies = []ProxyConfig{{Prefix: "/ws", Backend: "ws://localhost:9000"}} },
		},
		{name: "negative concurrency", mutate: func(c *Config) { c.Build.Concurrency = -1 }, wantCode: "E124"},
		{name: "bad integrity", mutate: func(c *Config) { c.Build.Integrity = "md5" }, wantCode: "E124"},
		{name: "bad debounce", mutate: func(c *Config) { c.Watch.Debounce = "soon" }, wantCode: "E124"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.IsCode(err, tt.wantCode) {
				t.Errorf("Validate() = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestNormalizePublicURL(t *testing.T) {
	tests := map[string]string{
		"":                        "/",
		"/":                       "/",
		"app":                     "/app/",
		"/app":                    "/app/",
		"https://cdn.example.com": "https://cdn.example.com/",
	}
	for in, want := range tests {
		if got := NormalizePublicURL(in); got != want {
			t.Errorf("NormalizePublicURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "web", "src")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(root, ".spindle.yaml")
	os.WriteFile(cfgPath, []byte("serve:\n  port: 8081\n"), 0644)

	found, err := Find(nested)
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	want, _ := filepath.Abs(cfgPath)
	if found != want {
		t.Errorf("Find() = %q, want %q", found, want)
	}
}

func TestDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Default(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q, want empty", cfg.Path())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	out, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "dist: dist") {
		t.Errorf("YAML() missing dist:\n%s", out)
	}
}

func TestDevURL(t *testing.T) {
	cfg := New()
	cfg.Serve.Host = "0.0.0.0"
	cfg.Serve.Port = 8000
	if cfg.DevAddress() != "0.0.0.0:8000" {
		t.Errorf("DevAddress() = %q", cfg.DevAddress())
	}
	if cfg.DevURL() != "http://localhost:8000" {
		t.Errorf("DevURL() = %q", cfg.DevURL())
	}
}
