package config

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/spindle/internal/errors"
)

const (
	// DefaultPort is the default development server port.
	DefaultPort = 8080

	// DefaultHost is the default development server host.
	DefaultHost = "127.0.0.1"

	// DefaultDist is the default build output directory.
	DefaultDist = "dist"

	// DefaultTarget is the default source HTML file.
	DefaultTarget = "index.html"

	// DefaultDebounce is the default quiet window for file change batches.
	DefaultDebounce = "25ms"

	// DefaultCacheControl is sent for content-hashed objects on publish.
	DefaultCacheControl = "public, max-age=31536000, immutable"
)

// FileNames lists the configuration file names searched in each directory,
// in priority order.
var FileNames = []string{
	"spindle.yaml",
	".spindle.yaml",
	"spindle.yml",
	"spindle.json",
	".spindle.json",
}

// Config represents the complete spindle configuration.
type Config struct {
	// Build contains asset pipeline settings.
	Build BuildConfig `json:"build" yaml:"build"`

	// Watch contains file watcher settings.
	Watch WatchConfig `json:"watch" yaml:"watch"`

	// Serve contains development server settings.
	Serve ServeConfig `json:"serve" yaml:"serve"`

	// Tools names the external executables used by the toolchain adapters.
	Tools ToolsConfig `json:"tools" yaml:"tools"`

	// Publish contains object storage upload settings.
	Publish PublishConfig `json:"publish" yaml:"publish"`

	// configPath stores the path where the config was loaded from.
	configPath string

	// root is the project directory all relative paths resolve against.
	root string
}

// BuildConfig contains asset pipeline settings.
type BuildConfig struct {
	// Target is the source HTML file.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Dist is the output directory.
	Dist string `json:"dist,omitempty" yaml:"dist,omitempty"`

	// Release enables optimised toolchain invocations.
	Release bool `json:"release,omitempty" yaml:"release,omitempty"`

	// PublicURL is the URL prefix for every emitted reference.
	PublicURL string `json:"publicUrl,omitempty" yaml:"publicUrl,omitempty"`

	// Concurrency bounds the worker pool. Zero means one worker per CPU.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// InjectScripts controls whether the WASM bootstrap scripts are emitted.
	InjectScripts bool `json:"injectScripts" yaml:"injectScripts"`

	// Integrity is the default SRI digest ("none", "sha256", "sha384", "sha512").
	Integrity string `json:"integrity,omitempty" yaml:"integrity,omitempty"`

	// FileHash embeds the content hash in output file names.
	FileHash bool `json:"filehash" yaml:"filehash"`

	// CreateNonce adds a CSP nonce placeholder to every emitted script and
	// style element.
	CreateNonce bool `json:"createNonce,omitempty" yaml:"createNonce,omitempty"`

	// PatternScript replaces the WASM bootstrap script. Placeholders are
	// {base}, {wasm}, {js}, {crossorigin}, {integrity} and PatternParams keys.
	PatternScript string `json:"patternScript,omitempty" yaml:"patternScript,omitempty"`

	// PatternPreload replaces the WASM preload link.
	PatternPreload string `json:"patternPreload,omitempty" yaml:"patternPreload,omitempty"`

	// PatternParams are extra placeholder values. A value starting with @
	// names a file whose content is substituted.
	PatternParams map[string]string `json:"patternParams,omitempty" yaml:"patternParams,omitempty"`
}

// WatchConfig contains file watcher settings.
type WatchConfig struct {
	// Paths are additional paths to watch besides the target's directory.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`

	// Ignore contains patterns to ignore during watch.
	Ignore []string `json:"ignore,omitempty" yaml:"ignore,omitempty"`

	// Debounce is the quiet window (e.g., "25ms").
	Debounce string `json:"debounce,omitempty" yaml:"debounce,omitempty"`
}

// ServeConfig contains development server settings.
type ServeConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port is the port to run the dev server on.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Open opens the browser automatically on start.
	Open bool `json:"open,omitempty" yaml:"open,omitempty"`

	// Autoreload injects the live-reload client into served HTML.
	Autoreload bool `json:"autoreload" yaml:"autoreload"`

	// Headers are added to every static response.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Proxies forward request prefixes to backends.
	Proxies []ProxyConfig `json:"proxies,omitempty" yaml:"proxies,omitempty"`
}

// ProxyConfig maps a request path prefix to a backend URL.
type ProxyConfig struct {
	Prefix  string `json:"prefix" yaml:"prefix"`
	Backend string `json:"backend" yaml:"backend"`
}

// ToolsConfig names external executables.
type ToolsConfig struct {
	Go      string `json:"go,omitempty" yaml:"go,omitempty"`
	Sass    string `json:"sass,omitempty" yaml:"sass,omitempty"`
	WasmOpt string `json:"wasmOpt,omitempty" yaml:"wasmOpt,omitempty"`
	Esbuild string `json:"esbuild,omitempty" yaml:"esbuild,omitempty"`
}

// PublishConfig contains object storage upload settings.
type PublishConfig struct {
	Bucket       string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix       string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region       string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	CacheControl string `json:"cacheControl,omitempty" yaml:"cacheControl,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Build: BuildConfig{
			Target:        DefaultTarget,
			Dist:          DefaultDist,
			PublicURL:     "/",
			InjectScripts: true,
			Integrity:     "sha384",
			FileHash:      true,
		},
		Watch: WatchConfig{
			Debounce: DefaultDebounce,
		},
		Serve: ServeConfig{
			Host:       DefaultHost,
			Port:       DefaultPort,
			Autoreload: true,
		},
		Tools: ToolsConfig{
			Go:      "go",
			Sass:    "sass",
			WasmOpt: "wasm-opt",
			Esbuild: "esbuild",
		},
		Publish: PublishConfig{
			Region:       "us-east-1",
			CacheControl: DefaultCacheControl,
		},
	}
}

// Load reads configuration from the specified directory.
// It uses the first of FileNames present in the directory.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E120").
		WithDetail("No spindle configuration found in " + dir).
		WithSuggestion("Create spindle.yaml or run spindle without a config file to use defaults")
}

// LoadFile reads configuration from the specified file path. The format is
// chosen by extension: .json is JSON, everything else YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E120").
				WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("E121").Wrap(err)
	}

	cfg := New()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("E121").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that the file is valid JSON")
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("E121").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that the file is valid YAML")
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.New("E121").Wrap(err)
	}
	cfg.configPath = abs
	cfg.root = filepath.Dir(abs)
	loadEnvFiles(cfg.root)
	cfg.applyEnv()
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns the default configuration rooted at dir. Environment
// overrides still apply.
func Default(dir string) (*Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	cfg := New()
	cfg.root = abs
	loadEnvFiles(abs)
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// loadEnvFiles loads .env and .env.local from dir. Variables already set in
// the process environment are not overwritten.
func loadEnvFiles(dir string) {
	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

// applyEnv applies SPINDLE_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("SPINDLE_DIST"); v != "" {
		c.Build.Dist = v
	}
	if v := os.Getenv("SPINDLE_PUBLIC_URL"); v != "" {
		c.Build.PublicURL = v
	}
	if v := os.Getenv("SPINDLE_RELEASE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Build.Release = b
		}
	}
	if v := os.Getenv("SPINDLE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Serve.Port = p
		}
	}
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Build.Target == "" {
		c.Build.Target = DefaultTarget
	}
	if c.Build.Dist == "" {
		c.Build.Dist = DefaultDist
	}
	c.Build.PublicURL = NormalizePublicURL(c.Build.PublicURL)
	if c.Build.Integrity == "" {
		c.Build.Integrity = "sha384"
	}

	if c.Watch.Debounce == "" {
		c.Watch.Debounce = DefaultDebounce
	}

	if c.Serve.Host == "" {
		c.Serve.Host = DefaultHost
	}
	if c.Serve.Port == 0 {
		c.Serve.Port = DefaultPort
	}
	// Longest prefix first so /api/v2 wins over /api.
	sort.SliceStable(c.Serve.Proxies, func(i, j int) bool {
		return len(c.Serve.Proxies[i].Prefix) > len(c.Serve.Proxies[j].Prefix)
	})

	if c.Tools.Go == "" {
		c.Tools.Go = "go"
	}
	if c.Tools.Sass == "" {
		c.Tools.Sass = "sass"
	}
	if c.Tools.WasmOpt == "" {
		c.Tools.WasmOpt = "wasm-opt"
	}
	if c.Tools.Esbuild == "" {
		c.Tools.Esbuild = "esbuild"
	}

	if c.Publish.Region == "" {
		c.Publish.Region = "us-east-1"
	}
	if c.Publish.CacheControl == "" {
		c.Publish.CacheControl = DefaultCacheControl
	}
}

// NormalizePublicURL makes sure the public URL starts and ends with '/'
// unless it is an absolute URL, which only gets the trailing slash.
func NormalizePublicURL(u string) string {
	if u == "" {
		return "/"
	}
	if !strings.Contains(u, "://") && !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

var backendSchemes = map[string]bool{"http": true, "https": true, "ws": true, "wss": true}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Serve.Port < 1 || c.Serve.Port > 65535 {
		return errors.New("E122").
			WithDetail("Port must be between 1 and 65535, got " + strconv.Itoa(c.Serve.Port))
	}

	for _, p := range c.Serve.Proxies {
		if !strings.HasPrefix(p.Prefix, "/") {
			return errors.New("E123").
				WithDetail("Proxy prefix " + strconv.Quote(p.Prefix) + " must start with '/'")
		}
		u, err := url.Parse(p.Backend)
		if err != nil || !backendSchemes[u.Scheme] || u.Host == "" {
			return errors.New("E123").
				WithDetail("Proxy backend " + strconv.Quote(p.Backend) + " is not an absolute http(s) or ws(s) URL")
		}
	}

	if c.Build.Concurrency < 0 {
		return errors.New("E124").
			WithDetail("build.concurrency must not be negative")
	}

	switch c.Build.Integrity {
	case "none", "sha256", "sha384", "sha512":
	default:
		return errors.New("E124").
			WithDetail("build.integrity must be one of none, sha256, sha384, sha512")
	}

	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return errors.New("E124").
			WithDetail("watch.debounce: " + err.Error())
	}

	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Root returns the project directory.
func (c *Config) Root() string {
	return c.root
}

// resolve makes path absolute relative to the project root.
func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.root, path)
}

// TargetPath returns the absolute path to the source HTML file.
func (c *Config) TargetPath() string {
	return c.resolve(c.Build.Target)
}

// DistPath returns the absolute path to the build output directory.
func (c *Config) DistPath() string {
	return c.resolve(c.Build.Dist)
}

// WatchPaths returns the absolute extra watch paths.
func (c *Config) WatchPaths() []string {
	paths := make([]string, 0, len(c.Watch.Paths))
	for _, p := range c.Watch.Paths {
		paths = append(paths, c.resolve(p))
	}
	return paths
}

// PatternParams returns the pattern parameters with @file values made
// absolute against the project root.
func (c *Config) PatternParams() map[string]string {
	if len(c.Build.PatternParams) == 0 {
		return nil
	}
	params := make(map[string]string, len(c.Build.PatternParams))
	for k, v := range c.Build.PatternParams {
		if file, ok := strings.CutPrefix(v, "@"); ok {
			v = "@" + c.resolve(file)
		}
		params[k] = v
	}
	return params
}

// DebounceDuration returns the parsed debounce window.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultDebounce)
	}
	return d
}

// DevAddress returns the address string for the dev server.
func (c *Config) DevAddress() string {
	return c.Serve.Host + ":" + strconv.Itoa(c.Serve.Port)
}

// DevURL returns the full URL for the dev server.
func (c *Config) DevURL() string {
	host := c.Serve.Host
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}
	return "http://" + host + ":" + strconv.Itoa(c.Serve.Port)
}

// YAML renders the resolved configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Find walks up from startDir and returns the first configuration file found.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E120").
				WithDetail("No spindle configuration found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads the nearest configuration file, falling back to
// defaults rooted at the working directory when there is none.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	path, err := Find(wd)
	if err != nil {
		if errors.IsCode(err, "E120") {
			return Default(wd)
		}
		return nil, err
	}

	return LoadFile(path)
}
