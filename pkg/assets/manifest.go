// Package assets resolves source asset paths to the content-hashed files
// spindle writes.
//
// Every build writes {dist}/manifest.json mapping each declared source,
// relative to the HTML file, to its dist-relative outputs. The primary
// output comes first; secondary outputs such as the WASM JS glue follow:
//
//	{
//	  "styles/main.scss": ["main-9f86d081884c7d65.css"],
//	  "robots.txt": ["robots-2c26b46b68ffc68f.txt"]
//	}
//
// A Go server that renders its own pages can load the manifest and link the
// hashed files:
//
//	manifest, _ := assets.Load("dist/manifest.json")
//	resolver := assets.NewResolver(manifest, "/static/")
//	resolver.Asset("styles/main.scss") // "/static/main-9f86d081884c7d65.css"
package assets

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
)

// FileName is the manifest's name inside the dist directory.
const FileName = "manifest.json"

// Manifest maps source paths to their built outputs. It is safe for
// concurrent use.
type Manifest struct {
	entries map[string][]string
	mu      sync.RWMutex
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		entries: make(map[string][]string),
	}
}

// Load reads a manifest.json file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	entries := make(map[string][]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	return &Manifest{entries: entries}, nil
}

// WriteFile writes the manifest as indented JSON with sorted keys.
func (m *Manifest) WriteFile(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.entries, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Resolve returns the primary output for source, or source unchanged when
// the manifest has no entry for it.
func (m *Manifest) Resolve(source string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if outputs := m.entries[source]; len(outputs) > 0 {
		return outputs[0]
	}
	return source
}

// Outputs returns a copy of every output recorded for source.
func (m *Manifest) Outputs(source string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.entries[source]...)
}

// Has returns true if the manifest contains the given source path.
func (m *Manifest) Has(source string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[source]
	return ok
}

// Set records the outputs of source, primary first.
func (m *Manifest) Set(source string, outputs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[source] = append([]string(nil), outputs...)
}

// Len returns the number of sources in the manifest.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// Sources returns the recorded source paths, sorted.
func (m *Manifest) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sources := make([]string, 0, len(m.entries))
	for s := range m.entries {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}
