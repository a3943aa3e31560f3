package dev

import (
	"path/filepath"

	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/graph"
)

// CollectWatchPaths returns the roots to watch: the configured watch paths,
// the target HTML file's directory, and any dependency outside those. Files
// in the module cache are never watched. g may be nil when the HTML file has
// not parsed yet.
func CollectWatchPaths(cfg *config.Config, g *graph.Graph) []string {
	paths := append(cfg.WatchPaths(), filepath.Dir(cfg.TargetPath()))
	if g != nil {
		paths = append(paths, filepath.Dir(g.HTMLPath))
		for _, dep := range g.DepPaths() {
			if pathMatchesSegments(filepath.ToSlash(dep), "pkg/mod") {
				continue
			}
			covered := false
			for _, p := range paths {
				if isWithinDir(dep, p) {
					covered = true
					break
				}
			}
			if !covered {
				paths = append(paths, dep)
			}
		}
	}

	unique := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		clean := filepath.Clean(path)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		unique = append(unique, clean)
	}

	return unique
}

// Follow adds the roots g needs that w does not watch yet. It is called
// after every run so dependencies discovered by a build are picked up.
func (w *Watcher) Follow(cfg *config.Config, g *graph.Graph) {
	for _, root := range CollectWatchPaths(cfg, g) {
		if err := w.Add(root); err != nil {
			w.log.Debug("watch root skipped", "path", root, "error", err)
		}
	}
}
