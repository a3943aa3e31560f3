package dev

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vango-dev/spindle/internal/errors"
)

// Event is one filesystem notification.
type Event struct {
	Path string
	Op   fsnotify.Op
	At   time.Time

	// Overflow marks the event sent after others were lost because the
	// consumer fell behind. Path is empty.
	Overflow bool
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are the roots to watch. Directories are watched recursively.
	Paths []string

	// Ignore patterns to skip (names, path segments or globs).
	Ignore []string

	// Dist is the output directory; it is always ignored.
	Dist string

	// Buffer bounds the event channel (default 256). When the consumer
	// falls behind by more than Buffer, further events are collapsed into
	// a single Overflow event.
	Buffer int

	// Logger receives watch errors.
	Logger *slog.Logger
}

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	"dist",
	"target",
	".spindle",
	"*.tmp",
	"*.swp",
	"*~",
	".#*",
	".spindle-*",
}

// Watcher feeds fsnotify events for the configured roots into a bounded
// channel.
type Watcher struct {
	config  WatcherConfig
	fs      *fsnotify.Watcher
	events  chan Event
	log     *slog.Logger
	dist    string
	mu      sync.Mutex
	roots   []string
	running bool
	closed  bool

	// dirRoots are watched recursively. fileRoots are watched through
	// their parent directory; siblings in that parent are not reported.
	dirRoots  []string
	fileRoots map[string]bool

	overflow atomic.Bool
}

// NewWatcher creates a watcher and registers its roots. A root that cannot
// be watched is logged (E302) and dropped.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Buffer <= 0 {
		config.Buffer = 256
	}
	if len(config.Ignore) == 0 {
		config.Ignore = DefaultIgnore
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.New("E302").WithDetail("creating file watcher").Wrap(err)
	}

	w := &Watcher{
		config:    config,
		fs:        fw,
		events:    make(chan Event, config.Buffer),
		log:       config.Logger,
		fileRoots: make(map[string]bool),
	}
	if config.Dist != "" {
		if abs, err := filepath.Abs(config.Dist); err == nil {
			w.dist = abs
		}
	}

	for _, root := range config.Paths {
		if err := w.Add(root); err != nil {
			w.log.Warn("watch root dropped", "path", root, "error", err)
		}
	}
	return w, nil
}

// Add starts watching another root. It may be called while Run is active.
// A root already covered by a watched directory is a no-op.
func (w *Watcher) Add(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return errors.New("E302").WithDetail(root).Wrap(err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return errors.New("E302").WithDetail(root).Wrap(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("E302").WithDetail(root + ": watcher closed")
	}
	if w.claimsLocked(abs) {
		return nil
	}

	if info.IsDir() {
		err = w.addRecursive(abs)
	} else {
		err = w.fs.Add(filepath.Dir(abs))
	}
	if err != nil {
		return errors.New("E302").WithDetail(root).Wrap(err)
	}

	if info.IsDir() {
		w.dirRoots = append(w.dirRoots, abs)
	} else {
		w.fileRoots[abs] = true
	}
	w.roots = append(w.roots, abs)
	return nil
}

// claims reports whether path lies under a watched root.
func (w *Watcher) claims(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.claimsLocked(path)
}

func (w *Watcher) claimsLocked(path string) bool {
	path = filepath.Clean(path)
	if w.fileRoots[path] {
		return true
	}
	for _, dir := range w.dirRoots {
		if isWithinDir(path, dir) {
			return true
		}
	}
	return false
}

// Events returns the channel events are delivered on. It is closed when
// Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Roots returns the roots that are actually being watched.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Run forwards events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.events)
	defer w.Close()

	for {
		// The overflow case is only armed while an overflow is pending.
		var overflow chan<- Event
		if w.overflow.Load() {
			overflow = w.events
		}

		select {
		case <-ctx.Done():
			return nil

		case overflow <- Event{Overflow: true, At: time.Now()}:
			w.overflow.Store(false)

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fs.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || w.shouldIgnore(ev.Name) || !w.claims(ev.Name) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.log.Warn("watching new directory failed", "path", ev.Name, "error", err)
			}
		}
	}

	// A pending overflow already covers this change.
	if w.overflow.Load() {
		return
	}

	select {
	case w.events <- Event{Path: filepath.Clean(ev.Name), Op: ev.Op, At: time.Now()}:
	default:
		w.overflow.Store(true)
		w.log.Warn("watch events overflowed, scheduling full rebuild", "buffer", cap(w.events))
	}
}

// addRecursive watches root and every non-ignored directory below it.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.shouldIgnore(p) {
			return filepath.SkipDir
		}
		return w.fs.Add(p)
	})
}

// shouldIgnore checks if a path should be ignored.
func (w *Watcher) shouldIgnore(fullPath string) bool {
	if w.dist != "" && isWithinDir(fullPath, w.dist) {
		return true
	}
	return matchesIgnore(fullPath, w.config.Ignore)
}

func matchesIgnore(fullPath string, patterns []string) bool {
	name := filepath.Base(fullPath)
	normalized := filepath.ToSlash(fullPath)

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		// Direct match
		if name == pattern {
			return true
		}

		hasPathSep := strings.Contains(pattern, "/") || strings.Contains(pattern, "\\")
		hasGlob := strings.ContainsAny(pattern, "*?[")

		if hasGlob {
			if hasPathSep {
				if matched, _ := path.Match(filepath.ToSlash(pattern), normalized); matched {
					return true
				}
			} else {
				if matched, _ := filepath.Match(pattern, name); matched {
					return true
				}
			}
			continue
		}

		if hasPathSep {
			if pathMatchesSegments(normalized, filepath.ToSlash(pattern)) {
				return true
			}
			continue
		}

		if pathHasSegment(normalized, pattern) {
			return true
		}
	}

	return false
}

func pathHasSegment(path, segment string) bool {
	if segment == "" {
		return false
	}
	for _, part := range splitPathSegments(path) {
		if part == segment {
			return true
		}
	}
	return false
}

func pathMatchesSegments(path, pattern string) bool {
	pathParts := splitPathSegments(path)
	patternParts := splitPathSegments(pattern)
	if len(patternParts) == 0 || len(patternParts) > len(pathParts) {
		return false
	}

	for i := 0; i <= len(pathParts)-len(patternParts); i++ {
		match := true
		for j := range patternParts {
			if pathParts[i+j] != patternParts[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}

	return false
}

func splitPathSegments(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}

func isWithinDir(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	absDir = filepath.Clean(absDir)
	if absPath == absDir {
		return true
	}
	if !strings.HasSuffix(absDir, string(os.PathSeparator)) {
		absDir += string(os.PathSeparator)
	}
	return strings.HasPrefix(absPath, absDir)
}
