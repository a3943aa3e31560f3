// Package graph holds the build graph: one node per distinct
// (kind, source) declaration, carried across rebuild generations.
package graph

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/toolchain"
)

// Node is one buildable asset.
type Node struct {
	// ID is derived from the kind and the source path only.
	ID string

	// Descriptor is the last declaration seen for this ID.
	Descriptor asset.Descriptor

	// LastHash is the content hash of the last successful build.
	LastHash string

	// LastError is the error of the last build, nil after a success.
	LastError error

	// Last is the last successful result, used when the node is not part
	// of a restricted rebuild.
	Last *toolchain.Result

	// Deps are the files the last build reported reading.
	Deps []string
}

// Affected is the outcome of mapping changed paths onto the graph.
type Affected struct {
	// IDs lists affected nodes in graph order. Ignored when All is set.
	IDs []string

	// All requests a full rebuild.
	All bool

	// Reparse requests re-reading the source HTML before rebuilding.
	Reparse bool
}

// Empty reports whether nothing needs rebuilding.
func (a Affected) Empty() bool {
	return !a.All && !a.Reparse && len(a.IDs) == 0
}

// Merge returns the union of two affected sets.
func (a Affected) Merge(b Affected) Affected {
	out := Affected{All: a.All || b.All, Reparse: a.Reparse || b.Reparse}
	seen := make(map[string]bool, len(a.IDs)+len(b.IDs))
	for _, ids := range [][]string{a.IDs, b.IDs} {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out.IDs = append(out.IDs, id)
			}
		}
	}
	return out
}

// Graph is one generation of the build graph.
type Graph struct {
	// Generation increases each time the graph is rebuilt from descriptors.
	Generation int

	// HTMLPath is the absolute path of the source HTML file.
	HTMLPath string

	mu    sync.RWMutex
	order []string
	nodes map[string]*Node
}

// NodeID returns the identity of a declaration.
func NodeID(kind asset.Kind, source string) string {
	return kind.String() + ":" + filepath.Clean(source)
}

// FromDescriptors builds a new generation. Nodes whose ID existed in prev
// keep their last hash, error, result and deps; nodes no longer declared
// are dropped. Duplicate declarations collapse into one node and the last
// one's options win.
func FromDescriptors(prev *Graph, htmlPath string, descs []asset.Descriptor) *Graph {
	g := &Graph{
		HTMLPath: filepath.Clean(htmlPath),
		nodes:    make(map[string]*Node, len(descs)),
	}
	if prev != nil {
		g.Generation = prev.Generation + 1
		prev.mu.RLock()
		defer prev.mu.RUnlock()
	}

	for _, d := range descs {
		if d.Skip {
			continue
		}
		id := NodeID(d.Kind, d.Source)
		if n, ok := g.nodes[id]; ok {
			n.Descriptor = d
			continue
		}
		n := &Node{ID: id, Descriptor: d}
		if prev != nil {
			if old, ok := prev.nodes[id]; ok {
				n.LastHash = old.LastHash
				n.LastError = old.LastError
				n.Last = old.Last
				n.Deps = append([]string(nil), old.Deps...)
			}
		}
		g.nodes[id] = n
		g.order = append(g.order, id)
	}
	return g
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// IDs returns node IDs in first-declaration order.
func (g *Graph) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Node returns a copy of the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns copies of all nodes in order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Record stores the outcome of building a node.
func (g *Graph) Record(id string, res *toolchain.Result, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	if err != nil {
		n.LastError = err
		return
	}
	n.LastError = nil
	n.Last = res
	n.LastHash = res.Primary.Hash
	n.Deps = normalize(res.Deps)
}

// DepPaths returns every path the watcher should cover: node sources plus
// reported dependencies, sorted and unique.
func (g *Graph) DepPaths() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var paths []string
	for _, id := range g.order {
		n := g.nodes[id]
		paths = append(paths, n.Descriptor.Source)
		paths = append(paths, n.Deps...)
	}
	return normalize(paths)
}

// NodesAffectedBy maps changed paths onto nodes. A path claimed by no node
// marks the whole graph affected; the HTML file itself also asks for a
// re-parse.
func (g *Graph) NodesAffectedBy(changed []string) Affected {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out Affected
	hit := make(map[string]bool)
	for _, p := range changed {
		p = filepath.Clean(p)
		if p == g.HTMLPath {
			out.All = true
			out.Reparse = true
			continue
		}
		claimed := false
		for _, id := range g.order {
			if g.nodes[id].claims(p) {
				hit[id] = true
				claimed = true
			}
		}
		if !claimed {
			out.All = true
		}
	}
	for _, id := range g.order {
		if hit[id] {
			out.IDs = append(out.IDs, id)
		}
	}
	return out
}

// claims reports whether a change to path invalidates the node.
func (n *Node) claims(path string) bool {
	src := n.Descriptor.Source
	if path == src {
		return true
	}
	if n.Descriptor.Kind.Compiled() {
		i := sort.SearchStrings(n.Deps, path)
		if i < len(n.Deps) && n.Deps[i] == path {
			return true
		}
	}
	if n.Descriptor.Kind != asset.KindWasm || !within(src, path) {
		return false
	}
	// Package directory: Go sources and module files always count; other
	// files only until the first build has reported real dependencies.
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".go") || base == "go.mod" || base == "go.sum" {
		return true
	}
	return len(n.Deps) == 0
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func normalize(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
