package dev

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/build"
	"github.com/vango-dev/spindle/internal/graph"
)

// Runner runs one build pass. *build.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, g *graph.Graph, doc *asset.Document, only []string) (*build.Report, error)
}

// RebuilderOptions configures a Rebuilder.
type RebuilderOptions struct {
	// Runner executes build passes.
	Runner Runner

	// HTMLPath is the source HTML file.
	HTMLPath string

	// Logger receives run summaries.
	Logger *slog.Logger

	// OnReport is called after every run, including runs that failed to
	// parse the HTML (report is nil then).
	OnReport func(report *build.Report, err error)
}

// Rebuilder owns the document and graph during watch and serve. At most one
// run is active; triggers that arrive meanwhile are merged and start a
// single follow-up run once the active one finishes.
type Rebuilder struct {
	options RebuilderOptions
	log     *slog.Logger

	mu      sync.Mutex
	doc     *asset.Document
	graph   *graph.Graph
	running bool
	queued  bool
	pending graph.Affected
	wg      sync.WaitGroup
}

// NewRebuilder creates a rebuilder. Nothing is parsed until Build or
// Trigger is called.
func NewRebuilder(options RebuilderOptions) *Rebuilder {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if abs, err := filepath.Abs(options.HTMLPath); err == nil {
		options.HTMLPath = abs
	}
	return &Rebuilder{options: options, log: options.Logger}
}

// Graph returns the current graph, nil before the first successful parse.
func (r *Rebuilder) Graph() *graph.Graph {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.graph
}

// Affected maps changed paths to the nodes that must be rebuilt.
func (r *Rebuilder) Affected(paths []string) graph.Affected {
	g := r.Graph()
	if g == nil {
		return graph.Affected{All: true, Reparse: true}
	}
	return g.NodesAffectedBy(paths)
}

// Build runs a full build synchronously. It must not be called while
// triggered runs are in flight.
func (r *Rebuilder) Build(ctx context.Context) (*build.Report, error) {
	return r.run(ctx, graph.Affected{All: true, Reparse: true})
}

// HandleBatch triggers a rebuild for a debounced batch of changes.
func (r *Rebuilder) HandleBatch(ctx context.Context, b Batch) {
	affected := r.Affected(b.Paths)
	if b.Overflow {
		affected = graph.Affected{All: true, Reparse: true}
	}
	r.log.Info("change detected", "paths", len(b.Paths), "events", b.Events, "nodes", len(affected.IDs), "all", affected.All, "overflow", b.Overflow)
	r.Trigger(ctx, affected)
}

// Trigger requests a rebuild. It never blocks on the build itself.
func (r *Rebuilder) Trigger(ctx context.Context, a graph.Affected) {
	if a.Empty() {
		return
	}

	r.mu.Lock()
	if r.running {
		r.pending = r.pending.Merge(a)
		r.queued = true
		r.mu.Unlock()
		return
	}
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	go r.loop(ctx, a)
}

// Wait blocks until no run is active or queued.
func (r *Rebuilder) Wait() {
	r.wg.Wait()
}

func (r *Rebuilder) loop(ctx context.Context, a graph.Affected) {
	defer r.wg.Done()
	for {
		if ctx.Err() == nil {
			_, _ = r.run(ctx, a)
		}

		r.mu.Lock()
		if !r.queued || ctx.Err() != nil {
			r.running = false
			r.queued = false
			r.pending = graph.Affected{}
			r.mu.Unlock()
			return
		}
		a = r.pending
		r.pending = graph.Affected{}
		r.queued = false
		r.mu.Unlock()
	}
}

func (r *Rebuilder) run(ctx context.Context, a graph.Affected) (*build.Report, error) {
	r.mu.Lock()
	doc, g := r.doc, r.graph
	r.mu.Unlock()

	if a.Reparse || g == nil {
		parsed, err := asset.ParseFile(r.options.HTMLPath)
		if err != nil {
			r.log.Error("parsing HTML failed", "path", r.options.HTMLPath, "error", err)
			r.report(nil, err)
			return nil, err
		}
		doc = parsed
		g = graph.FromDescriptors(g, r.options.HTMLPath, parsed.Descriptors)

		r.mu.Lock()
		r.doc, r.graph = doc, g
		r.mu.Unlock()
		a.All = true
	}

	var only []string
	if !a.All {
		only = a.IDs
	}
	report, err := r.options.Runner.Run(ctx, g, doc, only)
	r.report(report, err)
	return report, err
}

func (r *Rebuilder) report(report *build.Report, err error) {
	if r.options.OnReport != nil {
		r.options.OnReport(report, err)
	}
}
