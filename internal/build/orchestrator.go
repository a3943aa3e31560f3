package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/errors"
	"github.com/vango-dev/spindle/internal/graph"
	"github.com/vango-dev/spindle/internal/metrics"
	"github.com/vango-dev/spindle/internal/toolchain"
)

const tracerName = "github.com/vango-dev/spindle/internal/build"

// Builder builds a single declaration. *toolchain.Set implements it.
type Builder interface {
	Build(ctx context.Context, d asset.Descriptor) (*toolchain.Result, error)
}

// Options configures the orchestrator.
type Options struct {
	// Dist is the output directory.
	Dist string

	// PublicURL prefixes every emitted reference (default "/").
	PublicURL string

	// Concurrency bounds the worker pool. Zero means one worker per CPU.
	Concurrency int

	// InjectScripts emits the WASM bootstrap scripts.
	InjectScripts bool

	// CreateNonce adds nonce="{{__SPINDLE_NONCE__}}" to every emitted
	// script and style element so a server can substitute a CSP nonce.
	CreateNonce bool

	// Patterns replace the generated WASM preload and bootstrap markup.
	Patterns Patterns

	// Adapters builds nodes.
	Adapters Builder

	// Logger receives structured progress logs.
	Logger *slog.Logger

	// Metrics records run and node outcomes. May be nil.
	Metrics *metrics.Collectors

	// TracerProvider opens spans per run and node. Defaults to the global
	// provider.
	TracerProvider trace.TracerProvider

	// OnProgress is called with progress updates.
	OnProgress func(step string)
}

// Orchestrator runs build passes over a graph.
type Orchestrator struct {
	options Options
	tracer  trace.Tracer
}

// New creates an orchestrator.
func New(options Options) *Orchestrator {
	if options.Concurrency <= 0 {
		options.Concurrency = runtime.NumCPU()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.TracerProvider == nil {
		options.TracerProvider = otel.GetTracerProvider()
	}
	options.PublicURL = config.NormalizePublicURL(options.PublicURL)

	return &Orchestrator{
		options: options,
		tracer:  options.TracerProvider.Tracer(tracerName),
	}
}

type job struct {
	id   string
	desc asset.Descriptor
}

type outcome struct {
	id       string
	result   *toolchain.Result
	err      error
	duration time.Duration
}

// Run builds the graph. With only == nil every node is built; otherwise
// only the listed IDs are rebuilt and other nodes keep their last outcome.
// doc is never modified; the rewritten copy is written to
// {Dist}/index.html. The returned error is non-nil only when the run could
// not produce its HTML; per-node failures are reported in the Report.
func (o *Orchestrator) Run(ctx context.Context, g *graph.Graph, doc *asset.Document, only []string) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Generation: g.Generation}
	log := o.options.Logger.With("run", report.RunID)

	ctx, span := o.tracer.Start(ctx, "spindle.build",
		trace.WithAttributes(
			attribute.String("spindle.run_id", report.RunID),
			attribute.Int("spindle.generation", g.Generation),
			attribute.Int("spindle.nodes", g.Len()),
			attribute.Bool("spindle.restricted", only != nil),
		))
	defer span.End()

	// Dispatching
	var jobs []job
	selected := make(map[string]bool, len(only))
	for _, id := range only {
		selected[id] = true
	}
	for _, n := range g.Nodes() {
		if only == nil || selected[n.ID] {
			jobs = append(jobs, job{id: n.ID, desc: n.Descriptor})
		}
	}
	o.progress(fmt.Sprintf("Building %d asset(s)...", len(jobs)))
	log.Debug("dispatching", "jobs", len(jobs), "workers", min(o.options.Concurrency, len(jobs)))

	// Collecting
	outcomes := o.runPool(ctx, jobs)

	// Writing
	o.progress("Writing outputs...")
	if err := os.MkdirAll(o.options.Dist, 0755); err != nil {
		return o.finish(span, report, start, errors.New("E301").WithDetail("creating "+o.options.Dist).Wrap(err))
	}

	previous := make(map[string]*toolchain.Result)
	for _, n := range g.Nodes() {
		previous[n.ID] = n.Last
	}

	for _, id := range g.IDs() {
		oc, rebuilt := outcomes[id]
		if !rebuilt {
			continue
		}
		if oc.err == nil {
			if err := o.writeOutputs(report, oc.result, previous[id]); err != nil {
				oc.err = err
			}
		}
		g.Record(id, oc.result, oc.err)
		outcomes[id] = oc
	}

	for _, n := range g.Nodes() {
		nr := NodeReport{
			ID:   n.ID,
			Kind: n.Descriptor.Kind,
			Href: n.Descriptor.Href,
		}
		if oc, ok := outcomes[n.ID]; ok {
			nr.Rebuilt = true
			nr.Duration = oc.duration
			nr.Err = oc.err
			if oc.err == nil {
				nr.Result = oc.result
			}
		} else {
			nr.Result = n.Last
			nr.Err = n.LastError
			if nr.Result == nil && nr.Err == nil {
				nr.Err = fmt.Errorf("%s has not been built", n.ID)
			}
		}
		if nr.Err != nil {
			nr.Result = nil
		}
		report.Nodes = append(report.Nodes, nr)
	}
	report.Status = Classify(report.Nodes)

	html, err := o.rewrite(doc, report.Nodes)
	if err != nil {
		return o.finish(span, report, start, errors.New("E301").Wrap(err))
	}
	report.HTML = html

	indexPath := filepath.Join(o.options.Dist, "index.html")
	if err := os.WriteFile(indexPath, html, 0644); err != nil {
		return o.finish(span, report, start, errors.New("E301").WithDetail("writing "+indexPath).Wrap(err))
	}
	if err := writeManifest(o.options.Dist, doc.Dir(), g); err != nil {
		log.Warn("writing manifest failed", "error", err)
	}

	for _, n := range report.Failed() {
		log.Error("asset failed", "node", n.ID, "error", n.Err)
	}
	return o.finish(span, report, start, nil)
}

func (o *Orchestrator) finish(span trace.Span, report *Report, start time.Time, err error) (*Report, error) {
	report.Duration = time.Since(start)
	if err != nil {
		report.Status = StatusFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if report.Status != StatusSuccess {
		span.SetStatus(codes.Error, report.Status.String())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("spindle.status", report.Status.String()))
	o.options.Metrics.ObserveRun(report.Status.String(), report.Duration)
	o.options.Logger.Info("build finished",
		"run", report.RunID,
		"status", report.Status.String(),
		"nodes", len(report.Nodes),
		"written", len(report.Written),
		"skipped", len(report.Skipped),
		"duration", report.Duration.Round(time.Millisecond))
	return report, err
}

// runPool builds jobs on a fixed set of workers and joins every result
// before returning. A failing job never cancels its siblings.
func (o *Orchestrator) runPool(ctx context.Context, jobs []job) map[string]outcome {
	results := make(map[string]outcome, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workers := min(o.options.Concurrency, len(jobs))
	jobCh := make(chan job, len(jobs))
	outCh := make(chan outcome, len(jobs))
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				outCh <- o.buildNode(ctx, j)
			}
		}()
	}
	wg.Wait()
	close(outCh)

	for oc := range outCh {
		results[oc.id] = oc
	}
	return results
}

func (o *Orchestrator) buildNode(ctx context.Context, j job) outcome {
	ctx, span := o.tracer.Start(ctx, "spindle.node",
		trace.WithAttributes(
			attribute.String("spindle.node", j.id),
			attribute.String("spindle.kind", j.desc.Kind.String()),
			attribute.String("spindle.source", j.desc.Source),
		))
	defer span.End()

	start := time.Now()
	var (
		res *toolchain.Result
		err error
	)
	if o.options.Adapters == nil {
		err = errors.Newf(errors.CategoryToolchain, "no adapters configured")
	} else if err = ctx.Err(); err == nil {
		res, err = o.options.Adapters.Build(ctx, j.desc)
	}
	if err == nil && res == nil {
		err = errors.Toolchain(j.desc.Tool(), "adapter returned no result")
	}
	d := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("spindle.output", res.Primary.Name))
		span.SetStatus(codes.Ok, "")
	}
	o.options.Metrics.ObserveNode(j.desc.Kind.String(), err == nil, d)
	o.options.Logger.Debug("asset built", "node", j.id, "duration", d.Round(time.Millisecond), "ok", err == nil)

	return outcome{id: j.id, result: res, err: err, duration: d}
}

// progress reports build progress.
func (o *Orchestrator) progress(step string) {
	if o.options.OnProgress != nil {
		o.options.OnProgress(step)
	}
}
