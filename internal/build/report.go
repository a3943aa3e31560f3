package build

import (
	"time"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/toolchain"
)

// Status is the outcome of a run.
type Status int

const (
	StatusSuccess Status = iota
	StatusPartialFailure
	StatusFailure
)

// String returns the status name used in logs, metrics and reload events.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartialFailure:
		return "partial_failure"
	case StatusFailure:
		return "failure"
	}
	return "unknown"
}

// NodeReport is one node's outcome in a run.
type NodeReport struct {
	ID   string
	Kind asset.Kind
	Href string

	// Result is the node's current output (fresh or carried over).
	Result *toolchain.Result

	// Err is the node's current error, nil on success.
	Err error

	// Rebuilt is false when the node was outside a restricted rebuild.
	Rebuilt bool

	// Duration is the adapter's wall time for rebuilt nodes.
	Duration time.Duration
}

// OK reports whether the node currently has a usable output.
func (n NodeReport) OK() bool {
	return n.Err == nil && n.Result != nil
}

// Report summarises a run.
type Report struct {
	// RunID identifies the run in logs and traces.
	RunID string

	// Generation is the graph generation that was built.
	Generation int

	// Nodes are the node outcomes in graph order.
	Nodes []NodeReport

	// Status classifies the run.
	Status Status

	// HTML is the rewritten document.
	HTML []byte

	// Duration is the run's wall time.
	Duration time.Duration

	// Written and Skipped list dist-relative output paths.
	Written []string
	Skipped []string
}

// Failed returns the reports of failed nodes.
func (r *Report) Failed() []NodeReport {
	var out []NodeReport
	for _, n := range r.Nodes {
		if !n.OK() {
			out = append(out, n)
		}
	}
	return out
}

// Errors returns the errors of failed nodes.
func (r *Report) Errors() []error {
	var out []error
	for _, n := range r.Failed() {
		out = append(out, n.Err)
	}
	return out
}

// Classify derives a run status from node outcomes. No nodes is a success.
func Classify(nodes []NodeReport) Status {
	failed := 0
	for _, n := range nodes {
		if !n.OK() {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusSuccess
	case failed == len(nodes):
		return StatusFailure
	default:
		return StatusPartialFailure
	}
}
