package dev

import (
	"context"
	"time"

	"github.com/vango-dev/spindle/internal/metrics"
)

// DefaultDebounce is the quiet period that closes a batch.
const DefaultDebounce = 25 * time.Millisecond

// Batch is a set of events that arrived within one debounce window.
type Batch struct {
	// Paths are the distinct changed paths in arrival order.
	Paths []string

	// Events counts the raw events folded into the batch.
	Events int

	// First and Last are the arrival times of the first and last event.
	First time.Time
	Last  time.Time

	// Overflow is set when the watcher lost events inside this batch, so
	// Paths is incomplete.
	Overflow bool
}

// coalescer folds events into a batch. It has no clock of its own: the
// caller decides when to ask whether the batch is due.
type coalescer struct {
	window time.Duration
	batch  Batch
	seen   map[string]bool
}

func newCoalescer(window time.Duration) *coalescer {
	return &coalescer{window: window, seen: make(map[string]bool)}
}

// Add folds ev into the pending batch; the window restarts at ev.At.
func (c *coalescer) Add(ev Event) {
	if c.batch.Events == 0 {
		c.batch.First = ev.At
	}
	c.batch.Events++
	c.batch.Last = ev.At
	if ev.Overflow {
		c.batch.Overflow = true
		return
	}
	if !c.seen[ev.Path] {
		c.seen[ev.Path] = true
		c.batch.Paths = append(c.batch.Paths, ev.Path)
	}
}

// Pending reports whether a batch is open.
func (c *coalescer) Pending() bool {
	return c.batch.Events > 0
}

// Deadline is when the open batch becomes due.
func (c *coalescer) Deadline() time.Time {
	return c.batch.Last.Add(c.window)
}

// Due reports whether the open batch has been quiet for a full window.
func (c *coalescer) Due(now time.Time) bool {
	return c.Pending() && !now.Before(c.Deadline())
}

// Flush returns the open batch and starts a new one.
func (c *coalescer) Flush() Batch {
	b := c.batch
	c.batch = Batch{}
	c.seen = make(map[string]bool)
	return b
}

// Debouncer turns a stream of events into batches.
type Debouncer struct {
	// Window is the quiet period (default DefaultDebounce).
	Window time.Duration

	// Metrics counts emitted batches. May be nil.
	Metrics *metrics.Collectors
}

// Run reads events until ctx is done or in is closed, calling emit with each
// batch once no event has arrived for Window. A pending batch is flushed
// when in closes.
func (d *Debouncer) Run(ctx context.Context, in <-chan Event, emit func(Batch)) {
	window := d.Window
	if window <= 0 {
		window = DefaultDebounce
	}
	c := newCoalescer(window)

	timer := time.NewTimer(window)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	flush := func() {
		d.Metrics.WatchBatch()
		emit(c.Flush())
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-in:
			if !ok {
				if c.Pending() {
					flush()
				}
				return
			}
			if ev.At.IsZero() {
				ev.At = time.Now()
			}
			c.Add(ev)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(time.Until(c.Deadline()))

		case now := <-timer.C:
			if c.Due(now) {
				flush()
			} else if c.Pending() {
				timer.Reset(time.Until(c.Deadline()))
			}
		}
	}
}
