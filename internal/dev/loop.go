package dev

import "context"

// RunWatchLoop feeds w's events through d into r until ctx is done, then
// waits for the active rebuild to finish.
func RunWatchLoop(ctx context.Context, w *Watcher, d *Debouncer, r *Rebuilder) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx, w.Events(), func(b Batch) {
			r.HandleBatch(ctx, b)
		})
	}()

	err := w.Run(ctx)
	<-done
	r.Wait()
	return err
}
