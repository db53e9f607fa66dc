// Package harness coordinates the startup and shutdown of the
// renewal loop and the TLS frontend's accept loop, running both under
// a single errgroup so a failure in either cancels the other.
package harness

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is a long-lived component that blocks until ctx is cancelled
// or it fails irrecoverably.
type Task func(context.Context) error

// Run executes every task concurrently under a shared context. If any
// task returns a non-nil error, the context is cancelled so the
// others unwind, and that error is returned once all tasks have
// exited. A clean shutdown (ctx cancelled by the caller, every task
// returning nil) yields a nil error.
func Run(ctx context.Context, tasks ...Task) error {
	eg, egCtx := errgroup.WithContext(ctx)

	for _, t := range tasks {
		t := t
		eg.Go(func() error {
			return t(egCtx)
		})
	}

	return eg.Wait()
}
