// Package mrun provides Init/Shutdown lifecycle hook registration, the way
// github.com/mediocregopher/mediocre-go-lib/mrun and mnet use them to tie
// resource setup/teardown to named events rather than scattering it across
// main().
package mrun

import "context"

// Hook is a function registered to run on a lifecycle event.
type Hook func(context.Context) error

// Hooks collects Init and Shutdown hooks and runs them in registration
// order (Init) or reverse registration order (Shutdown), matching the
// usual "last resource up, first resource down" convention.
type Hooks struct {
	init     []Hook
	shutdown []Hook
}

// InitHook registers a Hook to run when Init is called.
func (h *Hooks) InitHook(fn Hook) {
	h.init = append(h.init, fn)
}

// ShutdownHook registers a Hook to run when Shutdown is called.
func (h *Hooks) ShutdownHook(fn Hook) {
	h.shutdown = append(h.shutdown, fn)
}

// Init runs every registered init Hook in registration order, stopping and
// returning the first error encountered.
func (h *Hooks) Init(ctx context.Context) error {
	for _, fn := range h.init {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown runs every registered shutdown Hook in reverse registration
// order. Unlike Init, a failing hook does not stop the remaining hooks from
// running -- shutdown should make a best effort to release everything.
// The first error seen is returned after all hooks have run.
func (h *Hooks) Shutdown(ctx context.Context) error {
	var firstErr error
	for i := len(h.shutdown) - 1; i >= 0; i-- {
		if err := h.shutdown[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
