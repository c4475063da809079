// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"sync"

	applog "beat/internal/log"
	"beat/internal/pool"
)

// Factory builds the engine for a bar count the first time it is acquired.
type Factory func(barCount int) (*Engine, error)

// Registry holds one shared engine per bar count. It is passed explicitly
// to whoever needs an engine; there is no package-level instance.
type Registry struct {
	factory Factory

	mu      sync.Mutex
	engines map[int]*Engine
	pool    pool.Submitter
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory, engines: make(map[int]*Engine)}
}

// SetThreadPool injects p into every current and future engine.
func (r *Registry) SetThreadPool(p pool.Submitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pool = p
	for _, e := range r.engines {
		e.SetThreadPool(p)
	}
}

// Acquire returns a handle on the engine for barCount, creating the engine
// on first use.
func (r *Registry) Acquire(barCount int) (*Handle, error) {
	r.mu.Lock()
	e, ok := r.engines[barCount]
	if !ok {
		var err error
		e, err = r.factory(barCount)
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("create engine for %d bars: %w", barCount, err)
		}
		if r.pool != nil {
			e.SetThreadPool(r.pool)
		}
		r.engines[barCount] = e
	}
	r.mu.Unlock()

	return e.Acquire(), nil
}

// Release releases h on its engine. The engine stays registered with its
// floor and calibration state for the next acquire.
func (r *Registry) Release(h *Handle) error {
	if h == nil {
		return ErrUnknownHandle
	}
	return h.engine.Release(h)
}

// Engine returns the registered engine for barCount, if any.
func (r *Registry) Engine(barCount int) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[barCount]
	return e, ok
}

// Close stops every engine.
func (r *Registry) Close() error {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.mu.Unlock()

	var errs []error
	for _, e := range engines {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		applog.Warnf("Engine: %d engines did not stop cleanly", len(errs))
	}
	return errors.Join(errs...)
}
