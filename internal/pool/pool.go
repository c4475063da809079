// SPDX-License-Identifier: MIT
/*
Package pool runs side-effect-free compute tasks on a fixed set of worker
goroutines.

Submit never blocks: a full queue is reported to the caller, who decides
whether to retry on its next cycle. Engines share one pool; each engine
keeps at most one of its own tasks queued or running.
*/
package pool

import (
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	applog "beat/internal/log"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("pool queue is full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("pool is closed")
)

// Submitter accepts tasks for asynchronous execution.
type Submitter interface {
	Submit(task func()) error
}

// Pool is a fixed-size worker pool with a bounded queue.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex // Guards closed against a concurrent Close
	closed bool

	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// New starts workers goroutines sharing a queue of the given depth.
// Both are raised to at least one.
func New(workers, queue int) *Pool {
	workers = max(workers, 1)
	queue = max(queue, 1)

	p := &Pool{tasks: make(chan func(), queue)}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	applog.Debugf("Pool: Started %d workers (queue %d)", workers, queue)
	return p
}

// Submit queues task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Go submits fn to s and passes its result to callback on the worker once
// fn returns. It mirrors a submit(fn, callback) API on top of Submitter.
func Go[T any](s Submitter, fn func() T, callback func(T)) error {
	return s.Submit(func() { callback(fn()) })
}

// Close stops accepting tasks, lets queued ones finish and waits for the
// workers to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("Pool: Closed after %d tasks", p.completed.Load())
}

// Submitted returns the number of tasks accepted.
func (p *Pool) Submitted() uint64 { return p.submitted.Load() }

// Completed returns the number of tasks that ran to completion or panicked.
func (p *Pool) Completed() uint64 { return p.completed.Load() }

// Panicked returns the number of tasks that panicked.
func (p *Pool) Panicked() uint64 { return p.panicked.Load() }

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run executes one task; a panic is logged and does not kill the worker.
func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			applog.Errorf("Pool: Task panicked: %v\n%s", r, debug.Stack())
		}
		p.completed.Add(1)
	}()
	task()
}

var _ Submitter = (*Pool)(nil)
