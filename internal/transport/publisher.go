// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"beat/internal/engine"
	applog "beat/internal/log"
)

// DefaultInterval is used when a publisher is created without a cadence.
const DefaultInterval = 16 * time.Millisecond // ~60Hz

// Publisher periodically ticks a Source and sends each new snapshot over a
// Transport. It runs in a separate goroutine managed by Start and Stop.
type Publisher struct {
	name      string
	src       Source
	transport Transport
	interval  time.Duration

	ticker   *time.Ticker   // Triggers ticks; nil when stopped.
	doneChan chan struct{}  // Signals the goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan.

	last          *engine.Snapshot // Last snapshot sent; only touched by the goroutine.
	sent, failed  atomic.Uint64
	lastTickError error
}

// NewPublisher creates a publisher named name. An interval <= 0 defaults
// to DefaultInterval.
func NewPublisher(name string, src Source, t Transport, interval time.Duration) (*Publisher, error) {
	if src == nil {
		return nil, fmt.Errorf("publisher %s: source cannot be nil", name)
	}
	if t == nil {
		return nil, fmt.Errorf("publisher %s: transport cannot be nil", name)
	}
	if interval <= 0 {
		interval = DefaultInterval
		applog.Warnf("Publisher %s: Invalid interval provided, defaulting to %s", name, interval)
	}
	return &Publisher{name: name, src: src, transport: t, interval: interval}, nil
}

// Name returns the publisher's name.
func (p *Publisher) Name() string { return p.name }

// Start launches the publishing goroutine. Calling Start while running is
// a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("Publisher %s: Start called but already running.", p.name)
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("Publisher %s: Started (Interval: %s)", p.name, p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the goroutine to exit and waits for it. Safe to call
// multiple times.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("Publisher %s: Stopped (%d sent, %d failed)", p.name, p.Sent(), p.Failed())
	return nil
}

// Run publishes until ctx is done. It suits an errgroup.
func (p *Publisher) Run(ctx context.Context) error {
	p.Start()
	<-ctx.Done()
	return p.Stop()
}

// Sent returns the number of snapshots delivered.
func (p *Publisher) Sent() uint64 { return p.sent.Load() }

// Failed returns the number of failed sends.
func (p *Publisher) Failed() uint64 { return p.failed.Load() }

func (p *Publisher) publish() {
	if err := p.src.Tick(); err != nil {
		// Log on change only; a missing pool would otherwise repeat every tick.
		if p.lastTickError == nil || err.Error() != p.lastTickError.Error() {
			applog.Debugf("Publisher %s: Tick: %v", p.name, err)
		}
		p.lastTickError = err
	} else {
		p.lastTickError = nil
	}

	snap := p.src.Snapshot()
	if snap == nil || snap == p.last {
		return
	}
	p.last = snap

	if err := p.transport.Send(snap); err != nil {
		if p.failed.Add(1) == 1 || errors.Is(err, ErrUnsupported) {
			applog.Warnf("Publisher %s: Send failed: %v", p.name, err)
		}
		return
	}
	p.sent.Add(1)
}
