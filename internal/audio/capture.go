// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	applog "beat/internal/log"

	"github.com/cenkalti/backoff/v4"
)

// ErrStopTimeout is returned by Stop when the capture goroutine did not exit
// within the configured bound. The goroutine is abandoned, not killed.
var ErrStopTimeout = errors.New("capture worker did not stop in time")

// CaptureConfig bounds the capture worker's timing.
type CaptureConfig struct {
	BlockFrames    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	StopTimeout    time.Duration
}

// CaptureWorker owns the real-time capture goroutine. It reads fixed-size
// blocks from a Source and publishes each one to a TripleBuffer. Capture
// failures are retried with exponential backoff and never surface to the
// caller.
type CaptureWorker struct {
	src     Source
	out     *TripleBuffer
	gate    *Gate
	onAudio func(time.Time)
	cfg     CaptureConfig

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool

	blocks   atomic.Uint64
	failures atomic.Uint64
}

// NewCaptureWorker creates a stopped worker. onAudio, if set, is called from
// the capture goroutine with the capture time of every block the gate lets
// through.
func NewCaptureWorker(src Source, out *TripleBuffer, gate *Gate, cfg CaptureConfig, onAudio func(time.Time)) *CaptureWorker {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 50 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 2 * time.Second
	}
	return &CaptureWorker{src: src, out: out, gate: gate, onAudio: onAudio, cfg: cfg}
}

// Start launches the capture goroutine. Starting a running worker is a
// no-op.
func (w *CaptureWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	// A goroutine abandoned by a timed out Stop may still hold the source.
	prev := w.done
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true
	go w.run(w.stop, w.done, prev)
}

// Stop signals the capture goroutine and waits for it to exit for at most
// the configured stop timeout.
func (w *CaptureWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stop, done := w.stop, w.done
	w.mu.Unlock()

	close(stop)

	timer := time.NewTimer(w.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		applog.Warnf("Capture: %s did not stop within %s", w.src.Name(), w.cfg.StopTimeout)
		return ErrStopTimeout
	}
}

// Running reports whether the worker has been started and not stopped.
func (w *CaptureWorker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Blocks returns the number of blocks published.
func (w *CaptureWorker) Blocks() uint64 { return w.blocks.Load() }

// Failures returns the number of failed open or read attempts.
func (w *CaptureWorker) Failures() uint64 { return w.failures.Load() }

func (w *CaptureWorker) run(stop <-chan struct{}, done chan<- struct{}, prev <-chan struct{}) {
	defer close(done)

	if prev != nil {
		select {
		case <-prev:
		case <-stop:
			return
		}
	}

	// Keep the blocking device reads on one OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	retry := w.newBackOff()
	var block []float32
	failing := false

	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := w.src.Open(w.cfg.BlockFrames); err != nil {
			w.fail(&failing, "open", err)
			if !sleep(stop, retry.NextBackOff()) {
				return
			}
			continue
		}

		channels := max(w.src.Channels(), 1)
		if n := w.cfg.BlockFrames * channels; cap(block) < n {
			block = make([]float32, n)
		} else {
			block = block[:n]
		}
		sampleRate := w.src.SampleRate()

		err := w.readLoop(stop, block, channels, sampleRate, &failing, retry)
		if cerr := w.src.Close(); cerr != nil {
			applog.Debugf("Capture: closing %s: %v", w.src.Name(), cerr)
		}
		if err == nil {
			return // stopped
		}

		w.fail(&failing, "read", err)
		if !sleep(stop, retry.NextBackOff()) {
			return
		}
	}
}

// readLoop publishes blocks until stop is closed (nil) or a read fails.
func (w *CaptureWorker) readLoop(stop <-chan struct{}, block []float32, channels int, sampleRate float64, failing *bool, retry backoff.BackOff) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if err := w.src.Read(block); err != nil {
			return err
		}

		if *failing {
			applog.Infof("Capture: %s recovered", w.src.Name())
			*failing = false
			retry.Reset()
		}

		now := time.Now()
		if w.gate != nil && w.onAudio != nil && w.gate.Open(block) {
			w.onAudio(now)
		}
		w.out.Publish(Frame{Samples: block, Channels: channels, SampleRate: sampleRate, Captured: now})
		w.blocks.Add(1)
	}
}

// newBackOff returns the retry schedule for open and read failures. It
// never gives up; only Stop ends the retries.
func (w *CaptureWorker) newBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(w.cfg.BackoffInitial),
		backoff.WithMaxInterval(w.cfg.BackoffMax),
		backoff.WithMaxElapsedTime(0),
	)
}

// fail records a failure, logging at Warn only on the first one of a run.
func (w *CaptureWorker) fail(failing *bool, op string, err error) {
	w.failures.Add(1)
	if !*failing {
		applog.Warnf("Capture: %s %s failed, retrying: %v", w.src.Name(), op, err)
		*failing = true
		return
	}
	applog.Debugf("Capture: %s %s failed: %v", w.src.Name(), op, err)
}

// sleep waits for d or until stop is closed, reporting false on stop.
func sleep(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
