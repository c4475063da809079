// SPDX-License-Identifier: MIT
/*
Package engine orchestrates capture, analysis and consumers.

An Engine owns one capture worker and one analyzer for a fixed bar count.
Consumers acquire a Handle, call Tick at their own cadence and read the
cached result through non-blocking getters.

Concurrency:
- The capture goroutine publishes blocks into a TripleBuffer and never
  touches engine state beyond an atomic timestamp
- Tick consumes the newest block and submits at most one analysis task to
  the injected pool; further ticks coalesce until it completes
- The task posts its Result to a one-slot channel; the next Tick drains it
  and publishes an immutable Snapshot through an atomic pointer
- mu guards the reference count, playback flag and in-flight flag and is
  never held across I/O or analysis
- lifeMu serializes Acquire, Release and Close so the reference count and
  the capture worker's state change together; Tick never takes it
*/
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"beat/internal/analysis"
	"beat/internal/audio"
	applog "beat/internal/log"
	"beat/internal/pool"

	"github.com/google/uuid"
)

var (
	// ErrUnknownHandle is returned when releasing a handle that is not
	// held on this engine, including a second release of the same handle.
	ErrUnknownHandle = errors.New("unknown engine handle")
	// ErrNoPool is returned by Tick when analysis is due but no pool was
	// injected.
	ErrNoPool = errors.New("engine has no compute pool")
	// ErrAnalysisPanic wraps a panic recovered from an analysis task.
	ErrAnalysisPanic = errors.New("analysis panicked")
)

// PlaceholderLevel is the height of the single active bar shown while
// playback is paused.
const PlaceholderLevel = 0.1

// Handle is one consumer's claim on an Engine.
type Handle struct {
	ID     uuid.UUID
	engine *Engine
}

// Engine returns the engine the handle belongs to.
func (h *Handle) Engine() *Engine { return h.engine }

// Snapshot is one published result. It is immutable once published;
// readers must not modify Bars.
type Snapshot struct {
	Seq         uint64               `json:"seq"`
	Bars        []float64            `json:"bars"`
	Bands       analysis.EnergyBands `json:"bands"`
	Beat        bool                 `json:"beat"`
	Floor       float64              `json:"floor"`
	Sensitivity float64              `json:"sensitivity"`
	Playing     bool                 `json:"playing"`
	Captured    time.Time            `json:"captured"`
}

// Stats are cumulative engine counters.
type Stats struct {
	Ticks      uint64 // Tick calls
	Submitted  uint64 // analysis tasks accepted by the pool
	Completed  uint64 // completions drained
	Coalesced  uint64 // ticks skipped because a task was in flight
	Dropped    uint64 // completions discarded after a smoothing reset
	Rejected   uint64 // submissions refused by the pool
	Degenerate uint64 // passes that returned the previous result
	Beats      uint64
}

// settings are replaced as a whole by the config setters and read when a
// task is submitted.
type settings struct {
	floor       analysis.FloorConfig
	sensitivity analysis.SensitivityConfig
	visual      analysis.VisualParams
}

type completion struct {
	generation uint64
	result     analysis.Result
	err        error
	captured   time.Time
}

// Engine is a shared, reference-counted beat engine for one bar count.
type Engine struct {
	barCount int
	analyzer *analysis.Analyzer
	analyze  func(analysis.Input) (analysis.Result, error)
	frames   *audio.TripleBuffer
	capture  *audio.CaptureWorker

	settings   atomic.Pointer[settings]
	settingsMu sync.Mutex // serializes setters

	latest      atomic.Pointer[Snapshot]
	placeholder *Snapshot
	results     chan completion
	lastAudio   atomic.Int64 // unix nanoseconds

	lifeMu sync.Mutex // held across capture Start/Stop

	mu         sync.Mutex
	handles    map[uuid.UUID]struct{}
	playing    bool
	inFlight   bool
	generation uint64
	pool       pool.Submitter
	poolWarned bool

	// Carried between passes; only touched by Tick under mu.
	prev       analysis.Result
	floor      analysis.FloorState
	calibrator *analysis.Calibrator
	beats      *analysis.BeatDetector
	seq        uint64

	ticks, submitted, completed, coalesced atomic.Uint64
	dropped, rejected, degenerate         atomic.Uint64
}

// New creates an inactive engine that captures from src. Playback starts
// as playing.
func New(opts Options, src audio.Source) *Engine {
	a := analysis.NewAnalyzer(opts.Analysis)
	n := a.BarCount()

	channels := max(src.Channels(), 1)
	e := &Engine{
		barCount:   n,
		analyzer:   a,
		frames:     audio.NewTripleBuffer(opts.Capture.BlockFrames * channels),
		results:    make(chan completion, 1),
		handles:    make(map[uuid.UUID]struct{}),
		playing:    true,
		floor:      analysis.NewFloorState(opts.Floor),
		calibrator: analysis.NewCalibrator(),
		beats:      analysis.NewBeatDetector(opts.BeatThreshold, opts.BeatRatio, opts.BeatCooldown),
	}
	e.analyze = a.Analyze
	e.capture = audio.NewCaptureWorker(src, e.frames, audio.NewGate(opts.GateThreshold), opts.Capture, e.noteAudio)

	e.settings.Store(&settings{
		floor:       opts.Floor.Normalize(),
		sensitivity: opts.Sensitivity.Normalize(),
		visual:      analysis.NormalizeVisualParams(opts.Visual),
	})

	bars := make([]float64, n)
	bars[n/2] = PlaceholderLevel
	e.placeholder = &Snapshot{Bars: bars}
	e.latest.Store(&Snapshot{Bars: make([]float64, n), Playing: true})

	applog.Infof("Engine: Created (%d bars, source %s, block %d frames)", n, src.Name(), opts.Capture.BlockFrames)
	return e
}

// BarCount returns the length of every bar vector the engine publishes.
func (e *Engine) BarCount() int { return e.barCount }

// Acquire registers a consumer. The first acquire starts capture.
func (e *Engine) Acquire() *Handle {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	h := &Handle{ID: uuid.New(), engine: e}
	e.mu.Lock()
	e.handles[h.ID] = struct{}{}
	first := len(e.handles) == 1
	e.mu.Unlock()

	if first {
		applog.Infof("Engine: Activating (%d bars)", e.barCount)
		e.capture.Start()
	}
	return h
}

// Release drops a consumer. The last release stops capture, waiting at
// most the configured stop timeout; an in-flight analysis task is left to
// finish on its own.
func (e *Engine) Release(h *Handle) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.mu.Lock()
	if h == nil || h.engine != e {
		e.mu.Unlock()
		return ErrUnknownHandle
	}
	if _, ok := e.handles[h.ID]; !ok {
		e.mu.Unlock()
		return ErrUnknownHandle
	}
	delete(e.handles, h.ID)
	last := len(e.handles) == 0
	e.mu.Unlock()

	if !last {
		return nil
	}
	applog.Infof("Engine: Deactivating (%d bars)", e.barCount)
	return e.capture.Stop()
}

// Refs returns the number of handles held.
func (e *Engine) Refs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// Active reports whether any handle is held.
func (e *Engine) Active() bool { return e.Refs() > 0 }

// Capturing reports whether the capture worker is running.
func (e *Engine) Capturing() bool { return e.capture.Running() }

// SetThreadPool injects the pool analysis tasks run on.
func (e *Engine) SetThreadPool(p pool.Submitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool = p
	e.poolWarned = false
}

// SetPlaybackState gates analysis. While paused Tick submits nothing and
// the getters return the placeholder.
func (e *Engine) SetPlaybackState(playing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing != playing {
		applog.Debugf("Engine: Playback playing=%t", playing)
	}
	e.playing = playing
}

// Playing returns the playback flag.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Tick publishes any completed analysis and, when playing with nothing in
// flight, submits one task for the newest captured block. It never blocks
// on analysis.
func (e *Engine) Tick() error {
	e.ticks.Add(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.drainLocked()

	if !e.playing || len(e.handles) == 0 {
		return nil
	}
	if e.inFlight {
		e.coalesced.Add(1)
		return nil
	}
	if e.pool == nil {
		if !e.poolWarned {
			applog.Warnf("Engine: Tick while playing but no compute pool is set")
			e.poolWarned = true
		}
		return ErrNoPool
	}

	frame, ok := e.frames.ConsumeLatest()
	if !ok {
		return nil
	}

	s := e.settings.Load()
	floor := e.floor
	floor.FloorConfig = s.floor
	sens := s.sensitivity
	sens.Auto = e.calibrator.Value()

	in := analysis.Input{
		Samples:     frame.Samples,
		Channels:    frame.Channels,
		SampleRate:  frame.SampleRate,
		Previous:    e.prev,
		Floor:       floor,
		Sensitivity: sens,
		Visual:      s.visual,
	}
	gen := e.generation
	captured := frame.Captured

	analyze := e.analyze
	err := pool.Go(e.pool, func() (c completion) {
		c = completion{generation: gen, captured: captured}
		// A panic must still complete the task or nothing is submitted again.
		defer func() {
			if r := recover(); r != nil {
				c.err = fmt.Errorf("%w: %v", ErrAnalysisPanic, r)
			}
		}()
		c.result, c.err = analyze(in)
		return c
	}, func(c completion) {
		// At most one task is in flight, so the slot is always free.
		e.results <- c
	})
	if err != nil {
		e.rejected.Add(1)
		applog.Debugf("Engine: Analysis submit refused: %v", err)
		return err
	}
	e.inFlight = true
	e.submitted.Add(1)
	return nil
}

// drainLocked caches a completed result, if one is waiting. e.mu must be
// held.
func (e *Engine) drainLocked() {
	var c completion
	select {
	case c = <-e.results:
	default:
		return
	}
	e.inFlight = false
	e.completed.Add(1)

	if c.generation != e.generation {
		e.dropped.Add(1)
		return
	}

	degenerate := errors.Is(c.err, analysis.ErrDegenerateBlock)
	if degenerate {
		e.degenerate.Add(1)
		applog.Debugf("Engine: Degenerate block, keeping previous bars")
	} else if c.err != nil {
		applog.Warnf("Engine: Analysis failed: %v", c.err)
		return
	}

	e.prev = c.result
	e.floor = c.result.Floor

	s := e.settings.Load()
	beat := false
	if !degenerate {
		if s.sensitivity.Recommended {
			e.calibrator.Observe(c.result.Peak)
		}
		beat = e.beats.Detect(c.result.Bands, c.captured)
	}

	sens := s.sensitivity
	sens.Auto = e.calibrator.Value()
	e.seq++
	e.latest.Store(&Snapshot{
		Seq:         e.seq,
		Bars:        c.result.Bars,
		Bands:       c.result.Bands,
		Beat:        beat,
		Floor:       c.result.Floor.Level,
		Sensitivity: sens.Multiplier(),
		Playing:     true,
		Captured:    c.captured,
	})
}

// Snapshot returns the latest published result, or the placeholder while
// paused. The returned value is shared and must not be modified.
func (e *Engine) Snapshot() *Snapshot {
	if !e.Playing() {
		return e.placeholder
	}
	return e.latest.Load()
}

// GetSmoothedBars returns a copy of the latest bar vector, or of the
// placeholder while paused. It always has BarCount elements.
func (e *Engine) GetSmoothedBars() []float64 {
	return append([]float64(nil), e.Snapshot().Bars...)
}

// GetEnergyBands returns the latest energy bands, zero while paused.
func (e *Engine) GetEnergyBands() analysis.EnergyBands {
	return e.Snapshot().Bands
}

// SetFloorConfig switches between the dynamic floor and a manual one.
// Invalid values are clamped. It takes effect on the next pass.
func (e *Engine) SetFloorConfig(dynamic bool, manual float64) {
	e.updateSettings(func(s *settings) {
		s.floor.Dynamic = dynamic
		s.floor.Manual = manual
		s.floor = s.floor.Normalize()
	})
}

// SetFloorBounds replaces the whole floor configuration.
func (e *Engine) SetFloorBounds(cfg analysis.FloorConfig) {
	e.updateSettings(func(s *settings) { s.floor = cfg.Normalize() })
}

// SetSensitivityConfig selects the recommended multiplier or a manual one.
// It takes effect on the next pass.
func (e *Engine) SetSensitivityConfig(recommended bool, sensitivity float64) {
	e.updateSettings(func(s *settings) {
		s.sensitivity.Recommended = recommended
		s.sensitivity.Manual = sensitivity
		s.sensitivity = s.sensitivity.Normalize()
	})
}

// SetVisualParams switches the visual mode and clears smoothing history so
// the old mode's bars do not bleed into the new one.
func (e *Engine) SetVisualParams(p analysis.VisualParams) {
	e.updateSettings(func(s *settings) { s.visual = analysis.NormalizeVisualParams(p) })
	e.ResetSmoothingState()
}

// VisualParams returns the current visual parameters.
func (e *Engine) VisualParams() analysis.VisualParams {
	return e.settings.Load().visual
}

func (e *Engine) updateSettings(fn func(*settings)) {
	e.settingsMu.Lock()
	defer e.settingsMu.Unlock()
	next := *e.settings.Load()
	fn(&next)
	e.settings.Store(&next)
}

// ResetSmoothingState clears bar and band history. A task already in
// flight was started from the old history, so its result is discarded.
func (e *Engine) ResetSmoothingState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prev = analysis.Result{}
	e.generation++
	e.beats.Reset()
}

// LastAudio returns when capture last saw a block above the gate
// threshold, or the zero time.
func (e *Engine) LastAudio() time.Time {
	ns := e.lastAudio.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Silent reports whether no audible block was captured within d.
func (e *Engine) Silent(d time.Duration) bool {
	last := e.LastAudio()
	return last.IsZero() || time.Since(last) > d
}

func (e *Engine) noteAudio(t time.Time) {
	e.lastAudio.Store(t.UnixNano())
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	beats := e.beats.Count()
	e.mu.Unlock()
	return Stats{
		Ticks:      e.ticks.Load(),
		Submitted:  e.submitted.Load(),
		Completed:  e.completed.Load(),
		Coalesced:  e.coalesced.Load(),
		Dropped:    e.dropped.Load(),
		Rejected:   e.rejected.Load(),
		Degenerate: e.degenerate.Load(),
		Beats:      beats,
	}
}

// Close stops capture regardless of outstanding handles.
func (e *Engine) Close() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.mu.Lock()
	clear(e.handles)
	e.mu.Unlock()
	return e.capture.Stop()
}
