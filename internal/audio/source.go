// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"time"

	"beat/internal/config"
)

var (
	// ErrCaptureUnavailable wraps every failure to acquire a capture device.
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrReadTimeout is returned when a source produced no block in time.
	ErrReadTimeout = errors.New("capture read timed out")
	// ErrSourceClosed is returned by Read on a source that is not open.
	ErrSourceClosed = errors.New("capture source is not open")
)

// Source yields fixed-size blocks of interleaved float samples. Open and
// Close may be called repeatedly as the capture worker retries. Read blocks
// for at most a few block periods.
type Source interface {
	Open(blockFrames int) error
	Read(buf []float32) error
	Close() error
	SampleRate() float64
	Channels() int
	Name() string
}

// NewSource builds the Source selected by cfg.Source.
func NewSource(cfg config.AudioConfig) (Source, error) {
	switch cfg.Source {
	case config.SourcePortAudio:
		return NewPortAudioSource(cfg.InputDevice, cfg.SampleRate, cfg.InputChannels, cfg.LowLatency), nil
	case config.SourceLoopback:
		return NewLoopbackSource(cfg.SampleRate, cfg.InputChannels), nil
	case config.SourceFile:
		return NewFileSource(cfg.FilePath), nil
	case config.SourceTone:
		return NewToneSource(cfg.SampleRate, cfg.InputChannels, cfg.ToneFrequency, cfg.ToneAmplitude), nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", cfg.Source)
	}
}

// pacer releases one block per period so file and synthetic sources run at
// the same rate as real capture.
type pacer struct {
	period time.Duration
	next   time.Time
}

func newPacer(blockFrames int, sampleRate float64) *pacer {
	return &pacer{period: time.Duration(float64(blockFrames) / sampleRate * float64(time.Second))}
}

func (p *pacer) wait() {
	now := time.Now()
	if p.next.IsZero() || now.Sub(p.next) > p.period {
		// First block, or we fell more than a block behind: resync.
		p.next = now
	}
	p.next = p.next.Add(p.period)
	if d := time.Until(p.next); d > 0 {
		time.Sleep(d)
	}
}

func (p *pacer) reset() {
	p.next = time.Time{}
}
