// SPDX-License-Identifier: MIT
package audio

import (
	"sync"

	"beat/pkg/utils"
)

// ToneSource synthesizes a steady sine at real-time pace. It needs no
// hardware and is what the demo and tests run against.
type ToneSource struct {
	sampleRate float64
	channels   int
	frequency  float64
	amplitude  float64

	mu    sync.Mutex
	phase float64
	pace  *pacer
	open  bool
}

// NewToneSource creates an unopened tone source.
func NewToneSource(sampleRate float64, channels int, frequency, amplitude float64) *ToneSource {
	return &ToneSource{
		sampleRate: sampleRate,
		channels:   max(channels, 1),
		frequency:  frequency,
		amplitude:  amplitude,
	}
}

func (s *ToneSource) Open(blockFrames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pace = newPacer(blockFrames, s.sampleRate)
	s.open = true
	return nil
}

func (s *ToneSource) Read(buf []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrSourceClosed
	}
	s.phase = utils.FillSine(buf, s.channels, s.sampleRate, s.frequency, s.amplitude, s.phase)
	s.pace.wait()
	return nil
}

func (s *ToneSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	if s.pace != nil {
		s.pace.reset()
	}
	return nil
}

func (s *ToneSource) SampleRate() float64 { return s.sampleRate }
func (s *ToneSource) Channels() int       { return s.channels }
func (s *ToneSource) Name() string        { return "tone" }
