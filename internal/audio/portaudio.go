// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	applog "beat/internal/log"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource reads blocks from a PortAudio input device using a
// blocking stream. Pointing it at a loopback or monitor device captures
// system output.
type PortAudioSource struct {
	deviceID   int
	sampleRate float64
	channels   int
	lowLatency bool

	mu     sync.Mutex
	stream *portaudio.Stream
	in     []float32 // Stream buffer filled by Read
	open   bool
}

// NewPortAudioSource creates an unopened PortAudio source.
func NewPortAudioSource(deviceID int, sampleRate float64, channels int, lowLatency bool) *PortAudioSource {
	return &PortAudioSource{
		deviceID:   deviceID,
		sampleRate: sampleRate,
		channels:   channels,
		lowLatency: lowLatency,
	}
}

// Open initializes PortAudio, resolves the device and starts the stream.
// Every failure wraps ErrCaptureUnavailable.
func (s *PortAudioSource) Open(blockFrames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}

	if err := Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	device, err := InputDevice(s.deviceID)
	if err != nil {
		Terminate()
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	channels := min(s.channels, device.MaxInputChannels)
	latency := device.DefaultHighInputLatency
	if s.lowLatency {
		latency = device.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: blockFrames,
		SampleRate:      s.sampleRate,
	}

	in := make([]float32, blockFrames*channels)
	stream, err := portaudio.OpenStream(params, in)
	if err != nil {
		Terminate()
		return fmt.Errorf("%w: open stream on %q: %v", ErrCaptureUnavailable, device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		Terminate()
		return fmt.Errorf("%w: start stream on %q: %v", ErrCaptureUnavailable, device.Name, err)
	}

	s.stream = stream
	s.in = in
	s.channels = channels
	s.open = true

	applog.Infof("Capture: PortAudio stream started on %q (%d ch, %.0f Hz, %d frames, latency %s)",
		device.Name, channels, s.sampleRate, blockFrames, latency.Round(time.Microsecond))
	return nil
}

// Read blocks until the stream delivers one block and copies it into buf.
// Input overflow only means frames were dropped by the host and is ignored.
func (s *PortAudioSource) Read(buf []float32) error {
	s.mu.Lock()
	stream, in, open := s.stream, s.in, s.open
	s.mu.Unlock()

	if !open {
		return ErrSourceClosed
	}

	if err := stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return fmt.Errorf("portaudio read: %w", err)
	}
	copy(buf, in)
	return nil
}

// Close stops the stream and releases PortAudio.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.open = false

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := Terminate(); err != nil {
		errs = append(errs, err)
	}
	s.stream = nil
	return errors.Join(errs...)
}

func (s *PortAudioSource) SampleRate() float64 { return s.sampleRate }

func (s *PortAudioSource) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels
}

func (s *PortAudioSource) Name() string { return fmt.Sprintf("portaudio:%d", s.deviceID) }
