// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	applog "beat/internal/log"

	"github.com/gen2brain/malgo"
)

const loopbackBlocks = 3

// LoopbackSource captures what the system is currently playing through
// miniaudio's loopback device. Loopback is only offered by some backends
// (WASAPI); elsewhere Open fails with ErrCaptureUnavailable and a monitor
// device should be used through the PortAudio source instead.
type LoopbackSource struct {
	sampleRate float64
	channels   int

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	open     bool

	// Callback side: fills cur from free and hands full blocks to ready.
	free    chan []float32
	ready   chan []float32
	cur     []float32
	dropped atomic.Uint64

	readTimeout time.Duration
	readTimer   *time.Timer // only touched by Read
}

// NewLoopbackSource creates an unopened loopback source.
func NewLoopbackSource(sampleRate float64, channels int) *LoopbackSource {
	return &LoopbackSource{sampleRate: sampleRate, channels: channels}
}

// Open initializes a miniaudio context and starts the loopback device.
func (s *LoopbackSource) Open(blockFrames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}

	blockLen := blockFrames * s.channels
	s.free = make(chan []float32, loopbackBlocks)
	s.ready = make(chan []float32, loopbackBlocks)
	for range loopbackBlocks {
		s.free <- make([]float32, 0, blockLen)
	}
	s.cur = nil
	// A few block periods before a silent device counts as stalled.
	s.readTimeout = 4 * time.Duration(float64(blockFrames)/s.sampleRate*float64(time.Second))

	if s.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("%w: failed to initialize malgo context: %v", ErrCaptureUnavailable, err)
		}
		s.malgoCtx = ctx
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(s.channels)
	deviceConfig.SampleRate = uint32(s.sampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(blockFrames)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, frameCount uint32) {
			s.onSamples(pInputSamples, blockLen)
		},
	}

	device, err := malgo.InitDevice(s.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		s.releaseContext()
		return fmt.Errorf("%w: failed to initialize loopback device: %v", ErrCaptureUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		s.releaseContext()
		return fmt.Errorf("%w: failed to start loopback device: %v", ErrCaptureUnavailable, err)
	}

	s.device = device
	s.open = true
	applog.Infof("Capture: loopback device started (%d ch, %.0f Hz, %d frames)", s.channels, s.sampleRate, blockFrames)
	return nil
}

// onSamples runs on the miniaudio thread. It never blocks: when the reader
// falls behind and no free block is left, samples are dropped.
func (s *LoopbackSource) onSamples(in []byte, blockLen int) {
	for off := 0; off+4 <= len(in); off += 4 {
		if s.cur == nil {
			select {
			case s.cur = <-s.free:
				s.cur = s.cur[:0]
			default:
				s.dropped.Add(uint64((len(in) - off) / 4))
				return
			}
		}
		s.cur = append(s.cur, math.Float32frombits(binary.LittleEndian.Uint32(in[off:])))
		if len(s.cur) == blockLen {
			s.ready <- s.cur // cannot block: at most loopbackBlocks buffers exist
			s.cur = nil
		}
	}
}

// Read waits for the next complete block. It must be called from a single
// goroutine.
func (s *LoopbackSource) Read(buf []float32) error {
	s.mu.Lock()
	ready, free, open, timeout := s.ready, s.free, s.open, s.readTimeout
	s.mu.Unlock()

	if !open {
		return ErrSourceClosed
	}

	if s.readTimer == nil {
		s.readTimer = time.NewTimer(timeout)
	} else {
		s.readTimer.Reset(timeout)
	}
	select {
	case block := <-ready:
		s.readTimer.Stop()
		copy(buf, block)
		free <- block
		return nil
	case <-s.readTimer.C:
		return ErrReadTimeout
	}
}

// Close stops the device and releases the miniaudio context.
func (s *LoopbackSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.open = false

	if err := s.device.Stop(); err != nil {
		applog.Warnf("Capture: loopback device stop error: %v", err)
	}
	s.device.Uninit()
	s.device = nil
	s.releaseContext()

	if n := s.dropped.Swap(0); n > 0 {
		applog.Debugf("Capture: loopback dropped %d samples while the reader lagged", n)
	}
	return nil
}

// releaseContext must be called with s.mu held.
func (s *LoopbackSource) releaseContext() {
	if s.malgoCtx == nil {
		return
	}
	if err := s.malgoCtx.Uninit(); err != nil {
		applog.Warnf("Capture: malgo context uninit error: %v", err)
	}
	s.malgoCtx.Free()
	s.malgoCtx = nil
}

func (s *LoopbackSource) SampleRate() float64 { return s.sampleRate }
func (s *LoopbackSource) Channels() int       { return s.channels }
func (s *LoopbackSource) Name() string        { return "loopback" }
