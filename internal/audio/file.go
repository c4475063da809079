// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	applog "beat/internal/log"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FileSource replays a PCM WAV file in a loop at real-time pace. It stands
// in for a capture device in demos and tests.
type FileSource struct {
	path string

	mu         sync.Mutex
	file       *os.File
	dec        *wav.Decoder
	pcm        *goaudio.IntBuffer
	scale      float32
	offset     int
	sampleRate float64
	channels   int
	pace       *pacer
	open       bool
}

// NewFileSource creates an unopened file source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Open reads the WAV header and positions the decoder at the PCM data.
func (s *FileSource) Open(blockFrames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return fmt.Errorf("%w: %s is not a valid WAV file", ErrCaptureUnavailable, s.path)
	}
	if err := dec.FwdToPCM(); err != nil {
		file.Close()
		return fmt.Errorf("%w: %s: %v", ErrCaptureUnavailable, s.path, err)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 || dec.BitDepth == 0 {
		file.Close()
		return fmt.Errorf("%w: %s has an incomplete format header", ErrCaptureUnavailable, s.path)
	}

	s.file = file
	s.dec = dec
	s.channels = int(dec.NumChans)
	s.sampleRate = float64(dec.SampleRate)
	s.scale = 1 / float32(int(1)<<(dec.BitDepth-1))
	s.offset = 0
	if dec.BitDepth == 8 {
		// 8-bit WAV is unsigned.
		s.offset = 128
	}
	s.pcm = &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: s.channels, SampleRate: int(dec.SampleRate)},
		Data:   make([]int, blockFrames*s.channels),
	}
	s.pace = newPacer(blockFrames, s.sampleRate)
	s.open = true

	applog.Infof("Capture: replaying %s (%d ch, %.0f Hz, %d-bit)", s.path, s.channels, s.sampleRate, dec.BitDepth)
	return nil
}

// Read fills buf with the next block, wrapping to the start of the file at
// the end.
func (s *FileSource) Read(buf []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrSourceClosed
	}

	filled := 0
	rewound := false
	for filled < len(buf) {
		s.pcm.Data = s.pcm.Data[:min(cap(s.pcm.Data), len(buf)-filled)]
		n, err := s.dec.PCMBuffer(s.pcm)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("decode %s: %w", s.path, err)
		}
		if n == 0 {
			if rewound {
				return errors.New("wav file contains no samples")
			}
			// Rewind also seeks forward to the PCM chunk.
			if err := s.dec.Rewind(); err != nil {
				return fmt.Errorf("rewind %s: %w", s.path, err)
			}
			rewound = true
			continue
		}
		rewound = false
		for i, v := range s.pcm.Data[:n] {
			buf[filled+i] = float32(v-s.offset) * s.scale
		}
		filled += n
	}

	s.pace.wait()
	return nil
}

// Close releases the file.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.open = false
	s.dec = nil
	return s.file.Close()
}

func (s *FileSource) SampleRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}

func (s *FileSource) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels
}

func (s *FileSource) Name() string { return "file:" + s.path }
