// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"beat/internal/config"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestNewSource(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{config.SourcePortAudio, "portaudio:-1"},
		{config.SourceLoopback, "loopback"},
		{config.SourceFile, "file:in.wav"},
		{config.SourceTone, "tone"},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			cfg := config.Default().Audio
			cfg.Source = tt.source
			cfg.FilePath = "in.wav"
			src, err := NewSource(cfg)
			if err != nil {
				t.Fatalf("NewSource: %v", err)
			}
			if src.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.want)
			}
		})
	}

	cfg := config.Default().Audio
	cfg.Source = "jack"
	if _, err := NewSource(cfg); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestToneSource(t *testing.T) {
	src := NewToneSource(testSampleRate, 2, 440, 0.5)
	buf := make([]float32, testFrameSize*2)

	if err := src.Read(buf); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Read before Open = %v, want ErrSourceClosed", err)
	}

	if err := src.Open(testFrameSize); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if err := src.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if peak := Peak(buf); math.Abs(float64(peak)-0.5) > 0.01 {
		t.Errorf("peak = %f, want about 0.5", peak)
	}
	for i := 0; i < len(buf); i += 2 {
		if buf[i] != buf[i+1] {
			t.Fatalf("channels differ at frame %d: %f vs %f", i/2, buf[i], buf[i+1])
		}
	}
}

// writeTestWAV writes n mono 16-bit samples of the given value.
func writeTestWAV(t *testing.T, n, value int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	enc := wav.NewEncoder(f, testSampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: testSampleRate},
		Data:   make([]int, n),
	}
	for i := range buf.Data {
		buf.Data[i] = value
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
	return path
}

func TestFileSourceLoops(t *testing.T) {
	path := writeTestWAV(t, 1000, 16384)
	src := NewFileSource(path)

	if err := src.Open(256); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if src.Channels() != 1 || src.SampleRate() != testSampleRate {
		t.Errorf("format = %d ch %f Hz, want 1 ch %d Hz", src.Channels(), src.SampleRate(), testSampleRate)
	}

	buf := make([]float32, 256)
	// 1000 samples: the fourth block wraps around to the start.
	for i := range 5 {
		if err := src.Read(buf); err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		for j, v := range buf {
			if v != 0.5 {
				t.Fatalf("block %d sample %d = %f, want 0.5", i, j, v)
			}
		}
	}
}

func TestFileSourceOpenErrors(t *testing.T) {
	notWAV := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(notWAV, []byte("not a wav file at all"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"Missing file", filepath.Join(t.TempDir(), "missing.wav")},
		{"Not a WAV", notWAV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFileSource(tt.path).Open(256)
			if !errors.Is(err, ErrCaptureUnavailable) {
				t.Errorf("Open = %v, want ErrCaptureUnavailable", err)
			}
		})
	}
}

func TestPacerResync(t *testing.T) {
	p := newPacer(441, testSampleRate) // 10ms
	if p.period.Milliseconds() != 10 {
		t.Fatalf("period = %s, want 10ms", p.period)
	}
	p.wait()
	first := p.next
	p.reset()
	if !p.next.IsZero() {
		t.Error("reset did not clear the schedule")
	}
	if first.IsZero() {
		t.Error("wait did not schedule the next block")
	}
}
