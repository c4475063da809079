// SPDX-License-Identifier: MIT
package audio

import (
	"sync"
	"testing"
	"time"
)

const (
	testSampleRate = 44100
	testFrameSize  = 512
)

func constantFrame(buf []float32, v float32) Frame {
	for i := range buf {
		buf[i] = v
	}
	return Frame{Samples: buf, Channels: 1, SampleRate: testSampleRate, Captured: time.Now()}
}

func TestTripleBufferConsumeWithoutPublish(t *testing.T) {
	tb := NewTripleBuffer(testFrameSize)
	if _, ok := tb.ConsumeLatest(); ok {
		t.Fatal("ConsumeLatest on empty buffer returned a frame")
	}
}

func TestTripleBufferSecondConsumeIsEmpty(t *testing.T) {
	tb := NewTripleBuffer(testFrameSize)
	buf := make([]float32, testFrameSize)

	tb.Publish(constantFrame(buf, 0.25))

	f, ok := tb.ConsumeLatest()
	if !ok {
		t.Fatal("first ConsumeLatest returned no frame")
	}
	if f.Samples[0] != 0.25 || f.Seq != 1 {
		t.Errorf("frame = {sample %f, seq %d}, want {0.25, 1}", f.Samples[0], f.Seq)
	}

	if _, ok := tb.ConsumeLatest(); ok {
		t.Error("second ConsumeLatest without publish returned a frame")
	}
}

func TestTripleBufferLatestWins(t *testing.T) {
	tb := NewTripleBuffer(testFrameSize)
	buf := make([]float32, testFrameSize)

	for i := 1; i <= 5; i++ {
		tb.Publish(constantFrame(buf, float32(i)))
	}

	f, ok := tb.ConsumeLatest()
	if !ok {
		t.Fatal("ConsumeLatest returned no frame")
	}
	if f.Samples[0] != 5 || f.Seq != 5 {
		t.Errorf("got sample %f seq %d, want the fifth frame", f.Samples[0], f.Seq)
	}
	if tb.Published() != 5 || tb.Consumed() != 1 {
		t.Errorf("published/consumed = %d/%d, want 5/1", tb.Published(), tb.Consumed())
	}
}

func TestTripleBufferPublishCopies(t *testing.T) {
	tb := NewTripleBuffer(testFrameSize)
	buf := make([]float32, testFrameSize)

	tb.Publish(constantFrame(buf, 1))
	buf[0] = 99 // Writer reuses its buffer immediately.

	f, _ := tb.ConsumeLatest()
	if f.Samples[0] != 1 {
		t.Errorf("published frame aliased the writer's buffer: got %f", f.Samples[0])
	}
}

func TestTripleBufferNoTornFrames(t *testing.T) {
	tb := NewTripleBuffer(testFrameSize)
	const publishes = 20000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]float32, testFrameSize)
		for i := 1; i <= publishes; i++ {
			tb.Publish(constantFrame(buf, float32(i)))
		}
	}()

	var lastSeq uint64
	deadline := time.Now().Add(5 * time.Second)
	for lastSeq < publishes && time.Now().Before(deadline) {
		f, ok := tb.ConsumeLatest()
		if !ok {
			continue
		}
		if f.Seq <= lastSeq {
			t.Fatalf("sequence went backwards: %d after %d", f.Seq, lastSeq)
		}
		want := f.Samples[0]
		for i, v := range f.Samples {
			if v != want {
				t.Fatalf("torn frame seq %d: sample %d = %f, sample 0 = %f", f.Seq, i, v, want)
			}
		}
		if uint64(want) != f.Seq {
			t.Fatalf("frame seq %d carries samples of frame %f", f.Seq, want)
		}
		lastSeq = f.Seq
	}
	wg.Wait()

	if lastSeq != publishes {
		// The final publish must always become visible.
		if f, ok := tb.ConsumeLatest(); !ok || f.Seq != publishes {
			t.Errorf("final frame not observed: last seq %d", lastSeq)
		}
	}
}

func TestTripleBufferHotPathZeroAllocs(t *testing.T) {
	tb := NewTripleBuffer(testFrameSize)
	frame := constantFrame(make([]float32, testFrameSize), 0.5)

	allocs := testing.AllocsPerRun(100, func() {
		tb.Publish(frame)
		_, _ = tb.ConsumeLatest()
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in publish/consume, got %.1f", allocs)
	}
}

func TestFrameMono(t *testing.T) {
	f := Frame{Samples: []float32{1, 0, 0.5, 0.5, -1, 1}, Channels: 2}
	mono := f.Mono(nil)
	want := []float32{0.5, 0.5, 0}
	if len(mono) != len(want) {
		t.Fatalf("len = %d, want %d", len(mono), len(want))
	}
	for i := range want {
		if mono[i] != want[i] {
			t.Errorf("mono[%d] = %f, want %f", i, mono[i], want[i])
		}
	}
	if f.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", f.Frames())
	}
}

func BenchmarkTripleBufferPublish(b *testing.B) {
	tb := NewTripleBuffer(testFrameSize)
	frame := constantFrame(make([]float32, testFrameSize), 0.5)

	b.ReportAllocs()
	for b.Loop() {
		tb.Publish(frame)
	}
}
