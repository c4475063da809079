// SPDX-License-Identifier: MIT
/*
Package audio captures sample blocks from an audio source and hands the
freshest block to the analysis side.

Thread Safety:
- The capture goroutine is the only writer of a TripleBuffer
- A single reader consumes from it (the engine, under its lifecycle lock)
- Publish and ConsumeLatest never block and never allocate once warm
*/
package audio

import "time"

// Frame is one captured block of interleaved float samples in [-1, 1].
type Frame struct {
	Samples    []float32 // Interleaved samples, Channels per frame
	Channels   int
	SampleRate float64
	Captured   time.Time
	Seq        uint64 // Publish sequence number, starting at 1
}

// Frames returns the number of sample frames in the block.
func (f Frame) Frames() int {
	if f.Channels <= 0 {
		return len(f.Samples)
	}
	return len(f.Samples) / f.Channels
}

// Mono mixes the frame down to one channel into dst, growing it if needed,
// and returns the filled slice.
func (f Frame) Mono(dst []float32) []float32 {
	n := f.Frames()
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]

	if f.Channels <= 1 {
		copy(dst, f.Samples)
		return dst
	}

	inv := 1 / float32(f.Channels)
	for i := range n {
		var sum float32
		base := i * f.Channels
		for c := range f.Channels {
			sum += f.Samples[base+c]
		}
		dst[i] = sum * inv
	}
	return dst
}
