// SPDX-License-Identifier: MIT
package utils

import "math"

// FillSine writes an interleaved sine tone into dst and returns the phase
// to continue from on the next block, so consecutive blocks join without a
// discontinuity. Every channel receives the same sample.
func FillSine(dst []float32, channels int, sampleRate, frequency, amplitude, phase float64) float64 {
	if channels < 1 {
		channels = 1
	}
	step := 2 * math.Pi * frequency / sampleRate
	for i := 0; i+channels <= len(dst); i += channels {
		v := float32(math.Sin(phase) * amplitude)
		for c := range channels {
			dst[i+c] = v
		}
		phase += step
		if phase > 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	return phase
}

// GenerateSineWave returns size mono samples of a sine at the given frequency
// with amplitude 0.5.
func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	FillSine(buffer, 1, sampleRate, frequency, 0.5, 0)
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental plus two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateNoise returns deterministic pseudo-random samples in
// [-amplitude, amplitude] using a linear congruential generator.
func GenerateNoise(size int, amplitude float64, seed uint32) []float32 {
	buffer := make([]float32, size)
	state := seed
	for i := range buffer {
		state = state*1664525 + 1013904223
		u := float64(state)/float64(math.MaxUint32)*2 - 1
		buffer[i] = float32(u * amplitude)
	}
	return buffer
}

// FindPeakIndex returns the index of the largest value within
// [startIdx, endIdx]. The first index wins on ties.
func FindPeakIndex(values []float64, startIdx, endIdx int) int {
	if len(values) == 0 {
		return 0
	}
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx >= len(values) {
		endIdx = len(values) - 1
	}

	peakIdx := startIdx
	peakValue := values[startIdx]
	for i := startIdx + 1; i <= endIdx; i++ {
		if values[i] > peakValue {
			peakValue = values[i]
			peakIdx = i
		}
	}
	return peakIdx
}
