// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"testing"
)

func TestGateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.1, 0.0},       // Below min
		{math.NaN(), 0.0}, // Invalid
		{0.0, 0.0},        // Minimum
		{0.5, 0.5},        // Middle
		{1.0, 1.0},        // Maximum
		{1.5, 1.0},        // Above max
	}

	g := NewGate(0)
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f", tt.input), func(t *testing.T) {
			g.SetThreshold(tt.input)
			if got := g.Threshold(); math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("Gate threshold: got %.3f, want %.3f", got, tt.expected)
			}
		})
	}
}

func TestGateOpen(t *testing.T) {
	quiet := []float32{0.0001, -0.0002, 0.0001}
	loud := []float32{0.1, -0.8, 0.3}
	silence := make([]float32, 64)

	tests := []struct {
		desc      string
		buffer    []float32
		threshold float64
		open      bool
	}{
		{"Silence/Zero threshold", silence, 0, false},
		{"Quiet/Low threshold", quiet, 0.0001, true},
		{"Quiet/Mid threshold", quiet, 0.1, false},
		{"Loud/Mid threshold", loud, 0.1, true},
		{"Loud/Negative peak counts", loud, 0.5, true},
		{"Loud/High threshold", loud, 0.9, false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			g := NewGate(tt.threshold)
			if got := g.Open(tt.buffer); got != tt.open {
				t.Errorf("Open() = %v, want %v (peak %f)", got, tt.open, Peak(tt.buffer))
			}
		})
	}
}

func TestPeakIgnoresNonFinite(t *testing.T) {
	samples := []float32{0.2, float32(math.Inf(-1)), float32(math.NaN()), -0.4}
	if got := Peak(samples); got != 0.4 {
		t.Errorf("Peak = %f, want 0.4", got)
	}
}

func TestGateHotPathZeroAllocs(t *testing.T) {
	g := NewGate(0.01)
	buffer := make([]float32, 1024)
	for i := range buffer {
		buffer[i] = float32(i%100) / 100
	}

	allocs := testing.AllocsPerRun(100, func() {
		_ = g.Open(buffer)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in gate hot path, got %.1f", allocs)
	}
}

func BenchmarkGateOpen(b *testing.B) {
	g := NewGate(0.01)
	buffer := make([]float32, 1024)
	for i := range buffer {
		buffer[i] = float32(i%100) / 100
	}

	b.ReportAllocs()
	for b.Loop() {
		_ = g.Open(buffer)
	}
}
