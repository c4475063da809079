// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// Gate decides whether a captured block carries audible signal. It does
// not drop blocks; it only feeds the engine's last-observed-audio time.
type Gate struct {
	threshold atomic.Uint32 // float32 bits
}

// NewGate returns a gate with the given threshold, clamped to [0, 1].
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if math.IsNaN(threshold) || threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold.Store(math.Float32bits(float32(threshold)))
}

// Threshold returns the current threshold.
func (g *Gate) Threshold() float64 {
	return float64(math.Float32frombits(g.threshold.Load()))
}

// Open reports whether the block's peak absolute amplitude exceeds the
// threshold.
func (g *Gate) Open(samples []float32) bool {
	return Peak(samples) > math.Float32frombits(g.threshold.Load())
}

// Peak returns the largest absolute finite sample value. Clearing the sign
// bit gives the absolute value, and for non-negative floats the bit patterns
// order the same way as the values.
func Peak(samples []float32) float32 {
	var peak uint32
	for _, s := range samples {
		if a := math.Float32bits(s) &^ (1 << 31); a > peak && a < 0x7f800000 {
			peak = a
		}
	}
	return math.Float32frombits(peak)
}
