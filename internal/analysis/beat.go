// SPDX-License-Identifier: MIT
package analysis

import (
	"time"

	applog "beat/internal/log"
)

// Beat detector defaults.
const (
	DefaultBeatThreshold = 0.05
	DefaultBeatRatio     = 1.4
	DefaultBeatCooldown  = 150 * time.Millisecond
)

// BeatDetector flags kick-like onsets: passes where the raw bass energy
// jumps above its smoothed level by a ratio. A cooldown stops a single
// kick from firing on consecutive passes.
//
// A BeatDetector is not safe for concurrent use.
type BeatDetector struct {
	threshold float64       // raw bass level below which nothing fires
	ratio     float64       // raw over smoothed bass needed to fire
	cooldown  time.Duration // minimum gap between beats
	last      time.Time
	count     uint64
}

// NewBeatDetector creates a detector. Non-positive arguments take the
// defaults.
func NewBeatDetector(threshold, ratio float64, cooldown time.Duration) *BeatDetector {
	if threshold <= 0 {
		threshold = DefaultBeatThreshold
	}
	if ratio <= 1 {
		ratio = DefaultBeatRatio
	}
	if cooldown <= 0 {
		cooldown = DefaultBeatCooldown
	}
	applog.Debugf("Analysis: Initializing BeatDetector (Threshold: %.2f, MinRatio: %.2f, Cooldown: %s)", threshold, ratio, cooldown)
	return &BeatDetector{threshold: threshold, ratio: ratio, cooldown: cooldown}
}

// Detect reports whether bands, observed at now, is an onset.
func (d *BeatDetector) Detect(bands EnergyBands, now time.Time) bool {
	bass := bands.Bass
	if bass.Raw <= d.threshold || bass.Raw <= bass.Smoothed*d.ratio {
		return false
	}
	if !d.last.IsZero() && now.Sub(d.last) < d.cooldown {
		return false
	}
	d.last = now
	d.count++
	return true
}

// Count returns the number of beats detected.
func (d *BeatDetector) Count() uint64 { return d.count }

// Reset clears the cooldown.
func (d *BeatDetector) Reset() { d.last = time.Time{} }
