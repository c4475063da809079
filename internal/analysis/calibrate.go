// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"slices"

	applog "beat/internal/log"
)

// Calibration defaults.
const (
	CalibrationTarget  = 0.7 // desired peak bar level
	CalibrationWindow  = 30  // passes per calibration round
	CalibrationMin     = 0.5
	CalibrationMax     = 8.0
	calibrationSilence = 1e-3 // peaks below this are ignored
)

// Calibrator derives the recommended sensitivity multiplier from the
// pre-sensitivity peaks of recent passes. After every CalibrationWindow
// audible passes it takes a high percentile of the peaks and moves the
// multiplier toward the value that would map it onto CalibrationTarget.
//
// A Calibrator is not safe for concurrent use.
type Calibrator struct {
	value   float64
	samples []float64
	rounds  int
}

// NewCalibrator starts at the default sensitivity.
func NewCalibrator() *Calibrator {
	return &Calibrator{
		value:   DefaultSensitivity,
		samples: make([]float64, 0, CalibrationWindow),
	}
}

// Observe records the pre-sensitivity peak of one pass and returns the
// current multiplier. Silent passes are ignored so a pause does not drive
// the multiplier to its maximum.
func (c *Calibrator) Observe(peak float64) float64 {
	if math.IsNaN(peak) || peak < calibrationSilence {
		return c.value
	}
	c.samples = append(c.samples, peak)
	if len(c.samples) < CalibrationWindow {
		return c.value
	}

	slices.Sort(c.samples)
	// 90th percentile, so a few transients do not set the level.
	level := c.samples[len(c.samples)*9/10]
	desired := clamp(CalibrationTarget/level, CalibrationMin, CalibrationMax)

	prev := c.value
	if c.rounds == 0 {
		c.value = desired
	} else {
		c.value = 0.7*c.value + 0.3*desired
	}
	c.rounds++
	c.samples = c.samples[:0]

	if math.Abs(c.value-prev) > 0.05 {
		applog.Debugf("Analysis: Recommended sensitivity %.2f -> %.2f (p90 peak %.4f)", prev, c.value, level)
	}
	return c.value
}

// Value returns the current multiplier.
func (c *Calibrator) Value() float64 { return c.value }

// Reset discards observations and returns to the default multiplier.
func (c *Calibrator) Reset() {
	c.value = DefaultSensitivity
	c.samples = c.samples[:0]
	c.rounds = 0
}
