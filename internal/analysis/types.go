// SPDX-License-Identifier: MIT
/*
Package analysis turns a block of audio samples into a fixed-length vector
of bar magnitudes plus energy band levels.

Analysis is a pure function of its Input. Everything that carries over
between passes (the previous bars and bands, the floor's running average,
the sensitivity multiplier) is passed in explicitly and handed back in the
Result, so identical inputs always give identical output.

Bar layout is center-out: the lowest frequencies sit on the two center
bars and frequency rises monotonically toward both edges, mirrored.
*/
package analysis

import (
	"errors"
	"math"
)

// MinBar is the smallest value any bar takes. Audio that is playing but
// quieter than the floor still renders as a visible, flat bar field.
const MinBar = 0.02

// MinBlockFrames is the shortest block analysis accepts.
const MinBlockFrames = 32

// ErrDegenerateBlock is returned with the previous result, unchanged, when
// a block is too short or holds non-finite samples.
var ErrDegenerateBlock = errors.New("degenerate sample block")

// Band is one energy band, tracked both instantaneously and smoothed.
type Band struct {
	Raw      float64 `json:"raw"`
	Smoothed float64 `json:"smoothed"`
}

// EnergyBands summarizes the spectrum in three ranges plus overall.
type EnergyBands struct {
	Bass    Band `json:"bass"`
	Mid     Band `json:"mid"`
	High    Band `json:"high"`
	Overall Band `json:"overall"`
}

// Floor settings bounds.
const (
	DefaultFloorRatio    = 0.5
	DefaultFloorHeadroom = 0.01
	DefaultFloorMin      = 0.005
	DefaultFloorMax      = 0.3
	DefaultFloorAlpha    = 0.1
	DefaultFloorManual   = 0.05
)

// FloorConfig selects how the noise floor subtracted from every bar is
// derived.
type FloorConfig struct {
	Dynamic  bool    // derive the floor from the running bass average
	Manual   float64 // fixed floor when Dynamic is false
	Ratio    float64 // fraction of the bass average used as floor
	Headroom float64 // constant added to the dynamic floor
	Min      float64
	Max      float64
	Alpha    float64 // running average weight of the newest pass
}

// DefaultFloorConfig returns a dynamic floor with the stock bounds.
func DefaultFloorConfig() FloorConfig {
	return FloorConfig{
		Dynamic:  true,
		Manual:   DefaultFloorManual,
		Ratio:    DefaultFloorRatio,
		Headroom: DefaultFloorHeadroom,
		Min:      DefaultFloorMin,
		Max:      DefaultFloorMax,
		Alpha:    DefaultFloorAlpha,
	}
}

// Normalize clamps every field into a usable range instead of rejecting
// it. Negative values become zero, inverted bounds are swapped and alpha
// is kept in (0, 1].
func (c FloorConfig) Normalize() FloorConfig {
	c.Manual = nonNegative(c.Manual)
	c.Ratio = nonNegative(c.Ratio)
	c.Headroom = nonNegative(c.Headroom)
	c.Min = math.Min(nonNegative(c.Min), 1)
	c.Max = math.Min(nonNegative(c.Max), 1)
	if c.Min > c.Max {
		c.Min, c.Max = c.Max, c.Min
	}
	c.Alpha = clamp(c.Alpha, 0.001, 1)
	return c
}

// FloorState is the floor configuration plus what it carries between
// passes.
type FloorState struct {
	FloorConfig
	BassAvg float64 // running average of raw bass energy
	Level   float64 // floor applied on the last pass
}

// NewFloorState returns a fresh state for cfg.
func NewFloorState(cfg FloorConfig) FloorState {
	return FloorState{FloorConfig: cfg.Normalize()}
}

// Sensitivity bounds.
const (
	MinSensitivity     = 0.01
	MaxSensitivity     = 10.0
	DefaultSensitivity = 2.0
)

// SensitivityConfig picks between the calibrated multiplier and a manual
// one.
type SensitivityConfig struct {
	Recommended bool
	Manual      float64
	Auto        float64 // current calibrated multiplier
}

// Normalize clamps both multipliers into [MinSensitivity, MaxSensitivity].
func (c SensitivityConfig) Normalize() SensitivityConfig {
	c.Manual = clamp(c.Manual, MinSensitivity, MaxSensitivity)
	c.Auto = clamp(c.Auto, MinSensitivity, MaxSensitivity)
	return c
}

// Multiplier returns the multiplier in effect.
func (c SensitivityConfig) Multiplier() float64 {
	if c.Recommended {
		return c.Auto
	}
	return c.Manual
}

// VisualParams are the per-mode parameters of the bar output. The set of
// modes is closed: Spectrum and Pulse.
type VisualParams interface {
	settings() (attack, decay, mix float64)
}

// Spectrum shows the bars as analyzed.
type Spectrum struct {
	Attack float64 // blend toward a rising target, (0, 1]
	Decay  float64 // blend toward a falling target, (0, 1]
}

// Pulse blends every bar toward the overall energy by Mix, so the whole
// field breathes with loudness.
type Pulse struct {
	Attack float64
	Decay  float64
	Mix    float64 // 0 is plain spectrum, 1 is flat overall energy
}

func (p Spectrum) settings() (float64, float64, float64) { return p.Attack, p.Decay, 0 }
func (p Pulse) settings() (float64, float64, float64)    { return p.Attack, p.Decay, p.Mix }

// DefaultVisualParams is a spectrum with a fast attack and slower decay.
func DefaultVisualParams() VisualParams {
	return Spectrum{Attack: 0.7, Decay: 0.25}
}

// NormalizeVisualParams clamps blend factors into (0, 1] and Mix into
// [0, 1]. A nil value becomes the default.
func NormalizeVisualParams(p VisualParams) VisualParams {
	switch v := p.(type) {
	case Spectrum:
		v.Attack = clamp(v.Attack, 0.01, 1)
		v.Decay = clamp(v.Decay, 0.01, 1)
		return v
	case Pulse:
		v.Attack = clamp(v.Attack, 0.01, 1)
		v.Decay = clamp(v.Decay, 0.01, 1)
		v.Mix = clamp(v.Mix, 0, 1)
		return v
	default:
		return DefaultVisualParams()
	}
}

// visualSettings returns the normalized blend factors of p without boxing
// a new value.
func visualSettings(p VisualParams) (attack, decay, mix float64) {
	if p == nil {
		p = DefaultVisualParams()
	}
	attack, decay, mix = p.settings()
	return clamp(attack, 0.01, 1), clamp(decay, 0.01, 1), clamp(mix, 0, 1)
}

// ModeName returns "spectrum" or "pulse".
func ModeName(p VisualParams) string {
	if _, ok := p.(Pulse); ok {
		return "pulse"
	}
	return "spectrum"
}

// Input is everything one analysis pass depends on.
type Input struct {
	Samples     []float32 // interleaved
	Channels    int
	SampleRate  float64
	Previous    Result // last result; empty Bars means no smoothing history
	Floor       FloorState
	Sensitivity SensitivityConfig
	Visual      VisualParams
}

// Result is the output of one pass.
type Result struct {
	Bars  []float64
	Bands EnergyBands
	Floor FloorState
	Peak  float64 // largest bar after the floor, before sensitivity
}

// Clone returns a copy that shares no memory with r.
func (r Result) Clone() Result {
	if r.Bars != nil {
		r.Bars = append([]float64(nil), r.Bars...)
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
