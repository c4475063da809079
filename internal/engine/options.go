// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"time"

	"beat/internal/analysis"
	"beat/internal/audio"
	"beat/internal/config"
)

// Options configure one engine.
type Options struct {
	Analysis      analysis.Options
	Capture       audio.CaptureConfig
	GateThreshold float64

	Floor       analysis.FloorConfig
	Sensitivity analysis.SensitivityConfig
	Visual      analysis.VisualParams

	BeatThreshold float64
	BeatRatio     float64
	BeatCooldown  time.Duration
}

// DefaultOptions returns options for barCount bars with stock settings.
func DefaultOptions(barCount int) Options {
	return Options{
		Analysis: analysis.DefaultOptions(barCount),
		Capture: audio.CaptureConfig{
			BlockFrames:    config.DefaultFramesPerBuffer,
			BackoffInitial: config.DefaultBackoffInitial,
			BackoffMax:     config.DefaultBackoffMax,
			StopTimeout:    config.DefaultStopTimeout,
		},
		GateThreshold: config.DefaultGateThreshold,
		Floor:         analysis.DefaultFloorConfig(),
		Sensitivity: analysis.SensitivityConfig{
			Recommended: config.DefaultSensitivityRecommended,
			Manual:      config.DefaultSensitivity,
			Auto:        analysis.DefaultSensitivity,
		},
		Visual: analysis.DefaultVisualParams(),
	}
}

// OptionsFromConfig maps the loaded configuration onto engine options for
// barCount bars. The only error is an unknown window function name.
func OptionsFromConfig(cfg *config.Config, barCount int) (Options, error) {
	win, err := analysis.ParseWindowFunc(cfg.Analysis.FFTWindow)
	if err != nil {
		return Options{}, fmt.Errorf("analysis.fft_window: %w", err)
	}

	a := cfg.Analysis
	opts := DefaultOptions(barCount)
	opts.Analysis = analysis.Options{
		BarCount:      barCount,
		Window:        win,
		MinFrequency:  a.MinFrequency,
		MaxFrequency:  a.MaxFrequency,
		BandSmoothing: a.BandSmoothing,
	}
	opts.Capture = audio.CaptureConfig{
		BlockFrames:    cfg.Audio.FramesPerBuffer,
		BackoffInitial: cfg.Engine.BackoffInitial,
		BackoffMax:     cfg.Engine.BackoffMax,
		StopTimeout:    cfg.Engine.StopTimeout,
	}
	opts.GateThreshold = cfg.Audio.GateThreshold
	opts.Floor = analysis.FloorConfig{
		Dynamic:  a.Floor.Dynamic,
		Manual:   a.Floor.Manual,
		Ratio:    a.Floor.Ratio,
		Headroom: a.Floor.Headroom,
		Min:      a.Floor.Min,
		Max:      a.Floor.Max,
		Alpha:    a.Floor.Alpha,
	}
	opts.Sensitivity.Recommended = a.Sensitivity.Recommended
	opts.Sensitivity.Manual = a.Sensitivity.Value
	opts.Visual = VisualParams(a.VisualMode, a.Attack, a.Decay, a.PulseMix)
	return opts, nil
}

// VisualParams builds the parameters for a named visual mode. Unknown names
// give Spectrum.
func VisualParams(mode string, attack, decay, mix float64) analysis.VisualParams {
	if mode == config.VisualPulse {
		return analysis.Pulse{Attack: attack, Decay: decay, Mix: mix}
	}
	return analysis.Spectrum{Attack: attack, Decay: decay}
}
