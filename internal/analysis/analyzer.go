// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"math/cmplx"
	"sync"

	"beat/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Default analyzer options.
const (
	DefaultBarCount      = 32
	DefaultMinFrequency  = 20.0
	DefaultMaxFrequency  = 16000.0
	DefaultBandSmoothing = 0.2
)

// Options fix the shape of an Analyzer's output.
type Options struct {
	BarCount      int
	Window        WindowFunc
	MinFrequency  float64 // lowest frequency, mapped to the center bars
	MaxFrequency  float64 // highest frequency, mapped to the edge bars; capped at Nyquist
	BandSmoothing float64 // energy band smoothing factor, (0, 1]
}

// DefaultOptions returns Hann-windowed options for barCount bars.
func DefaultOptions(barCount int) Options {
	return Options{
		BarCount:      barCount,
		Window:        Hann,
		MinFrequency:  DefaultMinFrequency,
		MaxFrequency:  DefaultMaxFrequency,
		BandSmoothing: DefaultBandSmoothing,
	}
}

func (o Options) normalize() Options {
	o.BarCount = max(o.BarCount, 1)
	if o.MinFrequency <= 0 || math.IsNaN(o.MinFrequency) {
		o.MinFrequency = DefaultMinFrequency
	}
	if o.MaxFrequency <= o.MinFrequency || math.IsNaN(o.MaxFrequency) {
		o.MaxFrequency = math.Max(DefaultMaxFrequency, o.MinFrequency*2)
	}
	o.BandSmoothing = clamp(o.BandSmoothing, 0.01, 1)
	return o
}

// Analyzer computes bar vectors from sample blocks. Its only internal state
// is scratch memory, so results depend on the Input alone. It is safe for
// concurrent use; concurrent calls are serialized.
type Analyzer struct {
	opts Options

	mu sync.Mutex
	ws workspace
}

// workspace holds the buffers of one pass, rebuilt only when the block
// size or sample rate changes.
type workspace struct {
	frames     int
	fftSize    int
	sampleRate float64

	fft       *fourier.FFT
	window    []float64
	windowSum float64
	input     []float64    // windowed mono block, zero padded to fftSize
	coeffs    []complex128 // fftSize/2 + 1 coefficients
	mag       []float64
	half      []float64
	layout    *layout
}

// NewAnalyzer returns an Analyzer producing opts.BarCount bars.
func NewAnalyzer(opts Options) *Analyzer {
	return &Analyzer{opts: opts.normalize()}
}

// BarCount returns the length of every bar vector this analyzer produces.
func (a *Analyzer) BarCount() int { return a.opts.BarCount }

// Options returns the analyzer's normalized options.
func (a *Analyzer) Options() Options { return a.opts }

// Analyze runs one pass and returns a newly allocated Result.
func (a *Analyzer) Analyze(in Input) (Result, error) {
	var out Result
	err := a.AnalyzeInto(&out, in)
	return out, err
}

// AnalyzeInto runs one pass into out, reusing out.Bars when it has room.
// out must not share memory with in.Previous.
//
// On a degenerate block out receives the previous result unchanged (a zero
// vector when there is none) and ErrDegenerateBlock is returned.
func (a *Analyzer) AnalyzeInto(out *Result, in Input) error {
	n := a.opts.BarCount
	out.Bars = resize(out.Bars, n)

	channels := max(in.Channels, 1)
	frames := len(in.Samples) / channels
	if frames < MinBlockFrames || in.SampleRate <= 0 || !finite(in.Samples) {
		a.keepPrevious(out, in)
		return ErrDegenerateBlock
	}

	floor := in.Floor
	floor.FloorConfig = floor.FloorConfig.Normalize()
	sens := in.Sensitivity.Normalize().Multiplier()

	a.mu.Lock()
	defer a.mu.Unlock()

	ws := &a.ws
	ws.prepare(frames, in.SampleRate, a.opts)
	ws.spectrum(in.Samples, channels)

	boost := ResolutionBoost(frames)
	l := ws.layout

	// Energy bands.
	prev := in.Previous.Bands
	out.Bands = EnergyBands{
		Bass:    smoothBand(prev.Bass, l.bass.rms(ws.mag)*boost, a.opts.BandSmoothing),
		Mid:     smoothBand(prev.Mid, l.mid.rms(ws.mag)*boost, a.opts.BandSmoothing),
		High:    smoothBand(prev.High, l.high.rms(ws.mag)*boost, a.opts.BandSmoothing),
		Overall: smoothBand(prev.Overall, l.overall.rms(ws.mag)*boost, a.opts.BandSmoothing),
	}

	// Noise floor from the running bass average.
	floor.BassAvg = floor.BassAvg*(1-floor.Alpha) + out.Bands.Bass.Raw*floor.Alpha
	if floor.Dynamic {
		floor.Level = clamp(floor.BassAvg*floor.Ratio+floor.Headroom, floor.Min, floor.Max)
	} else {
		floor.Level = clamp(floor.Manual, floor.Min, floor.Max)
	}
	out.Floor = floor

	// Bars: floor, sensitivity, visual mode, then smoothing.
	l.halves(ws.half, ws.mag)
	attack, decay, pulseMix := visualSettings(in.Visual)
	pulseLevel := clamp(out.Bands.Overall.Raw*sens, MinBar, 1)
	history := len(in.Previous.Bars) == n

	out.Peak = 0
	for i := range n {
		v := ws.half[l.barHalf[i]]*boost - floor.Level
		if v <= 0 {
			v = MinBar
		}
		out.Peak = math.Max(out.Peak, v)

		v = clamp(v*sens, MinBar, 1)
		if pulseMix > 0 {
			v = v*(1-pulseMix) + pulseLevel*pulseMix
		}
		if history {
			p := in.Previous.Bars[i]
			if v > p {
				v = p + (v-p)*attack
			} else {
				v = p + (v-p)*decay
			}
		}
		out.Bars[i] = clamp(v, MinBar, 1)
	}
	return nil
}

// keepPrevious copies the previous result into out for a degenerate block.
func (a *Analyzer) keepPrevious(out *Result, in Input) {
	if len(in.Previous.Bars) == len(out.Bars) {
		copy(out.Bars, in.Previous.Bars)
	} else {
		clear(out.Bars)
	}
	out.Bands = in.Previous.Bands
	out.Floor = in.Floor
	out.Peak = in.Previous.Peak
}

// ResolutionBoost scales bar strength up for small blocks, whose coarser
// bins spread energy thinner, and down for large ones.
func ResolutionBoost(frames int) float64 {
	return clamp(1024/float64(max(256, frames)), 0.5, 3.0)
}

func (ws *workspace) prepare(frames int, sampleRate float64, opts Options) {
	fftSize := bitint.NextPowerOfTwo(frames)
	if ws.fftSize != fftSize {
		ws.fft = fourier.NewFFT(fftSize)
		ws.input = make([]float64, fftSize)
		ws.coeffs = make([]complex128, fftSize/2+1)
		ws.mag = make([]float64, fftSize/2+1)
		ws.fftSize = fftSize
	}
	if ws.frames != frames {
		ws.window = resize(ws.window, frames)
		ws.windowSum = applyWindow(ws.window, opts.Window)
		ws.frames = frames
	}
	if !ws.layout.matches(fftSize, sampleRate, opts.BarCount) {
		ws.layout = newLayout(fftSize, sampleRate, opts.BarCount, opts.MinFrequency, opts.MaxFrequency)
		ws.half = resize(ws.half, ws.layout.halfCount)
	}
	ws.sampleRate = sampleRate
}

// spectrum mixes the block to mono, windows it and fills ws.mag with
// single-sided magnitudes scaled so a full-bin sine of amplitude A peaks
// near A.
func (ws *workspace) spectrum(samples []float32, channels int) {
	inv := 1 / float64(channels)
	for i := range ws.frames {
		var sum float64
		for c := range channels {
			sum += float64(samples[i*channels+c])
		}
		ws.input[i] = sum * inv * ws.window[i]
	}
	clear(ws.input[ws.frames:])

	ws.fft.Coefficients(ws.coeffs, ws.input)

	scale := 2 / ws.windowSum
	for k, c := range ws.coeffs {
		ws.mag[k] = cmplx.Abs(c) * scale
	}
}

func smoothBand(prev Band, raw, factor float64) Band {
	raw = clamp(raw, 0, 1)
	return Band{Raw: raw, Smoothed: prev.Smoothed + (raw-prev.Smoothed)*factor}
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

func finite(samples []float32) bool {
	for _, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return false
		}
	}
	return true
}
