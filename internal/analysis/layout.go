// SPDX-License-Identifier: MIT
package analysis

import "math"

// warpExponent shapes the half-band edges. Higher values give the bass
// more bars.
const warpExponent = 2.5

// Energy band boundaries in Hz.
const (
	bassLowHz  = 20.0
	bassHighHz = 250.0
	midHighHz  = 4000.0
	highHighHz = 16000.0
)

// binRange is a half-open range of FFT bins.
type binRange struct{ lo, hi int }

// layout maps FFT bins to bars and energy bands for one combination of FFT
// size, sample rate and bar count.
type layout struct {
	fftSize    int
	sampleRate float64
	barCount   int
	binWidth   float64 // Hz per bin

	halfCount  int
	binHalf    []int     // per bin: half-band index, -1 when outside the range
	halfCenter []float64 // per half band: center frequency in Hz
	halfBins   []int     // per half band: number of bins it owns
	barHalf    []int     // per bar: half-band index

	bass, mid, high, overall binRange
}

func newLayout(fftSize int, sampleRate float64, barCount int, minHz, maxHz float64) *layout {
	nyquist := sampleRate / 2
	maxHz = math.Min(maxHz, nyquist)
	minHz = math.Min(minHz, maxHz)
	nBins := fftSize/2 + 1

	l := &layout{
		fftSize:    fftSize,
		sampleRate: sampleRate,
		barCount:   barCount,
		binWidth:   sampleRate / float64(fftSize),
		halfCount:  (barCount + 1) / 2,
		binHalf:    make([]int, nBins),
		barHalf:    make([]int, barCount),
	}
	l.halfCenter = make([]float64, l.halfCount)
	l.halfBins = make([]int, l.halfCount)

	edge := func(j int) float64 {
		return minHz + (maxHz-minHz)*math.Pow(float64(j)/float64(l.halfCount), warpExponent)
	}
	for j := range l.halfCount {
		l.halfCenter[j] = (edge(j) + edge(j+1)) / 2
	}

	// Each bin belongs to exactly one half band, chosen by its center
	// frequency. DC is skipped.
	l.binHalf[0] = -1
	for k := 1; k < nBins; k++ {
		f := float64(k) * l.binWidth
		if f < minHz || f > maxHz || maxHz <= minHz {
			l.binHalf[k] = -1
			continue
		}
		t := math.Pow((f-minHz)/(maxHz-minHz), 1/warpExponent)
		j := min(int(t*float64(l.halfCount)), l.halfCount-1)
		l.binHalf[k] = j
		l.halfBins[j]++
	}

	// Center-out, mirrored: half band 0 sits on the center bar(s).
	center := barCount / 2
	for i := range barCount {
		switch {
		case barCount%2 == 1:
			l.barHalf[i] = abs(i - center)
		case i < center:
			l.barHalf[i] = center - 1 - i
		default:
			l.barHalf[i] = i - center
		}
	}

	l.bass = l.bins(bassLowHz, bassHighHz)
	l.mid = l.bins(bassHighHz, midHighHz)
	l.high = l.bins(midHighHz, math.Min(highHighHz, nyquist))
	l.overall = l.bins(bassLowHz, maxHz)
	return l
}

func (l *layout) matches(fftSize int, sampleRate float64, barCount int) bool {
	return l != nil && l.fftSize == fftSize && l.sampleRate == sampleRate && l.barCount == barCount
}

// bins returns the bins whose center lies in [lowHz, highHz). A range too
// narrow to hold a bin gets the single bin nearest its center.
func (l *layout) bins(lowHz, highHz float64) binRange {
	nBins := l.fftSize/2 + 1
	lo := max(int(math.Ceil(lowHz/l.binWidth)), 1)
	hi := min(int(math.Ceil(highHz/l.binWidth)), nBins)
	if lo >= hi {
		c := int(math.Round((lowHz + highHz) / 2 / l.binWidth))
		c = max(1, min(c, nBins-1))
		return binRange{c, c + 1}
	}
	return binRange{lo, hi}
}

// halves fills dst with one value per half band: the peak magnitude of the
// band's bins, or the magnitude interpolated at its center when the band is
// narrower than a bin.
func (l *layout) halves(dst, mag []float64) {
	for j := range dst {
		dst[j] = 0
	}
	for k, j := range l.binHalf {
		if j >= 0 && mag[k] > dst[j] {
			dst[j] = mag[k]
		}
	}
	for j, n := range l.halfBins {
		if n == 0 {
			dst[j] = l.interpolate(mag, l.halfCenter[j])
		}
	}
}

func (l *layout) interpolate(mag []float64, hz float64) float64 {
	pos := hz / l.binWidth
	i := int(pos)
	if i >= len(mag)-1 {
		return mag[len(mag)-1]
	}
	frac := pos - float64(i)
	return mag[i]*(1-frac) + mag[i+1]*frac
}

// rms returns the root mean square of mag over r.
func (r binRange) rms(mag []float64) float64 {
	var sum float64
	for _, m := range mag[r.lo:r.hi] {
		sum += m * m
	}
	return math.Sqrt(sum / float64(r.hi-r.lo))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
