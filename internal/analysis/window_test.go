// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"
)

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"Hann", Hann, false},
		{"hanning", Hann, false},
		{"", Hann, false},
		{"BLACKMAN", Blackman, false},
		{"blackmannuttall", BlackmanNuttall, false},
		{"bartletthann", BartlettHann, false},
		{" hamming ", Hamming, false},
		{"lanczos", Lanczos, false},
		{"nuttall", Nuttall, false},
		{"triangle", Hann, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWindowFunc(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWindowFunc(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestWindowFuncString(t *testing.T) {
	for w := BartlettHann; w <= Nuttall; w++ {
		parsed, err := ParseWindowFunc(w.String())
		if err != nil || parsed != w {
			t.Errorf("round trip of %v = %v, %v", w, parsed, err)
		}
	}
	if got := WindowFunc(42).String(); got != "WindowFunc(42)" {
		t.Errorf("String() = %q", got)
	}
}

func TestApplyWindowHann(t *testing.T) {
	coeffs := make([]float64, 1024)
	sum := applyWindow(coeffs, Hann)

	// A Hann window averages one half.
	if math.Abs(sum/float64(len(coeffs))-0.5) > 0.01 {
		t.Errorf("Hann sum = %f, want about %d", sum, len(coeffs)/2)
	}
	if coeffs[0] > 1e-9 || math.Abs(coeffs[len(coeffs)/2]-1) > 1e-3 {
		t.Errorf("Hann shape: first %f, middle %f", coeffs[0], coeffs[len(coeffs)/2])
	}

	// Unknown types fall back to Hann.
	fallback := make([]float64, 1024)
	if got := applyWindow(fallback, WindowFunc(-1)); got != sum {
		t.Errorf("fallback sum = %f, want Hann %f", got, sum)
	}
}
