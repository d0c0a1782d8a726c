package onsets

import (
	"math"
	"sort"

	"github.com/martinbojnansky/flashback/internal/domain/spectral"
)

// Func computes one novelty value per frame from a polar spectrogram.
type Func func(frames []spectral.Frame) []float64

var funcs = map[string]Func{
	"hfc":     hfc,
	"flux":    flux,
	"complex": complexDomain,
	"rms":     rms,
}

// Names lists the registered onset-detection functions.
func Names() []string {
	out := make([]string, 0, len(funcs))
	for name := range funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// hfc is the Masri high-frequency content measure: energy weighted by bin
// index, so broadband attacks with high-frequency energy stand out.
func hfc(frames []spectral.Frame) []float64 {
	curve := make([]float64, len(frames))
	for i, f := range frames {
		var sum float64
		for k, m := range f.Magnitude {
			sum += float64(k) * m * m
		}
		curve[i] = sum
	}
	return curve
}

// flux is the half-wave-rectified L2 spectral flux between consecutive
// magnitude spectra. The first frame has no predecessor and scores zero.
func flux(frames []spectral.Frame) []float64 {
	curve := make([]float64, len(frames))
	for i := 1; i < len(frames); i++ {
		var sum float64
		for k, m := range frames[i].Magnitude {
			if d := m - frames[i-1].Magnitude[k]; d > 0 {
				sum += d * d
			}
		}
		curve[i] = math.Sqrt(sum)
	}
	return curve
}

// complexDomain measures the deviation of each bin from the value predicted
// by the previous magnitude and linear phase extrapolation over the two
// preceding frames. Sensitive to both energy and pitch changes.
func complexDomain(frames []spectral.Frame) []float64 {
	curve := make([]float64, len(frames))
	for i := 2; i < len(frames); i++ {
		var sum float64
		cur, prev, prev2 := frames[i], frames[i-1], frames[i-2]
		for k := range cur.Magnitude {
			predPhase := 2*prev.Phase[k] - prev2.Phase[k]
			pred := cmplxFromPolar(prev.Magnitude[k], predPhase)
			actual := cmplxFromPolar(cur.Magnitude[k], cur.Phase[k])
			re := real(actual) - real(pred)
			im := imag(actual) - imag(pred)
			sum += math.Hypot(re, im)
		}
		curve[i] = sum
	}
	return curve
}

// rms is the half-wave-rectified frame-to-frame RMS energy difference.
func rms(frames []spectral.Frame) []float64 {
	energy := make([]float64, len(frames))
	for i, f := range frames {
		var sum float64
		for _, m := range f.Magnitude {
			sum += m * m
		}
		if len(f.Magnitude) > 0 {
			energy[i] = math.Sqrt(sum / float64(len(f.Magnitude)))
		}
	}
	curve := make([]float64, len(frames))
	for i := 1; i < len(frames); i++ {
		if d := energy[i] - energy[i-1]; d > 0 {
			curve[i] = d
		}
	}
	return curve
}

func cmplxFromPolar(mag, phase float64) complex128 {
	return complex(mag*math.Cos(phase), mag*math.Sin(phase))
}
