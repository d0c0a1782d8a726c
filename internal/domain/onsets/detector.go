package onsets

import (
	"fmt"
	"strings"

	"github.com/martinbojnansky/flashback/internal/domain/spectral"
)

const (
	// minInterOnsetFrames is the minimum distance between two picked onsets.
	minInterOnsetFrames = 5
	// silenceThreshold gates peaks on the max-normalized novelty curve.
	silenceThreshold = 0.02
)

// ConfigurationError rejects an invalid detector parameter set. Keys names
// the offending parameters; the active configuration stays untouched.
type ConfigurationError struct {
	Keys   []string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if len(e.Keys) == 0 {
		return "onsets: " + e.Reason
	}
	return fmt.Sprintf("onsets: %s (%s)", e.Reason, strings.Join(e.Keys, ", "))
}

// Config parameterizes one detection run.
type Config struct {
	SampleRate  int
	HopSize     int
	ODFs        []string
	Weights     []float64
	Sensitivity float64
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return &ConfigurationError{Keys: []string{"sampleRate"}, Reason: fmt.Sprintf("sample rate must be positive, got %d", c.SampleRate)}
	}
	if c.HopSize <= 0 {
		return &ConfigurationError{Keys: []string{"hopSize"}, Reason: fmt.Sprintf("hop size must be positive, got %d", c.HopSize)}
	}
	if len(c.ODFs) == 0 {
		return &ConfigurationError{Keys: []string{"odfs"}, Reason: "at least one onset-detection function is required"}
	}
	if len(c.ODFs) != len(c.Weights) {
		return &ConfigurationError{
			Keys:   []string{"odfs", "odfsWeights"},
			Reason: fmt.Sprintf("odfs and odfsWeights must be equal length, got %d and %d", len(c.ODFs), len(c.Weights)),
		}
	}
	for _, name := range c.ODFs {
		if _, ok := funcs[name]; !ok {
			return &ConfigurationError{Keys: []string{"odfs"}, Reason: fmt.Sprintf("unknown onset-detection function %q", name)}
		}
	}
	for _, w := range c.Weights {
		if w < 0 {
			return &ConfigurationError{Keys: []string{"odfsWeights"}, Reason: fmt.Sprintf("weights must be non-negative, got %v", w)}
		}
	}
	if c.Sensitivity < 0 || c.Sensitivity >= 1 {
		return &ConfigurationError{Keys: []string{"sensitivity"}, Reason: fmt.Sprintf("sensitivity must be in [0,1), got %v", c.Sensitivity)}
	}
	return nil
}

// Detect computes one curve per configured function, combines them with the
// configured weights and picks peaks. Onset positions are returned in
// seconds, ascending. No detectable onsets is a valid empty result.
func Detect(frames []spectral.Frame, cfg Config) ([]float64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, nil
	}

	novelty := make([]float64, len(frames))
	for i, name := range cfg.ODFs {
		curve := funcs[name](frames)
		// Each curve has its own numeric scale; normalize before weighting
		// so the configured weights keep their meaning.
		normalize(curve)
		for j, v := range curve {
			novelty[j] += cfg.Weights[i] * v
		}
	}
	if !normalize(novelty) {
		return nil, nil
	}

	frameRate := float64(cfg.SampleRate) / float64(cfg.HopSize)
	alpha := 1 - cfg.Sensitivity
	return pickPeaks(novelty, alpha, frameRate), nil
}

// normalize scales the curve to a max of 1. Returns false for an all-zero
// curve, which it leaves untouched.
func normalize(curve []float64) bool {
	var max float64
	for _, v := range curve {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return false
	}
	for i := range curve {
		curve[i] /= max
	}
	return true
}

// pickPeaks selects local maxima of the normalized novelty curve that rise
// above an adaptive threshold scaled by alpha, at least minInterOnsetFrames
// apart and above the silence gate.
func pickPeaks(novelty []float64, alpha, frameRate float64) []float64 {
	window := int(frameRate / 4)
	if window < 1 {
		window = 1
	}

	var onsets []float64
	last := -2 * minInterOnsetFrames
	for i, v := range novelty {
		if v <= silenceThreshold {
			continue
		}
		if i > 0 && novelty[i-1] > v {
			continue
		}
		if i+1 < len(novelty) && novelty[i+1] > v {
			continue
		}
		if v < alpha*localMean(novelty, i, window) {
			continue
		}
		if i-last < minInterOnsetFrames {
			continue
		}
		last = i
		onsets = append(onsets, float64(i)/frameRate)
	}
	return onsets
}

func localMean(curve []float64, center, window int) float64 {
	lo, hi := center-window, center+window
	if lo < 0 {
		lo = 0
	}
	if hi >= len(curve) {
		hi = len(curve) - 1
	}
	var sum float64
	for i := lo; i <= hi; i++ {
		sum += curve[i]
	}
	return sum / float64(hi-lo+1)
}
