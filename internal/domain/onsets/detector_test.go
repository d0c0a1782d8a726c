package onsets

import (
	"errors"
	"math"
	"testing"

	"github.com/martinbojnansky/flashback/internal/domain/spectral"
)

func validConfig() Config {
	return Config{
		SampleRate:  44100,
		HopSize:     512,
		ODFs:        []string{"hfc", "complex"},
		Weights:     []float64{0.5, 0.5},
		Sensitivity: 0.65,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantKeys []string
	}{
		{"valid", func(c *Config) {}, nil},
		{"no odfs", func(c *Config) { c.ODFs = nil; c.Weights = nil }, []string{"odfs"}},
		{"mismatched lengths", func(c *Config) { c.Weights = []float64{1} }, []string{"odfs", "odfsWeights"}},
		{"unknown function", func(c *Config) { c.ODFs = []string{"hfc", "superflux"} }, []string{"odfs"}},
		{"negative weight", func(c *Config) { c.Weights = []float64{0.5, -0.1} }, []string{"odfsWeights"}},
		{"sensitivity too high", func(c *Config) { c.Sensitivity = 1 }, []string{"sensitivity"}},
		{"sensitivity negative", func(c *Config) { c.Sensitivity = -0.1 }, []string{"sensitivity"}},
		{"bad sample rate", func(c *Config) { c.SampleRate = 0 }, []string{"sampleRate"}},
		{"bad hop", func(c *Config) { c.HopSize = -3 }, []string{"hopSize"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantKeys == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if len(cfgErr.Keys) != len(tt.wantKeys) {
				t.Fatalf("keys = %v, want %v", cfgErr.Keys, tt.wantKeys)
			}
			for i, k := range tt.wantKeys {
				if cfgErr.Keys[i] != k {
					t.Fatalf("keys = %v, want %v", cfgErr.Keys, tt.wantKeys)
				}
			}
		})
	}
}

func TestNames(t *testing.T) {
	names := Names()
	want := []string{"complex", "flux", "hfc", "rms"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}

// burstFrames builds a synthetic spectrogram of n frames with flat broadband
// energy in the given frames and silence elsewhere.
func burstFrames(n, bins int, bursts ...int) []spectral.Frame {
	frames := make([]spectral.Frame, n)
	for i := range frames {
		frames[i] = spectral.Frame{
			Magnitude: make([]float64, bins),
			Phase:     make([]float64, bins),
		}
	}
	for _, b := range bursts {
		for k := range frames[b].Magnitude {
			frames[b].Magnitude[k] = 1
		}
	}
	return frames
}

func TestDetect_Silence(t *testing.T) {
	cfg := validConfig()
	got, err := Detect(burstFrames(200, 9), cfg)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no onsets in silence, got %v", got)
	}
}

func TestDetect_EmptyFrames(t *testing.T) {
	got, err := Detect(nil, validConfig())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil onsets for empty input, got %v", got)
	}
}

func TestDetect_InvalidConfigRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Weights = cfg.Weights[:1]
	if _, err := Detect(burstFrames(10, 9, 5), cfg); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestDetect_FindsBursts(t *testing.T) {
	cfg := Config{
		SampleRate:  44100,
		HopSize:     512,
		ODFs:        []string{"flux"},
		Weights:     []float64{1},
		Sensitivity: 0.65,
	}
	frames := burstFrames(200, 9, 40, 120)
	got, err := Detect(frames, cfg)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 onsets, got %v", got)
	}
	frameRate := float64(cfg.SampleRate) / float64(cfg.HopSize)
	for i, frame := range []int{40, 120} {
		want := float64(frame) / frameRate
		if math.Abs(got[i]-want) > 1e-9 {
			t.Fatalf("onset %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestDetect_Ascending(t *testing.T) {
	cfg := Config{
		SampleRate:  44100,
		HopSize:     512,
		ODFs:        []string{"flux", "rms"},
		Weights:     []float64{0.5, 0.5},
		Sensitivity: 0.8,
	}
	got, err := Detect(burstFrames(400, 17, 30, 90, 180, 300), cfg)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("onsets not strictly increasing: %v", got)
		}
	}
}

func TestDetect_MinInterOnsetGap(t *testing.T) {
	cfg := Config{
		SampleRate:  44100,
		HopSize:     512,
		ODFs:        []string{"flux"},
		Weights:     []float64{1},
		Sensitivity: 0.9,
	}
	// Bursts two frames apart collapse into a single onset.
	got, err := Detect(burstFrames(100, 9, 50, 52), cfg)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected bursts %d frames apart to merge, got %v", 2, got)
	}
}
