package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/martinbojnansky/flashback/internal/domain/onsets"
	"github.com/martinbojnansky/flashback/internal/domain/slicing"
	"github.com/martinbojnansky/flashback/internal/domain/spectral"
	"github.com/martinbojnansky/flashback/internal/ports"
	"github.com/martinbojnansky/flashback/internal/types"
)

type Deps struct {
	Codec ports.AudioCodec
	Logf  func(format string, args ...any)
}

// Config is the full analysis parameter set. SampleRate is the fallback for
// raw sample input; decoded sources carry their own rate.
type Config struct {
	SampleRate  int
	FrameSize   int
	HopSize     int
	ODFs        []string
	Weights     []float64
	Sensitivity float64
}

func DefaultConfig() Config {
	return Config{
		SampleRate:  44100,
		FrameSize:   1024,
		HopSize:     512,
		ODFs:        []string{"hfc", "complex"},
		Weights:     []float64{0.5, 0.5},
		Sensitivity: 0.65,
	}
}

// Analyzer runs onset segmentation. Analyses may run concurrently; the
// configuration is snapshotted at the start of each run and only replaced
// atomically, never mutated in place.
type Analyzer struct {
	d Deps

	mu  sync.RWMutex
	cfg Config
}

func New(d Deps) *Analyzer {
	if d.Logf == nil {
		d.Logf = func(string, ...any) {}
	}
	return &Analyzer{d: d, cfg: DefaultConfig()}
}

// Config returns a copy of the active configuration.
func (a *Analyzer) Config() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.clone()
}

func (c Config) clone() Config {
	c.ODFs = append([]string(nil), c.ODFs...)
	c.Weights = append([]float64(nil), c.Weights...)
	return c
}

var allowedParams = map[string]bool{
	"sampleRate":  true,
	"frameSize":   true,
	"hopSize":     true,
	"odfs":        true,
	"odfsWeights": true,
	"sensitivity": true,
}

// Configure applies a keyed parameter update. The update is all-or-nothing:
// unknown keys, a lone odfs/odfsWeights, mismatched list lengths or invalid
// values reject the whole set and leave the active configuration in effect.
func (a *Analyzer) Configure(params map[string]any) error {
	if len(params) == 0 {
		return &onsets.ConfigurationError{Reason: "empty parameter set"}
	}

	var unknown []string
	for k := range params {
		if !allowedParams[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &onsets.ConfigurationError{Keys: unknown, Reason: "unrecognized parameter"}
	}

	_, hasODFs := params["odfs"]
	_, hasWeights := params["odfsWeights"]
	if hasODFs != hasWeights {
		return &onsets.ConfigurationError{
			Keys:   []string{"odfs", "odfsWeights"},
			Reason: "odfs and odfsWeights must always be updated together",
		}
	}

	next := a.Config()
	for key, value := range params {
		if err := apply(&next, key, value); err != nil {
			return err
		}
	}
	if err := spectral.Validate(next.FrameSize, next.HopSize); err != nil {
		return err
	}
	if err := next.detectorConfig(next.SampleRate).Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()
	a.d.Logf("analysis parameters updated: %v", paramKeys(params))
	return nil
}

func apply(cfg *Config, key string, value any) error {
	bad := func() error {
		return &onsets.ConfigurationError{Keys: []string{key}, Reason: fmt.Sprintf("unexpected value of type %T", value)}
	}
	switch key {
	case "sampleRate":
		v, ok := value.(int)
		if !ok {
			return bad()
		}
		cfg.SampleRate = v
	case "frameSize":
		v, ok := value.(int)
		if !ok {
			return bad()
		}
		cfg.FrameSize = v
	case "hopSize":
		v, ok := value.(int)
		if !ok {
			return bad()
		}
		cfg.HopSize = v
	case "odfs":
		v, ok := value.([]string)
		if !ok {
			return bad()
		}
		cfg.ODFs = append([]string(nil), v...)
	case "odfsWeights":
		v, ok := value.([]float64)
		if !ok {
			return bad()
		}
		cfg.Weights = append([]float64(nil), v...)
	case "sensitivity":
		v, ok := value.(float64)
		if !ok {
			return bad()
		}
		cfg.Sensitivity = v
	}
	return nil
}

func (c Config) detectorConfig(rate int) onsets.Config {
	return onsets.Config{
		SampleRate:  rate,
		HopSize:     c.HopSize,
		ODFs:        c.ODFs,
		Weights:     c.Weights,
		Sensitivity: c.Sensitivity,
	}
}

func paramKeys(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Result is one completed analysis.
type Result struct {
	Signal    types.Signal
	Onsets    []float64
	Slices    []slicing.Slice
	Durations []float64
}

// Analyze decodes the source and segments it.
func (a *Analyzer) Analyze(ctx context.Context, data []byte) (Result, error) {
	sig, err := a.d.Codec.Decode(data)
	if err != nil {
		return Result{}, fmt.Errorf("decode audio: %w", err)
	}
	return a.AnalyzeSignal(ctx, sig)
}

// AnalyzeSignal segments an already-decoded signal: frames, onset detection,
// slicing. Zero detected onsets yield a single slice spanning the signal.
func (a *Analyzer) AnalyzeSignal(ctx context.Context, sig types.Signal) (Result, error) {
	cfg := a.Config()
	rate := sig.Rate
	if rate <= 0 {
		rate = cfg.SampleRate
		sig.Rate = rate
	}

	ex, err := spectral.NewExtractor(cfg.FrameSize, cfg.HopSize)
	if err != nil {
		return Result{}, err
	}
	frames := ex.Frames(sig.Samples).Collect()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	positions, err := onsets.Detect(frames, cfg.detectorConfig(rate))
	if err != nil {
		return Result{}, err
	}
	a.d.Logf("onsets analyzed: %d in %d frames", len(positions), len(frames))

	slices := slicing.Cut(sig, positions)
	return Result{
		Signal:    sig,
		Onsets:    positions,
		Slices:    slices,
		Durations: slicing.Durations(slices, rate),
	}, nil
}
