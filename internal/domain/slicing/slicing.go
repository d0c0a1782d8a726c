package slicing

import (
	"math"

	"github.com/martinbojnansky/flashback/internal/types"
)

// Slice is one contiguous segment of a signal between two onset boundaries.
// Samples aliases the original signal; it is never copied.
type Slice struct {
	Start   int
	End     int
	Samples []float64
}

// Cut converts onset times to sample indices (round-half-away-from-zero) and
// partitions the signal at those boundaries. The first slice starts at sample
// zero and the last one ends at the final sample; slices are contiguous and
// non-overlapping. Zero onsets yield exactly one slice spanning the whole
// signal. An empty signal yields no slices.
func Cut(sig types.Signal, onsets []float64) []Slice {
	if len(sig.Samples) == 0 {
		return nil
	}

	bounds := []int{0}
	for _, t := range onsets {
		idx := int(math.Round(t * float64(sig.Rate)))
		if idx <= bounds[len(bounds)-1] {
			// Duplicate or non-increasing boundary, e.g. an onset at 0.
			continue
		}
		if idx >= len(sig.Samples) {
			break
		}
		bounds = append(bounds, idx)
	}
	bounds = append(bounds, len(sig.Samples))

	slices := make([]Slice, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		slices = append(slices, Slice{
			Start:   bounds[i],
			End:     bounds[i+1],
			Samples: sig.Samples[bounds[i]:bounds[i+1]],
		})
	}
	return slices
}

// Durations reports each slice's length in seconds. The resulting list is the
// sole input of the audio timeline.
func Durations(slices []Slice, rate int) []float64 {
	if rate <= 0 {
		return nil
	}
	out := make([]float64, len(slices))
	for i, s := range slices {
		out[i] = float64(s.End-s.Start) / float64(rate)
	}
	return out
}
