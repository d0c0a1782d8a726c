package spectral

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ConfigurationError reports invalid framing geometry.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "spectral: " + e.Reason
}

// Validate checks frame geometry without allocating an extractor.
func Validate(frameSize, hopSize int) error {
	if frameSize <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("frame size must be positive, got %d", frameSize)}
	}
	if hopSize <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("hop size must be positive, got %d", hopSize)}
	}
	if hopSize > frameSize {
		return &ConfigurationError{Reason: fmt.Sprintf("hop size %d exceeds frame size %d", hopSize, frameSize)}
	}
	return nil
}

// Frame is the polar spectrum of one windowed frame, frameSize/2+1 bins.
type Frame struct {
	Magnitude []float64
	Phase     []float64
}

// Extractor cuts a signal into overlapping frames and transforms each into a
// magnitude/phase pair. A Hann window is applied to every frame before the
// real-to-complex transform.
type Extractor struct {
	frameSize int
	hopSize   int
	window    []float64
}

func NewExtractor(frameSize, hopSize int) (*Extractor, error) {
	if err := Validate(frameSize, hopSize); err != nil {
		return nil, err
	}
	window := make([]float64, frameSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(frameSize-1)))
	}
	return &Extractor{
		frameSize: frameSize,
		hopSize:   hopSize,
		window:    window,
	}, nil
}

func (e *Extractor) FrameSize() int { return e.frameSize }
func (e *Extractor) HopSize() int   { return e.hopSize }

// Frames returns a restartable sequence over the full frames of samples.
// Trailing samples that do not fill a whole frame are dropped, never padded.
// An empty signal yields an empty sequence.
func (e *Extractor) Frames(samples []float64) *Frames {
	n := 0
	if len(samples) >= e.frameSize {
		n = (len(samples)-e.frameSize)/e.hopSize + 1
	}
	return &Frames{
		ex:      e,
		samples: samples,
		n:       n,
		fft:     fourier.NewFFT(e.frameSize),
	}
}

// Frames iterates lazily over the spectra of a signal. Each sequence owns its
// transform scratch space, so concurrent analyses never share state.
type Frames struct {
	ex      *Extractor
	samples []float64
	fft     *fourier.FFT
	n       int
	pos     int
	buf     []float64
	coeffs  []complex128
}

// Len reports the total number of full frames in the sequence.
func (f *Frames) Len() int { return f.n }

// Reset rewinds the sequence to the first frame.
func (f *Frames) Reset() { f.pos = 0 }

// Next computes and returns the next frame, or ok=false past the end.
func (f *Frames) Next() (Frame, bool) {
	if f.pos >= f.n {
		return Frame{}, false
	}
	off := f.pos * f.ex.hopSize
	f.pos++

	if f.buf == nil {
		f.buf = make([]float64, f.ex.frameSize)
		f.coeffs = make([]complex128, f.ex.frameSize/2+1)
	}
	for i, s := range f.samples[off : off+f.ex.frameSize] {
		f.buf[i] = s * f.ex.window[i]
	}
	f.coeffs = f.fft.Coefficients(f.coeffs, f.buf)

	frame := Frame{
		Magnitude: make([]float64, len(f.coeffs)),
		Phase:     make([]float64, len(f.coeffs)),
	}
	for i, c := range f.coeffs {
		frame.Magnitude[i] = cmplx.Abs(c)
		frame.Phase[i] = cmplx.Phase(c)
	}
	return frame, true
}

// Collect drains the remaining frames into a slice.
func (f *Frames) Collect() []Frame {
	out := make([]Frame, 0, f.n-f.pos)
	for {
		fr, ok := f.Next()
		if !ok {
			return out
		}
		out = append(out, fr)
	}
}
