package beepcodec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"

	"github.com/martinbojnansky/flashback/internal/ports"
	"github.com/martinbojnansky/flashback/internal/types"
)

// Adapter decodes mp3/wav sources into mono signals via beep.
type Adapter struct {
	quality int
}

func New() *Adapter {
	return &Adapter{quality: 4}
}

func (a *Adapter) Decode(data []byte) (types.Signal, error) {
	if len(data) < 4 {
		return types.Signal{}, fmt.Errorf("%w: source too short (%d bytes)", ports.ErrDecode, len(data))
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	rc := io.NopCloser(bytes.NewReader(data))
	if bytes.HasPrefix(data, []byte("RIFF")) {
		stream, format, err = wav.Decode(rc)
	} else {
		stream, format, err = mp3.Decode(rc)
	}
	if err != nil {
		return types.Signal{}, fmt.Errorf("%w: %v", ports.ErrDecode, err)
	}
	defer stream.Close()

	samples, err := drainMono(stream)
	if err != nil {
		return types.Signal{}, fmt.Errorf("%w: %v", ports.ErrDecode, err)
	}
	return types.Signal{Samples: samples, Rate: int(format.SampleRate)}, nil
}

func (a *Adapter) Encode(sig types.Signal, format string) ([]byte, error) {
	if format != "wav" {
		return nil, fmt.Errorf("unsupported encode format %q", format)
	}
	if sig.Rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sig.Rate)
	}
	f := beep.Format{
		SampleRate:  beep.SampleRate(sig.Rate),
		NumChannels: 1,
		Precision:   2,
	}
	w := &memSeeker{}
	if err := wav.Encode(w, &signalStreamer{sig: sig}, f); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return w.buf, nil
}

func (a *Adapter) Resample(sig types.Signal, rate int) (types.Signal, error) {
	if rate <= 0 {
		return types.Signal{}, fmt.Errorf("invalid target rate %d", rate)
	}
	if rate == sig.Rate {
		return sig, nil
	}
	r := beep.Resample(a.quality, beep.SampleRate(sig.Rate), beep.SampleRate(rate), &signalStreamer{sig: sig})
	samples, err := drainMono(r)
	if err != nil {
		return types.Signal{}, fmt.Errorf("resample: %w", err)
	}
	return types.Signal{Samples: samples, Rate: rate}, nil
}

// drainMono streams everything and downmixes stereo to mono.
func drainMono(s beep.Streamer) ([]float64, error) {
	buf := make([][2]float64, 1024)
	var out []float64
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			out = append(out, 0.5*(frame[0]+frame[1]))
		}
		if !ok {
			break
		}
	}
	return out, s.Err()
}

// signalStreamer adapts a Signal to a beep.Streamer, duplicating the mono
// channel to both outputs.
type signalStreamer struct {
	sig types.Signal
	pos int
}

func (s *signalStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.sig.Samples) {
		return 0, false
	}
	n := 0
	for i := range samples {
		if s.pos >= len(s.sig.Samples) {
			break
		}
		v := s.sig.Samples[s.pos]
		samples[i][0], samples[i][1] = v, v
		s.pos++
		n++
	}
	return n, true
}

func (s *signalStreamer) Err() error { return nil }

// memSeeker is an in-memory io.WriteSeeker so wav.Encode can patch the RIFF
// header after streaming.
type memSeeker struct {
	buf []byte
	pos int
}

func (m *memSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memSeeker) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(m.pos) + offset
	case io.SeekEnd:
		pos = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	m.pos = int(pos)
	return pos, nil
}
