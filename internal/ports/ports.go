package ports

import (
	"context"
	"errors"

	"github.com/martinbojnansky/flashback/internal/types"
)

// ErrDecode marks unreadable source media. Decoders wrap it so callers can
// test with errors.Is.
var ErrDecode = errors.New("cannot decode source media")

// AudioCodec decodes and re-encodes audio sources.
type AudioCodec interface {
	// Decode produces a mono signal from encoded bytes. Malformed input
	// fails with an error wrapping ErrDecode; no partial signal is produced.
	Decode(data []byte) (types.Signal, error)
	// Encode renders samples into the named container format.
	Encode(sig types.Signal, format string) ([]byte, error)
	// Resample converts the signal to the target rate.
	Resample(sig types.Signal, rate int) (types.Signal, error)
}

// Engine is a transcoding command executor over a session-scoped virtual
// filesystem of named artifacts. All access to that filesystem happens
// inside sequencer job execution; the single-job-at-a-time discipline is the
// only synchronization.
type Engine interface {
	// Load initializes the engine. Called lazily before the first job.
	Load(ctx context.Context) error
	Loaded() bool
	// Run executes one transcode command. A non-zero exit is returned as an
	// error; any outputs the command already flushed remain in place.
	Run(ctx context.Context, args ...string) error
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	Unlink(name string) error
}
