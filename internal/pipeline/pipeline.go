package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/martinbojnansky/flashback/internal/domain/timeline"
	"github.com/martinbojnansky/flashback/internal/ports"
	"github.com/martinbojnansky/flashback/internal/sequencer"
	"github.com/martinbojnansky/flashback/internal/types"
	"github.com/martinbojnansky/flashback/internal/usecase"
)

type Config struct {
	Engine ports.Engine
	Codec  ports.AudioCodec
	Logf   func(format string, args ...any)

	// AutoPreview re-renders the preview from the idle signal whenever a
	// mutation left it stale. Disable to request renders manually.
	AutoPreview bool
}

func (c Config) Validate() error {
	if c.Engine == nil {
		return errors.New("transcode engine is required")
	}
	if c.Codec == nil {
		return errors.New("audio codec is required")
	}
	return nil
}

// Session owns one editing session: the analyzer, the slot arena, the job
// sequencer and the preview-staleness debounce. Mutating methods translate
// slot edits into sequencer jobs; nothing touches the virtual filesystem
// directly.
type Session struct {
	analyzer *usecase.Analyzer
	seq      *sequencer.Sequencer
	logf     func(format string, args ...any)

	mu           sync.Mutex
	arena        *timeline.Arena
	durations    []float64
	previewStale bool
	autoPreview  bool
}

func NewSession(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	s := &Session{
		analyzer:    usecase.New(usecase.Deps{Codec: cfg.Codec, Logf: logf}),
		logf:        logf,
		arena:       timeline.NewArena(),
		autoPreview: cfg.AutoPreview,
	}
	s.seq = sequencer.New(cfg.Engine,
		sequencer.WithLogf(logf),
		sequencer.WithOnIdle(s.onIdle),
	)
	return s, nil
}

// Start launches the sequencer run loop.
func (s *Session) Start(ctx context.Context) {
	s.seq.Start(ctx)
}

// Configure updates the analysis parameters (all-or-nothing).
func (s *Session) Configure(params map[string]any) error {
	return s.analyzer.Configure(params)
}

// AnalyzeAudio segments the audio source, adopts the resulting slice
// durations as the session timeline and schedules the audio ingest.
func (s *Session) AnalyzeAudio(ctx context.Context, file types.File) ([]float64, error) {
	res, err := s.analyzer.Analyze(ctx, file.Data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.durations = res.Durations
	s.mu.Unlock()

	s.seq.Enqueue(sequencer.IngestAudio{File: file})
	return append([]float64(nil), res.Durations...), nil
}

// Durations returns the current slice-duration list.
func (s *Session) Durations() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.durations...)
}

// Slots returns the current slots in rendering order.
func (s *Session) Slots() []timeline.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.Sorted()
}

// AddSlot places a new (sourceless) slot and rebuilds the manifest.
func (s *Session) AddSlot(startIndex, endIndex int) (timeline.Slot, error) {
	s.mu.Lock()
	slot, err := timeline.NewSlot(startIndex, endIndex, s.durations)
	if err != nil {
		s.mu.Unlock()
		return timeline.Slot{}, err
	}
	s.arena.Put(slot)
	jobs := []sequencer.Job{sequencer.RebuildTimeline{Slots: s.arena.Sorted()}}
	s.previewStale = true
	s.mu.Unlock()

	s.seq.Enqueue(jobs...)
	return slot, nil
}

// MoveSlot repositions a slot and schedules a re-trim plus manifest rebuild.
func (s *Session) MoveSlot(id string, startIndex, endIndex int) (timeline.Slot, error) {
	s.mu.Lock()
	slot, ok := s.arena.Get(id)
	if !ok {
		s.mu.Unlock()
		return timeline.Slot{}, fmt.Errorf("unknown slot %q", id)
	}
	moved, err := timeline.UpdatePosition(slot, startIndex, endIndex, s.durations)
	if err != nil {
		s.mu.Unlock()
		return timeline.Slot{}, err
	}
	s.arena.Put(moved)
	jobs := []sequencer.Job{
		sequencer.TrimVideo{Slot: moved},
		sequencer.RebuildTimeline{Slots: s.arena.Sorted()},
	}
	s.previewStale = true
	s.mu.Unlock()

	s.seq.Enqueue(jobs...)
	return moved, nil
}

// AttachVideo stores a video source for the slot and schedules its trim.
func (s *Session) AttachVideo(id string, file types.File) (timeline.Slot, error) {
	if file.Name == "" {
		return timeline.Slot{}, errors.New("video source has no name")
	}
	s.mu.Lock()
	slot, ok := s.arena.Get(id)
	if !ok {
		s.mu.Unlock()
		return timeline.Slot{}, fmt.Errorf("unknown slot %q", id)
	}
	attached := timeline.WithFile(slot, file.Name)
	s.arena.Put(attached)
	jobs := []sequencer.Job{
		sequencer.IngestVideo{File: file},
		sequencer.TrimVideo{Slot: attached},
		sequencer.RebuildTimeline{Slots: s.arena.Sorted()},
	}
	s.previewStale = true
	s.mu.Unlock()

	s.seq.Enqueue(jobs...)
	return attached, nil
}

// RetrimSlot moves the slot's playback start within its source file.
func (s *Session) RetrimSlot(id string, trimStart float64) (timeline.Slot, error) {
	s.mu.Lock()
	slot, ok := s.arena.Get(id)
	if !ok {
		s.mu.Unlock()
		return timeline.Slot{}, fmt.Errorf("unknown slot %q", id)
	}
	trimmed := timeline.Retrim(slot, trimStart)
	s.arena.Put(trimmed)
	s.previewStale = true
	s.mu.Unlock()

	s.seq.Enqueue(sequencer.TrimVideo{Slot: trimmed})
	return trimmed, nil
}

// RemoveSlot destroys a slot and cleans up its artifacts. The underlying
// source is removed only if no surviving slot shares it.
func (s *Session) RemoveSlot(id string) error {
	s.mu.Lock()
	slot, ok := s.arena.Remove(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown slot %q", id)
	}
	jobs := []sequencer.Job{
		sequencer.DeleteVideo{
			Slot:                 slot,
			Remaining:            s.arena.List(),
			DeleteSourceIfUnused: true,
		},
		sequencer.RebuildTimeline{Slots: s.arena.Sorted()},
	}
	s.previewStale = true
	s.mu.Unlock()

	s.seq.Enqueue(jobs...)
	return nil
}

// RequestPreview schedules a preview render unconditionally.
func (s *Session) RequestPreview() {
	s.seq.Enqueue(sequencer.RenderPreview{})
}

// Preview returns the current preview handle, if any.
func (s *Session) Preview() (string, bool) {
	return s.seq.Preview()
}

// PreviewData resolves a preview handle.
func (s *Session) PreviewData(url string) ([]byte, bool) {
	return s.seq.PreviewData(url)
}

// Flush blocks until the sequencer is idle and no stale preview remains.
func (s *Session) Flush(ctx context.Context) error {
	for {
		if s.quiescent() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.seq.Idle():
		}
	}
}

func (s *Session) quiescent() bool {
	s.mu.Lock()
	stale := s.previewStale && s.autoPreview
	s.mu.Unlock()
	return !stale && !s.seq.Busy()
}

// onIdle runs on the sequencer goroutine after every drain. It re-renders
// the preview only when a mutation left it stale, so back-to-back edits
// coalesce into one render.
func (s *Session) onIdle() {
	if !s.autoPreview {
		return
	}
	s.mu.Lock()
	stale := s.previewStale
	s.previewStale = false
	s.mu.Unlock()
	if stale {
		s.seq.Enqueue(sequencer.RenderPreview{})
	}
}
