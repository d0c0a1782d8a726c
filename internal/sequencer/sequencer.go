package sequencer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/martinbojnansky/flashback/internal/domain/timeline"
	"github.com/martinbojnansky/flashback/internal/ports"
)

// Virtual filesystem artifact names, shared with the transcode engine.
const (
	audioName    = "audio.mp3"
	manifestName = "timeline.txt"
	previewName  = "preview.mp4"
)

// Sequencer is the single-worker media job queue. Jobs run strictly in
// arrival order, one at a time, against the engine's virtual filesystem; an
// idle signal fires each time the queue drains. Enqueue is the only method
// safe to call from multiple goroutines while the run loop owns everything
// else.
type Sequencer struct {
	engine  ports.Engine
	handles *HandleStore
	logf    func(format string, args ...any)
	onIdle  func()

	mu      sync.Mutex
	queue   []Job
	busy    bool
	preview string

	wake chan struct{}
	idle chan struct{}
}

type Option func(*Sequencer)

// WithLogf routes job logging. Defaults to a no-op.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Sequencer) { s.logf = logf }
}

// WithOnIdle registers a callback invoked (from the run loop goroutine)
// whenever the queue transitions busy -> idle.
func WithOnIdle(fn func()) Option {
	return func(s *Sequencer) { s.onIdle = fn }
}

func New(engine ports.Engine, opts ...Option) *Sequencer {
	s := &Sequencer{
		engine:  engine,
		handles: NewHandleStore(),
		logf:    func(string, ...any) {},
		wake:    make(chan struct{}, 1),
		idle:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the run loop. It exits when ctx is cancelled; jobs queued
// after that are never processed.
func (s *Sequencer) Start(ctx context.Context) {
	go s.run(ctx)
}

// Enqueue appends jobs in order and nudges the run loop. It never reorders
// or deduplicates; callers coalesce (e.g. request render-preview only after
// an idle signal).
func (s *Sequencer) Enqueue(jobs ...Job) {
	if len(jobs) == 0 {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, jobs...)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Busy reports whether a job is running or queued.
func (s *Sequencer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy || len(s.queue) > 0
}

// Idle signals each busy -> idle transition. The channel is buffered;
// consecutive drains coalesce if nobody is listening.
func (s *Sequencer) Idle() <-chan struct{} {
	return s.idle
}

// Preview returns the current preview handle. ok is false when no preview
// artifact exists yet, which callers treat as "nothing to preview", not as
// an error.
func (s *Sequencer) Preview() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview, s.preview != ""
}

// PreviewData resolves a preview handle to the rendered bytes.
func (s *Sequencer) PreviewData(url string) ([]byte, bool) {
	return s.handles.Get(url)
}

func (s *Sequencer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		processed := 0
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.busy = false
				s.mu.Unlock()
				break
			}
			s.busy = true
			job := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			s.process(ctx, job)
			processed++

			if ctx.Err() != nil {
				return
			}
		}
		if processed > 0 {
			s.signalIdle()
		}
	}
}

func (s *Sequencer) signalIdle() {
	select {
	case s.idle <- struct{}{}:
	default:
	}
	if s.onIdle != nil {
		s.onIdle()
	}
}

func (s *Sequencer) process(ctx context.Context, job Job) {
	if !s.engine.Loaded() {
		if err := s.engine.Load(ctx); err != nil {
			s.logf("engine load: %v", err)
			return
		}
	}
	s.logf("processing %s", job.kind())

	var err error
	switch j := job.(type) {
	case IngestAudio:
		err = s.ingestAudio(j)
	case IngestVideo:
		err = s.ingestVideo(j)
	case TrimVideo:
		err = s.trimVideo(ctx, j)
	case RebuildTimeline:
		err = s.rebuildTimeline(j)
	case RenderPreview:
		err = s.renderPreview(ctx)
	case DeleteVideo:
		err = s.deleteVideo(j)
	default:
		err = fmt.Errorf("unknown job %T", job)
	}
	if err != nil {
		// Failures are isolated to the job; the queue keeps draining.
		s.logf("%s: %v", job.kind(), err)
	}
}

func (s *Sequencer) ingestAudio(j IngestAudio) error {
	return s.engine.WriteFile(audioName, j.File.Data)
}

func (s *Sequencer) ingestVideo(j IngestVideo) error {
	if j.File.Name == "" {
		return fmt.Errorf("video source has no name")
	}
	return s.engine.WriteFile(j.File.Name, j.File.Data)
}

// trimVideo runs the two-pass trim: a fast keyframe-aligned cut, an
// exact-duration re-cut, an audio segment cut, and a final mux. A single
// keyframe seek is not frame-accurate, hence the second pass.
func (s *Sequencer) trimVideo(ctx context.Context, j TrimVideo) error {
	slot := j.Slot
	if slot.File == "" {
		// Placeholder slot; a black-frame clip is a deferred concern.
		s.logf("slot %s has no source yet, skipping trim", slot.ID)
		return nil
	}

	preTrimmed := fmt.Sprintf("pre-trimmed_%s.mp4", slot.ID)
	trimmed := fmt.Sprintf("trimmed_%s.mp4", slot.ID)
	trimmedAudio := fmt.Sprintf("audio_%s.mp3", slot.ID)
	out := slot.ID + ".mp4"

	if err := s.engine.Run(ctx,
		"-ss", FormatTime(slot.TrimStart),
		"-i", slot.File,
		"-t", FormatTime(slot.Duration),
		"-c", "copy",
		"-avoid_negative_ts", "1",
		preTrimmed,
	); err != nil {
		return fmt.Errorf("pre-trim: %w", err)
	}

	if err := s.engine.Run(ctx,
		"-i", preTrimmed,
		"-t", FormatTime(slot.Duration),
		"-c", "copy",
		trimmed,
	); err != nil {
		_ = s.engine.Unlink(preTrimmed)
		return fmt.Errorf("exact trim: %w", err)
	}
	if err := s.engine.Unlink(preTrimmed); err != nil {
		return fmt.Errorf("unlink %s: %w", preTrimmed, err)
	}

	if err := s.engine.Run(ctx,
		"-i", audioName,
		"-ss", FormatTime(slot.StartTime),
		"-t", FormatTime(slot.Duration),
		"-c", "copy",
		trimmedAudio,
	); err != nil {
		_ = s.engine.Unlink(trimmed)
		return fmt.Errorf("trim audio: %w", err)
	}

	if err := s.engine.Run(ctx,
		"-i", trimmed,
		"-i", trimmedAudio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c", "copy",
		out,
	); err != nil {
		_ = s.engine.Unlink(trimmed)
		_ = s.engine.Unlink(trimmedAudio)
		return fmt.Errorf("mux: %w", err)
	}

	if err := s.engine.Unlink(trimmed); err != nil {
		return fmt.Errorf("unlink %s: %w", trimmed, err)
	}
	if err := s.engine.Unlink(trimmedAudio); err != nil {
		return fmt.Errorf("unlink %s: %w", trimmedAudio, err)
	}
	return nil
}

func (s *Sequencer) rebuildTimeline(j RebuildTimeline) error {
	slots := timeline.SortByStart(j.Slots)
	lines := make([]string, 0, len(slots))
	for _, slot := range slots {
		// Sourceless slots have no trimmed clip to reference.
		if slot.File == "" {
			continue
		}
		lines = append(lines, "file "+slot.ID+".mp4")
	}
	return s.engine.WriteFile(manifestName, []byte(strings.Join(lines, "\n")))
}

// renderPreview concatenates the manifest's clips without re-encoding. A
// failed or empty render leaves no preview handle; that is not an error.
func (s *Sequencer) renderPreview(ctx context.Context) error {
	if err := s.engine.Run(ctx,
		"-f", "concat",
		"-safe", "0",
		"-i", manifestName,
		"-c", "copy",
		previewName,
	); err != nil {
		s.logf("render preview: %v", err)
	}

	data, err := s.engine.ReadFile(previewName)

	s.mu.Lock()
	if s.preview != "" {
		s.handles.Release(s.preview)
		s.preview = ""
	}
	if err == nil {
		s.preview = s.handles.Create(data)
	}
	s.mu.Unlock()
	return nil
}

func (s *Sequencer) deleteVideo(j DeleteVideo) error {
	if err := s.engine.Unlink(j.Slot.ID + ".mp4"); err != nil {
		s.logf("delete clip: %v", err)
	}
	if !j.DeleteSourceIfUnused || j.Slot.File == "" {
		return nil
	}
	for _, other := range j.Remaining {
		if other.ID != j.Slot.ID && other.File == j.Slot.File {
			return nil
		}
	}
	return s.engine.Unlink(j.Slot.File)
}
