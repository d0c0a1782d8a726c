package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/martinbojnansky/flashback/internal/domain/timeline"
	"github.com/martinbojnansky/flashback/internal/types"
)

type fakeEngine struct {
	mu      sync.Mutex
	loaded  bool
	files   map[string][]byte
	concats int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{files: make(map[string][]byte)}
}

func (e *fakeEngine) Load(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = true
	return nil
}

func (e *fakeEngine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *fakeEngine) Run(_ context.Context, args ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := args[len(args)-1]
	if args[0] == "-f" && args[1] == "concat" {
		e.concats++
		manifest := string(e.files["timeline.txt"])
		var merged []byte
		any := false
		for _, line := range strings.Split(manifest, "\n") {
			name, found := strings.CutPrefix(line, "file ")
			if !found {
				continue
			}
			clip, ok := e.files[name]
			if !ok {
				return fmt.Errorf("missing clip %s", name)
			}
			merged = append(merged, clip...)
			any = true
		}
		if !any {
			return fmt.Errorf("empty manifest")
		}
		e.files[out] = merged
		return nil
	}
	e.files[out] = []byte("artifact:" + out)
	return nil
}

func (e *fakeEngine) WriteFile(name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[name] = append([]byte(nil), data...)
	return nil
}

func (e *fakeEngine) ReadFile(name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	return b, nil
}

func (e *fakeEngine) Unlink(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.files[name]; !ok {
		return fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	delete(e.files, name)
	return nil
}

func (e *fakeEngine) has(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.files[name]
	return ok
}

func (e *fakeEngine) concatCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.concats
}

type silenceCodec struct {
	seconds float64
	rate    int
}

func (c silenceCodec) Decode([]byte) (types.Signal, error) {
	return types.Signal{Samples: make([]float64, int(c.seconds*float64(c.rate))), Rate: c.rate}, nil
}

func (c silenceCodec) Encode(types.Signal, string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (c silenceCodec) Resample(sig types.Signal, rate int) (types.Signal, error) {
	return sig, nil
}

func newTestSession(t *testing.T, engine *fakeEngine) *Session {
	t.Helper()
	s, err := NewSession(Config{
		Engine:      engine,
		Codec:       silenceCodec{seconds: 4, rate: 44100},
		AutoPreview: true,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.Start(ctx)
	return s
}

func flush(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatal("expected missing engine to be rejected")
	}
	if err := (Config{Engine: newFakeEngine()}).Validate(); err == nil {
		t.Fatal("expected missing codec to be rejected")
	}
	cfg := Config{Engine: newFakeEngine(), Codec: silenceCodec{seconds: 1, rate: 8000}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSession_EndToEnd(t *testing.T) {
	engine := newFakeEngine()
	s := newTestSession(t, engine)

	durations, err := s.AnalyzeAudio(context.Background(), types.File{Name: "song.mp3", Data: []byte("x")})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// Silence segments into a single slice covering the whole track.
	if len(durations) != 1 || durations[0] != 4.0 {
		t.Fatalf("durations = %v, want [4.0]", durations)
	}

	slot, err := s.AddSlot(0, 1)
	if err != nil {
		t.Fatalf("add slot: %v", err)
	}
	if _, err := s.AttachVideo(slot.ID, types.File{Name: "clip.mp4", Data: []byte("v")}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	flush(t, s)

	if !engine.has(slot.ID + ".mp4") {
		t.Fatal("expected trimmed clip for the slot")
	}
	url, ok := s.Preview()
	if !ok {
		t.Fatal("expected auto-rendered preview after idle")
	}
	if data, ok := s.PreviewData(url); !ok || len(data) == 0 {
		t.Fatal("preview handle should resolve")
	}
}

func TestSession_PreviewCoalesced(t *testing.T) {
	engine := newFakeEngine()
	s := newTestSession(t, engine)

	if _, err := s.AnalyzeAudio(context.Background(), types.File{Name: "song.mp3"}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	slot, err := s.AddSlot(0, 1)
	if err != nil {
		t.Fatalf("add slot: %v", err)
	}
	if _, err := s.AttachVideo(slot.ID, types.File{Name: "clip.mp4"}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := s.RetrimSlot(slot.ID, 1.5); err != nil {
		t.Fatalf("retrim: %v", err)
	}
	flush(t, s)

	// At most one render per queue drain, never one per job.
	if got := engine.concatCount(); got > 3 {
		t.Fatalf("preview rendered %d times, want coalesced renders", got)
	}
	if _, ok := s.Preview(); !ok {
		t.Fatal("expected a preview")
	}
}

func TestSession_MoveSlotRejectsBadRange(t *testing.T) {
	engine := newFakeEngine()
	s := newTestSession(t, engine)

	if _, err := s.AnalyzeAudio(context.Background(), types.File{Name: "song.mp3"}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	slot, err := s.AddSlot(0, 1)
	if err != nil {
		t.Fatalf("add slot: %v", err)
	}

	_, err = s.MoveSlot(slot.ID, 1, 1)
	var rangeErr *timeline.RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("err = %v, want RangeError", err)
	}
	// Slot unchanged.
	got := s.Slots()[0]
	if got.StartIndex != 0 || got.EndIndex != 1 {
		t.Fatalf("slot mutated by rejected move: %+v", got)
	}
}

func TestSession_RemoveSlotKeepsSharedSource(t *testing.T) {
	engine := newFakeEngine()
	s := newTestSession(t, engine)

	if _, err := s.AnalyzeAudio(context.Background(), types.File{Name: "song.mp3"}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	a, err := s.AddSlot(0, 1)
	if err != nil {
		t.Fatalf("add slot: %v", err)
	}
	b, err := s.AddSlot(0, 1)
	if err != nil {
		t.Fatalf("add slot: %v", err)
	}
	if _, err := s.AttachVideo(a.ID, types.File{Name: "shared.mp4"}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := s.AttachVideo(b.ID, types.File{Name: "shared.mp4"}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	flush(t, s)

	if err := s.RemoveSlot(a.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	flush(t, s)

	if engine.has(a.ID + ".mp4") {
		t.Fatal("removed slot's clip should be deleted")
	}
	if !engine.has("shared.mp4") {
		t.Fatal("shared source must survive")
	}

	if err := s.RemoveSlot(b.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	flush(t, s)
	if engine.has("shared.mp4") {
		t.Fatal("unreferenced source should be deleted")
	}
}

func TestSession_NoAutoPreview(t *testing.T) {
	engine := newFakeEngine()
	s, err := NewSession(Config{
		Engine: engine,
		Codec:  silenceCodec{seconds: 2, rate: 44100},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.Start(ctx)

	if _, err := s.AnalyzeAudio(context.Background(), types.File{Name: "song.mp3"}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	slot, err := s.AddSlot(0, 1)
	if err != nil {
		t.Fatalf("add slot: %v", err)
	}
	if _, err := s.AttachVideo(slot.ID, types.File{Name: "clip.mp4"}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	flush(t, s)

	if _, ok := s.Preview(); ok {
		t.Fatal("no preview should render without an explicit request")
	}
	s.RequestPreview()
	flush(t, s)
	if _, ok := s.Preview(); !ok {
		t.Fatal("expected preview after explicit request")
	}
}
