package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Engine runs the ffmpeg binary against a scratch directory that backs the
// session's virtual filesystem. Artifact names are flat; paths are rejected.
type Engine struct {
	bin string

	mu     sync.Mutex
	dir    string
	loaded bool
}

func New(ffmpegPath string) *Engine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Engine{bin: ffmpegPath}
}

// Load resolves the binary and creates the scratch directory. Idempotent.
func (e *Engine) Load(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}
	if _, err := exec.LookPath(e.bin); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	dir, err := os.MkdirTemp("", "flashback-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	e.dir = dir
	e.loaded = true
	return nil
}

func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *Engine) Run(ctx context.Context, args ...string) error {
	dir, err := e.scratch()
	if err != nil {
		return err
	}
	full := append([]string{"-nostdin", "-y"}, args...)
	cmd := exec.CommandContext(ctx, e.bin, full...)
	cmd.Dir = dir
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %v: %w\n%s", args, err, string(b))
	}
	return nil
}

func (e *Engine) WriteFile(name string, data []byte) error {
	path, err := e.resolve(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (e *Engine) ReadFile(name string) ([]byte, error) {
	path, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (e *Engine) Unlink(name string) error {
	path, err := e.resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Close removes the scratch directory and all session artifacts.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil
	}
	e.loaded = false
	return os.RemoveAll(e.dir)
}

func (e *Engine) scratch() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return "", fmt.Errorf("engine not loaded")
	}
	return e.dir, nil
}

func (e *Engine) resolve(name string) (string, error) {
	dir, err := e.scratch()
	if err != nil {
		return "", err
	}
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(dir, name), nil
}
