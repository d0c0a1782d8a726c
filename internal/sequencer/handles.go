package sequencer

import (
	"sync"

	"github.com/google/uuid"
)

// HandleStore hands out opaque URLs for rendered artifacts held in memory.
// A handle stays readable until released; replacing the preview releases the
// previous handle.
type HandleStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewHandleStore() *HandleStore {
	return &HandleStore{blobs: make(map[string][]byte)}
}

func (h *HandleStore) Create(data []byte) string {
	url := "blob:" + uuid.NewString()
	h.mu.Lock()
	h.blobs[url] = data
	h.mu.Unlock()
	return url
}

func (h *HandleStore) Get(url string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.blobs[url]
	return b, ok
}

func (h *HandleStore) Release(url string) {
	h.mu.Lock()
	delete(h.blobs, url)
	h.mu.Unlock()
}

func (h *HandleStore) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.blobs)
}
