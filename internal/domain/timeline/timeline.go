package timeline

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// RangeError rejects a degenerate slot span. Callers clamp user input; the
// model never silently fixes an inverted or zero-length range.
type RangeError struct {
	Start int
	End   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("timeline: invalid slot range [%d, %d), end must exceed start", e.Start, e.End)
}

// Slot places one video clip on the abstract timeline. Slots are immutable
// values: every mutation returns a new Slot and the caller replaces the
// record in the arena.
type Slot struct {
	ID         string
	StartIndex int
	EndIndex   int
	StartTime  float64
	EndTime    float64
	Duration   float64
	// File is the stored source name, empty until a source is attached.
	// Several slots may share one source.
	File      string
	TrimStart float64
}

// IndexToTime maps an abstract slot index to seconds by cumulative summation
// of the slice durations. Indices at or below zero map to zero; indices past
// the end of the list saturate at the total duration.
func IndexToTime(index int, durations []float64) float64 {
	var t float64
	for i := 0; i < index && i < len(durations); i++ {
		t += durations[i]
	}
	return t
}

// NewSlot creates a slot spanning [startIndex, endIndex) with times derived
// from the duration list.
func NewSlot(startIndex, endIndex int, durations []float64) (Slot, error) {
	return UpdatePosition(Slot{ID: uuid.NewString()}, startIndex, endIndex, durations)
}

// UpdatePosition recomputes a slot's concrete times for a new index span.
func UpdatePosition(s Slot, startIndex, endIndex int, durations []float64) (Slot, error) {
	if endIndex <= startIndex {
		return s, &RangeError{Start: startIndex, End: endIndex}
	}
	s.StartIndex = startIndex
	s.EndIndex = endIndex
	s.StartTime = IndexToTime(startIndex, durations)
	s.EndTime = IndexToTime(endIndex, durations)
	s.Duration = s.EndTime - s.StartTime
	return s, nil
}

// Retrim returns the slot with a new playback start inside its source file.
func Retrim(s Slot, trimStart float64) Slot {
	if trimStart < 0 {
		trimStart = 0
	}
	s.TrimStart = trimStart
	return s
}

// WithFile returns the slot with an attached stored-source name.
func WithFile(s Slot, name string) Slot {
	s.File = name
	return s
}

// SortByStart returns a copy ordered by StartIndex. The sort is stable, so
// slots sharing a start index keep their relative (insertion) order.
func SortByStart(slots []Slot) []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartIndex < out[j].StartIndex
	})
	return out
}

// Arena is the authoritative slot store: id-keyed, insertion-ordered.
// Slots are referenced by stable id, never by pointer. The arena itself is
// not synchronized; callers serialize access.
type Arena struct {
	order []string
	slots map[string]Slot
}

func NewArena() *Arena {
	return &Arena{slots: make(map[string]Slot)}
}

func (a *Arena) Len() int { return len(a.order) }

func (a *Arena) Get(id string) (Slot, bool) {
	s, ok := a.slots[id]
	return s, ok
}

// Put inserts a new slot or replaces the slot with the same id.
func (a *Arena) Put(s Slot) {
	if _, ok := a.slots[s.ID]; !ok {
		a.order = append(a.order, s.ID)
	}
	a.slots[s.ID] = s
}

// Remove deletes a slot and returns it.
func (a *Arena) Remove(id string) (Slot, bool) {
	s, ok := a.slots[id]
	if !ok {
		return Slot{}, false
	}
	delete(a.slots, id)
	for i, other := range a.order {
		if other == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return s, true
}

// List returns the slots in insertion order.
func (a *Arena) List() []Slot {
	out := make([]Slot, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.slots[id])
	}
	return out
}

// Sorted returns the slots ordered for rendering, by StartIndex with ties
// broken by insertion order.
func (a *Arena) Sorted() []Slot {
	return SortByStart(a.List())
}

// SourceShared reports whether any slot other than id references the given
// stored source.
func (a *Arena) SourceShared(id, file string) bool {
	if file == "" {
		return false
	}
	for _, other := range a.slots {
		if other.ID != id && other.File == file {
			return true
		}
	}
	return false
}
