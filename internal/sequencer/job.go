package sequencer

import (
	"github.com/martinbojnansky/flashback/internal/domain/timeline"
	"github.com/martinbojnansky/flashback/internal/types"
)

// Job is one project-mutation command. The set of variants is closed; the
// run loop dispatches with an exhaustive type switch.
type Job interface {
	kind() string
}

// IngestAudio stores the audio source under the canonical name, overwriting
// any previous audio. Idempotent.
type IngestAudio struct {
	File types.File
}

// IngestVideo stores a video source under its own name. Multiple slots may
// reference the same stored source.
type IngestVideo struct {
	File types.File
}

// TrimVideo produces the slot's trimmed clip: exactly Duration seconds of
// video from TrimStart within the source, muxed with the matching segment of
// the stored audio.
type TrimVideo struct {
	Slot timeline.Slot
}

// RebuildTimeline rewrites the concatenation manifest from the slot list.
type RebuildTimeline struct {
	Slots []timeline.Slot
}

// RenderPreview concatenates the manifest's clips into the preview artifact.
type RenderPreview struct{}

// DeleteVideo removes the slot's trimmed clip. The underlying source is
// removed too when requested and no slot in Remaining still references it.
type DeleteVideo struct {
	Slot                 timeline.Slot
	Remaining            []timeline.Slot
	DeleteSourceIfUnused bool
}

func (IngestAudio) kind() string     { return "ingest-audio" }
func (IngestVideo) kind() string     { return "ingest-video" }
func (TrimVideo) kind() string       { return "trim-video" }
func (RebuildTimeline) kind() string { return "rebuild-timeline" }
func (RenderPreview) kind() string   { return "render-preview" }
func (DeleteVideo) kind() string     { return "delete-video" }
