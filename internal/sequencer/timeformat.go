package sequencer

import (
	"math"
	"time"
)

// timeRef anchors offset formatting. Offsets handed to the transcode engine
// are rendered as a wall-clock time this many seconds past the anchor.
var timeRef = time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC)

// FormatTime renders a duration in seconds as HH:MM:SS.mmm.
func FormatTime(seconds float64) string {
	ms := time.Duration(math.Round(seconds*1000)) * time.Millisecond
	return timeRef.Add(ms).Format("15:04:05.000")
}
