package types

// Signal is a mono audio signal at a fixed sample rate. It is immutable once
// captured from a decoded source; downstream stages only read it.
type Signal struct {
	Samples []float64
	Rate    int
}

// Duration returns the signal length in seconds.
func (s Signal) Duration() float64 {
	if s.Rate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.Rate)
}

// File is a named blob of source media handed to the sequencer.
type File struct {
	Name string
	Data []byte
}
