package history

import "time"

// Status is the terminal state of a recorded conversion.
type Status string

const (
	StatusDone    Status = "done"
	StatusError   Status = "error"
	StatusAborted Status = "aborted"
)

// Entry is one recorded conversion.
type Entry struct {
	ID        int64
	JobID     string
	InputPath string
	Status    Status
	Frames    int
	Tiles     int
	Segments  int
	FrameRate float64
	Duration  float64
	Layout    string
	Policy    string
	Audio     bool
	Fallback  bool
	// OutputPaths lists the committed archive files in segment order.
	OutputPaths  []string
	OutputBytes  int64
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Elapsed is the wall time between start and finish.
func (e Entry) Elapsed() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}
