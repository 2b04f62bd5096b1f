package pipeline

import "github.com/idiotf/entry-video-compress/internal/archive"

// State is a pipeline lifecycle state.
type State string

const (
	StateConfig     State = "config"
	StateExtracting State = "extracting"
	StateGenerating State = "generating"
	StateDone       State = "done"
	StateError      State = "error"
	StateAborted    State = "aborted"
)

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateError, StateAborted:
		return true
	default:
		return false
	}
}

// Event is one of StateEvent, ProgressEvent, TileEvent or SegmentEvent.
type Event interface {
	event()
}

// StateEvent announces a transition. Err is set for StateError and
// StateAborted.
type StateEvent struct {
	JobID string
	State State
	Err   error
}

// ProgressEvent carries the overall fraction in [0,1]. Successive events
// never decrease.
type ProgressEvent struct {
	JobID    string
	Fraction float64
}

// TileEvent reports a sealed tile.
type TileEvent struct {
	JobID  string
	Index  int
	Total  int
	Hash   string
	Frames int
	Bytes  int
	Digest string
}

// SegmentEvent reports a sealed archive segment.
type SegmentEvent struct {
	JobID   string
	Segment archive.Segment
}

func (StateEvent) event()    {}
func (ProgressEvent) event() {}
func (TileEvent) event()     {}
func (SegmentEvent) event()  {}

// Listener receives pipeline events. Calls are serialized.
type Listener interface {
	Event(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) Event(e Event) { f(e) }
