package project

import "github.com/idiotf/entry-video-compress/internal/hashid"

// IDLength is the length of object, picture, sound, variable and block ids.
const IDLength = 4

// Fixed identifiers the runtime expects.
const (
	SceneID      = "7dwq"
	SceneName    = "장면 1"
	TimerID      = "brih"
	TimerName    = "초시계"
	AnswerID     = "1vu8"
	AnswerName   = " 대답 "
	localVarName = "frame"
)

// IDSource issues identifiers for generated project parts.
type IDSource interface {
	NewID() string
}

// IDFunc adapts a function to IDSource.
type IDFunc func() string

func (f IDFunc) NewID() string { return f() }

// HashIDs draws 4 character ids from the process-wide hash allocator,
// skipping the fixed scene and variable ids.
type HashIDs struct {
	Allocator *hashid.Allocator
}

func (h HashIDs) NewID() string {
	alloc := h.Allocator
	if alloc == nil {
		alloc = hashid.Default()
	}
	for {
		id := alloc.New(IDLength)
		switch id {
		case SceneID, TimerID, AnswerID:
			continue
		}
		return id
	}
}
