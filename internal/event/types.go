package event

import (
	"time"

	"github.com/Versifine/framerelay/internal/protocol"
)

const (
	EventSessionOpened = "session.opened"
	EventSessionClosed = "session.closed"
	EventFrame         = "frame"
)

type SessionOpenedEvent struct {
	ID       string
	Client   string
	Upstream string
}

// DirectionStats is what one pipe moved before it stopped.
type DirectionStats struct {
	Frames uint64
	Bytes  uint64
}

type SessionClosedEvent struct {
	ID       string
	Client   string
	Upstream string
	Duration time.Duration
	// Indexed by protocol.Direction.
	Stats [2]DirectionStats
	// Err is the error that ended the session, or the context error when
	// it was cancelled from outside.
	Err error
}

// FrameEvent carries a private copy of an observed frame.
type FrameEvent struct {
	SessionID string
	Direction protocol.Direction
	Frame     protocol.Frame
	At        time.Time
}
