package proxy

import "sync"

type State int

const (
	Connecting State = iota
	Relaying
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Relaying:
		return "relaying"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// sessionState is written by the session goroutine and may be read from
// anywhere.
type sessionState struct {
	mu    sync.Mutex
	state State
}

func (ss *sessionState) Set(state State) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.state = state
}

func (ss *sessionState) Get() State {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.state
}
