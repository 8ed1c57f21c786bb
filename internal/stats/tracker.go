// Package stats 汇总事件总线上的会话与帧计数
package stats

import (
	"sort"
	"sync"

	"github.com/Versifine/framerelay/internal/event"
	"github.com/Versifine/framerelay/internal/protocol"
)

// Tracker counts sessions and frames per direction and per frame id.
// Counts arrive through the bus, so they trail the pipes slightly; call
// Bus.Wait before reading a final Snapshot.
type Tracker struct {
	mu     sync.Mutex
	opened uint64
	closed uint64
	frames [2]map[uint8]uint64
	bytes  [2]uint64
}

func NewTracker() *Tracker {
	return &Tracker{frames: [2]map[uint8]uint64{{}, {}}}
}

// Attach subscribes the tracker to session and frame events on bus.
func (t *Tracker) Attach(bus *event.Bus) {
	bus.Subscribe(event.EventSessionOpened, t.onOpened)
	bus.Subscribe(event.EventSessionClosed, t.onClosed)
	bus.Subscribe(event.EventFrame, t.onFrame)
}

func (t *Tracker) onOpened(raw any) {
	if _, ok := raw.(event.SessionOpenedEvent); !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened++
}

func (t *Tracker) onClosed(raw any) {
	if _, ok := raw.(event.SessionClosedEvent); !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
}

func (t *Tracker) onFrame(raw any) {
	evt, ok := raw.(event.FrameEvent)
	if !ok || evt.Direction < 0 || int(evt.Direction) >= len(t.frames) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames[evt.Direction][evt.Frame.ID]++
	t.bytes[evt.Direction] += uint64(evt.Frame.Size())
}

// IDCount is the number of frames seen with one id.
type IDCount struct {
	ID    uint8
	Count uint64
}

type Snapshot struct {
	Opened uint64
	Closed uint64
	// Indexed by protocol.Direction, sorted by id.
	Frames [2][]IDCount
	Bytes  [2]uint64
}

func (s Snapshot) Active() uint64 {
	if s.Closed > s.Opened {
		return 0
	}
	return s.Opened - s.Closed
}

func (s Snapshot) TotalFrames(dir protocol.Direction) uint64 {
	var n uint64
	for _, c := range s.Frames[dir] {
		n += c.Count
	}
	return n
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{Opened: t.opened, Closed: t.closed, Bytes: t.bytes}
	for dir, byID := range t.frames {
		counts := make([]IDCount, 0, len(byID))
		for id, n := range byID {
			counts = append(counts, IDCount{ID: id, Count: n})
		}
		sort.Slice(counts, func(i, j int) bool { return counts[i].ID < counts[j].ID })
		snap.Frames[dir] = counts
	}
	return snap
}
