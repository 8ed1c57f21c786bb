// Package proxy 负责 TCP 连接管理与按帧双向转发
// 这是核心管道模块
package proxy

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/Versifine/framerelay/internal/event"
	"github.com/Versifine/framerelay/internal/hook"
	"github.com/Versifine/framerelay/internal/protocol"
)

type flusher interface {
	Flush() error
}

// Pipe moves frames from Src to Dst in arrival order, one direction only.
// It owns the read side of Src and the write side of Dst for its lifetime.
type Pipe struct {
	Src       io.Reader
	Dst       io.Writer
	Dir       protocol.Direction
	SessionID string
	Observer  hook.Observer
	// MaxFrameSize <= 0 selects protocol.DefaultMaxFrameSize.
	MaxFrameSize int
	// LastActivity, if set, receives the UnixNano time of every forwarded
	// frame. Both pipes of a session share it.
	LastActivity *atomic.Int64

	stats event.DirectionStats
}

// Run relays until a read or write fails and returns that error. It never
// returns nil: a peer closing its end surfaces as protocol.ErrConnectionClosed.
// Framing is not resynchronised after an error.
func (p *Pipe) Run() error {
	for {
		frame, err := protocol.ReadFrame(p.Src, p.MaxFrameSize)
		if err != nil {
			return err
		}

		if p.Observer != nil {
			p.Observer.OnFrame(p.SessionID, p.Dir, frame)
		}

		if err := protocol.WriteFrame(p.Dst, frame); err != nil {
			return err
		}
		if f, ok := p.Dst.(flusher); ok {
			if err := f.Flush(); err != nil {
				return protocol.ClassifyWriteError(err)
			}
		}

		p.stats.Frames++
		p.stats.Bytes += uint64(frame.Size())
		if p.LastActivity != nil {
			p.LastActivity.Store(time.Now().UnixNano())
		}
	}
}

// Stats is only meaningful once Run has returned.
func (p *Pipe) Stats() event.DirectionStats {
	return p.stats
}
