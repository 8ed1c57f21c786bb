// Package hook 负责帧观察者
// 观察者只能读取帧，不能修改或丢弃
package hook

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/Versifine/framerelay/internal/event"
	"github.com/Versifine/framerelay/internal/protocol"
)

// Observer is called by a pipe for every frame before it is forwarded.
// It runs on the pipe goroutine, so it must return quickly and must not
// retain or modify the frame.
type Observer interface {
	OnFrame(sessionID string, dir protocol.Direction, frame *protocol.Frame)
}

// Chain calls each observer in order.
type Chain []Observer

func (c Chain) OnFrame(sessionID string, dir protocol.Direction, frame *protocol.Frame) {
	for _, o := range c {
		if o != nil {
			o.OnFrame(sessionID, dir, frame)
		}
	}
}

// Nop ignores every frame.
type Nop struct{}

func (Nop) OnFrame(string, protocol.Direction, *protocol.Frame) {}

// LogObserver writes one log line per frame: direction tag, id, length and
// optionally a hex dump of the encoded frame.
type LogObserver struct {
	Logger   *slog.Logger
	HexDump  bool
	HexLimit int
}

func (o *LogObserver) OnFrame(sessionID string, dir protocol.Direction, frame *protocol.Frame) {
	lg := o.Logger
	if lg == nil {
		lg = slog.Default()
	}
	attrs := []any{
		"session", sessionID,
		"dir", dir.Tag(),
		"id", fmt.Sprintf("0x%02X", frame.ID),
		"length", frame.Length(),
	}
	if o.HexDump {
		attrs = append(attrs, "hex", protocol.FormatHex(frame.Encode(), o.HexLimit))
	}
	lg.Info("Frame", attrs...)
}

// BusObserver republishes frames as event.FrameEvent. Subscribers get their
// own copy of the payload, so the pipe can forward the original at once.
type BusObserver struct {
	Bus *event.Bus
}

func (o *BusObserver) OnFrame(sessionID string, dir protocol.Direction, frame *protocol.Frame) {
	if o.Bus == nil {
		return
	}
	o.Bus.Publish(event.EventFrame, event.FrameEvent{
		SessionID: sessionID,
		Direction: dir,
		Frame: protocol.Frame{
			ID:      frame.ID,
			Payload: bytes.Clone(frame.Payload),
		},
		At: time.Now(),
	})
}
