package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Versifine/framerelay/internal/event"
	"github.com/Versifine/framerelay/internal/hook"
)

// Server accepts client connections and runs one Session per connection
// against the fixed upstream in opts.
type Server struct {
	listenerAddr string
	opts         Options
	bus          *event.Bus
	sessions     sync.WaitGroup
}

func NewServer(listenerAddr string, opts Options) *Server {
	if opts.Bus == nil {
		opts.Bus = event.NewBus()
	}
	if opts.Observer == nil {
		opts.Observer = hook.Nop{}
	}
	return &Server{listenerAddr: listenerAddr, opts: opts, bus: opts.Bus}
}

func (s *Server) Bus() *event.Bus {
	return s.bus
}

func (s *Server) Start(ctx context.Context) error {
	slog.Info("Starting relay server", "listenerAddr", s.listenerAddr, "upstreamAddr", s.opts.Upstream)
	netListener, err := net.Listen("tcp", s.listenerAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, netListener)
}

const maxAcceptDelay = time.Second

// Serve runs the accept loop on ln until ctx is cancelled or ln is closed.
// Other accept errors (EMFILE and friends) are retried with backoff.
// It returns only after every session it started has finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.sessions.Wait()
	}()
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				slog.Info("Relay server stopped")
				return nil
			}
			delay = nextAcceptDelay(delay)
			slog.Error("Error accepting connection", "error", err, "retryIn", delay)
			select {
			case <-ctx.Done():
				slog.Info("Relay server stopped")
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			_ = s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, clientConn net.Conn) error {
	return NewSession(clientConn, &s.opts).Run(ctx)
}

// Same schedule as net/http.Server: 5ms doubling up to one second.
func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	return min(prev*2, maxAcceptDelay)
}
