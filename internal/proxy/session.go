package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Versifine/framerelay/internal/event"
	"github.com/Versifine/framerelay/internal/hook"
	"github.com/Versifine/framerelay/internal/protocol"
)

var (
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrSessionIdle         = errors.New("session idle")
)

type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Options is shared read-only by every session of a server.
type Options struct {
	Upstream     string
	DialTimeout  time.Duration
	MaxFrameSize int
	// IdleTimeout > 0 closes a session once neither direction has
	// forwarded a frame for that long.
	IdleTimeout time.Duration
	Observer     hook.Observer
	Bus          *event.Bus
	// Dial replaces net.Dialer, mainly for tests.
	Dial DialFunc
}

// Session pairs one accepted client connection with one upstream
// connection. It is single-shot: once either direction stops, both
// connections are closed and the session is done.
type Session struct {
	id     string
	client net.Conn
	opts   *Options
	state  sessionState
	logger *slog.Logger
	// UnixNano of the last frame forwarded in either direction.
	lastActivity atomic.Int64
}

func NewSession(client net.Conn, opts *Options) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		client: client,
		opts:   opts,
		logger: slog.With("session", id),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return s.state.Get() }

// Run dials upstream and relays until either direction fails or ctx is
// cancelled. The client connection is always closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	started := time.Now()
	closed := event.SessionClosedEvent{
		ID:       s.id,
		Client:   s.client.RemoteAddr().String(),
		Upstream: s.opts.Upstream,
	}
	defer func() {
		s.state.Set(Closed)
		closed.Duration = time.Since(started)
		s.publish(event.EventSessionClosed, closed)
	}()

	s.state.Set(Connecting)
	setNoDelay(s.client)

	upstream, err := s.dial(ctx)
	if err != nil {
		_ = s.client.Close()
		closed.Err = errors.Join(ErrUpstreamUnreachable, err)
		s.logger.Error("Error connecting to upstream", "upstream", s.opts.Upstream, "error", err)
		return closed.Err
	}
	setNoDelay(upstream)

	s.lastActivity.Store(time.Now().UnixNano())
	s.state.Set(Relaying)
	s.logger.Info("Proxying connection", "client", closed.Client, "upstream", s.opts.Upstream)
	s.publish(event.EventSessionOpened, event.SessionOpenedEvent{
		ID:       s.id,
		Client:   closed.Client,
		Upstream: s.opts.Upstream,
	})

	pipes := [2]*Pipe{
		protocol.ClientToUpstream: s.newPipe(s.client, upstream, protocol.ClientToUpstream),
		protocol.UpstreamToClient: s.newPipe(upstream, s.client, protocol.UpstreamToClient),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pipes {
		g.Go(func() error {
			err := p.Run()
			if errors.Is(err, protocol.ErrConnectionClosed) {
				s.logger.Debug("Pipe stopped", "dir", p.Dir.Tag(), "reason", err)
			} else {
				s.logger.Warn("Pipe failed", "dir", p.Dir.Tag(), "error", err)
			}
			return err
		})
	}
	if s.opts.IdleTimeout > 0 {
		g.Go(func() error {
			return s.watchIdle(gctx, s.opts.IdleTimeout)
		})
	}
	// First pipe to return cancels gctx; closing both ends unblocks the other.
	g.Go(func() error {
		<-gctx.Done()
		_ = s.client.Close()
		_ = upstream.Close()
		return nil
	})
	err = g.Wait()
	if ctx.Err() != nil {
		err = ctx.Err()
	}

	for _, p := range pipes {
		closed.Stats[p.Dir] = p.Stats()
	}
	closed.Err = err

	attrs := []any{
		"client", closed.Client,
		"frames_up", closed.Stats[protocol.ClientToUpstream].Frames,
		"frames_down", closed.Stats[protocol.UpstreamToClient].Frames,
		"duration", time.Since(started).Round(time.Millisecond),
	}
	if err == nil || errors.Is(err, protocol.ErrConnectionClosed) ||
		errors.Is(err, context.Canceled) || errors.Is(err, ErrSessionIdle) {
		s.logger.Info("Connection closed", attrs...)
	} else {
		s.logger.Error("Connection closed", append(attrs, "error", err)...)
	}
	return err
}

// watchIdle returns ErrSessionIdle once no frame has moved in either
// direction for timeout, or nil when ctx ends first.
func (s *Session) watchIdle(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			idle := time.Since(time.Unix(0, s.lastActivity.Load()))
			if idle >= timeout {
				s.logger.Info("Closing idle session", "idle", idle.Round(time.Millisecond))
				return ErrSessionIdle
			}
			timer.Reset(timeout - idle)
		}
	}
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	if s.opts.Dial != nil {
		if s.opts.DialTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.DialTimeout)
			defer cancel()
		}
		return s.opts.Dial(ctx, "tcp", s.opts.Upstream)
	}
	d := &net.Dialer{Timeout: s.opts.DialTimeout}
	return d.DialContext(ctx, "tcp", s.opts.Upstream)
}

func (s *Session) newPipe(src, dst net.Conn, dir protocol.Direction) *Pipe {
	return &Pipe{
		Src:          src,
		Dst:          dst,
		Dir:          dir,
		SessionID:    s.id,
		Observer:     s.opts.Observer,
		MaxFrameSize: s.opts.MaxFrameSize,
		LastActivity: &s.lastActivity,
	}
}

func (s *Session) publish(name string, evt any) {
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(name, evt)
	}
}

// Disable Nagle's algorithm for lower latency
func setNoDelay(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
}
