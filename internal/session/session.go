// Package session is the client side of the sync transport: one Session per
// open project, owning the connection lifecycle
// connect → sync-request → live → disconnect → reconnect.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Ko-stant/room-layout-sync/internal/clock"
	"github.com/Ko-stant/room-layout-sync/internal/crdt"
	"github.com/Ko-stant/room-layout-sync/internal/presence"
	"github.com/Ko-stant/room-layout-sync/internal/protocol"
	"github.com/Ko-stant/room-layout-sync/internal/ws"
)

var ErrOutboundFull = errors.New("outbound queue full")

const (
	outboundQueue   = 256
	writeTimeout    = 3 * time.Second
	defaultMinRetry = 250 * time.Millisecond
	defaultMaxRetry = 15 * time.Second
)

type Logger interface {
	Printf(format string, v ...any)
}

type State int

const (
	Disconnected State = iota
	Connecting
	Syncing
	Live
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Syncing:
		return "syncing"
	case Live:
		return "live"
	case Closed:
		return "closed"
	default:
		return "disconnected"
	}
}

// Dialer opens a new connection to the relay for this session's project.
type Dialer interface {
	Dial(ctx context.Context) (ws.Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context) (ws.Conn, error)

func (f DialFunc) Dial(ctx context.Context) (ws.Conn, error) { return f(ctx) }

// WebSocketDialer dials a project stream URL.
type WebSocketDialer struct {
	URL       string
	ReadLimit int64
}

func (d WebSocketDialer) Dial(ctx context.Context) (ws.Conn, error) {
	return ws.Dial(ctx, d.URL, d.ReadLimit)
}

// StreamURL builds the websocket URL of a project stream on a relay base URL
// such as http://localhost:8080.
func StreamURL(base, project, userID, name string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = fmt.Sprintf("%s/projects/%s/stream", trimSlash(u.Path), url.PathEscape(project))
	q := u.Query()
	q.Set("user", userID)
	if name != "" {
		q.Set("name", name)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func trimSlash(p string) string {
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}

type Options struct {
	UserID string
	Name   string
	Color  string

	Clock            clock.Clock
	Logger           Logger
	PresenceInterval time.Duration
	PresenceWindow   time.Duration
	MinRetry         time.Duration
	MaxRetry         time.Duration
}

type outMsg struct {
	data []byte
	done chan struct{}
}

// Session binds one replicated document to one relay project.
type Session struct {
	doc      *crdt.Document
	dialer   Dialer
	opts     Options
	tracker  *presence.Tracker
	throttle *presence.Throttle

	mu        sync.Mutex
	state     State
	out       chan outMsg
	drop      context.CancelFunc
	live      chan struct{}
	onState   func(State)
	unobserve func()
}

// New creates a session. The document keeps working while disconnected;
// local edits made offline reach the relay on the next handshake.
func New(doc *crdt.Document, dialer Dialer, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.MinRetry <= 0 {
		opts.MinRetry = defaultMinRetry
	}
	if opts.MaxRetry < opts.MinRetry {
		opts.MaxRetry = defaultMaxRetry
	}
	if opts.UserID == "" {
		opts.UserID = doc.Peer()
	}

	s := &Session{
		doc:     doc,
		dialer:  dialer,
		opts:    opts,
		tracker: presence.NewTracker(opts.Clock, opts.PresenceWindow, opts.UserID),
		live:    make(chan struct{}),
	}
	s.throttle = presence.NewThrottle(opts.Clock, opts.PresenceInterval, s.sendPresence)
	s.unobserve = doc.Observe(s.onDocEvent)
	return s
}

func (s *Session) Document() *crdt.Document    { return s.doc }
func (s *Session) Presence() *presence.Tracker { return s.tracker }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnState registers a callback for lifecycle transitions.
func (s *Session) OnState(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == st || s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.state = st
	if st == Live {
		close(s.live)
	} else if isClosedChan(s.live) {
		s.live = make(chan struct{})
	}
	fn := s.onState
	s.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

func isClosedChan(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// WaitLive blocks until the session has completed a handshake.
func (s *Session) WaitLive(ctx context.Context) error {
	s.mu.Lock()
	ch := s.live
	s.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run connects and keeps the session connected until ctx is done, backing off
// exponentially between failed attempts.
func (s *Session) Run(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.tracker.Run(sweepCtx, 0)

	retry := s.opts.MinRetry
	for {
		wasLive, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(Disconnected)
			return ctx.Err()
		}
		s.setState(Disconnected)
		if wasLive {
			retry = s.opts.MinRetry
		}
		s.logf("session %s: disconnected: %v; retrying in %s", s.opts.UserID, err, retry)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.opts.Clock.After(retry):
		}
		retry *= 2
		if retry > s.opts.MaxRetry {
			retry = s.opts.MaxRetry
		}
	}
}

// runOnce handles one connection. It reports whether the handshake completed.
func (s *Session) runOnce(ctx context.Context) (bool, error) {
	s.setState(Connecting)
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := make(chan outMsg, outboundQueue)

	s.mu.Lock()
	s.out = out
	s.drop = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.out = nil
		s.drop = nil
		s.mu.Unlock()
		_ = conn.Close("session ended")
	}()

	s.setState(Syncing)
	req, err := protocol.SyncRequest(s.doc.StateVector())
	if err != nil {
		return false, err
	}
	if err := s.enqueue(req); err != nil {
		return false, err
	}

	writerDone := make(chan error, 1)
	go func() { writerDone <- s.writeLoop(connCtx, conn, out) }()

	wasLive, readErr := s.readLoop(connCtx, conn)
	cancel()
	writeErr := <-writerDone
	if readErr == nil {
		readErr = writeErr
	}
	return wasLive, readErr
}

func (s *Session) writeLoop(ctx context.Context, conn ws.Conn, out chan outMsg) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-out:
			if msg.data != nil {
				wctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := conn.Write(wctx, msg.data)
				cancel()
				if err != nil {
					_ = conn.Close("write failed")
					return fmt.Errorf("write: %w", err)
				}
			}
			if msg.done != nil {
				close(msg.done)
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context, conn ws.Conn) (bool, error) {
	wasLive := false
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return wasLive, fmt.Errorf("read: %w", err)
		}
		env, err := protocol.Decode(data)
		if err != nil {
			s.logf("session %s: dropping frame: %v", s.opts.UserID, err)
			continue
		}

		switch env.Type {
		case protocol.TypeDelta, protocol.TypeSnapshot:
			applied, err := s.doc.ApplyUpdate(env.Payload, crdt.OriginRemote)
			if err != nil {
				s.logf("session %s: rejected %s: %v", s.opts.UserID, env.Type, err)
				continue
			}
			if !wasLive && (env.Type == protocol.TypeSnapshot || applied.Catchup) {
				wasLive = true
				s.setState(Live)
			}

		case protocol.TypeSyncRequest:
			sv, err := crdt.DecodeStateVector(env.Payload)
			if err != nil {
				s.logf("session %s: bad sync-request: %v", s.opts.UserID, err)
				continue
			}
			reply, err := protocol.SyncReply(s.doc, sv)
			if err != nil {
				return wasLive, err
			}
			if err := s.enqueue(reply); err != nil {
				return wasLive, err
			}

		case protocol.TypePresence:
			p, err := protocol.DecodePresence(env.Payload)
			if err != nil {
				s.logf("session %s: bad presence: %v", s.opts.UserID, err)
				continue
			}
			s.tracker.Apply(p)
		}
	}
}

// onDocEvent forwards local edits. Remote changes are never echoed back.
func (s *Session) onDocEvent(ev crdt.Event) {
	if ev.Origin != crdt.OriginLocal {
		return
	}
	frame, err := protocol.Encode(protocol.TypeDelta, ev.Delta)
	if err != nil {
		s.logf("session %s: encode delta: %v", s.opts.UserID, err)
		return
	}
	if err := s.enqueue(frame); err != nil && !errors.Is(err, errOffline) {
		s.logf("session %s: %v", s.opts.UserID, err)
	}
}

var errOffline = errors.New("not connected")

// enqueue queues a frame on the current connection. A full queue drops the
// connection; the next handshake resends whatever was lost.
func (s *Session) enqueue(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return errOffline
	}
	select {
	case s.out <- outMsg{data: frame}:
		return nil
	default:
		if s.drop != nil {
			s.drop()
		}
		return ErrOutboundFull
	}
}

// Flush waits until every frame queued so far has been written.
func (s *Session) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	if out == nil {
		return errOffline
	}
	select {
	case out <- outMsg{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) sendPresence(p protocol.Presence) error {
	frame, err := protocol.EncodePresence(p)
	if err != nil {
		return err
	}
	err = s.enqueue(frame)
	if errors.Is(err, errOffline) {
		return nil
	}
	return err
}

func (s *Session) presence(kind protocol.PresenceKind) protocol.Presence {
	return protocol.Presence{UserID: s.opts.UserID, Name: s.opts.Name, Color: s.opts.Color, Kind: kind}
}

// SetCursor publishes the local cursor position on the floor plane.
func (s *Session) SetCursor(x, z float64) error {
	p := s.presence(protocol.PresenceCursor)
	p.Cursor = &protocol.Point2{X: x, Z: z}
	return s.throttle.Offer(p)
}

// Select publishes the locally selected item; an empty id clears the selection.
func (s *Session) Select(itemID string) error {
	p := s.presence(protocol.PresenceSelection)
	p.Selection = itemID
	return s.throttle.Offer(p)
}

// Close announces departure, stops observing the document and marks the
// session closed. Cancel the Run context to drop the connection.
func (s *Session) Close(ctx context.Context) error {
	err := s.throttle.Offer(s.presence(protocol.PresenceLeave))
	if err == nil {
		if ferr := s.Flush(ctx); ferr != nil && !errors.Is(ferr, errOffline) {
			err = ferr
		}
	}
	s.throttle.Close()
	s.unobserve()
	s.setState(Closed)
	return err
}

func (s *Session) logf(format string, v ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Printf(format, v...)
	}
}
