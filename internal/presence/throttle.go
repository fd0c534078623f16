package presence

import (
	"sync"
	"time"

	"github.com/Ko-stant/room-layout-sync/internal/clock"
	"github.com/Ko-stant/room-layout-sync/internal/protocol"
)

// DefaultInterval is the minimum spacing between outbound presence messages.
const DefaultInterval = 50 * time.Millisecond

// Throttle rate limits outbound presence at the source. Within an interval
// only the latest message of each kind survives; held messages are flushed in
// the order their kinds were first held when the interval elapses.
type Throttle struct {
	mu       sync.Mutex
	clock    clock.Clock
	interval time.Duration
	send     func(protocol.Presence) error
	last     time.Time
	sent     bool
	pending  map[protocol.PresenceKind]protocol.Presence
	order    []protocol.PresenceKind
	armed    bool
	done     chan struct{}
	closed   bool
}

func NewThrottle(clk clock.Clock, interval time.Duration, send func(protocol.Presence) error) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{
		clock:    clk,
		interval: interval,
		send:     send,
		pending:  make(map[protocol.PresenceKind]protocol.Presence),
		done:     make(chan struct{}),
	}
}

// Offer queues p for sending. Leave messages are sent at once and discard
// anything pending.
func (t *Throttle) Offer(p protocol.Presence) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	now := t.clock.Now()

	if p.Kind == protocol.PresenceLeave {
		t.reset()
		t.mark(now)
		t.mu.Unlock()
		return t.send(p)
	}

	if !t.sent || now.Sub(t.last) >= t.interval {
		if !t.armed {
			t.mark(now)
			t.mu.Unlock()
			return t.send(p)
		}
	}

	if _, held := t.pending[p.Kind]; !held {
		t.order = append(t.order, p.Kind)
	}
	t.pending[p.Kind] = p
	if !t.armed {
		t.armed = true
		wait := t.interval - now.Sub(t.last)
		ch := t.clock.After(wait)
		go t.flushAfter(ch)
	}
	t.mu.Unlock()
	return nil
}

func (t *Throttle) reset() {
	clear(t.pending)
	t.order = t.order[:0]
}

func (t *Throttle) mark(now time.Time) {
	t.last = now
	t.sent = true
}

func (t *Throttle) flushAfter(ch <-chan time.Time) {
	select {
	case <-t.done:
		return
	case <-ch:
	}

	t.mu.Lock()
	batch := make([]protocol.Presence, 0, len(t.order))
	for _, kind := range t.order {
		batch = append(batch, t.pending[kind])
	}
	t.reset()
	t.armed = false
	if len(batch) == 0 || t.closed {
		t.mu.Unlock()
		return
	}
	t.mark(t.clock.Now())
	t.mu.Unlock()

	for _, p := range batch {
		_ = t.send(p)
	}
}

// Close stops any pending flush. Pending messages are dropped.
func (t *Throttle) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.reset()
	close(t.done)
}
