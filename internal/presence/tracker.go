// Package presence keeps the ephemeral view of other participants' cursors and
// selections. Nothing here touches the furniture document.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ko-stant/room-layout-sync/internal/clock"
	"github.com/Ko-stant/room-layout-sync/internal/protocol"
)

// DefaultWindow is the inactivity window after which an entry is evicted.
const DefaultWindow = 30 * time.Second

type Entry struct {
	UserID    string           `json:"userId"`
	Name      string           `json:"name"`
	Color     string           `json:"color"`
	Cursor    *protocol.Point2 `json:"cursor,omitempty"`
	Selection string           `json:"selection,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Tracker holds the latest presence of every remote user.
type Tracker struct {
	mu       sync.Mutex
	clock    clock.Clock
	window   time.Duration
	self     string
	entries  map[string]*Entry
	onChange func()
}

// NewTracker creates a tracker that ignores events from self and evicts
// entries idle for longer than window.
func NewTracker(clk clock.Clock, window time.Duration, self string) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		clock:   clk,
		window:  window,
		self:    self,
		entries: make(map[string]*Entry),
	}
}

// OnChange sets a callback run after any entry is added, refreshed or removed.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Apply records a presence event. Later events replace earlier ones; a leave
// removes the entry. Reports whether the view changed.
func (t *Tracker) Apply(p protocol.Presence) bool {
	if p.UserID == "" || p.UserID == t.self {
		return false
	}

	t.mu.Lock()
	if p.Kind == protocol.PresenceLeave {
		_, ok := t.entries[p.UserID]
		delete(t.entries, p.UserID)
		fn := t.onChange
		t.mu.Unlock()
		if ok && fn != nil {
			fn()
		}
		return ok
	}

	e, ok := t.entries[p.UserID]
	if !ok {
		e = &Entry{UserID: p.UserID}
		t.entries[p.UserID] = e
	}
	if p.Name != "" {
		e.Name = p.Name
	}
	if p.Color != "" {
		e.Color = p.Color
	}
	switch p.Kind {
	case protocol.PresenceCursor:
		c := *p.Cursor
		e.Cursor = &c
	case protocol.PresenceSelection:
		e.Selection = p.Selection
	}
	e.UpdatedAt = t.clock.Now()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
	return true
}

// Remove drops a user, e.g. when its connection is known to be gone.
func (t *Tracker) Remove(userID string) bool {
	return t.Apply(protocol.Presence{UserID: userID, Kind: protocol.PresenceLeave})
}

// Sweep evicts entries that have been idle for longer than the window and
// returns their ids.
func (t *Tracker) Sweep() []string {
	t.mu.Lock()
	now := t.clock.Now()
	var evicted []string
	for id, e := range t.entries {
		if now.Sub(e.UpdatedAt) > t.window {
			delete(t.entries, id)
			evicted = append(evicted, id)
		}
	}
	fn := t.onChange
	t.mu.Unlock()

	sort.Strings(evicted)
	if len(evicted) > 0 && fn != nil {
		fn()
	}
	return evicted
}

// Run sweeps every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = t.window / 2
	}
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Entries returns a copy of the current view sorted by user id.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		c := *e
		if e.Cursor != nil {
			p := *e.Cursor
			c.Cursor = &p
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Get returns the entry for one user.
func (t *Tracker) Get(userID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}
