package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Ko-stant/room-layout-sync/internal/crdt"
	"github.com/Ko-stant/room-layout-sync/internal/geometry"
	"github.com/Ko-stant/room-layout-sync/internal/protocol"
	"github.com/Ko-stant/room-layout-sync/internal/relay"
	"github.com/Ko-stant/room-layout-sync/internal/store"
	"github.com/Ko-stant/room-layout-sync/internal/ws"
)

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// pipeDialer connects sessions to an in-process relay.
func pipeDialer(ctx context.Context, rel *relay.Relay, project, user string) Dialer {
	return DialFunc(func(context.Context) (ws.Conn, error) {
		room, err := rel.Room(ctx, project)
		if err != nil {
			return nil, err
		}
		server, client := ws.Pipe()
		go func() { _ = rel.Serve(ctx, room, ws.NewPeer(uuid.NewString(), user, user, server)) }()
		return client, nil
	})
}

func item(id string, x float64) crdt.FurnitureItem {
	return crdt.FurnitureItem{
		ID:          id,
		Type:        "chair",
		Position:    geometry.Vec3{X: x, Y: 0.45, Z: 1},
		Scale:       geometry.Vec3{X: 1, Y: 1, Z: 1},
		HalfExtents: geometry.Vec3{X: 0.25, Y: 0.45, Z: 0.25},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func waitLive(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitLive(ctx); err != nil {
		t.Fatalf("Expected session to go live: %v", err)
	}
}

func start(ctx context.Context, s *Session) (stop func()) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = s.Run(runCtx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func newRelay() (*relay.Relay, store.Store) {
	st := store.NewMemory()
	return relay.New(st, nopLogger{}, relay.Options{WriteTimeout: time.Second}), st
}

func TestSession_PeersConverge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rel, _ := newRelay()

	alice := New(crdt.NewDocument("alice"), pipeDialer(ctx, rel, "p1", "alice"), Options{Logger: nopLogger{}})
	bob := New(crdt.NewDocument("bob"), pipeDialer(ctx, rel, "p1", "bob"), Options{Logger: nopLogger{}})
	defer start(ctx, alice)()
	defer start(ctx, bob)()
	waitLive(t, alice)
	waitLive(t, bob)

	if err := alice.Document().AddItem(item("chair-1", 1)); err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}
	waitFor(t, "bob to see chair-1", func() bool {
		_, ok := bob.Document().Item("chair-1")
		return ok
	})

	moved := crdt.Transform{
		Position: geometry.Vec3{X: 2.5, Y: 0.45, Z: 1},
		Scale:    geometry.Vec3{X: 1, Y: 1, Z: 1},
	}
	if err := bob.Document().SetTransform("chair-1", moved); err != nil {
		t.Fatalf("Failed to move item: %v", err)
	}
	waitFor(t, "alice to see the move", func() bool {
		it, _ := alice.Document().Item("chair-1")
		return it.Position.X == 2.5
	})
}

func TestSession_LateJoinerGetsSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rel, _ := newRelay()

	alice := New(crdt.NewDocument("alice"), pipeDialer(ctx, rel, "p1", "alice"), Options{Logger: nopLogger{}})
	defer start(ctx, alice)()
	waitLive(t, alice)
	_ = alice.Document().AddItem(item("chair-1", 1))
	_ = alice.Document().AddItem(item("chair-2", 2))
	flushCtx, flushCancel := context.WithTimeout(ctx, time.Second)
	defer flushCancel()
	if err := alice.Flush(flushCtx); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	room, _ := rel.Room(ctx, "p1")
	waitFor(t, "relay to hold both items", func() bool { return len(room.Document().Items()) == 2 })

	carol := New(crdt.NewDocument("carol"), pipeDialer(ctx, rel, "p1", "carol"), Options{Logger: nopLogger{}})
	defer start(ctx, carol)()
	waitLive(t, carol)
	if n := len(carol.Document().Items()); n != 2 {
		t.Errorf("Expected 2 items once live, got %d", n)
	}
}

func TestSession_OfflineEditsSyncOnReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rel, _ := newRelay()
	room, _ := rel.Room(ctx, "p1")

	alice := New(crdt.NewDocument("alice"), pipeDialer(ctx, rel, "p1", "alice"), Options{Logger: nopLogger{}})
	bob := New(crdt.NewDocument("bob"), pipeDialer(ctx, rel, "p1", "bob"), Options{Logger: nopLogger{}})
	defer start(ctx, bob)()
	waitLive(t, bob)

	stopAlice := start(ctx, alice)
	waitLive(t, alice)
	stopAlice()
	if alice.State() != Disconnected {
		t.Fatalf("Expected disconnected, got %s", alice.State())
	}

	// Edits while offline stay local.
	if err := alice.Document().AddItem(item("chair-1", 1)); err != nil {
		t.Fatalf("Failed to add item offline: %v", err)
	}
	if err := alice.Document().SetColor("chair-1", "#00ff00"); err != nil {
		t.Fatalf("Failed to recolor offline: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := room.Document().Item("chair-1"); ok {
		t.Fatal("Expected offline edit not to reach the relay")
	}

	// Meanwhile bob edits a different item.
	_ = bob.Document().AddItem(item("chair-2", 2))
	waitFor(t, "relay to hold chair-2", func() bool {
		_, ok := room.Document().Item("chair-2")
		return ok
	})

	defer start(ctx, alice)()
	waitLive(t, alice)

	waitFor(t, "bob to receive alice's offline edits", func() bool {
		it, ok := bob.Document().Item("chair-1")
		return ok && it.Color == "#00ff00"
	})
	waitFor(t, "alice to receive chair-2", func() bool {
		_, ok := alice.Document().Item("chair-2")
		return ok
	})
}

// scriptedServer is the far end of a session's connection, driven by the test.
type scriptedServer struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	conn   ws.Conn
}

func (s *scriptedServer) record(ctx context.Context) {
	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.frames = append(s.frames, env)
		s.mu.Unlock()
	}
}

func (s *scriptedServer) count(t protocol.MessageType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		if f.Type == t {
			n++
		}
	}
	return n
}

func TestSession_DoesNotEchoRemoteChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := &scriptedServer{}
	dialer := DialFunc(func(context.Context) (ws.Conn, error) {
		s, c := ws.Pipe()
		server.conn = s
		go server.record(ctx)
		return c, nil
	})

	alice := New(crdt.NewDocument("alice"), dialer, Options{Logger: nopLogger{}})
	defer start(ctx, alice)()
	waitFor(t, "sync-request", func() bool { return server.count(protocol.TypeSyncRequest) == 1 })

	empty, _ := crdt.NewDocument("relay").Snapshot()
	frame, _ := protocol.Encode(protocol.TypeSnapshot, empty)
	_ = server.conn.Write(ctx, frame)
	waitLive(t, alice)

	remote := crdt.NewDocument("bob")
	var delta []byte
	remote.Observe(func(ev crdt.Event) { delta = ev.Delta })
	_ = remote.AddItem(item("chair-1", 1))
	frame, _ = protocol.Encode(protocol.TypeDelta, delta)
	_ = server.conn.Write(ctx, frame)

	waitFor(t, "remote item", func() bool {
		_, ok := alice.Document().Item("chair-1")
		return ok
	})
	flushCtx, flushCancel := context.WithTimeout(ctx, time.Second)
	defer flushCancel()
	if err := alice.Flush(flushCtx); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
	if n := server.count(protocol.TypeDelta); n != 0 {
		t.Errorf("Expected remote change not to be echoed, got %d deltas", n)
	}

	_ = alice.Document().SetColor("chair-1", "#123456")
	waitFor(t, "local delta", func() bool { return server.count(protocol.TypeDelta) == 1 })
}

func TestSession_PresenceReachesPeers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rel, _ := newRelay()

	alice := New(crdt.NewDocument("alice"), pipeDialer(ctx, rel, "p1", "alice"), Options{Name: "Alice", Color: "#f00", Logger: nopLogger{}})
	bob := New(crdt.NewDocument("bob"), pipeDialer(ctx, rel, "p1", "bob"), Options{Logger: nopLogger{}})
	defer start(ctx, alice)()
	defer start(ctx, bob)()
	waitLive(t, alice)
	waitLive(t, bob)

	if err := alice.SetCursor(1.5, 2); err != nil {
		t.Fatalf("Failed to set cursor: %v", err)
	}
	waitFor(t, "bob to see alice's cursor", func() bool {
		e, ok := bob.Presence().Get("alice")
		return ok && e.Cursor != nil && e.Cursor.X == 1.5 && e.Name == "Alice"
	})
	if _, ok := alice.Presence().Get("alice"); ok {
		t.Error("Expected own presence to be ignored")
	}

	closeCtx, closeCancel := context.WithTimeout(ctx, time.Second)
	defer closeCancel()
	if err := alice.Close(closeCtx); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	waitFor(t, "alice to leave", func() bool {
		_, ok := bob.Presence().Get("alice")
		return !ok
	})
	if alice.State() != Closed {
		t.Errorf("Expected closed, got %s", alice.State())
	}
}

func TestSession_StateTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rel, _ := newRelay()

	var mu sync.Mutex
	var states []State
	s := New(crdt.NewDocument("alice"), pipeDialer(ctx, rel, "p1", "alice"), Options{Logger: nopLogger{}})
	s.OnState(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})
	stop := start(ctx, s)
	waitLive(t, s)
	stop()

	mu.Lock()
	defer mu.Unlock()
	want := []State{Connecting, Syncing, Live, Disconnected}
	if len(states) != len(want) {
		t.Fatalf("Expected %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, states)
			break
		}
	}
}

func TestSession_RetriesFailedDial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rel, _ := newRelay()

	var mu sync.Mutex
	attempts := 0
	direct := pipeDialer(ctx, rel, "p1", "alice")
	dialer := DialFunc(func(ctx context.Context) (ws.Conn, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return nil, context.DeadlineExceeded
		}
		return direct.Dial(ctx)
	})

	s := New(crdt.NewDocument("alice"), dialer, Options{Logger: nopLogger{}, MinRetry: time.Millisecond, MaxRetry: 4 * time.Millisecond})
	defer start(ctx, s)()
	waitLive(t, s)

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("Expected 3 dial attempts, got %d", attempts)
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/projects/den/stream?name=Al&user=u1"},
		{"https://relay.example.com/", "wss://relay.example.com/projects/den/stream?name=Al&user=u1"},
		{"ws://host/base", "ws://host/base/projects/den/stream?name=Al&user=u1"},
	}
	for _, tt := range tests {
		got, err := StreamURL(tt.base, "den", "u1", "Al")
		if err != nil {
			t.Fatalf("StreamURL(%q): %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}
