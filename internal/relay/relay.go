// Package relay is the server side of the sync transport. It keeps one
// authoritative replica per project, fans deltas and presence out to the
// project's peers, answers sync-requests and persists the update log.
package relay

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/Ko-stant/room-layout-sync/internal/furniture"
	"github.com/Ko-stant/room-layout-sync/internal/protocol"
	"github.com/Ko-stant/room-layout-sync/internal/store"
	"github.com/Ko-stant/room-layout-sync/internal/ws"
)

var ErrInvalidProject = errors.New("invalid project id")

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// maxRejects is how many bad frames one connection may send before it is
// closed.
const maxRejects = 32

type Logger interface {
	Printf(format string, v ...any)
}

type Options struct {
	// CompactEvery is the number of logged updates after which a project's
	// log is folded into a snapshot. Zero disables compaction.
	CompactEvery   int
	WriteTimeout   time.Duration
	ReadLimit      int64
	AllowedOrigins []string
	// Catalog, when set, is served to clients under /catalog.
	Catalog *furniture.Catalog
}

type Relay struct {
	store   store.Store
	logger  Logger
	opts    Options
	metrics *Metrics

	mu    sync.Mutex
	rooms map[string]*Room
}

func New(st store.Store, logger Logger, opts Options) *Relay {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = ws.DefaultWriteTimeout
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Relay{
		store:   st,
		logger:  logger,
		opts:    opts,
		metrics: NewMetrics(),
		rooms:   make(map[string]*Room),
	}
}

func (r *Relay) Metrics() *Metrics { return r.metrics }

// ValidProjectID reports whether id may name a project.
func ValidProjectID(id string) bool {
	return projectIDPattern.MatchString(id)
}

// Room returns the live room for a project, loading it from the store on
// first use.
func (r *Relay) Room(ctx context.Context, id string) (*Room, error) {
	if !ValidProjectID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProject, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[id]; ok {
		return room, nil
	}
	room, err := loadRoom(ctx, id, r.store, r.logger, r.metrics, r.opts)
	if err != nil {
		return nil, err
	}
	r.rooms[id] = room
	return room, nil
}

// Rooms lists the ids of projects loaded in memory.
func (r *Relay) Rooms() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Projects lists every project known to the store or loaded in memory.
func (r *Relay) Projects(ctx context.Context) ([]string, error) {
	stored, err := r.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		seen[id] = struct{}{}
	}
	for _, id := range r.Rooms() {
		if _, ok := seen[id]; !ok {
			stored = append(stored, id)
		}
	}
	sort.Strings(stored)
	return stored, nil
}

// Serve runs one peer's connection to room until it closes or ctx is done.
func (r *Relay) Serve(ctx context.Context, room *Room, peer *ws.Peer) error {
	conn := peer.Conn()
	r.metrics.ConnectionsOpen.Add(1)
	r.metrics.ConnectionsTotal.Add(1)
	r.metrics.UpdateSystemMetrics()
	r.logger.Printf("project %s: peer %s (%s) connected", room.id, peer.ID, peer.UserID)

	defer func() {
		room.leave(peer)
		_ = conn.Close("")
		r.metrics.ConnectionsOpen.Add(-1)
		r.logger.Printf("project %s: peer %s (%s) disconnected", room.id, peer.ID, peer.UserID)
	}()

	if err := room.join(peer); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	rejects := 0
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return nil
		}
		r.metrics.FramesIn.Add(1)
		r.metrics.BytesIn.Add(int64(len(data)))

		env, err := protocol.Decode(data)
		if err == nil {
			err = room.handle(ctx, peer, env)
		}
		if err == nil {
			continue
		}
		if !isProtocolError(err) {
			return err
		}
		rejects++
		r.logger.Printf("project %s: peer %s: %v", room.id, peer.ID, err)
		if rejects >= maxRejects {
			return fmt.Errorf("peer %s: too many rejected frames", peer.ID)
		}
	}
}

// Close compacts every loaded room that has logged updates since its last
// snapshot.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	var errs []error
	for _, room := range rooms {
		if err := room.Compact(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compact %s: %w", room.id, err))
		}
	}
	return errors.Join(errs...)
}
