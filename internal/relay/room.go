package relay

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/Ko-stant/room-layout-sync/internal/crdt"
	"github.com/Ko-stant/room-layout-sync/internal/protocol"
	"github.com/Ko-stant/room-layout-sync/internal/store"
	"github.com/Ko-stant/room-layout-sync/internal/ws"
)

// PeerID is the replica id of the relay's own copy of every document. The
// relay never edits, so its id never appears in an op stamp.
const PeerID = "relay"

// Room is one project session: the relay's replica of the document, the peers
// connected to it, and the last presence seen from each user.
type Room struct {
	id      string
	doc     *crdt.Document
	hub     *ws.Hub
	store   store.Store
	logger  Logger
	metrics *Metrics

	compactEvery int

	// mu orders apply, broadcast and append so peers and the log see updates
	// in the same order.
	mu           sync.Mutex
	lastSeq      int64
	sinceCompact int
	presence     map[presenceKey]protocol.Presence
}

type presenceKey struct {
	user string
	kind protocol.PresenceKind
}

func loadRoom(ctx context.Context, id string, st store.Store, logger Logger, metrics *Metrics, opts Options) (*Room, error) {
	project, err := st.LoadProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}

	doc := crdt.NewDocument(PeerID)
	if project.Snapshot != nil {
		if _, err := doc.ApplyUpdate(project.Snapshot, crdt.OriginRemote); err != nil {
			return nil, fmt.Errorf("restore snapshot of %s: %w", id, err)
		}
	}
	for i, update := range project.Updates {
		if _, err := doc.ApplyClientUpdate(update, crdt.OriginRemote); err != nil {
			logger.Printf("project %s: skipping stored update %d: %v", id, i, err)
		}
	}

	logger.Printf("project %s: loaded %d items (%d logged updates)", id, len(doc.Items()), len(project.Updates))
	return &Room{
		id:           id,
		doc:          doc,
		hub:          ws.NewHub(opts.WriteTimeout),
		store:        st,
		logger:       logger,
		metrics:      metrics,
		compactEvery: opts.CompactEvery,
		lastSeq:      project.LastSeq,
		sinceCompact: len(project.Updates),
		presence:     make(map[presenceKey]protocol.Presence),
	}, nil
}

func (r *Room) ID() string               { return r.id }
func (r *Room) Document() *crdt.Document { return r.doc }
func (r *Room) Peers() []ws.PeerInfo     { return r.hub.Peers() }

// join registers p and sends it the relay's state vector, so edits p made
// while offline come back in its reply, followed by the presence of everyone
// already in the room.
func (r *Room) join(p *ws.Peer) error {
	r.hub.Add(p)

	req, err := protocol.SyncRequest(r.doc.StateVector())
	if err != nil {
		return err
	}
	if err := r.hub.Send(p, req); err != nil {
		return err
	}

	r.mu.Lock()
	known := make([]protocol.Presence, 0, len(r.presence))
	for _, pr := range r.presence {
		known = append(known, pr)
	}
	r.mu.Unlock()

	for _, pr := range known {
		frame, err := protocol.EncodePresence(pr)
		if err != nil {
			continue
		}
		if err := r.hub.Send(p, frame); err != nil {
			return err
		}
	}
	return nil
}

// leave drops p. The user's presence is forgotten and announced as gone only
// when none of their other connections remain.
func (r *Room) leave(p *ws.Peer) {
	r.mu.Lock()
	r.hub.Remove(p)
	if r.hub.HasUser(p.UserID, nil) {
		r.mu.Unlock()
		return
	}
	r.forget(p.UserID)
	r.mu.Unlock()

	frame, err := protocol.EncodePresence(protocol.Presence{UserID: p.UserID, Kind: protocol.PresenceLeave})
	if err != nil {
		return
	}
	r.hub.Broadcast(frame, p)
}

// handle processes one inbound frame from p.
func (r *Room) handle(ctx context.Context, p *ws.Peer, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeSyncRequest:
		sv, err := crdt.DecodeStateVector(env.Payload)
		if err != nil {
			return protocol.WrapError(protocol.CodeMalformed, "sync-request", err)
		}
		reply, err := protocol.SyncReply(r.doc, sv)
		if err != nil {
			return err
		}
		return r.hub.Send(p, reply)

	case protocol.TypeDelta, protocol.TypeSnapshot:
		return r.merge(ctx, p, env.Payload)

	case protocol.TypePresence:
		return r.relayPresence(p, env.Payload)
	}
	return protocol.NewError(protocol.CodeUnknownType, string(env.Type))
}

func (r *Room) merge(ctx context.Context, p *ws.Peer, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.doc.StateVector()
	applied, err := r.doc.ApplyClientUpdate(payload, crdt.OriginRemote)
	if err != nil {
		r.metrics.UpdatesRejected.Add(1)
		return protocol.WrapError(protocol.CodeRejected, "update from "+p.UserID, err)
	}
	defer r.metrics.UpdatesApplied.Add(1)

	if len(applied.Ops) > 0 {
		frame, err := protocol.Encode(protocol.TypeDelta, applied.Delta)
		if err != nil {
			return err
		}
		r.hub.Broadcast(frame, p)
	}

	// A catch-up diff may advance the vector past superseded ops it does not
	// carry, so it is kept even when every op in it was already known.
	if len(applied.Ops) == 0 && !(applied.Catchup && !maps.Equal(before, r.doc.StateVector())) {
		return nil
	}
	seq, err := r.store.AppendUpdate(ctx, r.id, payload)
	if err != nil {
		return fmt.Errorf("persist update: %w", err)
	}
	r.lastSeq = seq
	r.sinceCompact++
	if r.compactEvery > 0 && r.sinceCompact >= r.compactEvery {
		if err := r.compactLocked(ctx); err != nil {
			r.logger.Printf("project %s: compaction failed: %v", r.id, err)
		}
	}
	return nil
}

// Compact folds the update log into a single snapshot.
func (r *Room) Compact(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sinceCompact == 0 {
		return nil
	}
	return r.compactLocked(ctx)
}

func (r *Room) compactLocked(ctx context.Context) error {
	snapshot, err := r.doc.Snapshot()
	if err != nil {
		return err
	}
	if err := r.store.SaveSnapshot(ctx, r.id, snapshot, r.lastSeq); err != nil {
		return err
	}
	r.metrics.Compactions.Add(1)
	r.sinceCompact = 0
	return nil
}

// relayPresence stamps presence with the sender's user id, so one peer cannot
// speak for another, and forwards it to everyone else.
func (r *Room) relayPresence(p *ws.Peer, payload []byte) error {
	pr, err := protocol.DecodePresence(payload)
	if err != nil {
		return err
	}
	pr.UserID = p.UserID
	if pr.Name == "" {
		pr.Name = p.Name
	}
	frame, err := protocol.EncodePresence(pr)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if pr.Kind == protocol.PresenceLeave {
		if r.hub.HasUser(pr.UserID, p) {
			r.mu.Unlock()
			return nil
		}
		r.forget(pr.UserID)
	} else {
		r.presence[presenceKey{pr.UserID, pr.Kind}] = pr
	}
	r.mu.Unlock()

	r.metrics.PresenceRelayed.Add(1)
	r.hub.Broadcast(frame, p)
	return nil
}

func (r *Room) forget(userID string) {
	delete(r.presence, presenceKey{userID, protocol.PresenceCursor})
	delete(r.presence, presenceKey{userID, protocol.PresenceSelection})
}

// isProtocolError reports whether err came from a bad frame rather than a
// failed write or store call.
func isProtocolError(err error) bool {
	var perr *protocol.Error
	return errors.As(err, &perr)
}
