package ws

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultWriteTimeout bounds a single write to one peer.
const DefaultWriteTimeout = 3 * time.Second

// Peer is one connection in a hub.
type Peer struct {
	ID          string
	UserID      string
	Name        string
	ConnectedAt time.Time

	conn Conn
}

func NewPeer(id, userID, name string, conn Conn) *Peer {
	return &Peer{ID: id, UserID: userID, Name: name, ConnectedAt: time.Now(), conn: conn}
}

func (p *Peer) Conn() Conn { return p.conn }

// PeerInfo is the public view of a peer.
type PeerInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type Hub struct {
	mu           sync.Mutex
	peers        map[*Peer]struct{}
	writeTimeout time.Duration
}

func NewHub(writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Hub{peers: make(map[*Peer]struct{}), writeTimeout: writeTimeout}
}

func (h *Hub) Add(p *Peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
}

// Remove reports whether p was still registered.
func (h *Hub) Remove(p *Peer) bool {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	h.mu.Unlock()
	return ok
}

// HasUser reports whether any registered peer other than skip belongs to
// userID. skip may be nil.
func (h *Hub) HasUser(userID string, skip *Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		if p != skip && p.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Send writes one message to one peer. A failed write closes and drops the
// peer; its reader then sees the closed connection and cleans up.
func (h *Hub) Send(p *Peer, message []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	err := p.conn.Write(ctx, message)
	cancel()
	if err != nil {
		h.drop([]*Peer{p})
	}
	return err
}

// Broadcast writes message to every peer except skip, which may be nil.
func (h *Hub) Broadcast(message []byte, skip *Peer) int {
	h.mu.Lock()
	var failed []*Peer
	sent := 0
	for p := range h.peers {
		if p == skip {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
		err := p.conn.Write(ctx, message)
		cancel()
		if err != nil {
			failed = append(failed, p)
			continue
		}
		sent++
	}
	h.mu.Unlock()

	h.drop(failed)
	return sent
}

func (h *Hub) drop(peers []*Peer) {
	for _, p := range peers {
		_ = p.conn.Close("write failed")
		h.Remove(p)
	}
}

// Peers lists connected peers ordered by connection time.
func (h *Hub) Peers() []PeerInfo {
	h.mu.Lock()
	out := make([]PeerInfo, 0, len(h.peers))
	for p := range h.peers {
		out = append(out, PeerInfo{ID: p.ID, UserID: p.UserID, Name: p.Name, ConnectedAt: p.ConnectedAt})
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
