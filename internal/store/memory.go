package store

import (
	"context"
	"sort"
	"sync"
)

type memoryUpdate struct {
	seq  int64
	data []byte
}

type memorySnapshot struct {
	blob    []byte
	digest  string
	through int64
}

// Memory is an in-process Store. Snapshots go through the same compression and
// digest path as SQLite.
type Memory struct {
	mu        sync.Mutex
	updates   map[string][]memoryUpdate
	snapshots map[string]memorySnapshot
	nextSeq   map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		updates:   make(map[string][]memoryUpdate),
		snapshots: make(map[string]memorySnapshot),
		nextSeq:   make(map[string]int64),
	}
}

func (m *Memory) AppendUpdate(_ context.Context, project string, update []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq[project]++
	seq := m.nextSeq[project]
	m.updates[project] = append(m.updates[project], memoryUpdate{seq: seq, data: append([]byte(nil), update...)})
	return seq, nil
}

func (m *Memory) LoadProject(_ context.Context, project string) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var p Project
	if snap, ok := m.snapshots[project]; ok {
		data, err := openSnapshot(snap.blob, snap.digest)
		if err != nil {
			return Project{}, err
		}
		p.Snapshot = data
		p.LastSeq = snap.through
	}
	for _, u := range m.updates[project] {
		if u.seq <= p.LastSeq && p.Snapshot != nil {
			continue
		}
		p.Updates = append(p.Updates, append([]byte(nil), u.data...))
		p.LastSeq = u.seq
	}
	return p, nil
}

func (m *Memory) SaveSnapshot(_ context.Context, project string, snapshot []byte, throughSeq int64) error {
	blob, digest, err := sealSnapshot(snapshot)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[project] = memorySnapshot{blob: blob, digest: digest, through: throughSeq}
	kept := m.updates[project][:0]
	for _, u := range m.updates[project] {
		if u.seq > throughSeq {
			kept = append(kept, u)
		}
	}
	m.updates[project] = kept
	if m.nextSeq[project] < throughSeq {
		m.nextSeq[project] = throughSeq
	}
	return nil
}

func (m *Memory) ListProjects(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	for id := range m.snapshots {
		seen[id] = struct{}{}
	}
	for id, updates := range m.updates {
		if len(updates) > 0 {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }
