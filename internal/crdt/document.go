// Package crdt implements the replicated furniture document: a map from item id
// to per-field last-writer-wins registers. Merging is commutative, associative
// and idempotent, so replicas that have seen the same set of updates hold the
// same state regardless of delivery order or duplication.
package crdt

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Ko-stant/room-layout-sync/internal/codec"
	"github.com/Ko-stant/room-layout-sync/internal/geometry"
)

var (
	ErrMalformedUpdate = errors.New("malformed update")
	ErrUnknownItem     = errors.New("unknown furniture item")
	ErrInvalidItem     = errors.New("invalid furniture item")
)

// maxClock rejects stamps that would let a peer exhaust the Lamport clock.
const maxClock = 1 << 62

// Origin tells observers where a change came from. Only local changes are sent
// to peers; remote ones were already delivered by the transport.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "remote"
}

// Event is delivered to observers after every change to the document.
type Event struct {
	Origin Origin
	// Delta is the encoded update holding the ops that were new to this replica.
	Delta []byte
	// Items lists the ids whose materialized value may have changed.
	Items []string
}

// Document is one replica of the furniture map.
type Document struct {
	mu        sync.RWMutex
	peer      string
	clock     uint64
	seq       uint64
	registers map[string]map[Field]Op
	vector    StateVector
	pending   map[string]map[uint64]struct{}
	observers map[int]func(Event)
	nextObs   int
}

// NewDocument creates an empty replica owned by peer. Peer ids must be unique
// across every replica of the document.
func NewDocument(peer string) *Document {
	return &Document{
		peer:      peer,
		registers: make(map[string]map[Field]Op),
		vector:    make(StateVector),
		pending:   make(map[string]map[uint64]struct{}),
		observers: make(map[int]func(Event)),
	}
}

// Peer returns the replica's peer id.
func (d *Document) Peer() string {
	return d.peer
}

// Observe registers fn to be called after each change. The returned function
// removes the observer. Observers run outside the document lock.
func (d *Document) Observe(fn func(Event)) func() {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

// AddItem creates or revives an item with every field set.
func (d *Document) AddItem(item FurnitureItem) error {
	if item.ID == "" || item.Type == "" {
		return fmt.Errorf("%w: id and type are required", ErrInvalidItem)
	}
	if item.Scale == (geometry.Vec3{}) {
		item.Scale = geometry.Vec3{X: 1, Y: 1, Z: 1}
	}
	return d.write(item.ID, itemFields(item), false)
}

// SetTransform writes the fields of t that differ from the current value, so
// concurrent edits to other axes are not overwritten.
func (d *Document) SetTransform(id string, t Transform) error {
	return d.write(id, transformFields(t), true)
}

// SetColor changes an item's display color.
func (d *Document) SetColor(id, color string) error {
	return d.write(id, map[Field]Value{FieldColor: Str(color)}, true)
}

// RemoveItem tombstones an item. A later AddItem with the same id revives it.
func (d *Document) RemoveItem(id string) error {
	return d.write(id, map[Field]Value{FieldDeleted: Bool(true)}, true)
}

func (d *Document) write(id string, fields map[Field]Value, mustExist bool) error {
	for _, v := range fields {
		if !v.valid() {
			return fmt.Errorf("%w: non-finite value for %s", ErrInvalidItem, id)
		}
	}

	d.mu.Lock()
	reg, exists := d.registers[id]
	if mustExist && (!exists || isDeleted(reg)) {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}

	names := make([]Field, 0, len(fields))
	for f, v := range fields {
		if exists {
			if cur, ok := reg[f]; ok && cur.Value == v {
				continue
			}
		}
		names = append(names, f)
	}
	if len(names) == 0 {
		d.mu.Unlock()
		return nil
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	ops := make([]Op, 0, len(names))
	for _, f := range names {
		d.clock++
		d.seq++
		op := Op{Item: id, Field: f, Value: fields[f], Stamp: Stamp{Clock: d.clock, Peer: d.peer}, Seq: d.seq}
		d.integrate(op)
		ops = append(ops, op)
	}
	observers := d.observerList()
	d.mu.Unlock()

	delta, err := codec.Marshal(Update{Ops: ops})
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	notify(observers, Event{Origin: OriginLocal, Delta: delta, Items: []string{id}})
	return nil
}

// ApplyUpdate merges an encoded update from another replica. A malformed
// update is rejected as a whole and leaves the document untouched. The
// sender's Covers are trusted to move the frontier.
func (d *Document) ApplyUpdate(data []byte, origin Origin) (Applied, error) {
	return d.apply(data, origin, false)
}

// ApplyClientUpdate is ApplyUpdate for updates from replicas that are not
// the authority. Covers may move a peer's frontier no further than the
// highest seq the update itself carries for that peer, so an inflated vector
// cannot hide ops that were never merged.
func (d *Document) ApplyClientUpdate(data []byte, origin Origin) (Applied, error) {
	return d.apply(data, origin, true)
}

func (d *Document) apply(data []byte, origin Origin, capCovers bool) (Applied, error) {
	var u Update
	if err := codec.Unmarshal(data, &u); err != nil {
		return Applied{}, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	if err := validateUpdate(u); err != nil {
		return Applied{}, err
	}

	d.mu.Lock()
	var novel []Op
	touched := make(map[string]struct{})
	for _, op := range u.Ops {
		if d.hasSeen(op.Stamp.Peer, op.Seq) {
			continue
		}
		novel = append(novel, op)
		if d.integrate(op) {
			touched[op.Item] = struct{}{}
		}
	}
	var carried map[string]uint64
	if capCovers {
		carried = make(map[string]uint64)
		for _, op := range u.Ops {
			carried[op.Stamp.Peer] = max(carried[op.Stamp.Peer], op.Seq)
		}
	}
	for peer, n := range u.Covers {
		if capCovers {
			n = min(n, carried[peer])
		}
		d.advance(peer, n)
	}
	observers := d.observerList()
	d.mu.Unlock()

	applied := Applied{Ops: novel, Catchup: u.Covers != nil}
	if len(novel) == 0 {
		return applied, nil
	}
	delta, err := codec.Marshal(Update{Ops: novel})
	if err != nil {
		return applied, fmt.Errorf("encode delta: %w", err)
	}
	applied.Delta = delta

	items := make([]string, 0, len(touched))
	for id := range touched {
		items = append(items, id)
	}
	sort.Strings(items)
	notify(observers, Event{Origin: origin, Delta: delta, Items: items})
	return applied, nil
}

func validateUpdate(u Update) error {
	for i, op := range u.Ops {
		switch {
		case op.Item == "":
			return fmt.Errorf("%w: op %d has no item", ErrMalformedUpdate, i)
		case op.Stamp.Peer == "":
			return fmt.Errorf("%w: op %d has no peer", ErrMalformedUpdate, i)
		case op.Seq == 0 || op.Stamp.Clock == 0 || op.Stamp.Clock > maxClock:
			return fmt.Errorf("%w: op %d has invalid stamp", ErrMalformedUpdate, i)
		case !op.Value.valid():
			return fmt.Errorf("%w: op %d has non-finite value", ErrMalformedUpdate, i)
		}
		if _, ok := knownFields[op.Field]; !ok {
			return fmt.Errorf("%w: op %d has unknown field %q", ErrMalformedUpdate, i, op.Field)
		}
	}
	for peer := range u.Covers {
		if peer == "" {
			return fmt.Errorf("%w: empty peer in state vector", ErrMalformedUpdate)
		}
	}
	return nil
}

// integrate applies op to its register and records its sequence number.
// Callers hold d.mu. Reports whether the register changed.
func (d *Document) integrate(op Op) bool {
	d.markSeen(op.Stamp.Peer, op.Seq)
	if op.Stamp.Clock > d.clock {
		d.clock = op.Stamp.Clock
	}
	reg, ok := d.registers[op.Item]
	if !ok {
		reg = make(map[Field]Op)
		d.registers[op.Item] = reg
	}
	if cur, ok := reg[op.Field]; ok && !op.Stamp.After(cur.Stamp) {
		return false
	}
	reg[op.Field] = op
	return true
}

func (d *Document) hasSeen(peer string, seq uint64) bool {
	if seq <= d.vector[peer] {
		return true
	}
	_, ok := d.pending[peer][seq]
	return ok
}

func (d *Document) markSeen(peer string, seq uint64) {
	if seq <= d.vector[peer] {
		return
	}
	if seq == d.vector[peer]+1 {
		d.vector[peer] = seq
		d.drainPending(peer)
		return
	}
	set, ok := d.pending[peer]
	if !ok {
		set = make(map[uint64]struct{})
		d.pending[peer] = set
	}
	set[seq] = struct{}{}
}

// advance moves the frontier for peer up to n, as promised by a catch-up diff.
func (d *Document) advance(peer string, n uint64) {
	if n <= d.vector[peer] {
		return
	}
	d.vector[peer] = n
	for seq := range d.pending[peer] {
		if seq <= n {
			delete(d.pending[peer], seq)
		}
	}
	d.drainPending(peer)
	if peer == d.peer && n > d.seq {
		// our own ops from a previous life of this peer id
		d.seq = n
	}
}

func (d *Document) drainPending(peer string) {
	set := d.pending[peer]
	for {
		next := d.vector[peer] + 1
		if _, ok := set[next]; !ok {
			break
		}
		delete(set, next)
		d.vector[peer] = next
	}
	if len(set) == 0 {
		delete(d.pending, peer)
	}
}

// StateVector returns a copy of the replica's causal frontier.
func (d *Document) StateVector() StateVector {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.vector.Clone()
}

// Diff returns the smallest update that brings a replica at remote up to date
// with this one. Superseded writes are not retained, so only current register
// values above the remote frontier are included.
func (d *Document) Diff(remote StateVector) Update {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ops []Op
	for _, reg := range d.registers {
		for _, op := range reg {
			if op.Seq > remote[op.Stamp.Peer] {
				ops = append(ops, op)
			}
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Stamp.Peer != ops[j].Stamp.Peer {
			return ops[i].Stamp.Peer < ops[j].Stamp.Peer
		}
		return ops[i].Seq < ops[j].Seq
	})
	return Update{Ops: ops, Covers: d.vector.Clone()}
}

// EncodeDiff is Diff followed by encoding.
func (d *Document) EncodeDiff(remote StateVector) ([]byte, error) {
	return codec.Marshal(d.Diff(remote))
}

// Snapshot encodes the full document state.
func (d *Document) Snapshot() ([]byte, error) {
	return d.EncodeDiff(nil)
}

// Item returns the materialized item, or false if it does not exist or was removed.
func (d *Document) Item(id string) (FurnitureItem, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	reg, ok := d.registers[id]
	if !ok || isDeleted(reg) || reg[FieldType].Value.Str == "" {
		return FurnitureItem{}, false
	}
	return materialize(id, reg), true
}

// Items returns every live item sorted by id.
func (d *Document) Items() []FurnitureItem {
	d.mu.RLock()
	defer d.mu.RUnlock()
	items := make([]FurnitureItem, 0, len(d.registers))
	for id, reg := range d.registers {
		if isDeleted(reg) || reg[FieldType].Value.Str == "" {
			continue
		}
		items = append(items, materialize(id, reg))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// LoadItems adds every item as a local write; used to seed a document from persistence.
func (d *Document) LoadItems(items []FurnitureItem) error {
	for _, item := range items {
		if err := d.AddItem(item); err != nil {
			return fmt.Errorf("load %s: %w", item.ID, err)
		}
	}
	return nil
}

func isDeleted(reg map[Field]Op) bool {
	return reg[FieldDeleted].Value.Bool
}

func materialize(id string, reg map[Field]Op) FurnitureItem {
	num := func(f Field, def float64) float64 {
		if op, ok := reg[f]; ok {
			return op.Value.Num
		}
		return def
	}
	return FurnitureItem{
		ID:          id,
		Type:        reg[FieldType].Value.Str,
		Category:    reg[FieldCategory].Value.Str,
		Color:       reg[FieldColor].Value.Str,
		Position:    geometry.Vec3{X: num(FieldPosX, 0), Y: num(FieldPosY, 0), Z: num(FieldPosZ, 0)},
		Rotation:    geometry.Vec3{X: num(FieldRotX, 0), Y: num(FieldRotY, 0), Z: num(FieldRotZ, 0)},
		Scale:       geometry.Vec3{X: num(FieldScaleX, 1), Y: num(FieldScaleY, 1), Z: num(FieldScaleZ, 1)},
		HalfExtents: geometry.Vec3{X: num(FieldExtX, 0), Y: num(FieldExtY, 0), Z: num(FieldExtZ, 0)},
	}
}

func (d *Document) observerList() []func(Event) {
	if len(d.observers) == 0 {
		return nil
	}
	ids := make([]int, 0, len(d.observers))
	for id := range d.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, d.observers[id])
	}
	return out
}

func notify(observers []func(Event), ev Event) {
	for _, fn := range observers {
		fn(ev)
	}
}

// EncodeStateVector encodes a state vector for a sync-request.
func EncodeStateVector(sv StateVector) ([]byte, error) {
	if sv == nil {
		sv = StateVector{}
	}
	return codec.Marshal(sv)
}

// DecodeStateVector decodes a sync-request payload.
func DecodeStateVector(data []byte) (StateVector, error) {
	var sv StateVector
	if err := codec.Unmarshal(data, &sv); err != nil {
		return nil, fmt.Errorf("%w: state vector: %v", ErrMalformedUpdate, err)
	}
	if sv == nil {
		sv = StateVector{}
	}
	return sv, nil
}
