package crdt

import (
	"math"

	"github.com/Ko-stant/room-layout-sync/internal/geometry"
)

// Field names one last-writer-wins register of a furniture item. Every vector
// component is its own register so concurrent edits to different axes both survive.
type Field string

const (
	FieldType     Field = "type"
	FieldCategory Field = "category"
	FieldColor    Field = "color"
	FieldDeleted  Field = "deleted"

	FieldPosX   Field = "pos.x"
	FieldPosY   Field = "pos.y"
	FieldPosZ   Field = "pos.z"
	FieldRotX   Field = "rot.x"
	FieldRotY   Field = "rot.y"
	FieldRotZ   Field = "rot.z"
	FieldScaleX Field = "scale.x"
	FieldScaleY Field = "scale.y"
	FieldScaleZ Field = "scale.z"
	FieldExtX   Field = "ext.x"
	FieldExtY   Field = "ext.y"
	FieldExtZ   Field = "ext.z"
)

var knownFields = map[Field]struct{}{
	FieldType: {}, FieldCategory: {}, FieldColor: {}, FieldDeleted: {},
	FieldPosX: {}, FieldPosY: {}, FieldPosZ: {},
	FieldRotX: {}, FieldRotY: {}, FieldRotZ: {},
	FieldScaleX: {}, FieldScaleY: {}, FieldScaleZ: {},
	FieldExtX: {}, FieldExtY: {}, FieldExtZ: {},
}

// Value is the content of a register. Only one member is meaningful for a given field.
type Value struct {
	Num  float64 `cbor:"n,omitempty"`
	Str  string  `cbor:"s,omitempty"`
	Bool bool    `cbor:"b,omitempty"`
}

func Num(f float64) Value   { return Value{Num: f} }
func Str(s string) Value    { return Value{Str: s} }
func Bool(b bool) Value     { return Value{Bool: b} }
func (v Value) valid() bool { return !math.IsNaN(v.Num) && !math.IsInf(v.Num, 0) }

// Stamp orders writes to the same register: Lamport clock first, peer id breaks ties.
type Stamp struct {
	Clock uint64 `cbor:"c"`
	Peer  string `cbor:"p"`
}

// After reports whether s wins over o.
func (s Stamp) After(o Stamp) bool {
	if s.Clock != o.Clock {
		return s.Clock > o.Clock
	}
	return s.Peer > o.Peer
}

// Op is a single register write. Seq is the writing peer's own sequence number,
// used only for state vector bookkeeping.
type Op struct {
	Item  string `cbor:"i"`
	Field Field  `cbor:"f"`
	Value Value  `cbor:"v"`
	Stamp Stamp  `cbor:"t"`
	Seq   uint64 `cbor:"q"`
}

// Update is the unit of replication: a delta, a catch-up diff or a full snapshot.
// Covers is nil for a plain delta. For a diff it is the sender's state vector
// at the time the diff was computed; the receiver may treat everything below
// it as seen.
type Update struct {
	Ops    []Op        `cbor:"o"`
	Covers StateVector `cbor:"c"`
}

// Applied is the outcome of merging an update.
type Applied struct {
	// Ops are the ops that were new to this replica.
	Ops []Op
	// Delta encodes Ops alone, ready to forward to other replicas. Nil when
	// nothing was new.
	Delta []byte
	// Catchup reports whether the update was a diff carrying a state vector.
	Catchup bool
}

// StateVector maps a peer id to the highest contiguous sequence number
// incorporated from that peer.
type StateVector map[string]uint64

// Clone returns a copy of the vector.
func (sv StateVector) Clone() StateVector {
	out := make(StateVector, len(sv))
	for k, v := range sv {
		out[k] = v
	}
	return out
}

// Transform is the editable placement of an item.
type Transform struct {
	Position geometry.Vec3 `json:"position"`
	Rotation geometry.Vec3 `json:"rotation"`
	Scale    geometry.Vec3 `json:"scale"`
}

// FurnitureItem is the materialized view of one item; this is the shape that
// crosses into persistence.
type FurnitureItem struct {
	ID          string        `json:"id" yaml:"id"`
	Type        string        `json:"type" yaml:"type"`
	Category    string        `json:"category,omitempty" yaml:"category"`
	Color       string        `json:"color,omitempty" yaml:"color"`
	Position    geometry.Vec3 `json:"position" yaml:"position"`
	Rotation    geometry.Vec3 `json:"rotation" yaml:"rotation"`
	Scale       geometry.Vec3 `json:"scale" yaml:"scale"`
	HalfExtents geometry.Vec3 `json:"halfExtents" yaml:"halfExtents"`
}

// Transform returns the item's current placement.
func (f FurnitureItem) Transform() Transform {
	return Transform{Position: f.Position, Rotation: f.Rotation, Scale: f.Scale}
}

func transformFields(t Transform) map[Field]Value {
	return map[Field]Value{
		FieldPosX: Num(t.Position.X), FieldPosY: Num(t.Position.Y), FieldPosZ: Num(t.Position.Z),
		FieldRotX: Num(t.Rotation.X), FieldRotY: Num(t.Rotation.Y), FieldRotZ: Num(t.Rotation.Z),
		FieldScaleX: Num(t.Scale.X), FieldScaleY: Num(t.Scale.Y), FieldScaleZ: Num(t.Scale.Z),
	}
}

func itemFields(item FurnitureItem) map[Field]Value {
	fields := transformFields(item.Transform())
	fields[FieldType] = Str(item.Type)
	fields[FieldCategory] = Str(item.Category)
	fields[FieldColor] = Str(item.Color)
	fields[FieldExtX] = Num(item.HalfExtents.X)
	fields[FieldExtY] = Num(item.HalfExtents.Y)
	fields[FieldExtZ] = Num(item.HalfExtents.Z)
	fields[FieldDeleted] = Bool(false)
	return fields
}
