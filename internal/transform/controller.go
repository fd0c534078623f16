// Package transform turns interactive gestures into committed furniture
// transforms. Each item has a small idle/dragging state machine; every
// accepted update is constrained by the snap engine and written to the
// replicated document.
package transform

import (
	"errors"
	"fmt"
	"math"

	"github.com/Ko-stant/room-layout-sync/internal/crdt"
	"github.com/Ko-stant/room-layout-sync/internal/geometry"
	"github.com/Ko-stant/room-layout-sync/internal/snap"
)

var (
	ErrNotDragging     = errors.New("item is not being dragged")
	ErrAlreadyDragging = errors.New("item is already being dragged")
	ErrUnknownKind     = errors.New("unknown gesture kind")
)

type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

type Kind string

const (
	Start  Kind = "start"
	Update Kind = "update"
	End    Kind = "end"
)

type Mode string

const (
	Translate Mode = "translate"
	Rotate    Mode = "rotate"
	Scale     Mode = "scale"
)

// minScale keeps a scale gesture from collapsing an item.
const minScale = 0.05

// Gesture is one input event for one item. Mode is read on Start; updates
// read the component that matches the mode.
type Gesture struct {
	Item     string
	Kind     Kind
	Mode     Mode
	Position geometry.Vec3
	Rotation geometry.Vec3
	Scale    geometry.Vec3
}

// Settings are the user's snapping toggles.
type Settings struct {
	// Snapping enables grid and wall snap for translation. Clamping always applies.
	Snapping bool
	// RotationStep, in radians, quantizes rotation when positive.
	RotationStep float64
	// ScaleStep quantizes scale when positive.
	ScaleStep float64
	// AlignThreshold, in meters, pins a moved item to another item's X or Z
	// when positive and within range.
	AlignThreshold float64
}

// Document is the part of the replicated document the controller needs.
type Document interface {
	Item(id string) (crdt.FurnitureItem, bool)
	Items() []crdt.FurnitureItem
	SetTransform(id string, t crdt.Transform) error
}

// Result reports the outcome of one gesture.
type Result struct {
	State     State
	Transform crdt.Transform
	// Committed is true when the gesture wrote a new transform.
	Committed bool
	// Overlaps lists items whose footprint intersects the item's new footprint.
	Overlaps []string
}

// Controller drives one item.
type Controller struct {
	id       string
	doc      Document
	pipeline snap.Pipeline
	settings Settings

	state   State
	mode    Mode
	half    geometry.Vec3
	current crdt.Transform
}

func NewController(id string, doc Document, pipeline snap.Pipeline, settings Settings) *Controller {
	return &Controller{id: id, doc: doc, pipeline: pipeline, settings: settings}
}

func (c *Controller) State() State { return c.state }

// Handle is the single entry point for gestures.
func (c *Controller) Handle(g Gesture) (Result, error) {
	switch g.Kind {
	case Start:
		return c.start(g)
	case Update:
		return c.update(g)
	case End:
		return c.end()
	default:
		return Result{State: c.state}, fmt.Errorf("%w: %q", ErrUnknownKind, g.Kind)
	}
}

func (c *Controller) start(g Gesture) (Result, error) {
	if c.state == Dragging {
		return Result{State: c.state, Transform: c.current}, ErrAlreadyDragging
	}
	item, ok := c.doc.Item(c.id)
	if !ok {
		return Result{State: c.state}, fmt.Errorf("%w: %s", crdt.ErrUnknownItem, c.id)
	}
	c.state = Dragging
	c.mode = g.Mode
	if c.mode == "" {
		c.mode = Translate
	}
	c.half = item.HalfExtents
	c.current = item.Transform()
	return Result{State: c.state, Transform: c.current}, nil
}

func (c *Controller) update(g Gesture) (Result, error) {
	if c.state != Dragging {
		return Result{State: c.state}, ErrNotDragging
	}

	// Only the component owned by the mode is replaced; the rest is read from
	// the live item.
	item, ok := c.doc.Item(c.id)
	if !ok {
		c.state = Idle
		return Result{State: c.state, Transform: c.current}, fmt.Errorf("commit transform: %w: %s", crdt.ErrUnknownItem, c.id)
	}
	c.half = item.HalfExtents
	live := item.Transform()
	next := live
	switch c.mode {
	case Translate:
		next.Position = g.Position
	case Rotate:
		next.Rotation = quantize(g.Rotation, c.settings.RotationStep)
	case Scale:
		next.Scale = c.constrainScale(g.Scale)
	}
	next.Position = c.constrainPosition(next, c.mode == Translate)

	if next == live {
		c.current = live
		return Result{State: c.state, Transform: live}, nil
	}
	if err := c.doc.SetTransform(c.id, next); err != nil {
		// the item was removed underneath us; nothing left to drag
		c.state = Idle
		return Result{State: c.state, Transform: c.current}, fmt.Errorf("commit transform: %w", err)
	}
	c.current = next
	return Result{State: c.state, Transform: next, Committed: true, Overlaps: c.overlaps(next)}, nil
}

func (c *Controller) end() (Result, error) {
	if c.state != Dragging {
		return Result{State: c.state}, ErrNotDragging
	}
	c.state = Idle
	return Result{State: c.state, Transform: c.current}, nil
}

// constrainPosition applies the snap pipeline (translation with snapping on),
// or clamp only, then floors the vertical position so the item never sinks
// below the floor.
func (c *Controller) constrainPosition(t crdt.Transform, moving bool) geometry.Vec3 {
	half := snap.RotatedHalfExtents(c.half.Mul(t.Scale), t.Rotation.Y)
	var pos geometry.Vec3
	if moving && c.settings.Snapping {
		pos = c.pipeline.Apply(t.Position, half.X, half.Z)
		if c.settings.AlignThreshold > 0 {
			pos = c.pipeline.Clamp(c.align(pos), half.X, half.Z)
		}
	} else {
		pos = c.pipeline.Clamp(t.Position, half.X, half.Z)
	}
	if floor := half.Y; pos.Y < floor {
		pos.Y = floor
	}
	return pos
}

func (c *Controller) align(pos geometry.Vec3) geometry.Vec3 {
	for _, axis := range []snap.Axis{snap.AxisX, snap.AxisZ} {
		best := math.Inf(1)
		aligned := pos
		for _, other := range c.doc.Items() {
			if other.ID == c.id {
				continue
			}
			cand := snap.AlignToObject(pos, other.Position, axis, c.settings.AlignThreshold)
			if cand == pos {
				continue
			}
			if d := axisDistance(pos, other.Position, axis); d < best {
				best = d
				aligned = cand
			}
		}
		pos = aligned
	}
	return pos
}

func axisDistance(a, b geometry.Vec3, axis snap.Axis) float64 {
	if axis == snap.AxisX {
		return math.Abs(a.X - b.X)
	}
	return math.Abs(a.Z - b.Z)
}

func (c *Controller) constrainScale(s geometry.Vec3) geometry.Vec3 {
	s = quantize(s, c.settings.ScaleStep)
	s.X = math.Max(s.X, minScale)
	s.Y = math.Max(s.Y, minScale)
	s.Z = math.Max(s.Z, minScale)
	return s
}

func (c *Controller) overlaps(t crdt.Transform) []string {
	self := snap.Box{Center: t.Position, Half: snap.RotatedHalfExtents(c.half.Mul(t.Scale), t.Rotation.Y)}
	var ids []string
	for _, other := range c.doc.Items() {
		if other.ID == c.id {
			continue
		}
		box := snap.Box{Center: other.Position, Half: snap.RotatedHalfExtents(other.HalfExtents.Mul(other.Scale), other.Rotation.Y)}
		if snap.BoxesOverlap(self, box) {
			ids = append(ids, other.ID)
		}
	}
	return ids
}

func quantize(v geometry.Vec3, step float64) geometry.Vec3 {
	return geometry.Vec3{
		X: snap.SnapToGrid(v.X, step),
		Y: snap.SnapToGrid(v.Y, step),
		Z: snap.SnapToGrid(v.Z, step),
	}
}
