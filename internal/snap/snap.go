// Package snap constrains interactive furniture placement against a room envelope.
// Every function is pure; coordinates are meters with the room centered on the
// origin, X along the room length and Z along its width.
package snap

import (
	"math"

	"github.com/Ko-stant/room-layout-sync/internal/geometry"
)

type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
)

// Box is an axis-aligned bounding box given by its center and half extents.
type Box struct {
	Center geometry.Vec3
	Half   geometry.Vec3
}

// SnapToGrid rounds v to the nearest multiple of gridSize. It is the identity when gridSize <= 0.
func SnapToGrid(v, gridSize float64) float64 {
	if gridSize <= 0 {
		return v
	}
	return math.Round(v/gridSize) * gridSize
}

// SnapPositionToGrid grid-snaps the horizontal axes. Y passes through unchanged.
func SnapPositionToGrid(p geometry.Vec3, gridSize float64) geometry.Vec3 {
	return geometry.Vec3{
		X: SnapToGrid(p.X, gridSize),
		Y: p.Y,
		Z: SnapToGrid(p.Z, gridSize),
	}
}

// SnapToWall pins each horizontal coordinate to a room boundary when it lies
// strictly closer than threshold to it. Axes are handled independently, so a
// position near a corner snaps on both.
func SnapToWall(p geometry.Vec3, roomLength, roomWidth, threshold float64) geometry.Vec3 {
	p.X = snapAxisToBoundary(p.X, roomLength/2, threshold)
	p.Z = snapAxisToBoundary(p.Z, roomWidth/2, threshold)
	return p
}

func snapAxisToBoundary(v, half, threshold float64) float64 {
	if math.Abs(v-(-half)) < threshold {
		return -half
	}
	if math.Abs(v-half) < threshold {
		return half
	}
	return v
}

// ClampToRoom keeps an object's footprint inside the room: each horizontal
// coordinate ends up in [-half room + object half extent, half room - object half extent].
// An object wider than the room is centered on that axis.
func ClampToRoom(p geometry.Vec3, roomLength, roomWidth, halfWidth, halfDepth float64) geometry.Vec3 {
	p.X = clampAxis(p.X, roomLength/2, halfWidth)
	p.Z = clampAxis(p.Z, roomWidth/2, halfDepth)
	return p
}

func clampAxis(v, halfRoom, halfObject float64) float64 {
	lo := -halfRoom + halfObject
	hi := halfRoom - halfObject
	if lo > hi {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

// AlignToObject pins moving's coordinate on axis to target's when they differ by less than threshold.
func AlignToObject(moving, target geometry.Vec3, axis Axis, threshold float64) geometry.Vec3 {
	switch axis {
	case AxisX:
		if math.Abs(moving.X-target.X) < threshold {
			moving.X = target.X
		}
	case AxisY:
		if math.Abs(moving.Y-target.Y) < threshold {
			moving.Y = target.Y
		}
	case AxisZ:
		if math.Abs(moving.Z-target.Z) < threshold {
			moving.Z = target.Z
		}
	}
	return moving
}

// BoxesOverlap reports whether two boxes overlap on the horizontal plane.
// Boxes that only touch do not overlap.
func BoxesOverlap(a, b Box) bool {
	return math.Abs(a.Center.X-b.Center.X) < a.Half.X+b.Half.X &&
		math.Abs(a.Center.Z-b.Center.Z) < a.Half.Z+b.Half.Z
}

// RotatedHalfExtents returns the horizontal half extents of a box rotated about Y.
func RotatedHalfExtents(half geometry.Vec3, rotationY float64) geometry.Vec3 {
	c := math.Abs(math.Cos(rotationY))
	s := math.Abs(math.Sin(rotationY))
	return geometry.Vec3{
		X: c*half.X + s*half.Z,
		Y: half.Y,
		Z: s*half.X + c*half.Z,
	}
}

// Pipeline is the fixed placement order: grid snap, then wall snap, then clamp.
type Pipeline struct {
	RoomLength    float64
	RoomWidth     float64
	GridSize      float64
	WallThreshold float64
}

// NewPipeline builds a pipeline for a room envelope given in millimeters.
func NewPipeline(room geometry.RoomEnvelope, gridSize, wallThreshold float64) Pipeline {
	length, width, _ := room.Meters()
	return Pipeline{RoomLength: length, RoomWidth: width, GridSize: gridSize, WallThreshold: wallThreshold}
}

// Apply runs grid → wall → clamp for an object with the given horizontal half extents.
func (p Pipeline) Apply(pos geometry.Vec3, halfWidth, halfDepth float64) geometry.Vec3 {
	pos = SnapPositionToGrid(pos, p.GridSize)
	pos = SnapToWall(pos, p.RoomLength, p.RoomWidth, p.WallThreshold)
	return p.Clamp(pos, halfWidth, halfDepth)
}

// Clamp runs only the clamp step.
func (p Pipeline) Clamp(pos geometry.Vec3, halfWidth, halfDepth float64) geometry.Vec3 {
	return ClampToRoom(pos, p.RoomLength, p.RoomWidth, halfWidth, halfDepth)
}
