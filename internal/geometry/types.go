package geometry

// MillimetersPerMeter converts the canonical input unit (mm) to the working unit (m).
const MillimetersPerMeter = 1000.0

// WallThickness is the fixed thickness of every generated wall panel, in meters.
const WallThickness = 0.1

// FloorThickness is the thickness used for the floor and ceiling panels, in meters.
const FloorThickness = 0.02

type WallID string

const (
	North WallID = "north"
	East  WallID = "east"
	South WallID = "south"
	West  WallID = "west"
)

// Walls lists the four cardinal walls in generation order.
var Walls = []WallID{North, East, South, West}

type SegmentKind string

const (
	SegmentFull    SegmentKind = "full"
	SegmentBefore  SegmentKind = "before"
	SegmentBetween SegmentKind = "between"
	SegmentAfter   SegmentKind = "after"
	SegmentLintel  SegmentKind = "lintel"
	SegmentSill    SegmentKind = "sill"
)

type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Mul multiplies component-wise.
func (v Vec3) Mul(o Vec3) Vec3 {
	return Vec3{X: v.X * o.X, Y: v.Y * o.Y, Z: v.Z * o.Z}
}

// RoomEnvelope is the room's interior size in millimeters. All values must be > 0.
type RoomEnvelope struct {
	Length float64 `json:"length" yaml:"length"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Meters returns length, width and height in the working unit.
func (r RoomEnvelope) Meters() (float64, float64, float64) {
	return r.Length / MillimetersPerMeter, r.Width / MillimetersPerMeter, r.Height / MillimetersPerMeter
}

// WallLength returns the along-wall length of a wall in millimeters.
func (r RoomEnvelope) WallLength(wall WallID) float64 {
	switch wall {
	case North, South:
		return r.Length
	default:
		return r.Width
	}
}

// WallOpening is a door or window cut into one wall. All values are millimeters;
// Offset is measured from the wall's left edge as seen from inside the room.
type WallOpening struct {
	Wall   WallID  `json:"wall" yaml:"wall"`
	Offset float64 `json:"offset" yaml:"offset"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Sill   float64 `json:"sill" yaml:"sill"`
}

// Top is the height of the opening's upper edge above the floor.
func (o WallOpening) Top() float64 {
	return o.Sill + o.Height
}

// End is the along-wall coordinate of the opening's right edge.
func (o WallOpening) End() float64 {
	return o.Offset + o.Width
}

type PanelSize struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Thickness float64 `json:"thickness"`
}

// Panel is a flat box: Width along its local X, Height along local Y and
// Thickness along local Z before rotation.
type Panel struct {
	Position  Vec3      `json:"position"`
	Size      PanelSize `json:"size"`
	RotationY float64   `json:"rotationY"`
}

// WallSegment is one rectangular piece of a wall. Start/End are along-wall
// coordinates and Bottom/Top heights, all in meters.
type WallSegment struct {
	Wall   WallID      `json:"wall"`
	Kind   SegmentKind `json:"kind"`
	Start  float64     `json:"start"`
	End    float64     `json:"end"`
	Bottom float64     `json:"bottom"`
	Top    float64     `json:"top"`
	Panel
}

// Volume returns the segment's volume in cubic meters.
func (s WallSegment) Volume() float64 {
	return s.Size.Width * s.Size.Height * s.Size.Thickness
}

// ShellDescription is everything a renderer needs to draw the room shell.
type ShellDescription struct {
	Floor   Panel         `json:"floor"`
	Ceiling *Panel        `json:"ceiling,omitempty"`
	Walls   []WallSegment `json:"walls"`
}

// SegmentsForWall returns the segments generated for a single wall, in order.
func (s ShellDescription) SegmentsForWall(wall WallID) []WallSegment {
	var out []WallSegment
	for _, seg := range s.Walls {
		if seg.Wall == wall {
			out = append(out, seg)
		}
	}
	return out
}
