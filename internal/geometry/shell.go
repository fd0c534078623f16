package geometry

import (
	"math"
	"sort"
)

// degenerateEpsilon is the smallest span (in millimeters) that still produces a panel.
const degenerateEpsilon = 1e-6

// Options tunes shell generation.
type Options struct {
	Ceiling       bool
	WallThickness float64 // meters; zero means WallThickness
}

// DefaultOptions includes the ceiling and uses the fixed wall thickness.
func DefaultOptions() Options {
	return Options{Ceiling: true, WallThickness: WallThickness}
}

// Build turns a room envelope and its wall openings into a shell description.
// Room dimensions must be positive and openings must satisfy ValidateOpenings;
// Build does not check either. When two openings on the same wall overlap the
// one with the smaller offset wins (the wider one on equal offsets) and the
// other is dropped.
func Build(room RoomEnvelope, openings []WallOpening) ShellDescription {
	return BuildWithOptions(room, openings, DefaultOptions())
}

// BuildWithOptions is Build with explicit options.
func BuildWithOptions(room RoomEnvelope, openings []WallOpening, opts Options) ShellDescription {
	thickness := opts.WallThickness
	if thickness <= 0 {
		thickness = WallThickness
	}
	length, width, height := room.Meters()

	shell := ShellDescription{
		Floor: Panel{
			Position: Vec3{X: 0, Y: 0, Z: 0},
			Size:     PanelSize{Width: length, Height: FloorThickness, Thickness: width},
		},
	}
	if opts.Ceiling {
		shell.Ceiling = &Panel{
			Position: Vec3{X: 0, Y: height, Z: 0},
			Size:     PanelSize{Width: length, Height: FloorThickness, Thickness: width},
		}
	}

	for _, wall := range Walls {
		spans := splitWall(room.WallLength(wall), room.Height, openingsOnWall(openings, wall))
		frame := newWallFrame(wall, length, width)
		for _, sp := range spans {
			shell.Walls = append(shell.Walls, frame.segment(sp, thickness))
		}
	}
	return shell
}

// span is a rectangle on the wall plane in millimeters.
type span struct {
	kind        SegmentKind
	start, end  float64
	bottom, top float64
}

// openingsOnWall filters openings by wall and sorts them by offset ascending,
// wider openings first on equal offsets.
func openingsOnWall(openings []WallOpening, wall WallID) []WallOpening {
	var out []WallOpening
	for _, o := range openings {
		if o.Wall == wall {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Offset != out[j].Offset {
			return out[i].Offset < out[j].Offset
		}
		return out[i].Width > out[j].Width
	})
	return out
}

// splitWall walks the sorted openings left to right and cuts the wall into spans.
func splitWall(wallLength, wallHeight float64, openings []WallOpening) []span {
	if len(openings) == 0 {
		return []span{{kind: SegmentFull, start: 0, end: wallLength, bottom: 0, top: wallHeight}}
	}

	var spans []span
	emit := func(s span) {
		if s.end-s.start <= degenerateEpsilon || s.top-s.bottom <= degenerateEpsilon {
			return
		}
		spans = append(spans, s)
	}

	cursor := 0.0
	placed := 0
	for _, o := range openings {
		if o.Offset < cursor-degenerateEpsilon {
			// overlaps an opening already cut into this wall
			continue
		}
		kind := SegmentBetween
		if placed == 0 {
			kind = SegmentBefore
		}
		emit(span{kind: kind, start: cursor, end: o.Offset, bottom: 0, top: wallHeight})
		if o.Top() < wallHeight {
			emit(span{kind: SegmentLintel, start: o.Offset, end: o.End(), bottom: o.Top(), top: wallHeight})
		}
		if o.Sill > 0 {
			emit(span{kind: SegmentSill, start: o.Offset, end: o.End(), bottom: 0, top: math.Min(o.Sill, wallHeight)})
		}
		cursor = o.End()
		placed++
	}
	emit(span{kind: SegmentAfter, start: cursor, end: wallLength, bottom: 0, top: wallHeight})
	return spans
}

// wallFrame maps along-wall coordinates into world space for one wall.
type wallFrame struct {
	wall      WallID
	origin    Vec3 // world position of along-wall 0 on the floor, on the room boundary
	direction Vec3 // unit vector of increasing along-wall offset
	outward   Vec3 // unit normal pointing out of the room
	rotationY float64
}

func newWallFrame(wall WallID, length, width float64) wallFrame {
	hl, hw := length/2, width/2
	switch wall {
	case North:
		return wallFrame{wall, Vec3{X: -hl, Z: -hw}, Vec3{X: 1}, Vec3{Z: -1}, 0}
	case East:
		return wallFrame{wall, Vec3{X: hl, Z: -hw}, Vec3{Z: 1}, Vec3{X: 1}, -math.Pi / 2}
	case South:
		return wallFrame{wall, Vec3{X: hl, Z: hw}, Vec3{X: -1}, Vec3{Z: 1}, math.Pi}
	default:
		return wallFrame{wall, Vec3{X: -hl, Z: hw}, Vec3{Z: -1}, Vec3{X: -1}, math.Pi / 2}
	}
}

// segment converts a millimeter span into a positioned wall panel in meters.
// The inner face of the panel lies on the room boundary.
func (f wallFrame) segment(s span, thickness float64) WallSegment {
	start := s.start / MillimetersPerMeter
	end := s.end / MillimetersPerMeter
	bottom := s.bottom / MillimetersPerMeter
	top := s.top / MillimetersPerMeter

	center := f.origin.
		Add(f.direction.Scale((start + end) / 2)).
		Add(f.outward.Scale(thickness / 2))
	center.Y = (bottom + top) / 2

	return WallSegment{
		Wall:   f.wall,
		Kind:   s.kind,
		Start:  start,
		End:    end,
		Bottom: bottom,
		Top:    top,
		Panel: Panel{
			Position:  center,
			Size:      PanelSize{Width: end - start, Height: top - bottom, Thickness: thickness},
			RotationY: f.rotationY,
		},
	}
}
