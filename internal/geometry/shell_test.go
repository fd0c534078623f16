package geometry

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

const tolerance = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestBuild_DoorOnSouthWall(t *testing.T) {
	room := RoomEnvelope{Length: 4000, Width: 3000, Height: 2800}
	door := WallOpening{Wall: South, Offset: 800, Width: 900, Height: 2100, Sill: 0}

	shell := Build(room, []WallOpening{door})
	south := shell.SegmentsForWall(South)
	if len(south) != 3 {
		t.Fatalf("expected 3 south segments, got %d: %+v", len(south), south)
	}

	want := []struct {
		kind        SegmentKind
		start, end  float64
		bottom, top float64
	}{
		{SegmentBefore, 0, 0.8, 0, 2.8},
		{SegmentLintel, 0.8, 1.7, 2.1, 2.8},
		{SegmentAfter, 1.7, 4.0, 0, 2.8},
	}
	for i, w := range want {
		got := south[i]
		if got.Kind != w.kind {
			t.Errorf("segment %d: expected kind %s, got %s", i, w.kind, got.Kind)
		}
		if !near(got.Start, w.start) || !near(got.End, w.end) || !near(got.Bottom, w.bottom) || !near(got.Top, w.top) {
			t.Errorf("segment %d: expected span [%g,%g]x[%g,%g], got [%g,%g]x[%g,%g]",
				i, w.start, w.end, w.bottom, w.top, got.Start, got.End, got.Bottom, got.Top)
		}
	}
	if !near(south[1].Size.Height, 0.7) {
		t.Errorf("expected lintel height 0.7m, got %g", south[1].Size.Height)
	}

	for _, wall := range []WallID{North, East, West} {
		if segs := shell.SegmentsForWall(wall); len(segs) != 1 || segs[0].Kind != SegmentFull {
			t.Errorf("expected one full segment on %s, got %+v", wall, segs)
		}
	}
}

func TestBuild_FullHeightOpeningHasNoLintelOrSill(t *testing.T) {
	room := RoomEnvelope{Length: 5000, Width: 4000, Height: 2500}
	opening := WallOpening{Wall: North, Offset: 1000, Width: 1200, Height: 2500, Sill: 0}

	segs := Build(room, []WallOpening{opening}).SegmentsForWall(North)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].Kind != SegmentBefore || segs[1].Kind != SegmentAfter {
		t.Errorf("expected before/after, got %s/%s", segs[0].Kind, segs[1].Kind)
	}
}

func TestBuild_OmitsDegenerateSegments(t *testing.T) {
	room := RoomEnvelope{Length: 3000, Width: 3000, Height: 2400}
	openings := []WallOpening{
		{Wall: West, Offset: 0, Width: 1000, Height: 2400},
		{Wall: West, Offset: 1000, Width: 1000, Height: 2400},
		{Wall: West, Offset: 2000, Width: 1000, Height: 2400},
	}

	segs := Build(room, openings).SegmentsForWall(West)
	if len(segs) != 0 {
		t.Fatalf("expected a fully open wall to produce no segments, got %+v", segs)
	}
	for _, s := range Build(room, openings[:1]).SegmentsForWall(West) {
		if s.Size.Width <= tolerance || s.Size.Height <= tolerance {
			t.Errorf("degenerate segment emitted: %+v", s)
		}
	}
}

func TestBuild_WindowProducesSillAndLintel(t *testing.T) {
	room := RoomEnvelope{Length: 4000, Width: 3000, Height: 2700}
	window := WallOpening{Wall: East, Offset: 1000, Width: 1000, Height: 1200, Sill: 900}

	segs := Build(room, []WallOpening{window}).SegmentsForWall(East)
	kinds := make([]SegmentKind, len(segs))
	for i, s := range segs {
		kinds[i] = s.Kind
	}
	want := []SegmentKind{SegmentBefore, SegmentLintel, SegmentSill, SegmentAfter}
	if len(kinds) != len(want) {
		t.Fatalf("expected kinds %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected kinds %v, got %v", want, kinds)
		}
	}
	if !near(segs[2].Top, 0.9) {
		t.Errorf("expected sill top at 0.9m, got %g", segs[2].Top)
	}
}

func TestBuild_WallPlacement(t *testing.T) {
	room := RoomEnvelope{Length: 4000, Width: 3000, Height: 2800}
	shell := Build(room, nil)

	cases := []struct {
		wall     WallID
		position Vec3
		rotation float64
	}{
		{North, Vec3{X: 0, Y: 1.4, Z: -1.5 - WallThickness/2}, 0},
		{South, Vec3{X: 0, Y: 1.4, Z: 1.5 + WallThickness/2}, math.Pi},
		{East, Vec3{X: 2 + WallThickness/2, Y: 1.4, Z: 0}, -math.Pi / 2},
		{West, Vec3{X: -2 - WallThickness/2, Y: 1.4, Z: 0}, math.Pi / 2},
	}
	for _, c := range cases {
		segs := shell.SegmentsForWall(c.wall)
		if len(segs) != 1 {
			t.Fatalf("%s: expected 1 segment, got %d", c.wall, len(segs))
		}
		p := segs[0].Position
		if !near(p.X, c.position.X) || !near(p.Y, c.position.Y) || !near(p.Z, c.position.Z) {
			t.Errorf("%s: expected position %+v, got %+v", c.wall, c.position, p)
		}
		if !near(segs[0].RotationY, c.rotation) {
			t.Errorf("%s: expected rotation %g, got %g", c.wall, c.rotation, segs[0].RotationY)
		}
	}

	if shell.Ceiling == nil || !near(shell.Ceiling.Position.Y, 2.8) {
		t.Errorf("expected ceiling at 2.8m, got %+v", shell.Ceiling)
	}
	if !near(shell.Floor.Size.Width, 4) || !near(shell.Floor.Size.Thickness, 3) {
		t.Errorf("expected floor footprint 4x3, got %+v", shell.Floor.Size)
	}
}

func TestBuild_AlongWallOffsetsMapIntoWorld(t *testing.T) {
	room := RoomEnvelope{Length: 4000, Width: 3000, Height: 2800}
	// A full-height opening leaves a "before" panel whose center is half way to the opening.
	opening := WallOpening{Wall: East, Offset: 1000, Width: 500, Height: 2800}

	before := Build(room, []WallOpening{opening}).SegmentsForWall(East)[0]
	if before.Kind != SegmentBefore {
		t.Fatalf("expected before segment, got %s", before.Kind)
	}
	// East wall runs from z=-1.5 towards +z.
	if !near(before.Position.Z, -1.5+0.5) {
		t.Errorf("expected before panel centered at z=-1.0, got %g", before.Position.Z)
	}

	opening.Wall = South
	before = Build(room, []WallOpening{opening}).SegmentsForWall(South)[0]
	// South wall runs from x=+2 towards -x.
	if !near(before.Position.X, 2-0.5) {
		t.Errorf("expected before panel centered at x=1.5, got %g", before.Position.X)
	}
}

func TestBuild_WithoutCeiling(t *testing.T) {
	shell := BuildWithOptions(RoomEnvelope{Length: 1000, Width: 1000, Height: 1000}, nil, Options{})
	if shell.Ceiling != nil {
		t.Errorf("expected no ceiling, got %+v", shell.Ceiling)
	}
	if got := shell.Walls[0].Size.Thickness; !near(got, WallThickness) {
		t.Errorf("expected default thickness %g, got %g", WallThickness, got)
	}
}

func TestBuild_OverlappingOpeningsEarliestWins(t *testing.T) {
	room := RoomEnvelope{Length: 4000, Width: 3000, Height: 2800}
	openings := []WallOpening{
		{Wall: North, Offset: 1500, Width: 1000, Height: 2800},
		{Wall: North, Offset: 1000, Width: 1000, Height: 2800},
	}

	segs := Build(room, openings).SegmentsForWall(North)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %+v", segs)
	}
	if !near(segs[0].End, 1.0) || !near(segs[1].Start, 2.0) {
		t.Errorf("expected the opening at 1000mm to win, got %+v", segs)
	}
}

func TestBuild_VolumeConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		room := RoomEnvelope{
			Length: 1000 + rng.Float64()*9000,
			Width:  1000 + rng.Float64()*9000,
			Height: 2000 + rng.Float64()*2000,
		}
		var openings []WallOpening
		for _, wall := range Walls {
			openings = append(openings, randomOpenings(rng, room, wall)...)
		}
		if err := ValidateOpenings(room, openings); err != nil {
			t.Fatalf("trial %d: generated invalid openings: %v", trial, err)
		}

		shell := Build(room, openings)
		_, _, height := room.Meters()
		for _, wall := range Walls {
			wallLength := room.WallLength(wall) / MillimetersPerMeter
			expected := wallLength * height * WallThickness
			for _, o := range openings {
				if o.Wall == wall {
					expected -= (o.Width / MillimetersPerMeter) * (o.Height / MillimetersPerMeter) * WallThickness
				}
			}
			got := 0.0
			for _, s := range shell.SegmentsForWall(wall) {
				got += s.Volume()
			}
			if math.Abs(got-expected) > 1e-9 {
				t.Fatalf("trial %d wall %s: expected volume %g, got %g", trial, wall, expected, got)
			}
		}
	}
}

func randomOpenings(rng *rand.Rand, room RoomEnvelope, wall WallID) []WallOpening {
	count := rng.Intn(4)
	if count == 0 {
		return nil
	}
	wallLength := room.WallLength(wall)
	slot := wallLength / float64(count)

	openings := make([]WallOpening, 0, count)
	for i := 0; i < count; i++ {
		width := slot * (0.2 + 0.6*rng.Float64())
		offset := float64(i)*slot + rng.Float64()*(slot-width)
		sill := 0.0
		if rng.Intn(2) == 0 {
			sill = rng.Float64() * room.Height * 0.4
		}
		height := (room.Height - sill) * (0.3 + 0.7*rng.Float64())
		if rng.Intn(5) == 0 {
			height = room.Height - sill
		}
		openings = append(openings, WallOpening{Wall: wall, Offset: offset, Width: width, Height: height, Sill: sill})
	}
	// input order is irrelevant to the engine
	rng.Shuffle(len(openings), func(i, j int) { openings[i], openings[j] = openings[j], openings[i] })
	return openings
}

func TestValidateOpenings(t *testing.T) {
	room := RoomEnvelope{Length: 4000, Width: 3000, Height: 2800}

	if err := ValidateOpenings(room, []WallOpening{{Wall: South, Offset: 800, Width: 900, Height: 2100}}); err != nil {
		t.Fatalf("expected valid door, got %v", err)
	}

	cases := []struct {
		name    string
		room    RoomEnvelope
		opening []WallOpening
	}{
		{"zero room", RoomEnvelope{Length: 0, Width: 3000, Height: 2800}, nil},
		{"unknown wall", room, []WallOpening{{Wall: "up", Width: 1, Height: 1}}},
		{"negative offset", room, []WallOpening{{Wall: North, Offset: -1, Width: 100, Height: 100}}},
		{"past wall end", room, []WallOpening{{Wall: East, Offset: 2500, Width: 600, Height: 100}}},
		{"above ceiling", room, []WallOpening{{Wall: North, Offset: 0, Width: 100, Height: 2000, Sill: 900}}},
		{"overlap", room, []WallOpening{
			{Wall: North, Offset: 0, Width: 1000, Height: 2000},
			{Wall: North, Offset: 900, Width: 1000, Height: 2000},
		}},
	}
	for _, c := range cases {
		if err := ValidateOpenings(c.room, c.opening); err == nil {
			t.Errorf("%s: expected error", c.name)
		}
	}

	err := ValidateOpenings(room, []WallOpening{{Wall: West, Offset: 0, Width: 4000, Height: 100}})
	var openingErr *OpeningError
	if !errors.As(err, &openingErr) || openingErr.Wall != West {
		t.Errorf("expected OpeningError for west wall, got %v", err)
	}
}

func TestParseRoom(t *testing.T) {
	data := []byte(`
id: living
name: Living room
room:
  length: 4000
  width: 3000
  height: 2800
openings:
  - wall: south
    offset: 800
    width: 900
    height: 2100
    sill: 0
`)
	def, err := ParseRoom(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.ID != "living" || len(def.Openings) != 1 || def.Openings[0].Wall != South {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if n := len(def.Shell().SegmentsForWall(South)); n != 3 {
		t.Errorf("expected 3 south segments, got %d", n)
	}

	if _, err := ParseRoom([]byte("room: {length: -1, width: 1, height: 1}")); err == nil {
		t.Error("expected error for negative room")
	}
}
