package geometry

import (
	"errors"
	"fmt"
)

// OpeningError describes why an opening violates the shell preconditions.
type OpeningError struct {
	Index  int
	Wall   WallID
	Reason string
}

func (e *OpeningError) Error() string {
	return fmt.Sprintf("opening %d on %s wall: %s", e.Index, e.Wall, e.Reason)
}

// ValidateRoom checks that every dimension is positive.
func ValidateRoom(room RoomEnvelope) error {
	if room.Length <= 0 || room.Width <= 0 || room.Height <= 0 {
		return fmt.Errorf("room dimensions must be positive, got %gx%gx%g mm", room.Length, room.Width, room.Height)
	}
	return nil
}

// ValidateOpenings checks the room and every opening against the shell
// preconditions, including overlap with other openings on the same wall.
// All violations are joined into the returned error.
func ValidateOpenings(room RoomEnvelope, openings []WallOpening) error {
	if err := ValidateRoom(room); err != nil {
		return err
	}

	var errs []error
	for i, o := range openings {
		if !isWall(o.Wall) {
			errs = append(errs, &OpeningError{Index: i, Wall: o.Wall, Reason: "unknown wall"})
			continue
		}
		wallLength := room.WallLength(o.Wall)
		switch {
		case o.Width <= 0 || o.Height <= 0:
			errs = append(errs, &OpeningError{Index: i, Wall: o.Wall, Reason: "width and height must be positive"})
		case o.Offset < 0:
			errs = append(errs, &OpeningError{Index: i, Wall: o.Wall, Reason: "offset must not be negative"})
		case o.Sill < 0:
			errs = append(errs, &OpeningError{Index: i, Wall: o.Wall, Reason: "sill must not be negative"})
		case o.End() > wallLength+degenerateEpsilon:
			errs = append(errs, &OpeningError{Index: i, Wall: o.Wall, Reason: fmt.Sprintf("extends to %g mm past wall length %g mm", o.End(), wallLength)})
		case o.Top() > room.Height+degenerateEpsilon:
			errs = append(errs, &OpeningError{Index: i, Wall: o.Wall, Reason: fmt.Sprintf("top %g mm is above room height %g mm", o.Top(), room.Height)})
		}

		for j := 0; j < i; j++ {
			other := openings[j]
			if other.Wall == o.Wall && o.Offset < other.End()-degenerateEpsilon && other.Offset < o.End()-degenerateEpsilon {
				errs = append(errs, &OpeningError{Index: i, Wall: o.Wall, Reason: fmt.Sprintf("overlaps opening %d", j)})
			}
		}
	}
	return errors.Join(errs...)
}

func isWall(w WallID) bool {
	for _, known := range Walls {
		if w == known {
			return true
		}
	}
	return false
}
