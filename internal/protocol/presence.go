package protocol

import (
	"fmt"

	"github.com/Ko-stant/room-layout-sync/internal/codec"
)

type PresenceKind string

const (
	PresenceCursor    PresenceKind = "cursor"
	PresenceSelection PresenceKind = "selection"
	// PresenceLeave announces an explicit departure.
	PresenceLeave PresenceKind = "leave"
)

// Point2 is a cursor position on the floor plane, in meters.
type Point2 struct {
	X float64 `cbor:"x" json:"x"`
	Z float64 `cbor:"z" json:"z"`
}

type Presence struct {
	UserID    string       `cbor:"u"`
	Name      string       `cbor:"n,omitempty"`
	Color     string       `cbor:"c,omitempty"`
	Kind      PresenceKind `cbor:"k"`
	Cursor    *Point2      `cbor:"p,omitempty"`
	Selection string       `cbor:"s,omitempty"`
}

func (p Presence) validate() error {
	if p.UserID == "" {
		return NewError(CodeMalformed, "presence without user id")
	}
	switch p.Kind {
	case PresenceCursor:
		if p.Cursor == nil {
			return NewError(CodeMalformed, "cursor presence without position")
		}
	case PresenceSelection, PresenceLeave:
	default:
		return NewError(CodeMalformed, fmt.Sprintf("unknown presence kind %q", p.Kind))
	}
	return nil
}

// EncodePresence frames a presence message.
func EncodePresence(p Presence) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	payload, err := codec.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode presence: %w", err)
	}
	return Encode(TypePresence, payload)
}

// DecodePresence parses the payload of a presence envelope.
func DecodePresence(payload []byte) (Presence, error) {
	var p Presence
	if err := codec.Unmarshal(payload, &p); err != nil {
		return Presence{}, WrapError(CodeMalformed, "decode presence", err)
	}
	if err := p.validate(); err != nil {
		return Presence{}, err
	}
	return p, nil
}
