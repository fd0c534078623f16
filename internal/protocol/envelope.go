// Package protocol defines the sync wire contract: every frame on a project
// stream is one CBOR encoded Envelope carrying one of four message types.
package protocol

import (
	"fmt"

	"github.com/Ko-stant/room-layout-sync/internal/codec"
	"github.com/Ko-stant/room-layout-sync/internal/crdt"
)

type MessageType string

const (
	// TypeDelta carries an opaque incremental document update.
	TypeDelta MessageType = "delta"
	// TypeSnapshot carries the full document state, sent to a fresh joiner.
	TypeSnapshot MessageType = "snapshot"
	// TypeSyncRequest carries the sender's encoded state vector.
	TypeSyncRequest MessageType = "sync-request"
	// TypePresence carries an encoded Presence.
	TypePresence MessageType = "presence"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeDelta, TypeSnapshot, TypeSyncRequest, TypePresence:
		return true
	}
	return false
}

type Envelope struct {
	Type    MessageType `cbor:"t"`
	Payload []byte      `cbor:"p"`
}

// Encode frames a payload.
func Encode(t MessageType, payload []byte) ([]byte, error) {
	if !t.Valid() {
		return nil, NewError(CodeUnknownType, fmt.Sprintf("unknown message type %q", t))
	}
	return codec.Marshal(Envelope{Type: t, Payload: payload})
}

// Decode parses a frame and checks its type.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return Envelope{}, WrapError(CodeMalformed, "decode envelope", err)
	}
	if !env.Type.Valid() {
		return Envelope{}, NewError(CodeUnknownType, fmt.Sprintf("unknown message type %q", env.Type))
	}
	return env, nil
}

// SyncRequest frames a state vector.
func SyncRequest(sv crdt.StateVector) ([]byte, error) {
	payload, err := crdt.EncodeStateVector(sv)
	if err != nil {
		return nil, err
	}
	return Encode(TypeSyncRequest, payload)
}

// SyncReply builds the answer to a sync-request: a snapshot when the requester
// has nothing yet, otherwise the minimal delta.
func SyncReply(doc *crdt.Document, requester crdt.StateVector) ([]byte, error) {
	diff, err := doc.EncodeDiff(requester)
	if err != nil {
		return nil, fmt.Errorf("encode diff: %w", err)
	}
	if len(requester) == 0 {
		return Encode(TypeSnapshot, diff)
	}
	return Encode(TypeDelta, diff)
}
