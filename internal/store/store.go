// Package store persists each project's replicated document on the relay as
// an append-only log of updates plus a periodically compacted snapshot.
package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/Ko-stant/room-layout-sync/internal/codec"
)

var ErrCorruptSnapshot = errors.New("snapshot digest mismatch")

// Project is everything needed to rebuild a project's document: the latest
// snapshot, if any, followed by the updates appended after it.
type Project struct {
	Snapshot []byte
	Updates  [][]byte
	// LastSeq is the sequence number of the last update in the log.
	LastSeq int64
}

type Store interface {
	// AppendUpdate adds an encoded update to the project's log and returns its
	// sequence number.
	AppendUpdate(ctx context.Context, project string, update []byte) (int64, error)
	LoadProject(ctx context.Context, project string) (Project, error)
	// SaveSnapshot replaces the project's snapshot and drops logged updates up
	// to and including throughSeq, which the snapshot already contains.
	SaveSnapshot(ctx context.Context, project string, snapshot []byte, throughSeq int64) error
	ListProjects(ctx context.Context) ([]string, error)
	Close() error
}

// Digest returns the hex BLAKE3 digest stored alongside a snapshot.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// sealSnapshot compresses a snapshot for storage and computes its digest.
func sealSnapshot(snapshot []byte) ([]byte, string, error) {
	blob, err := codec.Pack(snapshot)
	if err != nil {
		return nil, "", fmt.Errorf("pack snapshot: %w", err)
	}
	return blob, Digest(snapshot), nil
}

func openSnapshot(blob []byte, digest string) ([]byte, error) {
	data, err := codec.Unpack(blob)
	if err != nil {
		return nil, fmt.Errorf("unpack snapshot: %w", err)
	}
	if Digest(data) != digest {
		return nil, ErrCorruptSnapshot
	}
	return data, nil
}
