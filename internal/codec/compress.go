package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Blob framing tags. These are stored in persisted snapshots and log entries; changing them
// breaks compatibility with existing databases.
const (
	blobRaw  byte = 0
	blobZstd byte = 1
	// blobLZ4 is followed by the uvarint decoded size and an LZ4 block.
	blobLZ4 byte = 2
)

// CompressThreshold is the payload size above which Pack compresses.
const CompressThreshold = 512

// maxDecodedSize bounds decompressed blobs.
const maxDecodedSize = 64 << 20

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// Pack frames data with a one byte tag, compressing it with zstd when it is
// larger than CompressThreshold.
func Pack(data []byte) ([]byte, error) {
	if len(data) <= CompressThreshold {
		return append([]byte{blobRaw}, data...), nil
	}
	enc, _, err := zstdCodecs()
	if err != nil {
		return nil, fmt.Errorf("zstd init: %w", err)
	}
	return enc.EncodeAll(data, []byte{blobZstd}), nil
}

// PackFast is Pack with LZ4 block compression. The store uses it for update
// log entries.
func PackFast(data []byte) ([]byte, error) {
	if len(data) <= CompressThreshold {
		return append([]byte{blobRaw}, data...), nil
	}
	dst := make([]byte, 1+binary.MaxVarintLen64+lz4.CompressBlockBound(len(data)))
	dst[0] = blobLZ4
	n := 1 + binary.PutUvarint(dst[1:], uint64(len(data)))
	written, err := lz4.CompressBlock(data, dst[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// Zero means incompressible.
	if written == 0 || n+written >= len(data)+1 {
		return append([]byte{blobRaw}, data...), nil
	}
	return dst[:n+written], nil
}

// Unpack reverses Pack and PackFast.
func Unpack(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty blob")
	}
	switch blob[0] {
	case blobRaw:
		return blob[1:], nil
	case blobZstd:
		_, dec, err := zstdCodecs()
		if err != nil {
			return nil, fmt.Errorf("zstd init: %w", err)
		}
		out, err := dec.DecodeAll(blob[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return out, nil
	case blobLZ4:
		size, k := binary.Uvarint(blob[1:])
		if k <= 0 || size > maxDecodedSize {
			return nil, errors.New("lz4 blob: bad size header")
		}
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(blob[1+k:], out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decode: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decode: got %d bytes, expected %d", read, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown blob tag %d", blob[0])
	}
}
