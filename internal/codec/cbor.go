// Package codec is the binary encoding shared by the replicated document and
// the sync protocol: deterministic CBOR for structure, zstd for large blobs.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same document state always
// produces identical bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields for forward compatibility and caps nesting
// and collection sizes so a hostile peer cannot make us allocate unbounded memory.
var decMode cbor.DecMode

// MaxItems bounds arrays and maps in decoded messages.
const MaxItems = 1 << 20

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels:  16,
		MaxArrayElements: MaxItems,
		MaxMapPairs:      MaxItems,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value. Type alias so consumers import
// only this package, not fxamacker/cbor directly.
type RawMessage = cbor.RawMessage
