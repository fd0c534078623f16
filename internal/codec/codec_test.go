package codec

import (
	"bytes"
	"testing"
)

func TestMarshal_Deterministic(t *testing.T) {
	a := map[string]uint64{"b": 2, "a": 1, "c": 3}
	b := map[string]uint64{"c": 3, "a": 1, "b": 2}

	ea, err := Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	eb, err := Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(ea, eb) {
		t.Errorf("expected identical encodings, got %x and %x", ea, eb)
	}
}

func TestUnmarshal_RejectsGarbage(t *testing.T) {
	var out map[string]uint64
	if err := Unmarshal([]byte{0xff, 0x00, 0x13}, &out); err == nil {
		t.Error("expected error for malformed CBOR")
	}
}

func TestPack_SmallStaysRaw(t *testing.T) {
	blob, err := Pack([]byte("hello"))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if blob[0] != blobRaw {
		t.Errorf("expected raw tag, got %d", blob[0])
	}
	out, err := Unpack(blob)
	if err != nil || string(out) != "hello" {
		t.Errorf("expected hello, got %q (%v)", out, err)
	}
}

func TestPack_LargeIsCompressed(t *testing.T) {
	data := bytes.Repeat([]byte("sofa-1 position "), 200)
	blob, err := Pack(data)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if blob[0] != blobZstd {
		t.Fatalf("expected zstd tag, got %d", blob[0])
	}
	if len(blob) >= len(data) {
		t.Errorf("expected compression, got %d bytes from %d", len(blob), len(data))
	}
	out, err := Unpack(blob)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("round trip mismatch")
	}
}

func TestPackFast_RoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("pos.x rot.y scale.z "), 100)
	blob, err := PackFast(data)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if blob[0] != blobLZ4 {
		t.Fatalf("expected lz4 tag, got %d", blob[0])
	}
	if len(blob) >= len(data) {
		t.Errorf("expected compression, got %d bytes from %d", len(blob), len(data))
	}
	out, err := Unpack(blob)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("round trip mismatch")
	}

	small, _ := PackFast([]byte("tiny"))
	if small[0] != blobRaw {
		t.Errorf("expected raw tag for small input, got %d", small[0])
	}
}

func TestUnpack_Errors(t *testing.T) {
	if _, err := Unpack(nil); err == nil {
		t.Error("expected error for empty blob")
	}
	if _, err := Unpack([]byte{9, 1, 2}); err == nil {
		t.Error("expected error for unknown tag")
	}
	if _, err := Unpack([]byte{blobZstd, 1, 2, 3}); err == nil {
		t.Error("expected error for corrupt zstd frame")
	}
	if _, err := Unpack([]byte{blobLZ4, 0x80}); err == nil {
		t.Error("expected error for truncated lz4 header")
	}
}
