package chunk

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dm-vev/chunky/client/palette"
)

func TestSubChunkUnsupported(t *testing.T) {
	var ue *UnsupportedFormatError
	_, err := DecodeSubChunk(bytes.NewBuffer([]byte{99, 1, 2, 3}), 0, Context{})
	if !errors.As(err, &ue) || ue.Version != 99 {
		t.Fatalf("expected UnsupportedFormatError for format 99, got %v", err)
	}
	if !IsDecodeError(err) {
		t.Fatalf("expected decode error classification")
	}
}

func TestSubChunkFlat(t *testing.T) {
	ctx := Context{Palette: testPalette{legacy: true}}
	buf := bytes.NewBuffer(append(flatSubChunk(1, 0x21), 0xee))
	sub, err := DecodeSubChunk(buf, 3, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sub.Y != 3 || len(sub.Storages) != 2 {
		t.Fatalf("expected two storages at y 3, got %v at %v", len(sub.Storages), sub.Y)
	}
	s := sub.Storages[0]
	if !s.Legacy() {
		t.Fatalf("expected legacy storage")
	}
	if id, data := s.LegacyBlock(0, 0, 0); id != 1 || data != 1 {
		t.Fatalf("expected 1:1 at even index, got %v:%v", id, data)
	}
	if id, data := s.LegacyBlock(0, 1, 0); id != 1 || data != 2 {
		t.Fatalf("expected 1:2 at odd index, got %v:%v", id, data)
	}
	if !sub.Storages[1].Empty() {
		t.Fatalf("expected empty secondary layer")
	}
	if buf.Len() != 1 {
		t.Fatalf("expected the trailing byte to remain, got %v bytes", buf.Len())
	}

	var fe *FormatError
	if _, err := DecodeSubChunk(bytes.NewBuffer(flatSubChunk(1, 0)), 0, Context{Palette: testPalette{}}); !errors.As(err, &fe) {
		t.Fatalf("expected FormatError without legacy palette, got %v", err)
	}
}

func TestSubChunkFlatWithoutLight(t *testing.T) {
	ctx := Context{Palette: testPalette{legacy: true}}
	payload := flatSubChunk(7, 0)
	payload[0] = 2
	payload = payload[:1+flatIDSize+flatDataSize]
	buf := bytes.NewBuffer(append(payload, 0xee))
	sub, err := DecodeSubChunk(buf, 0, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id, _ := sub.Storages[0].LegacyBlock(1, 1, 1); id != 7 {
		t.Fatalf("expected block 7, got %v", id)
	}
	if buf.Len() != 1 {
		t.Fatalf("expected only the trailing byte to remain, got %v bytes", buf.Len())
	}
}

func TestSubChunkPersistent(t *testing.T) {
	indices := make([]uint16, storageSize)
	indices[5] = 1
	h := &PaletteHolder{
		BitsPerEntry: 1,
		Persistent:   true,
		Words:        PackIndices(indices, 1, WordsUint32),
		States:       []palette.BlockState{{Name: "minecraft:air", Properties: map[string]any{}}, {Name: "minecraft:stone", Properties: map[string]any{}}},
	}
	payload := append([]byte{1}, encodeStorage(t, h, PersistentEncoding)...)
	ctx := Context{Palette: testPalette{ids: map[string]uint32{"minecraft:air": 0, "minecraft:stone": 12}}}

	sub, err := DecodeSubChunk(bytes.NewBuffer(payload), 0, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	s := sub.Storages[0]
	if s.RuntimeID(0, 5, 0) != 12 || s.RuntimeID(0, 4, 0) != 0 {
		t.Fatalf("expected stone resolved to runtime ID 12, got %v", s.RuntimeID(0, 5, 0))
	}

	var fe *FormatError
	ctx = Context{Palette: testPalette{ids: map[string]uint32{"minecraft:air": 0}}}
	if _, err := DecodeSubChunk(bytes.NewBuffer(payload), 0, ctx); !errors.As(err, &fe) {
		t.Fatalf("expected FormatError for unknown state, got %v", err)
	}
}

func TestSubChunkLayered(t *testing.T) {
	for _, format := range []byte{8, 9} {
		payload := layeredSubChunk(format, -2, stripedStorage(t, 5, 6), uniformStorage(t, 0))
		sub, err := DecodeSubChunk(bytes.NewBuffer(payload), -2, Context{})
		if err != nil {
			t.Fatalf("format %v: decode: %v", format, err)
		}
		if len(sub.Storages) != 2 {
			t.Fatalf("format %v: expected 2 layers, got %v", format, len(sub.Storages))
		}
		s := sub.Storages[0]
		if s.RuntimeID(0, 0, 0) != 5 || s.RuntimeID(0, 0, 1) != 6 {
			t.Fatalf("format %v: unexpected block layer contents", format)
		}
		if !sub.Storages[1].Uniform() {
			t.Fatalf("format %v: expected uniform second layer", format)
		}
	}
	var fe *FormatError
	truncated := layeredSubChunk(8, 0, stripedStorage(t, 1, 2))[:100]
	if _, err := DecodeSubChunk(bytes.NewBuffer(truncated), 0, Context{}); !errors.As(err, &fe) {
		t.Fatalf("expected FormatError for truncated payload, got %v", err)
	}
}
