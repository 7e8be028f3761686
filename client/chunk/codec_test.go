package chunk

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

func blockEntityBlob(t *testing.T, n int) []byte {
	buf := new(bytes.Buffer)
	for i := 0; i < n; i++ {
		b, err := nbt.MarshalEncoding(map[string]any{"id": "Chest", "x": int32(i), "y": int32(64), "z": int32(0)}, nbt.NetworkLittleEndian)
		if err != nil {
			t.Fatalf("marshal block entity: %v", err)
		}
		buf.Write(b)
	}
	return buf.Bytes()
}

func TestDecodeLegacyChunk(t *testing.T) {
	blob := blockEntityBlob(t, 2)
	var payload []byte
	payload = append(payload, flatSubChunk(1, 0)...)
	payload = append(payload, flatSubChunk(2, 0)...)
	payload = append(payload, bytes.Repeat([]byte{4}, 256)...)
	payload = append(payload, 2, 0xaa, 0xbb)
	payload = append(payload, blob...)

	ctx := Context{Palette: testPalette{legacy: true}}
	h, err := Decode(LevelChunk{Pos: Pos{50, 50}, SubChunkCount: 2, Payload: payload}, 388, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !h.Complete() || len(h.SubChunks) != 2 {
		t.Fatalf("expected complete chunk with 2 sub-chunks, got %v (%v)", len(h.SubChunks), h.Missing())
	}
	if id, _ := h.SubChunks[1].Storages[0].LegacyBlock(0, 0, 0); id != 2 {
		t.Fatalf("expected block 2 in the second sub-chunk, got %v", id)
	}
	if len(h.Biomes) != 256 || h.Biomes[0] != 4 {
		t.Fatalf("expected 256 flat biomes")
	}
	if !bytes.Equal(h.BlockEntities, blob) {
		t.Fatalf("expected the trailing bytes as block entity data")
	}
	entities, err := h.BlockEntityData()
	if err != nil || len(entities) != 2 || entities[1]["x"] != int32(1) {
		t.Fatalf("expected 2 block entities, got %v (%v)", entities, err)
	}
}

func palettedBiomes(t *testing.T, slots int) []byte {
	b := uniformStorage(t, 1)
	for i := 1; i < slots; i++ {
		b = append(b, biomeCopyPrevious)
	}
	return b
}

func TestDecodePalettedInline(t *testing.T) {
	var payload []byte
	payload = append(payload, layeredSubChunk(9, -4, stripedStorage(t, 3, 4))...)
	payload = append(payload, palettedBiomes(t, 24)...)
	payload = append(payload, 0)

	h, err := Decode(LevelChunk{Pos: Pos{1, 2}, Dimension: Overworld, SubChunkCount: 1, Payload: payload}, 503, Context{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(h.SubChunks) != 24 || !h.Complete() {
		t.Fatalf("expected 24 filled slots, missing %v", h.Missing())
	}
	if h.SubChunks[0].Y != -4 || h.SubChunks[0].Empty() || !h.SubChunks[1].Empty() {
		t.Fatalf("expected one non-empty sub-chunk at y -4")
	}
	if len(h.BiomeStorages) != 24 || h.BiomeStorages[23] != h.BiomeStorages[0] {
		t.Fatalf("expected copied biome storages to share the first one")
	}
	if len(h.BlockEntities) != 0 {
		t.Fatalf("expected no block entity data")
	}
}

func TestDecodeSplitChunk(t *testing.T) {
	payload := append(palettedBiomes(t, 8), 0)
	payload = append(payload, blockEntityBlob(t, 1)...)
	lc := LevelChunk{Pos: Pos{0, 0}, Dimension: Nether, SubChunkCount: RequestModeLimited, HighestSubChunk: 3, Payload: payload}
	if !lc.Split() || lc.RequestLimit() != 3 {
		t.Fatalf("expected split chunk limited to 3 offsets per request")
	}
	h, err := Decode(lc, 527, Context{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Complete() || len(h.Missing()) != 8 {
		t.Fatalf("expected 8 missing slots, got %v", h.Missing())
	}
	if len(h.BlockEntities) == 0 {
		t.Fatalf("expected block entity data")
	}
	for slot := range h.SubChunks {
		h.Set(slot, &SubChunk{Y: slot}, []byte{byte(slot)})
	}
	if !h.Complete() {
		t.Fatalf("expected chunk to be complete once every slot is set")
	}

	if _, err := Decode(LevelChunk{SubChunkCount: RequestModeLimitless, Payload: payload}, 390, Context{}); err == nil {
		t.Fatalf("expected split chunk before 1.18 to be rejected")
	}
}

func TestDecodeBiomeCopyFirstSlot(t *testing.T) {
	payload := append([]byte{biomeCopyPrevious}, palettedBiomes(t, 23)...)
	payload = append(payload, 0)
	var fe *FormatError
	_, err := Decode(LevelChunk{SubChunkCount: RequestModeLimitless, Payload: payload}, 475, Context{})
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestCodecFor(t *testing.T) {
	var ue *UnsupportedFormatError
	if _, err := CodecFor(361); !errors.As(err, &ue) {
		t.Fatalf("expected protocol 361 to be unsupported, got %v", err)
	}
	if c, err := CodecFor(389); err != nil || c != (legacyCodec{}) {
		t.Fatalf("expected legacy codec for 389, got %T (%v)", c, err)
	}
	if c, err := CodecFor(800); err != nil || c != (palettedCodec{}) {
		t.Fatalf("expected newest codec for 800, got %T (%v)", c, err)
	}
}

func TestChecksum(t *testing.T) {
	payload := append(palettedBiomes(t, 24), 0)
	decode := func() *Holder {
		h, err := Decode(LevelChunk{SubChunkCount: RequestModeLimitless, Payload: payload}, 475, Context{})
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return h
	}
	a, b := decode(), decode()
	a.Set(0, &SubChunk{}, []byte{1})
	b.Set(0, &SubChunk{}, []byte{1})
	if a.Checksum() != b.Checksum() {
		t.Fatalf("expected equal checksums for equal payloads")
	}
	b.Set(1, &SubChunk{}, []byte{2})
	if a.Checksum() == b.Checksum() {
		t.Fatalf("expected checksum to change with sub-chunk payloads")
	}
}

func TestDecodeLegacyChunkTooTall(t *testing.T) {
	ctx := Context{Palette: testPalette{legacy: true}}
	for _, count := range []uint32{17, 1<<31 - 1, RequestModeLimited - 1} {
		var fe *FormatError
		_, err := Decode(LevelChunk{SubChunkCount: count, Payload: flatSubChunk(1, 0)}, 388, ctx)
		if !errors.As(err, &fe) {
			t.Fatalf("expected FormatError for %v sub-chunks, got %v", count, err)
		}
	}
	if _, err := Decode(LevelChunk{SubChunkCount: 25, Payload: flatSubChunk(1, 0)}, 503, Context{}); err == nil {
		t.Fatalf("expected 25 sub-chunks to exceed the overworld height")
	}
}

func TestDecodeBiomeCopyLowBitIgnored(t *testing.T) {
	payload := uniformStorage(t, 1)
	for i := 1; i < 24; i++ {
		payload = append(payload, 0xfe)
	}
	payload = append(payload, 0)
	h, err := Decode(LevelChunk{SubChunkCount: RequestModeLimitless, Payload: payload}, 475, Context{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.BiomeStorages[23] != h.BiomeStorages[0] {
		t.Fatalf("expected header 0xfe to copy the previous biome storage")
	}
}
