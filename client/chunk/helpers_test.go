package chunk

import (
	"bytes"
	"testing"

	"github.com/dm-vev/chunky/client/palette"
)

type testPalette struct {
	legacy bool
	ids    map[string]uint32
}

func (p testPalette) RuntimeID(s palette.BlockState) (uint32, bool) {
	rid, ok := p.ids[s.Name]
	return rid, ok
}

func (p testPalette) Legacy() bool { return p.legacy }

func encodeStorage(t *testing.T, h *PaletteHolder, enc Encoding) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := EncodePalette(buf, h, enc); err != nil {
		t.Fatalf("encode storage: %v", err)
	}
	return buf.Bytes()
}

func uniformStorage(t *testing.T, rid int32) []byte {
	return encodeStorage(t, &PaletteHolder{Runtime: []int32{rid}}, RuntimeEncoding)
}

// stripedStorage returns a 1-bit storage alternating between two runtime IDs
// per column.
func stripedStorage(t *testing.T, a, b int32) []byte {
	indices := make([]uint16, storageSize)
	for i := range indices {
		indices[i] = uint16((i >> 4) & 1)
	}
	return encodeStorage(t, &PaletteHolder{
		BitsPerEntry: 1,
		Words:        PackIndices(indices, 1, WordsUint32),
		Runtime:      []int32{a, b},
	}, RuntimeEncoding)
}

func layeredSubChunk(format byte, y int8, storages ...[]byte) []byte {
	b := []byte{format, byte(len(storages))}
	if format == 9 {
		b = append(b, byte(y))
	}
	for _, s := range storages {
		b = append(b, s...)
	}
	return b
}

func flatSubChunk(id, data byte) []byte {
	b := []byte{0}
	b = append(b, bytes.Repeat([]byte{id}, flatIDSize)...)
	b = append(b, bytes.Repeat([]byte{data}, flatDataSize)...)
	return append(b, make([]byte, flatLightSize)...)
}
