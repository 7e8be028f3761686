package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
	"github.com/willf/bitset"
)

// SubChunk is a 16x16x16 section of a chunk. Storages[0] is the block layer,
// further storages are secondary layers such as water. A SubChunk without
// storages is all air.
type SubChunk struct {
	// Y is the absolute vertical index of the sub-chunk.
	Y        int
	Storages []*BlockStorage
}

// Empty reports if the sub-chunk has no block storages.
func (s *SubChunk) Empty() bool { return len(s.Storages) == 0 }

// Holder is a chunk column being assembled from one or more payloads.
type Holder struct {
	Pos       Pos
	Dimension int32
	// MinY is the vertical index of the sub-chunk in slot 0.
	MinY int
	// SubChunks is indexed by slot. Slots that have not been received yet
	// are nil.
	SubChunks []*SubChunk
	// Biomes holds the flat 16x16 biome IDs of older revisions.
	Biomes []byte
	// BiomeStorages holds one paletted biome storage per slot for newer
	// revisions. Consecutive slots may share a storage.
	BiomeStorages []*PaletteHolder
	// BlockEntities is the raw, concatenated block entity data sent along
	// with the chunk and its sub-chunks.
	BlockEntities []byte

	filled *bitset.BitSet
	hash   uint64
	hashes []uint64
}

// NewHolder returns an empty Holder with count slots starting at minY.
func NewHolder(pos Pos, dim int32, minY, count int) *Holder {
	return &Holder{
		Pos:       pos,
		Dimension: dim,
		MinY:      minY,
		SubChunks: make([]*SubChunk, count),
		filled:    bitset.New(uint(count)),
		hashes:    make([]uint64, count),
	}
}

// Slot returns the slot of the absolute sub-chunk index y.
func (h *Holder) Slot(y int) (int, bool) {
	slot := y - h.MinY
	return slot, slot >= 0 && slot < len(h.SubChunks)
}

// Set fills a slot. payload is the raw sub-chunk payload it was decoded from,
// if it arrived separately from the chunk.
func (h *Holder) Set(slot int, sub *SubChunk, payload []byte) {
	h.SubChunks[slot] = sub
	h.filled.Set(uint(slot))
	if payload != nil {
		h.hashes[slot] = xxhash.Sum64(payload)
	}
}

// Filled reports if a slot has been set.
func (h *Holder) Filled(slot int) bool { return h.filled.Test(uint(slot)) }

// Complete reports if every slot has been set.
func (h *Holder) Complete() bool {
	return h.filled.Count() == uint(len(h.SubChunks))
}

// Missing returns the slots that have not been set yet.
func (h *Holder) Missing() []int {
	var missing []int
	for i := range h.SubChunks {
		if !h.filled.Test(uint(i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

// Checksum returns a hash over all payloads the chunk was assembled from.
// Two chunks received with identical data have the same checksum.
func (h *Holder) Checksum() uint64 {
	d := xxhash.New()
	b := binary.LittleEndian.AppendUint64(nil, h.hash)
	for _, v := range h.hashes {
		b = binary.LittleEndian.AppendUint64(b, v)
	}
	_, _ = d.Write(b)
	return d.Sum64()
}

// BlockEntityData decodes the block entity blob into its NBT compounds.
func (h *Holder) BlockEntityData() ([]map[string]any, error) {
	var entities []map[string]any
	buf := bytes.NewBuffer(h.BlockEntities)
	dec := nbt.NewDecoderWithEncoding(buf, nbt.NetworkLittleEndian)
	for buf.Len() > 0 {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return entities, fmt.Errorf("chunk: decode block entity %v: %w", len(entities), err)
		}
		entities = append(entities, m)
	}
	return entities, nil
}

// Dimension IDs as sent in StartGame and LevelChunk.
const (
	Overworld int32 = iota
	Nether
	End
)

// SubChunkRange returns the vertical index of the lowest sub-chunk and the
// amount of sub-chunks of a dimension at a protocol number.
func SubChunkRange(dim int32, protocol int32) (minY, count int) {
	if protocol < splitProtocol {
		return 0, 16
	}
	switch dim {
	case Overworld:
		return -4, 24
	case Nether:
		return 0, 8
	default:
		return 0, 16
	}
}
