package chunk

import (
	"bytes"
	"math"

	"github.com/cespare/xxhash/v2"
)

const (
	// legacyProtocol is the oldest protocol number with a chunk codec.
	legacyProtocol = 388
	// splitProtocol is the first protocol number with paletted biomes,
	// extended world height and sub-chunk requests.
	splitProtocol = 475
)

// Sub-chunk count values of LevelChunk that announce the sub-chunks will be
// requested separately. With RequestModeLimited, the highest sub-chunk field
// of the packet limits the offsets per request.
const (
	RequestModeLimitless = math.MaxUint32
	RequestModeLimited   = math.MaxUint32 - 1
)

// LevelChunk is the part of a chunk packet the codecs need.
type LevelChunk struct {
	Pos             Pos
	Dimension       int32
	SubChunkCount   uint32
	HighestSubChunk uint16
	Payload         []byte
}

// Split reports if the sub-chunks of the chunk are to be requested.
func (lc LevelChunk) Split() bool {
	return lc.SubChunkCount == RequestModeLimitless || lc.SubChunkCount == RequestModeLimited
}

// RequestLimit returns the maximum amount of offsets in a single sub-chunk
// request, or 0 if unlimited.
func (lc LevelChunk) RequestLimit() int {
	if lc.SubChunkCount == RequestModeLimited {
		return int(lc.HighestSubChunk)
	}
	return 0
}

// Codec decodes the payload of a LevelChunk packet into a Holder.
type Codec interface {
	// Decode reads count inline sub-chunks followed by biomes and block
	// entities.
	Decode(buf *bytes.Buffer, h *Holder, count int, ctx Context) error
	// ReadBiomesAndEntities reads only what follows the sub-chunks.
	ReadBiomesAndEntities(buf *bytes.Buffer, h *Holder) error
}

// CodecFor returns the codec of the newest known chunk format not newer than
// the protocol number passed.
func CodecFor(protocol int32) (Codec, error) {
	switch {
	case protocol >= splitProtocol:
		return palettedCodec{}, nil
	case protocol >= legacyProtocol:
		return legacyCodec{}, nil
	}
	return nil, &UnsupportedFormatError{Kind: "chunk", Version: int(protocol)}
}

// Decode decodes a chunk received on a connection with the protocol number
// passed. Split chunks are returned with only biomes and block entities set.
func Decode(lc LevelChunk, protocol int32, ctx Context) (*Holder, error) {
	codec, err := CodecFor(protocol)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(lc.Payload)
	if lc.Split() {
		if protocol < splitProtocol {
			return nil, formatErr("chunk", "sub-chunk requests before protocol %v", splitProtocol)
		}
		minY, count := SubChunkRange(lc.Dimension, protocol)
		h := NewHolder(lc.Pos, lc.Dimension, minY, count)
		h.hash = xxhash.Sum64(lc.Payload)
		return h, codec.ReadBiomesAndEntities(buf, h)
	}

	count := int(lc.SubChunkCount)
	minY, slots := SubChunkRange(lc.Dimension, protocol)
	if count > slots {
		return nil, formatErr("chunk", "%v sub-chunks exceed height of %v", count, slots)
	}
	if protocol < splitProtocol {
		// Legacy chunks end at the highest sub-chunk sent.
		slots = count
	}
	h := NewHolder(lc.Pos, lc.Dimension, minY, slots)
	h.hash = xxhash.Sum64(lc.Payload)
	if err := codec.Decode(buf, h, count, ctx); err != nil {
		return nil, err
	}
	// Sub-chunks above the highest one sent are air.
	for slot := count; slot < slots; slot++ {
		h.Set(slot, &SubChunk{Y: minY + slot}, nil)
	}
	return h, nil
}

func decodeInline(buf *bytes.Buffer, h *Holder, count int, ctx Context) error {
	for slot := 0; slot < count; slot++ {
		sub, err := DecodeSubChunk(buf, h.MinY+slot, ctx)
		if err != nil {
			return err
		}
		h.Set(slot, sub, nil)
	}
	return nil
}

// legacyCodec reads chunks with inline sub-chunks and 256 flat biome IDs.
type legacyCodec struct{}

func (c legacyCodec) Decode(buf *bytes.Buffer, h *Holder, count int, ctx Context) error {
	if err := decodeInline(buf, h, count, ctx); err != nil {
		return err
	}
	return c.ReadBiomesAndEntities(buf, h)
}

func (legacyCodec) ReadBiomesAndEntities(buf *bytes.Buffer, h *Holder) error {
	return readTrailer(buf, h, readFlatBiomes)
}

// palettedCodec reads chunks with one paletted biome storage per slot. Its
// sub-chunks are either inline or requested separately.
type palettedCodec struct{}

func (c palettedCodec) Decode(buf *bytes.Buffer, h *Holder, count int, ctx Context) error {
	if err := decodeInline(buf, h, count, ctx); err != nil {
		return err
	}
	return c.ReadBiomesAndEntities(buf, h)
}

func (palettedCodec) ReadBiomesAndEntities(buf *bytes.Buffer, h *Holder) error {
	return readTrailer(buf, h, readPalettedBiomes)
}

// readTrailer reads biomes, skips border blocks and keeps the rest of buf as
// block entity data.
func readTrailer(buf *bytes.Buffer, h *Holder, biomes func(*bytes.Buffer, *Holder) error) error {
	if err := biomes(buf, h); err != nil {
		return err
	}
	n, err := readByte(buf, "border blocks")
	if err != nil {
		return err
	}
	if _, err := next(buf, int(n), "border blocks"); err != nil {
		return err
	}
	if buf.Len() > 0 {
		h.BlockEntities = append(h.BlockEntities, buf.Bytes()...)
		buf.Reset()
	}
	return nil
}

func readFlatBiomes(buf *bytes.Buffer, h *Holder) error {
	b, err := next(buf, 256, "biomes")
	if err != nil {
		return err
	}
	h.Biomes = bytes.Clone(b)
	return nil
}

// biomeCopyPrevious is the header of a biome storage that repeats the storage
// of the slot below it. The lowest bit of the header is ignored.
const biomeCopyPrevious = 0xff

func readPalettedBiomes(buf *bytes.Buffer, h *Holder) error {
	h.BiomeStorages = make([]*PaletteHolder, len(h.SubChunks))
	for slot := range h.BiomeStorages {
		header, err := readByte(buf, "biome storage header")
		if err != nil {
			return err
		}
		if header>>1 == biomeCopyPrevious>>1 {
			if slot == 0 {
				return formatErr("biome storage", "first biome storage copies previous storage")
			}
			h.BiomeStorages[slot] = h.BiomeStorages[slot-1]
			continue
		}
		_ = buf.UnreadByte()
		s, err := DecodePalette(buf, RuntimeEncoding)
		if err != nil {
			return err
		}
		h.BiomeStorages[slot] = s
	}
	return nil
}
