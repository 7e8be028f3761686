package chunk

import (
	"bytes"

	"github.com/dm-vev/chunky/client/palette"
)

// BlockPalette resolves the block states found in persistent storages. It is
// implemented by *palette.Palette.
type BlockPalette interface {
	RuntimeID(s palette.BlockState) (uint32, bool)
	Legacy() bool
}

// Context carries what decoders need beyond the payload itself.
type Context struct {
	// Palette is the block palette of the connection's version family. It
	// may be nil when only runtime storages are expected.
	Palette BlockPalette
}

func (ctx Context) legacy() bool {
	return ctx.Palette != nil && ctx.Palette.Legacy()
}

// BlockStorage is one layer of a sub-chunk. Legacy storages carry flat ID and
// metadata arrays; all others carry a PaletteHolder.
type BlockStorage struct {
	PaletteHolder
	BlockIDs  []byte
	BlockData []byte
}

// Legacy reports if s holds flat legacy IDs.
func (s *BlockStorage) Legacy() bool { return s.BlockIDs != nil }

// Empty reports if s holds no blocks at all, as is the case for the unused
// secondary layer of legacy formats.
func (s *BlockStorage) Empty() bool { return s.BlockIDs == nil && s.Len() == 0 }

// LegacyBlock returns the block ID and metadata at a position of a legacy
// storage.
func (s *BlockStorage) LegacyBlock(x, y, z uint8) (id, data byte) {
	if !s.Legacy() {
		return 0, 0
	}
	i := int(x&15)<<8 | int(z&15)<<4 | int(y&15)
	data = s.BlockData[i>>1]
	if i&1 == 0 {
		return s.BlockIDs[i], data & 0xf
	}
	return s.BlockIDs[i], data >> 4
}

// SubChunkDecoder decodes the storages of a sub-chunk. The format version
// byte has already been consumed.
type SubChunkDecoder interface {
	Decode(buf *bytes.Buffer, ctx Context) ([]*BlockStorage, error)
}

// SubChunkDecoderFor returns the decoder of a sub-chunk format version.
func SubChunkDecoderFor(format byte) (SubChunkDecoder, error) {
	switch format {
	case 0:
		return flatDecoder{light: true}, nil
	case 2, 3, 4, 5, 6, 7:
		return flatDecoder{}, nil
	case 1:
		return persistentDecoder{}, nil
	case 8:
		return layeredDecoder{}, nil
	case 9:
		return layeredDecoder{yIndex: true}, nil
	}
	return nil, &UnsupportedFormatError{Kind: "sub-chunk", Version: int(format)}
}

// DecodeSubChunk reads a format version byte from buf and decodes the
// sub-chunk that follows. Bytes after the storages are left in buf.
func DecodeSubChunk(buf *bytes.Buffer, y int, ctx Context) (*SubChunk, error) {
	format, err := readByte(buf, "sub-chunk version")
	if err != nil {
		return nil, err
	}
	dec, err := SubChunkDecoderFor(format)
	if err != nil {
		return nil, err
	}
	storages, err := dec.Decode(buf, ctx)
	if err != nil {
		return nil, err
	}
	return &SubChunk{Y: y, Storages: storages}, nil
}

const (
	flatIDSize    = storageSize
	flatDataSize  = storageSize / 2
	flatLightSize = storageSize
)

// flatDecoder reads the pre-palette layout of block IDs and metadata nibbles.
// Only the network format carries light data after them, which is dropped.
type flatDecoder struct {
	light bool
}

func (d flatDecoder) Decode(buf *bytes.Buffer, ctx Context) ([]*BlockStorage, error) {
	if !ctx.legacy() {
		return nil, formatErr("flat sub-chunk", "legacy block palette required")
	}
	ids, err := next(buf, flatIDSize, "flat sub-chunk ids")
	if err != nil {
		return nil, err
	}
	data, err := next(buf, flatDataSize, "flat sub-chunk data")
	if err != nil {
		return nil, err
	}
	if d.light {
		if _, err := next(buf, flatLightSize, "flat sub-chunk light"); err != nil {
			return nil, err
		}
	}
	s := &BlockStorage{BlockIDs: bytes.Clone(ids), BlockData: bytes.Clone(data)}
	return []*BlockStorage{s, {}}, nil
}

// persistentDecoder reads a single storage of named block states and resolves
// each of them to a runtime ID.
type persistentDecoder struct{}

func (persistentDecoder) Decode(buf *bytes.Buffer, ctx Context) ([]*BlockStorage, error) {
	if ctx.Palette == nil {
		return nil, formatErr("persistent sub-chunk", "block palette required")
	}
	h, err := DecodePalette(buf, PersistentEncoding)
	if err != nil {
		return nil, err
	}
	h.Runtime = make([]int32, len(h.States))
	for i, s := range h.States {
		rid, ok := ctx.Palette.RuntimeID(s)
		if !ok {
			return nil, formatErr("persistent sub-chunk", "unknown block state %v %v", s.Name, s.Properties)
		}
		h.Runtime[i] = int32(rid)
	}
	return []*BlockStorage{{PaletteHolder: *h}, {}}, nil
}

// layeredDecoder reads a layer count followed by that many runtime storages.
// Later revisions put the absolute sub-chunk Y between the version and the
// layer count.
type layeredDecoder struct {
	yIndex bool
}

func (d layeredDecoder) Decode(buf *bytes.Buffer, _ Context) ([]*BlockStorage, error) {
	count, err := readByte(buf, "sub-chunk layer count")
	if err != nil {
		return nil, err
	}
	if d.yIndex {
		if _, err := readByte(buf, "sub-chunk y index"); err != nil {
			return nil, err
		}
	}
	storages := make([]*BlockStorage, count)
	for i := range storages {
		h, err := DecodePalette(buf, RuntimeEncoding)
		if err != nil {
			return nil, err
		}
		storages[i] = &BlockStorage{PaletteHolder: *h}
	}
	return storages, nil
}
