package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dm-vev/chunky/client/palette"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
	"github.com/sandertv/gophertunnel/minecraft/protocol"
)

// storageSize is the amount of entries in a 16x16x16 storage.
const storageSize = 4096

// WordLayout is the width of the words entries are packed into.
type WordLayout uint8

const (
	// WordsUint32 packs entries into little endian 32-bit words.
	WordsUint32 WordLayout = iota
	// WordsByte packs entries into single bytes.
	WordsByte
)

func (l WordLayout) bits() int {
	if l == WordsByte {
		return 8
	}
	return 32
}

// Encoding describes how a storage is laid out on the wire. Persistent
// storages carry named block states with a little endian int32 palette size,
// runtime storages carry varint runtime IDs.
type Encoding struct {
	Persistent bool
	Layout     WordLayout
}

var (
	// RuntimeEncoding is the encoding of block and biome storages sent over
	// the network.
	RuntimeEncoding = Encoding{}
	// PersistentEncoding is the encoding of storages holding named states.
	PersistentEncoding = Encoding{Persistent: true}
)

// PaletteHolder holds a single bit-packed storage of 4096 entries and the
// palette its indices point into. Exactly one of Runtime and States is
// filled, depending on Persistent, except for persistent storages resolved
// against a palette, which carry both.
type PaletteHolder struct {
	BitsPerEntry uint8
	Persistent   bool
	Layout       WordLayout
	Words        []uint32
	Runtime      []int32
	States       []palette.BlockState
}

// Len returns the amount of entries in the palette.
func (h *PaletteHolder) Len() int {
	return max(len(h.Runtime), len(h.States))
}

// Uniform reports if every entry of the storage has the same value.
func (h *PaletteHolder) Uniform() bool { return h.BitsPerEntry == 0 }

// Index returns the palette index stored at offset, which is x<<8 | z<<4 | y.
func (h *PaletteHolder) Index(offset int) int {
	if h.BitsPerEntry == 0 {
		return 0
	}
	bits := int(h.BitsPerEntry)
	perWord := h.perWord()
	w := h.Words[offset/perWord]
	return int(w>>(uint(offset%perWord)*uint(bits))) & (1<<bits - 1)
}

// RuntimeID returns the runtime ID of the entry at the block position passed.
func (h *PaletteHolder) RuntimeID(x, y, z uint8) int32 {
	i := h.Index(int(x&15)<<8 | int(z&15)<<4 | int(y&15))
	if i >= len(h.Runtime) {
		return 0
	}
	return h.Runtime[i]
}

// Indices unpacks all 4096 palette indices.
func (h *PaletteHolder) Indices() []uint16 {
	indices := make([]uint16, storageSize)
	for i := range indices {
		indices[i] = uint16(h.Index(i))
	}
	return indices
}

func (h *PaletteHolder) perWord() int {
	return h.Layout.bits() / int(h.BitsPerEntry)
}

// wordCount returns the amount of words needed to store 4096 entries.
func wordCount(bits uint8, layout WordLayout) int {
	if bits == 0 {
		return 0
	}
	perWord := layout.bits() / int(bits)
	if perWord == 0 {
		return -1
	}
	return (storageSize + perWord - 1) / perWord
}

func validBits(bits uint8) bool {
	switch bits {
	case 0, 1, 2, 3, 4, 5, 6, 8, 16:
		return true
	}
	return false
}

// PackIndices packs palette indices into words the way DecodePalette expects
// them.
func PackIndices(indices []uint16, bits uint8, layout WordLayout) []uint32 {
	n := wordCount(bits, layout)
	if n <= 0 {
		return nil
	}
	perWord := layout.bits() / int(bits)
	words := make([]uint32, n)
	for i, v := range indices {
		words[i/perWord] |= uint32(v) << (uint(i%perWord) * uint(bits))
	}
	return words
}

// DecodePalette decodes one storage from buf. The persistence bit of the
// header must match enc.Persistent.
func DecodePalette(buf *bytes.Buffer, enc Encoding) (*PaletteHolder, error) {
	header, err := readByte(buf, "storage header")
	if err != nil {
		return nil, err
	}
	h := &PaletteHolder{BitsPerEntry: header >> 1, Persistent: header&1 == 0, Layout: enc.Layout}
	if h.Persistent != enc.Persistent {
		return nil, formatErr("storage header", "persistent storage %v where %v expected", h.Persistent, enc.Persistent)
	}
	if !validBits(h.BitsPerEntry) {
		return nil, formatErr("storage header", "invalid bits per entry %v", h.BitsPerEntry)
	}

	size := 1
	if h.BitsPerEntry != 0 {
		n := wordCount(h.BitsPerEntry, enc.Layout)
		if n < 0 {
			return nil, formatErr("storage words", "%v bits do not fit %v-bit words", h.BitsPerEntry, enc.Layout.bits())
		}
		h.Words = make([]uint32, n)
		if enc.Layout == WordsByte {
			b, err := next(buf, n, "storage words")
			if err != nil {
				return nil, err
			}
			for i, v := range b {
				h.Words[i] = uint32(v)
			}
		} else {
			b, err := next(buf, n*4, "storage words")
			if err != nil {
				return nil, err
			}
			for i := range h.Words {
				h.Words[i] = binary.LittleEndian.Uint32(b[i*4:])
			}
		}
		if size, err = readPaletteSize(buf, enc); err != nil {
			return nil, err
		}
	}
	if err := readPaletteEntries(buf, h, size); err != nil {
		return nil, err
	}
	if err := h.checkIndices(); err != nil {
		return nil, err
	}
	return h, nil
}

func readPaletteSize(buf *bytes.Buffer, enc Encoding) (int, error) {
	var size int
	if enc.Persistent {
		v, err := readUint32(buf, "palette size")
		if err != nil {
			return 0, err
		}
		size = int(int32(v))
	} else {
		v, err := readVarint32(buf, "palette size")
		if err != nil {
			return 0, err
		}
		size = int(v)
	}
	if size <= 0 || size > storageSize {
		return 0, formatErr("palette size", "invalid palette size %v", size)
	}
	return size, nil
}

func readPaletteEntries(buf *bytes.Buffer, h *PaletteHolder, size int) error {
	if h.Persistent {
		h.States = make([]palette.BlockState, size)
		dec := nbt.NewDecoderWithEncoding(buf, nbt.LittleEndian)
		for i := range h.States {
			if err := dec.Decode(&h.States[i]); err != nil {
				return &FormatError{Op: "palette entry", Err: err}
			}
		}
		return nil
	}
	h.Runtime = make([]int32, size)
	for i := range h.Runtime {
		v, err := readVarint32(buf, "palette entry")
		if err != nil {
			return err
		}
		h.Runtime[i] = v
	}
	return nil
}

// checkIndices makes sure no index points outside the palette, so that
// lookups on a decoded storage never go out of bounds.
func (h *PaletteHolder) checkIndices() error {
	if h.BitsPerEntry == 0 {
		return nil
	}
	bits := int(h.BitsPerEntry)
	perWord := h.perWord()
	mask := uint32(1<<bits - 1)
	n := h.Len()
	for i := 0; i < storageSize; i++ {
		if idx := int(h.Words[i/perWord] >> (uint(i%perWord) * uint(bits)) & mask); idx >= n {
			return formatErr("storage words", "palette index %v out of range for palette of %v", idx, n)
		}
	}
	return nil
}

// EncodePalette writes h to buf in the layout DecodePalette reads.
func EncodePalette(buf *bytes.Buffer, h *PaletteHolder, enc Encoding) error {
	if h.Persistent != enc.Persistent {
		return fmt.Errorf("chunk: encode persistent storage %v with persistent encoding %v", h.Persistent, enc.Persistent)
	}
	header := h.BitsPerEntry << 1
	if !h.Persistent {
		header |= 1
	}
	buf.WriteByte(header)
	if h.BitsPerEntry != 0 {
		for _, w := range h.Words {
			if enc.Layout == WordsByte {
				buf.WriteByte(byte(w))
				continue
			}
			buf.Write(binary.LittleEndian.AppendUint32(nil, w))
		}
		if h.Persistent {
			buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(h.States))))
		} else {
			_ = protocol.WriteVarint32(buf, int32(len(h.Runtime)))
		}
	}
	if h.Persistent {
		enc := nbt.NewEncoderWithEncoding(buf, nbt.LittleEndian)
		for _, s := range h.States {
			if err := enc.Encode(s); err != nil {
				return fmt.Errorf("chunk: encode palette entry: %w", err)
			}
		}
		return nil
	}
	for _, v := range h.Runtime {
		_ = protocol.WriteVarint32(buf, v)
	}
	return nil
}
