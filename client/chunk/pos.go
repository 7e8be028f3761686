// Package chunk decodes Bedrock chunk and sub-chunk payloads into an in-memory
// representation and holds the coordinate helpers used to key requests.
package chunk

import "fmt"

// Pos is the position of a chunk column, measured in chunks.
type Pos struct {
	X, Z int32
}

// Index packs p into a single Index.
func (p Pos) Index() Index {
	return IndexOf(p.X, p.Z)
}

// String returns the position formatted as (x, z).
func (p Pos) String() string {
	return fmt.Sprintf("(%v, %v)", p.X, p.Z)
}

// Index is a chunk position packed into 64 bits: the X coordinate in the high
// half and the Z coordinate in the low half.
type Index int64

// IndexOf returns the Index of the chunk at x, z.
func IndexOf(x, z int32) Index {
	return Index(int64(x)<<32 | int64(uint32(z)))
}

// Pos unpacks the Index.
func (i Index) Pos() Pos {
	return Pos{X: int32(i >> 32), Z: int32(i)}
}
