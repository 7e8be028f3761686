// Package journal records the chunks a client fetched in a LevelDB database,
// so that later runs can skip chunks that were already mirrored.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/storage"
	"github.com/dm-vev/chunky/client/chunk"
)

// Entry is the record of a single fetched chunk.
type Entry struct {
	Pos       chunk.Pos
	Dimension int32
	// Checksum is the checksum of the payloads the chunk was assembled from.
	Checksum uint64
	// SubChunks is the amount of non-empty sub-chunks of the chunk.
	SubChunks int
	Fetched   time.Time
}

// Journal is a LevelDB database of Entries, keyed by dimension and chunk
// position. It is safe for concurrent use.
type Journal struct {
	db *leveldb.DB
}

// Open opens or creates the journal in the folder dir.
func Open(dir string) (*Journal, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open journal %v: %w", dir, err)
	}
	return &Journal{db: db}, nil
}

// OpenMem opens a journal that is kept in memory only.
func OpenMem() (*Journal, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record stores an Entry for the chunk held by h.
func (j *Journal) Record(h *chunk.Holder) error {
	n := 0
	for _, sub := range h.SubChunks {
		if sub != nil && !sub.Empty() {
			n++
		}
	}
	e := Entry{Pos: h.Pos, Dimension: h.Dimension, Checksum: h.Checksum(), SubChunks: n, Fetched: time.Now()}
	if err := j.db.Put(key(e.Dimension, e.Pos), encodeEntry(e), nil); err != nil {
		return fmt.Errorf("record chunk %v: %w", e.Pos, err)
	}
	return nil
}

// Lookup returns the Entry of the chunk at pos. ok is false if the chunk was
// never recorded.
func (j *Journal) Lookup(dim int32, pos chunk.Pos) (e Entry, ok bool, err error) {
	v, err := j.db.Get(key(dim, pos), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return Entry{}, false, nil
	case err != nil:
		return Entry{}, false, fmt.Errorf("lookup chunk %v: %w", pos, err)
	}
	e, err = decodeEntry(v)
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup chunk %v: %w", pos, err)
	}
	e.Pos, e.Dimension = pos, dim
	return e, true, nil
}

// Has reports if the chunk at pos was recorded.
func (j *Journal) Has(dim int32, pos chunk.Pos) (bool, error) {
	return j.db.Has(key(dim, pos), nil)
}

// Len returns the amount of recorded chunks.
func (j *Journal) Len() (int, error) {
	it := j.db.NewIterator(nil, nil)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n, it.Error()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// key returns the key of a chunk: x and z as little endian int32s, followed by
// the dimension outside the overworld.
func key(dim int32, pos chunk.Pos) []byte {
	b := binary.LittleEndian.AppendUint32(nil, uint32(pos.X))
	b = binary.LittleEndian.AppendUint32(b, uint32(pos.Z))
	if dim != chunk.Overworld {
		b = binary.LittleEndian.AppendUint32(b, uint32(dim))
	}
	return b
}

const entrySize = 8 + 2 + 8

func encodeEntry(e Entry) []byte {
	b := binary.LittleEndian.AppendUint64(nil, e.Checksum)
	b = binary.LittleEndian.AppendUint16(b, uint16(e.SubChunks))
	return binary.LittleEndian.AppendUint64(b, uint64(e.Fetched.UnixNano()))
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) != entrySize {
		return Entry{}, fmt.Errorf("entry has %v bytes, expected %v", len(b), entrySize)
	}
	return Entry{
		Checksum:  binary.LittleEndian.Uint64(b),
		SubChunks: int(binary.LittleEndian.Uint16(b[8:])),
		Fetched:   time.Unix(0, int64(binary.LittleEndian.Uint64(b[10:]))),
	}, nil
}
