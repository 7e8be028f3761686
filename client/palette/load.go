package palette

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// blockList is the layout of palette files holding all states in a single
// root compound.
type blockList struct {
	Blocks []BlockState `nbt:"blocks"`
}

// Read reads all block states from r, in runtime ID order. Gzip compressed
// input is detected and decompressed. Two layouts are accepted: a root
// compound with a "blocks" list (big or little endian) and a plain sequence
// of network encoded state compounds, as found in block_states.nbt.
func Read(r io.Reader) ([]BlockState, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("palette: open gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("palette: read: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("palette: empty state table")
	}
	for _, enc := range []nbt.Encoding{nbt.BigEndian, nbt.LittleEndian} {
		var list blockList
		if err := nbt.UnmarshalEncoding(data, &list, enc); err == nil && len(list.Blocks) > 0 {
			return list.Blocks, nil
		}
	}
	return readSequence(data)
}

func readSequence(data []byte) ([]BlockState, error) {
	var states []BlockState
	buf := bytes.NewBuffer(data)
	dec := nbt.NewDecoder(buf)
	for buf.Len() > 0 {
		var s BlockState
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("palette: decode state %v: %w", len(states), err)
		}
		states = append(states, s)
	}
	if len(states) == 0 {
		return nil, errors.New("palette: empty state table")
	}
	return states, nil
}
