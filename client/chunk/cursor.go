package chunk

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sandertv/gophertunnel/minecraft/protocol"
)

func readByte(buf *bytes.Buffer, op string) (byte, error) {
	b, err := buf.ReadByte()
	if err != nil {
		return 0, &FormatError{Op: op, Err: io.ErrUnexpectedEOF}
	}
	return b, nil
}

func next(buf *bytes.Buffer, n int, op string) ([]byte, error) {
	if n < 0 || buf.Len() < n {
		return nil, &FormatError{Op: op, Err: io.ErrUnexpectedEOF}
	}
	return buf.Next(n), nil
}

func readUint32(buf *bytes.Buffer, op string) (uint32, error) {
	b, err := next(buf, 4, op)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func readVarint32(buf *bytes.Buffer, op string) (int32, error) {
	var v int32
	if err := protocol.Varint32(buf, &v); err != nil {
		return 0, &FormatError{Op: op, Err: err}
	}
	return v, nil
}
