package chunk

import (
	"errors"
	"fmt"
)

// FormatError is returned when a payload does not follow the layout its
// header declares. The payload must be discarded.
type FormatError struct {
	Op  string
	Err error
}

func formatErr(op, format string, a ...any) error {
	return &FormatError{Op: op, Err: fmt.Errorf(format, a...)}
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return "chunk: decode " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error { return e.Err }

// UnsupportedFormatError is returned for format version tags that no decoder
// exists for. No attempt is made at decoding such payloads.
type UnsupportedFormatError struct {
	// Kind is the kind of payload, such as "sub-chunk" or "chunk".
	Kind    string
	Version int
}

// Error implements the error interface.
func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("chunk: unsupported %v format %v", e.Kind, e.Version)
}

// IsDecodeError reports if err was caused by payload content rather than by
// the client itself.
func IsDecodeError(err error) bool {
	var fe *FormatError
	var ue *UnsupportedFormatError
	return errors.As(err, &fe) || errors.As(err, &ue)
}
