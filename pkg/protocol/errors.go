package protocol

import "errors"

// Common errors
var (
	// ErrMalformedFrame means a buffer is shorter than its layout. Nothing is
	// decoded from it.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownTag means the leading tag byte names no command variant.
	ErrUnknownTag = errors.New("unknown command tag")
	// ErrFrameMismatch means a command does not fit the codec, for example a
	// joint target with the wrong number of joints.
	ErrFrameMismatch = errors.New("command does not fit frame")
)
