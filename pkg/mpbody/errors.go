package mpbody

import "errors"

// Stream errors. They are returned wrapped with context and can be checked
// with errors.Is.
var (
	// ErrInvalidArgument is returned when a part is rejected at append time.
	ErrInvalidArgument = errors.New("mpbody: invalid argument")

	// ErrSealed is returned when a part is appended after the stream has
	// reported its length or started producing bytes.
	ErrSealed = errors.New("mpbody: stream is sealed")

	// ErrPartUnavailable is returned when a file part cannot be stat'd or
	// opened, or when its size no longer matches the size already declared.
	ErrPartUnavailable = errors.New("mpbody: part unavailable")

	// ErrIO is returned when reading an already opened file fails.
	ErrIO = errors.New("mpbody: i/o error")

	// ErrClosed is returned by Read after Close until the stream is Reset.
	ErrClosed = errors.New("mpbody: stream closed")
)
