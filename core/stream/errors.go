package stream

import "errors"

var (
	// ErrStreamClosed is returned by Write after the stream has been closed.
	ErrStreamClosed = errors.New("stream is closed")

	// ErrBufferFull is returned when the stream's outbound queue is full.
	// The message is dropped for this stream only.
	ErrBufferFull = errors.New("stream buffer is full")

	// ErrEmptyUID is returned when a stream is created without an identifier.
	ErrEmptyUID = errors.New("stream uid must not be empty")

	// ErrStreamingUnsupported is returned when the response writer cannot flush.
	ErrStreamingUnsupported = errors.New("streaming unsupported by response writer")

	// ErrNotOpen is returned by Serve when Open was not called first.
	ErrNotOpen = errors.New("stream is not open")

	// ErrAlreadyOpen is returned when Open is called twice.
	ErrAlreadyOpen = errors.New("stream is already open")
)
