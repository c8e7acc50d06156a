package chat

import "errors"

var (
	// ErrStreamClosed is returned by Recv after Close was called.
	ErrStreamClosed = errors.New("chat: stream closed")
	// ErrStreamExhausted is returned by Recv after the final event.
	ErrStreamExhausted = errors.New("chat: stream exhausted")
)
