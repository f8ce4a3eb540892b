package audio

import (
	"context"
	"fmt"
)

// EventType identifies what a capture stream is reporting.
type EventType int

const (
	// EventChunk carries a fragment of encoded audio in capture order.
	EventChunk EventType = iota
	// EventStopped is sent once after the final chunk has been flushed.
	EventStopped
	// EventError reports a device failure; the stream still ends with EventStopped.
	EventError
)

// Event is a single notification from a capture stream.
type Event struct {
	Type EventType
	Data []byte
	Err  error
}

// Stream is a live, exclusively owned capture session on a device.
//
// Events are delivered in order on the Events channel, which is closed after
// EventStopped. Stop asks the device to finish; it keeps delivering any chunk it
// flushes while shutting down. Close releases the device and must be safe to call
// more than once and after Stop.
type Stream interface {
	SampleRate() int
	Channels() int
	Events() <-chan Event
	Stop() error
	Close() error
}

// Device opens capture streams.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// PermissionError reports that the microphone could not be acquired,
// either because access was denied or because no device is available.
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("microphone access denied: %v", e.Err)
	}
	return fmt.Sprintf("microphone access denied (%s): %v", e.Device, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}
