package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrEndOfStream is returned by Stream.Next once the connection was closed
	// or the stream was cancelled and every buffered notification was consumed.
	ErrEndOfStream = errors.New("bridge: end of stream")

	// ErrChannelClosed means the delivery queue was closed without the poll
	// driver reporting an outcome, i.e. the driver crashed.
	ErrChannelClosed = errors.New("bridge: notification channel closed unexpectedly")

	// ErrQueueFull is reported when a bounded queue rejects a message.
	ErrQueueFull = errors.New("bridge: notification queue is full")

	errReceiverGone = errors.New("bridge: receiver gone")
)

// TransportError wraps a read failure of the underlying session. It is fatal
// to the bridge and is never retried here.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bridge: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
