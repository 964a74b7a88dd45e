package chathub

import "errors"

var (
	// ErrSendBufferFull is returned by Send when the connection is not
	// draining its outbound queue.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrClientClosed is returned by Send after Close.
	ErrClientClosed = errors.New("client closed")
)

// Client is the interface for any live connection the hub routes events to.
// It abstracts the underlying transport so rooms, presence and fan-out work
// the same for every connection type.
type Client interface {
	// ID returns the unique identifier of this connection.
	ID() string
	// Username returns the participant identity bound to the connection.
	Username() string
	// Send queues an encoded event for delivery. It must not block; events
	// accepted by Send are delivered in the order they were queued.
	Send(payload []byte) error
	// Close tears down the connection. It is safe to call more than once and
	// from any goroutine.
	Close()
}
