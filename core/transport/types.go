package transport

import (
	"context"
	"io"
	"net"

	"github.com/rsocket/rpc-go/core"
)

// Frame is one message-oriented unit handed to or received from a Socket.
type Frame struct {
	Data []byte
	// Text marks a UTF-8 text frame. Stream sockets do not carry the flag.
	Text bool
}

// EventKind is the kind of an inbound socket event.
type EventKind uint8

// All event kinds
const (
	EventOpen EventKind = iota + 1
	EventMessage
	EventError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "OPEN"
	case EventMessage:
		return "MESSAGE"
	case EventError:
		return "ERROR"
	case EventClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Event is an item of the ordered inbound sequence of a Socket.
type Event struct {
	Kind   EventKind
	Frame  Frame
	Err    error
	Code   int
	Reason string
}

// Close codes reported with EventClosed.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// Socket is the capability shared by every transport variant.
type Socket interface {
	io.Closer
	// Open starts the underlying transport and blocks until it is usable.
	// It yields exactly one EventOpen or EventError on Events.
	Open(ctx context.Context) error
	// Send writes one frame. It fails with core.ErrNotOpen before Open succeeded or after Close.
	Send(frame Frame) error
	// Events returns the inbound sequence. EventClosed is always the last event
	// and the channel is closed right after it.
	Events() <-chan Event
	// SetCounter bind a counter which can count r/w bytes.
	SetCounter(c *core.TrafficCounter)
	// RemoteAddr returns the peer address, or an empty string if unknown.
	RemoteAddr() string
}

// SocketFactory creates a fresh, unopened socket for every connection attempt.
type SocketFactory func() Socket

// Acceptor handles an accepted socket. onClose must be invoked once the socket is done.
type Acceptor = func(ctx context.Context, sk Socket, onClose func(Socket))

// ListenerFactory creates the listener of a server transport.
type ListenerFactory func(context.Context) (net.Listener, error)

// ServerTransport is a listener producing sockets.
type ServerTransport interface {
	io.Closer
	// Accept register incoming connection handler.
	Accept(acceptor Acceptor)
	// Listen listens on the network address addr and handles requests on incoming connections.
	// The notifier receives true once the server begins listening, or false if listening failed.
	Listen(ctx context.Context, notifier chan<- bool) error
	// Addr returns the bound address, or nil before Listen.
	Addr() net.Addr
}

const eventBufferSize = 64
