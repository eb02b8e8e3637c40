// Package rpc is a duplex asynchronous RPC transport.
//
// A client connects with Connect(), a server is built with Receive(). Both sides
// exchange requests, responses and notifications over TCP, unix sockets or
// websockets, encoded with the Binary or Text profile agreed in the handshake.
package rpc

import (
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/internal/socket"
)

type (
	// Encoding is the wire profile of a connection.
	Encoding = core.Encoding
	// State is the lifecycle state of a connection.
	State = core.State
	// Version is the protocol version.
	Version = core.Version
	// StateEvent is published on every state change of a client.
	StateEvent = socket.StateEvent
	// ConnectStrategy decides how the first connect of a client reacts to failures.
	ConnectStrategy = socket.ConnectStrategy
	// Subscription is a registered notification handler of a client.
	Subscription = socket.Subscription
	// NotificationHandler handles a notification received by a client.
	NotificationHandler = socket.NotificationHandler
	// Proposal is the handshake proposal of a client, as seen by a server.
	Proposal = socket.Proposal
	// HandshakeAcceptor may reject a proposal. The error text is sent to the client.
	HandshakeAcceptor = socket.HandshakeAcceptor
	// RemoteError is returned by a call answered with an error response.
	RemoteError = core.RemoteError
	// ErrorDescriptor is the structured payload of an error response.
	ErrorDescriptor = core.ErrorDescriptor
)

// Encodings
const (
	EncodingBinary = core.EncodingBinary
	EncodingText   = core.EncodingText
)

// States
const (
	StateConnecting   = core.StateConnecting
	StateOpen         = core.StateOpen
	StateClosing      = core.StateClosing
	StateClosed       = core.StateClosed
	StateReconnecting = core.StateReconnecting
)

// Connect strategies
const (
	StrategyFallback = socket.StrategyFallback
	StrategyRetry    = socket.StrategyRetry
)

// Wildcard subscribes to every notification.
const Wildcard = socket.Wildcard

// Error codes carried by ErrorDescriptor.
const (
	CodeMethodNotFound = core.CodeMethodNotFound
	CodeInternal       = core.CodeInternal
	CodeApplication    = core.CodeApplication
)

// Error defines.
var (
	ErrNotOpen           = core.ErrNotOpen
	ErrMalformedFrame    = core.ErrMalformedFrame
	ErrTimeout           = core.ErrTimeout
	ErrHandshakeFailed   = core.ErrHandshakeFailed
	ErrHandshakeTimeout  = core.ErrHandshakeTimeout
	ErrConnectionClosed  = core.ErrConnectionClosed
	ErrConnectionDropped = core.ErrConnectionDropped
	ErrConnectionClosing = core.ErrConnectionClosing
	ErrTransport         = core.ErrTransport
	ErrHandlerNil        = core.ErrHandlerNil
	ErrHandlerExist      = core.ErrHandlerExist
	ErrMethodNotFound    = core.ErrMethodNotFound
	ErrPeerNotFound      = core.ErrPeerNotFound
)

// ParseEncoding parses an encoding name case-insensitively.
func ParseEncoding(s string) (Encoding, error) {
	return core.ParseEncoding(s)
}

// IsTerminal returns true if err ends a client for good.
func IsTerminal(err error) bool {
	return core.IsTerminal(err)
}
