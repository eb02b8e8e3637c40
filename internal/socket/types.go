package socket

import (
	"context"
	"time"

	"github.com/rsocket/rpc-go/core"
)

// Sender writes messages on an open connection.
type Sender interface {
	Send(msg core.Message) error
}

// Router consumes the decoded inbound messages of a connection.
type Router interface {
	// Route handles one inbound message. A returned error is fatal to the connection.
	Route(msg core.Message) error
	// Teardown resolves every outstanding call with err and stops new registrations.
	Teardown(err error)
	// Pending returns the number of outstanding calls.
	Pending() int
	// Serving returns the number of inbound requests not answered yet.
	Serving() int
}

// RequestHandler serves inbound requests on the server side.
// reply must be called exactly once with the response; its id is filled in by the dispatcher.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req core.Message, reply func(resp core.Message))
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, req core.Message, reply func(resp core.Message))

// HandleRequest calls f.
func (f RequestHandlerFunc) HandleRequest(ctx context.Context, req core.Message, reply func(resp core.Message)) {
	f(ctx, req, reply)
}

// Observer is notified of every message crossing a connection.
type Observer interface {
	OnSend(msg core.Message, size int)
	OnReceive(msg core.Message, size int)
}

// ConnectStrategy decides how the first connect of a manager reacts to failures.
type ConnectStrategy int8

// All strategies
const (
	// StrategyFallback gives up on the first failure.
	StrategyFallback ConnectStrategy = iota
	// StrategyRetry retries the first connect with the reconnect policy.
	StrategyRetry
)

func (s ConnectStrategy) String() string {
	switch s {
	case StrategyFallback:
		return "fallback"
	case StrategyRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Default settings.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultCloseGrace       = 5 * time.Second
	DefaultCallTimeout      = 30 * time.Second
	DefaultSweepInterval    = time.Second
)

// StateEvent is published on every state change of a manager.
type StateEvent struct {
	State   core.State
	Attempt int
	Err     error
	// Final is true when no further transition will happen.
	Final bool
}
