package transport

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"go.uber.org/atomic"
)

// EventSource is a callback-driven socket, the shape exposed by hosted runtimes
// such as a browser WebSocket object.
//
// Implementations invoke callbacks sequentially from a single goroutine.
// OnClose is invoked exactly once and no callback follows it.
type EventSource interface {
	OnOpen(fn func())
	OnMessage(fn func(Frame))
	OnError(fn func(error))
	OnClose(fn func(code int, reason string))
	// Connect starts connecting and returns immediately; the outcome is reported through callbacks.
	Connect(ctx context.Context)
	// Send writes a frame on an open source.
	Send(frame Frame) error
	// Close requests a graceful close. OnClose reports completion.
	Close(code int, reason string) error
	// RemoteAddr returns the peer address, or an empty string if unknown.
	RemoteAddr() string
}

// HostedSocket turns the callbacks of an EventSource into the ordered event sequence of Socket.
type HostedSocket struct {
	src     EventSource
	queue   *eventQueue
	state   atomic.Int32
	counter atomic.Pointer[core.TrafficCounter]
	errored atomic.Bool
	opened  chan struct{}
	failed  chan error
}

// NewHostedSocket binds a socket to src. src must not have been connected yet.
func NewHostedSocket(src EventSource) *HostedSocket {
	p := &HostedSocket{
		src:    src,
		queue:  newEventQueue(),
		opened: make(chan struct{}),
		failed: make(chan error, 1),
	}
	src.OnOpen(p.handleOpen)
	src.OnMessage(p.handleMessage)
	src.OnError(p.handleError)
	src.OnClose(p.handleClose)
	return p
}

func (p *HostedSocket) handleOpen() {
	if !p.state.CompareAndSwap(socketIdle, socketOpen) {
		return
	}
	p.queue.push(Event{Kind: EventOpen})
	close(p.opened)
}

func (p *HostedSocket) handleMessage(frame Frame) {
	if p.state.Load() != socketOpen {
		return
	}
	if c := p.counter.Load(); c != nil {
		c.IncReadBytes(len(frame.Data))
	}
	p.queue.push(Event{Kind: EventMessage, Frame: frame})
}

func (p *HostedSocket) handleError(err error) {
	if p.queue.isFinished() {
		return
	}
	err = errors.Wrap(err, "socket error")
	p.errored.Store(true)
	if p.state.Load() == socketIdle {
		select {
		case p.failed <- err:
		default:
		}
	}
	p.queue.push(Event{Kind: EventError, Err: err})
}

func (p *HostedSocket) handleClose(code int, reason string) {
	if p.state.Swap(socketClosed) == socketIdle && !p.errored.Load() {
		err := errors.Errorf("closed before open: %d %s", code, reason)
		select {
		case p.failed <- err:
		default:
		}
		p.queue.push(Event{Kind: EventError, Err: err})
	}
	p.queue.finish(Event{Kind: EventClosed, Code: code, Reason: reason})
}

// Events returns the inbound event sequence.
func (p *HostedSocket) Events() <-chan Event {
	return p.queue.ch
}

// SetCounter bind a counter which can count r/w bytes.
func (p *HostedSocket) SetCounter(c *core.TrafficCounter) {
	p.counter.Store(c)
}

// RemoteAddr returns the peer address.
func (p *HostedSocket) RemoteAddr() string {
	return p.src.RemoteAddr()
}

// Open connects the source and waits for its open or failure callback.
func (p *HostedSocket) Open(ctx context.Context) error {
	if p.state.Load() != socketIdle {
		return errors.Wrap(core.ErrNotOpen, "socket cannot be opened twice")
	}
	p.src.Connect(ctx)
	select {
	case <-p.opened:
		return nil
	case err := <-p.failed:
		return err
	case <-ctx.Done():
		_ = p.src.Close(CloseAbnormal, "open canceled")
		return errors.Wrap(ctx.Err(), "open socket failed")
	}
}

// Send writes a frame.
func (p *HostedSocket) Send(frame Frame) error {
	if p.state.Load() != socketOpen {
		return core.ErrNotOpen
	}
	if err := p.src.Send(frame); err != nil {
		return errors.Wrap(err, "write frame failed")
	}
	if c := p.counter.Load(); c != nil {
		c.IncWriteBytes(len(frame.Data))
	}
	return nil
}

// Close requests the source to close. It is idempotent.
func (p *HostedSocket) Close() error {
	switch p.state.Load() {
	case socketClosed:
		return nil
	case socketOpen:
		p.queue.abandon()
	}
	return p.src.Close(CloseNormal, "")
}
