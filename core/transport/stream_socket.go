package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/internal/u24"
	"github.com/rsocket/rpc-go/logger"
	"go.uber.org/atomic"
)

// StreamSocket adapts a byte-stream connection (TCP, unix) to the message-oriented
// Socket contract by prefixing every frame with its u24 length.
type StreamSocket struct {
	dial    func(ctx context.Context) (net.Conn, error)
	conn    net.Conn
	writer  *bufio.Writer
	decoder *FrameDecoder
	counter *core.TrafficCounter
	queue   *eventQueue
	state   atomic.Int32
	wmu     sync.Mutex
}

// Events returns the inbound event sequence.
func (p *StreamSocket) Events() <-chan Event {
	return p.queue.ch
}

// SetCounter bind a counter which can count r/w bytes.
func (p *StreamSocket) SetCounter(c *core.TrafficCounter) {
	p.counter = c
}

// RemoteAddr returns the peer address.
func (p *StreamSocket) RemoteAddr() string {
	if p.state.Load() == socketIdle || p.conn == nil {
		return ""
	}
	return p.conn.RemoteAddr().String()
}

// Open dials the remote endpoint if needed and starts reading frames.
func (p *StreamSocket) Open(ctx context.Context) (err error) {
	if p.state.Load() != socketIdle {
		return errors.Wrap(core.ErrNotOpen, "socket cannot be opened twice")
	}
	conn := p.conn
	if conn == nil {
		conn, err = p.dial(ctx)
		if err != nil {
			err = errors.Wrap(err, "dial failed")
			if p.state.CompareAndSwap(socketIdle, socketClosed) {
				p.queue.push(Event{Kind: EventError, Err: err})
				p.queue.finish(Event{Kind: EventClosed, Code: CloseAbnormal, Reason: err.Error()})
			}
			return
		}
	}
	p.conn = conn
	p.writer = bufio.NewWriterSize(conn, 8192)
	p.decoder = NewFrameDecoder(conn)
	if !p.state.CompareAndSwap(socketIdle, socketOpen) {
		_ = conn.Close()
		return errors.Wrap(core.ErrNotOpen, "socket closed while opening")
	}
	p.queue.push(Event{Kind: EventOpen})
	go p.loopRead()
	return
}

func (p *StreamSocket) loopRead() {
	var last Event
	for {
		raw, err := p.decoder.Read()
		if err == io.EOF {
			last = Event{Kind: EventClosed, Code: CloseNormal, Reason: "EOF"}
			break
		}
		if err != nil {
			if p.state.Load() == socketClosed {
				last = Event{Kind: EventClosed, Code: CloseNormal, Reason: "closed"}
				break
			}
			err = errors.Wrap(err, "read frame failed")
			p.queue.push(Event{Kind: EventError, Err: err})
			last = Event{Kind: EventClosed, Code: CloseAbnormal, Reason: err.Error()}
			break
		}
		data := make([]byte, len(raw))
		copy(data, raw)
		if p.counter != nil {
			p.counter.IncReadBytes(len(data) + lengthFieldSize)
		}
		if !p.queue.push(Event{Kind: EventMessage, Frame: Frame{Data: data}}) {
			last = Event{Kind: EventClosed, Code: CloseNormal, Reason: "closed"}
			break
		}
	}
	p.state.Store(socketClosed)
	_ = p.conn.Close()
	p.queue.finish(last)
}

// Send writes a frame.
func (p *StreamSocket) Send(frame Frame) (err error) {
	if p.state.Load() != socketOpen {
		return core.ErrNotOpen
	}
	size, err := u24.NewUint24(len(frame.Data))
	if err != nil {
		return errors.Wrap(err, "frame too large")
	}
	if len(frame.Data) == 0 {
		return errors.Wrap(ErrInvalidFrameLength, "empty frame")
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if _, err = size.WriteTo(p.writer); err != nil {
		return errors.Wrap(err, "write frame failed")
	}
	if _, err = p.writer.Write(frame.Data); err != nil {
		return errors.Wrap(err, "write frame failed")
	}
	if err = p.writer.Flush(); err != nil {
		return errors.Wrap(err, "flush failed")
	}
	if p.counter != nil {
		p.counter.IncWriteBytes(len(frame.Data) + lengthFieldSize)
	}
	if logger.IsDebugEnabled() {
		logger.Debugf("---> snd: %d bytes to %s", len(frame.Data), p.conn.RemoteAddr())
	}
	return
}

// Close close current connection.
func (p *StreamSocket) Close() error {
	for {
		switch prev := p.state.Load(); prev {
		case socketIdle:
			if p.state.CompareAndSwap(socketIdle, socketClosed) {
				p.queue.finish(Event{Kind: EventClosed, Code: CloseNormal, Reason: "closed before open"})
				return nil
			}
		case socketOpen:
			if p.state.CompareAndSwap(socketOpen, socketClosed) {
				p.queue.abandon()
				return p.conn.Close()
			}
		default:
			return nil
		}
	}
}

// NewStreamSocket wraps an established connection, typically one returned by a listener.
func NewStreamSocket(conn net.Conn) *StreamSocket {
	return &StreamSocket{
		conn:  conn,
		queue: newEventQueue(),
	}
}

// NewStreamDialSocket returns a socket which dials network/addr when opened.
func NewStreamDialSocket(network, addr string, tlsConfig *tls.Config) *StreamSocket {
	return &StreamSocket{
		dial: func(ctx context.Context) (net.Conn, error) {
			if tlsConfig == nil {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			}
			d := tls.Dialer{Config: tlsConfig}
			return d.DialContext(ctx, network, addr)
		},
		queue: newEventQueue(),
	}
}

// TCPClient returns a factory of stream sockets dialing network/addr.
func TCPClient(network, addr string, tlsConfig *tls.Config) SocketFactory {
	return func() Socket {
		return NewStreamDialSocket(network, addr, tlsConfig)
	}
}
