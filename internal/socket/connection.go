package socket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/core/framing"
	"github.com/rsocket/rpc-go/core/transport"
	"github.com/rsocket/rpc-go/logger"
	"go.uber.org/atomic"
)

// ConnectionConfig configures a Connection.
type ConnectionConfig struct {
	Role core.Role
	// HandshakeTimeout bounds opening the socket plus the handshake.
	HandshakeTimeout time.Duration
	// CloseGrace bounds how long a graceful close waits for pending calls.
	CloseGrace time.Duration
	Version    core.Version
	// Encodings are proposed by a client, or accepted by a server, in preference order.
	Encodings []core.Encoding
	// Payload is sent with the proposal of a client.
	Payload  []byte
	Acceptor HandshakeAcceptor
	Counter  *core.TrafficCounter
	Observer Observer
}

func (c *ConnectionConfig) fill() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = DefaultCloseGrace
	}
	if c.Version == (core.Version{}) {
		c.Version = core.DefaultVersion
	}
	if len(c.Encodings) == 0 {
		c.Encodings = core.SupportedEncodings
	}
}

// Connection owns one socket and drives it through handshake, traffic and close.
type Connection struct {
	id     string
	cfg    ConnectionConfig
	sk     transport.Socket
	router Router
	state  *atomic.Int32

	codec  framing.Codec
	agreed Agreement

	started *atomic.Bool
	closing *atomic.Bool
	mu      sync.Mutex
	err     error
	done    chan struct{}
	once    sync.Once
}

// NewConnection binds sk to router. The connection starts in Connecting.
func NewConnection(sk transport.Socket, router Router, cfg ConnectionConfig) *Connection {
	cfg.fill()
	if cfg.Counter != nil {
		sk.SetCounter(cfg.Counter)
	}
	return &Connection{
		id:      uuid.New().String(),
		cfg:     cfg,
		sk:      sk,
		router:  router,
		state:   atomic.NewInt32(int32(core.StateConnecting)),
		started: atomic.NewBool(false),
		closing: atomic.NewBool(false),
		done:    make(chan struct{}),
	}
}

// ID returns the unique identity of the connection.
func (c *Connection) ID() string {
	return c.id
}

// Role returns the local role.
func (c *Connection) Role() core.Role {
	return c.cfg.Role
}

// State returns the current state.
func (c *Connection) State() core.State {
	return core.State(c.state.Load())
}

// Agreement returns the outcome of the handshake. It is only meaningful once Open.
func (c *Connection) Agreement() Agreement {
	return c.agreed
}

// Encoding returns the agreed encoding, or zero before Open.
func (c *Connection) Encoding() core.Encoding {
	if c.State() == core.StateConnecting {
		return 0
	}
	return c.agreed.Encoding
}

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() string {
	return c.sk.RemoteAddr()
}

// Done is closed when the connection reaches Closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection closed. Read it once Done is closed.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Start opens the socket, runs the handshake for the local role and starts the inbound task.
// On failure the connection is Closed and the error is one of core.ErrHandshakeTimeout,
// core.ErrHandshakeFailed, core.ErrTransport or core.ErrConnectionDropped.
func (c *Connection) Start(ctx context.Context) (err error) {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("connection started already")
	}
	defer func() {
		if err != nil {
			c.fail(err)
			_ = c.sk.Close()
			go c.drain()
		}
	}()

	hsCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	if err = c.sk.Open(hsCtx); err != nil {
		if hsCtx.Err() == context.DeadlineExceeded {
			err = errors.Wrapf(core.ErrHandshakeTimeout, "socket not open after %s", c.cfg.HandshakeTimeout)
		} else {
			err = errors.Wrapf(core.ErrTransport, "open socket failed: %s", err)
		}
		return
	}

	if c.cfg.Role == core.RoleClient {
		c.agreed, err = ClientHandshake(hsCtx, c.sk, Proposal{
			Version:   c.cfg.Version,
			Encodings: c.cfg.Encodings,
			Payload:   c.cfg.Payload,
		})
	} else {
		c.agreed, err = ServerHandshake(hsCtx, c.sk, c.cfg.Version, c.cfg.Encodings, c.cfg.Acceptor)
	}
	if err != nil {
		return
	}
	if c.codec, err = framing.New(c.agreed.Encoding, c.cfg.Role); err != nil {
		err = errors.Wrapf(core.ErrHandshakeFailed, "%s", err)
		return
	}
	if c.closing.Load() || !c.state.CompareAndSwap(int32(core.StateConnecting), int32(core.StateOpen)) {
		err = errors.Wrap(core.ErrConnectionClosed, "closed during handshake")
		return
	}
	if logger.IsDebugEnabled() {
		logger.Debugf("connection %s open: role=%s, version=%s, encoding=%s",
			c.id, c.cfg.Role, c.agreed.Version, c.agreed.Encoding)
	}
	go c.loopRead()
	return
}

func (c *Connection) loopRead() {
	var transportErr error
	for ev := range c.sk.Events() {
		switch ev.Kind {
		case transport.EventMessage:
			if c.Err() != nil {
				// Fatal already: ignore everything until the socket is closed.
				continue
			}
			if err := c.handleFrame(ev.Frame); err != nil {
				logger.Errorf("connection %s: %s", c.id, err)
				c.fail(err)
				_ = c.sk.Close()
			}
		case transport.EventError:
			transportErr = ev.Err
		case transport.EventClosed:
			switch {
			case transportErr != nil:
				c.fail(errors.Wrapf(core.ErrTransport, "%s", transportErr))
			case c.closing.Load():
				c.fail(core.ErrConnectionClosed)
			default:
				c.fail(errors.Wrapf(core.ErrConnectionDropped, "socket closed: %d %s", ev.Code, ev.Reason))
			}
		}
	}
	c.finish()
}

func (c *Connection) handleFrame(frame transport.Frame) error {
	msg, err := c.codec.Decode(frame.Data)
	if err != nil {
		return err
	}
	if o := c.cfg.Observer; o != nil {
		o.OnReceive(msg, len(frame.Data))
	}
	if logger.IsDebugEnabled() {
		logger.Debugf("<--- rcv: %s", msg)
	}
	return c.router.Route(msg)
}

// drain consumes the remaining events of a socket that never reached Open.
func (c *Connection) drain() {
	for range c.sk.Events() {
	}
	c.finish()
}

// fail records the first cause of closing.
func (c *Connection) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *Connection) finish() {
	c.once.Do(func() {
		c.state.Store(int32(core.StateClosed))
		err := c.Err()
		if err == nil {
			err = core.ErrConnectionClosed
			c.fail(err)
		}
		if errors.Is(err, core.ErrConnectionClosed) || errors.Is(err, core.ErrConnectionDropped) {
			c.router.Teardown(err)
		} else {
			c.router.Teardown(errors.Wrapf(core.ErrConnectionDropped, "%s", err))
		}
		close(c.done)
	})
}

// Send encodes and writes a message. Only allowed while Open.
func (c *Connection) Send(msg core.Message) error {
	switch core.State(c.state.Load()) {
	case core.StateOpen:
	case core.StateClosing:
		// Replies drain while closing.
		if msg.Kind != core.KindResponse {
			return core.ErrConnectionClosing
		}
	case core.StateClosed:
		return core.ErrConnectionClosed
	default:
		return core.ErrNotOpen
	}
	b, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	frame := transport.Frame{
		Data: b,
		Text: c.agreed.Encoding == core.EncodingText,
	}
	if err := c.sk.Send(frame); err != nil {
		if c.State() == core.StateClosed {
			return core.ErrConnectionClosed
		}
		return errors.Wrapf(core.ErrTransport, "%s", err)
	}
	if o := c.cfg.Observer; o != nil {
		o.OnSend(msg, len(b))
	}
	if logger.IsDebugEnabled() {
		logger.Debugf("---> snd: %s", msg)
	}
	return nil
}

// Close closes gracefully: new sends other than replies are rejected, pending calls and
// inbound requests being served get up to the close grace period to complete,
// then the socket is closed.
// Close returns once the connection is Closed or ctx is done.
func (c *Connection) Close(ctx context.Context) error {
	if !c.closing.CompareAndSwap(false, true) {
		return c.wait(ctx)
	}
	if c.started.CompareAndSwap(false, true) {
		c.fail(core.ErrConnectionClosed)
		_ = c.sk.Close()
		go c.drain()
		return c.wait(ctx)
	}
	if c.state.CompareAndSwap(int32(core.StateOpen), int32(core.StateClosing)) {
		c.waitIdle(ctx)
	}
	c.fail(core.ErrConnectionClosed)
	_ = c.sk.Close()
	return c.wait(ctx)
}

// Abort closes the socket at once. Pending calls are dropped.
func (c *Connection) Abort() {
	_ = c.sk.Close()
}

func (c *Connection) waitIdle(ctx context.Context) {
	if c.idle() {
		return
	}
	grace := time.NewTimer(c.cfg.CloseGrace)
	defer grace.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if c.idle() {
				return
			}
		case <-grace.C:
			logger.Warnf("connection %s: %d pending and %d serving requests left after grace period",
				c.id, c.router.Pending(), c.router.Serving())
			return
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *Connection) idle() bool {
	return c.router.Pending() == 0 && c.router.Serving() == 0
}

func (c *Connection) wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
