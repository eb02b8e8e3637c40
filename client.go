package rpc

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/core/transport"
	"github.com/rsocket/rpc-go/internal/socket"
	"github.com/rsocket/rpc-go/logger"
	"github.com/rsocket/rpc-go/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Client is a connection to a server that survives transport failures when reconnect is enabled.
	Client interface {
		io.Closer
		// Call sends a request and waits for its response, bounded by the default call timeout and ctx.
		Call(ctx context.Context, op string, payload []byte) ([]byte, error)
		// CallTimeout is Call with its own timeout.
		CallTimeout(ctx context.Context, op string, payload []byte, timeout time.Duration) ([]byte, error)
		// Notify sends a notification. No response is expected.
		Notify(op string, payload []byte) error
		// Subscribe registers handler for notifications whose op equals selector, or all of them for Wildcard.
		Subscribe(selector string, handler NotificationHandler) *Subscription
		// State returns the current connection state.
		State() State
		// States returns a stream of state events and a function cancelling it.
		States() (<-chan StateEvent, func())
		// WaitOpen blocks until the connection is open, closed for good, or ctx is done.
		WaitOpen(ctx context.Context) error
		// Reconnect drops the current connection and reconnects immediately.
		Reconnect() error
		// Disconnect closes gracefully. Pending calls get the close grace period to complete.
		Disconnect(ctx context.Context) error
		// Agreement returns the version and encoding of the current connection.
		Agreement() (Version, Encoding, bool)
	}

	// ClientBuilder can be used to build a client.
	ClientBuilder interface {
		ClientTransportBuilder
		// Config replaces every connection setting.
		Config(c Config) ClientBuilder
		// Reconnect enables or disables reconnecting after the transport is lost.
		Reconnect(enable bool) ClientBuilder
		// Backoff sets the reconnect delays.
		Backoff(base, max time.Duration, jitter float64) ClientBuilder
		// MaxAttempts limits consecutive reconnect attempts. Zero means unlimited.
		MaxAttempts(n int) ClientBuilder
		// HandshakeTimeout bounds opening the socket plus the handshake.
		HandshakeTimeout(timeout time.Duration) ClientBuilder
		// CallTimeout sets the default timeout of calls.
		CallTimeout(timeout time.Duration) ClientBuilder
		// Encoding sets the preferred encoding.
		Encoding(enc Encoding) ClientBuilder
		// Strategy sets how the first connect reacts to failures.
		Strategy(s ConnectStrategy) ClientBuilder
		// Payload sets the application payload sent with the handshake.
		Payload(payload []byte) ClientBuilder
		// TLS sets the TLS config of tcp, unix and wss endpoints.
		TLS(c *tls.Config) ClientBuilder
		// Header sets the HTTP header sent with a websocket upgrade.
		Header(h http.Header) ClientBuilder
		// Metrics records the traffic of the client.
		Metrics(c *metrics.Collector) ClientBuilder
	}

	// ClientTransportBuilder is used to build a client with an endpoint.
	ClientTransportBuilder interface {
		// Transport sets the endpoint, such as tcp://127.0.0.1:7878 or ws://127.0.0.1:8080/rpc.
		Transport(endpoint string) ClientStarter
	}

	// ClientStarter can be used to start a client.
	ClientStarter interface {
		// Start connects according to the connect strategy.
		Start(ctx context.Context) (Client, error)
	}
)

// Connect creates a new client builder.
func Connect() ClientBuilder {
	return &clientBuilder{
		cfg: DefaultConfig(),
	}
}

type clientBuilder struct {
	cfg      Config
	endpoint string
	payload  []byte
	tls      *tls.Config
	header   http.Header
	metrics  *metrics.Collector
}

func (p *clientBuilder) Config(c Config) ClientBuilder {
	p.cfg = c
	return p
}

func (p *clientBuilder) Reconnect(enable bool) ClientBuilder {
	p.cfg.Reconnect = enable
	return p
}

func (p *clientBuilder) Backoff(base, max time.Duration, jitter float64) ClientBuilder {
	p.cfg.BaseDelay = base
	p.cfg.MaxDelay = max
	p.cfg.Jitter = jitter
	return p
}

func (p *clientBuilder) MaxAttempts(n int) ClientBuilder {
	p.cfg.MaxAttempts = n
	return p
}

func (p *clientBuilder) HandshakeTimeout(timeout time.Duration) ClientBuilder {
	p.cfg.HandshakeTimeout = timeout
	return p
}

func (p *clientBuilder) CallTimeout(timeout time.Duration) ClientBuilder {
	p.cfg.CallTimeout = timeout
	return p
}

func (p *clientBuilder) Encoding(enc Encoding) ClientBuilder {
	p.cfg.Encoding = enc
	return p
}

func (p *clientBuilder) Strategy(s ConnectStrategy) ClientBuilder {
	p.cfg.Strategy = s
	return p
}

func (p *clientBuilder) Payload(payload []byte) ClientBuilder {
	p.payload = payload
	return p
}

func (p *clientBuilder) TLS(c *tls.Config) ClientBuilder {
	p.tls = c
	return p
}

func (p *clientBuilder) Header(h http.Header) ClientBuilder {
	p.header = h
	return p
}

func (p *clientBuilder) Metrics(c *metrics.Collector) ClientBuilder {
	p.metrics = c
	return p
}

func (p *clientBuilder) Transport(endpoint string) ClientStarter {
	p.endpoint = endpoint
	return p
}

func (p *clientBuilder) Start(ctx context.Context) (Client, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	u, err := transport.ParseURI(p.endpoint)
	if err != nil {
		return nil, err
	}
	factory, err := u.MakeSocketFactory(p.tls, p.header)
	if err != nil {
		return nil, err
	}
	dispatcher := socket.NewDispatcher(socket.DispatcherConfig{
		CallTimeout:   p.cfg.CallTimeout,
		SweepInterval: socket.DefaultSweepInterval,
	})
	mc := p.cfg.managerConfig(p.payload)
	if p.metrics != nil {
		mc.Connection.Observer = p.metrics
	}
	c := &client{
		cfg:        p.cfg,
		dispatcher: dispatcher,
		manager:    socket.NewManager(factory, dispatcher, mc),
		metrics:    p.metrics,
	}
	if p.metrics != nil {
		events, _ := c.manager.Subscribe()
		go c.loopMetrics(events)
	}
	if err := c.manager.Connect(ctx); err != nil {
		return nil, err
	}
	logger.Debugf("client connected to %s", u)
	return c, nil
}

type client struct {
	cfg        Config
	dispatcher *socket.Dispatcher
	manager    *socket.Manager
	metrics    *metrics.Collector
}

func (c *client) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	return c.CallTimeout(ctx, op, payload, 0)
}

func (c *client) CallTimeout(ctx context.Context, op string, payload []byte, timeout time.Duration) (resp []byte, err error) {
	ctx, span := startSpan(ctx, trace.SpanKindClient, op, attribute.Int("rpc.request.size", len(payload)))
	started := time.Now()
	defer func() {
		c.metrics.ObserveCall(op, started, err)
		if err == nil {
			span.SetAttributes(attribute.Int("rpc.response.size", len(resp)))
		}
		endSpan(span, err)
	}()
	resp, err = c.dispatcher.Call(ctx, op, payload, timeout)
	return
}

func (c *client) Notify(op string, payload []byte) error {
	return c.dispatcher.Notify(op, payload)
}

func (c *client) Subscribe(selector string, handler NotificationHandler) *Subscription {
	return c.dispatcher.Subscribe(selector, handler)
}

func (c *client) State() State {
	return c.manager.State()
}

func (c *client) States() (<-chan StateEvent, func()) {
	return c.manager.Subscribe()
}

func (c *client) WaitOpen(ctx context.Context) error {
	return c.manager.WaitOpen(ctx)
}

func (c *client) Reconnect() error {
	return c.manager.Reconnect()
}

func (c *client) Agreement() (v Version, enc Encoding, ok bool) {
	conn := c.manager.Connection()
	if conn == nil || conn.State() != core.StateOpen {
		return
	}
	agreed := conn.Agreement()
	return agreed.Version, agreed.Encoding, true
}

func (c *client) Disconnect(ctx context.Context) error {
	if err := c.manager.Disconnect(ctx); err != nil {
		return errors.Wrap(err, "disconnect failed")
	}
	return nil
}

func (c *client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), socket.DefaultCloseGrace+time.Second)
	defer cancel()
	return c.Disconnect(ctx)
}

func (c *client) loopMetrics(events <-chan StateEvent) {
	open := false
	for ev := range events {
		switch ev.State {
		case core.StateOpen:
			open = true
			c.metrics.ConnectionOpened()
		case core.StateReconnecting:
			c.metrics.Reconnecting()
		case core.StateClosed:
			if open {
				open = false
				c.metrics.ConnectionClosed()
			}
			if !ev.Final && (errors.Is(ev.Err, core.ErrHandshakeFailed) || errors.Is(ev.Err, core.ErrHandshakeTimeout)) {
				c.metrics.HandshakeFailed()
			}
		}
	}
}
