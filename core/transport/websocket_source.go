package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/logger"
)

const closeWriteWait = time.Second

// WebsocketSource is an EventSource backed by gorilla/websocket.
// Binary frames travel as binary messages and text frames as text messages.
type WebsocketSource struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	reported bool

	onOpen    func()
	onMessage func(Frame)
	onError   func(error)
	onClose   func(code int, reason string)
}

func (p *WebsocketSource) OnOpen(fn func()) { p.onOpen = fn }

func (p *WebsocketSource) OnMessage(fn func(Frame)) { p.onMessage = fn }

func (p *WebsocketSource) OnError(fn func(error)) { p.onError = fn }

func (p *WebsocketSource) OnClose(fn func(int, string)) { p.onClose = fn }

// RemoteAddr returns the peer address.
func (p *WebsocketSource) RemoteAddr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return ""
	}
	return p.conn.RemoteAddr().String()
}

// Connect dials the server, or adopts the accepted connection, and starts the read loop.
func (p *WebsocketSource) Connect(ctx context.Context) {
	go p.run(ctx)
}

func (p *WebsocketSource) run(ctx context.Context) {
	p.mu.Lock()
	conn, closed := p.conn, p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	if conn == nil {
		c, _, err := p.dialer.DialContext(ctx, p.url, p.header)
		if err != nil {
			p.mu.Lock()
			reported := p.reported
			p.mu.Unlock()
			if !reported {
				p.onError(errors.Wrap(err, "dial websocket failed"))
			}
			p.finish(CloseAbnormal, err.Error())
			return
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = c.Close()
			p.finish(CloseNormal, "closed while dialing")
			return
		}
		p.conn = c
		p.mu.Unlock()
		conn = c
	}
	p.onOpen()
	for {
		t, data, err := conn.ReadMessage()
		if err != nil {
			p.handleReadError(err)
			return
		}
		switch t {
		case websocket.BinaryMessage:
			p.onMessage(Frame{Data: data})
		case websocket.TextMessage:
			p.onMessage(Frame{Data: data, Text: true})
		default:
			logger.Warnf("omit websocket message type %d", t)
		}
	}
}

func (p *WebsocketSource) handleReadError(err error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		p.finish(ce.Code, ce.Text)
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || isClosedErr(err) {
		p.finish(CloseNormal, "closed")
		return
	}
	p.onError(errors.Wrap(err, "read websocket message failed"))
	p.finish(CloseAbnormal, err.Error())
}

func (p *WebsocketSource) finish(code int, reason string) {
	p.mu.Lock()
	p.closed = true
	if p.conn != nil {
		_ = p.conn.Close()
	}
	reported := p.reported
	p.reported = true
	p.mu.Unlock()
	if !reported {
		p.onClose(code, reason)
	}
}

// Send writes one websocket message.
func (p *WebsocketSource) Send(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.closed {
		return core.ErrNotOpen
	}
	t := websocket.BinaryMessage
	if frame.Text {
		t = websocket.TextMessage
	}
	return p.conn.WriteMessage(t, frame.Data)
}

// Close sends a close message and releases the connection.
func (p *WebsocketSource) Close(code int, reason string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		// Not connected yet: report the close here, a pending dial gives up silently.
		p.finish(code, reason)
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	return conn.Close()
}

// NewWebsocketSource returns a source dialing url when connected.
func NewWebsocketSource(url string, tc *tls.Config, header http.Header) *WebsocketSource {
	d := websocket.DefaultDialer
	if tc != nil {
		d = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			TLSClientConfig:  tc,
		}
	}
	return &WebsocketSource{
		url:    url,
		header: header,
		dialer: d,
	}
}

// NewAcceptedWebsocketSource wraps a connection upgraded by a server.
func NewAcceptedWebsocketSource(conn *websocket.Conn) *WebsocketSource {
	return &WebsocketSource{
		conn: conn,
	}
}

// WebsocketClient returns a factory of hosted sockets dialing url.
func WebsocketClient(url string, tc *tls.Config, header http.Header) SocketFactory {
	return func() Socket {
		return NewHostedSocket(NewWebsocketSource(url, tc, header))
	}
}
