package session

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
)

// Conn is the part of a server connection a session needs.
type Conn interface {
	ID() string
	Encoding() core.Encoding
	RemoteAddr() string
	Send(msg core.Message) error
	Close(ctx context.Context) error
	Done() <-chan struct{}
}

// Session represents the lifecycle of one accepted connection after its handshake.
type Session struct {
	conn    Conn
	created time.Time
}

// ID returns the id of the underlying connection.
func (p *Session) ID() string {
	return p.conn.ID()
}

// Encoding returns the encoding agreed in the handshake.
func (p *Session) Encoding() core.Encoding {
	return p.conn.Encoding()
}

// RemoteAddr returns the peer address.
func (p *Session) RemoteAddr() string {
	return p.conn.RemoteAddr()
}

// Created returns when the session was registered.
func (p *Session) Created() time.Time {
	return p.created
}

// Done is closed once the connection of the session is closed.
func (p *Session) Done() <-chan struct{} {
	return p.conn.Done()
}

// Notify sends a notification to the peer.
func (p *Session) Notify(op string, payload []byte) error {
	if err := p.conn.Send(core.NewNotification(op, payload)); err != nil {
		return errors.Wrapf(err, "notify session %s failed", p.ID())
	}
	return nil
}

// Close closes the session gracefully.
func (p *Session) Close(ctx context.Context) error {
	return p.conn.Close(ctx)
}

func (p *Session) String() string {
	return fmt.Sprintf("Session{id=%s,remote=%s,encoding=%s}", p.ID(), p.RemoteAddr(), p.Encoding())
}

// NewSession returns a new session.
func NewSession(conn Conn) *Session {
	return &Session{
		conn:    conn,
		created: time.Now(),
	}
}
