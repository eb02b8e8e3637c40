package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

type tcpServerTransport struct {
	listenerFn ListenerFactory
	acceptor   Acceptor
	mu         sync.Mutex
	listener   net.Listener
	onceClose  sync.Once
	sockets    *xsync.MapOf[Socket, struct{}]
}

func (p *tcpServerTransport) Accept(acceptor Acceptor) {
	p.acceptor = acceptor
}

func (p *tcpServerTransport) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

func (p *tcpServerTransport) Close() (err error) {
	p.onceClose.Do(func() {
		p.mu.Lock()
		l := p.listener
		p.mu.Unlock()
		if l != nil {
			err = l.Close()
		}
		p.sockets.Range(func(key Socket, _ struct{}) bool {
			_ = key.Close()
			return true
		})
	})
	return
}

func (p *tcpServerTransport) Listen(ctx context.Context, notifier chan<- bool) (err error) {
	l, err := p.listenerFn(ctx)
	if err != nil {
		err = errors.Wrap(err, "server listen failed")
		notifier <- false
		return
	}
	p.mu.Lock()
	p.listener = l
	p.mu.Unlock()
	notifier <- true
	return p.listen(ctx)
}

func (p *tcpServerTransport) listen(ctx context.Context) (err error) {
	done := make(chan struct{})

	defer func() {
		close(done)
		_ = p.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = p.Close()
		case <-done:
		}
	}()

	// Start loop of accepting connections.
	var c net.Conn
	for {
		c, err = p.listener.Accept()
		if err == io.EOF || isClosedErr(err) {
			err = nil
			break
		}
		if err != nil {
			err = errors.Wrap(err, "accept next conn failed")
			break
		}
		// Dispatch raw conn.
		sk := NewStreamSocket(c)
		p.sockets.Store(sk, struct{}{})
		go p.acceptor(ctx, sk, func(s Socket) {
			p.sockets.Delete(s)
		})
	}
	return
}

// NewTCPServerTransport returns a server transport accepting stream sockets from gen.
func NewTCPServerTransport(gen ListenerFactory) ServerTransport {
	return &tcpServerTransport{
		listenerFn: gen,
		sockets:    xsync.NewMapOf[Socket, struct{}](),
	}
}

// NewTCPServerTransportWithAddr returns a server transport listening on network/addr.
func NewTCPServerTransportWithAddr(network, addr string, c *tls.Config) ServerTransport {
	return NewTCPServerTransport(func(ctx context.Context) (net.Listener, error) {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if c != nil {
			l = tls.NewListener(l, c)
		}
		return l, nil
	})
}
