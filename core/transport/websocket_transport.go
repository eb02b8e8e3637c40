package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rsocket/rpc-go/logger"
)

const defaultWebsocketPath = "/"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebsocketServerTransport accepts hosted sockets over HTTP upgrades.
type WebsocketServerTransport struct {
	path       string
	acceptor   Acceptor
	onceClose  sync.Once
	listenerFn ListenerFactory
	router     chi.Router
	mu         sync.Mutex
	listener   net.Listener
	sockets    *xsync.MapOf[Socket, struct{}]
}

// Router returns the HTTP router serving the upgrade path.
// Extra routes, such as a metrics endpoint, can be mounted on it before Listen.
func (p *WebsocketServerTransport) Router() chi.Router {
	return p.router
}

func (p *WebsocketServerTransport) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

func (p *WebsocketServerTransport) Close() (err error) {
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

func (p *WebsocketServerTransport) Accept(acceptor Acceptor) {
	p.acceptor = acceptor
}

func (p *WebsocketServerTransport) Listen(ctx context.Context, notifier chan<- bool) (err error) {
	p.router.Get(p.path, func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Errorf("create websocket conn failed: %s", err.Error())
			return
		}
		sk := NewHostedSocket(NewAcceptedWebsocketSource(c))
		p.sockets.Store(sk, struct{}{})
		go p.acceptor(ctx, sk, func(s Socket) {
			p.sockets.Delete(s)
		})
	})

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

	stop := make(chan struct{})
	ctx, cancel := context.WithCancel(ctx)

	go func(ctx context.Context, stop chan struct{}) {
		defer func() {
			_ = p.Close()
			close(stop)
		}()
		<-ctx.Done()
	}(ctx, stop)

	err = http.Serve(l, p.router)
	if err == io.EOF || isClosedErr(err) {
		err = nil
	} else {
		err = errors.Wrap(err, "listen websocket server failed")
	}
	cancel()
	<-stop
	return
}

// NewWebsocketServerTransport returns a websocket server transport upgrading requests on path.
func NewWebsocketServerTransport(gen ListenerFactory, path string) *WebsocketServerTransport {
	if path == "" {
		path = defaultWebsocketPath
	}
	return &WebsocketServerTransport{
		path:       path,
		listenerFn: gen,
		router:     chi.NewRouter(),
		sockets:    xsync.NewMapOf[Socket, struct{}](),
	}
}

// NewWebsocketServerTransportWithAddr returns a websocket server transport listening on addr.
func NewWebsocketServerTransportWithAddr(addr string, path string, c *tls.Config) *WebsocketServerTransport {
	return NewWebsocketServerTransport(func(ctx context.Context) (net.Listener, error) {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if c != nil {
			l = tls.NewListener(l, c)
		}
		return l, nil
	}, path)
}
