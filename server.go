package rpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/core/transport"
	"github.com/rsocket/rpc-go/internal/scheduler"
	"github.com/rsocket/rpc-go/internal/session"
	"github.com/rsocket/rpc-go/internal/socket"
	"github.com/rsocket/rpc-go/logger"
	"github.com/rsocket/rpc-go/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
)

const serverWorkerPoolSize = 10000

type (
	// MethodFunc serves a request. A returned ErrorDescriptor is sent as is,
	// any other error is sent with CodeApplication.
	MethodFunc = func(ctx context.Context, peer Peer, payload []byte) ([]byte, error)
	// NotificationFunc serves a notification.
	NotificationFunc = func(ctx context.Context, peer Peer, payload []byte)

	// Peer is the server side view of a connected client.
	Peer interface {
		// ID returns the unique id of the connection.
		ID() string
		// Encoding returns the encoding agreed in the handshake.
		Encoding() Encoding
		// RemoteAddr returns the client address.
		RemoteAddr() string
		// Notify sends a notification to the client.
		Notify(op string, payload []byte) error
		// Close closes the connection gracefully.
		Close(ctx context.Context) error
	}

	// Server serves the methods and notifications registered on it.
	Server interface {
		// Method registers the handler of requests for op.
		Method(op string, fn MethodFunc) error
		// Notification registers the handler of notifications for op.
		Notification(op string, fn NotificationFunc) error
		// Serve listens and serves until ctx is done, Close is called or the listener fails.
		Serve(ctx context.Context) error
		// Addr returns the bound address, or nil before listening.
		Addr() net.Addr
		// Peers returns the connected clients.
		Peers() []Peer
		// Broadcast notifies every connected client and returns how many were reached.
		Broadcast(op string, payload []byte) int
		// NotifyPeer notifies the client with id.
		NotifyPeer(id string, op string, payload []byte) error
		// Close stops serving.
		Close() error
	}

	// ServerBuilder can be used to build a server.
	ServerBuilder interface {
		ServerTransportBuilder
		// HandshakeTimeout bounds the handshake of accepted connections.
		HandshakeTimeout(timeout time.Duration) ServerBuilder
		// CloseGrace bounds how long a closing connection waits for pending work.
		CloseGrace(grace time.Duration) ServerBuilder
		// Encodings sets the accepted encodings. Proposals are matched in client order.
		Encodings(encodings ...Encoding) ServerBuilder
		// WorkerPool sets the number of handlers running at once.
		WorkerPool(size int) ServerBuilder
		// TLS sets the TLS config of the listener.
		TLS(c *tls.Config) ServerBuilder
		// Metrics records connections and traffic of the server.
		Metrics(c *metrics.Collector) ServerBuilder
		// Routes registers extra HTTP routes on a websocket endpoint.
		Routes(fn func(r chi.Router)) ServerBuilder
		// OnHandshake may reject a handshake proposal.
		OnHandshake(acceptor HandshakeAcceptor) ServerBuilder
		// OnConnect is called once a client completed its handshake.
		OnConnect(fn func(peer Peer)) ServerBuilder
		// OnDisconnect is called once a connected client is gone.
		OnDisconnect(fn func(peer Peer, err error)) ServerBuilder
		// OnStart is called once the server is listening.
		OnStart(fn func()) ServerBuilder
	}

	// ServerTransportBuilder is used to build a server with an endpoint.
	ServerTransportBuilder interface {
		// Transport sets the listening endpoint, such as tcp://127.0.0.1:7878.
		Transport(endpoint string) Server
	}
)

// Receive creates a new server builder.
func Receive() ServerBuilder {
	return &server{
		handshakeTimeout: socket.DefaultHandshakeTimeout,
		closeGrace:       socket.DefaultCloseGrace,
		encodings:        core.SupportedEncodings,
		poolSize:         serverWorkerPoolSize,
		methods:          xsync.NewMapOf[string, MethodFunc](),
		notifications:    xsync.NewMapOf[string, NotificationFunc](),
		registry:         session.NewRegistry(),
		serving:          atomic.NewBool(false),
	}
}

type server struct {
	endpoint         string
	handshakeTimeout time.Duration
	closeGrace       time.Duration
	encodings        []core.Encoding
	poolSize         int
	tls              *tls.Config
	metrics          *metrics.Collector
	routes           func(r chi.Router)
	acceptor         HandshakeAcceptor
	onConnect        func(peer Peer)
	onDisconnect     func(peer Peer, err error)
	onStart          func()

	methods       *xsync.MapOf[string, MethodFunc]
	notifications *xsync.MapOf[string, NotificationFunc]
	registry      *session.Registry
	scheduler     scheduler.Scheduler
	serving       *atomic.Bool

	mu     sync.Mutex
	tp     transport.ServerTransport
	cancel context.CancelFunc
}

func (s *server) HandshakeTimeout(timeout time.Duration) ServerBuilder {
	s.handshakeTimeout = timeout
	return s
}

func (s *server) CloseGrace(grace time.Duration) ServerBuilder {
	s.closeGrace = grace
	return s
}

func (s *server) Encodings(encodings ...Encoding) ServerBuilder {
	s.encodings = encodings
	return s
}

func (s *server) WorkerPool(size int) ServerBuilder {
	s.poolSize = size
	return s
}

func (s *server) TLS(c *tls.Config) ServerBuilder {
	s.tls = c
	return s
}

func (s *server) Metrics(c *metrics.Collector) ServerBuilder {
	s.metrics = c
	return s
}

func (s *server) Routes(fn func(r chi.Router)) ServerBuilder {
	s.routes = fn
	return s
}

func (s *server) OnHandshake(acceptor HandshakeAcceptor) ServerBuilder {
	s.acceptor = acceptor
	return s
}

func (s *server) OnConnect(fn func(peer Peer)) ServerBuilder {
	s.onConnect = fn
	return s
}

func (s *server) OnDisconnect(fn func(peer Peer, err error)) ServerBuilder {
	s.onDisconnect = fn
	return s
}

func (s *server) OnStart(fn func()) ServerBuilder {
	s.onStart = fn
	return s
}

func (s *server) Transport(endpoint string) Server {
	s.endpoint = endpoint
	return s
}

func (s *server) Method(op string, fn MethodFunc) error {
	if fn == nil {
		return errors.Wrapf(core.ErrHandlerNil, "method %s", op)
	}
	if _, loaded := s.methods.LoadOrStore(op, fn); loaded {
		return errors.Wrapf(core.ErrHandlerExist, "method %s", op)
	}
	return nil
}

func (s *server) Notification(op string, fn NotificationFunc) error {
	if fn == nil {
		return errors.Wrapf(core.ErrHandlerNil, "notification %s", op)
	}
	if _, loaded := s.notifications.LoadOrStore(op, fn); loaded {
		return errors.Wrapf(core.ErrHandlerExist, "notification %s", op)
	}
	return nil
}

func (s *server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tp == nil {
		return nil
	}
	return s.tp.Addr()
}

func (s *server) Peers() []Peer {
	peers := make([]Peer, 0, s.registry.Len())
	s.registry.Range(func(it *session.Session) bool {
		peers = append(peers, it)
		return true
	})
	return peers
}

func (s *server) Broadcast(op string, payload []byte) int {
	return s.registry.Broadcast(op, payload)
}

func (s *server) NotifyPeer(id string, op string, payload []byte) error {
	return s.registry.Notify(id, op, payload)
}

func (s *server) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *server) Serve(ctx context.Context) error {
	if !s.serving.CompareAndSwap(false, true) {
		return errors.New("server is serving already")
	}
	u, err := transport.ParseURI(s.endpoint)
	if err != nil {
		return err
	}
	tp, err := u.MakeServerTransport(s.tls)
	if err != nil {
		return err
	}
	if ws, ok := tp.(*transport.WebsocketServerTransport); ok && s.routes != nil {
		s.routes(ws.Router())
	}
	sc, err := scheduler.NewElastic(s.poolSize)
	if err != nil {
		return err
	}
	s.scheduler = sc
	defer func() {
		_ = sc.Close()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.tp = tp
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		_ = tp.Close()
	}()

	tp.Accept(s.accept)

	notifier := make(chan bool, 1)
	go func() {
		if ok := <-notifier; ok {
			logger.Infof("server is listening on %s", tp.Addr())
			if s.onStart != nil {
				s.onStart()
			}
		}
	}()
	// The transport drops every socket once its listen context ends, so sessions drain first.
	listenCtx, stopListen := context.WithCancel(context.Background())
	defer stopListen()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		closeCtx, cancelClose := context.WithTimeout(context.Background(), s.closeGrace)
		defer cancelClose()
		s.registry.CloseAll(closeCtx)
		stopListen()
	}()
	err = tp.Listen(listenCtx, notifier)
	cancel()
	<-drained
	return err
}

func (s *server) accept(ctx context.Context, sk transport.Socket, onClose func(transport.Socket)) {
	defer onClose(sk)

	// sess is assigned before the connection starts routing.
	var sess *session.Session
	dispatcher := socket.NewDispatcher(socket.DispatcherConfig{
		Handler: socket.RequestHandlerFunc(func(ctx context.Context, req core.Message, reply func(core.Message)) {
			s.serveRequest(ctx, sess, req, reply)
		}),
	})
	defer dispatcher.Shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	dispatcher.Subscribe(socket.Wildcard, func(op string, payload []byte) {
		s.serveNotification(ctx, sess, op, payload)
	})

	cfg := socket.ConnectionConfig{
		Role:             core.RoleServer,
		HandshakeTimeout: s.handshakeTimeout,
		CloseGrace:       s.closeGrace,
		Encodings:        s.encodings,
		Acceptor:         s.acceptor,
	}
	if s.metrics != nil {
		cfg.Observer = s.metrics
	}
	conn := socket.NewConnection(sk, dispatcher, cfg)
	sess = session.NewSession(conn)
	dispatcher.Bind(conn)

	if err := conn.Start(ctx); err != nil {
		if errors.Is(err, core.ErrHandshakeFailed) || errors.Is(err, core.ErrHandshakeTimeout) {
			s.metrics.HandshakeFailed()
		}
		logger.Warnf("handshake with %s failed: %s", sk.RemoteAddr(), err)
		<-conn.Done()
		return
	}

	s.registry.Add(sess)
	s.metrics.ConnectionOpened()
	if logger.IsDebugEnabled() {
		logger.Debugf("peer connected: %s", sess)
	}
	if s.onConnect != nil {
		s.onConnect(sess)
	}

	<-conn.Done()

	s.registry.Remove(sess.ID())
	s.metrics.ConnectionClosed()
	if logger.IsDebugEnabled() {
		logger.Debugf("peer disconnected: %s, cause: %v", sess, conn.Err())
	}
	if s.onDisconnect != nil {
		s.onDisconnect(sess, conn.Err())
	}
}

func (s *server) serveRequest(ctx context.Context, peer Peer, req core.Message, reply func(core.Message)) {
	fn, ok := s.methods.Load(req.Op)
	if !ok {
		reply(core.NewFailure(req.ID, req.Op, core.ErrorDescriptor{
			Code:    core.CodeMethodNotFound,
			Message: "method not found",
		}.Bytes()))
		return
	}
	err := s.scheduler.Do(ctx, func(ctx context.Context) {
		ctx, span := startSpan(ctx, trace.SpanKindServer, req.Op,
			attribute.String("rpc.peer", peer.ID()),
			attribute.Int("rpc.request.size", len(req.Payload)))
		resp, err := invokeMethod(ctx, fn, peer, req.Payload)
		endSpan(span, err)
		if err != nil {
			reply(core.NewFailure(req.ID, req.Op, toErrorDescriptor(err).Bytes()))
			return
		}
		reply(core.NewSuccess(req.ID, req.Op, resp))
	})
	if err != nil {
		logger.Warnf("schedule request %d failed: %s", req.ID, err)
		reply(core.NewFailure(req.ID, req.Op, core.ErrorDescriptor{
			Code:    core.CodeInternal,
			Message: "server busy",
		}.Bytes()))
	}
}

func (s *server) serveNotification(ctx context.Context, peer Peer, op string, payload []byte) {
	fn, ok := s.notifications.Load(op)
	if !ok {
		if logger.IsDebugEnabled() {
			logger.Debugf("drop notification %s from %s: no handler", op, peer.ID())
		}
		return
	}
	err := s.scheduler.Do(ctx, func(ctx context.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorf("handle notification %s panic: %v", op, rec)
			}
		}()
		fn(ctx, peer, payload)
	})
	if err != nil {
		logger.Warnf("schedule notification %s failed: %s", op, err)
	}
}

func invokeMethod(ctx context.Context, fn MethodFunc, peer Peer, payload []byte) (resp []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("handle request panic: %v", rec)
			err = core.ErrorDescriptor{
				Code:    core.CodeInternal,
				Message: fmt.Sprintf("internal error: %v", rec),
			}
		}
	}()
	resp, err = fn(ctx, peer, payload)
	return
}

func toErrorDescriptor(err error) core.ErrorDescriptor {
	var d core.ErrorDescriptor
	if errors.As(err, &d) {
		return d
	}
	var p *core.ErrorDescriptor
	if errors.As(err, &p) && p != nil {
		return *p
	}
	return core.ErrorDescriptor{
		Code:    core.CodeApplication,
		Message: err.Error(),
	}
}
