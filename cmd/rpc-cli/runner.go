package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rpc "github.com/rsocket/rpc-go"
	"github.com/rsocket/rpc-go/logger"
	"github.com/rsocket/rpc-go/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	opEcho  = "echo"
	opPrint = "print"

	metricsOnEndpoint = "ws"
	metricsPath       = "/metrics"
)

// MessageMarshaler logs an operation with its payload.
type MessageMarshaler struct {
	Op      string
	Payload []byte
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (m MessageMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("op", m.Op)
	enc.AddInt("size", len(m.Payload))
	enc.AddString("payload", string(m.Payload))
	return nil
}

// PeerMarshaler logs a connected peer.
type PeerMarshaler struct {
	rpc.Peer
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (p PeerMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", p.ID())
	enc.AddString("remote", p.RemoteAddr())
	enc.AddString("encoding", p.Encoding().String())
	return nil
}

func (args *argv) configureLogging() (err error) {
	if args.Debug {
		logger.SetLevel(logger.LevelDebug)
		args.Logger, err = zap.NewDevelopment()
	} else {
		logger.SetLevel(logger.LevelInfo)
		args.Logger, err = zap.NewProduction()
	}
	if err != nil {
		return
	}
	logger.SetLogger(args.Logger.Named("rpc").WithOptions(zap.AddCaller(), zap.AddCallerSkip(1)).Sugar())
	return
}

type runner struct {
	argv   *argv
	cfg    rpc.Config
	uri    string
	logger *zap.Logger
	out    io.Writer
}

func (r *runner) payloads() ([][]byte, error) {
	inputs, err := readInputs(r.argv.Input)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		inputs = [][]byte{nil}
	}
	out := make([][]byte, 0, len(inputs))
	for _, it := range inputs {
		b, err := encodePayload(r.argv.DataFormat, it)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *runner) runClient(ctx context.Context) (err error) {
	setup, err := readData(r.argv.Setup)
	if err != nil {
		return
	}
	payloads, err := r.payloads()
	if err != nil {
		return
	}
	r.logger.Debug("client config", zap.Stringer("config", r.cfg))

	c, err := rpc.Connect().
		Config(r.cfg).
		Payload(setup).
		Metrics(metrics.New(metrics.WithRegistry(prometheus.NewRegistry()))).
		Transport(r.uri).
		Start(ctx)
	if err != nil {
		return
	}
	defer func() {
		_ = c.Close()
	}()

	for _, selector := range r.argv.Subscribe {
		c.Subscribe(selector, func(op string, payload []byte) {
			r.logger.Debug("notification", zap.Object("message", MessageMarshaler{op, payload}))
			_, _ = fmt.Fprintf(r.out, "%s: %s\n", op, payload)
		})
	}

	if err = r.runOperations(ctx, c, payloads); err != nil {
		return
	}

	if wait := r.argv.Wait.Duration; wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
	return
}

func (r *runner) runOperations(ctx context.Context, c rpc.Client, payloads [][]byte) error {
	op := r.argv.Op
	for i := 0; i < r.argv.Ops; i++ {
		for _, payload := range payloads {
			if r.argv.Notify {
				if err := c.Notify(op, payload); err != nil {
					return errors.Wrapf(err, "notify %s failed", op)
				}
				r.logger.Debug("notify", zap.Object("message", MessageMarshaler{op, payload}))
				continue
			}
			resp, err := c.Call(ctx, op, payload)
			if err != nil {
				return errors.Wrapf(err, "call %s failed", op)
			}
			r.logger.Debug("response", zap.Object("message", MessageMarshaler{op, resp}))
			_, _ = fmt.Fprintf(r.out, "%s\n", resp)
		}
	}
	return nil
}

// newServer builds an echo server. Requests to the echo method and to the --op method are answered with their payload,
// and every notification to the print method is written out.
func (r *runner) newServer(registry *prometheus.Registry, onStart func()) (rpc.Server, error) {
	sb := rpc.Receive().
		Encodings(r.cfg.Encoding).
		Metrics(metrics.New(metrics.WithRegistry(registry))).
		OnConnect(func(peer rpc.Peer) {
			r.logger.Info("peer connected", zap.Object("peer", PeerMarshaler{peer}))
		}).
		OnDisconnect(func(peer rpc.Peer, err error) {
			r.logger.Info("peer disconnected", zap.Object("peer", PeerMarshaler{peer}), zap.Error(err))
		}).
		OnStart(onStart)
	if len(r.argv.Setup) > 0 {
		secret, err := readData(r.argv.Setup)
		if err != nil {
			return nil, err
		}
		sb = sb.OnHandshake(func(_ context.Context, p rpc.Proposal) error {
			if string(p.Payload) != string(secret) {
				return errors.New("unexpected handshake payload")
			}
			return nil
		})
	}
	if strings.EqualFold(r.argv.Metrics, metricsOnEndpoint) {
		sb = sb.Routes(func(router chi.Router) {
			router.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		})
	}

	s := sb.Transport(r.uri)
	echo := func(_ context.Context, peer rpc.Peer, payload []byte) ([]byte, error) {
		r.logger.Debug("request", zap.String("peer", peer.ID()), zap.Object("message", MessageMarshaler{opEcho, payload}))
		return payload, nil
	}
	if err := s.Method(opEcho, echo); err != nil {
		return nil, err
	}
	if r.argv.Op != "" && r.argv.Op != opEcho {
		if err := s.Method(r.argv.Op, echo); err != nil {
			return nil, err
		}
	}
	err := s.Notification(opPrint, func(_ context.Context, peer rpc.Peer, payload []byte) {
		r.logger.Debug("notification", zap.String("peer", peer.ID()), zap.Object("message", MessageMarshaler{opPrint, payload}))
		_, _ = fmt.Fprintf(r.out, "%s\n", payload)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *runner) runServer(ctx context.Context) error {
	registry := prometheus.NewRegistry()
	s, err := r.newServer(registry, func() {
		r.logger.Info("server started", zap.String("uri", r.uri))
	})
	if err != nil {
		return err
	}
	if addr := r.argv.Metrics; addr != "" && !strings.EqualFold(addr, metricsOnEndpoint) {
		stop := serveMetrics(addr, registry, r.logger)
		defer stop()
	}
	return s.Serve(ctx)
}

// serveMetrics exposes the registry over HTTP until stop is called.
func serveMetrics(addr string, registry *prometheus.Registry, log *zap.Logger) (stop func()) {
	router := chi.NewRouter()
	router.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
