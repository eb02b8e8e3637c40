// Package metrics exports Prometheus collectors for connections and message traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rsocket/rpc-go/core"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "rpc").
	Namespace string

	// Subsystem is the metrics subsystem, usually "client" or "server".
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for call duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "rpc",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector records connection lifecycle and traffic.
// A nil *Collector is valid and records nothing.
type Collector struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	handshakeFailures prometheus.Counter
	reconnectsTotal   prometheus.Counter
	messagesTotal     *prometheus.CounterVec
	bytesTotal        *prometheus.CounterVec
	callDuration      *prometheus.HistogramVec
}

// New registers the collectors. Registering twice on the same registry panics.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_total",
			Help:        "Total number of connections that completed the handshake",
			ConstLabels: config.ConstLabels,
		}),

		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_active",
			Help:        "Number of open connections",
			ConstLabels: config.ConstLabels,
		}),

		handshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handshake_failures_total",
			Help:        "Total number of failed handshakes",
			ConstLabels: config.ConstLabels,
		}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnects_total",
			Help:        "Total number of reconnect attempts",
			ConstLabels: config.ConstLabels,
		}),

		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_total",
			Help:        "Total number of messages by direction and kind",
			ConstLabels: config.ConstLabels,
		}, []string{"direction", "kind"}),

		bytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bytes_total",
			Help:        "Total number of encoded message bytes by direction",
			ConstLabels: config.ConstLabels,
		}, []string{"direction"}),

		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "call_duration_seconds",
			Help:        "Call duration in seconds by outcome",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"op", "outcome"}),
	}
}

// OnSend records an outbound message of size bytes.
func (c *Collector) OnSend(msg core.Message, size int) {
	c.observe("tx", msg, size)
}

// OnReceive records an inbound message of size bytes.
func (c *Collector) OnReceive(msg core.Message, size int) {
	c.observe("rx", msg, size)
}

func (c *Collector) observe(direction string, msg core.Message, size int) {
	if c == nil {
		return
	}
	c.messagesTotal.WithLabelValues(direction, msg.Kind.String()).Inc()
	c.bytesTotal.WithLabelValues(direction).Add(float64(size))
}

// ConnectionOpened records a connection entering Open.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed records an open connection reaching Closed.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

// HandshakeFailed records a failed handshake.
func (c *Collector) HandshakeFailed() {
	if c == nil {
		return
	}
	c.handshakeFailures.Inc()
}

// Reconnecting records a reconnect attempt.
func (c *Collector) Reconnecting() {
	if c == nil {
		return
	}
	c.reconnectsTotal.Inc()
}

// ObserveCall records the duration of a call and whether it failed.
func (c *Collector) ObserveCall(op string, started time.Time, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.callDuration.WithLabelValues(op, outcome).Observe(time.Since(started).Seconds())
}
