package rpc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/internal/socket"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("rpc: invalid config")

// Config holds the connection settings of a client.
type Config struct {
	// Reconnect enables reconnecting after the transport is lost.
	Reconnect bool
	// BaseDelay is the first reconnect delay. It doubles on each attempt.
	BaseDelay time.Duration
	// MaxDelay caps the reconnect delay.
	MaxDelay time.Duration
	// MaxAttempts limits consecutive reconnect attempts. Zero means unlimited.
	MaxAttempts int
	// Jitter spreads every reconnect delay by up to ±Jitter of its value.
	Jitter float64
	// HandshakeTimeout bounds opening the socket plus the handshake.
	HandshakeTimeout time.Duration
	// CallTimeout applies to calls issued without their own timeout.
	CallTimeout time.Duration
	// Encoding is proposed first. The other supported encodings follow as fallbacks.
	Encoding Encoding
	// Strategy decides whether the first connect retries.
	Strategy ConnectStrategy
}

// DefaultConfig returns the default client settings.
func DefaultConfig() Config {
	return Config{
		Reconnect:        true,
		BaseDelay:        socket.DefaultBaseDelay,
		MaxDelay:         socket.DefaultMaxDelay,
		HandshakeTimeout: socket.DefaultHandshakeTimeout,
		CallTimeout:      socket.DefaultCallTimeout,
		Encoding:         core.EncodingBinary,
		Strategy:         socket.StrategyFallback,
	}
}

// Validate returns an error wrapping ErrInvalidConfig if a setting is out of range.
func (c Config) Validate() error {
	switch {
	case c.BaseDelay <= 0:
		return errors.Wrapf(ErrInvalidConfig, "base delay must be positive, got %s", c.BaseDelay)
	case c.MaxDelay < c.BaseDelay:
		return errors.Wrapf(ErrInvalidConfig, "max delay %s is less than base delay %s", c.MaxDelay, c.BaseDelay)
	case c.MaxAttempts < 0:
		return errors.Wrapf(ErrInvalidConfig, "max attempts must not be negative, got %d", c.MaxAttempts)
	case c.Jitter < 0 || c.Jitter > 1:
		return errors.Wrapf(ErrInvalidConfig, "jitter must be within [0,1], got %v", c.Jitter)
	case c.HandshakeTimeout <= 0:
		return errors.Wrapf(ErrInvalidConfig, "handshake timeout must be positive, got %s", c.HandshakeTimeout)
	case c.CallTimeout < 0:
		return errors.Wrapf(ErrInvalidConfig, "call timeout must not be negative, got %s", c.CallTimeout)
	}
	if c.Encoding != core.EncodingBinary && c.Encoding != core.EncodingText {
		return errors.Wrapf(ErrInvalidConfig, "invalid encoding %d", c.Encoding)
	}
	return nil
}

// encodings returns the proposal order: the preferred encoding first.
func (c Config) encodings() []core.Encoding {
	encodings := []core.Encoding{c.Encoding}
	for _, it := range core.SupportedEncodings {
		if it != c.Encoding {
			encodings = append(encodings, it)
		}
	}
	return encodings
}

func (c Config) managerConfig(payload []byte) socket.ManagerConfig {
	return socket.ManagerConfig{
		Reconnect: c.Reconnect,
		Backoff: socket.Backoff{
			Base:   c.BaseDelay,
			Max:    c.MaxDelay,
			Jitter: c.Jitter,
		},
		MaxAttempts: c.MaxAttempts,
		Strategy:    c.Strategy,
		Connection: socket.ConnectionConfig{
			HandshakeTimeout: c.HandshakeTimeout,
			Encodings:        c.encodings(),
			Payload:          payload,
		},
	}
}

func (c Config) String() string {
	var sb strings.Builder
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-18s: %s\n", name, value))
	}
	attempts := "unlimited"
	if c.MaxAttempts > 0 {
		attempts = strconv.Itoa(c.MaxAttempts)
	}
	sb.WriteString("CLIENT CONFIGURATION\n")
	addField("Reconnect", strconv.FormatBool(c.Reconnect))
	addField("Base Delay", c.BaseDelay.String())
	addField("Max Delay", c.MaxDelay.String())
	addField("Max Attempts", attempts)
	addField("Jitter", strconv.FormatFloat(c.Jitter, 'f', -1, 64))
	addField("Handshake Timeout", c.HandshakeTimeout.String())
	addField("Call Timeout", c.CallTimeout.String())
	addField("Encoding", c.Encoding.String())
	addField("Strategy", c.Strategy.String())
	return sb.String()
}
