package transport

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const (
	schemaUNIX            = "unix"
	schemaTCP             = "tcp"
	schemaWebsocket       = "ws"
	schemaWebsocketSecure = "wss"
)

// ErrUnsupportedScheme is returned for an endpoint whose scheme has no transport.
var ErrUnsupportedScheme = errors.New("rpc: unsupported transport scheme")

// URI represents the endpoint of a transport, such as tcp://127.0.0.1:7878 or ws://127.0.0.1:8080/rpc.
type URI url.URL

var tlsInsecure = &tls.Config{
	InsecureSkipVerify: true,
}

// IsHosted returns true if the endpoint is served by a hosted event-driven socket.
func (p *URI) IsHosted() bool {
	switch strings.ToLower(p.Scheme) {
	case schemaWebsocket, schemaWebsocketSecure:
		return true
	default:
		return false
	}
}

// MakeSocketFactory returns a factory creating a fresh client socket for every attempt.
// Header is only used by websocket endpoints.
func (p *URI) MakeSocketFactory(tc *tls.Config, header http.Header) (SocketFactory, error) {
	switch strings.ToLower(p.Scheme) {
	case schemaTCP:
		host := p.Host
		return func() Socket {
			return NewStreamDialSocket(schemaTCP, host, tc)
		}, nil
	case schemaUNIX:
		path := p.Path
		return func() Socket {
			return NewStreamDialSocket(schemaUNIX, path, tc)
		}, nil
	case schemaWebsocket:
		target := p.String()
		if tc != nil {
			clone := (url.URL)(*p)
			clone.Scheme = schemaWebsocketSecure
			target = clone.String()
		}
		return func() Socket {
			return NewHostedSocket(NewWebsocketSource(target, tc, header))
		}, nil
	case schemaWebsocketSecure:
		if tc == nil {
			tc = tlsInsecure
		}
		target := p.String()
		return func() Socket {
			return NewHostedSocket(NewWebsocketSource(target, tc, header))
		}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedScheme, "client endpoint %s", p)
	}
}

// MakeServerTransport creates a new server-side transport.
func (p *URI) MakeServerTransport(c *tls.Config) (tp ServerTransport, err error) {
	switch strings.ToLower(p.Scheme) {
	case schemaTCP:
		tp = NewTCPServerTransportWithAddr(schemaTCP, p.Host, c)
	case schemaWebsocket:
		tp = NewWebsocketServerTransportWithAddr(p.Host, p.Path, c)
	case schemaWebsocketSecure:
		if c == nil {
			err = errors.Errorf("missing TLS config for scheme %s", schemaWebsocketSecure)
			return
		}
		tp = NewWebsocketServerTransportWithAddr(p.Host, p.Path, c)
	case schemaUNIX:
		tp = NewTCPServerTransportWithAddr(schemaUNIX, p.Path, c)
	default:
		err = errors.Wrapf(ErrUnsupportedScheme, "server endpoint %s", p)
	}
	return
}

func (p *URI) String() string {
	return (*url.URL)(p).String()
}

// ParseURI parses an endpoint string.
func ParseURI(rawurl string) (*URI, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, errors.Wrapf(err, "parse url failed: %s", rawurl)
	}
	if u.Scheme == "" {
		return nil, errors.Wrapf(ErrUnsupportedScheme, "missing scheme: %s", rawurl)
	}
	return (*URI)(u), nil
}
