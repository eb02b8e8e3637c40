package core

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Error defines.
var (
	ErrNotOpen            = errors.New("rpc: connection is not open")
	ErrMalformedFrame     = errors.New("rpc: malformed frame")
	ErrTimeout            = errors.New("rpc: call timed out")
	ErrHandshakeFailed    = errors.New("rpc: handshake failed")
	ErrHandshakeTimeout   = errors.New("rpc: handshake timed out")
	ErrConnectionClosed   = errors.New("rpc: connection closed")
	ErrConnectionDropped  = errors.New("rpc: connection dropped")
	ErrConnectionClosing  = errors.New("rpc: connection is closing")
	ErrTransport          = errors.New("rpc: transport error")
	ErrUnsupportedMessage = errors.New("rpc: message cannot be sent by this role")
	ErrInvalidPayload     = errors.New("rpc: invalid payload")
	ErrHandlerNil         = errors.New("rpc: handler cannot be nil")
	ErrHandlerExist       = errors.New("rpc: handler exists already")
	ErrMethodNotFound     = errors.New("rpc: method not found")
	ErrPeerNotFound       = errors.New("rpc: peer not found")
)

// Standard error codes carried by ErrorDescriptor.
const (
	CodeMethodNotFound int64 = -32601
	CodeInternal       int64 = -32603
	CodeApplication    int64 = -32000
)

// ErrorDescriptor is the structured payload of a failed response.
type ErrorDescriptor struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (d ErrorDescriptor) Error() string {
	return fmt.Sprintf("code:%d message:%q", d.Code, d.Message)
}

// Bytes returns the JSON form of the descriptor, usable with both encodings.
func (d ErrorDescriptor) Bytes() []byte {
	b, _ := json.Marshal(d)
	return b
}

// ParseErrorDescriptor decodes an error payload produced by ErrorDescriptor.Bytes.
func ParseErrorDescriptor(payload []byte) (d ErrorDescriptor, ok bool) {
	if len(payload) == 0 {
		return
	}
	if err := json.Unmarshal(payload, &d); err != nil {
		return
	}
	ok = d.Message != "" || d.Code != 0
	return
}

// RemoteError is returned to a caller whose request was answered with an error response.
type RemoteError struct {
	Op      string
	Payload []byte
	// Descriptor is set when the payload parses as an ErrorDescriptor.
	Descriptor *ErrorDescriptor
}

func (e *RemoteError) Error() string {
	if e.Descriptor != nil {
		return fmt.Sprintf("rpc: remote error on %q: %s", e.Op, e.Descriptor.Message)
	}
	return fmt.Sprintf("rpc: remote error on %q: %d bytes", e.Op, len(e.Payload))
}

// NewRemoteError wraps an error payload returned for op.
func NewRemoteError(op string, payload []byte) *RemoteError {
	e := &RemoteError{
		Op:      op,
		Payload: payload,
	}
	if d, ok := ParseErrorDescriptor(payload); ok {
		e.Descriptor = &d
	}
	return e
}

// IsTerminal returns true if err must close a connection without reconnecting.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrHandshakeFailed) ||
		errors.Is(err, ErrHandshakeTimeout) ||
		errors.Is(err, ErrMalformedFrame) ||
		errors.Is(err, ErrConnectionClosed)
}
