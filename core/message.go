package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Message is the encoding-independent unit exchanged by two endpoints.
//
// A Request always carries a correlation id. A fire-and-forget call is sent as a
// Notification, which never carries an id. Op is optional only on a Response,
// where an empty value means the selector was not echoed.
type Message struct {
	Kind    MessageKind
	ID      uint64
	Op      string
	Outcome Outcome
	Payload []byte
}

// NewRequest returns a request message.
func NewRequest(id uint64, op string, payload []byte) Message {
	return Message{
		Kind:    KindRequest,
		ID:      id,
		Op:      op,
		Payload: payload,
	}
}

// NewNotification returns a notification message.
func NewNotification(op string, payload []byte) Message {
	return Message{
		Kind:    KindNotification,
		Op:      op,
		Payload: payload,
	}
}

// NewSuccess returns a successful response for request id.
func NewSuccess(id uint64, op string, payload []byte) Message {
	return Message{
		Kind:    KindResponse,
		ID:      id,
		Op:      op,
		Outcome: Success,
		Payload: payload,
	}
}

// NewFailure returns an error response for request id.
func NewFailure(id uint64, op string, payload []byte) Message {
	return Message{
		Kind:    KindResponse,
		ID:      id,
		Op:      op,
		Outcome: Failure,
		Payload: payload,
	}
}

// Validate returns an error wrapping ErrMalformedFrame if the message shape is invalid.
func (m Message) Validate() error {
	switch m.Kind {
	case KindRequest, KindNotification:
		if m.Op == "" {
			return errors.Wrapf(ErrMalformedFrame, "%s without selector", m.Kind)
		}
		if m.Kind == KindNotification && m.ID != 0 {
			return errors.Wrap(ErrMalformedFrame, "notification with correlation id")
		}
	case KindResponse:
		if m.Outcome != Success && m.Outcome != Failure {
			return errors.Wrapf(ErrMalformedFrame, "invalid outcome %d", m.Outcome)
		}
	default:
		return errors.Wrapf(ErrMalformedFrame, "invalid message kind %d", m.Kind)
	}
	return nil
}

func (m Message) String() string {
	switch m.Kind {
	case KindRequest:
		return fmt.Sprintf("Request{id=%d,op=%s,payload=%d bytes}", m.ID, m.Op, len(m.Payload))
	case KindResponse:
		return fmt.Sprintf("Response{id=%d,op=%s,outcome=%s,payload=%d bytes}", m.ID, m.Op, m.Outcome, len(m.Payload))
	case KindNotification:
		return fmt.Sprintf("Notification{op=%s,payload=%d bytes}", m.Op, len(m.Payload))
	default:
		return "Message{UNKNOWN}"
	}
}
