package framing

import (
	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
)

// Codec converts messages to and from wire frames of one encoding profile.
//
// A codec is bound to the local role: a client codec encodes requests and
// notifications in the request layout and decodes the response layout, a server
// codec does the opposite. Decoded payloads may alias the input frame.
type Codec interface {
	// Encoding returns the profile implemented by the codec.
	Encoding() core.Encoding
	// Encode serializes msg into a new frame.
	Encode(msg core.Message) ([]byte, error)
	// Decode parses a frame sent by the remote role.
	// Every failure wraps core.ErrMalformedFrame.
	Decode(frame []byte) (core.Message, error)
}

// New returns the codec of encoding for the local role.
func New(enc core.Encoding, role core.Role) (Codec, error) {
	switch enc {
	case core.EncodingBinary:
		return binaryCodec{role: role}, nil
	case core.EncodingText:
		return textCodec{role: role}, nil
	default:
		return nil, errors.Errorf("unsupported encoding %d", enc)
	}
}

// MustNew returns the codec of encoding for the local role and panics on unknown encodings.
func MustNew(enc core.Encoding, role core.Role) Codec {
	c, err := New(enc, role)
	if err != nil {
		panic(err)
	}
	return c
}

func checkOutbound(role core.Role, msg core.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	switch {
	case role == core.RoleClient && msg.Kind == core.KindResponse:
		return errors.Wrap(core.ErrUnsupportedMessage, "client cannot send a response")
	case role == core.RoleServer && msg.Kind == core.KindRequest:
		return errors.Wrap(core.ErrUnsupportedMessage, "server cannot send a request")
	}
	return nil
}

func malformed(format string, args ...interface{}) error {
	return errors.Wrapf(core.ErrMalformedFrame, format, args...)
}
