package framing

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/valyala/bytebufferpool"
)

var jsonNull = []byte("null")

// clientEnvelope is the object sent from client to server.
type clientEnvelope struct {
	ID     *uint64         `json:"id,omitempty"`
	Method *string         `json:"method"`
	Params json.RawMessage `json:"params"`
}

// serverEnvelope is the object sent from server to client.
type serverEnvelope struct {
	ID     *uint64         `json:"id,omitempty"`
	Method *string         `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// textCodec implements the JSON-RPC-like profile. Payloads are raw JSON values;
// an empty payload travels as null.
type textCodec struct {
	role core.Role
}

func (textCodec) Encoding() core.Encoding {
	return core.EncodingText
}

func (p textCodec) Encode(msg core.Message) ([]byte, error) {
	if err := checkOutbound(p.role, msg); err != nil {
		return nil, err
	}
	params, err := jsonPayload(msg.Payload)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if p.role == core.RoleClient {
		env := clientEnvelope{
			Method: &msg.Op,
			Params: params,
		}
		if msg.Kind == core.KindRequest {
			env.ID = &msg.ID
		}
		v = env
	} else {
		env := serverEnvelope{}
		if msg.Op != "" {
			env.Method = &msg.Op
		}
		switch {
		case msg.Kind == core.KindNotification:
			env.Params = params
		case msg.Outcome == core.Success:
			env.ID = &msg.ID
			env.Params = params
		default:
			env.ID = &msg.ID
			if bytes.Equal(params, jsonNull) {
				params = json.RawMessage("{}")
			}
			env.Error = params
		}
		v = env
	}
	return marshal(v)
}

func jsonPayload(payload []byte) (json.RawMessage, error) {
	if len(payload) == 0 {
		return jsonNull, nil
	}
	if !json.Valid(payload) {
		return nil, errors.Wrap(core.ErrInvalidPayload, "text encoding requires a JSON payload")
	}
	return payload, nil
}

func marshal(v interface{}) ([]byte, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	enc := json.NewEncoder(bb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "encode text frame failed")
	}
	// Encoder terminates every value with a newline.
	out := make([]byte, bb.Len()-1)
	copy(out, bb.B)
	return out, nil
}

func (p textCodec) Decode(frame []byte) (msg core.Message, err error) {
	if p.role == core.RoleServer {
		msg, err = decodeClientEnvelope(frame)
	} else {
		msg, err = decodeServerEnvelope(frame)
	}
	if err != nil {
		return
	}
	err = msg.Validate()
	return
}

func decodeClientEnvelope(frame []byte) (msg core.Message, err error) {
	var env clientEnvelope
	if err = json.Unmarshal(frame, &env); err != nil {
		err = errors.Wrapf(core.ErrMalformedFrame, "invalid text frame: %v", err)
		return
	}
	if env.Method == nil {
		err = malformed("missing method")
		return
	}
	if env.Params == nil {
		err = malformed("missing params")
		return
	}
	if env.ID != nil {
		msg = core.NewRequest(*env.ID, *env.Method, payloadOf(env.Params))
	} else {
		msg = core.NewNotification(*env.Method, payloadOf(env.Params))
	}
	return
}

func decodeServerEnvelope(frame []byte) (msg core.Message, err error) {
	var env serverEnvelope
	if err = json.Unmarshal(frame, &env); err != nil {
		err = errors.Wrapf(core.ErrMalformedFrame, "invalid text frame: %v", err)
		return
	}
	var op string
	if env.Method != nil {
		op = *env.Method
	}
	if env.Error != nil && !bytes.Equal(env.Error, jsonNull) {
		if env.ID == nil {
			err = malformed("error without id")
			return
		}
		msg = core.NewFailure(*env.ID, op, []byte(env.Error))
		return
	}
	if env.Params == nil {
		err = malformed("missing params")
		return
	}
	if env.ID == nil {
		if env.Method == nil {
			err = malformed("notification without method")
			return
		}
		msg = core.NewNotification(op, payloadOf(env.Params))
		return
	}
	msg = core.NewSuccess(*env.ID, op, payloadOf(env.Params))
	return
}

func payloadOf(raw json.RawMessage) []byte {
	if bytes.Equal(raw, jsonNull) {
		return nil
	}
	return []byte(raw)
}
