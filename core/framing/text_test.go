package framing_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/core/framing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_Encode(t *testing.T) {
	client := framing.MustNew(core.EncodingText, core.RoleClient)
	server := framing.MustNew(core.EncodingText, core.RoleServer)

	frame, err := client.Encode(core.NewRequest(1, "echo", []byte(`"hi"`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"method":"echo","params":"hi"}`, string(frame))

	frame, err = client.Encode(core.NewNotification("log", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"log","params":null}`, string(frame))

	frame, err = server.Encode(core.NewSuccess(1, "", []byte(`[1,2]`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"params":[1,2]}`, string(frame))

	frame, err = server.Encode(core.NewFailure(2, "echo", []byte(`{"code":1,"message":"boom"}`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"method":"echo","error":{"code":1,"message":"boom"}}`, string(frame))

	frame, err = server.Encode(core.NewNotification("tick", []byte(`1`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"tick","params":1}`, string(frame))

	_, err = client.Encode(core.NewRequest(1, "echo", []byte("not json")))
	assert.True(t, errors.Is(err, core.ErrInvalidPayload))
}

func TestText_DecodeServerMessages(t *testing.T) {
	client := framing.MustNew(core.EncodingText, core.RoleClient)

	msg, err := client.Decode([]byte(`{"id":4,"params":{"ok":true}}`))
	require.NoError(t, err)
	assert.Equal(t, core.NewSuccess(4, "", []byte(`{"ok":true}`)), msg)

	msg, err = client.Decode([]byte(`{"id":4,"method":"m","error":{"code":3}}`))
	require.NoError(t, err)
	assert.Equal(t, core.NewFailure(4, "m", []byte(`{"code":3}`)), msg)

	msg, err = client.Decode([]byte(`{"method":"tick","params":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, core.NewNotification("tick", []byte(`"1"`)), msg)

	msg, err = client.Decode([]byte(`{"id":4,"params":null,"error":null}`))
	require.NoError(t, err)
	assert.Equal(t, core.NewSuccess(4, "", nil), msg)

	malformed := []string{
		``,
		`[]`,
		`{"id":"x","params":1}`,
		`{"error":{"code":1}}`,
		`{"method":"tick"}`,
		`{"params":1}`,
		`{"id":1}`,
		`{"method":"","params":1}`,
	}
	for _, raw := range malformed {
		_, err = client.Decode([]byte(raw))
		assert.True(t, errors.Is(err, core.ErrMalformedFrame), "%q should be malformed, got %v", raw, err)
	}
}

func TestText_DecodeClientMessages(t *testing.T) {
	server := framing.MustNew(core.EncodingText, core.RoleServer)

	msg, err := server.Decode([]byte(`{"id":9,"method":"sum","params":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, core.NewRequest(9, "sum", []byte(`[1,2]`)), msg)

	msg, err = server.Decode([]byte(`{"method":"log","params":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, core.NewNotification("log", []byte(`"x"`)), msg)

	for _, raw := range []string{`{"id":1,"params":1}`, `{"id":1,"method":"x"}`, `{`, `null`} {
		_, err = server.Decode([]byte(raw))
		assert.True(t, errors.Is(err, core.ErrMalformedFrame), "%q should be malformed, got %v", raw, err)
	}
}
