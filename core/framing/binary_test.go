package framing_test

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/core/framing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinary_RequestLayout(t *testing.T) {
	c := framing.MustNew(core.EncodingBinary, core.RoleClient)
	frame, err := c.Encode(core.NewRequest(1, "echo", []byte("hi")))
	require.NoError(t, err)

	expect := []byte{0x01}
	expect = binary.BigEndian.AppendUint64(expect, 1)
	expect = append(expect, 0x01, 0x00, 0x04)
	expect = append(expect, "echo"...)
	expect = append(expect, "hi"...)
	assert.Equal(t, expect, frame)

	frame, err = c.Encode(core.NewNotification("tick", nil))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x04, 't', 'i', 'c', 'k'}, frame)
}

func TestBinary_ResponseLayout(t *testing.T) {
	s := framing.MustNew(core.EncodingBinary, core.RoleServer)

	frame, err := s.Encode(core.NewSuccess(7, "", []byte{0xAA}))
	require.NoError(t, err)
	expect := []byte{0x01}
	expect = binary.BigEndian.AppendUint64(expect, 7)
	expect = append(expect, 0x01, 0x00, 0xAA)
	assert.Equal(t, expect, frame)

	frame, err = s.Encode(core.NewFailure(7, "x", nil))
	require.NoError(t, err)
	assert.Equal(t, byte(0x02), frame[9], "kind should be error")

	frame, err = s.Encode(core.NewNotification("n", []byte("1")))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xFF, 0x01, 0x00, 0x01, 'n', '1'}, frame)
}

func TestBinary_DecodeMalformed(t *testing.T) {
	server := framing.MustNew(core.EncodingBinary, core.RoleServer)
	client := framing.MustNew(core.EncodingBinary, core.RoleClient)

	requestFrames := map[string][]byte{
		"empty":            {},
		"bad presence":     {0x02},
		"truncated id":     {0x01, 0x00, 0x00},
		"missing op flag":  append([]byte{0x01}, make([]byte, 8)...),
		"no selector":      {0x00, 0x00, 'x'},
		"truncated op len": {0x00, 0x01, 0x00},
		"truncated op":     {0x00, 0x01, 0x00, 0x05, 'a', 'b'},
		"zero length op":   {0x00, 0x01, 0x00, 0x00},
	}
	for name, frame := range requestFrames {
		_, err := server.Decode(frame)
		assert.True(t, errors.Is(err, core.ErrMalformedFrame), "%s: should be malformed, got %v", name, err)
	}

	withID := append([]byte{0x01}, binary.BigEndian.AppendUint64(nil, 3)...)
	responseFrames := map[string][]byte{
		"empty":                 {},
		"missing kind":          withID,
		"unknown kind":          append(append([]byte{}, withID...), 0x03, 0x00),
		"success without id":    {0x00, 0x01, 0x00},
		"error without id":      {0x00, 0x02, 0x00},
		"notification with id":  append(append([]byte{}, withID...), 0xFF, 0x01, 0x00, 0x01, 'n'),
		"notification, no op":   {0x00, 0xFF, 0x00},
		"op flag past the end":  append(append([]byte{}, withID...), 0x01),
		"op longer than buffer": append(append([]byte{}, withID...), 0x01, 0x01, 0x00, 0x10, 'a'),
	}
	for name, frame := range responseFrames {
		_, err := client.Decode(frame)
		assert.True(t, errors.Is(err, core.ErrMalformedFrame), "%s: should be malformed, got %v", name, err)
	}
}

func TestBinary_EncodeRejects(t *testing.T) {
	client := framing.MustNew(core.EncodingBinary, core.RoleClient)
	server := framing.MustNew(core.EncodingBinary, core.RoleServer)

	_, err := client.Encode(core.NewSuccess(1, "", nil))
	assert.True(t, errors.Is(err, core.ErrUnsupportedMessage))
	_, err = server.Encode(core.NewRequest(1, "x", nil))
	assert.True(t, errors.Is(err, core.ErrUnsupportedMessage))
	_, err = client.Encode(core.NewRequest(1, strings.Repeat("x", math.MaxUint16+1), nil))
	assert.Error(t, err, "selector too long")
	_, err = client.Encode(core.NewRequest(1, "", nil))
	assert.True(t, errors.Is(err, core.ErrMalformedFrame))
}
