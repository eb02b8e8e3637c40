package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/core/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakeErr = errors.New("fake error")

func nextEvent(t *testing.T, events <-chan transport.Event) transport.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "events should not be closed yet")
		return ev
	case <-time.After(3 * time.Second):
		require.FailNow(t, "wait event timeout")
	}
	return transport.Event{}
}

func drainEvents(t *testing.T, events <-chan transport.Event) (all []transport.Event) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			all = append(all, ev)
		case <-timeout:
			require.FailNow(t, "wait events timeout")
		}
	}
}

func openPipe(t *testing.T) (*transport.StreamSocket, *transport.StreamSocket) {
	c1, c2 := net.Pipe()
	a, b := transport.NewStreamSocket(c1), transport.NewStreamSocket(c2)
	require.NoError(t, a.Open(context.Background()))
	require.NoError(t, b.Open(context.Background()))
	assert.Equal(t, transport.EventOpen, nextEvent(t, a.Events()).Kind)
	assert.Equal(t, transport.EventOpen, nextEvent(t, b.Events()).Kind)
	return a, b
}

func TestStreamSocket_SendAndReceive(t *testing.T) {
	a, b := openPipe(t)
	defer b.Close()

	counter := core.NewTrafficCounter()
	a.SetCounter(counter)

	frames := [][]byte{[]byte("hello"), {0x00, 0x01, 0x02}, []byte("world")}
	for _, it := range frames {
		assert.NoError(t, a.Send(transport.Frame{Data: it}))
	}
	for _, it := range frames {
		ev := nextEvent(t, b.Events())
		assert.Equal(t, transport.EventMessage, ev.Kind)
		assert.Equal(t, it, ev.Frame.Data)
	}
	assert.Equal(t, uint64(3), counter.WriteFrames())
	assert.Equal(t, uint64(5+3+5+3*3), counter.WriteBytes())
	assert.NotEmpty(t, a.RemoteAddr())

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close(), "close should be idempotent")
	assert.True(t, errors.Is(a.Send(transport.Frame{Data: []byte("x")}), core.ErrNotOpen))

	rest := drainEvents(t, b.Events())
	require.NotEmpty(t, rest)
	last := rest[len(rest)-1]
	assert.Equal(t, transport.EventClosed, last.Kind, "closed should be the last event")
	assert.Equal(t, transport.CloseNormal, last.Code)
}

func TestStreamSocket_SendBeforeOpen(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	sk := transport.NewStreamSocket(c1)
	err := sk.Send(transport.Frame{Data: []byte("fake-data")})
	assert.True(t, errors.Is(err, core.ErrNotOpen))
	assert.Empty(t, sk.RemoteAddr())

	assert.NoError(t, sk.Close())
	all := drainEvents(t, sk.Events())
	require.Len(t, all, 1)
	assert.Equal(t, transport.EventClosed, all[0].Kind)
	assert.Error(t, sk.Open(context.Background()), "should not open a closed socket")
}

func TestStreamSocket_SendEmpty(t *testing.T) {
	a, b := openPipe(t)
	defer a.Close()
	defer b.Close()
	err := a.Send(transport.Frame{})
	assert.True(t, errors.Is(err, transport.ErrInvalidFrameLength))
}

func TestStreamSocket_DialBroken(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	_ = l.Close()

	sk := transport.TCPClient("tcp", addr, nil)()
	err = sk.Open(context.Background())
	assert.Error(t, err, "dial should fail")

	all := drainEvents(t, sk.Events())
	require.Len(t, all, 2)
	assert.Equal(t, transport.EventError, all[0].Kind)
	assert.Equal(t, transport.EventClosed, all[1].Kind)
	assert.Equal(t, transport.CloseAbnormal, all[1].Code)
}

func TestStreamSocket_TruncatedStream(t *testing.T) {
	c1, c2 := net.Pipe()
	sk := transport.NewStreamSocket(c1)
	require.NoError(t, sk.Open(context.Background()))
	go func() {
		_, _ = c2.Write([]byte{0x00, 0x00, 0x09, 'f', 'a', 'k', 'e'})
		_ = c2.Close()
	}()
	all := drainEvents(t, sk.Events())
	require.Len(t, all, 3)
	assert.Equal(t, transport.EventOpen, all[0].Kind)
	assert.Equal(t, transport.EventError, all[1].Kind)
	assert.True(t, errors.Is(all[1].Err, transport.ErrTruncatedFrame))
	assert.Equal(t, transport.EventClosed, all[2].Kind)
	assert.Equal(t, transport.CloseAbnormal, all[2].Code)
}
