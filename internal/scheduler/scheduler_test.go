package scheduler_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type ctxKey struct{}

func TestImmediate(t *testing.T) {
	s := scheduler.Immediate()
	ran := false
	ctx := context.WithValue(context.Background(), ctxKey{}, "foo")
	err := s.Do(ctx, func(ctx context.Context) {
		ran = true
		assert.Equal(t, "foo", ctx.Value(ctxKey{}))
	})
	assert.NoError(t, err)
	assert.True(t, ran, "should run on the calling goroutine")
	assert.NoError(t, s.Close())
	assert.Equal(t, 0, scheduler.Running(s))
}

func TestElastic(t *testing.T) {
	s, err := scheduler.NewElastic(4)
	require.NoError(t, err)
	defer s.Close()

	const total = 100
	var wg sync.WaitGroup
	wg.Add(total)
	cnt := atomic.NewInt32(0)
	for i := 0; i < total; i++ {
		require.NoError(t, s.Do(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			cnt.Inc()
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(total), cnt.Load())
}

func TestElastic_Panic(t *testing.T) {
	s, err := scheduler.NewElastic(1)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Do(context.Background(), func(ctx context.Context) {
		panic("boom")
	}))
	done := make(chan struct{})
	require.NoError(t, s.Do(context.Background(), func(ctx context.Context) {
		close(done)
	}))
	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail(t, "pool should survive a panic")
	}
}

func TestElastic_Nonblocking(t *testing.T) {
	s, err := scheduler.NewElastic(1, scheduler.WithNonblocking(), scheduler.WithExpiry(time.Second))
	require.NoError(t, err)
	defer s.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Do(context.Background(), func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started
	assert.Equal(t, 1, scheduler.Running(s))
	err = s.Do(context.Background(), func(ctx context.Context) {})
	assert.Error(t, err, "saturated pool should reject")
	close(release)
}

func TestElastic_Closed(t *testing.T) {
	s, err := scheduler.NewElastic(0)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	err = s.Do(context.Background(), func(ctx context.Context) {})
	assert.True(t, errors.Is(err, scheduler.ErrSchedulerClosed))
}

func BenchmarkElastic(b *testing.B) {
	s, err := scheduler.NewElastic(scheduler.DefaultPoolSize)
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	var wg sync.WaitGroup
	wg.Add(b.N)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Do(context.Background(), func(ctx context.Context) {
			for i := 0; i < 1000; i++ {
				math.Sincos(math.Pi)
			}
			wg.Done()
		})
	}
	wg.Wait()
}
