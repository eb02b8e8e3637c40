package socket

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIDAllocator_Next(t *testing.T) {
	ids := newIDAllocator()
	assert.Equal(t, uint64(1), ids.next())
	assert.Equal(t, uint64(2), ids.next())

	ids.cur.Store(math.MaxUint64 - 1)
	assert.Equal(t, uint64(math.MaxUint64), ids.next())
	assert.Equal(t, uint64(1), ids.next(), "zero should be skipped on wrap-around")
}

func TestTryRecover(t *testing.T) {
	assert.NoError(t, tryRecover(nil))
	e := errors.New("fake error")
	assert.Equal(t, e, tryRecover(e))
	assert.EqualError(t, tryRecover("fake error"), "fake error")
	assert.Error(t, tryRecover(struct{}{}))
}

func BenchmarkIDAllocator_Next(b *testing.B) {
	ids := newIDAllocator()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ids.next()
		}
	})
}
