package socket

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// idAllocator hands out correlation ids 1,2,3... and never returns zero.
type idAllocator struct {
	cur *atomic.Uint64
}

func newIDAllocator() *idAllocator {
	return &idAllocator{
		cur: atomic.NewUint64(0),
	}
}

func (p *idAllocator) next() uint64 {
	for {
		if v := p.cur.Inc(); v != 0 {
			return v
		}
	}
}

// tryRecover converts a recovered value to an error.
func tryRecover(e interface{}) error {
	if e == nil {
		return nil
	}
	switch v := e.(type) {
	case error:
		return v
	case string:
		return errors.New(v)
	default:
		return errors.Errorf("%s", fmt.Sprint(v))
	}
}
