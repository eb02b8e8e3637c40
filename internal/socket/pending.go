package socket

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rsocket/rpc-go/core"
)

type outcome struct {
	payload []byte
	err     error
}

// pendingRequest is the completion slot of an outstanding call.
type pendingRequest struct {
	id       uint64
	op       string
	issued   time.Time
	deadline time.Time
	done     chan outcome
}

// resolve must only be called by the goroutine that removed the request from the table.
func (p *pendingRequest) resolve(payload []byte, err error) {
	p.done <- outcome{payload: payload, err: err}
}

// pendingTable holds outstanding calls keyed by correlation id.
// Registration and teardown are serialized by gate so that no request
// can be registered once teardown has begun.
type pendingTable struct {
	gate   sync.RWMutex
	closed bool
	ids    *idAllocator
	m      *xsync.MapOf[uint64, *pendingRequest]
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		closed: true,
		ids:    newIDAllocator(),
		m:      xsync.NewMapOf[uint64, *pendingRequest](),
	}
}

func (p *pendingTable) register(op string, deadline time.Time) (*pendingRequest, error) {
	p.gate.RLock()
	defer p.gate.RUnlock()
	if p.closed {
		return nil, errors.Wrap(core.ErrNotOpen, "cannot register request")
	}
	req := &pendingRequest{
		op:       op,
		issued:   time.Now(),
		deadline: deadline,
		done:     make(chan outcome, 1),
	}
	for {
		req.id = p.ids.next()
		// Skip ids that are still outstanding after a wrap-around.
		if _, loaded := p.m.LoadOrStore(req.id, req); !loaded {
			return req, nil
		}
	}
}

func (p *pendingTable) load(id uint64) (*pendingRequest, bool) {
	return p.m.Load(id)
}

// remove detaches the request with id. Only one caller ever gets ok=true for a request.
func (p *pendingTable) remove(id uint64) (*pendingRequest, bool) {
	return p.m.LoadAndDelete(id)
}

func (p *pendingTable) len() int {
	return p.m.Size()
}

// expire resolves every request whose deadline is before now with core.ErrTimeout.
func (p *pendingTable) expire(now time.Time) (n int) {
	p.m.Range(func(id uint64, req *pendingRequest) bool {
		if req.deadline.IsZero() || now.Before(req.deadline) {
			return true
		}
		if found, ok := p.remove(id); ok {
			found.resolve(nil, errors.Wrapf(core.ErrTimeout, "request %d expired", id))
			n++
		}
		return true
	})
	return
}

// close stops registration and resolves every outstanding request with err.
func (p *pendingTable) close(err error) (n int) {
	p.gate.Lock()
	defer p.gate.Unlock()
	p.closed = true
	p.m.Range(func(id uint64, _ *pendingRequest) bool {
		if found, ok := p.remove(id); ok {
			found.resolve(nil, err)
			n++
		}
		return true
	})
	return
}

func (p *pendingTable) open() {
	p.gate.Lock()
	p.closed = false
	p.gate.Unlock()
}
