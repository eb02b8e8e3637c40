package socket

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/logger"
	"go.uber.org/atomic"
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// CallTimeout applies to calls issued without their own timeout. Zero disables it.
	CallTimeout time.Duration
	// SweepInterval is the period of the expiry sweep over pending calls. Zero disables it.
	SweepInterval time.Duration
	// Handler serves inbound requests. Requests are answered with a
	// method-not-found error when it is nil.
	Handler RequestHandler
}

// Dispatcher correlates calls with their responses and fans notifications out to subscribers.
// It outlives the connections it is bound to.
type Dispatcher struct {
	pending  *pendingTable
	subs     *subscriptions
	handler  RequestHandler
	timeout  time.Duration
	mu       sync.RWMutex
	sender   Sender
	ctx      context.Context
	cancel   context.CancelFunc
	shutdown *atomic.Bool
	serving  *atomic.Int64
	once     sync.Once
	done     chan struct{}
}

// NewDispatcher creates a dispatcher. Registration stays closed until Bind.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		pending:  newPendingTable(),
		subs:     &subscriptions{},
		handler:  cfg.Handler,
		timeout:  cfg.CallTimeout,
		ctx:      ctx,
		cancel:   cancel,
		shutdown: atomic.NewBool(false),
		serving:  atomic.NewInt64(0),
		done:     make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go d.loopSweep(cfg.SweepInterval)
	}
	return d
}

// Bind routes outbound messages to s and reopens registration.
func (d *Dispatcher) Bind(s Sender) {
	d.mu.Lock()
	d.sender = s
	d.mu.Unlock()
	d.Reopen()
}

// Reopen enables registration again after a teardown.
func (d *Dispatcher) Reopen() {
	if d.shutdown.Load() {
		return
	}
	d.pending.open()
}

// Pending returns the number of outstanding calls.
func (d *Dispatcher) Pending() int {
	return d.pending.len()
}

// Serving returns the number of inbound requests whose reply has not been sent yet.
func (d *Dispatcher) Serving() int {
	return int(d.serving.Load())
}

// Call sends a request and waits for its response.
// timeout overrides the default call timeout when positive.
func (d *Dispatcher) Call(ctx context.Context, op string, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = d.timeout
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	req, err := d.pending.register(op, deadline)
	if err != nil {
		return nil, err
	}
	if err := d.send(core.NewRequest(req.id, op, payload)); err != nil {
		if _, ok := d.pending.remove(req.id); ok {
			return nil, err
		}
		return d.await(req)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case out := <-req.done:
		return out.payload, out.err
	case <-expired:
		if _, ok := d.pending.remove(req.id); ok {
			return nil, errors.Wrapf(core.ErrTimeout, "call %s timed out after %s", op, timeout)
		}
	case <-ctx.Done():
		if _, ok := d.pending.remove(req.id); ok {
			return nil, errors.Wrapf(ctx.Err(), "call %s canceled", op)
		}
	}
	// Someone else removed the request first and is about to resolve it.
	return d.await(req)
}

func (d *Dispatcher) await(req *pendingRequest) ([]byte, error) {
	out := <-req.done
	return out.payload, out.err
}

// Notify sends a notification. No response is expected.
func (d *Dispatcher) Notify(op string, payload []byte) error {
	return d.send(core.NewNotification(op, payload))
}

// Subscribe registers a handler for notifications with selector, or every notification for Wildcard.
// Handlers run on the inbound task of the connection, in registration order.
func (d *Dispatcher) Subscribe(selector string, handler NotificationHandler) *Subscription {
	return d.subs.add(selector, handler)
}

func (d *Dispatcher) send(msg core.Message) error {
	d.mu.RLock()
	s := d.sender
	d.mu.RUnlock()
	if s == nil {
		return core.ErrNotOpen
	}
	return s.Send(msg)
}

// Route handles one inbound message.
func (d *Dispatcher) Route(msg core.Message) error {
	switch msg.Kind {
	case core.KindResponse:
		return d.routeResponse(msg)
	case core.KindNotification:
		if n := d.subs.deliver(msg); n == 0 && logger.IsDebugEnabled() {
			logger.Debugf("drop notification %s: no subscriber", msg.Op)
		}
	case core.KindRequest:
		d.routeRequest(msg)
	default:
		return errors.Wrapf(core.ErrMalformedFrame, "cannot route %s", msg)
	}
	return nil
}

func (d *Dispatcher) routeResponse(msg core.Message) error {
	req, ok := d.pending.load(msg.ID)
	if !ok {
		logger.Warnf("discard response %d: no pending request", msg.ID)
		return nil
	}
	if msg.Op != "" && msg.Op != req.op {
		return errors.Wrapf(core.ErrMalformedFrame, "response %d echoes %q but request was %q", msg.ID, msg.Op, req.op)
	}
	found, ok := d.pending.remove(msg.ID)
	if !ok {
		logger.Warnf("discard response %d: request resolved already", msg.ID)
		return nil
	}
	if msg.Outcome == core.Failure {
		found.resolve(nil, core.NewRemoteError(found.op, msg.Payload))
	} else {
		found.resolve(msg.Payload, nil)
	}
	return nil
}

func (d *Dispatcher) routeRequest(req core.Message) {
	var replied atomic.Bool
	d.serving.Inc()
	reply := func(resp core.Message) {
		if !replied.CompareAndSwap(false, true) {
			logger.Warnf("omit duplicated reply of request %d", req.ID)
			return
		}
		defer d.serving.Dec()
		resp.Kind = core.KindResponse
		resp.ID = req.ID
		if resp.Op == "" {
			resp.Op = req.Op
		}
		if err := d.send(resp); err != nil {
			logger.Warnf("reply request %d failed: %s", req.ID, err)
		}
	}
	if d.handler == nil {
		reply(core.NewFailure(req.ID, req.Op, core.ErrorDescriptor{
			Code:    core.CodeMethodNotFound,
			Message: "method not found",
		}.Bytes()))
		return
	}
	d.handler.HandleRequest(d.ctx, req, reply)
}

// Teardown resolves every outstanding call with err and stops registration until Reopen.
func (d *Dispatcher) Teardown(err error) {
	if n := d.pending.close(err); n > 0 && logger.IsDebugEnabled() {
		logger.Debugf("teardown %d pending requests: %s", n, err)
	}
}

// Shutdown tears the dispatcher down for good. Subscriptions become inert.
func (d *Dispatcher) Shutdown() {
	d.once.Do(func() {
		d.shutdown.Store(true)
		d.Teardown(core.ErrConnectionClosed)
		d.subs.clear()
		d.mu.Lock()
		d.sender = nil
		d.mu.Unlock()
		d.cancel()
		close(d.done)
	})
}

func (d *Dispatcher) loopSweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if n := d.pending.expire(now); n > 0 && logger.IsDebugEnabled() {
				logger.Debugf("sweep %d expired requests", n)
			}
		case <-d.done:
			return
		}
	}
}
