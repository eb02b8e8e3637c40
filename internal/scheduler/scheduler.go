package scheduler

import (
	"context"
	"io"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/logger"
)

// DefaultPoolSize bounds the handlers running at once on an elastic scheduler.
const DefaultPoolSize = 4096

// ErrSchedulerClosed is returned when work is submitted after Close.
var ErrSchedulerClosed = errors.New("rpc: scheduler closed")

// Do is alias of the function which will be executed in scheduler.
type Do = func(ctx context.Context)

// Scheduler runs handler work off the inbound task of a connection.
type Scheduler interface {
	io.Closer
	// Do submits fn. It fails if the scheduler is closed or saturated.
	Do(ctx context.Context, fn Do) error
}

var immediate Scheduler = immediateScheduler{}

// Immediate returns a scheduler running work on the calling goroutine.
func Immediate() Scheduler {
	return immediate
}

type immediateScheduler struct{}

func (immediateScheduler) Close() error {
	return nil
}

func (immediateScheduler) Do(ctx context.Context, fn Do) error {
	fn(ctx)
	return nil
}

// Option configures an elastic scheduler.
type Option func(o *ants.Options)

// WithNonblocking makes Do fail instead of waiting when every worker is busy.
func WithNonblocking() Option {
	return func(o *ants.Options) {
		o.Nonblocking = true
	}
}

// WithExpiry sets how long an idle worker is kept.
func WithExpiry(d time.Duration) Option {
	return func(o *ants.Options) {
		o.ExpiryDuration = d
	}
}

// NewElastic returns a scheduler backed by a worker pool of size goroutines.
func NewElastic(size int, opts ...Option) (Scheduler, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	o := ants.Options{
		PanicHandler: func(v interface{}) {
			logger.Errorf("handler panic: %v", v)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	pool, err := ants.NewPool(size, ants.WithOptions(o))
	if err != nil {
		return nil, errors.Wrap(err, "create worker pool failed")
	}
	return &elasticScheduler{pool: pool}, nil
}

type elasticScheduler struct {
	pool *ants.Pool
}

func (p *elasticScheduler) Close() error {
	return p.pool.ReleaseTimeout(5 * time.Second)
}

func (p *elasticScheduler) Do(ctx context.Context, fn Do) error {
	err := p.pool.Submit(func() {
		fn(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrSchedulerClosed
	}
	if err != nil {
		return errors.Wrap(err, "submit to worker pool failed")
	}
	return nil
}

// Running returns the number of busy workers, or zero for non-pooled schedulers.
func Running(s Scheduler) int {
	if p, ok := s.(*elasticScheduler); ok {
		return p.pool.Running()
	}
	return 0
}
