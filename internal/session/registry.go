package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/logger"
)

// Registry keeps the live sessions of a server, keyed by connection id.
type Registry struct {
	m *xsync.MapOf[string, *Session]
}

// NewRegistry returns a new blank registry.
func NewRegistry() *Registry {
	return &Registry{
		m: xsync.NewMapOf[string, *Session](),
	}
}

// Add registers s. It returns false if a session with the same id exists already.
func (p *Registry) Add(s *Session) bool {
	_, loaded := p.m.LoadOrStore(s.ID(), s)
	return !loaded
}

// Remove removes the session with id.
func (p *Registry) Remove(id string) (*Session, bool) {
	return p.m.LoadAndDelete(id)
}

// Load returns the session with id.
func (p *Registry) Load(id string) (*Session, bool) {
	return p.m.Load(id)
}

// Len returns the number of live sessions.
func (p *Registry) Len() int {
	return p.m.Size()
}

// Range calls fn for each session until it returns false.
func (p *Registry) Range(fn func(s *Session) bool) {
	p.m.Range(func(_ string, s *Session) bool {
		return fn(s)
	})
}

// Broadcast notifies every session and returns how many sends succeeded.
func (p *Registry) Broadcast(op string, payload []byte) (n int) {
	p.Range(func(s *Session) bool {
		if err := s.Notify(op, payload); err != nil {
			logger.Debugf("broadcast %s skipped %s: %s", op, s.ID(), err)
			return true
		}
		n++
		return true
	})
	return
}

// Notify sends a notification to the session with id.
func (p *Registry) Notify(id string, op string, payload []byte) error {
	s, ok := p.m.Load(id)
	if !ok {
		return errors.Wrapf(core.ErrPeerNotFound, "notify %s", id)
	}
	return s.Notify(op, payload)
}

// CloseAll closes every session concurrently and waits for them, or for ctx.
func (p *Registry) CloseAll(ctx context.Context) {
	var wg sync.WaitGroup
	p.Range(func(s *Session) bool {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Close(ctx); err != nil {
				logger.Debugf("close session %s: %s", s.ID(), err)
			}
		}(s)
		return true
	})
	wg.Wait()
}
