package socket

import (
	"sync"

	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/logger"
)

// Wildcard matches every notification selector.
const Wildcard = "*"

// NotificationHandler receives the payload of a notification.
type NotificationHandler func(op string, payload []byte)

// Subscription is a registered notification handler.
type Subscription struct {
	id       uint64
	selector string
	handler  NotificationHandler
	owner    *subscriptions
}

// Selector returns the subscribed selector.
func (s *Subscription) Selector() string {
	return s.selector
}

// Unsubscribe removes the subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.owner.remove(s.id)
}

// subscriptions is a copy-on-write list, so delivery never holds the lock.
type subscriptions struct {
	mu    sync.Mutex
	seq   uint64
	items []*Subscription
	inert bool
}

func (p *subscriptions) add(selector string, handler NotificationHandler) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	s := &Subscription{
		id:       p.seq,
		selector: selector,
		handler:  handler,
		owner:    p,
	}
	if p.inert {
		return s
	}
	items := make([]*Subscription, len(p.items), len(p.items)+1)
	copy(items, p.items)
	p.items = append(items, s)
	return s
}

func (p *subscriptions) remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, it := range p.items {
		if it.id != id {
			continue
		}
		items := make([]*Subscription, 0, len(p.items)-1)
		items = append(items, p.items[:i]...)
		p.items = append(items, p.items[i+1:]...)
		return
	}
}

func (p *subscriptions) snapshot() []*Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items
}

// clear drops every subscription and ignores later ones.
func (p *subscriptions) clear() {
	p.mu.Lock()
	p.items = nil
	p.inert = true
	p.mu.Unlock()
}

// deliver invokes the matching handlers in registration order and reports how many ran.
func (p *subscriptions) deliver(msg core.Message) (n int) {
	for _, s := range p.snapshot() {
		if s.selector != Wildcard && s.selector != msg.Op {
			continue
		}
		n++
		func() {
			defer func() {
				if e := tryRecover(recover()); e != nil {
					logger.Errorf("handle notification %s failed: %s", msg.Op, e)
				}
			}()
			s.handler(msg.Op, msg.Payload)
		}()
	}
	return
}
