package transport

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
)

const (
	socketIdle int32 = iota
	socketOpen
	socketClosed
)

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if err == http.ErrServerClosed || errors.Is(err, net.ErrClosed) {
		return true
	}
	if strings.Contains(err.Error(), "use of closed network connection") {
		return true
	}
	return false
}

// eventQueue serializes events into the channel handed out by Events.
// It is safe for concurrent use; pushes after finish are dropped.
type eventQueue struct {
	ch       chan Event
	done     chan struct{}
	once     sync.Once
	mu       sync.RWMutex
	finished bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		ch:   make(chan Event, eventBufferSize),
		done: make(chan struct{}),
	}
}

// push blocks while the queue is full, unless the owner gave up on the socket.
func (q *eventQueue) push(ev Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.finished {
		return false
	}
	select {
	case q.ch <- ev:
		return true
	case <-q.done:
		return false
	}
}

func (q *eventQueue) isFinished() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.finished
}

// abandon unblocks pending pushes. Events already queued stay readable.
func (q *eventQueue) abandon() {
	q.once.Do(func() {
		close(q.done)
	})
}

// finish appends the terminal event and closes the channel. Only the first call has effect.
// It waits for running pushes, so the channel is never closed under a sender.
func (q *eventQueue) finish(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.finished {
		return
	}
	q.finished = true
	select {
	case q.ch <- ev:
	case <-q.done:
		select {
		case q.ch <- ev:
		default:
		}
	}
	close(q.ch)
}
