package socket

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/core/transport"
	"github.com/rsocket/rpc-go/logger"
	"go.uber.org/atomic"
)

const stateEventBuffer = 32

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Reconnect bool
	Backoff   Backoff
	// MaxAttempts limits consecutive reconnect attempts. Zero means unlimited.
	MaxAttempts int
	Strategy    ConnectStrategy
	Connection  ConnectionConfig
}

// Manager keeps a client connection alive across transport failures.
// The dispatcher is bound to every new connection and survives reconnects.
type Manager struct {
	cfg        ManagerConfig
	factory    transport.SocketFactory
	dispatcher *Dispatcher
	ctx        context.Context
	cancel     context.CancelFunc
	forced     *atomic.Bool
	kick       chan struct{}

	mu       sync.Mutex
	state    core.State
	conn     *Connection
	stopping bool
	final    bool
	lastErr  error
	changed  chan struct{}
	subs     map[int]chan StateEvent
	subSeq   int
}

// NewManager creates a manager dialing sockets from factory.
func NewManager(factory transport.SocketFactory, dispatcher *Dispatcher, cfg ManagerConfig) *Manager {
	cfg.Connection.Role = core.RoleClient
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		factory:    factory,
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
		forced:     atomic.NewBool(false),
		kick:       make(chan struct{}, 1),
		state:      core.StateConnecting,
		changed:    make(chan struct{}),
		subs:       make(map[int]chan StateEvent),
	}
}

// State returns the current state.
func (m *Manager) State() core.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connection returns the current connection, or nil before the first attempt.
func (m *Manager) Connection() *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Connect makes the first connection attempt.
// With StrategyRetry failed attempts are retried with backoff until the budget is exhausted or ctx is done.
func (m *Manager) Connect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		err := m.attempt(ctx, attempt)
		if err == nil {
			return nil
		}
		if m.isStopping() {
			return err
		}
		if core.IsTerminal(err) || m.cfg.Strategy == StrategyFallback || !m.budgetLeft(attempt+1) {
			m.close(err)
			return err
		}
		m.publish(core.StateReconnecting, attempt+1, err)
		if werr := m.backoff(ctx, attempt); werr != nil {
			m.close(err)
			return errors.Wrapf(werr, "connect aborted: %s", err)
		}
	}
}

func (m *Manager) attempt(ctx context.Context, n int) error {
	m.publish(core.StateConnecting, n, nil)
	conn := NewConnection(m.factory(), m.dispatcher, m.cfg.Connection)
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return core.ErrConnectionClosed
	}
	m.conn = conn
	m.mu.Unlock()

	m.dispatcher.Bind(conn)
	if err := conn.Start(ctx); err != nil {
		// Teardown of this attempt must complete before the next Bind.
		<-conn.Done()
		logger.Warnf("connect attempt %d failed: %s", n, err)
		m.publish(core.StateClosed, n, err)
		return err
	}
	m.publish(core.StateOpen, n, nil)
	go m.watch(conn, n)
	return nil
}

func (m *Manager) watch(conn *Connection, n int) {
	<-conn.Done()
	if m.isStopping() {
		return
	}
	err := conn.Err()
	forced := m.forced.Swap(false)
	m.publish(core.StateClosed, n, err)
	if !forced && (core.IsTerminal(err) || !m.cfg.Reconnect) {
		m.close(err)
		return
	}
	m.reconnect(err, forced)
}

func (m *Manager) reconnect(cause error, immediate bool) {
	for attempt := 1; ; attempt++ {
		if !m.budgetLeft(attempt) {
			m.close(errors.Wrapf(cause, "reconnect gave up after %d attempts", attempt-1))
			return
		}
		m.publish(core.StateReconnecting, attempt, cause)
		if !immediate {
			if err := m.backoff(m.ctx, attempt-1); err != nil {
				return
			}
		}
		immediate = false
		err := m.attempt(m.ctx, attempt)
		if err == nil {
			return
		}
		if m.isStopping() {
			return
		}
		if core.IsTerminal(err) {
			m.close(err)
			return
		}
		cause = err
	}
}

func (m *Manager) budgetLeft(attempt int) bool {
	return m.cfg.MaxAttempts <= 0 || attempt <= m.cfg.MaxAttempts
}

func (m *Manager) backoff(ctx context.Context, attempt int) error {
	d := m.cfg.Backoff.Delay(attempt)
	if logger.IsDebugEnabled() {
		logger.Debugf("reconnect in %s", d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-m.kick:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return core.ErrConnectionClosed
	}
}

// Reconnect drops the current connection and reconnects without waiting for the backoff.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return core.ErrConnectionClosed
	}
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if state == core.StateOpen && conn != nil {
		m.forced.Store(true)
		conn.Abort()
		return nil
	}
	select {
	case m.kick <- struct{}{}:
	default:
	}
	return nil
}

// Disconnect closes the connection gracefully. The manager is terminal afterwards.
func (m *Manager) Disconnect(ctx context.Context) (err error) {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	conn := m.conn
	m.mu.Unlock()
	m.publish(core.StateClosing, 0, nil)
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()
	m.cancel()
	if conn != nil {
		err = conn.Close(ctx)
	}
	m.close(core.ErrConnectionClosed)
	return
}

func (m *Manager) isStopping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopping
}

// close moves the manager to its final Closed state.
func (m *Manager) close(err error) {
	m.mu.Lock()
	if m.final {
		m.mu.Unlock()
		return
	}
	m.stopping = true
	m.final = true
	m.lastErr = err
	m.mu.Unlock()

	m.cancel()
	m.dispatcher.Shutdown()
	if err != nil && !errors.Is(err, core.ErrConnectionClosed) {
		logger.Errorf("connection closed: %s", err)
	}
	m.emit(StateEvent{State: core.StateClosed, Err: err, Final: true})
}

func (m *Manager) publish(state core.State, attempt int, err error) {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.emit(StateEvent{State: state, Attempt: attempt, Err: err})
}

func (m *Manager) emit(ev StateEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = ev.State
	close(m.changed)
	m.changed = make(chan struct{})
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			logger.Warnf("state subscriber is slow, drop event %s", ev.State)
		}
	}
	if ev.Final {
		for k, ch := range m.subs {
			close(ch)
			delete(m.subs, k)
		}
	}
}

// Subscribe returns a stream of state events. The stream is closed after the final event,
// or when cancel is called.
func (m *Manager) Subscribe() (<-chan StateEvent, func()) {
	ch := make(chan StateEvent, stateEventBuffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.final {
		ch <- StateEvent{State: core.StateClosed, Err: m.lastErr, Final: true}
		close(ch)
		return ch, func() {}
	}
	m.subSeq++
	id := m.subSeq
	m.subs[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if found, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(found)
		}
	}
}

// WaitOpen blocks until the manager is Open, reaches its final state, or ctx is done.
func (m *Manager) WaitOpen(ctx context.Context) error {
	for {
		m.mu.Lock()
		state, final, lastErr, changed := m.state, m.final, m.lastErr, m.changed
		m.mu.Unlock()
		if final {
			if lastErr == nil {
				lastErr = core.ErrConnectionClosed
			}
			return lastErr
		}
		if state == core.StateOpen {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
