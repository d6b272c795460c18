// Package activity tracks a client's attentiveness from input and
// window-visibility signals. The resulting state is advisory input for
// notification routing and never affects transport behavior.
package activity

import (
	"sync"
	"time"
)

// State is the client's current attentiveness.
type State string

const (
	StateActive State = "active"
	StateIdle   State = "idle"
	StateAway   State = "away"
)

// DefaultIdleThreshold is how long without input before an active,
// focused client is considered idle.
const DefaultIdleThreshold = 60 * time.Second

// DefaultCheckInterval is how often the idle timer is evaluated.
const DefaultCheckInterval = time.Second

// Monitor is the per-client activity state machine:
//
//	active <-> idle (idle timer), any -> away (focus loss)
//
// All methods are safe for concurrent use.
type Monitor struct {
	mu            sync.Mutex
	state         State
	focused       bool
	lastActivity  time.Time
	idleThreshold time.Duration
	onChange      func(State)
	stop          chan struct{}
	stopOnce      sync.Once

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithIdleThreshold overrides the idle timeout.
func WithIdleThreshold(d time.Duration) Option {
	return func(m *Monitor) { m.idleThreshold = d }
}

// WithOnChange registers a callback invoked on every state transition.
// The callback runs on the caller's goroutine (signal or ticker).
func WithOnChange(fn func(State)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// NewMonitor returns a Monitor that starts focused and active.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		state:         StateActive,
		focused:       true,
		idleThreshold: DefaultIdleThreshold,
		stop:          make(chan struct{}),
		Now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastActivity = m.Now()
	return m
}

// Start runs the periodic idle check until Stop is called.
func (m *Monitor) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Tick()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the periodic check. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// RecordActivity notes an input/scroll/focus signal. When the window is
// focused this forces the state back to active.
func (m *Monitor) RecordActivity() {
	m.mu.Lock()
	m.lastActivity = m.Now()
	if m.focused {
		m.transition(StateActive)
	}
	m.mu.Unlock()
}

// SetFocused records window focus. Losing focus forces away
// immediately, regardless of the idle timer; regaining focus
// re-evaluates from active.
func (m *Monitor) SetFocused(focused bool) {
	m.mu.Lock()
	m.focused = focused
	if !focused {
		m.transition(StateAway)
	} else {
		m.lastActivity = m.Now()
		m.transition(StateActive)
	}
	m.mu.Unlock()
}

// Tick evaluates the idle timer once. Exposed so tests can drive the
// state machine without a real ticker.
func (m *Monitor) Tick() {
	m.mu.Lock()
	if m.focused && m.state == StateActive && m.Now().Sub(m.lastActivity) >= m.idleThreshold {
		m.transition(StateIdle)
	}
	m.mu.Unlock()
}

// State returns the current attentiveness.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Focused reports whether the window currently has focus.
func (m *Monitor) Focused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focused
}

// transition must be called with the lock held.
func (m *Monitor) transition(to State) {
	if m.state == to {
		return
	}
	m.state = to
	if m.onChange != nil {
		m.onChange(to)
	}
}
