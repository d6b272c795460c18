// Package client is the per-tab transport wrapper: it dials the
// broadcast server, dispatches inbound messages onto the event bus, and
// reconnects with capped exponential backoff whenever the connection
// drops.
package client

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"effortsync/bus"
	"effortsync/types"
)

// State is the transport state machine position.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	// StateStopped is terminal: entered only via Disconnect.
	StateStopped State = "stopped"
)

// Bus topics emitted by the transport itself.
const (
	TopicConnectionOpen   = "connection:open"
	TopicConnectionClosed = "connection:closed"
)

const (
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// Dialer opens a connection to the server. *websocket.Dialer satisfies
// this through gorillaDialer; tests inject fakes.
type Dialer interface {
	Dial(url string) (Conn, error)
}

type gorillaDialer struct {
	d *websocket.Dialer
}

func (g gorillaDialer) Dial(url string) (Conn, error) {
	conn, _, err := g.d.Dial(url, nil)
	return conn, err
}

// Client connects to the broadcast server and feeds the event bus.
// The zero value is not usable; construct with New.
type Client struct {
	url    string
	bus    *bus.Bus
	dialer Dialer
	cache  *Cache

	backoffBase time.Duration
	backoffMax  time.Duration

	mu       sync.Mutex
	state    State
	attempts int
	conn     Conn
	timer    *time.Timer

	// After is injectable for deterministic backoff tests. It must call
	// fn once the delay elapses and return a cancellable timer.
	After func(d time.Duration, fn func()) *time.Timer
}

// Option configures a Client.
type Option func(*Client)

// WithDialer overrides the websocket dialer (used by tests).
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithBackoff overrides the reconnect backoff base and ceiling.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = base
		c.backoffMax = max
	}
}

// New returns a Client that will connect to url and publish inbound
// messages onto b. The client owns a Cache that mirrors the last
// received server state.
func New(url string, b *bus.Bus, opts ...Option) *Client {
	c := &Client{
		url:         url,
		bus:         b,
		dialer:      gorillaDialer{d: websocket.DefaultDialer},
		cache:       NewCache(),
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		state:       StateClosed,
		After: func(d time.Duration, fn func()) *time.Timer {
			return time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registerCacheHandlers()
	return c
}

// Cache returns the client-side mirror of server state.
func (c *Client) Cache() *Cache { return c.cache }

// State returns the current transport state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the consecutive failed connection attempts since the
// last successful connect.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect starts the state machine. It returns immediately; connection
// progress is reported via connection:* bus events.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()
	go c.dial()
}

// Disconnect halts the state machine permanently: any pending reconnect
// timer is cleared and no further attempts are made. Used only on
// intentional teardown; the failure path always auto-retries.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.state = StateStopped
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) dial() {
	conn, err := c.dialer.Dial(c.url)

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateClosed
		attempts := c.attempts
		c.mu.Unlock()
		slog.Warn("connect failed", "url", c.url, "attempt", attempts+1, "err", err)
		c.scheduleReconnect()
		return
	}
	// Successful connect resets the backoff counter.
	c.state = StateOpen
	c.attempts = 0
	c.conn = conn
	c.mu.Unlock()

	slog.Info("connected", "url", c.url)
	c.bus.Emit(TopicConnectionOpen, nil)
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.onClosed(conn, err)
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) onClosed(conn Conn, err error) {
	_ = conn.Close()

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	if c.conn != conn {
		// A newer connection superseded this one; nothing to do.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	c.mu.Unlock()

	slog.Warn("connection lost", "err", err)
	c.bus.Emit(TopicConnectionClosed, nil)
	c.scheduleReconnect()
}

// scheduleReconnect arms one reconnect attempt after the current
// backoff delay, then increments the attempt counter. Retries are
// unlimited; only the delay is capped.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	delay := c.backoffDelay()
	c.attempts++
	c.timer = c.After(delay, func() {
		c.mu.Lock()
		if c.state == StateStopped {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()
		c.dial()
	})
	c.mu.Unlock()
	slog.Debug("reconnect scheduled", "delay", delay)
}

// backoffDelay computes min(base << attempts, max). Callers hold c.mu.
func (c *Client) backoffDelay() time.Duration {
	delay := c.backoffBase
	for i := 0; i < c.attempts; i++ {
		delay *= 2
		if delay >= c.backoffMax {
			return c.backoffMax
		}
	}
	if delay > c.backoffMax {
		return c.backoffMax
	}
	return delay
}

// dispatch routes one inbound frame to the event bus by message type.
// Malformed frames are dropped with a log line; one bad message never
// takes down the connection.
func (c *Client) dispatch(raw []byte) {
	msgType, err := types.PeekType(raw)
	if err != nil {
		slog.Warn("dropping malformed server message", "err", err)
		return
	}
	switch msgType {
	case types.MessageInit:
		var msg types.InitMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("dropping malformed init", "err", err)
			return
		}
		c.bus.Emit("server:init", msg)
	case types.MessageUpdate:
		var msg types.UpdateMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("dropping malformed update", "err", err)
			return
		}
		c.bus.Emit("server:update", msg)
	case types.MessageRepoChange:
		var msg types.RepoChangeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("dropping malformed repo_change", "err", err)
			return
		}
		c.bus.Emit("server:repo_change", msg)
	case types.MessageError:
		var msg types.ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("dropping malformed error message", "err", err)
			return
		}
		c.bus.Emit("server:error", msg)
	case types.MessageHotReload:
		var msg types.HotReloadMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("dropping malformed hot_reload", "err", err)
			return
		}
		c.bus.Emit("server:hot_reload", msg)
	default:
		slog.Warn("dropping server message of unknown type", "type", msgType)
	}
}
