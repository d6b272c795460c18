package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"effortsync/models"
	"effortsync/store"
	"effortsync/types"
)

// Connection represents one websocket client. Connections are
// ephemeral; the server holds no cross-restart identity for them.
type Connection struct {
	ID          string
	hub         *Hub
	conn        wsConn
	send        chan []byte
	connectedAt time.Time

	// subscribed is owned by the hub goroutine. An empty set means the
	// connection receives updates for every repo.
	subscribed map[string]bool
}

type subscribeReq struct {
	client *Connection
	repos  []string
	add    bool
}

type broadcastReq struct {
	// repo scopes delivery to subscribers of that repo; empty means all
	// connections regardless of subscription.
	repo    string
	payload []byte
}

// Hub manages active connections and fans out repo state changes. All
// connection bookkeeping is owned by the run loop, so no locks are
// needed; broadcasting never blocks on a slow client.
type Hub struct {
	register    chan *Connection
	unregister  chan *Connection
	subscribe   chan subscribeReq
	broadcast   chan broadcastReq
	clients     map[*Connection]bool
	store       *store.Store
	development bool
}

// NewHub creates and starts a Hub backed by the given state store. The
// store supplies the init snapshot for each new connection. When
// development is true, hot_reload messages are forwarded to clients.
func NewHub(st *store.Store, development bool) *Hub {
	h := &Hub{
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		subscribe:   make(chan subscribeReq),
		broadcast:   make(chan broadcastReq, 64),
		clients:     make(map[*Connection]bool),
		store:       st,
		development: development,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			// The init snapshot is the synchronization bootstrap: the
			// client never needs a second retrieval path. Enqueued here
			// so it is ordered before any subsequent update broadcast.
			init := types.InitMessage{Type: types.MessageInit, Repos: h.store.Snapshot()}
			if payload, err := json.Marshal(init); err == nil {
				h.enqueue(c, payload)
			} else {
				slog.Error("marshal init message", "err", err)
			}
			slog.Info("client connected", "connection", c.ID, "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				slog.Info("client disconnected", "connection", c.ID, "clients", len(h.clients))
			}

		case req := <-h.subscribe:
			if !h.clients[req.client] {
				continue
			}
			for _, repo := range req.repos {
				if req.add {
					req.client.subscribed[repo] = true
				} else {
					delete(req.client.subscribed, repo)
				}
			}

		case req := <-h.broadcast:
			for c := range h.clients {
				if req.repo != "" && len(c.subscribed) > 0 && !c.subscribed[req.repo] {
					continue
				}
				h.enqueue(c, req.payload)
			}
		}
	}
}

// enqueue hands a payload to a connection's writer without blocking.
// A client whose buffer is full is dropped; its writer loop exits on
// the closed channel and the reader triggers cleanup.
func (h *Hub) enqueue(c *Connection, payload []byte) {
	select {
	case c.send <- payload:
	default:
		slog.Warn("dropping slow client", "connection", c.ID)
		delete(h.clients, c)
		close(c.send)
	}
}

// BroadcastUpdate pushes a full-replacement snapshot for one repo to
// every subscribed connection.
func (h *Hub) BroadcastUpdate(repo string, workEfforts []models.WorkEffort, stats models.Stats, errMsg string) {
	h.send(repo, types.UpdateMessage{
		Type:        types.MessageUpdate,
		Repo:        repo,
		WorkEfforts: workEfforts,
		Stats:       stats,
		Error:       errMsg,
	})
}

// BroadcastRepoChange announces a repo added to or removed from the
// tracked set. Sent to all connections regardless of subscription so
// every client can refresh its repo list.
func (h *Hub) BroadcastRepoChange(action, repo string, repos []types.RepoRef) {
	h.send("", types.RepoChangeMessage{
		Type:   types.MessageRepoChange,
		Action: action,
		Repo:   repo,
		Repos:  repos,
	})
}

// BroadcastError surfaces a parse/observer failure scoped to one repo.
// Other repos are unaffected.
func (h *Hub) BroadcastError(repo, message string) {
	h.send(repo, types.ErrorMessage{
		Type:    types.MessageError,
		Repo:    repo,
		Message: message,
	})
}

// BroadcastHotReload tells clients a served asset changed. Development
// convenience only; a no-op otherwise.
func (h *Hub) BroadcastHotReload(file string) {
	if !h.development {
		return
	}
	h.send("", types.HotReloadMessage{Type: types.MessageHotReload, File: file})
}

func (h *Hub) send(repo string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal broadcast message", "err", err)
		return
	}
	h.broadcast <- broadcastReq{repo: repo, payload: payload}
}

func newConnection(h *Hub, conn wsConn) *Connection {
	return &Connection{
		ID:          uuid.NewString(),
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 256),
		connectedAt: time.Now(),
		subscribed:  make(map[string]bool),
	}
}
