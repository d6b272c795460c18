package client

import (
	"sync"

	"effortsync/bus"
	"effortsync/models"
	"effortsync/store"
	"effortsync/types"
)

// Cache is the client-side projection of server state: the last
// RepoState received per repo. It is eventually consistent by
// construction; the server's snapshots are authoritative.
type Cache struct {
	mu sync.Mutex
	st *store.Store
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{st: store.New()}
}

// State returns the cached state for one repo.
func (c *Cache) State(repo string) (models.RepoState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.GetState(repo)
}

// Snapshot returns the cached state of all repos.
func (c *Cache) Snapshot() map[string]models.RepoState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.Snapshot()
}

// registerCacheHandlers wires the cache to the transport's server:*
// topics. Change events derived from updates are re-emitted on the bus
// under their own kinds (workeffort:started, ticket:completed, ...),
// which is what the notification layer subscribes to.
func (c *Client) registerCacheHandlers() {
	c.bus.On("server:init", func(ev bus.Event) {
		msg, ok := ev.Data.(types.InitMessage)
		if !ok {
			return
		}
		c.cache.replaceAll(msg.Repos)
	})
	c.bus.On("server:update", func(ev bus.Event) {
		msg, ok := ev.Data.(types.UpdateMessage)
		if !ok {
			return
		}
		for _, change := range c.cache.applyUpdate(msg) {
			c.bus.Emit(string(change.Kind), change)
		}
	})
	c.bus.On("server:repo_change", func(ev bus.Event) {
		msg, ok := ev.Data.(types.RepoChangeMessage)
		if !ok {
			return
		}
		if msg.Action == types.RepoActionRemoved && msg.Repo != "" {
			c.cache.removeRepo(msg.Repo)
		}
	})
	c.bus.On("server:error", func(ev bus.Event) {
		msg, ok := ev.Data.(types.ErrorMessage)
		if !ok {
			return
		}
		c.cache.recordError(msg.Repo, msg.Message)
	})
}

// replaceAll discards every cached repo and installs the init snapshot
// wholesale. No change events are derived: a fresh init after reconnect
// is a bootstrap, not a delta, and replaying it as transitions would
// re-notify the user of everything they already saw.
func (c *Cache) replaceAll(repos map[string]models.RepoState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = store.New()
	for name, state := range repos {
		// LastError rides along so a degraded repo keeps its indicator
		// across reconnects.
		c.st.ApplyUpdate(name, state.WorkEfforts, state.Stats, state.LastError)
	}
}

// applyUpdate installs one full-replacement repo snapshot and returns
// the change events derived against the previously cached snapshot.
func (c *Cache) applyUpdate(msg types.UpdateMessage) []models.ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.ApplyUpdate(msg.Repo, msg.WorkEfforts, msg.Stats, msg.Error)
}

func (c *Cache) removeRepo(repo string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.RemoveRepo(repo)
}

func (c *Cache) recordError(repo, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.ApplyUpdate(repo, nil, models.Stats{}, message)
}
