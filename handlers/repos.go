package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"effortsync/store"
	"effortsync/types"
	"effortsync/watcher"
	"effortsync/websocket"
)

// ReposHandler administers the set of tracked repos at runtime. Adding
// or removing a repo drives a repo_change broadcast to every client.
type ReposHandler struct {
	watcher *watcher.Watcher
	store   *store.Store
	hub     *websocket.Hub
}

func NewReposHandler(w *watcher.Watcher, st *store.Store, hub *websocket.Hub) *ReposHandler {
	return &ReposHandler{watcher: w, store: st, hub: hub}
}

type repoInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	WorkEfforts int    `json:"workEfforts"`
	LastError   string `json:"lastError,omitempty"`
}

// List returns the tracked repos with current record counts.
func (h *ReposHandler) List(c *gin.Context) {
	repos := h.watcher.Repos()
	out := make([]repoInfo, 0, len(repos))
	for name, path := range repos {
		info := repoInfo{Name: name, Path: path}
		if state, ok := h.store.GetState(name); ok {
			info.WorkEfforts = len(state.WorkEfforts)
			info.LastError = state.LastError
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(out))
}

// Add starts tracking a new repo directory.
func (h *ReposHandler) Add(c *gin.Context) {
	var req types.RepoRef
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Path == "" {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "name and path are required"))
		return
	}
	if err := h.watcher.AddRepo(req.Name, req.Path); err != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.ErrorCodeConflict, err.Error()))
		return
	}
	h.hub.BroadcastRepoChange(types.RepoActionAdded, req.Name, h.repoRefs())
	c.JSON(http.StatusCreated, types.NewSuccessResponse(req))
}

// Remove stops tracking a repo and drops its cached state.
func (h *ReposHandler) Remove(c *gin.Context) {
	name := c.Param("name")
	if _, ok := h.watcher.Repos()[name]; !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "repo not tracked"))
		return
	}
	h.watcher.RemoveRepo(name)
	h.store.RemoveRepo(name)
	h.hub.BroadcastRepoChange(types.RepoActionRemoved, name, h.repoRefs())
	c.JSON(http.StatusOK, types.NewSuccessResponse(gin.H{"message": "repo removed"}))
}

func (h *ReposHandler) repoRefs() []types.RepoRef {
	repos := h.watcher.Repos()
	refs := make([]types.RepoRef, 0, len(repos))
	for name, path := range repos {
		refs = append(refs, types.RepoRef{Name: name, Path: path})
	}
	return refs
}
