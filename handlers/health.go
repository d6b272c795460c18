package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"effortsync/watcher"
)

// HealthHandler reports process liveness for uptime monitoring and load
// balancers, plus the number of repos currently tracked so a glance at
// /health shows whether the watcher came up with its configured set.
type HealthHandler struct {
	watcher *watcher.Watcher
	started time.Time
}

func NewHealthHandler(w *watcher.Watcher) *HealthHandler {
	return &HealthHandler{watcher: w, started: time.Now()}
}

// Check is intentionally lightweight and unauthenticated.
func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"repos":         len(h.watcher.Repos()),
		"uptimeSeconds": int(time.Since(h.started).Seconds()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}
