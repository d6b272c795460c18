package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"effortsync/config"
	"effortsync/handlers"
	"effortsync/middleware"
	"effortsync/pkg/appenv"
	"effortsync/pkg/logging"
	"effortsync/store"
	"effortsync/watcher"
	"effortsync/websocket"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (default "+config.DefaultPath+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}

	st := store.New()

	w, err := watcher.New(cfg.Debounce())
	if err != nil {
		logger.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	hub := websocket.NewHub(st, appenv.IsDevelopment())

	// Pump filesystem updates through the store into the hub. Every scan
	// result becomes an authoritative update broadcast; scans that hit parse
	// errors additionally surface as error frames. The pump must be running
	// before any repo is added: AddRepo emits an initial snapshot, and
	// without a consumer enough configured repos would fill the channel.
	go func() {
		for upd := range w.Updates() {
			st.ApplyUpdate(upd.Repo, upd.WorkEfforts, upd.Stats, upd.Err)
			hub.BroadcastUpdate(upd.Repo, upd.WorkEfforts, upd.Stats, upd.Err)
			if upd.Err != "" {
				logger.Warn("repo scan degraded", "repo", upd.Repo, "error", upd.Err)
				hub.BroadcastError(upd.Repo, upd.Err)
			}
		}
	}()
	w.Start()

	for _, repo := range cfg.Repos {
		if err := w.AddRepo(repo.Name, repo.Path); err != nil {
			logger.Error("failed to track repo", "repo", repo.Name, "path", repo.Path, "error", err)
			os.Exit(1)
		}
		logger.Info("tracking repo", "repo", repo.Name, "path", repo.Path)
	}

	if os.Getenv("GIN_MODE") == "release" || strings.ToLower(os.Getenv("APP_ENV")) == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(gin.Recovery())

	// Configure trusted proxies for correct client IP handling in production
	trustedProxies := os.Getenv("TRUSTED_PROXIES")
	if trustedProxies != "" {
		parts := strings.Split(trustedProxies, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := r.SetTrustedProxies(parts); err != nil {
			logger.Error("invalid TRUSTED_PROXIES", "error", err)
			os.Exit(1)
		}
	} else {
		// Default to loopback only; override via TRUSTED_PROXIES in production
		_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	}

	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RateLimitMiddleware())

	reposHandler := handlers.NewReposHandler(w, st, hub)
	healthHandler := handlers.NewHealthHandler(w)

	r.GET("/health", healthHandler.Check)
	r.GET("/ws", websocket.ServeWS(hub))
	r.GET("/repos", reposHandler.List)
	r.POST("/repos", reposHandler.Add)
	r.DELETE("/repos/:name", reposHandler.Remove)

	logger.Info("starting server", "addr", cfg.Addr(), "repos", len(cfg.Repos))
	if err := r.Run(cfg.Addr()); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
