package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triviaa-companion/internal/api"
	"triviaa-companion/internal/backend"
	"triviaa-companion/internal/cache"
	"triviaa-companion/internal/config"
	"triviaa-companion/internal/logging"
	"triviaa-companion/internal/session"
	"triviaa-companion/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_companion", "service", "triviaa-companion", "http_addr", cfg.HTTPAddr, "backend", cfg.BackendBaseURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(logger, cfg.StorePath)
	if err != nil {
		logger.Error("store_open_failed", "path", cfg.StorePath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// response cache is optional; the companion runs fine without redis
	var cacheClient *cache.Client
	if cfg.RedisDSN != "" {
		cacheClient, err = cache.New(cfg.RedisDSN)
		if err != nil {
			logger.Warn("redis_connect_failed_continuing_without_cache", "error", err)
			cacheClient = nil
		} else {
			logger.Info("response_cache_enabled")
		}
	}

	client := backend.NewClient(logger, cfg.BackendBaseURL, cacheClient)

	handle := session.NewHandle(logger, st)
	handle.Initialize(ctx)
	if user := handle.Current(); user != nil {
		logger.Info("cached_session_restored", "user_id", user.UserID)
	} else {
		logger.Info("no_cached_session")
	}

	// The auth provider runs in the UI process; the fail-closed path here
	// drops the local session and lets the UI observe the 401.
	auth := session.AuthFunc(func(ctx context.Context) error {
		logger.Warn("auth_sign_out_requested")
		if _, err := st.ClearSession(ctx); err != nil {
			return err
		}
		handle.Reset()
		return nil
	})

	bootstrap := session.NewBootstrap(logger, st, handle, client, auth)
	poller := session.NewRetryPoller(logger, session.PollConfig{
		Interval:    cfg.PollInterval,
		MaxInterval: cfg.PollMaxInterval,
		Multiplier:  2.0,
		MaxAttempts: cfg.PollMaxAttempts,
	})

	srv := api.NewServer(logger, cfg, st, handle, client, bootstrap, poller)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("companion_started", "addr", cfg.HTTPAddr)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	poller.Cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	if err := cacheClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	}

	if err := st.Close(); err != nil {
		logger.Warn("store_close_error", "error", err)
	} else {
		logger.Info("store_closed")
	}

	logger.Info("companion_stopped")
}
