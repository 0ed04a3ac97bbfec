package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryan-buckman/rssbox/internal/config"
	"github.com/bryan-buckman/rssbox/internal/database"
	"github.com/bryan-buckman/rssbox/internal/dispatch"
	"github.com/bryan-buckman/rssbox/internal/registry"
	"github.com/bryan-buckman/rssbox/internal/rss"
	"github.com/bryan-buckman/rssbox/internal/server"
	"github.com/bryan-buckman/rssbox/internal/syncer"
	"github.com/bryan-buckman/rssbox/internal/trash"
)

const loopQueue = 256

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg == nil {
		return
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(cfg); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Opening database", "driver", cfg.DBDriver)
	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := trash.Load(ctx, db)
	if err != nil {
		return err
	}
	slog.Info("Loaded removed-item cache", "entries", removed.Len(), "size", removed.SizeString())

	loop := dispatch.NewLoop(loopQueue)
	defer loop.Stop()

	reg := registry.New(loop, db, removed)
	if err := reg.Load(ctx); err != nil {
		return err
	}

	settings := cfg.Settings
	fetcher := rss.NewFetcher(rss.FetcherConfig{
		Timeout: settings.Sync.TimeoutDuration(),
		Proxy: rss.ProxyConfig{
			HTTPHost:   settings.Proxy.HTTP.Host,
			HTTPPort:   settings.Proxy.HTTP.Port,
			Socks5Host: settings.Proxy.Socks5.Host,
			Socks5Port: settings.Proxy.Socks5.Port,
		},
		UserAgent: cfg.UserAgent,
		HostDelay: rss.DelayBetweenDomainRequests,
	}, removed)

	board := server.NewBoard(loop)
	syncService := syncer.New(fetcher, reg, board.Notify)
	poller := syncer.NewPoller(syncService, syncer.PollerConfig{
		Enabled:   settings.Sync.Auto,
		Interval:  settings.Sync.IntervalDuration(),
		OnStartup: settings.Sync.OnStartup,
	})

	srv := server.New(server.Deps{
		Registry:     reg,
		Syncer:       syncService,
		Trash:        removed,
		Board:        board,
		SettingsPath: cfg.SettingsFile,
	})
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	poller.Start(ctx)

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case err := <-errCh:
		poller.Stop()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}
	poller.Stop()
	return nil
}
