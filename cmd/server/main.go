// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/roomwatch/internal/api"
	"github.com/tomtom215/roomwatch/internal/config"
	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/monitor"
	"github.com/tomtom215/roomwatch/internal/notifier"
	"github.com/tomtom215/roomwatch/internal/store"
	"github.com/tomtom215/roomwatch/internal/supervisor"
	"github.com/tomtom215/roomwatch/internal/supervisor/services"
	"github.com/tomtom215/roomwatch/internal/vendor"
	"github.com/tomtom215/roomwatch/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().
		Str("store_path", cfg.Store.Path).
		Bool("store_in_memory", cfg.Store.InMemory).
		Dur("dedup_window", cfg.Dedup.Window).
		Int("max_reconnect", cfg.Room.MaxReconnect).
		Msg("Starting Roomwatch")

	if !cfg.Vendor.Enabled() {
		logging.Warn().Msg("Vendor API or chat URL not configured; room joins will fail")
	}

	if err := run(cfg); err != nil {
		logging.Error().Err(err).Msg("Roomwatch failed")
		os.Exit(1)
	}
}

// run builds and serves everything. Its deferred closes finish before main
// sets the exit status.
func run(cfg *config.Config) error {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	orch, err := monitor.New(cfg, st, vendor.NewGateway(cfg.Vendor), notifier.NewClient(cfg.Notifier))
	if err != nil {
		return fmt.Errorf("build monitoring components: %w", err)
	}
	defer func() {
		if err := orch.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing message bus")
		}
	}()

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = orch.SeedSessions(seedCtx)
	seedCancel()
	if err != nil {
		return fmt.Errorf("seed sessions: %w", err)
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFromConfig(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	svcs := orch.Services()
	for _, svc := range svcs.Core {
		tree.AddCoreService(svc)
	}
	if cfg.Store.GCInterval > 0 && !cfg.Store.InMemory {
		tree.AddCoreService(services.NewStoreGCService(st, cfg.Store.GCInterval))
	}
	for _, svc := range svcs.Monitoring {
		tree.AddMonitoringService(svc)
	}

	hub := websocket.NewHub()
	orch.SetBroadcaster(hub)
	tree.AddAPIService(hub)

	handler := api.NewHandler(orch).WithEventFeed(hub, cfg.Server.CORSOrigins)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromServer(cfg.Server)))
	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Ops API configured")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	logging.Info().Msg("Roomwatch stopped")
	return nil
}
