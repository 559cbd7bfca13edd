// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/noema-ai/noema/pkg/config"
	"github.com/noema-ai/noema/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker: session websocket endpoint, health, and metrics",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, cfg.Telemetry.OTLPEndpoint, version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()

	eng, backends, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	rt := worker.NewRuntime(eng, backends, worker.Config{
		SessionTTL:    time.Duration(cfg.Session.TTLMillis) * time.Millisecond,
		HistoryWindow: cfg.Session.HistoryWindow,
	}, logger)
	rt.StartReaper(ctx)

	// Backend descriptors are immutable once the engine is built, so a
	// config edit cannot be applied in place. Watch anyway and tell the
	// operator a restart is needed.
	if err := config.Watch(ctx, configPath, logger, func(config.Config) {
		logger.Warn("config change detected; restart to apply backend changes")
	}); err != nil {
		logger.Warn("config watch disabled", "error", err)
	}

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           rt.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("worker listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runtime drain incomplete", "error", err)
	}
	return server.Shutdown(shutdownCtx)
}
