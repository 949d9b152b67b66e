package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ryanm101/bundlereg/internal/logging"
	"github.com/ryanm101/bundlereg/internal/server"
)

func handleServeCommand(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, database := openManager(ctx)
	defer func() { _ = database.Close() }()

	mgr.Enable()

	if len(cfg.Sources) > 0 {
		if _, err := mgr.Sync(ctx); err != nil {
			logging.Warn("initial sync incomplete", "error", err)
		}
	}

	PrintInfo("bundlereg server (platform %s)\n", mgr.Platform())
	PrintInfo("   http://localhost%s\n\n", cfg.Server.Addr)

	logging.Info("server starting", "addr", cfg.Server.Addr, "bundles", mgr.Registry().Len())
	if err := server.ListenAndServe(ctx, cfg.Server.Addr, server.New(mgr)); err != nil {
		PrintError("Error: server: %v\n", err)
		os.Exit(1)
	}
	logging.Info("server stopped")
}
