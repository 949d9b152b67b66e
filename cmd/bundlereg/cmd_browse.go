package main

import (
	"context"
	"io"
	"os"

	"github.com/ryanm101/bundlereg/internal/logging"
	"github.com/ryanm101/bundlereg/internal/tui"
)

func handleBrowseCommand(ctx context.Context) {
	// The alt screen owns the terminal; log lines would corrupt it.
	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: "error", Output: io.Discard})

	mgr, database := openManager(ctx)
	defer func() { _ = database.Close() }()

	mgr.Enable()

	if err := tui.Run(ctx, mgr); err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}
}
