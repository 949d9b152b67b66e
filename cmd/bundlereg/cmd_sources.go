package main

import (
	"context"
	"os"
	"runtime"
	"strconv"

	"github.com/ryanm101/bundlereg/internal/platform"
)

func handlePlatformCommand() {
	id := platform.Detect(cfg.Platform)
	if outputCfg.JSON {
		PrintResult(map[string]string{
			"platform": id,
			"reported": platform.Reported(),
			"override": cfg.Platform,
			"goos":     runtime.GOOS,
		})
		return
	}
	PrintResult(id)
}

func handleSourcesCommand(ctx context.Context) {
	database, err := openDB(ctx)
	if err != nil {
		PrintError("Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	syncs, err := database.ListSyncs(ctx)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}

	if outputCfg.JSON {
		PrintResult(syncs)
		return
	}

	if len(syncs) == 0 {
		PrintInfo("No syncs recorded. Run 'bundlereg sync' first.\n")
		return
	}

	rows := make([][]string, 0, len(syncs))
	for _, s := range syncs {
		status := "ok"
		if s.LastError != "" {
			status = s.LastError
		}
		rows = append(rows, []string{
			s.URL,
			s.LastSyncedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(s.Entries),
			status,
		})
	}
	PrintTable([]string{"SOURCE", "LAST SYNC", "ENTRIES", "STATUS"}, rows)
}
