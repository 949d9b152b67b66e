package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ryanm101/bundlereg/internal/manager"
	"github.com/ryanm101/bundlereg/internal/metasync"
)

func handleSyncCommand(ctx context.Context, args []string) {
	sources := cfg.Sources
	if len(args) > 0 {
		sources = args
	}
	if len(sources) == 0 {
		PrintError("Error: no metadata sources configured (set sources or BUNDLEREG_SOURCES)\n")
		os.Exit(1)
	}

	var bar *progressbar.ProgressBar
	if !outputCfg.Quiet && !outputCfg.JSON {
		bar = progressbar.Default(int64(len(sources)), "Syncing")
	}

	mgr, database := openManager(ctx, manager.WithSyncProgress(func(metasync.SourceResult) {
		if bar != nil {
			_ = bar.Add(1)
		}
	}))
	defer func() { _ = database.Close() }()

	report, syncErr := mgr.SyncAll(ctx, sources)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	if outputCfg.JSON {
		type sourceJSON struct {
			URL       string `json:"url"`
			Entries   int    `json:"entries"`
			Added     int    `json:"added"`
			Replaced  int    `json:"replaced"`
			Discarded int    `json:"discarded"`
			Error     string `json:"error,omitempty"`
		}
		out := make([]sourceJSON, 0, len(report.Sources))
		for _, src := range report.Sources {
			s := sourceJSON{
				URL:       src.URL,
				Entries:   src.Entries,
				Added:     src.Added,
				Replaced:  src.Replaced,
				Discarded: src.Discarded,
			}
			if src.Err != nil {
				s.Error = src.Err.Error()
			}
			out = append(out, s)
		}
		PrintResult(map[string]any{
			"sources":  out,
			"bundles":  mgr.Registry().Len(),
			"duration": report.Duration.String(),
		})
	} else if !outputCfg.Quiet {
		rows := make([][]string, 0, len(report.Sources))
		for _, src := range report.Sources {
			status := "ok"
			if src.Err != nil {
				status = src.Err.Error()
			}
			rows = append(rows, []string{
				src.URL,
				strconv.Itoa(src.Entries),
				strconv.Itoa(src.Added),
				strconv.Itoa(src.Replaced),
				strconv.Itoa(src.Discarded),
				status,
			})
		}
		PrintTable([]string{"SOURCE", "ENTRIES", "ADDED", "REPLACED", "DISCARDED", "STATUS"}, rows)
		fmt.Printf("\n%d bundles known (%s)\n", mgr.Registry().Len(), report.Duration.Round(time.Millisecond))
	}

	if syncErr != nil {
		PrintError("Error: sync failed: %v\n", syncErr)
		os.Exit(1)
	}
}
