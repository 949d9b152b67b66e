package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ryanm101/bundlereg/internal/registry"
)

func handleBundlesCommand(ctx context.Context, args []string) {
	switch args[0] {
	case "list":
		all := slices.Contains(args[1:], "--all")
		listBundles(ctx, all)
	case "info":
		if len(args) < 2 {
			fmt.Println("Usage: bundlereg bundles info <id>")
			os.Exit(1)
		}
		showBundle(ctx, args[1])
	default:
		fmt.Printf("Unknown bundles command: %s\n", args[0])
		os.Exit(1)
	}
}

func listBundles(ctx context.Context, all bool) {
	mgr, database := openManager(ctx)
	defer func() { _ = database.Close() }()

	entries := mgr.CompatibleBundles()
	if all {
		entries = mgr.AllBundles()
	}

	if outputCfg.JSON {
		PrintResult(entries)
		return
	}

	if len(entries) == 0 {
		if mgr.Registry().Len() == 0 {
			PrintInfo("No bundles known. Run 'bundlereg sync' first.\n")
		} else {
			PrintInfo("No bundles for platform %s. Use --all to list every bundle.\n", mgr.Platform())
		}
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		files := "-"
		if f := e.Files(mgr.Platform()); len(f) > 0 {
			files = fmt.Sprintf("%d", len(f))
		}
		rows = append(rows, []string{
			e.ID,
			e.Name,
			e.Author,
			files,
			formatUpdated(e.LastUpdated),
		})
	}
	PrintTable([]string{"ID", "NAME", "AUTHOR", "FILES", "UPDATED"}, rows)
}

func showBundle(ctx context.Context, id string) {
	mgr, database := openManager(ctx)
	defer func() { _ = database.Close() }()

	md, err := mgr.Lookup(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			PrintError("Error: bundle not found: %s\n", id)
		} else {
			PrintError("Error: %v\n", err)
		}
		os.Exit(1)
	}

	if outputCfg.JSON {
		PrintResult(registry.Entry{ID: id, BundleMetadata: md})
		return
	}

	fmt.Printf("Bundle: %s\n", id)
	fmt.Printf("  Name:        %s\n", md.Name)
	fmt.Printf("  Author:      %s\n", md.Author)
	if md.Description != "" {
		fmt.Printf("  Description: %s\n", md.Description)
	}
	if len(md.Tags) > 0 {
		fmt.Printf("  Tags:        %s\n", strings.Join(md.Tags, ", "))
	}
	fmt.Printf("  Updated:     %s\n", formatUpdated(md.LastUpdated))
	if msg := md.ErrorMessage(); msg != "" {
		fmt.Printf("  Error:       %s\n", msg)
	}

	platforms := make([]string, 0, len(md.Bundles))
	for p := range md.Bundles {
		platforms = append(platforms, p)
	}
	slices.Sort(platforms)

	fmt.Println("  Platforms:")
	for _, p := range platforms {
		marker := " "
		if p == mgr.Platform() {
			marker = "*"
		}
		fmt.Printf("   %s %s: %s\n", marker, p, strings.Join(md.Bundles[p], ", "))
	}
}

// formatUpdated renders lastUpdated, which sources publish as unix seconds.
func formatUpdated(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04")
}
