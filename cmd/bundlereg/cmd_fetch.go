package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ryanm101/bundlereg/internal/bundle"
	"github.com/ryanm101/bundlereg/internal/fetch"
	"github.com/ryanm101/bundlereg/internal/manager"
	"github.com/ryanm101/bundlereg/internal/registry"
)

type fetchedFile struct {
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Digest      string `json:"sha256"`
}

func handleFetchCommand(ctx context.Context, args []string) {
	out, rest := parseOutputFlag(args, "")
	if len(rest) < 1 {
		fmt.Println("Usage: bundlereg fetch <filename> [-o path]")
		os.Exit(1)
	}
	filename := rest[0]
	if out == "" {
		out = filepath.Base(filename)
	}

	mgr, database := openManager(ctx)
	defer func() { _ = database.Close() }()

	p, err := mgr.GetBundle(ctx, filename)
	if err != nil {
		exitFetchError(filename, err)
	}

	f, err := writePayload(p, out)
	if err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}

	if outputCfg.JSON {
		PrintResult(f)
		return
	}
	PrintInfo("Saved %s (%d bytes, %s) to %s\n", f.Filename, f.Size, f.ContentType, f.Path)
}

func handleGetCommand(ctx context.Context, args []string) {
	dir, rest := parseOutputFlag(args, ".")
	if len(rest) < 1 {
		fmt.Println("Usage: bundlereg get <id> [-o dir]")
		os.Exit(1)
	}
	id := rest[0]

	mgr, database := openManager(ctx)
	defer func() { _ = database.Close() }()

	payloads, err := mgr.GetBundleFiles(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			PrintError("Error: bundle not found: %s\n", id)
		case errors.Is(err, manager.ErrPlatformUnsupported):
			PrintError("Error: bundle %s has no files for platform %s\n", id, mgr.Platform())
		default:
			PrintError("Error: %v\n", err)
		}
		os.Exit(1)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		PrintError("Error: failed to create %s: %v\n", dir, err)
		os.Exit(1)
	}

	files := make([]fetchedFile, 0, len(payloads))
	for _, p := range payloads {
		f, err := writePayload(p, filepath.Join(dir, filepath.Base(p.Filename)))
		if err != nil {
			PrintError("Error: %v\n", err)
			os.Exit(1)
		}
		files = append(files, f)
		PrintInfo("  %s (%d bytes)\n", f.Path, f.Size)
	}

	if outputCfg.JSON {
		PrintResult(map[string]any{"bundle": id, "platform": mgr.Platform(), "files": files})
		return
	}
	PrintInfo("Downloaded %d file(s) for %s\n", len(files), id)
}

func writePayload(p *bundle.Payload, path string) (fetchedFile, error) {
	data, err := p.Bytes()
	if err != nil {
		return fetchedFile{}, fmt.Errorf("failed to read %s: %w", p.Filename, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fetchedFile{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return fetchedFile{
		Filename:    p.Filename,
		Path:        path,
		Size:        p.Size(),
		ContentType: p.ContentType,
		Digest:      p.Digest,
	}, nil
}

func exitFetchError(filename string, err error) {
	switch {
	case fetch.IsNotFound(err):
		PrintError("Error: %s not found on the bundle server\n", filename)
	case errors.Is(err, fetch.ErrDecode):
		PrintError("Error: %s could not be decoded: %v\n", filename, err)
	default:
		PrintError("Error: failed to download %s: %v\n", filename, err)
	}
	os.Exit(1)
}
