package main

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/baggage"

	"github.com/ryanm101/bundlereg/internal/config"
	"github.com/ryanm101/bundlereg/internal/db"
	"github.com/ryanm101/bundlereg/internal/fetch"
	"github.com/ryanm101/bundlereg/internal/logging"
	"github.com/ryanm101/bundlereg/internal/manager"
	"github.com/ryanm101/bundlereg/internal/tracing"
)

const version = "0.3.0"

var cfg *config.Config

func main() {
	ctx := context.Background()

	m, _ := baggage.NewMember("app.version", version)
	b, _ := baggage.New(m)
	ctx = baggage.ContextWithBaggage(ctx, b)

	var err error
	cfg, err = config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	logging.Setup(logging.Config{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
		Output: os.Stderr,
	})

	shutdown, err := tracing.Setup(ctx, tracing.DefaultConfig())
	if err != nil {
		logging.Error("failed to setup tracing", "error", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			logging.Error("failed to shutdown tracing", "error", err)
		}
	}()

	// Parse global flags (--json, --quiet)
	args := parseGlobalFlags(os.Args[1:])

	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "sync":
		handleSyncCommand(ctx, args[1:])
	case "bundles":
		if len(args) < 2 {
			fmt.Println("Usage: bundlereg bundles <command>")
			fmt.Println("Commands: list, info")
			os.Exit(1)
		}
		handleBundlesCommand(ctx, args[1:])
	case "fetch":
		if len(args) < 2 {
			fmt.Println("Usage: bundlereg fetch <filename> [-o path]")
			os.Exit(1)
		}
		handleFetchCommand(ctx, args[1:])
	case "get":
		if len(args) < 2 {
			fmt.Println("Usage: bundlereg get <id> [-o dir]")
			os.Exit(1)
		}
		handleGetCommand(ctx, args[1:])
	case "platform":
		handlePlatformCommand()
	case "sources":
		handleSourcesCommand(ctx)
	case "config":
		handleConfigCommand(args[1:])
	case "serve":
		handleServeCommand(ctx)
	case "browse":
		handleBrowseCommand(ctx)
	case "version":
		PrintResult(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("bundlereg - content bundle registry")
	fmt.Println()
	fmt.Println("Usage: bundlereg [global options] <command> [options]")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --json                     Output in JSON format")
	fmt.Println("  --quiet, -q                Suppress non-error output")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  sync [url...]              Sync metadata from configured (or given) sources")
	fmt.Println("  bundles list [--all]       List bundles for this platform")
	fmt.Println("  bundles info <id>          Show bundle details")
	fmt.Println("  fetch <filename> [-o path] Download one bundle file")
	fmt.Println("  get <id> [-o dir]          Download every file of a bundle")
	fmt.Println("  platform                   Show the platform identifier")
	fmt.Println("  sources                    Show per-source sync history")
	fmt.Println("  config show                Show active configuration")
	fmt.Println("  config init                Initialize example config")
	fmt.Println("  serve                      Run the HTTP server")
	fmt.Println("  browse                     Interactive bundle browser")
	fmt.Println("  version                    Show version")
	fmt.Println("  help                       Show this help")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  BUNDLEREG_CONFIG           Config file path")
	fmt.Println("  BUNDLEREG_DB               Database path (default: bundlereg.db)")
	fmt.Println("  BUNDLEREG_SOURCES          Comma-separated metadata source URLs")
	fmt.Println("  BUNDLEREG_BUNDLE_ENDPOINT  Bundle URL template")
	fmt.Println("  BUNDLEREG_PLATFORM         Platform override")
	fmt.Println("  BUNDLEREG_ADDR             Server listen address")
}

func openDB(ctx context.Context) (*db.DB, error) {
	return db.Open(ctx, cfg.GetDBPath())
}

func newFetcher() *fetch.HTTPFetcher {
	return fetch.NewHTTPFetcher(fetch.HTTPConfig{
		Timeout:   cfg.GetTimeout(),
		RateLimit: cfg.HTTP.RateLimit,
		UserAgent: cfg.HTTP.UserAgent,
	})
}

// openManager opens the snapshot database and returns a Manager restored from it.
// The caller closes the returned database.
func openManager(ctx context.Context, opts ...manager.Option) (*manager.Manager, *db.DB) {
	if err := cfg.Validate(); err != nil {
		PrintError("Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	database, err := openDB(ctx)
	if err != nil {
		PrintError("Error: failed to open database: %v\n", err)
		os.Exit(1)
	}

	opts = append(opts, manager.WithStore(database))
	mgr := manager.New(cfg, newFetcher(), opts...)
	if _, err := mgr.Restore(ctx); err != nil {
		logging.Warn("failed to restore registry snapshot", "error", err)
	}
	return mgr, database
}
