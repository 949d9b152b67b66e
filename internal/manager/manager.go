// Package manager ties the metadata registry and the bundle cache to one session.
//
// A Manager is constructed explicitly and handed to whatever hosts it (CLI,
// HTTP server, tests); nothing in the registry or cache is package-global.
package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/ryanm101/bundlereg/internal/bundle"
	"github.com/ryanm101/bundlereg/internal/config"
	"github.com/ryanm101/bundlereg/internal/db"
	"github.com/ryanm101/bundlereg/internal/fetch"
	"github.com/ryanm101/bundlereg/internal/logging"
	"github.com/ryanm101/bundlereg/internal/metasync"
	"github.com/ryanm101/bundlereg/internal/metrics"
	"github.com/ryanm101/bundlereg/internal/platform"
	"github.com/ryanm101/bundlereg/internal/registry"
	"github.com/ryanm101/bundlereg/internal/tracing"
)

// ErrPlatformUnsupported is returned when a bundle has no variant for the running platform.
var ErrPlatformUnsupported = errors.New("bundle has no variant for this platform")

// Store persists the registry between sessions.
type Store interface {
	SaveMetadata(ctx context.Context, entries []registry.Entry) (int, error)
	LoadMetadata(ctx context.Context) ([]registry.Entry, error)
	RecordSync(ctx context.Context, url string, entries int, syncErr error) error
}

var _ Store = (*db.DB)(nil)

// Option configures a Manager.
type Option func(*options)

type options struct {
	store    Store
	decoder  bundle.Decoder
	progress func(metasync.SourceResult)
}

// WithStore enables snapshot persistence.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithDecoder sets the payload decoder used by the bundle cache.
func WithDecoder(d bundle.Decoder) Option {
	return func(o *options) { o.decoder = d }
}

// WithSyncProgress registers a per-source sync callback.
func WithSyncProgress(fn func(metasync.SourceResult)) Option {
	return func(o *options) { o.progress = fn }
}

// Manager owns the metadata registry and the bundle cache for one session.
type Manager struct {
	cfg      *config.Config
	platform string
	registry *registry.Registry
	syncer   *metasync.Syncer
	cache    *bundle.Cache
	store    Store
}

// New builds a Manager from cfg, downloading through f.
func New(cfg *config.Config, f fetch.Fetcher, opts ...Option) *Manager {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		cfg:      cfg,
		platform: platform.Detect(cfg.Platform),
		registry: registry.New(),
		store:    o.store,
	}

	var syncOpts []metasync.Option
	if o.progress != nil {
		syncOpts = append(syncOpts, metasync.WithProgress(o.progress))
	}
	m.syncer = metasync.New(f, m.registry, syncOpts...)

	var cacheOpts []bundle.Option
	if o.decoder != nil {
		cacheOpts = append(cacheOpts, bundle.WithDecoder(o.decoder))
	}
	m.cache = bundle.NewCache(f, m.bundleURL, cacheOpts...)

	return m
}

func (m *Manager) bundleURL(filename string) string {
	return fetch.BundleURL(m.cfg.BundleEndpoint, m.platform, filename)
}

// Platform returns the platform identifier detected at construction.
func (m *Manager) Platform() string {
	return m.platform
}

// Registry exposes the underlying metadata registry.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Cache exposes the underlying bundle cache.
func (m *Manager) Cache() *bundle.Cache {
	return m.cache
}

// Enable is the session start hook. It discards payloads left over from a
// previous session when unload_on_enable is set.
func (m *Manager) Enable() {
	if m.cfg.UnloadOnEnable {
		m.cache.UnloadAll()
	}
}

// Sync merges metadata from the configured sources.
func (m *Manager) Sync(ctx context.Context) (*metasync.Report, error) {
	return m.SyncAll(ctx, m.cfg.Sources)
}

// SyncAll merges metadata from sources. With a store configured, each source
// outcome is recorded and the merged registry is written back, even when a
// source failed.
func (m *Manager) SyncAll(ctx context.Context, sources []string) (*metasync.Report, error) {
	report, syncErr := m.syncer.SyncAll(ctx, sources)
	if m.store == nil {
		return report, syncErr
	}

	for _, src := range report.Sources {
		if err := m.store.RecordSync(ctx, src.URL, src.Entries, src.Err); err != nil {
			logging.Warn("failed to record sync", "source", src.URL, "error", err)
		}
	}
	if err := m.Persist(ctx); err != nil {
		return report, errors.Join(syncErr, err)
	}
	return report, syncErr
}

// Restore merges the stored snapshot into the registry. Stored records obey
// the same freshness rule as any other source.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}

	entries, err := m.store.LoadMetadata(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to restore registry: %w", err)
	}

	// Merge sorts ids; feed one at a time to keep the stored iteration order.
	for _, e := range entries {
		m.registry.Merge(map[string]registry.BundleMetadata{e.ID: e.BundleMetadata})
	}
	metrics.RegistryEntries.Set(float64(m.registry.Len()))

	logging.Debug("registry restored", "entries", len(entries))
	return len(entries), nil
}

// Persist writes the registry snapshot to the store.
func (m *Manager) Persist(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	written, err := m.store.SaveMetadata(ctx, m.registry.All())
	if err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}
	logging.Debug("registry persisted", "written", written)
	return nil
}

// Lookup returns the metadata for a bundle identifier.
func (m *Manager) Lookup(id string) (registry.BundleMetadata, error) {
	return m.registry.Lookup(id)
}

// CompatibleBundles returns the bundles that have a variant for this platform.
func (m *Manager) CompatibleBundles() []registry.Entry {
	return m.registry.Compatible(m.platform)
}

// AllBundles returns every known bundle.
func (m *Manager) AllBundles() []registry.Entry {
	return m.registry.All()
}

// GetBundle returns the payload for filename, from cache or network.
func (m *Manager) GetBundle(ctx context.Context, filename string) (*bundle.Payload, error) {
	return m.cache.GetBundle(ctx, filename)
}

// GetBundleFiles fetches, in order, every file of the bundle's variant for this platform.
func (m *Manager) GetBundleFiles(ctx context.Context, id string) ([]*bundle.Payload, error) {
	ctx, span := tracing.StartSpan(ctx, "manager.GetBundleFiles",
		tracing.WithAttributes(tracing.AttrBundleID.String(id), tracing.AttrPlatform.String(m.platform)),
	)
	defer span.End()

	md, err := m.registry.Lookup(id)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if !md.SupportsPlatform(m.platform) {
		err := fmt.Errorf("%s on %s: %w", id, m.platform, ErrPlatformUnsupported)
		tracing.RecordError(span, err)
		return nil, err
	}

	files := md.Files(m.platform)
	payloads := make([]*bundle.Payload, 0, len(files))
	for _, file := range files {
		p, err := m.cache.GetBundle(ctx, file)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, fmt.Errorf("failed to get %s for bundle %s: %w", file, id, err)
		}
		payloads = append(payloads, p)
	}

	tracing.SetSpanOK(span)
	return payloads, nil
}

// UnloadAll releases and drops every cached payload.
func (m *Manager) UnloadAll() int {
	return m.cache.UnloadAll()
}
