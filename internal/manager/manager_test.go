package manager

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ryanm101/bundlereg/internal/config"
	"github.com/ryanm101/bundlereg/internal/db"
	"github.com/ryanm101/bundlereg/internal/fetch"
	"github.com/ryanm101/bundlereg/internal/metasync"
	"github.com/ryanm101/bundlereg/internal/registry"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

const metaDoc = `{
	"forest": {"name": "Forest", "bundles": {"Windows": ["forest_a.bundle", "forest_b.bundle"]}, "tags": [], "author": "s", "description": "", "lastUpdated": 2},
	"desert": {"name": "Desert", "bundles": {"OSX": ["desert.bundle"]}, "tags": [], "author": "s", "description": "", "lastUpdated": 1}
}`

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Platform = "WindowsEditor"
	cfg.Sources = []string{"https://meta.example.com/index.json"}
	cfg.BundleEndpoint = "https://cdn.example.com/{platform}/{filename}"
	return cfg
}

func TestNew_DetectsPlatform(t *testing.T) {
	m := New(testConfig(), new(MockFetcher))
	assert.Equal(t, "Windows", m.Platform())
}

func TestSyncAndFilter(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, "https://meta.example.com/index.json").Return([]byte(metaDoc), nil)

	m := New(testConfig(), f)
	report, err := m.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Sources, 1)

	compatible := m.CompatibleBundles()
	require.Len(t, compatible, 1)
	assert.Equal(t, "forest", compatible[0].ID)
	assert.Len(t, m.AllBundles(), 2)

	md, err := m.Lookup("desert")
	require.NoError(t, err)
	assert.Equal(t, "Desert", md.Name)

	_, err = m.Lookup("unknown")
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}

func TestGetBundle_UsesEndpointTemplate(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, "https://cdn.example.com/Windows/forest_a.bundle").Return([]byte("A"), nil).Once()

	m := New(testConfig(), f)
	p, err := m.GetBundle(context.Background(), "forest_a.bundle")
	require.NoError(t, err)
	assert.Equal(t, "forest_a.bundle", p.Filename)

	_, err = m.GetBundle(context.Background(), "forest_a.bundle")
	require.NoError(t, err)
	f.AssertExpectations(t)
}

func TestGetBundleFiles(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, "https://meta.example.com/index.json").Return([]byte(metaDoc), nil)
	f.On("Fetch", mock.Anything, "https://cdn.example.com/Windows/forest_a.bundle").Return([]byte("A"), nil)
	f.On("Fetch", mock.Anything, "https://cdn.example.com/Windows/forest_b.bundle").Return([]byte("B"), nil)

	m := New(testConfig(), f)
	_, err := m.Sync(context.Background())
	require.NoError(t, err)

	payloads, err := m.GetBundleFiles(context.Background(), "forest")
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, "forest_a.bundle", payloads[0].Filename)
	assert.Equal(t, "forest_b.bundle", payloads[1].Filename)

	_, err = m.GetBundleFiles(context.Background(), "desert")
	assert.True(t, errors.Is(err, ErrPlatformUnsupported))

	_, err = m.GetBundleFiles(context.Background(), "nope")
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}

func TestGetBundleFiles_TransportError(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, "https://meta.example.com/index.json").Return([]byte(metaDoc), nil)
	f.On("Fetch", mock.Anything, "https://cdn.example.com/Windows/forest_a.bundle").Return([]byte("A"), nil)
	f.On("Fetch", mock.Anything, "https://cdn.example.com/Windows/forest_b.bundle").
		Return(nil, &fetch.TransportError{URL: "b", StatusCode: 500, Status: "500 Internal Server Error"})

	m := New(testConfig(), f)
	_, err := m.Sync(context.Background())
	require.NoError(t, err)

	_, err = m.GetBundleFiles(context.Background(), "forest")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fetch.ErrTransport))
	assert.True(t, m.Cache().Cached("forest_a.bundle"), "earlier files stay cached")
}

func TestEnable_UnloadsWhenConfigured(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, mock.Anything).Return([]byte("payload"), nil)

	cfg := testConfig()
	m := New(cfg, f)
	p, err := m.GetBundle(context.Background(), "x.bundle")
	require.NoError(t, err)

	m.Enable()
	assert.Equal(t, 0, m.Cache().Len())
	assert.True(t, p.Released())

	_, err = m.GetBundle(context.Background(), "x.bundle")
	require.NoError(t, err)
	f.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestEnable_KeepsCacheWhenDisabled(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, mock.Anything).Return([]byte("payload"), nil)

	cfg := testConfig()
	cfg.UnloadOnEnable = false
	m := New(cfg, f)
	_, err := m.GetBundle(context.Background(), "x.bundle")
	require.NoError(t, err)

	m.Enable()
	assert.Equal(t, 1, m.Cache().Len())
}

func TestUnloadAll(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, mock.Anything).Return([]byte("payload"), nil)

	m := New(testConfig(), f)
	_, err := m.GetBundle(context.Background(), "a")
	require.NoError(t, err)
	_, err = m.GetBundle(context.Background(), "b")
	require.NoError(t, err)

	assert.Equal(t, 2, m.UnloadAll())
	assert.Equal(t, 0, m.Cache().Len())
}

func TestPersistAndRestore(t *testing.T) {
	ctx := context.Background()
	store, err := db.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, "https://meta.example.com/index.json").Return([]byte(metaDoc), nil)

	first := New(testConfig(), f, WithStore(store))
	_, err = first.Sync(ctx)
	require.NoError(t, err)

	syncs, err := store.ListSyncs(ctx)
	require.NoError(t, err)
	require.Len(t, syncs, 1)
	assert.Equal(t, 2, syncs[0].Entries)

	second := New(testConfig(), new(MockFetcher), WithStore(store))
	n, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, first.AllBundles(), second.AllBundles())
	require.Len(t, second.CompatibleBundles(), 1)
}

func TestRestore_DoesNotOverrideFresherInMemory(t *testing.T) {
	ctx := context.Background()
	store, err := db.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.SaveMetadata(ctx, []registry.Entry{{ID: "forest", BundleMetadata: registry.BundleMetadata{Name: "stored", LastUpdated: 1}}})
	require.NoError(t, err)

	m := New(testConfig(), new(MockFetcher), WithStore(store))
	m.Registry().Merge(map[string]registry.BundleMetadata{"forest": {Name: "live", LastUpdated: 9}})

	_, err = m.Restore(ctx)
	require.NoError(t, err)

	md, err := m.Lookup("forest")
	require.NoError(t, err)
	assert.Equal(t, "live", md.Name)
}

func TestSyncAll_FailureStillPersistsAndRecords(t *testing.T) {
	ctx := context.Background()
	store, err := db.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.json" {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(metaDoc))
	}))
	defer srv.Close()

	var finished atomic.Int32
	m := New(testConfig(), fetch.NewHTTPFetcher(fetch.DefaultHTTPConfig()),
		WithStore(store),
		WithSyncProgress(func(metasync.SourceResult) { finished.Add(1) }),
	)

	_, err = m.SyncAll(ctx, []string{srv.URL + "/good.json", srv.URL + "/bad.json"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fetch.ErrTransport))
	assert.Equal(t, int32(2), finished.Load())

	stored, err := store.LoadMetadata(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2, "merges from the healthy source are persisted")

	syncs, err := store.ListSyncs(ctx)
	require.NoError(t, err)
	require.Len(t, syncs, 2)
	assert.Contains(t, syncs[0].LastError, "502")
	assert.Empty(t, syncs[1].LastError)
}

func TestRestore_NoStore(t *testing.T) {
	n, err := New(testConfig(), new(MockFetcher)).Restore(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, New(testConfig(), new(MockFetcher)).Persist(context.Background()))
}
