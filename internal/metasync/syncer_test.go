package metasync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ryanm101/bundlereg/internal/fetch"
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

const (
	sourceA = "https://a.example.com/meta.json"
	sourceB = "https://b.example.com/meta.json"
)

func TestSyncAll_EndToEnd(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, sourceA).Return([]byte(`{
		"bundleA": {"name": "A old", "bundles": {"Windows": ["a.bundle"]}, "tags": [], "author": "x", "description": "", "lastUpdated": 1}
	}`), nil)
	f.On("Fetch", mock.Anything, sourceB).Return([]byte(`{
		"bundleA": {"name": "A new", "bundles": {"Windows": ["a2.bundle"]}, "tags": [], "author": "x", "description": "", "lastUpdated": 2},
		"bundleB": {"name": "B", "bundles": {"OSX": ["b.bundle"]}, "tags": ["x"], "author": "y", "description": "", "lastUpdated": 1}
	}`), nil)

	reg := registry.New()
	report, err := New(f, reg).SyncAll(context.Background(), []string{sourceA, sourceB})

	require.NoError(t, err)
	f.AssertExpectations(t)

	a, err := reg.Lookup("bundleA")
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.LastUpdated)
	assert.Equal(t, "A new", a.Name)

	_, err = reg.Lookup("bundleB")
	assert.NoError(t, err)

	require.Len(t, report.Sources, 2)
	assert.Equal(t, sourceA, report.Sources[0].URL)
	assert.Equal(t, 1, report.Sources[0].Entries)
	assert.Equal(t, sourceB, report.Sources[1].URL)
	assert.Equal(t, 2, report.Sources[1].Entries)
	assert.Empty(t, report.Failed())
}

func TestSyncAll_FailurePropagatesAndKeepsPartialMerges(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, sourceA).Return([]byte(`{"good": {"name": "g", "bundles": {}, "tags": [], "author": "", "description": "", "lastUpdated": 1}}`), nil)
	f.On("Fetch", mock.Anything, sourceB).Return(nil, &fetch.TransportError{URL: sourceB, StatusCode: 500, Status: "500 Internal Server Error"})

	reg := registry.New()
	report, err := New(f, reg).SyncAll(context.Background(), []string{sourceA, sourceB})

	require.Error(t, err)
	assert.True(t, errors.Is(err, fetch.ErrTransport))

	_, lookupErr := reg.Lookup("good")
	assert.NoError(t, lookupErr, "merges from healthy sources stay applied")

	require.NotNil(t, report)
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, sourceB, failed[0].URL)
	f.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestSyncAll_MalformedBodyIsDecodeError(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, sourceA).Return([]byte(`not json`), nil)

	reg := registry.New()
	_, err := New(f, reg).SyncAll(context.Background(), []string{sourceA})

	require.Error(t, err)
	assert.True(t, errors.Is(err, fetch.ErrDecode))
	assert.True(t, errors.Is(err, registry.ErrMalformed))
	assert.Equal(t, 0, reg.Len())
}

func TestSyncAll_FetchesConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})

	f := fetch.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		started.Done()
		select {
		case <-release:
		case <-time.After(5 * time.Second):
			return nil, errors.New("sources were fetched sequentially")
		}
		return []byte(`{}`), nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := New(f, registry.New()).SyncAll(context.Background(), []string{sourceA, sourceB})
		done <- err
	}()

	started.Wait()
	close(release)
	assert.NoError(t, <-done)
}

func TestSyncAll_WaitsForEverySourceAfterFailure(t *testing.T) {
	slowDone := make(chan struct{})
	f := fetch.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		if url == sourceA {
			return nil, &fetch.TransportError{URL: url, StatusCode: 404, Status: "404 Not Found"}
		}
		time.Sleep(50 * time.Millisecond)
		close(slowDone)
		return []byte(`{"late": {"lastUpdated": 1}}`), nil
	})

	reg := registry.New()
	_, err := New(f, reg).SyncAll(context.Background(), []string{sourceA, sourceB})

	require.Error(t, err)
	select {
	case <-slowDone:
	default:
		t.Fatal("SyncAll returned before every source was attempted")
	}
	_, lookupErr := reg.Lookup("late")
	assert.NoError(t, lookupErr)
}

func TestSyncAll_DuplicateSourcesFetchedOnce(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, sourceA).Return([]byte(`{}`), nil).Once()

	report, err := New(f, registry.New()).SyncAll(context.Background(), []string{sourceA, sourceA})

	require.NoError(t, err)
	assert.Len(t, report.Sources, 1)
	f.AssertExpectations(t)
}

func TestSyncAll_Progress(t *testing.T) {
	f := new(MockFetcher)
	f.On("Fetch", mock.Anything, mock.Anything).Return([]byte(`{}`), nil)

	var mu sync.Mutex
	var seen []string
	s := New(f, registry.New(), WithProgress(func(r SourceResult) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.URL)
	}))

	_, err := s.SyncAll(context.Background(), []string{sourceA, sourceB})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{sourceA, sourceB}, seen)
}

func TestSyncAll_NoSources(t *testing.T) {
	report, err := New(new(MockFetcher), registry.New()).SyncAll(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, report.Sources)
}
