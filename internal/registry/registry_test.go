package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md(name string, lastUpdated int64, platforms ...string) BundleMetadata {
	bundles := make(map[string][]string, len(platforms))
	for _, p := range platforms {
		bundles[p] = []string{name + "_" + p + ".bundle"}
	}
	return BundleMetadata{
		Name:        name,
		Author:      "tester",
		Bundles:     bundles,
		Tags:        []string{"test"},
		LastUpdated: lastUpdated,
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestMerge_InsertsUnknownIDs(t *testing.T) {
	r := New()

	res := r.Merge(map[string]BundleMetadata{
		"a": md("a", 1, "Windows"),
		"b": md("b", 1, "Windows"),
	})

	assert.Equal(t, []string{"a", "b"}, res.Added)
	assert.Empty(t, res.Replaced)
	assert.Empty(t, res.Discarded)
	assert.Equal(t, 2, r.Len())
}

func TestMerge_Idempotent(t *testing.T) {
	payload := map[string]BundleMetadata{
		"a": md("a", 3, "Windows"),
		"b": md("b", 7, "OSX"),
	}

	once := New()
	once.Merge(payload)

	twice := New()
	twice.Merge(payload)
	res := twice.Merge(payload)

	assert.Equal(t, []string{"a", "b"}, res.Discarded)
	assert.Equal(t, once.All(), twice.All())
}

func TestMerge_RespectsFreshness(t *testing.T) {
	newer := map[string]BundleMetadata{"x": md("newer", 5, "Windows")}
	older := map[string]BundleMetadata{"x": md("older", 3, "Windows")}

	tests := []struct {
		name  string
		order []map[string]BundleMetadata
	}{
		{"newer then older", []map[string]BundleMetadata{newer, older}},
		{"older then newer", []map[string]BundleMetadata{older, newer}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			for _, payload := range tt.order {
				r.Merge(payload)
			}

			got, err := r.Lookup("x")
			require.NoError(t, err)
			assert.Equal(t, int64(5), got.LastUpdated)
			assert.Equal(t, "newer", got.Name)
		})
	}
}

func TestMerge_TieKeepsExisting(t *testing.T) {
	r := New()
	r.Merge(map[string]BundleMetadata{"x": md("first", 4, "Windows")})

	res := r.Merge(map[string]BundleMetadata{"x": md("second", 4, "Windows")})

	assert.Equal(t, []string{"x"}, res.Discarded)
	got, err := r.Lookup("x")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
}

func TestMerge_ReplaceKeepsIterationPosition(t *testing.T) {
	r := New()
	r.Merge(map[string]BundleMetadata{"a": md("a", 1, "Windows")})
	r.Merge(map[string]BundleMetadata{"b": md("b", 1, "Windows")})

	res := r.Merge(map[string]BundleMetadata{"a": md("a2", 2, "Windows")})

	assert.Equal(t, []string{"a"}, res.Replaced)
	assert.Equal(t, []string{"a", "b"}, ids(r.All()))
	assert.Equal(t, "a2", r.All()[0].Name)
}

func TestMerge_Commutative(t *testing.T) {
	sourceA := map[string]BundleMetadata{
		"shared": md("shared-old", 1, "Windows"),
		"onlyA":  md("onlyA", 1, "Windows"),
	}
	sourceB := map[string]BundleMetadata{
		"shared": md("shared-new", 2, "Windows"),
		"onlyB":  md("onlyB", 1, "OSX"),
	}

	ab := New()
	ab.Merge(sourceA)
	ab.Merge(sourceB)

	ba := New()
	ba.Merge(sourceB)
	ba.Merge(sourceA)

	for _, id := range []string{"shared", "onlyA", "onlyB"} {
		left, err := ab.Lookup(id)
		require.NoError(t, err)
		right, err := ba.Lookup(id)
		require.NoError(t, err)
		assert.Equal(t, left, right, id)
	}
	assert.Equal(t, ab.Len(), ba.Len())
}

func TestMerge_ConcurrentSources(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for v := int64(1); v <= 50; v++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			r.Merge(map[string]BundleMetadata{
				"hot":                    md(fmt.Sprintf("v%d", v), v, "Windows"),
				fmt.Sprintf("cold%d", v): md("cold", 1, "Windows"),
			})
		}(v)
	}
	wg.Wait()

	got, err := r.Lookup("hot")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.LastUpdated)
	assert.Equal(t, 51, r.Len())
}

func TestMerge_DoesNotAliasCallerData(t *testing.T) {
	r := New()
	incoming := md("a", 1, "Windows")
	r.Merge(map[string]BundleMetadata{"a": incoming})

	incoming.Bundles["Windows"][0] = "mutated"
	incoming.Tags[0] = "mutated"

	got, err := r.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, "a_Windows.bundle", got.Bundles["Windows"][0])
	assert.Equal(t, "test", got.Tags[0])
}

func TestLookup_UnknownID(t *testing.T) {
	r := New()
	r.Merge(map[string]BundleMetadata{"a": md("a", 1, "Windows")})

	got, err := r.Lookup("missing")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
	assert.Contains(t, err.Error(), "missing")
	assert.Equal(t, BundleMetadata{}, got)
}

func TestCompatible_FiltersByPlatform(t *testing.T) {
	r := New()
	r.Merge(map[string]BundleMetadata{"id1": md("one", 1, "Windows")})
	r.Merge(map[string]BundleMetadata{"id2": md("two", 1, "Mac")})

	assert.Equal(t, []string{"id1"}, ids(r.Compatible("Windows")))
	assert.Equal(t, []string{"id2"}, ids(r.Compatible("Mac")))
	assert.Empty(t, r.Compatible("Linux"))
}

func TestCompatible_RecomputedAfterMerge(t *testing.T) {
	r := New()
	r.Merge(map[string]BundleMetadata{"a": md("a", 1, "OSX")})
	assert.Empty(t, r.Compatible("Windows"))

	r.Merge(map[string]BundleMetadata{"a": md("a", 2, "OSX", "Windows")})
	assert.Equal(t, []string{"a"}, ids(r.Compatible("Windows")))
}

func TestCompatible_PreservesIterationOrder(t *testing.T) {
	r := New()
	for _, id := range []string{"z", "m", "a"} {
		r.Merge(map[string]BundleMetadata{id: md(id, 1, "Windows")})
	}

	assert.Equal(t, []string{"z", "m", "a"}, ids(r.Compatible("Windows")))
}

func TestReset(t *testing.T) {
	r := New()
	r.Merge(map[string]BundleMetadata{"a": md("a", 1, "Windows")})

	r.Reset()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.All())
}
