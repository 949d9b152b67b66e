// Package registry holds merged bundle metadata keyed by bundle identifier.
//
// Conflicts between sources are resolved by freshness alone: a record only
// replaces the one already held when its LastUpdated is strictly greater.
package registry

import (
	"slices"
	"sync"
)

// MergeResult reports what a Merge did with each incoming identifier.
type MergeResult struct {
	Added     []string
	Replaced  []string
	Discarded []string
}

// Registry is the authoritative set of bundle metadata. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]BundleMetadata
	order   []string // first-insertion order
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]BundleMetadata)}
}

// Merge folds incoming records into the registry, keeping the fresher record per id.
func (r *Registry) Merge(incoming map[string]BundleMetadata) MergeResult {
	var res MergeResult

	ids := make([]string, 0, len(incoming))
	for id := range incoming {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		md := incoming[id]
		existing, ok := r.entries[id]
		switch {
		case !ok:
			r.entries[id] = md.clone()
			r.order = append(r.order, id)
			res.Added = append(res.Added, id)
		case md.LastUpdated > existing.LastUpdated:
			r.entries[id] = md.clone()
			res.Replaced = append(res.Replaced, id)
		default:
			res.Discarded = append(res.Discarded, id)
		}
	}

	return res
}

// Lookup returns the metadata for id.
func (r *Registry) Lookup(id string) (BundleMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	md, ok := r.entries[id]
	if !ok {
		return BundleMetadata{}, &NotFoundError{ID: id}
	}
	return md.clone(), nil
}

// Len returns the number of records held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// All returns every record in iteration order.
func (r *Registry) All() []Entry {
	return r.filter(func(BundleMetadata) bool { return true })
}

// Compatible returns, in iteration order, every record with a variant for platform.
// The result is recomputed on every call.
func (r *Registry) Compatible(platform string) []Entry {
	return r.filter(func(md BundleMetadata) bool { return md.SupportsPlatform(platform) })
}

// Reset drops every record. Only an owner tearing down its session should call it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]BundleMetadata)
	r.order = nil
}

func (r *Registry) filter(keep func(BundleMetadata) bool) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		md := r.entries[id]
		if keep(md) {
			out = append(out, Entry{ID: id, BundleMetadata: md.clone()})
		}
	}
	return out
}
