// Package bundle downloads bundle payloads and caches them by filename.
//
// At most one download is in flight per filename and cache generation:
// concurrent callers for the same file join the running download and receive
// the same handle. A caller arriving after UnloadAll starts a fresh download.
package bundle

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ryanm101/bundlereg/internal/fetch"
	"github.com/ryanm101/bundlereg/internal/logging"
	"github.com/ryanm101/bundlereg/internal/metrics"
	"github.com/ryanm101/bundlereg/internal/tracing"
)

// URLFunc maps a bundle filename to the URL it is served from.
type URLFunc func(filename string) string

// Option configures a Cache.
type Option func(*Cache)

// WithDecoder replaces the default RawDecoder.
func WithDecoder(d Decoder) Option {
	return func(c *Cache) { c.decoder = d }
}

// Cache holds downloaded payloads keyed by filename.
type Cache struct {
	fetcher fetch.Fetcher
	decoder Decoder
	urlFor  URLFunc

	mu      sync.RWMutex
	entries map[string]*Payload
	gen     uint64 // bumped by UnloadAll

	flights singleflight.Group
}

// NewCache creates an empty cache that downloads through f.
func NewCache(f fetch.Fetcher, urlFor URLFunc, opts ...Option) *Cache {
	c := &Cache{
		fetcher: f,
		decoder: RawDecoder{},
		urlFor:  urlFor,
		entries: make(map[string]*Payload),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBundle returns the cached payload for filename, downloading it on a miss.
// The download is not tied to ctx: a caller that stops waiting does not stop it.
func (c *Cache) GetBundle(ctx context.Context, filename string) (*Payload, error) {
	ctx, span := tracing.StartSpan(ctx, "bundle.GetBundle",
		tracing.WithAttributes(tracing.AttrFilename.String(filename)),
	)
	defer span.End()

	if p, ok := c.lookup(filename); ok {
		metrics.BundleRequests.WithLabelValues(metrics.RequestHit).Inc()
		tracing.AddSpanAttributes(span, tracing.AttrCacheHit.Bool(true))
		tracing.SetSpanOK(span)
		return p, nil
	}
	tracing.AddSpanAttributes(span, tracing.AttrCacheHit.Bool(false))

	gen := c.generation()
	detached := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(flightKey(gen, filename), func() (any, error) {
		return c.load(detached, gen, filename)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			metrics.BundleRequests.WithLabelValues(metrics.RequestError).Inc()
			tracing.RecordError(span, res.Err)
			return nil, res.Err
		}
		result := metrics.RequestMiss
		if res.Shared {
			result = metrics.RequestShared
		}
		metrics.BundleRequests.WithLabelValues(result).Inc()
		tracing.SetSpanOK(span)
		return res.Val.(*Payload), nil
	case <-ctx.Done():
		tracing.RecordError(span, ctx.Err())
		return nil, ctx.Err()
	}
}

// flightKey scopes in-flight downloads to one cache generation.
func flightKey(gen uint64, filename string) string {
	return strconv.FormatUint(gen, 10) + "/" + filename
}

func (c *Cache) load(ctx context.Context, gen uint64, filename string) (*Payload, error) {
	// Filled by a flight that finished between the caller's check and this one.
	if p, ok := c.lookup(filename); ok {
		return p, nil
	}

	url := c.urlFor(filename)
	log := logging.ForBundle(filename, url)

	start := time.Now()
	body, err := c.fetcher.Fetch(ctx, url)
	metrics.RecordBundleFetchDuration(start)
	if err != nil {
		log.ErrorContext(ctx, "bundle download failed", "error", err)
		return nil, err
	}

	p, err := c.decoder.Decode(filename, body)
	if err != nil {
		log.ErrorContext(ctx, "bundle decode failed", "error", err)
		return nil, &fetch.DecodeError{URL: url, Err: err}
	}

	if !c.store(gen, filename, p) {
		log.DebugContext(ctx, "bundle downloaded across an unload, not cached")
		return p, nil
	}
	log.InfoContext(ctx, "bundle cached", "bytes", p.Size(), "content_type", p.ContentType, "duration", time.Since(start))
	return p, nil
}

// store inserts or replaces the entry unless the cache was unloaded since gen.
func (c *Cache) store(gen uint64, filename string, p *Payload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}
	if old, ok := c.entries[filename]; ok && old != p {
		old.Release()
	}
	c.entries[filename] = p
	c.updateGaugesLocked()
	return true
}

func (c *Cache) lookup(filename string) (*Payload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[filename]
	return p, ok
}

func (c *Cache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// UnloadAll releases every cached payload and empties the cache.
// It returns the number of payloads unloaded.
func (c *Cache) UnloadAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	for _, p := range c.entries {
		p.Release()
	}
	clear(c.entries)
	c.gen++
	c.updateGaugesLocked()

	metrics.Unloads.Inc()
	logging.Info("bundle cache unloaded", "payloads", n)
	return n
}

// Cached reports whether filename is in the cache.
func (c *Cache) Cached(filename string) bool {
	_, ok := c.lookup(filename)
	return ok
}

// Len returns the number of cached payloads.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Filenames returns the cached filenames, sorted.
func (c *Cache) Filenames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Size returns the total size of the cached payloads in bytes.
func (c *Cache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sizeLocked()
}

func (c *Cache) sizeLocked() int64 {
	var total int64
	for _, p := range c.entries {
		total += p.Size()
	}
	return total
}

func (c *Cache) updateGaugesLocked() {
	metrics.CacheEntries.Set(float64(len(c.entries)))
	metrics.CacheBytes.Set(float64(c.sizeLocked()))
}
