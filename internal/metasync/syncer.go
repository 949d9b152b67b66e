// Package metasync fans metadata requests out to every configured source and
// merges each result into the registry as it arrives.
package metasync

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryanm101/bundlereg/internal/fetch"
	"github.com/ryanm101/bundlereg/internal/logging"
	"github.com/ryanm101/bundlereg/internal/metrics"
	"github.com/ryanm101/bundlereg/internal/registry"
	"github.com/ryanm101/bundlereg/internal/tracing"
)

// SourceResult is the outcome of syncing one source.
type SourceResult struct {
	URL       string
	Entries   int
	Added     int
	Replaced  int
	Discarded int
	Err       error
	Duration  time.Duration
}

// Report collects the per-source results of a sync, in source-list order.
type Report struct {
	Sources  []SourceResult
	Duration time.Duration
}

// Failed returns the results that ended in an error.
func (r *Report) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithProgress registers a callback invoked once per finished source.
// It may be called from several goroutines at once.
func WithProgress(fn func(SourceResult)) Option {
	return func(s *Syncer) { s.progress = fn }
}

// Syncer merges metadata from remote sources into a registry.
type Syncer struct {
	fetcher  fetch.Fetcher
	registry *registry.Registry
	progress func(SourceResult)
}

// New creates a Syncer that writes into reg.
func New(f fetch.Fetcher, reg *registry.Registry, opts ...Option) *Syncer {
	s := &Syncer{fetcher: f, registry: reg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncAll fetches every source concurrently and merges each result independently.
// It returns once every source has been attempted. The first failure is returned;
// merges already applied from other sources are kept.
func (s *Syncer) SyncAll(ctx context.Context, sources []string) (*Report, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "metasync.SyncAll")
	defer span.End()

	sources = dedupe(sources)
	report := &Report{Sources: make([]SourceResult, len(sources))}

	// A plain group: one failing source must not cancel its siblings.
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			res := s.syncSource(ctx, src)
			report.Sources[i] = res
			if s.progress != nil {
				s.progress(res)
			}
			return res.Err
		})
	}
	err := g.Wait()

	report.Duration = time.Since(start)
	metrics.RecordSyncDuration(start)
	metrics.RegistryEntries.Set(float64(s.registry.Len()))

	tracing.AddSpanAttributes(span, tracing.AttrEntries.Int(s.registry.Len()))
	if err != nil {
		tracing.RecordError(span, err)
		logging.Get().WarnContext(ctx, "metadata sync incomplete", "sources", len(sources), "failed", len(report.Failed()), "error", err)
		return report, err
	}

	tracing.SetSpanOK(span)
	logging.Get().InfoContext(ctx, "metadata sync complete", "sources", len(sources), "entries", s.registry.Len(), "duration", report.Duration)
	return report, nil
}

func (s *Syncer) syncSource(ctx context.Context, src string) SourceResult {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "metasync.source",
		tracing.WithAttributes(tracing.AttrSource.String(src)),
	)
	defer span.End()

	res := SourceResult{URL: src}
	log := logging.ForSource(src)

	body, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		res.Err = err
	} else if doc, derr := registry.DecodeMetadata(body); derr != nil {
		res.Err = &fetch.DecodeError{URL: src, Err: derr}
	} else {
		merged := s.registry.Merge(doc)
		res.Entries = len(doc)
		res.Added = len(merged.Added)
		res.Replaced = len(merged.Replaced)
		res.Discarded = len(merged.Discarded)
		metrics.RecordMerge(res.Added, res.Replaced, res.Discarded)
	}
	res.Duration = time.Since(start)
	metrics.RecordSourceFetch(res.Err)

	if res.Err != nil {
		tracing.RecordError(span, res.Err)
		log.ErrorContext(ctx, "metadata source failed", "error", res.Err)
		return res
	}

	tracing.AddSpanAttributes(span, tracing.AttrEntries.Int(res.Entries))
	tracing.SetSpanOK(span)
	log.DebugContext(ctx, "metadata source merged",
		"entries", res.Entries, "added", res.Added, "replaced", res.Replaced, "discarded", res.Discarded)
	return res
}

func dedupe(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}
