package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordMerge(t *testing.T) {
	added := testutil.ToFloat64(MergeTotal.WithLabelValues(MergeAdded))
	replaced := testutil.ToFloat64(MergeTotal.WithLabelValues(MergeReplaced))
	discarded := testutil.ToFloat64(MergeTotal.WithLabelValues(MergeDiscarded))

	RecordMerge(3, 2, 1)

	assert.Equal(t, added+3, testutil.ToFloat64(MergeTotal.WithLabelValues(MergeAdded)))
	assert.Equal(t, replaced+2, testutil.ToFloat64(MergeTotal.WithLabelValues(MergeReplaced)))
	assert.Equal(t, discarded+1, testutil.ToFloat64(MergeTotal.WithLabelValues(MergeDiscarded)))
}

func TestRecordSourceFetch(t *testing.T) {
	ok := testutil.ToFloat64(SourceFetches.WithLabelValues("ok"))
	failed := testutil.ToFloat64(SourceFetches.WithLabelValues("error"))

	RecordSourceFetch(nil)
	RecordSourceFetch(errors.New("boom"))

	assert.Equal(t, ok+1, testutil.ToFloat64(SourceFetches.WithLabelValues("ok")))
	assert.Equal(t, failed+1, testutil.ToFloat64(SourceFetches.WithLabelValues("error")))
}

func TestRecordDurations(t *testing.T) {
	start := time.Now().Add(-100 * time.Millisecond)

	assert.NotPanics(t, func() { RecordSyncDuration(start) })
	assert.NotPanics(t, func() { RecordBundleFetchDuration(start) })
}

func TestGauges_Exist(t *testing.T) {
	RegistryEntries.Set(10)
	assert.Equal(t, float64(10), testutil.ToFloat64(RegistryEntries))

	CacheEntries.Set(5)
	assert.Equal(t, float64(5), testutil.ToFloat64(CacheEntries))

	CacheBytes.Set(2048)
	assert.Equal(t, float64(2048), testutil.ToFloat64(CacheBytes))
}
