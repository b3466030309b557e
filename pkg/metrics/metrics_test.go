package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorRegistersMetrics(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{Enabled: true, Port: 9999, Path: "/metrics", Namespace: "test"})
	require.NoError(t, err)
	require.NotNil(t, c.registry)
}

func TestRecordStoreAccessIncrementsCounter(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)

	c.RecordStoreAccess("tree", "remote-fetch")
	c.RecordStoreAccess("tree", "remote-fetch")
	c.RecordStoreAccess("blob", "memory")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.backingStoreAccess.WithLabelValues("tree", "remote-fetch")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.backingStoreAccess.WithLabelValues("blob", "memory")))
}

func TestRecordPrefetchFailureIncrementsCounter(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)

	c.RecordPrefetchFailure()
	c.RecordPrefetchFailure()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.prefetchFailures))
}

func TestDisabledCollectorRecordsNothing(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{Enabled: false})
	require.NoError(t, err)

	// must not panic despite the metrics themselves being nil
	c.RecordStoreAccess("tree", "memory")
	c.RecordPrefetchFailure()
	c.RecordGlobWalk("root", time.Millisecond)
}
