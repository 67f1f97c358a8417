package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewCollector("memflow", reg, nil)

	c.RecordSave("semantic", true)
	c.RecordSave("semantic", false)
	c.SetItemCount("semantic", 7)
	c.RecordSearchHits(3)
	c.RecordSearchHits(0) // no-op
	c.SetActiveSessions(2)
	c.RecordIntercept("ok")
	c.ObserveContextBuild(5 * time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(c.savesTotal.WithLabelValues("semantic")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.saveFailures.WithLabelValues("semantic")))
	require.Equal(t, 7.0, testutil.ToFloat64(c.itemsTotal.WithLabelValues("semantic")))
	require.Equal(t, 3.0, testutil.ToFloat64(c.searchHits))
	require.Equal(t, 2.0, testutil.ToFloat64(c.sessionsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(c.interceptsTotal.WithLabelValues("ok")))
}

func TestCollector_NilIsSafe(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.RecordSave("semantic", false)
	c.SetItemCount("episodic", 1)
	c.RecordSearchHits(1)
	c.ObserveContextBuild(time.Millisecond)
	c.SetActiveSessions(1)
	c.RecordIntercept("error")
}
