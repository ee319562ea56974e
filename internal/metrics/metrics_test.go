package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CollectionWrite("controls", OriginMirror)
	m.CollectionWrite("controls", OriginMirror)
	m.LinksAdded("control", OriginReconcile, 3)
	m.LinksRemoved("risk", OriginMirror, 1)
	m.MissingReferences("control", 2)
	m.IDsMigrated(4)
	m.NotificationDropped("risks-updated")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.collectionWrites.WithLabelValues("controls", OriginMirror)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.linksAdded.WithLabelValues("control", OriginReconcile)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linksRemoved.WithLabelValues("risk", OriginMirror)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.missingReferences.WithLabelValues("control")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.idsMigrated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsDropped.WithLabelValues("risks-updated")))
}

func TestMetrics_ZeroCountsCreateNoSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.LinksAdded("control", OriginMirror, 0)
	assert.Equal(t, 0, testutil.CollectAndCount(m.linksAdded))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CollectionWrite("risks", OriginPrimary)
		m.LinksAdded("risk", OriginMirror, 1)
		m.LinksRemoved("risk", OriginMirror, 1)
		m.MissingReferences("risk", 1)
		m.IDsMigrated(1)
		m.NotificationDropped("x")
	})
}

func TestMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
