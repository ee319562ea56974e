// Package metrics holds the Prometheus instruments for the risk register.
//
// Instruments are registered on an injected Registerer rather than the
// global default so tests and embedded callers get isolated counters.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Write origins: which flow caused a collection write.
const (
	OriginPrimary   = "primary"
	OriginMirror    = "mirror"
	OriginReconcile = "reconcile"
	OriginMigrate   = "migrate"
	OriginImport    = "import"
)

// Metrics groups every instrument.
type Metrics struct {
	collectionWrites     *prometheus.CounterVec
	linksAdded           *prometheus.CounterVec
	linksRemoved         *prometheus.CounterVec
	missingReferences    *prometheus.CounterVec
	idsMigrated          prometheus.Counter
	notificationsDropped *prometheus.CounterVec
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// collectionWrites counts whole-collection writes by collection and origin
		collectionWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskctl_collection_writes_total",
			Help: "Whole-collection writes by collection and origin",
		}, []string{"collection", "origin"}),

		// linksAdded counts mirrored references added, by the side that was written
		linksAdded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskctl_links_added_total",
			Help: "Mirrored references added by side written and origin",
		}, []string{"side", "origin"}),

		linksRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskctl_links_removed_total",
			Help: "Mirrored references removed by side written and origin",
		}, []string{"side", "origin"}),

		// missingReferences counts declared identifiers with no target record
		missingReferences: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskctl_missing_references_total",
			Help: "Declared references whose target does not exist, by target kind",
		}, []string{"target"}),

		idsMigrated: f.NewCounter(prometheus.CounterOpts{
			Name: "riskctl_control_ids_migrated_total",
			Help: "Control identifiers reassigned by identifier migration",
		}),

		notificationsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskctl_notifications_dropped_total",
			Help: "Notifications dropped because a subscriber was not keeping up",
		}, []string{"topic"}),
	}
}

// CollectionWrite records one whole-collection write.
func (m *Metrics) CollectionWrite(collection, origin string) {
	if m == nil {
		return
	}
	m.collectionWrites.WithLabelValues(collection, origin).Inc()
}

// LinksAdded records n references added on side.
func (m *Metrics) LinksAdded(side, origin string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.linksAdded.WithLabelValues(side, origin).Add(float64(n))
}

// LinksRemoved records n references removed on side.
func (m *Metrics) LinksRemoved(side, origin string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.linksRemoved.WithLabelValues(side, origin).Add(float64(n))
}

// MissingReferences records n unresolved references to target records.
func (m *Metrics) MissingReferences(target string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.missingReferences.WithLabelValues(target).Add(float64(n))
}

// IDsMigrated records n reassigned control identifiers.
func (m *Metrics) IDsMigrated(n int) {
	if m == nil || n == 0 {
		return
	}
	m.idsMigrated.Add(float64(n))
}

// NotificationDropped records one dropped notification.
func (m *Metrics) NotificationDropped(topic string) {
	if m == nil {
		return
	}
	m.notificationsDropped.WithLabelValues(topic).Inc()
}
