package registry

import (
	"log/slog"
	"time"

	"github.com/roach88/riskctl/internal/activity"
	"github.com/roach88/riskctl/internal/ident"
	"github.com/roach88/riskctl/internal/linksync"
	"github.com/roach88/riskctl/internal/metrics"
	"github.com/roach88/riskctl/internal/notify"
)

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRiskIDs sets the Risk identifier generator.
func WithRiskIDs(g ident.Generator) Option {
	return func(r *Registry) {
		if g != nil {
			r.riskIDs = g
		}
	}
}

// WithBus sets the notification bus.
func WithBus(b *notify.Bus) Option {
	return func(r *Registry) { r.bus = b }
}

// WithActivity sets the activity recorder.
func WithActivity(rec activity.Recorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDanglingPolicy sets the policy bootstrap reconciliation uses.
func WithDanglingPolicy(p linksync.DanglingPolicy) Option {
	return func(r *Registry) { r.dangling = p }
}
