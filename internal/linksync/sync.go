package linksync

import (
	"context"
	"log/slog"

	"github.com/roach88/riskctl/internal/metrics"
	"github.com/roach88/riskctl/internal/record"
	"github.com/roach88/riskctl/internal/store"
)

// Result describes one synchronizer run against the opposite collection.
type Result struct {
	// Side is the collection that was (or would have been) written.
	Side record.Kind

	// Added and Removed count mirrored references changed on Side.
	Added   int
	Removed int

	// Missing lists declared identifiers with no record on Side.
	Missing []string

	// Written is true when Side was persisted.
	Written bool
}

// Changed reports whether any mirrored reference changed.
func (r Result) Changed() bool {
	return r.Added > 0 || r.Removed > 0
}

// ApplyRiskSaved mirrors risk's declared ControlRefs into controls, which
// is modified in place. The declared set replaces whatever the risk
// declared before: controls that are no longer declared lose the risk id.
func ApplyRiskSaved(controls []record.Control, risk record.Risk) Result {
	res := Result{Side: record.KindControl}
	found := make(map[string]bool, len(risk.ControlRefs))

	for i := range controls {
		c := &controls[i]
		isDeclared := risk.ControlRefs.Has(c.ID)
		isPresent := c.RiskRefs.Has(risk.ID)
		if isDeclared {
			found[c.ID] = true
		}
		switch {
		case isDeclared && !isPresent:
			c.RiskRefs.Add(risk.ID)
			res.Added++
		case !isDeclared && isPresent:
			c.RiskRefs.Remove(risk.ID)
			res.Removed++
		}
	}

	res.Missing = missing(risk.ControlRefs, found)
	return res
}

// ApplyControlSaved mirrors control's declared RiskRefs into risks, which is
// modified in place.
func ApplyControlSaved(risks []record.Risk, control record.Control) Result {
	res := Result{Side: record.KindRisk}
	found := make(map[string]bool, len(control.RiskRefs))

	for i := range risks {
		r := &risks[i]
		isDeclared := control.RiskRefs.Has(r.ID)
		isPresent := r.ControlRefs.Has(control.ID)
		if isDeclared {
			found[r.ID] = true
		}
		switch {
		case isDeclared && !isPresent:
			r.ControlRefs.Add(control.ID)
			res.Added++
		case !isDeclared && isPresent:
			r.ControlRefs.Remove(control.ID)
			res.Removed++
		}
	}

	res.Missing = missing(control.RiskRefs, found)
	return res
}

// ApplyRiskDeleted strips id from every control's RiskRefs.
func ApplyRiskDeleted(controls []record.Control, id string) Result {
	res := Result{Side: record.KindControl}
	for i := range controls {
		if controls[i].RiskRefs.Remove(id) {
			res.Removed++
		}
	}
	return res
}

// ApplyControlDeleted strips id from every risk's ControlRefs.
func ApplyControlDeleted(risks []record.Risk, id string) Result {
	res := Result{Side: record.KindRisk}
	for i := range risks {
		if risks[i].ControlRefs.Remove(id) {
			res.Removed++
		}
	}
	return res
}

func missing(declared record.Refs, found map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range declared {
		if !found[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Synchronizer applies the in-memory rules against a store.
//
// It does not serialise callers; the registry holds the single-writer lock.
type Synchronizer struct {
	st      *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// New creates a Synchronizer over st.
func New(st *store.Store, opts ...Option) *Synchronizer {
	s := &Synchronizer{st: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Synchronizer) Store() *store.Store {
	return s.st
}

// RiskSaved pushes saved.ControlRefs into the Control collection.
// The Control collection is written once, and only if a reference changed.
func (s *Synchronizer) RiskSaved(ctx context.Context, saved record.Risk) (Result, error) {
	controls, err := s.st.Controls(ctx)
	if err != nil {
		return Result{Side: record.KindControl}, err
	}
	res := ApplyRiskSaved(controls, saved)
	return s.finishControls(ctx, controls, res, saved.ID)
}

// ControlSaved pushes saved.RiskRefs into the Risk collection.
func (s *Synchronizer) ControlSaved(ctx context.Context, saved record.Control) (Result, error) {
	risks, err := s.st.Risks(ctx)
	if err != nil {
		return Result{Side: record.KindRisk}, err
	}
	res := ApplyControlSaved(risks, saved)
	return s.finishRisks(ctx, risks, res, saved.ID)
}

// RiskDeleted removes id from every Control's RiskRefs. No other field of
// any Control changes.
func (s *Synchronizer) RiskDeleted(ctx context.Context, id string) (Result, error) {
	controls, err := s.st.Controls(ctx)
	if err != nil {
		return Result{Side: record.KindControl}, err
	}
	res := ApplyRiskDeleted(controls, id)
	return s.finishControls(ctx, controls, res, id)
}

// ControlDeleted removes id from every Risk's ControlRefs.
func (s *Synchronizer) ControlDeleted(ctx context.Context, id string) (Result, error) {
	risks, err := s.st.Risks(ctx)
	if err != nil {
		return Result{Side: record.KindRisk}, err
	}
	res := ApplyControlDeleted(risks, id)
	return s.finishRisks(ctx, risks, res, id)
}

func (s *Synchronizer) finishControls(ctx context.Context, controls []record.Control, res Result, source string) (Result, error) {
	s.report(res, source)
	if !res.Changed() {
		return res, nil
	}
	if err := s.st.SetControls(ctx, controls); err != nil {
		return res, err
	}
	res.Written = true
	s.metrics.CollectionWrite(record.CollectionControls, metrics.OriginMirror)
	return res, nil
}

func (s *Synchronizer) finishRisks(ctx context.Context, risks []record.Risk, res Result, source string) (Result, error) {
	s.report(res, source)
	if !res.Changed() {
		return res, nil
	}
	if err := s.st.SetRisks(ctx, risks); err != nil {
		return res, err
	}
	res.Written = true
	s.metrics.CollectionWrite(record.CollectionRisks, metrics.OriginMirror)
	return res, nil
}

func (s *Synchronizer) report(res Result, source string) {
	side := string(res.Side)
	s.metrics.LinksAdded(side, metrics.OriginMirror, res.Added)
	s.metrics.LinksRemoved(side, metrics.OriginMirror, res.Removed)
	s.metrics.MissingReferences(side, len(res.Missing))

	if len(res.Missing) > 0 {
		s.logger.Debug("declared references without a target",
			"source", source,
			"target_kind", side,
			"missing", res.Missing)
	}
	if res.Changed() {
		s.logger.Debug("mirrored references updated",
			"source", source,
			"side", side,
			"added", res.Added,
			"removed", res.Removed)
	}
}
