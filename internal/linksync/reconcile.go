package linksync

import (
	"context"

	"github.com/roach88/riskctl/internal/metrics"
	"github.com/roach88/riskctl/internal/record"
)

// DanglingPolicy decides what reconciliation does with a reference whose
// target record does not exist.
type DanglingPolicy int

const (
	// KeepDangling leaves unresolved references in place. This is the
	// default: an unresolved id may be a record another session has not
	// written yet.
	KeepDangling DanglingPolicy = iota

	// PruneDangling removes unresolved references from both sides.
	PruneDangling
)

// String implements fmt.Stringer.
func (p DanglingPolicy) String() string {
	if p == PruneDangling {
		return "prune"
	}
	return "keep"
}

// ReconcileOptions tunes a reconciliation run.
type ReconcileOptions struct {
	Dangling DanglingPolicy

	// DryRun computes the report without writing.
	DryRun bool
}

// Dangling is one reference whose target does not exist.
type Dangling struct {
	// Holder is the kind of the record carrying the reference.
	Holder record.Kind `json:"holder"`
	ID     string      `json:"id"`
	Ref    string      `json:"ref"`
}

// Report summarises a reconciliation run.
type Report struct {
	// RiskRefsAdded counts risk ids added to Control.RiskRefs.
	RiskRefsAdded int `json:"riskRefsAdded"`

	// ControlRefsAdded counts control ids added to Risk.ControlRefs.
	ControlRefsAdded int `json:"controlRefsAdded"`

	Dangling []Dangling `json:"dangling,omitempty"`

	// Pruned counts dangling references removed under PruneDangling.
	Pruned int `json:"pruned"`

	ControlsWritten bool `json:"controlsWritten"`
	RisksWritten    bool `json:"risksWritten"`
	DryRun          bool `json:"dryRun"`
}

// Changed reports whether the run modified (or would modify) either side.
func (r Report) Changed() bool {
	return r.RiskRefsAdded > 0 || r.ControlRefsAdded > 0 || r.Pruned > 0
}

// ApplyReconcile repairs risks and controls in place.
//
// Pass one walks every Risk's ControlRefs and adds the missing mirror to the
// Control. Pass two walks every Control's RiskRefs and adds the missing
// mirror to the Risk. Neither pass removes a reference that resolves, so a
// link dropped from only one side is restored, never severed. Unresolved
// references are reported and, under PruneDangling, removed afterwards.
//
// Returns whether risks and controls changed.
func ApplyReconcile(risks []record.Risk, controls []record.Control, policy DanglingPolicy) (Report, bool, bool) {
	var rep Report
	risksChanged, controlsChanged := false, false
	riskIdx := record.RiskIndex(risks)
	controlIdx := record.ControlIndex(controls)

	for _, r := range risks {
		for _, cid := range r.ControlRefs {
			i, ok := controlIdx[cid]
			if !ok {
				rep.Dangling = append(rep.Dangling, Dangling{Holder: record.KindRisk, ID: r.ID, Ref: cid})
				continue
			}
			if controls[i].RiskRefs.Add(r.ID) {
				rep.RiskRefsAdded++
				controlsChanged = true
			}
		}
	}

	for _, c := range controls {
		for _, rid := range c.RiskRefs {
			i, ok := riskIdx[rid]
			if !ok {
				rep.Dangling = append(rep.Dangling, Dangling{Holder: record.KindControl, ID: c.ID, Ref: rid})
				continue
			}
			if risks[i].ControlRefs.Add(c.ID) {
				rep.ControlRefsAdded++
				risksChanged = true
			}
		}
	}

	if policy == PruneDangling {
		for _, d := range rep.Dangling {
			switch d.Holder {
			case record.KindRisk:
				for i := range risks {
					if risks[i].ID == d.ID && risks[i].ControlRefs.Remove(d.Ref) {
						rep.Pruned++
						risksChanged = true
					}
				}
			case record.KindControl:
				for i := range controls {
					if controls[i].ID == d.ID && controls[i].RiskRefs.Remove(d.Ref) {
						rep.Pruned++
						controlsChanged = true
					}
				}
			}
		}
	}

	return rep, risksChanged, controlsChanged
}

// Reconcile runs ApplyReconcile against the store. Each collection is
// written at most once and only if it changed, Controls first. Running it
// twice leaves both collections byte-for-byte as the first run left them.
func (s *Synchronizer) Reconcile(ctx context.Context, opts ReconcileOptions) (Report, error) {
	risks, err := s.st.Risks(ctx)
	if err != nil {
		return Report{}, err
	}
	controls, err := s.st.Controls(ctx)
	if err != nil {
		return Report{}, err
	}

	rep, risksChanged, controlsChanged := ApplyReconcile(risks, controls, opts.Dangling)
	rep.DryRun = opts.DryRun

	s.metrics.LinksAdded(string(record.KindControl), metrics.OriginReconcile, rep.RiskRefsAdded)
	s.metrics.LinksAdded(string(record.KindRisk), metrics.OriginReconcile, rep.ControlRefsAdded)
	if len(rep.Dangling) > 0 {
		s.logger.Info("dangling references",
			"count", len(rep.Dangling),
			"policy", opts.Dangling.String())
	}

	if opts.DryRun {
		return rep, nil
	}

	if controlsChanged {
		if err := s.st.SetControls(ctx, controls); err != nil {
			return rep, err
		}
		rep.ControlsWritten = true
		s.metrics.CollectionWrite(record.CollectionControls, metrics.OriginReconcile)
	}
	if risksChanged {
		if err := s.st.SetRisks(ctx, risks); err != nil {
			return rep, err
		}
		rep.RisksWritten = true
		s.metrics.CollectionWrite(record.CollectionRisks, metrics.OriginReconcile)
	}

	if rep.Changed() {
		s.logger.Info("reconciled relation",
			"risk_refs_added", rep.RiskRefsAdded,
			"control_refs_added", rep.ControlRefsAdded,
			"pruned", rep.Pruned)
	}
	return rep, nil
}
