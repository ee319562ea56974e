package harness

import (
	"fmt"

	"github.com/roach88/riskctl/internal/linksync"
	"github.com/roach88/riskctl/internal/record"
)

// Principle names.
const (
	// PrincipleClosure: one reconcile pass leaves no asymmetric pair.
	PrincipleClosure = "closure"

	// PrincipleReconcileIdempotent: a second reconcile pass changes nothing.
	PrincipleReconcileIdempotent = "reconcile_idempotent"

	// PrincipleMigrateIdempotent: migrating already migrated data renames
	// nothing.
	PrincipleMigrateIdempotent = "migrate_idempotent"

	// PrincipleNoPruneOnKeep: reconcile with KeepDangling never removes a
	// reference.
	PrincipleNoPruneOnKeep = "no_prune_on_keep"
)

// principle checks a property of the final state without touching the store.
type principle func(state *State) error

var principles = map[string]principle{
	PrincipleClosure:             checkClosure,
	PrincipleReconcileIdempotent: checkReconcileIdempotent,
	PrincipleMigrateIdempotent:   checkMigrateIdempotent,
	PrincipleNoPruneOnKeep:       checkNoPruneOnKeep,
}

// CheckPrinciples runs each named principle against a copy of state.
// Returns one message per violated principle.
func CheckPrinciples(names []string, state *State) []string {
	var errs []string
	for _, name := range names {
		p, ok := principles[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("principle %q: unknown", name))
			continue
		}
		if err := p(state); err != nil {
			errs = append(errs, fmt.Sprintf("principle %q violated: %v", name, err))
		}
	}
	return errs
}

func cloneState(state *State) ([]record.Risk, []record.Control) {
	return record.CloneRisks(state.Risks), record.CloneControls(state.Controls)
}

func checkClosure(state *State) error {
	risks, controls := cloneState(state)
	linksync.ApplyReconcile(risks, controls, linksync.KeepDangling)
	if !linksync.Holds(risks, controls) {
		return fmt.Errorf("asymmetric pairs remain after reconcile: %v", linksync.Check(risks, controls))
	}
	return nil
}

func checkReconcileIdempotent(state *State) error {
	risks, controls := cloneState(state)
	linksync.ApplyReconcile(risks, controls, linksync.KeepDangling)
	rep, risksChanged, controlsChanged := linksync.ApplyReconcile(risks, controls, linksync.KeepDangling)
	if risksChanged || controlsChanged || rep.Changed() {
		return fmt.Errorf("second pass added %d risk refs and %d control refs",
			rep.RiskRefsAdded, rep.ControlRefsAdded)
	}
	return nil
}

func checkMigrateIdempotent(state *State) error {
	risks, controls := cloneState(state)
	controls, _ = linksync.ApplyMigration(controls, risks)
	_, second := linksync.ApplyMigration(controls, risks)
	if !second.Skipped {
		return fmt.Errorf("second migration renamed %d controls", second.Renamed)
	}
	return nil
}

func checkNoPruneOnKeep(state *State) error {
	risks, controls := cloneState(state)
	before := refCount(risks, controls)
	rep, _, _ := linksync.ApplyReconcile(risks, controls, linksync.KeepDangling)
	if rep.Pruned > 0 {
		return fmt.Errorf("pruned %d references", rep.Pruned)
	}
	if after := refCount(risks, controls); after < before {
		return fmt.Errorf("reference count fell from %d to %d", before, after)
	}
	return nil
}

func refCount(risks []record.Risk, controls []record.Control) int {
	n := 0
	for _, r := range risks {
		n += len(r.ControlRefs)
	}
	for _, c := range controls {
		n += len(c.RiskRefs)
	}
	return n
}
