package registry

import (
	"context"
	"fmt"

	"github.com/roach88/riskctl/internal/linksync"
	"github.com/roach88/riskctl/internal/metrics"
	"github.com/roach88/riskctl/internal/record"
	"github.com/roach88/riskctl/internal/store"
)

// BootstrapReport describes what a session bootstrap did.
type BootstrapReport struct {
	// AlreadyRan is true when this Registry had bootstrapped before.
	AlreadyRan bool `json:"alreadyRan"`

	// MigrationSkipped is true when the stored data version was current.
	MigrationSkipped bool               `json:"migrationSkipped"`
	Migration        linksync.Migration `json:"migration"`
	Reconcile        linksync.Report    `json:"reconcile"`
}

// Bootstrap brings the store up to the current data version and reconciles
// the relation. It runs at most once per Registry; later calls return
// AlreadyRan. A failed bootstrap is retried by the next call.
func (r *Registry) Bootstrap(ctx context.Context) (BootstrapReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bootstrapped {
		return BootstrapReport{AlreadyRan: true}, nil
	}

	rep, err := r.bootstrapLocked(ctx)
	if err != nil {
		return rep, fmt.Errorf("bootstrap: %w", err)
	}
	r.bootstrapped = true
	return rep, nil
}

func (r *Registry) bootstrapLocked(ctx context.Context) (BootstrapReport, error) {
	var rep BootstrapReport

	meta, err := r.st.Meta(ctx)
	if err != nil {
		return rep, err
	}

	if meta.DataVersion >= store.CurrentDataVersion {
		rep.MigrationSkipped = true
	} else {
		if rep.Migration, err = r.migrateLocked(ctx); err != nil {
			return rep, err
		}
	}

	rep.Reconcile, err = r.sync.Reconcile(ctx, linksync.ReconcileOptions{Dangling: r.dangling})
	if err != nil {
		return rep, err
	}

	r.logger.Info("session bootstrapped",
		"data_version", store.CurrentDataVersion,
		"migration_skipped", rep.MigrationSkipped,
		"renamed", rep.Migration.Renamed,
		"links_restored", rep.Reconcile.RiskRefsAdded+rep.Reconcile.ControlRefsAdded)
	return rep, nil
}

// migrateLocked renumbers controls and stamps the data version.
func (r *Registry) migrateLocked(ctx context.Context) (linksync.Migration, error) {
	m, err := r.sync.MigrateControlIDs(ctx)
	if err != nil {
		return m, err
	}
	meta := store.Meta{DataVersion: store.CurrentDataVersion, MigratedAt: r.stamp()}
	if err := r.st.SetMeta(ctx, meta); err != nil {
		return m, err
	}
	return m, nil
}

// Migrate runs identifier migration regardless of the stored data version.
func (r *Registry) Migrate(ctx context.Context) (linksync.Migration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.migrateLocked(ctx)
}

// Reconcile runs one reconciliation pass.
func (r *Registry) Reconcile(ctx context.Context, opts linksync.ReconcileOptions) (linksync.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sync.Reconcile(ctx, opts)
}

// Check lists relation defects without changing anything.
func (r *Registry) Check(ctx context.Context) ([]linksync.Violation, error) {
	risks, err := r.st.Risks(ctx)
	if err != nil {
		return nil, err
	}
	controls, err := r.st.Controls(ctx)
	if err != nil {
		return nil, err
	}
	return linksync.Check(risks, controls), nil
}

// Digest returns the dataset digest of both stored collections.
func (r *Registry) Digest(ctx context.Context) (string, error) {
	risks, err := r.st.Risks(ctx)
	if err != nil {
		return "", err
	}
	controls, err := r.st.Controls(ctx)
	if err != nil {
		return "", err
	}
	return record.DatasetDigest(risks, controls)
}

// ImportReport describes an import.
type ImportReport struct {
	Risks     int                `json:"risks"`
	Controls  int                `json:"controls"`
	Migration linksync.Migration `json:"migration"`
	Reconcile linksync.Report    `json:"reconcile"`
}

// Import replaces both collections with externally supplied data, then
// migrates identifiers and reconciles. Imported data may carry any drift.
func (r *Registry) Import(ctx context.Context, risks []record.Risk, controls []record.Control, policy linksync.DanglingPolicy) (ImportReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := ImportReport{Risks: len(risks), Controls: len(controls)}
	if err := r.st.SetControls(ctx, controls); err != nil {
		return rep, err
	}
	r.metrics.CollectionWrite(record.CollectionControls, metrics.OriginImport)
	if err := r.st.SetRisks(ctx, risks); err != nil {
		return rep, err
	}
	r.metrics.CollectionWrite(record.CollectionRisks, metrics.OriginImport)

	var err error
	if rep.Migration, err = r.migrateLocked(ctx); err != nil {
		return rep, err
	}
	if rep.Reconcile, err = r.sync.Reconcile(ctx, linksync.ReconcileOptions{Dangling: policy}); err != nil {
		return rep, err
	}
	r.logger.Info("import complete",
		"risks", rep.Risks,
		"controls", rep.Controls,
		"renamed", rep.Migration.Renamed)
	return rep, nil
}
