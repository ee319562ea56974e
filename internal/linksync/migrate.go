package linksync

import (
	"context"
	"sort"

	"github.com/roach88/riskctl/internal/ident"
	"github.com/roach88/riskctl/internal/metrics"
	"github.com/roach88/riskctl/internal/record"
)

// Migration summarises an identifier migration.
type Migration struct {
	// Mapping is old id to new id for every Control whose id changed.
	// When an old id occurs more than once the first assignment wins.
	Mapping map[string]string `json:"mapping"`

	// Renamed counts Controls whose id changed.
	Renamed int `json:"renamed"`

	// RisksRewritten counts Risks whose ControlRefs changed.
	RisksRewritten int `json:"risksRewritten"`

	// ReferencesRepaired counts Controls whose reference was reset to their
	// id without renumbering.
	ReferencesRepaired int `json:"referencesRepaired"`

	// Skipped is true when ids were canonical, unique and mirrored by
	// their references, so nothing changed.
	Skipped bool `json:"skipped"`
}

// ApplyMigration renumbers controls into CTRL-001, CTRL-002, ... ordered by
// createdAt ascending (missing timestamps sort as epoch 0, ties keep
// collection order) and rewrites risks' ControlRefs through the mapping.
//
// Duplicate ids force a renumbering even when each is canonical. When ids
// are canonical and unique, only references that drifted from their id are
// reset and the order is kept.
//
// It returns the controls in their new order; risks is modified in place.
func ApplyMigration(controls []record.Control, risks []record.Risk) ([]record.Control, Migration) {
	if !ident.NeedsMigration(controls) {
		return repairReferences(controls)
	}

	sorted := make([]record.Control, len(controls))
	copy(sorted, controls)
	sort.SliceStable(sorted, func(i, j int) bool {
		return record.CreatedKey(sorted[i].CreatedAt) < record.CreatedKey(sorted[j].CreatedAt)
	})

	m := Migration{Mapping: make(map[string]string, len(sorted))}
	assigned := make(map[string]bool, len(sorted))
	for i := range sorted {
		c := &sorted[i]
		newID := ident.FormatControlID(i + 1)
		if _, seen := assigned[c.ID]; !seen {
			assigned[c.ID] = true
			if c.ID != newID {
				m.Mapping[c.ID] = newID
			}
		}
		if c.ID != newID {
			m.Renamed++
		}
		c.ID = newID
		c.Reference = newID
	}

	for i := range risks {
		if risks[i].ControlRefs.Replace(m.Mapping) {
			risks[i].ControlRefs = dedupe(risks[i].ControlRefs)
			m.RisksRewritten++
		}
	}
	return sorted, m
}

func repairReferences(controls []record.Control) ([]record.Control, Migration) {
	m := Migration{Mapping: map[string]string{}}
	if ident.StaleReferences(controls) == 0 {
		m.Skipped = true
		return controls, m
	}
	out := make([]record.Control, len(controls))
	copy(out, controls)
	for i := range out {
		if out[i].Reference != out[i].ID {
			out[i].Reference = out[i].ID
			m.ReferencesRepaired++
		}
	}
	return out, m
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(refs record.Refs) record.Refs {
	out := make(record.Refs, 0, len(refs))
	for _, id := range refs {
		out.Add(id)
	}
	return out
}

// MigrateControlIDs runs ApplyMigration against the store. Controls are
// written first, then Risks if any reference was rewritten. A second run
// finds canonical, unique ids and writes nothing.
func (s *Synchronizer) MigrateControlIDs(ctx context.Context) (Migration, error) {
	controls, err := s.st.Controls(ctx)
	if err != nil {
		return Migration{}, err
	}
	if !ident.NeedsMigration(controls) && ident.StaleReferences(controls) == 0 {
		return Migration{Mapping: map[string]string{}, Skipped: true}, nil
	}

	risks, err := s.st.Risks(ctx)
	if err != nil {
		return Migration{}, err
	}

	migrated, m := ApplyMigration(controls, risks)

	if err := s.st.SetControls(ctx, migrated); err != nil {
		return m, err
	}
	s.metrics.CollectionWrite(record.CollectionControls, metrics.OriginMigrate)
	s.metrics.IDsMigrated(m.Renamed)

	if m.RisksRewritten > 0 {
		if err := s.st.SetRisks(ctx, risks); err != nil {
			return m, err
		}
		s.metrics.CollectionWrite(record.CollectionRisks, metrics.OriginMigrate)
	}

	s.logger.Info("migrated control identifiers",
		"controls", len(migrated),
		"renamed", m.Renamed,
		"references_repaired", m.ReferencesRepaired,
		"risks_rewritten", m.RisksRewritten)
	return m, nil
}
