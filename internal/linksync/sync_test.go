package linksync

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/riskctl/internal/metrics"
	"github.com/roach88/riskctl/internal/record"
	"github.com/roach88/riskctl/internal/store"
	"github.com/roach88/riskctl/internal/testutil"
)

func TestApplyRiskSaved_AddsAndRemoves(t *testing.T) {
	controls := []record.Control{
		control("CTRL-001", "R1"),
		control("CTRL-002"),
		control("CTRL-003", "R2"),
	}
	res := ApplyRiskSaved(controls, risk("R1", "CTRL-002", "CTRL-003"))

	assert.Equal(t, record.KindControl, res.Side)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 1, res.Removed)
	assert.Empty(t, res.Missing)
	assert.True(t, res.Changed())

	assert.Equal(t, record.Refs{}, controls[0].RiskRefs)
	assert.Equal(t, record.Refs{"R1"}, controls[1].RiskRefs)
	assert.Equal(t, record.Refs{"R2", "R1"}, controls[2].RiskRefs)
}

func TestApplyRiskSaved_ReportsMissingTargets(t *testing.T) {
	controls := []record.Control{control("CTRL-001")}
	res := ApplyRiskSaved(controls, risk("R1", "CTRL-001", "CTRL-404", "CTRL-404"))

	assert.Equal(t, 1, res.Added)
	assert.Equal(t, []string{"CTRL-404"}, res.Missing)
}

func TestApplyControlSaved_Symmetric(t *testing.T) {
	risks := []record.Risk{risk("R1", "CTRL-001"), risk("R2"), risk("R3")}
	res := ApplyControlSaved(risks, control("CTRL-001", "R2"))

	assert.Equal(t, record.KindRisk, res.Side)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, record.Refs{}, risks[0].ControlRefs)
	assert.Equal(t, record.Refs{"CTRL-001"}, risks[1].ControlRefs)
	assert.Empty(t, risks[2].ControlRefs)
}

func TestApplyDeleted(t *testing.T) {
	controls := []record.Control{control("CTRL-001", "R1", "R2"), control("CTRL-002", "R2")}
	res := ApplyRiskDeleted(controls, "R2")
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, record.Refs{"R1"}, controls[0].RiskRefs)
	assert.Equal(t, record.Refs{}, controls[1].RiskRefs)

	risks := []record.Risk{risk("R1", "CTRL-001"), risk("R2")}
	res = ApplyControlDeleted(risks, "CTRL-001")
	assert.Equal(t, 1, res.Removed)
	assert.False(t, ApplyControlDeleted(risks, "CTRL-001").Changed())
}

func TestRiskSaved_WritesControlsOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []record.Risk{risk("R1", "CTRL-001", "CTRL-002")},
		[]record.Control{control("CTRL-001"), control("CTRL-002"), control("CTRL-003")})

	res, err := f.sync.RiskSaved(context.Background(), risk("R1", "CTRL-001", "CTRL-002"))
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 1, f.backend.Saves(record.CollectionControls))
	assert.Equal(t, 0, f.backend.Saves(record.CollectionRisks), "synchronizer never writes the primary side")
}

func TestRiskSaved_UnchangedResaveWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.seed(t, nil, []record.Control{control("CTRL-001"), control("CTRL-002")})
	ctx := context.Background()
	saved := risk("R1", "CTRL-002")

	_, err := f.sync.RiskSaved(ctx, saved)
	require.NoError(t, err)
	require.Equal(t, 1, f.backend.Saves(record.CollectionControls))

	res, err := f.sync.RiskSaved(ctx, saved)
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Equal(t, 1, f.backend.Saves(record.CollectionControls), "second save must not write")
}

func TestRiskSaved_DeclaredSetReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	f.seed(t, nil, []record.Control{control("CTRL-001", "R1"), control("CTRL-002", "R1")})

	_, err := f.sync.RiskSaved(context.Background(), risk("R1", "CTRL-002"))
	require.NoError(t, err)

	cs := f.controls(t)
	assert.Equal(t, record.Refs{}, findControl(cs, "CTRL-001").RiskRefs)
	assert.Equal(t, record.Refs{"R1"}, findControl(cs, "CTRL-002").RiskRefs)
}

func TestControlSaved_MissingRiskIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []record.Risk{risk("R1")}, nil)

	res, err := f.sync.ControlSaved(context.Background(), control("CTRL-001", "R1", "R9"))
	require.NoError(t, err)
	assert.Equal(t, []string{"R9"}, res.Missing)
	assert.Equal(t, record.Refs{"CTRL-001"}, findRisk(f.risks(t), "R1").ControlRefs)
	assert.Len(t, f.risks(t), 1, "missing targets are never created")
}

func TestDeleteCascade_LeavesOtherFieldsAlone(t *testing.T) {
	f := newFixture(t)
	c := control("CTRL-001", "R1", "R2")
	c.UpdatedAt = at(5)
	c.Owner = "ops"
	r := risk("R2", "CTRL-001")
	r.UpdatedAt = at(7)
	f.seed(t, []record.Risk{risk("R1", "CTRL-001"), r}, []record.Control{c})
	ctx := context.Background()

	_, err := f.sync.RiskDeleted(ctx, "R1")
	require.NoError(t, err)
	got := f.controls(t)[0]
	assert.Equal(t, record.Refs{"R2"}, got.RiskRefs)
	assert.Equal(t, "ops", got.Owner)
	assert.True(t, at(5).Equal(got.UpdatedAt), "mirrored write keeps updatedAt")

	_, err = f.sync.ControlDeleted(ctx, "CTRL-001")
	require.NoError(t, err)
	gotRisk := findRisk(f.risks(t), "R2")
	assert.Equal(t, record.Refs{}, gotRisk.ControlRefs)
	assert.True(t, at(7).Equal(gotRisk.UpdatedAt))
}

func TestDelete_NoReferencesNoWrite(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []record.Risk{risk("R1")}, []record.Control{control("CTRL-001")})

	res, err := f.sync.ControlDeleted(context.Background(), "CTRL-001")
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Equal(t, 0, f.backend.Saves(record.CollectionRisks))
}

func TestSynchronizer_PropagatesStoreErrors(t *testing.T) {
	f := newFixture(t)
	f.seed(t, nil, []record.Control{control("CTRL-001")})
	boom := errors.New("quota exceeded")
	f.backend.FailSaves(record.CollectionControls, boom)

	_, err := f.sync.RiskSaved(context.Background(), risk("R1", "CTRL-001"))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrSerialization)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestSynchronizer_CorruptCollection(t *testing.T) {
	b := testutil.NewCountingBackend(nil)
	require.NoError(t, b.Save(context.Background(), record.CollectionControls, []byte(`{`)))
	s := New(store.New(b))

	_, err := s.RiskSaved(context.Background(), risk("R1"))
	assert.ErrorIs(t, err, store.ErrCorrupt)
}

func TestSynchronizer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t)
	f.sync = New(f.st, WithMetrics(metrics.New(reg)))
	f.seed(t, nil, []record.Control{control("CTRL-001")})

	_, err := f.sync.RiskSaved(context.Background(), risk("R1", "CTRL-001", "CTRL-404"))
	require.NoError(t, err)

	values := gather(t, reg)
	assert.Equal(t, 1.0, values["riskctl_collection_writes_total"])
	assert.Equal(t, 1.0, values["riskctl_links_added_total"])
	assert.Equal(t, 1.0, values["riskctl_missing_references_total"])
}

// gather sums every counter family in reg by name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			out[f.GetName()] += m.GetCounter().GetValue()
		}
	}
	return out
}

func TestScenario_CreateControlThenDeleteRisk(t *testing.T) {
	f := newFixture(t)
	f.seed(t, []record.Risk{risk("R1")}, nil)
	ctx := context.Background()

	c := control("CTRL-001", "R1")
	require.NoError(t, f.st.SetControls(ctx, []record.Control{c}))
	_, err := f.sync.ControlSaved(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, record.Refs{"CTRL-001"}, findRisk(f.risks(t), "R1").ControlRefs)

	require.NoError(t, f.st.SetRisks(ctx, []record.Risk{}))
	_, err = f.sync.RiskDeleted(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, record.Refs{}, f.controls(t)[0].RiskRefs)
}
