package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/riskctl/internal/record"
)

func linkedState() *State {
	return &State{
		Risks: []record.Risk{
			{ID: "R1", ControlRefs: record.Refs{"CTRL-001", "CTRL-002"}},
			{ID: "R2", ControlRefs: record.Refs{}},
		},
		Controls: []record.Control{
			{ID: "CTRL-001", RiskRefs: record.Refs{"R1"}},
			{ID: "CTRL-002", RiskRefs: record.Refs{"R1"}},
		},
	}
}

func traceWithWrites(risks, controls int) *Result {
	r := NewResult()
	r.AddStep(TraceEvent{Step: 1, Op: OpReconcile, Writes: map[string]int{
		record.CollectionRisks:    risks,
		record.CollectionControls: controls,
	}})
	return r
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertRelationHolds},
		{Type: AssertNoViolations},
		{Type: AssertRiskRefs, ID: "R1", Refs: []string{"CTRL-002", "CTRL-001"}},
		{Type: AssertRiskRefs, ID: "R2"},
		{Type: AssertControlRefs, ID: "CTRL-001", Refs: []string{"R1"}},
		{Type: AssertControlIDs, IDs: []string{"CTRL-001", "CTRL-002"}},
		{Type: AssertCount, Collection: record.CollectionRisks, Count: 2},
		{Type: AssertWrites, Step: 1, Collection: record.CollectionControls, Count: 1},
	}

	errs := EvaluateAssertions(traceWithWrites(0, 1), assertions, linkedState())
	assert.Empty(t, errs)
}

func TestAssertRelationHolds_AsymmetricPair(t *testing.T) {
	state := linkedState()
	state.Controls[1].RiskRefs = record.Refs{}

	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertRelationHolds}}, state)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "relation_holds")
	assert.Contains(t, errs[0], "CTRL-002")
}

func TestAssertRelationHolds_DanglingAllowed(t *testing.T) {
	state := linkedState()
	state.Risks[1].ControlRefs = record.Refs{"CTRL-404"}

	assert.Empty(t, EvaluateAssertions(NewResult(), []Assertion{{Type: AssertRelationHolds}}, state))

	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertNoViolations}}, state)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "CTRL-404")
}

func TestAssertRiskRefs_Mismatch(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertRiskRefs, ID: "R1", Refs: []string{"CTRL-001"}},
	}, linkedState())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Expected: R1 refs {CTRL-001}")
	assert.Contains(t, errs[0], "Actual: {CTRL-001, CTRL-002}")
}

func TestAssertRefs_UnknownRecord(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertRiskRefs, ID: "R9"},
		{Type: AssertControlRefs, ID: "CTRL-009"},
	}, linkedState())
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "risk not found")
	assert.Contains(t, errs[1], "control not found")
}

func TestAssertControlIDs_OrderMatters(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertControlIDs, IDs: []string{"CTRL-002", "CTRL-001"}},
	}, linkedState())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Actual: [CTRL-001, CTRL-002]")
}

func TestAssertCount_UnknownCollection(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertCount, Collection: "activity", Count: 0},
	}, linkedState())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown collection "activity"`)
}

func TestAssertWrites_MismatchIncludesTrace(t *testing.T) {
	errs := EvaluateAssertions(traceWithWrites(2, 0), []Assertion{
		{Type: AssertWrites, Step: 1, Collection: record.CollectionRisks, Count: 1},
	}, linkedState())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "step 1 writes risks 1 time(s)")
	assert.Contains(t, errs[0], "Full trace:")
	assert.Contains(t, errs[0], "[1] reconcile")
}

func TestAssertWrites_StepNotExecuted(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertWrites, Step: 3, Collection: record.CollectionRisks},
	}, linkedState())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "step 3 was not executed")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: "nope"}}, linkedState())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "nope"`)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertCount,
		Expected: "2 risks",
		Actual:   "1 risks",
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: count")
	assert.Contains(t, msg, "Expected: 2 risks")
	assert.Contains(t, msg, "Actual: 1 risks")
	assert.NotContains(t, msg, "Full trace")
}
