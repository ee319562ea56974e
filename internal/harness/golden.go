package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/riskctl/internal/record"
)

// Snapshot captures the observable outcome of a scenario: the write trace
// and both collections reduced to identifiers and references.
// Timestamps are left out so snapshots survive clock changes.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Risks        []record.Risk
	Controls     []record.Control
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization. Zero write counts are omitted.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		writes := map[string]any{}
		for collection, n := range ev.Writes {
			if n != 0 {
				writes[collection] = n
			}
		}
		step := map[string]any{
			"step":   ev.Step,
			"op":     ev.Op,
			"writes": writes,
		}
		if ev.ID != "" {
			step["id"] = ev.ID
		}
		if ev.Error != "" {
			step["error"] = ev.Error
		}
		steps[i] = step
	}

	risks := make([]any, len(s.Risks))
	for i, r := range s.Risks {
		risks[i] = map[string]any{
			"id":          r.ID,
			"controlRefs": []string(r.ControlRefs.Clone()),
		}
	}
	controls := make([]any, len(s.Controls))
	for i, c := range s.Controls {
		controls[i] = map[string]any{
			"id":        c.ID,
			"reference": c.Reference,
			"riskRefs":  []string(c.RiskRefs.Clone()),
		}
	}

	return map[string]any{
		"scenario": s.ScenarioName,
		"steps":    steps,
		"risks":    risks,
		"controls": controls,
	}
}

// MarshalSnapshot renders the snapshot of a finished run as canonical JSON.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snap := Snapshot{ScenarioName: scenarioName, Trace: result.Trace}
	if st := result.State(); st != nil {
		snap.Risks = st.Risks
		snap.Controls = st.Controls
	}
	m := snap.toCanonicalMap()
	return record.MarshalCanonical(m)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
