package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/riskctl/internal/linksync"
	"github.com/roach88/riskctl/internal/record"
)

// State is the final content of both collections.
type State struct {
	Risks    []record.Risk
	Controls []record.Control
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s risks=%d controls=%d\n",
				ev.Step, ev.Op, ev.ID,
				ev.Writes[record.CollectionRisks], ev.Writes[record.CollectionControls])
		}
	}
	return buf.String()
}

func assertRelationHolds(state *State, strict bool) error {
	var bad []string
	for _, v := range linksync.Check(state.Risks, state.Controls) {
		if strict || v.Kind == linksync.MissingMirror {
			bad = append(bad, v.String())
		}
	}
	if len(bad) == 0 {
		return nil
	}
	typ := AssertRelationHolds
	if strict {
		typ = AssertNoViolations
	}
	return &AssertionError{
		Type:     typ,
		Expected: "no violations",
		Actual:   strings.Join(bad, "; "),
	}
}

func assertRiskRefs(state *State, a Assertion) error {
	i, ok := record.RiskIndex(state.Risks)[a.ID]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("risk %s", a.ID), Actual: "risk not found"}
	}
	return compareRefSets(a, state.Risks[i].ControlRefs)
}

func assertControlRefs(state *State, a Assertion) error {
	i, ok := record.ControlIndex(state.Controls)[a.ID]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("control %s", a.ID), Actual: "control not found"}
	}
	return compareRefSets(a, state.Controls[i].RiskRefs)
}

// compareRefSets ignores order.
func compareRefSets(a Assertion, actual record.Refs) error {
	if record.NormalizeRefs(a.Refs).Equal(actual) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s refs %s", a.ID, formatSet(a.Refs)),
		Actual:   formatSet(actual),
	}
}

func assertControlIDs(state *State, a Assertion) error {
	ids := make([]string, len(state.Controls))
	for i, c := range state.Controls {
		ids[i] = c.ID
	}
	if strings.Join(ids, ",") == strings.Join(a.IDs, ",") && len(ids) == len(a.IDs) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("[%s]", strings.Join(a.IDs, ", ")),
		Actual:   fmt.Sprintf("[%s]", strings.Join(ids, ", ")),
	}
}

func assertCount(state *State, a Assertion) error {
	var n int
	switch a.Collection {
	case record.CollectionRisks:
		n = len(state.Risks)
	case record.CollectionControls:
		n = len(state.Controls)
	default:
		return fmt.Errorf("count: unknown collection %q", a.Collection)
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d %s", a.Count, a.Collection),
		Actual:   fmt.Sprintf("%d %s", n, a.Collection),
	}
}

func assertWrites(result *Result, a Assertion) error {
	n, ok := result.WritesAt(a.Step, a.Collection)
	if !ok {
		return fmt.Errorf("writes: step %d was not executed", a.Step)
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("step %d writes %s %d time(s)", a.Step, a.Collection, a.Count),
		Actual:   fmt.Sprintf("%d write(s)", n),
		Trace:    result.Trace,
	}
}

func formatSet(refs []string) string {
	sorted := append([]string(nil), refs...)
	sort.Strings(sorted)
	return "{" + strings.Join(sorted, ", ") + "}"
}

// EvaluateAssertions evaluates all assertions against the result and the
// final state. Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, state *State) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertRelationHolds:
			err = assertRelationHolds(state, false)
		case AssertNoViolations:
			err = assertRelationHolds(state, true)
		case AssertRiskRefs:
			err = assertRiskRefs(state, a)
		case AssertControlRefs:
			err = assertControlRefs(state, a)
		case AssertControlIDs:
			err = assertControlIDs(state, a)
		case AssertCount:
			err = assertCount(state, a)
		case AssertWrites:
			err = assertWrites(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
