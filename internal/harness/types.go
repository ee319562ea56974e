package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	// Step is the 1-based step index.
	Step int `json:"step"`

	Op string `json:"op"`

	// ID is the target id, or the id assigned by a create.
	ID string `json:"id,omitempty"`

	// Writes counts collection saves the step performed, keyed by collection.
	Writes map[string]int `json:"writes"`

	// Error holds the step error message when the step failed as expected.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success.
	// True if every step, assertion and principle held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	state *State
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace.
func (r *Result) AddStep(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// WritesAt returns the saves step performed on collection. step is 1-based.
func (r *Result) WritesAt(step int, collection string) (int, bool) {
	if step < 1 || step > len(r.Trace) {
		return 0, false
	}
	return r.Trace[step-1].Writes[collection], true
}

// State returns the final collections, or nil before the run finished.
func (r *Result) State() *State {
	return r.state
}
