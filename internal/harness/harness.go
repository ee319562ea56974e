package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/riskctl/internal/activity"
	"github.com/roach88/riskctl/internal/linksync"
	"github.com/roach88/riskctl/internal/record"
	"github.com/roach88/riskctl/internal/registry"
	"github.com/roach88/riskctl/internal/store"
	"github.com/roach88/riskctl/internal/testutil"
)

// trackedCollections are the collections whose saves appear in the trace.
var trackedCollections = []string{record.CollectionRisks, record.CollectionControls}

// Env is the isolated environment one scenario runs in.
type Env struct {
	Backend  *testutil.CountingBackend
	Store    *store.Store
	Registry *registry.Registry
	Activity *activity.MemoryRecorder
}

// NewEnv builds a fresh in-memory environment with deterministic time and
// Risk ids.
func NewEnv(logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	backend := testutil.NewCountingBackend(testutil.NewMemoryBackend())
	st := store.New(backend)
	rec := &activity.MemoryRecorder{}
	clock := testutil.NewDeterministicClock(time.Time{})
	reg := registry.New(st,
		registry.WithClock(clock.Now),
		registry.WithRiskIDs(testutil.NewSequenceGenerator("R")),
		registry.WithActivity(rec),
		registry.WithLogger(logger),
	)
	return &Env{Backend: backend, Store: st, Registry: reg, Activity: rec}
}

// Run executes a scenario and returns the result.
//
// Setup or step errors that the scenario did not expect are reported in
// Result.Errors. The returned error is reserved for failures of the harness
// itself, such as an unusable seed.
func Run(scenario *Scenario) (*Result, error) {
	return RunIn(context.Background(), NewEnv(nil), scenario)
}

// RunIn executes a scenario inside env.
func RunIn(ctx context.Context, env *Env, scenario *Scenario) (*Result, error) {
	if err := seed(ctx, env.Store, scenario.Seed); err != nil {
		return nil, fmt.Errorf("seed %s: %w", scenario.Name, err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		env.Backend.ResetCounts()
		id, err := execStep(ctx, env.Registry, step)

		ev := TraceEvent{Step: i + 1, Op: step.Op, ID: id, Writes: map[string]int{}}
		for _, c := range trackedCollections {
			ev.Writes[c] = env.Backend.Saves(c)
		}

		switch {
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got success", i+1, step.Op, step.ExpectError))
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got %q", i+1, step.Op, step.ExpectError, err.Error()))
		case step.ExpectError != "":
			ev.Error = err.Error()
		case err != nil:
			result.AddError(fmt.Sprintf("step %d (%s): %v", i+1, step.Op, err))
		case step.ExpectID != "" && id != step.ExpectID:
			result.AddError(fmt.Sprintf("step %d (%s): expected id %q, got %q", i+1, step.Op, step.ExpectID, id))
		}
		result.AddStep(ev)
	}

	risks, err := env.Store.Risks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load final risks: %w", err)
	}
	controls, err := env.Store.Controls(ctx)
	if err != nil {
		return nil, fmt.Errorf("load final controls: %w", err)
	}

	state := &State{Risks: risks, Controls: controls}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, state) {
		result.AddError(msg)
	}
	for _, msg := range CheckPrinciples(scenario.Principles, state) {
		result.AddError(msg)
	}
	result.state = state
	return result, nil
}

// seed writes the scenario seed straight to the store, bypassing the
// Registry so the data can carry drift.
func seed(ctx context.Context, st *store.Store, s Seed) error {
	if len(s.Risks) > 0 {
		risks := make([]record.Risk, len(s.Risks))
		for i, r := range s.Risks {
			risks[i] = record.Risk{
				ID:          r.ID,
				Title:       r.Title,
				ControlRefs: record.NormalizeRefs(r.ControlRefs),
				CreatedAt:   r.CreatedAt,
			}
		}
		if err := st.SetRisks(ctx, risks); err != nil {
			return err
		}
	}
	if len(s.Controls) > 0 {
		controls := make([]record.Control, len(s.Controls))
		for i, c := range s.Controls {
			ref := c.Reference
			if ref == "" {
				ref = c.ID
			}
			controls[i] = record.Control{
				ID:        c.ID,
				Reference: ref,
				Title:     c.Title,
				RiskRefs:  record.NormalizeRefs(c.RiskRefs),
				CreatedAt: c.CreatedAt,
			}
		}
		if err := st.SetControls(ctx, controls); err != nil {
			return err
		}
	}
	return nil
}

// execStep runs one step and returns the id it created or targeted.
func execStep(ctx context.Context, reg *registry.Registry, step Step) (string, error) {
	switch step.Op {
	case OpCreateRisk:
		r, err := reg.CreateRisk(ctx, registry.RiskInput{Title: titleOr(step.Title, "risk"), ControlRefs: step.Refs})
		return r.ID, err

	case OpUpdateRisk:
		current, err := reg.Risk(ctx, step.ID)
		if err != nil {
			return step.ID, err
		}
		_, err = reg.UpdateRisk(ctx, step.ID, registry.RiskInput{
			Title:       titleOr(step.Title, current.Title),
			Description: current.Description,
			Category:    current.Category,
			Owner:       current.Owner,
			Likelihood:  current.Likelihood,
			Impact:      current.Impact,
			Status:      current.Status,
			ControlRefs: step.Refs,
		})
		return step.ID, err

	case OpDeleteRisk:
		return step.ID, reg.DeleteRisk(ctx, step.ID)

	case OpCreateControl:
		c, err := reg.CreateControl(ctx, registry.ControlInput{Title: titleOr(step.Title, "control"), RiskRefs: step.Refs})
		return c.ID, err

	case OpUpdateControl:
		controls, err := reg.Store().Controls(ctx)
		if err != nil {
			return step.ID, err
		}
		title := step.Title
		if i, ok := record.ControlIndex(controls)[step.ID]; ok && title == "" {
			title = controls[i].Title
		}
		_, err = reg.UpdateControl(ctx, step.ID, registry.ControlInput{Title: titleOr(title, "control"), RiskRefs: step.Refs})
		return step.ID, err

	case OpDeleteControl:
		return step.ID, reg.DeleteControl(ctx, step.ID)

	case OpReconcile:
		policy := linksync.KeepDangling
		if step.Prune {
			policy = linksync.PruneDangling
		}
		_, err := reg.Reconcile(ctx, linksync.ReconcileOptions{Dangling: policy})
		return "", err

	case OpMigrate:
		_, err := reg.Migrate(ctx)
		return "", err

	case OpBootstrap:
		_, err := reg.Bootstrap(ctx)
		return "", err
	}
	return "", fmt.Errorf("unknown op %q", step.Op)
}

func titleOr(title, fallback string) string {
	if strings.TrimSpace(title) == "" {
		return fallback
	}
	return title
}
