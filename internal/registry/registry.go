package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/riskctl/internal/activity"
	"github.com/roach88/riskctl/internal/ident"
	"github.com/roach88/riskctl/internal/linksync"
	"github.com/roach88/riskctl/internal/metrics"
	"github.com/roach88/riskctl/internal/notify"
	"github.com/roach88/riskctl/internal/record"
	"github.com/roach88/riskctl/internal/store"
)

var (
	// ErrNotFound is returned when an update or delete names an unknown id.
	ErrNotFound = errors.New("not found")

	// ErrInvalid is returned for input that fails validation.
	ErrInvalid = errors.New("invalid input")
)

// maxIDAttempts bounds retries when a generated Risk id already exists.
const maxIDAttempts = 100

// RiskInput is the editable part of a Risk. ControlRefs is the declared
// set and replaces whatever the risk declared before.
type RiskInput struct {
	Title       string
	Description string
	Category    string
	Owner       string
	Likelihood  int
	Impact      int
	Status      string
	ControlRefs []string
}

// ControlInput is the editable part of a Control.
type ControlInput struct {
	Title       string
	Description string
	Type        record.ControlType
	Owner       string
	Status      string
	RiskRefs    []string
}

// Registry owns all mutations of one store.
type Registry struct {
	mu sync.Mutex

	st       *store.Store
	sync     *linksync.Synchronizer
	now      func() time.Time
	riskIDs  ident.Generator
	bus      *notify.Bus
	recorder activity.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	dangling linksync.DanglingPolicy

	bootstrapped bool
}

// New creates a Registry over st.
func New(st *store.Store, opts ...Option) *Registry {
	r := &Registry{
		st:      st,
		now:     time.Now,
		riskIDs: ident.UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sync = linksync.New(st, linksync.WithLogger(r.logger), linksync.WithMetrics(r.metrics))
	return r
}

// Store returns the underlying store.
func (r *Registry) Store() *store.Store {
	return r.st
}

// CreateRisk adds a Risk with a generated id.
func (r *Registry) CreateRisk(ctx context.Context, in RiskInput) (record.Risk, error) {
	if err := validateRisk(in); err != nil {
		return record.Risk{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	risks, err := r.st.Risks(ctx)
	if err != nil {
		return record.Risk{}, err
	}
	id, err := r.newRiskID(risks)
	if err != nil {
		return record.Risk{}, err
	}

	now := r.stamp()
	risk := applyRiskInput(record.Risk{ID: id, CreatedAt: now}, in, now)
	if err := r.writeRisks(ctx, append(risks, risk)); err != nil {
		return record.Risk{}, err
	}
	if _, err := r.sync.RiskSaved(ctx, risk); err != nil {
		return risk, fmt.Errorf("mirror risk %s: %w", id, err)
	}
	r.announce(ctx, record.KindRisk, record.ActionCreate, risk.ID, risk.Title)
	return risk, nil
}

// UpdateRisk replaces the editable fields of Risk id.
func (r *Registry) UpdateRisk(ctx context.Context, id string, in RiskInput) (record.Risk, error) {
	if err := validateRisk(in); err != nil {
		return record.Risk{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	risks, err := r.st.Risks(ctx)
	if err != nil {
		return record.Risk{}, err
	}
	i, ok := record.RiskIndex(risks)[id]
	if !ok {
		return record.Risk{}, fmt.Errorf("risk %s: %w", id, ErrNotFound)
	}

	risks[i] = applyRiskInput(risks[i], in, r.stamp())
	risk := risks[i]
	if err := r.writeRisks(ctx, risks); err != nil {
		return record.Risk{}, err
	}
	if _, err := r.sync.RiskSaved(ctx, risk); err != nil {
		return risk, fmt.Errorf("mirror risk %s: %w", id, err)
	}
	r.announce(ctx, record.KindRisk, record.ActionUpdate, risk.ID, risk.Title)
	return risk, nil
}

// DeleteRisk removes Risk id and strips it from every Control.
func (r *Registry) DeleteRisk(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	risks, err := r.st.Risks(ctx)
	if err != nil {
		return err
	}
	i, ok := record.RiskIndex(risks)[id]
	if !ok {
		return fmt.Errorf("risk %s: %w", id, ErrNotFound)
	}
	title := risks[i].Title

	if err := r.writeRisks(ctx, append(risks[:i:i], risks[i+1:]...)); err != nil {
		return err
	}
	if _, err := r.sync.RiskDeleted(ctx, id); err != nil {
		return fmt.Errorf("mirror risk delete %s: %w", id, err)
	}
	r.announce(ctx, record.KindRisk, record.ActionDelete, id, title)
	return nil
}

// CreateControl adds a Control with the next sequential identifier.
func (r *Registry) CreateControl(ctx context.Context, in ControlInput) (record.Control, error) {
	if err := validateControl(in); err != nil {
		return record.Control{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	controls, err := r.st.Controls(ctx)
	if err != nil {
		return record.Control{}, err
	}

	id := ident.NextControlID(controls)
	now := r.stamp()
	control := applyControlInput(record.Control{ID: id, Reference: id, CreatedAt: now}, in, now)
	if err := r.writeControls(ctx, append(controls, control)); err != nil {
		return record.Control{}, err
	}
	if _, err := r.sync.ControlSaved(ctx, control); err != nil {
		return control, fmt.Errorf("mirror control %s: %w", id, err)
	}
	r.announce(ctx, record.KindControl, record.ActionCreate, control.ID, control.Title)
	return control, nil
}

// UpdateControl replaces the editable fields of Control id.
func (r *Registry) UpdateControl(ctx context.Context, id string, in ControlInput) (record.Control, error) {
	if err := validateControl(in); err != nil {
		return record.Control{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	controls, err := r.st.Controls(ctx)
	if err != nil {
		return record.Control{}, err
	}
	i, ok := record.ControlIndex(controls)[id]
	if !ok {
		return record.Control{}, fmt.Errorf("control %s: %w", id, ErrNotFound)
	}

	controls[i] = applyControlInput(controls[i], in, r.stamp())
	control := controls[i]
	if err := r.writeControls(ctx, controls); err != nil {
		return record.Control{}, err
	}
	if _, err := r.sync.ControlSaved(ctx, control); err != nil {
		return control, fmt.Errorf("mirror control %s: %w", id, err)
	}
	r.announce(ctx, record.KindControl, record.ActionUpdate, control.ID, control.Title)
	return control, nil
}

// DeleteControl removes Control id and strips it from every Risk.
func (r *Registry) DeleteControl(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	controls, err := r.st.Controls(ctx)
	if err != nil {
		return err
	}
	i, ok := record.ControlIndex(controls)[id]
	if !ok {
		return fmt.Errorf("control %s: %w", id, ErrNotFound)
	}
	title := controls[i].Title

	if err := r.writeControls(ctx, append(controls[:i:i], controls[i+1:]...)); err != nil {
		return err
	}
	if _, err := r.sync.ControlDeleted(ctx, id); err != nil {
		return fmt.Errorf("mirror control delete %s: %w", id, err)
	}
	r.announce(ctx, record.KindControl, record.ActionDelete, id, title)
	return nil
}

// Risks returns the Risk collection.
func (r *Registry) Risks(ctx context.Context) ([]record.Risk, error) {
	return r.st.Risks(ctx)
}

// Risk returns one Risk.
func (r *Registry) Risk(ctx context.Context, id string) (record.Risk, error) {
	risks, err := r.st.Risks(ctx)
	if err != nil {
		return record.Risk{}, err
	}
	i, ok := record.RiskIndex(risks)[id]
	if !ok {
		return record.Risk{}, fmt.Errorf("risk %s: %w", id, ErrNotFound)
	}
	return risks[i], nil
}

// Controls returns the Control collection, bootstrapping the session first.
func (r *Registry) Controls(ctx context.Context) ([]record.Control, error) {
	if _, err := r.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return r.st.Controls(ctx)
}

// Control returns one Control, bootstrapping the session first.
func (r *Registry) Control(ctx context.Context, id string) (record.Control, error) {
	controls, err := r.Controls(ctx)
	if err != nil {
		return record.Control{}, err
	}
	i, ok := record.ControlIndex(controls)[id]
	if !ok {
		return record.Control{}, fmt.Errorf("control %s: %w", id, ErrNotFound)
	}
	return controls[i], nil
}

func (r *Registry) stamp() time.Time {
	return r.now().UTC()
}

func (r *Registry) newRiskID(risks []record.Risk) (string, error) {
	existing := record.RiskIndex(risks)
	for i := 0; i < maxIDAttempts; i++ {
		id := r.riskIDs.Generate()
		if _, taken := existing[id]; !taken && id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("generate risk id: %d attempts collided", maxIDAttempts)
}

func (r *Registry) writeRisks(ctx context.Context, risks []record.Risk) error {
	if err := r.st.SetRisks(ctx, risks); err != nil {
		return err
	}
	r.metrics.CollectionWrite(record.CollectionRisks, metrics.OriginPrimary)
	return nil
}

func (r *Registry) writeControls(ctx context.Context, controls []record.Control) error {
	if err := r.st.SetControls(ctx, controls); err != nil {
		return err
	}
	r.metrics.CollectionWrite(record.CollectionControls, metrics.OriginPrimary)
	return nil
}

// announce notifies the primary collection's channel and records activity.
// Neither can fail the mutation.
func (r *Registry) announce(ctx context.Context, kind record.Kind, action, id, name string) {
	r.bus.Publish(notify.TopicFor(kind), notify.Event{Action: action, ID: id, At: r.stamp()})
	activity.Safe(ctx, r.recorder, r.logger, activity.New(action, kind, id, name))
	r.logger.Info("mutation applied", "kind", kind, "action", action, "id", id)
}

func applyRiskInput(risk record.Risk, in RiskInput, now time.Time) record.Risk {
	risk.Title = strings.TrimSpace(in.Title)
	risk.Description = in.Description
	risk.Category = in.Category
	risk.Owner = in.Owner
	risk.Likelihood = in.Likelihood
	risk.Impact = in.Impact
	risk.Status = in.Status
	risk.ControlRefs = record.NormalizeRefs(in.ControlRefs)
	risk.UpdatedAt = now
	return risk
}

func applyControlInput(control record.Control, in ControlInput, now time.Time) record.Control {
	control.Title = strings.TrimSpace(in.Title)
	control.Description = in.Description
	control.Type = in.Type
	control.Owner = in.Owner
	control.Status = in.Status
	control.RiskRefs = record.NormalizeRefs(in.RiskRefs)
	control.UpdatedAt = now
	return control
}

func validateRisk(in RiskInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: risk title is required", ErrInvalid)
	}
	if in.Likelihood < 0 || in.Likelihood > 5 {
		return fmt.Errorf("%w: likelihood %d outside 1-5", ErrInvalid, in.Likelihood)
	}
	if in.Impact < 0 || in.Impact > 5 {
		return fmt.Errorf("%w: impact %d outside 1-5", ErrInvalid, in.Impact)
	}
	return nil
}

func validateControl(in ControlInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: control title is required", ErrInvalid)
	}
	if in.Type != "" && !record.ValidControlTypes[in.Type] {
		return fmt.Errorf("%w: unknown control type %q", ErrInvalid, in.Type)
	}
	return nil
}
