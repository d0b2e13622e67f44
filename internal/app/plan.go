package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josephgoksu/plantrack/internal/util"
	"github.com/josephgoksu/plantrack/models"
	"github.com/josephgoksu/plantrack/store"
	"github.com/josephgoksu/plantrack/types"
)

// ImportOptions configures Import.
type ImportOptions struct {
	// NewID re-keys the document as a fresh plan: a generated ID, revision
	// 1, every step pending. Use it to instantiate a template.
	NewID bool
}

// PlanResult is the outcome of a plan-level mutation.
type PlanResult struct {
	Plan   *models.Plan `json:"plan"`
	Report types.Report `json:"report"`
}

// Validate runs schema then semantic validation over a raw JSON or YAML
// document. The plan is nil unless the report is valid.
func (a *PlanApp) Validate(raw []byte) (*models.Plan, types.Report) {
	plan, report := a.validator.ValidateDocument(raw, a.now().UTC())
	a.log.Debug("plan validated",
		"valid", report.IsValid,
		"errors", len(report.Errors),
		"warnings", len(report.Warnings))
	return plan, report
}

// Import validates raw and stores it as a new plan.
func (a *PlanApp) Import(ctx context.Context, raw []byte, opts ImportOptions) (*PlanResult, error) {
	plan, report := a.Validate(raw)
	if !report.IsValid {
		return &PlanResult{Report: report}, &ValidationError{Report: report}
	}

	if opts.NewID {
		plan.ID = newPlanID()
		resetForTemplate(plan, a.now().UTC())
	}

	unlock := a.locks.lock(plan.ID)
	defer unlock()

	_, err := a.store.Load(ctx, plan.ID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, plan.ID)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("check plan %s: %w", plan.ID, err)
	}

	if err := a.store.Save(ctx, plan); err != nil {
		return nil, fmt.Errorf("save plan %s: %w", plan.ID, err)
	}
	a.log.Info("plan imported",
		"plan_id", plan.ID,
		"steps", len(plan.Steps),
		"warnings", len(report.Warnings))
	return &PlanResult{Plan: plan, Report: report}, nil
}

// Revise replaces the definition of a stored plan with raw. The document
// is fully re-validated. Steps that survive by ID keep their stored status;
// new steps take the status the document declares. The revision moves on
// from the stored one.
func (a *PlanApp) Revise(ctx context.Context, id string, raw []byte) (*PlanResult, error) {
	next, report := a.Validate(raw)
	if !report.IsValid {
		return &PlanResult{Report: report}, &ValidationError{Report: report}
	}
	if next.ID != id {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrPlanIDMismatch, next.ID, id)
	}

	unlock := a.locks.lock(id)
	defer unlock()

	current, err := a.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsArchived() {
		return nil, fmt.Errorf("%w: %s", ErrArchived, id)
	}

	carried := 0
	for i := range next.Steps {
		if old := current.StepByID(next.Steps[i].ID); old != nil {
			next.Steps[i].Status = old.Status.Clone()
			carried++
		}
	}
	next.Metadata.CreatedAt = current.Metadata.CreatedAt
	next.Metadata.UpdatedAt = current.Metadata.UpdatedAt
	next.Metadata.Revision = current.Metadata.Revision
	next.Metadata.ArchivedAt = nil
	next.Touch(a.now().UTC())

	if err := a.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save plan %s: %w", id, err)
	}
	a.log.Info("plan revised",
		"plan_id", id,
		"revision", next.Metadata.Revision,
		"steps", len(next.Steps),
		"statuses_carried", carried)
	return &PlanResult{Plan: next, Report: report}, nil
}

// Get loads a plan by ID.
func (a *PlanApp) Get(ctx context.Context, id string) (*models.Plan, error) {
	return a.store.Load(ctx, id)
}

// List returns every stored plan ordered by ID.
func (a *PlanApp) List(ctx context.Context) ([]*models.Plan, error) {
	return a.store.List(ctx)
}

// ResolvePlanID expands an ID or unique prefix to a stored plan ID.
// Prefixes may omit the "plan-" part of generated IDs.
func (a *PlanApp) ResolvePlanID(ctx context.Context, idOrPrefix string) (string, error) {
	plans, err := a.store.List(ctx)
	if err != nil {
		return "", err
	}
	ids := make([]string, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
	}
	id, err := util.ResolveID(idOrPrefix, ids)
	if errors.Is(err, util.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", store.ErrNotFound, idOrPrefix)
	}
	return id, err
}

// Delete removes a plan.
func (a *PlanApp) Delete(ctx context.Context, id string) error {
	unlock := a.locks.lock(id)
	defer unlock()

	if err := a.store.Delete(ctx, id); err != nil {
		return err
	}
	a.log.Info("plan deleted", "plan_id", id)
	return nil
}

// Archive marks a plan archived. The boolean is false when it already was,
// in which case nothing is written.
func (a *PlanApp) Archive(ctx context.Context, id string) (*models.Plan, bool, error) {
	unlock := a.locks.lock(id)
	defer unlock()

	plan, err := a.store.Load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !plan.Archive(a.now().UTC()) {
		return plan, false, nil
	}
	if err := a.store.Save(ctx, plan); err != nil {
		return nil, false, fmt.Errorf("save plan %s: %w", id, err)
	}
	a.log.Info("plan archived", "plan_id", id, "revision", plan.Metadata.Revision)
	return plan, true, nil
}

func newPlanID() string {
	return util.PlanIDPrefix + uuid.New().String()[:8]
}

func resetForTemplate(plan *models.Plan, now time.Time) {
	plan.Metadata.CreatedAt = now
	plan.Metadata.UpdatedAt = now
	plan.Metadata.Revision = 1
	plan.Metadata.ArchivedAt = nil
	for i := range plan.Steps {
		plan.Steps[i].Status = models.PendingStatus()
	}
}
