package app

import (
	"context"
	"fmt"

	"github.com/josephgoksu/plantrack/internal/dag"
	"github.com/josephgoksu/plantrack/internal/eligibility"
	"github.com/josephgoksu/plantrack/internal/policy"
	"github.com/josephgoksu/plantrack/internal/progress"
	"github.com/josephgoksu/plantrack/internal/status"
	"github.com/josephgoksu/plantrack/models"
	"github.com/josephgoksu/plantrack/types"
)

// CodeUnknownStep is reported when a request names a step the plan lacks.
const CodeUnknownStep = "unknown_step"

// StepResult is the outcome of a step mutation.
type StepResult struct {
	Plan *models.Plan `json:"plan"`
	Step models.Step  `json:"step"`

	// Decision is the policy decision, nil when no policy engine is set.
	Decision *policy.PolicyDecision `json:"decision,omitempty"`

	// PolicyWarnings are non-blocking messages from warn rules.
	PolicyWarnings []string `json:"policyWarnings,omitempty"`
}

// Transition moves one step to req.To. Eligibility is computed from the
// stored snapshot, the state machine produces the next status, policies
// may still deny it, and only then is the plan saved with a new revision.
// Validation and state machine failures are *types.Issue values.
func (a *PlanApp) Transition(ctx context.Context, id string, req status.Request) (*StepResult, error) {
	unlock := a.locks.lock(id)
	defer unlock()

	plan, g, step, err := a.loadStep(ctx, id, req.StepID)
	if err != nil {
		return nil, err
	}

	elig := a.checker.CanStart(g, plan.States(), req.StepID)
	next, err := a.engine.Apply(step.Status, req, elig)
	if err != nil {
		a.log.Debug("transition rejected",
			"plan_id", id, "step_id", req.StepID,
			"from", step.Status.State, "to", req.To, "error", err)
		return nil, err
	}

	decision, err := a.evaluate(ctx, plan, step, policy.RequestInput{
		Action:      policy.ActionTransition,
		To:          string(req.To),
		Actor:       req.Actor,
		Notes:       req.Notes,
		BlockReason: req.BlockReason,
	})
	if err != nil {
		return nil, err
	}

	from := step.Status.State
	step.Status = next
	plan.Touch(a.now().UTC())
	if err := a.store.Save(ctx, plan); err != nil {
		return nil, fmt.Errorf("save plan %s: %w", id, err)
	}

	a.log.Info("step transitioned",
		"plan_id", id,
		"step_id", req.StepID,
		"from", from,
		"to", next.State,
		"actor", req.Actor,
		"revision", plan.Metadata.Revision)
	return a.stepResult(plan, step, decision), nil
}

// Reopen returns a done or skipped step to pending. reason is required and
// is appended to the step notes.
func (a *PlanApp) Reopen(ctx context.Context, id, stepID, reason, actor string) (*StepResult, error) {
	unlock := a.locks.lock(id)
	defer unlock()

	plan, _, step, err := a.loadStep(ctx, id, stepID)
	if err != nil {
		return nil, err
	}

	next, err := a.engine.Reopen(step.Status, stepID, reason)
	if err != nil {
		return nil, err
	}

	decision, err := a.evaluate(ctx, plan, step, policy.RequestInput{
		Action: policy.ActionReopen,
		To:     string(models.StatePending),
		Actor:  actor,
		Notes:  reason,
	})
	if err != nil {
		return nil, err
	}

	from := step.Status.State
	step.Status = next
	plan.Touch(a.now().UTC())
	if err := a.store.Save(ctx, plan); err != nil {
		return nil, fmt.Errorf("save plan %s: %w", id, err)
	}

	a.log.Info("step reopened", "plan_id", id, "step_id", stepID, "from", from, "actor", actor)
	return a.stepResult(plan, step, decision), nil
}

// Annotate replaces a step's notes. The state is untouched and no policy
// is consulted.
func (a *PlanApp) Annotate(ctx context.Context, id, stepID, notes string) (*StepResult, error) {
	unlock := a.locks.lock(id)
	defer unlock()

	plan, _, step, err := a.loadStep(ctx, id, stepID)
	if err != nil {
		return nil, err
	}

	step.Status = a.engine.Annotate(step.Status, notes)
	plan.Touch(a.now().UTC())
	if err := a.store.Save(ctx, plan); err != nil {
		return nil, fmt.Errorf("save plan %s: %w", id, err)
	}
	return a.stepResult(plan, step, nil), nil
}

// CanStart reports whether every dependency of stepID is satisfied.
func (a *PlanApp) CanStart(ctx context.Context, id, stepID string) (eligibility.Result, error) {
	plan, g, _, err := a.loadStep(ctx, id, stepID)
	if err != nil {
		return eligibility.Result{}, err
	}
	return a.checker.CanStart(g, plan.States(), stepID), nil
}

// Ready lists the pending steps whose dependencies are all satisfied, in
// declaration order.
func (a *PlanApp) Ready(ctx context.Context, id string) ([]string, error) {
	plan, g, err := a.loadGraph(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.checker.Ready(g, plan.States()), nil
}

// Impact lists every step that transitively depends on stepID, in
// declaration order. These are the steps a reopen or block would hold up.
func (a *PlanApp) Impact(ctx context.Context, id, stepID string) ([]string, error) {
	_, g, _, err := a.loadStep(ctx, id, stepID)
	if err != nil {
		return nil, err
	}
	return g.Descendants(stepID), nil
}

func (a *PlanApp) loadGraph(ctx context.Context, id string) (*models.Plan, *dag.Graph, error) {
	plan, err := a.store.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	g, err := dag.New(plan.Steps)
	if err != nil {
		return nil, nil, fmt.Errorf("plan %s: %w", id, err)
	}
	return plan, g, nil
}

// loadStep returns the plan, its graph and a pointer into plan.Steps.
func (a *PlanApp) loadStep(ctx context.Context, id, stepID string) (*models.Plan, *dag.Graph, *models.Step, error) {
	plan, g, err := a.loadGraph(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	step := plan.StepByID(stepID)
	if step == nil {
		issue := types.Issuef(types.KindReferential, CodeUnknownStep,
			"plan %s has no step %q", id, stepID)
		issue.StepID = stepID
		return nil, nil, nil, issue
	}
	return plan, g, step, nil
}

// evaluate consults the policy engine and records the decision. A denial
// is returned as *PolicyDeniedError after it has been audited.
func (a *PlanApp) evaluate(ctx context.Context, plan *models.Plan, step *models.Step, req policy.RequestInput) (*policy.PolicyDecision, error) {
	if a.policies == nil {
		return nil, nil
	}

	input := transitionInput(plan, step, req)

	decision, err := a.policies.Evaluate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("evaluate policies: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.SaveDecision(decision); err != nil {
			a.log.Warn("failed to record policy decision",
				"decision_id", decision.DecisionID, "error", err)
		}
	}

	if decision.IsDenied() {
		a.log.Info("transition denied by policy",
			"plan_id", plan.ID,
			"step_id", step.ID,
			"actor", req.Actor,
			"violations", decision.Violations)
		return decision, &PolicyDeniedError{Decision: decision}
	}
	return decision, nil
}

// CheckPolicy evaluates the policies for a transition without applying it
// or recording the decision. It returns nil when no engine is configured.
func (a *PlanApp) CheckPolicy(ctx context.Context, id string, req status.Request) (*policy.PolicyDecision, error) {
	if a.policies == nil {
		return nil, nil
	}
	plan, _, step, err := a.loadStep(ctx, id, req.StepID)
	if err != nil {
		return nil, err
	}
	decision, err := a.policies.Evaluate(ctx, transitionInput(plan, step, policy.RequestInput{
		Action:      policy.ActionTransition,
		To:          string(req.To),
		Actor:       req.Actor,
		Notes:       req.Notes,
		BlockReason: req.BlockReason,
	}))
	if err != nil {
		return nil, fmt.Errorf("evaluate policies: %w", err)
	}
	return decision, nil
}

func transitionInput(plan *models.Plan, step *models.Step, req policy.RequestInput) *policy.TransitionInput {
	return &policy.TransitionInput{
		Plan: policy.PlanInput{
			ID:              plan.ID,
			Type:            string(plan.Type),
			Title:           plan.Metadata.Title,
			Revision:        plan.Metadata.Revision,
			Archived:        plan.IsArchived(),
			PercentComplete: progress.Compute(plan.Steps).PercentComplete,
		},
		Step: policy.StepInput{
			ID:        step.ID,
			Title:     step.Title,
			Kind:      string(step.Kind),
			State:     string(step.Status.State),
			DependsOn: nonNilStrings(step.DependsOn),
		},
		Request: req,
	}
}

func (a *PlanApp) stepResult(plan *models.Plan, step *models.Step, decision *policy.PolicyDecision) *StepResult {
	res := &StepResult{Plan: plan, Step: step.Clone(), Decision: decision}
	if decision != nil {
		res.PolicyWarnings = decision.Warnings
	}
	return res
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
