// Package status is the per-step state machine. Transitions are data: a
// table maps (from, to) pairs to the rule that produces the next status.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/eligibility"
	"github.com/josephgoksu/plantrack/models"
	"github.com/josephgoksu/plantrack/types"
)

// Issue codes returned by the engine.
const (
	CodeInvalidTransition    = "invalid_transition"
	CodeUnknownState         = "unknown_state"
	CodeBlockReasonRequired  = "block_reason_required"
	CodeBlockReasonForbidden = "block_reason_not_allowed"
	CodeIneligibleStart      = "ineligible_start"
	CodeReopenNotTerminal    = "reopen_not_terminal"
	CodeReopenReasonRequired = "reopen_reason_required"
)

// Request asks for one step to move to a new state.
type Request struct {
	StepID      string           `json:"stepId"`
	To          models.StepState `json:"to"`
	Notes       string           `json:"notes,omitempty"`
	BlockReason string           `json:"blockReason,omitempty"`
	Actor       string           `json:"actor,omitempty"`
}

type edge struct {
	from, to models.StepState
}

type rule func(next *models.StepStatus, req Request, elig eligibility.Result, now time.Time) error

// transitions is the complete state machine. Pairs not listed are invalid.
var transitions = map[edge]rule{
	{models.StatePending, models.StateInProgress}: start,
	{models.StateInProgress, models.StateDone}:    complete,
	{models.StateInProgress, models.StateBlocked}: block,
	{models.StateBlocked, models.StateInProgress}: unblock,
	{models.StateBlocked, models.StatePending}:    reset,
	{models.StatePending, models.StateSkipped}:    skip,
	{models.StateInProgress, models.StateSkipped}: skip,
}

// Engine applies transitions within one configured status vocabulary.
type Engine struct {
	cfg config.PlanConfig
	now func() time.Time
}

// New creates an engine bound to cfg. A nil clock means time.Now.
func New(cfg config.PlanConfig, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{cfg: cfg, now: clock}
}

// Apply computes the status that results from req. current is never
// modified. elig is consulted only when leaving pending for in-progress.
// Errors are *types.Issue values.
func (e *Engine) Apply(current models.StepStatus, req Request, elig eligibility.Result) (models.StepStatus, error) {
	from := current.State
	if from == "" {
		from = models.StatePending
	}

	if !req.To.IsValid() {
		return current, stepIssue(req.StepID, types.KindInvalidTransition, CodeUnknownState,
			fmt.Sprintf("unknown target state %q", req.To))
	}
	if !e.cfg.HasStepState(string(req.To)) {
		return current, stepIssue(req.StepID, types.KindInvalidTransition, CodeUnknownState,
			fmt.Sprintf("state %q is not one of: %s", req.To, strings.Join(e.cfg.StepStates, ", ")))
	}
	if req.BlockReason != "" && req.To != models.StateBlocked {
		return current, stepIssue(req.StepID, types.KindInvalidTransition, CodeBlockReasonForbidden,
			fmt.Sprintf("blockReason is only accepted when moving to blocked, not %s", req.To))
	}

	apply, ok := transitions[edge{from, req.To}]
	if !ok {
		msg := fmt.Sprintf("cannot transition from %s to %s", from, req.To)
		if from.IsTerminal() {
			msg += "; reopen the step instead"
		}
		return current, stepIssue(req.StepID, types.KindInvalidTransition, CodeInvalidTransition, msg)
	}

	next := current.Clone()
	next.State = from
	if err := apply(&next, req, elig, e.now().UTC()); err != nil {
		return current, err
	}
	next.State = req.To
	if req.Notes != "" {
		next.Notes = req.Notes
	}
	return next, nil
}

// Reopen is the explicit action that returns a done or skipped step to
// pending. It clears both timestamps and records reason in the notes.
func (e *Engine) Reopen(current models.StepStatus, stepID, reason string) (models.StepStatus, error) {
	if !current.State.IsTerminal() {
		return current, stepIssue(stepID, types.KindInvalidTransition, CodeReopenNotTerminal,
			fmt.Sprintf("only done or skipped steps can be reopened, step is %s", current.State))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return current, stepIssue(stepID, types.KindInvalidTransition, CodeReopenReasonRequired,
			"a reason is required to reopen a step")
	}

	note := fmt.Sprintf("reopened %s: %s", e.now().UTC().Format(time.RFC3339), reason)
	if current.Notes != "" {
		note = current.Notes + "\n" + note
	}
	return models.StepStatus{State: models.StatePending, Notes: note}, nil
}

// Annotate replaces the notes of a step without touching its state.
func (e *Engine) Annotate(current models.StepStatus, notes string) models.StepStatus {
	next := current.Clone()
	next.Notes = notes
	return next
}

// Targets lists the states reachable from s through Apply under the full
// status vocabulary.
func Targets(s models.StepState) []models.StepState {
	var out []models.StepState
	for _, to := range models.AllStates {
		if _, ok := transitions[edge{s, to}]; ok {
			out = append(out, to)
		}
	}
	return out
}

// Targets lists the states reachable from s that the engine's vocabulary
// allows.
func (e *Engine) Targets(s models.StepState) []models.StepState {
	var out []models.StepState
	for _, to := range Targets(s) {
		if e.cfg.HasStepState(string(to)) {
			out = append(out, to)
		}
	}
	return out
}

func start(next *models.StepStatus, req Request, elig eligibility.Result, now time.Time) error {
	if !elig.Allowed {
		issue := stepIssue(req.StepID, types.KindIneligibleStart, CodeIneligibleStart,
			fmt.Sprintf("cannot start: %s", elig.Reason))
		issue.Related = elig.MissingDependencies
		return issue
	}
	next.StartedAt = &now
	return nil
}

func complete(next *models.StepStatus, _ Request, _ eligibility.Result, now time.Time) error {
	next.CompletedAt = &now
	return nil
}

func block(next *models.StepStatus, req Request, _ eligibility.Result, _ time.Time) error {
	reason := strings.TrimSpace(req.BlockReason)
	if reason == "" {
		return stepIssue(req.StepID, types.KindInvalidTransition, CodeBlockReasonRequired,
			"blocking a step requires a blockReason")
	}
	next.BlockReason = reason
	return nil
}

func unblock(next *models.StepStatus, _ Request, _ eligibility.Result, _ time.Time) error {
	next.BlockReason = ""
	return nil
}

func reset(next *models.StepStatus, _ Request, _ eligibility.Result, _ time.Time) error {
	next.BlockReason = ""
	next.StartedAt = nil
	return nil
}

func skip(next *models.StepStatus, _ Request, _ eligibility.Result, now time.Time) error {
	if next.StartedAt == nil {
		started := now
		next.StartedAt = &started
	}
	next.CompletedAt = &now
	return nil
}

func stepIssue(stepID string, kind types.ErrorKind, code, message string) *types.Issue {
	issue := types.NewIssue(kind, code, message)
	issue.StepID = stepID
	return issue
}
