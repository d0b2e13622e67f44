// Package policy decides who may transition a step, using Rego policies
// evaluated locally by OPA.
package policy

import (
	"encoding/json"
	"time"
)

// PolicyDecision represents the outcome of evaluating the transition
// policies against one request. It is stored in the policy_decisions table
// for the audit trail.
type PolicyDecision struct {
	ID          int64     `json:"id"`                   // Auto-increment primary key
	DecisionID  string    `json:"decisionId"`           // UUID for referencing
	PolicyPath  string    `json:"policyPath"`           // Rego package path (e.g., "plantrack.transitions")
	Result      string    `json:"result"`               // "allow" or "deny"
	Violations  []string  `json:"violations,omitempty"` // Deny messages from OPA
	Warnings    []string  `json:"warnings,omitempty"`   // Warn messages; never block
	Input       any       `json:"input"`                // The input that was evaluated
	PlanID      string    `json:"planId,omitempty"`
	StepID      string    `json:"stepId,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// PolicyResult constants.
const (
	PolicyResultAllow = "allow"
	PolicyResultDeny  = "deny"
)

// IsAllowed returns true if the policy decision was "allow".
func (d *PolicyDecision) IsAllowed() bool {
	return d.Result == PolicyResultAllow
}

// IsDenied returns true if the policy decision was "deny".
func (d *PolicyDecision) IsDenied() bool {
	return d.Result == PolicyResultDeny
}

// ViolationsJSON returns the violations as a JSON string for storage.
func (d *PolicyDecision) ViolationsJSON() string {
	return stringsJSON(d.Violations)
}

// WarningsJSON returns the warnings as a JSON string for storage.
func (d *PolicyDecision) WarningsJSON() string {
	return stringsJSON(d.Warnings)
}

// InputJSON returns the input as a JSON string for storage.
func (d *PolicyDecision) InputJSON() string {
	if d.Input == nil {
		return "{}"
	}
	b, err := json.Marshal(d.Input)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func stringsJSON(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// ParseStrings parses a JSON string array stored by the audit store.
func ParseStrings(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

// TransitionInput is what Rego policies receive as `input`.
//
//	{
//	  "plan":    { "id": "...", "type": "feature", "revision": 3, "archived": false },
//	  "step":    { "id": "...", "kind": "review", "state": "in-progress", "dependsOn": [...] },
//	  "request": { "to": "done", "actor": "alice", "notes": "...", "blockReason": "" }
//	}
type TransitionInput struct {
	Plan    PlanInput    `json:"plan"`
	Step    StepInput    `json:"step"`
	Request RequestInput `json:"request"`
}

// PlanInput contains plan-level data for policy evaluation.
type PlanInput struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Title           string `json:"title"`
	Revision        int    `json:"revision"`
	Archived        bool   `json:"archived"`
	PercentComplete int    `json:"percentComplete"`
}

// StepInput contains the step being transitioned.
type StepInput struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Kind      string   `json:"kind"`
	State     string   `json:"state"`
	DependsOn []string `json:"dependsOn"`
}

// RequestInput contains the requested change and who asked for it.
type RequestInput struct {
	Action      string `json:"action"`
	To          string `json:"to"`
	Actor       string `json:"actor"`
	Notes       string `json:"notes,omitempty"`
	BlockReason string `json:"blockReason,omitempty"`
}

// Request actions.
const (
	ActionTransition = "transition"
	ActionReopen     = "reopen"
)
