package policy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const reviewPolicy = `package plantrack.transitions

import rego.v1

deny contains msg if {
	input.step.kind == "review"
	input.request.to == "done"
	input.request.actor == ""
	msg := sprintf("review step %s needs an actor to complete", [input.step.id])
}

warn contains msg if {
	input.request.to == "skipped"
	msg := sprintf("step %s skipped", [input.step.id])
}
`

func reviewInput(actor, to string) *TransitionInput {
	return &TransitionInput{
		Plan: PlanInput{ID: "plan-1", Type: "feature", Revision: 2},
		Step: StepInput{ID: "review-api", Kind: "review", State: "in-progress"},
		Request: RequestInput{
			Action: ActionTransition,
			To:     to,
			Actor:  actor,
		},
	}
}

func TestEngine_Evaluate_NoPolicies(t *testing.T) {
	engine := NewEngineWithPolicies(nil)

	decision, err := engine.Evaluate(context.Background(), reviewInput("", "done"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !decision.IsAllowed() {
		t.Errorf("Result = %v, want %v", decision.Result, PolicyResultAllow)
	}
	if len(decision.Violations) != 0 {
		t.Errorf("Violations = %v, want empty", decision.Violations)
	}
}

func TestEngine_Evaluate_DenyRule(t *testing.T) {
	engine := NewEngineWithPolicies([]*PolicyFile{{Name: "review", Path: "review.rego", Content: reviewPolicy}})

	tests := []struct {
		name       string
		input      *TransitionInput
		wantResult string
	}{
		{"anonymous completion denied", reviewInput("", "done"), PolicyResultDeny},
		{"named completion allowed", reviewInput("alice", "done"), PolicyResultAllow},
		{"anonymous block allowed", reviewInput("", "blocked"), PolicyResultAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := engine.Evaluate(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if decision.Result != tt.wantResult {
				t.Errorf("Result = %v, want %v (violations: %v)", decision.Result, tt.wantResult, decision.Violations)
			}
			if tt.wantResult == PolicyResultDeny {
				if len(decision.Violations) != 1 || !strings.Contains(decision.Violations[0], "review-api") {
					t.Errorf("Violations = %v, want one message naming review-api", decision.Violations)
				}
			}
		})
	}
}

func TestEngine_Evaluate_WarningsDoNotBlock(t *testing.T) {
	engine := NewEngineWithPolicies([]*PolicyFile{{Name: "review", Path: "review.rego", Content: reviewPolicy}})

	decision, err := engine.Evaluate(context.Background(), reviewInput("", "skipped"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !decision.IsAllowed() {
		t.Fatalf("Result = %v, want allow", decision.Result)
	}
	if len(decision.Warnings) != 1 || decision.Warnings[0] != "step review-api skipped" {
		t.Errorf("Warnings = %v", decision.Warnings)
	}
}

func TestEngine_Evaluate_MultiplePolicies(t *testing.T) {
	archived := &PolicyFile{Name: "transitions", Path: "transitions.rego", Content: DefaultTransitionPolicy}
	review := &PolicyFile{Name: "review", Path: "review.rego", Content: reviewPolicy}
	engine := NewEngineWithPolicies([]*PolicyFile{archived, review})

	input := reviewInput("", "done")
	input.Plan.Archived = true

	decision, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !decision.IsDenied() {
		t.Fatalf("Result = %v, want deny", decision.Result)
	}
	if len(decision.Violations) != 2 {
		t.Errorf("expected 2 violations, got %d: %v", len(decision.Violations), decision.Violations)
	}
	// The default policy also warns about the anonymous review completion.
	if len(decision.Warnings) != 1 {
		t.Errorf("expected 1 warning, got %v", decision.Warnings)
	}
}

func TestEngine_Evaluate_DecisionFields(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	engine, err := NewEngine(EngineConfig{Fs: afero.NewMemMapFs(), Clock: func() time.Time { return fixed }})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	input := reviewInput("alice", "done")
	decision, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if decision.DecisionID == "" {
		t.Error("DecisionID should be set")
	}
	if decision.PolicyPath != DefaultPolicyPackage {
		t.Errorf("PolicyPath = %v, want %v", decision.PolicyPath, DefaultPolicyPackage)
	}
	if decision.PlanID != "plan-1" || decision.StepID != "review-api" || decision.Actor != "alice" {
		t.Errorf("decision identity = %q/%q/%q", decision.PlanID, decision.StepID, decision.Actor)
	}
	if !decision.EvaluatedAt.Equal(fixed) {
		t.Errorf("EvaluatedAt = %v, want %v", decision.EvaluatedAt, fixed)
	}
	if decision.Input != input {
		t.Error("Input should be the evaluated input")
	}
}

func TestEngine_PolicyManagement(t *testing.T) {
	engine := NewEngineWithPolicies(nil)
	if engine.PolicyCount() != 0 {
		t.Errorf("PolicyCount() = %d, want 0", engine.PolicyCount())
	}

	engine.AddPolicy("review", reviewPolicy)
	if engine.PolicyCount() != 1 {
		t.Errorf("PolicyCount() = %d, want 1", engine.PolicyCount())
	}
	if names := engine.PolicyNames(); len(names) != 1 || names[0] != "review" {
		t.Errorf("PolicyNames() = %v, want [review]", names)
	}

	decision, err := engine.Evaluate(context.Background(), reviewInput("", "done"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !decision.IsDenied() {
		t.Error("added policy should be enforced")
	}
}

func TestEngine_RecompilesAfterChange(t *testing.T) {
	ctx := context.Background()
	engine := NewEngineWithPolicies([]*PolicyFile{{Name: "review", Path: "review.rego", Content: reviewPolicy}})

	decision, err := engine.Evaluate(ctx, reviewInput("alice", "done"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !decision.IsAllowed() {
		t.Fatalf("Result = %v, want allow", decision.Result)
	}

	engine.AddPolicy("freeze", `package plantrack.transitions

import rego.v1

deny contains "plans are frozen" if input.plan.id == "plan-1"
`)
	decision, err = engine.Evaluate(ctx, reviewInput("alice", "done"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !decision.IsDenied() || decision.Violations[0] != "plans are frozen" {
		t.Errorf("decision = %+v, want the added rule enforced", decision)
	}
}

func TestNewEngine(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/project/.plantrack/policies"
	_ = afero.WriteFile(fs, dir+"/review.rego", []byte(reviewPolicy), 0o644)
	_ = afero.WriteFile(fs, dir+"/review_test.rego", []byte("package plantrack.transitions\n"), 0o644)

	engine, err := NewEngine(EngineConfig{PoliciesDir: dir, Fs: fs})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if engine.PolicyCount() != 1 {
		t.Errorf("PolicyCount() = %d, want 1 (tests are not policies)", engine.PolicyCount())
	}
}

func TestNewEngine_NoPoliciesDir(t *testing.T) {
	engine, err := NewEngine(EngineConfig{PoliciesDir: "/missing", Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if engine.PolicyCount() != 0 {
		t.Errorf("PolicyCount() = %d, want 0", engine.PolicyCount())
	}
}

func TestEngine_CustomPackage(t *testing.T) {
	policy := `package acme.gates

import rego.v1

deny contains "frozen" if input.plan.type == "migration"
`
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/p/gates.rego", []byte(policy), 0o644)
	engine, err := NewEngine(EngineConfig{PoliciesDir: "/p", PolicyPackage: "acme.gates", Fs: fs})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	input := reviewInput("alice", "done")
	input.Plan.Type = "migration"
	decision, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !decision.IsDenied() || decision.PolicyPath != "acme.gates" {
		t.Errorf("decision = %+v, want deny from acme.gates", decision)
	}
}

func TestEngine_ReloadPolicies(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/policies"
	engine, err := NewEngine(EngineConfig{PoliciesDir: dir, Fs: fs})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if engine.PolicyCount() != 0 {
		t.Fatalf("PolicyCount() = %d, want 0", engine.PolicyCount())
	}

	_ = afero.WriteFile(fs, dir+"/review.rego", []byte(reviewPolicy), 0o644)
	if err := engine.ReloadPolicies(fs, dir); err != nil {
		t.Fatalf("ReloadPolicies() error = %v", err)
	}
	if engine.PolicyCount() != 1 {
		t.Errorf("PolicyCount() = %d, want 1", engine.PolicyCount())
	}
}

func TestEngine_Evaluate_InvalidPolicy(t *testing.T) {
	engine := NewEngineWithPolicies([]*PolicyFile{{Name: "broken", Path: "broken.rego", Content: "package plantrack.transitions\n\ndeny contains"}})
	if _, err := engine.Evaluate(context.Background(), reviewInput("", "done")); err == nil {
		t.Error("expected an error for an unparsable policy")
	}
}

func TestValidatePolicy(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"default policy", DefaultTransitionPolicy, false},
		{"review policy", reviewPolicy, false},
		{"missing package", "deny contains msg if { true }", true},
		{"unterminated rule", "package x\n\ndeny contains msg if {", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePolicy(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
