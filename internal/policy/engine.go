package policy

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/spf13/afero"
)

// DefaultPolicyPackage is the Rego package queried for transition rules.
const DefaultPolicyPackage = "plantrack.transitions"

// Engine evaluates transition requests against Rego policies loaded from
// disk. Queries are compiled once per policy set and reused until the set
// changes. Evaluation is local; no bundle server is contacted.
type Engine struct {
	mu            sync.Mutex
	policies      []*PolicyFile
	policyPackage string
	now           func() time.Time

	// compiled is nil until the first evaluation after a policy change.
	compiled *compiledQueries
}

type compiledQueries struct {
	deny rego.PreparedEvalQuery
	warn rego.PreparedEvalQuery
}

// EngineConfig holds configuration for creating an Engine.
type EngineConfig struct {
	// PoliciesDir is the directory containing .rego policy files.
	// A missing directory means no policies: every transition is allowed.
	PoliciesDir string

	// PolicyPackage is the Rego package to query.
	// If empty, defaults to "plantrack.transitions"
	PolicyPackage string

	// Fs is the filesystem to use for loading policies.
	// If nil, uses the OS filesystem.
	Fs afero.Fs

	// Clock stamps decisions. If nil, uses time.Now.
	Clock func() time.Time
}

// NewEngine creates a policy engine and loads every policy under
// cfg.PoliciesDir.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	var policies []*PolicyFile
	if cfg.PoliciesDir != "" {
		loaded, err := NewLoader(cfg.Fs, cfg.PoliciesDir).LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load policies: %w", err)
		}
		policies = loaded
	}

	e := NewEngineWithPolicies(policies)
	if cfg.PolicyPackage != "" {
		e.policyPackage = cfg.PolicyPackage
	}
	if cfg.Clock != nil {
		e.now = cfg.Clock
	}
	return e, nil
}

// NewEngineWithPolicies creates an engine with explicitly provided policies.
// This is useful for testing or when policies come from sources other than files.
func NewEngineWithPolicies(policies []*PolicyFile) *Engine {
	return &Engine{
		policies:      policies,
		policyPackage: DefaultPolicyPackage,
		now:           time.Now,
	}
}

// PolicyCount returns the number of loaded policies.
func (e *Engine) PolicyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.policies)
}

// PolicyNames returns the names of all loaded policies.
func (e *Engine) PolicyNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.policies))
	for i, p := range e.policies {
		names[i] = p.Name
	}
	return names
}

// Evaluate runs the deny and warn rules of the policy package against
// input. Any deny message makes the decision "deny"; warn messages are
// recorded on the decision and never block. With no policies loaded every
// request is allowed.
func (e *Engine) Evaluate(ctx context.Context, input *TransitionInput) (*PolicyDecision, error) {
	decision := &PolicyDecision{
		DecisionID:  uuid.New().String(),
		PolicyPath:  e.policyPackage,
		Result:      PolicyResultAllow,
		Input:       input,
		PlanID:      input.Plan.ID,
		StepID:      input.Step.ID,
		Actor:       input.Request.Actor,
		EvaluatedAt: e.now().UTC(),
	}

	q, err := e.queries(ctx)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return decision, nil
	}

	violations, err := evalStrings(ctx, q.deny, input)
	if err != nil {
		return nil, fmt.Errorf("query deny rules: %w", err)
	}
	warnings, err := evalStrings(ctx, q.warn, input)
	if err != nil {
		return nil, fmt.Errorf("query warn rules: %w", err)
	}

	if len(violations) > 0 {
		decision.Result = PolicyResultDeny
		decision.Violations = violations
	}
	decision.Warnings = warnings
	return decision, nil
}

// queries returns the compiled deny and warn queries, compiling them on
// first use. It returns nil when no policies are loaded.
func (e *Engine) queries(ctx context.Context) (*compiledQueries, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.policies) == 0 {
		return nil, nil
	}
	if e.compiled != nil {
		return e.compiled, nil
	}

	prepare := func(rule string) (rego.PreparedEvalQuery, error) {
		opts := []func(*rego.Rego){rego.Query(fmt.Sprintf("data.%s.%s", e.policyPackage, rule))}
		for _, p := range e.policies {
			opts = append(opts, rego.Module(p.Path, p.Content))
		}
		return rego.New(opts...).PrepareForEval(ctx)
	}

	deny, err := prepare("deny")
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	warn, err := prepare("warn")
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	e.compiled = &compiledQueries{deny: deny, warn: warn}
	return e.compiled, nil
}

// evalStrings evaluates a set-generating rule and collects its string
// members, sorted. An undefined rule yields nothing.
func evalStrings(ctx context.Context, q rego.PreparedEvalQuery, input any) ([]string, error) {
	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			members, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, m := range members {
				if s, ok := m.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

// ReloadPolicies replaces the loaded policies with the contents of
// policiesDir.
func (e *Engine) ReloadPolicies(fs afero.Fs, policiesDir string) error {
	policies, err := NewLoader(fs, policiesDir).LoadAll()
	if err != nil {
		return fmt.Errorf("reload policies: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = policies
	e.compiled = nil
	return nil
}

// AddPolicy adds a Rego module under name. Syntax errors surface on the
// next Evaluate; use ValidatePolicy to check first.
func (e *Engine) AddPolicy(name, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = append(e.policies, &PolicyFile{
		Name:    name,
		Path:    name + ".rego",
		Content: content,
	})
	e.compiled = nil
}

// ValidatePolicy checks if a policy has valid Rego syntax.
// Returns nil if valid, or an error describing the syntax problem.
func ValidatePolicy(content string) error {
	_, err := rego.New(
		rego.Query("data"),
		rego.Module("validation.rego", content),
	).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}
