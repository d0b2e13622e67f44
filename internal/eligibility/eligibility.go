// Package eligibility decides whether a step may leave pending, given the
// states of its dependencies.
package eligibility

import (
	"fmt"
	"strings"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/dag"
	"github.com/josephgoksu/plantrack/models"
)

// Snapshot maps step IDs to their current state. A missing entry reads as
// pending.
type Snapshot map[string]models.StepState

// Result is the canStart answer. MissingDependencies lists every
// unsatisfied dependency in declaration order.
type Result struct {
	Allowed             bool     `json:"allowed"`
	Reason              string   `json:"reason,omitempty"`
	MissingDependencies []string `json:"missingDependencies"`
}

// Checker evaluates eligibility. It never caches: every call reads the
// snapshot it is given.
type Checker struct {
	skippedSatisfies bool
}

// New creates a checker. A skipped dependency satisfies its dependents
// only when cfg.SkippedSatisfiesDependencies is set.
func New(cfg config.PlanConfig) *Checker {
	return &Checker{skippedSatisfies: cfg.SkippedSatisfiesDependencies}
}

// Satisfied reports whether a dependency in state s unblocks dependents.
func (c *Checker) Satisfied(s models.StepState) bool {
	return s == models.StateDone || (c.skippedSatisfies && s == models.StateSkipped)
}

// CanStart reports whether every dependency of stepID is satisfied. The
// step's own state is not considered; the status engine owns that.
func (c *Checker) CanStart(g *dag.Graph, states Snapshot, stepID string) Result {
	if !g.Has(stepID) {
		return Result{
			Reason:              fmt.Sprintf("unknown step %q", stepID),
			MissingDependencies: []string{},
		}
	}

	missing := []string{}
	for _, dep := range g.Dependencies(stepID) {
		if !c.Satisfied(states.state(dep)) {
			missing = append(missing, dep)
		}
	}
	if len(missing) == 0 {
		return Result{Allowed: true, MissingDependencies: missing}
	}

	return Result{
		Reason:              c.reason(states, missing),
		MissingDependencies: missing,
	}
}

// Ready returns the pending steps whose dependencies are all satisfied, in
// declaration order.
func (c *Checker) Ready(g *dag.Graph, states Snapshot) []string {
	ready := []string{}
	for _, id := range g.StepIDs() {
		if states.state(id) != models.StatePending {
			continue
		}
		if c.CanStart(g, states, id).Allowed {
			ready = append(ready, id)
		}
	}
	return ready
}

func (c *Checker) reason(states Snapshot, missing []string) string {
	parts := make([]string, len(missing))
	for i, dep := range missing {
		parts[i] = fmt.Sprintf("%s (%s)", dep, states.state(dep))
	}
	want := "done"
	if c.skippedSatisfies {
		want = "done or skipped"
	}
	noun := "dependency is"
	if len(missing) > 1 {
		noun = fmt.Sprintf("%d dependencies are", len(missing))
	}
	return fmt.Sprintf("%s not %s: %s", noun, want, strings.Join(parts, ", "))
}

func (s Snapshot) state(id string) models.StepState {
	if st, ok := s[id]; ok && st != "" {
		return st
	}
	return models.StatePending
}
