// Package semantic validates cross-references inside a structurally valid
// plan: duplicate IDs, dangling references, dependency cycles and
// self-dependencies, plus non-blocking warnings.
package semantic

import (
	"fmt"
	"strings"
	"time"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/schema"
	"github.com/josephgoksu/plantrack/models"
	"github.com/josephgoksu/plantrack/types"
)

// Issue codes reported by the semantic validator.
const (
	CodeDuplicateID       = "duplicate_id"
	CodeDanglingReference = "dangling_reference"
	CodeCycle             = "dependency_cycle"
	CodeSelfDependency    = "self_dependency"
	CodeOrphanStep        = "orphan_step"
	CodeMissingCriteria   = "missing_criteria"
)

// Validator runs the semantic checks. It holds a schema validator so that
// ValidateDocument can run both stages.
type Validator struct {
	schema *schema.Validator
}

// New creates a semantic validator for cfg.
func New(cfg config.PlanConfig) *Validator {
	return &Validator{schema: schema.New(cfg)}
}

// Validate checks a plan whose shape already passed schema validation.
// Every error is collected; the order is duplicates, dangling references,
// cycles, then self-dependencies.
func (v *Validator) Validate(plan *models.Plan) types.Report {
	report := types.NewReport()
	index := checkDuplicates(plan, &report)
	checkDangling(plan, index, &report)
	checkCycles(plan, index, &report)
	checkSelfDependencies(plan, &report)
	addWarnings(plan, &report)
	return report
}

// ValidateDocument runs schema validation and, only when it passes,
// semantic validation. The plan is returned when both pass.
func (v *Validator) ValidateDocument(raw []byte, now time.Time) (*models.Plan, types.Report) {
	result := v.schema.Validate(raw)
	if !result.Valid {
		return nil, result.Report()
	}

	plan, err := result.Document.Plan(now)
	if err != nil {
		report := types.NewReport()
		report.AddError(types.NewIssue(types.KindStructural, schema.CodeMalformed, err.Error()))
		return nil, report
	}

	report := v.Validate(plan)
	if !report.IsValid {
		return nil, report
	}
	return plan, report
}

// checkDuplicates reports every repeated step or phase ID and returns the
// index of the first occurrence of each step ID.
func checkDuplicates(plan *models.Plan, report *types.Report) map[string]int {
	index := make(map[string]int, len(plan.Steps))
	for i, step := range plan.Steps {
		if first, ok := index[step.ID]; ok {
			issue := types.Issuef(types.KindReferential, CodeDuplicateID,
				"duplicate step id %q (first declared at steps[%d])", step.ID, first)
			issue.Path = fmt.Sprintf("steps[%d].id", i)
			issue.StepID = step.ID
			report.AddError(issue)
			continue
		}
		index[step.ID] = i
	}

	phases := make(map[string]int, len(plan.Phases))
	for i, phase := range plan.Phases {
		if first, ok := phases[phase.ID]; ok {
			issue := types.Issuef(types.KindReferential, CodeDuplicateID,
				"duplicate phase id %q (first declared at phases[%d])", phase.ID, first)
			issue.Path = fmt.Sprintf("phases[%d].id", i)
			report.AddError(issue)
			continue
		}
		phases[phase.ID] = i
	}
	return index
}

func checkDangling(plan *models.Plan, index map[string]int, report *types.Report) {
	for i, step := range plan.Steps {
		for j, dep := range step.DependsOn {
			if _, ok := index[dep]; ok {
				continue
			}
			issue := types.Issuef(types.KindReferential, CodeDanglingReference,
				"step %q depends on unknown step %q", step.ID, dep)
			issue.Path = fmt.Sprintf("steps[%d].dependsOn[%d]", i, j)
			issue.StepID = step.ID
			issue.Related = []string{dep}
			report.AddError(issue)
		}
	}

	for i, phase := range plan.Phases {
		for j, id := range phase.StepIDs {
			if _, ok := index[id]; ok {
				continue
			}
			issue := types.Issuef(types.KindReferential, CodeDanglingReference,
				"phase %q lists unknown step %q", phase.ID, id)
			issue.Path = fmt.Sprintf("phases[%d].stepIds[%d]", i, j)
			issue.Related = []string{id}
			report.AddError(issue)
		}
	}
}

const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // finished
)

// checkCycles runs a three-color DFS along dependsOn edges. Every edge into
// a gray node closes a cycle, reported once with its full path. Scanning
// continues after each cycle. Self and dangling edges are skipped; they
// have their own checks.
func checkCycles(plan *models.Plan, index map[string]int, report *types.Report) {
	color := make(map[string]int, len(index))
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)

		step := plan.Steps[index[id]]
		for _, dep := range step.DependsOn {
			if dep == id {
				continue
			}
			if _, ok := index[dep]; !ok {
				continue
			}
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				report.AddError(cycleIssue(stack, dep, index[id]))
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for i, step := range plan.Steps {
		if index[step.ID] != i {
			continue
		}
		if color[step.ID] == white {
			visit(step.ID)
		}
	}
}

// cycleIssue builds the issue for the back edge from the top of the stack
// to target. The path runs from target along the DFS stack and back to
// target.
func cycleIssue(stack []string, target string, stepIndex int) *types.Issue {
	start := 0
	for i, id := range stack {
		if id == target {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	path = append(path, stack[start:]...)
	path = append(path, target)

	issue := types.Issuef(types.KindCyclicDependency, CodeCycle,
		"dependency cycle detected: %s", strings.Join(path, " → "))
	issue.Path = fmt.Sprintf("steps[%d].dependsOn", stepIndex)
	issue.StepID = stack[len(stack)-1]
	issue.Related = path
	return issue
}

func checkSelfDependencies(plan *models.Plan, report *types.Report) {
	for i, step := range plan.Steps {
		for j, dep := range step.DependsOn {
			if dep != step.ID {
				continue
			}
			issue := types.Issuef(types.KindSelfDependency, CodeSelfDependency,
				"step %q depends on itself", step.ID)
			issue.Path = fmt.Sprintf("steps[%d].dependsOn[%d]", i, j)
			issue.StepID = step.ID
			report.AddError(issue)
		}
	}
}

func addWarnings(plan *models.Plan, report *types.Report) {
	hasDependents := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			hasDependents[dep] = true
		}
	}

	for i, step := range plan.Steps {
		if len(plan.Steps) > 1 && !step.HasDependencies() && !hasDependents[step.ID] {
			w := types.NewWarning(CodeOrphanStep, step.ID,
				fmt.Sprintf("step %q has no dependencies and no dependents", step.ID))
			w.Path = fmt.Sprintf("steps[%d]", i)
			report.AddWarning(w)
		}
		if step.Kind.RequiresCriteria() && !step.HasCriteria() {
			w := types.NewWarning(CodeMissingCriteria, step.ID,
				fmt.Sprintf("%s step %q has no validation criteria", step.Kind, step.ID))
			w.Path = fmt.Sprintf("steps[%d].validation", i)
			report.AddWarning(w)
		}
	}
}
