// Package progress aggregates step states into plan-wide and grouped
// completion metrics.
package progress

import (
	"math"

	"github.com/josephgoksu/plantrack/models"
)

// Unphased is the group key for steps no phase lists.
const Unphased = "unphased"

// Progress is the completion summary of a set of steps. Completed counts
// done steps only; skipped steps are reported separately and do not raise
// PercentComplete.
type Progress struct {
	Total           int `json:"total"`
	Completed       int `json:"completed"`
	InProgress      int `json:"inProgress"`
	Blocked         int `json:"blocked"`
	Skipped         int `json:"skipped"`
	Pending         int `json:"pending"`
	PercentComplete int `json:"percentComplete"`
}

// Group is the progress of the steps sharing one grouping key.
type Group struct {
	Key      string   `json:"key"`
	Title    string   `json:"title,omitempty"`
	StepIDs  []string `json:"stepIds"`
	Progress Progress `json:"progress"`
}

// Compute calculates progress over steps. An empty set reports 0 percent.
func Compute(steps []models.Step) Progress {
	var p Progress
	for _, s := range steps {
		p.add(s.Status.State)
	}
	p.finish()
	return p
}

func (p *Progress) add(state models.StepState) {
	p.Total++
	switch state {
	case models.StateDone:
		p.Completed++
	case models.StateInProgress:
		p.InProgress++
	case models.StateBlocked:
		p.Blocked++
	case models.StateSkipped:
		p.Skipped++
	default:
		p.Pending++
	}
}

func (p *Progress) finish() {
	if p.Total == 0 {
		p.PercentComplete = 0
		return
	}
	p.PercentComplete = int(math.Round(100 * float64(p.Completed) / float64(p.Total)))
}

// GroupBy aggregates steps by a caller-supplied key. Groups appear in the
// order their key is first seen.
func GroupBy(steps []models.Step, key func(models.Step) string) []Group {
	var groups []Group
	pos := make(map[string]int)
	for _, s := range steps {
		k := key(s)
		i, ok := pos[k]
		if !ok {
			i = len(groups)
			pos[k] = i
			groups = append(groups, Group{Key: k, StepIDs: []string{}})
		}
		groups[i].StepIDs = append(groups[i].StepIDs, s.ID)
		groups[i].Progress.add(s.Status.State)
	}
	for i := range groups {
		groups[i].Progress.finish()
	}
	return groups
}

// ByKind groups steps by kind.
func ByKind(steps []models.Step) []Group {
	return GroupBy(steps, func(s models.Step) string { return string(s.Kind) })
}

// ByPhase groups steps by the phases the plan declares, in declaration
// order. A step listed by several phases counts toward each of them. Steps
// no phase lists go into a trailing Unphased group, omitted when empty.
func ByPhase(plan *models.Plan) []Group {
	groups := make([]Group, 0, len(plan.Phases)+1)
	assigned := make(map[string]bool)

	for _, phase := range plan.Phases {
		g := Group{Key: phase.ID, Title: phase.Title, StepIDs: []string{}}
		for _, id := range phase.StepIDs {
			step := plan.StepByID(id)
			if step == nil {
				continue
			}
			assigned[id] = true
			g.StepIDs = append(g.StepIDs, id)
			g.Progress.add(step.Status.State)
		}
		g.Progress.finish()
		groups = append(groups, g)
	}

	rest := Group{Key: Unphased, StepIDs: []string{}}
	for _, s := range plan.Steps {
		if !assigned[s.ID] {
			rest.StepIDs = append(rest.StepIDs, s.ID)
			rest.Progress.add(s.Status.State)
		}
	}
	if rest.Progress.Total > 0 {
		rest.Progress.finish()
		groups = append(groups, rest)
	}
	return groups
}
