// Package layout derives node positions and edges from the dependency
// graph for visualization consumers. Positions depend on the graph only;
// step states drive presentation hints.
package layout

import (
	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/dag"
	"github.com/josephgoksu/plantrack/models"
)

// Presentation colors per state.
var stateColors = map[models.StepState]string{
	models.StatePending:    "#9CA3AF",
	models.StateInProgress: "#3B82F6",
	models.StateDone:       "#22C55E",
	models.StateBlocked:    "#EF4444",
	models.StateSkipped:    "#A78BFA",
}

// Node is one positioned step.
type Node struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Kind     models.StepKind  `json:"kind"`
	State    models.StepState `json:"state"`
	Level    int              `json:"level"`
	X        float64          `json:"x"`
	Y        float64          `json:"y"`
	Color    string           `json:"color"`
	Animated bool             `json:"animated"`
}

// Edge is one dependency edge, from Source (the dependency) to Target.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Color    string `json:"color"`
	Animated bool   `json:"animated"`
}

// Layout is the full positioned graph.
type Layout struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Deriver computes layouts with fixed spacing units.
type Deriver struct {
	horizontal float64
	vertical   float64
}

// New creates a deriver using the spacing units from cfg.
func New(cfg config.PlanConfig) *Deriver {
	return &Deriver{horizontal: cfg.HorizontalSpacing, vertical: cfg.VerticalSpacing}
}

// Derive positions every step. Within a level of n steps the i-th step (in
// declaration order) sits at x = (i - (n-1)/2) * horizontal, and every step
// sits at y = level * vertical. Nodes are returned in declaration order.
func (d *Deriver) Derive(g *dag.Graph, states map[string]models.StepState) Layout {
	type position struct{ x, y float64 }
	positions := make(map[string]position, g.Len())
	for level, ids := range g.Levels() {
		n := len(ids)
		for i, id := range ids {
			positions[id] = position{
				x: (float64(i) - float64(n-1)/2) * d.horizontal,
				y: float64(level) * d.vertical,
			}
		}
	}

	out := Layout{Nodes: make([]Node, 0, g.Len()), Edges: []Edge{}}
	for _, id := range g.StepIDs() {
		step, _ := g.Step(id)
		level, _ := g.Level(id)
		state := stateOf(states, id)
		pos := positions[id]
		out.Nodes = append(out.Nodes, Node{
			ID:       id,
			Title:    step.Title,
			Kind:     step.Kind,
			State:    state,
			Level:    level,
			X:        pos.x,
			Y:        pos.y,
			Color:    stateColors[state],
			Animated: state == models.StateInProgress,
		})
	}

	for _, e := range g.Edges() {
		source, target := e[0], e[1]
		out.Edges = append(out.Edges, Edge{
			ID:       source + "->" + target,
			Source:   source,
			Target:   target,
			Color:    stateColors[stateOf(states, source)],
			Animated: stateOf(states, target) == models.StateInProgress,
		})
	}
	return out
}

func stateOf(states map[string]models.StepState, id string) models.StepState {
	if s, ok := states[id]; ok && s.IsValid() {
		return s
	}
	return models.StatePending
}
