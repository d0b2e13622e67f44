// Package dag is the in-memory dependency graph of a plan: adjacency keyed
// by step ID, with level computation and reachability queries. It is built
// only from a validated step set.
package dag

import (
	"fmt"
	"slices"

	"github.com/josephgoksu/plantrack/models"
	"github.com/josephgoksu/plantrack/types"
)

// Graph is an immutable dependency graph. Edges point from a dependency to
// its dependent. All queries return fresh slices in declaration order.
type Graph struct {
	steps      []models.Step
	index      map[string]int
	dependents [][]int
	levels     []int
	order      []int
}

// New builds a graph over steps. It refuses duplicate, empty, dangling,
// self-referencing or cyclic input with an error wrapping
// types.ErrPrecondition; validate the plan before building.
func New(steps []models.Step) (*Graph, error) {
	g := &Graph{
		steps:      make([]models.Step, len(steps)),
		index:      make(map[string]int, len(steps)),
		dependents: make([][]int, len(steps)),
		levels:     make([]int, len(steps)),
	}

	for i, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: step at index %d has no id", types.ErrPrecondition, i)
		}
		if _, dup := g.index[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate step id %q", types.ErrPrecondition, s.ID)
		}
		g.index[s.ID] = i
		g.steps[i] = s.Clone()
	}

	for i, s := range g.steps {
		for k, dep := range s.DependsOn {
			if slices.Contains(s.DependsOn[:k], dep) {
				return nil, fmt.Errorf("%w: step %q lists dependency %q twice", types.ErrPrecondition, s.ID, dep)
			}
			if dep == s.ID {
				return nil, fmt.Errorf("%w: step %q depends on itself", types.ErrPrecondition, s.ID)
			}
			j, ok := g.index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: step %q depends on unknown step %q", types.ErrPrecondition, s.ID, dep)
			}
			g.dependents[j] = append(g.dependents[j], i)
		}
	}

	if err := g.computeLevels(); err != nil {
		return nil, err
	}
	g.order = g.topologicalSort()
	return g, nil
}

// MustNew is New for callers that already validated the steps. It panics on
// a precondition violation.
func MustNew(steps []models.Step) *Graph {
	g, err := New(steps)
	if err != nil {
		panic(err)
	}
	return g
}

// computeLevels assigns level 0 to steps without dependencies and
// 1 + max(level(dep)) otherwise, by memoized DFS. A dependency found on the
// recursion stack means the input was cyclic.
func (g *Graph) computeLevels() error {
	visited := make([]bool, len(g.steps))
	recursionStack := make([]bool, len(g.steps))

	var level func(i int) error
	level = func(i int) error {
		visited[i] = true
		recursionStack[i] = true

		deepest := -1
		for _, dep := range g.steps[i].DependsOn {
			j := g.index[dep]
			if recursionStack[j] {
				return fmt.Errorf("%w: cycle detected involving step %s -> %s", types.ErrPrecondition, g.steps[i].ID, dep)
			}
			if !visited[j] {
				if err := level(j); err != nil {
					return err
				}
			}
			deepest = max(deepest, g.levels[j])
		}
		g.levels[i] = deepest + 1

		recursionStack[i] = false
		return nil
	}

	for i := range g.steps {
		if !visited[i] {
			if err := level(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// topologicalSort orders steps dependencies first, visiting in declaration
// order so the result is stable.
func (g *Graph) topologicalSort() []int {
	sorted := make([]int, 0, len(g.steps))
	visited := make([]bool, len(g.steps))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		for _, dep := range g.steps[i].DependsOn {
			visit(g.index[dep])
		}
		sorted = append(sorted, i)
	}

	for i := range g.steps {
		visit(i)
	}
	return sorted
}

// Len returns the number of steps.
func (g *Graph) Len() int { return len(g.steps) }

// Has reports whether the graph contains id.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Index returns the declaration index of id.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Step returns a copy of the step definition for id.
func (g *Graph) Step(id string) (models.Step, bool) {
	i, ok := g.index[id]
	if !ok {
		return models.Step{}, false
	}
	return g.steps[i].Clone(), true
}

// StepIDs returns every step ID in declaration order.
func (g *Graph) StepIDs() []string {
	ids := make([]string, len(g.steps))
	for i, s := range g.steps {
		ids[i] = s.ID
	}
	return ids
}

// Level returns the depth of id: 0 without dependencies, otherwise one more
// than its deepest dependency.
func (g *Graph) Level(id string) (int, bool) {
	i, ok := g.index[id]
	if !ok {
		return 0, false
	}
	return g.levels[i], true
}

// Depth returns the number of levels.
func (g *Graph) Depth() int {
	depth := 0
	for _, l := range g.levels {
		depth = max(depth, l+1)
	}
	return depth
}

// Levels groups step IDs by level. Within a level, steps keep their
// declaration order.
func (g *Graph) Levels() [][]string {
	layers := make([][]string, g.Depth())
	for i, s := range g.steps {
		layers[g.levels[i]] = append(layers[g.levels[i]], s.ID)
	}
	return layers
}

// Dependencies returns the direct dependencies of id as declared.
func (g *Graph) Dependencies(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return slices.Clone(g.steps[i].DependsOn)
}

// Dependents returns the steps that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.ids(g.dependents[i])
}

// Ancestors returns every step id transitively depends on.
func (g *Graph) Ancestors(id string) []string {
	return g.reach(id, func(i int) []int {
		deps := make([]int, len(g.steps[i].DependsOn))
		for k, dep := range g.steps[i].DependsOn {
			deps[k] = g.index[dep]
		}
		return deps
	})
}

// Descendants returns every step that transitively depends on id. These
// are the steps affected when id changes.
func (g *Graph) Descendants(id string) []string {
	return g.reach(id, func(i int) []int { return g.dependents[i] })
}

// reach collects the nodes reachable from id through next, excluding id,
// in declaration order.
func (g *Graph) reach(id string, next func(int) []int) []string {
	start, ok := g.index[id]
	if !ok {
		return nil
	}
	seen := make([]bool, len(g.steps))
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next(cur) {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}

	var out []int
	for i, s := range seen {
		if s && i != start {
			out = append(out, i)
		}
	}
	return g.ids(out)
}

// TopologicalOrder returns step IDs with every dependency before its
// dependents.
func (g *Graph) TopologicalOrder() []string {
	return g.ids(g.order)
}

// Roots returns the steps without dependencies.
func (g *Graph) Roots() []string {
	var out []int
	for i := range g.steps {
		if g.levels[i] == 0 {
			out = append(out, i)
		}
	}
	return g.ids(out)
}

// Leaves returns the steps nothing depends on.
func (g *Graph) Leaves() []string {
	var out []int
	for i := range g.steps {
		if len(g.dependents[i]) == 0 {
			out = append(out, i)
		}
	}
	return g.ids(out)
}

// Edges returns every (dependency, dependent) pair, ordered by dependent
// then by declared dependency order.
func (g *Graph) Edges() [][2]string {
	var edges [][2]string
	for _, s := range g.steps {
		for _, dep := range s.DependsOn {
			edges = append(edges, [2]string{dep, s.ID})
		}
	}
	return edges
}

func (g *Graph) ids(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.steps[i].ID
	}
	return out
}
