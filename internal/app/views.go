package app

import (
	"context"

	"github.com/josephgoksu/plantrack/internal/layout"
	"github.com/josephgoksu/plantrack/internal/progress"
)

// PlanProgress is the progress of a plan overall, per phase and per kind.
type PlanProgress struct {
	PlanID   string            `json:"planId"`
	Title    string            `json:"title"`
	Revision int               `json:"revision"`
	Overall  progress.Progress `json:"overall"`
	Phases   []progress.Group  `json:"phases"`
	Kinds    []progress.Group  `json:"kinds"`
}

// Progress computes the progress views of a stored plan.
func (a *PlanApp) Progress(ctx context.Context, id string) (*PlanProgress, error) {
	plan, err := a.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PlanProgress{
		PlanID:   plan.ID,
		Title:    plan.Metadata.Title,
		Revision: plan.Metadata.Revision,
		Overall:  progress.Compute(plan.Steps),
		Phases:   progress.ByPhase(plan),
		Kinds:    progress.ByKind(plan.Steps),
	}, nil
}

// Layout derives the node/edge view of a stored plan.
func (a *PlanApp) Layout(ctx context.Context, id string) (layout.Layout, error) {
	plan, g, err := a.loadGraph(ctx, id)
	if err != nil {
		return layout.Layout{}, err
	}
	return a.deriver.Derive(g, plan.States()), nil
}
