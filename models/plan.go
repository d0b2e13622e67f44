// Package models defines the plan, step and status shapes shared by every
// plantrack component.
package models

import (
	"slices"
	"time"
)

// PlanType represents the category of a plan.
type PlanType string

const (
	PlanTypeFeature       PlanType = "feature"
	PlanTypeRefactor      PlanType = "refactor"
	PlanTypeMigration     PlanType = "migration"
	PlanTypeBugfix        PlanType = "bugfix"
	PlanTypeOptimization  PlanType = "optimization"
	PlanTypeDocumentation PlanType = "documentation"
)

// Metadata describes a plan and tracks its mutation history.
type Metadata struct {
	Title       string     `json:"title" yaml:"title" toml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Author      string     `json:"author,omitempty" yaml:"author,omitempty" toml:"author,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt" toml:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" yaml:"updatedAt" toml:"updatedAt"`
	Revision    int        `json:"revision" yaml:"revision" toml:"revision"`
	ArchivedAt  *time.Time `json:"archivedAt,omitempty" yaml:"archivedAt,omitempty" toml:"archivedAt,omitempty"`
}

// Scope bounds what a plan covers.
type Scope struct {
	InScope    []string `json:"inScope,omitempty" yaml:"inScope,omitempty" toml:"inScope,omitempty"`
	OutOfScope []string `json:"outOfScope,omitempty" yaml:"outOfScope,omitempty" toml:"outOfScope,omitempty"`
}

// Phase groups steps for phase-level progress reporting.
type Phase struct {
	ID      string   `json:"id" yaml:"id" toml:"id"`
	Title   string   `json:"title" yaml:"title" toml:"title"`
	StepIDs []string `json:"stepIds" yaml:"stepIds" toml:"stepIds"`
}

// Plan is the top-level document describing an objective and its ordered steps.
type Plan struct {
	ID            string   `json:"planId" yaml:"planId" toml:"planId"`
	SchemaVersion string   `json:"schemaVersion" yaml:"schemaVersion" toml:"schemaVersion"`
	Type          PlanType `json:"planType" yaml:"planType" toml:"planType"`
	Metadata      Metadata `json:"metadata" yaml:"metadata" toml:"metadata"`
	Objective     string   `json:"objective" yaml:"objective" toml:"objective"`
	Scope         Scope    `json:"scope" yaml:"scope" toml:"scope"`
	Constraints   []string `json:"constraints,omitempty" yaml:"constraints,omitempty" toml:"constraints,omitempty"`
	Phases        []Phase  `json:"phases,omitempty" yaml:"phases,omitempty" toml:"phases,omitempty"`
	Steps         []Step   `json:"steps" yaml:"steps" toml:"steps"`
}

// StepByID returns a pointer to a step by ID, or nil if not found.
func (p *Plan) StepByID(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// StepIDs returns step IDs in declaration order.
func (p *Plan) StepIDs() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

// States returns a snapshot of every step's state keyed by step ID.
func (p *Plan) States() map[string]StepState {
	states := make(map[string]StepState, len(p.Steps))
	for _, s := range p.Steps {
		states[s.ID] = s.Status.State
	}
	return states
}

// IsComplete returns true once every step reached a terminal state.
func (p *Plan) IsComplete() bool {
	for _, s := range p.Steps {
		if !s.Status.State.IsTerminal() {
			return false
		}
	}
	return true
}

// IsArchived returns true once an external collaborator archived the plan.
func (p *Plan) IsArchived() bool {
	return p.Metadata.ArchivedAt != nil
}

// Touch records a mutation: the revision increases and UpdatedAt moves
// forward, never before CreatedAt.
func (p *Plan) Touch(now time.Time) {
	p.Metadata.Revision++
	if now.Before(p.Metadata.CreatedAt) {
		now = p.Metadata.CreatedAt
	}
	if now.Before(p.Metadata.UpdatedAt) {
		now = p.Metadata.UpdatedAt
	}
	p.Metadata.UpdatedAt = now
}

// Archive marks the plan archived. Archiving twice is a no-op.
func (p *Plan) Archive(now time.Time) bool {
	if p.IsArchived() {
		return false
	}
	p.Touch(now)
	at := p.Metadata.UpdatedAt
	p.Metadata.ArchivedAt = &at
	return true
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	out := *p
	if p.Metadata.ArchivedAt != nil {
		t := *p.Metadata.ArchivedAt
		out.Metadata.ArchivedAt = &t
	}
	out.Scope = Scope{
		InScope:    slices.Clone(p.Scope.InScope),
		OutOfScope: slices.Clone(p.Scope.OutOfScope),
	}
	out.Constraints = slices.Clone(p.Constraints)
	if p.Phases != nil {
		out.Phases = make([]Phase, len(p.Phases))
		for i, ph := range p.Phases {
			ph.StepIDs = slices.Clone(ph.StepIDs)
			out.Phases[i] = ph
		}
	}
	if p.Steps != nil {
		out.Steps = make([]Step, len(p.Steps))
		for i, s := range p.Steps {
			out.Steps[i] = s.Clone()
		}
	}
	return &out
}
