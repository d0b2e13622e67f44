package memory

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/josephgoksu/plantrack/internal/progress"
	"github.com/josephgoksu/plantrack/models"
	"github.com/spf13/afero"
)

// MarkdownStore writes human-readable plan summaries next to the database.
type MarkdownStore struct {
	fs       afero.Fs
	basePath string
}

func NewMarkdownStore(fs afero.Fs, basePath string) *MarkdownStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &MarkdownStore{fs: fs, basePath: basePath}
}

// WritePlan renders the plan to <basePath>/plans/<id>.md and returns the path.
func (s *MarkdownStore) WritePlan(p *models.Plan) (string, error) {
	dir := filepath.Join(s.basePath, "plans")
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create plans dir: %w", err)
	}
	path := filepath.Join(dir, p.ID+".md")
	if err := afero.WriteFile(s.fs, path, []byte(RenderPlan(p)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// RemovePlan deletes a rendered summary. A missing file is not an error.
func (s *MarkdownStore) RemovePlan(id string) error {
	path := filepath.Join(s.basePath, "plans", id+".md")
	if ok, _ := afero.Exists(s.fs, path); !ok {
		return nil
	}
	return s.fs.Remove(path)
}

// RenderPlan produces the markdown summary of a plan.
func RenderPlan(p *models.Plan) string {
	var sb strings.Builder
	overall := progress.Compute(p.Steps)

	fmt.Fprintf(&sb, "# %s\n\n", p.Metadata.Title)
	fmt.Fprintf(&sb, "- **Plan:** %s (%s, revision %d)\n", p.ID, p.Type, p.Metadata.Revision)
	fmt.Fprintf(&sb, "- **Progress:** %d%% (%d/%d done", overall.PercentComplete, overall.Completed, overall.Total)
	if overall.Skipped > 0 {
		fmt.Fprintf(&sb, ", %d skipped", overall.Skipped)
	}
	sb.WriteString(")\n")
	if p.IsArchived() {
		fmt.Fprintf(&sb, "- **Archived:** %s\n", p.Metadata.ArchivedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&sb, "\n%s\n\n", p.Objective)

	if len(p.Constraints) > 0 {
		sb.WriteString("## Constraints\n\n")
		for _, c := range p.Constraints {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
		sb.WriteString("\n")
	}

	if len(p.Phases) > 0 {
		sb.WriteString("## Phases\n\n| Phase | Done | Progress |\n|---|---|---|\n")
		for _, g := range progress.ByPhase(p) {
			title := g.Title
			if title == "" {
				title = g.Key
			}
			fmt.Fprintf(&sb, "| %s | %d/%d | %d%% |\n", title, g.Progress.Completed, g.Progress.Total, g.Progress.PercentComplete)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Steps\n\n")
	for _, step := range p.Steps {
		fmt.Fprintf(&sb, "- %s **%s** %s (%s)", checkbox(step.Status.State), step.ID, step.Title, step.Kind)
		if len(step.DependsOn) > 0 {
			fmt.Fprintf(&sb, " after %s", strings.Join(step.DependsOn, ", "))
		}
		sb.WriteString("\n")
		if step.Status.BlockReason != "" {
			fmt.Fprintf(&sb, "  - Blocked: %s\n", step.Status.BlockReason)
		}
		if step.Status.Notes != "" {
			fmt.Fprintf(&sb, "  - Notes: %s\n", step.Status.Notes)
		}
	}
	return sb.String()
}

func checkbox(state models.StepState) string {
	switch state {
	case models.StateDone:
		return "[x]"
	case models.StateSkipped:
		return "[-]"
	case models.StateInProgress:
		return "[~]"
	case models.StateBlocked:
		return "[!]"
	}
	return "[ ]"
}
