package ui

import (
	"fmt"
	"strings"

	"github.com/josephgoksu/plantrack/internal/eligibility"
	"github.com/josephgoksu/plantrack/internal/layout"
	"github.com/josephgoksu/plantrack/internal/progress"
	"github.com/josephgoksu/plantrack/models"
	"github.com/josephgoksu/plantrack/types"
)

// RenderReport lists errors then warnings, one per line.
func RenderReport(r types.Report) string {
	var sb strings.Builder
	if r.IsValid {
		sb.WriteString(StylePrefixDone.Render("✓ plan is valid"))
	} else {
		sb.WriteString(StylePrefixError.Render(fmt.Sprintf("✗ plan is invalid (%d errors)", len(r.Errors))))
	}
	sb.WriteString("\n")
	for i := range r.Errors {
		fmt.Fprintf(&sb, "  %s %s\n", StyleError.Render("error"), issueLine(&r.Errors[i]))
	}
	for i := range r.Warnings {
		fmt.Fprintf(&sb, "  %s %s\n", StyleWarning.Render("warn "), issueLine(&r.Warnings[i]))
	}
	return sb.String()
}

func issueLine(issue *types.Issue) string {
	return fmt.Sprintf("%s %s", issue.Error(), StyleSubtle.Render("["+issue.Code+"]"))
}

// RenderProgress renders the overall bar followed by one row per group.
func RenderProgress(overall progress.Progress, groups []progress.Group) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %3d%%  %s\n", ProgressBar(overall.PercentComplete, 24), overall.PercentComplete, countsLine(overall))
	if len(groups) == 0 {
		return sb.String()
	}

	t := &Table{Headers: []string{"GROUP", "DONE", "%", "ACTIVE", "BLOCKED", "SKIPPED"}, MaxWidth: 40}
	for _, g := range groups {
		title := g.Title
		if title == "" {
			title = g.Key
		}
		p := g.Progress
		t.Rows = append(t.Rows, []string{
			title,
			fmt.Sprintf("%d/%d", p.Completed, p.Total),
			fmt.Sprintf("%d", p.PercentComplete),
			fmt.Sprintf("%d", p.InProgress),
			fmt.Sprintf("%d", p.Blocked),
			fmt.Sprintf("%d", p.Skipped),
		})
	}
	sb.WriteString("\n")
	sb.WriteString(t.Render())
	return sb.String()
}

func countsLine(p progress.Progress) string {
	return StyleSubtle.Render(fmt.Sprintf("%d/%d done · %d in progress · %d blocked · %d skipped · %d pending",
		p.Completed, p.Total, p.InProgress, p.Blocked, p.Skipped, p.Pending))
}

// RenderPlan renders the plan header and its steps.
func RenderPlan(p *models.Plan) string {
	var sb strings.Builder
	sb.WriteString(StyleHeader.Render(p.Metadata.Title))
	sb.WriteString("\n")
	meta := fmt.Sprintf("%s · %s · revision %d", p.ID, p.Type, p.Metadata.Revision)
	if p.IsArchived() {
		meta += " · archived"
	}
	sb.WriteString(" " + StyleSubtle.Render(meta) + "\n")
	if p.Objective != "" {
		sb.WriteString(" " + p.Objective + "\n")
	}
	sb.WriteString("\n")

	t := &Table{Headers: []string{"", "STEP", "KIND", "STATE", "AFTER"}, MaxWidth: 48}
	for _, s := range p.Steps {
		t.Rows = append(t.Rows, []string{
			StateIcon(s.Status.State),
			s.ID + "  " + s.Title,
			KindLabel(s.Kind),
			StateStyle(s.Status.State).Render(StateLabel(s.Status.State)),
			strings.Join(s.DependsOn, ", "),
		})
	}
	sb.WriteString(t.Render())
	return sb.String()
}

// RenderEligibility renders a can-start answer.
func RenderEligibility(stepID string, r eligibility.Result) string {
	if r.Allowed {
		return StylePrefixDone.Render(fmt.Sprintf("✓ %s can start", stepID)) + "\n"
	}
	return StylePrefixWarn.Render(fmt.Sprintf("✗ %s cannot start: %s", stepID, r.Reason)) + "\n"
}

// RenderLayout prints the layers of the graph, one line per level.
func RenderLayout(l layout.Layout) string {
	var levels [][]layout.Node
	for _, n := range l.Nodes {
		for len(levels) <= n.Level {
			levels = append(levels, nil)
		}
		levels[n.Level] = append(levels[n.Level], n)
	}

	var sb strings.Builder
	for i, nodes := range levels {
		sb.WriteString(StyleSubtle.Render(fmt.Sprintf("L%d", i)))
		for _, n := range nodes {
			sb.WriteString("  " + StateIcon(n.State) + " " + n.ID)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(StyleSubtle.Render(fmt.Sprintf("%d steps, %d edges", len(l.Nodes), len(l.Edges))) + "\n")
	return sb.String()
}

// RenderIDs prints a titled list of step IDs, or a dim "none".
func RenderIDs(title string, ids []string) string {
	var sb strings.Builder
	sb.WriteString(StyleSectionTitle.Render(title) + "\n")
	if len(ids) == 0 {
		sb.WriteString(StyleSubtle.Render("  none") + "\n")
		return sb.String()
	}
	for _, id := range ids {
		sb.WriteString("  " + id + "\n")
	}
	return sb.String()
}
