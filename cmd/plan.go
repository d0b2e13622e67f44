/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/josephgoksu/plantrack/internal/app"
	"github.com/josephgoksu/plantrack/internal/memory"
	"github.com/josephgoksu/plantrack/internal/progress"
	"github.com/josephgoksu/plantrack/internal/ui"
	"github.com/josephgoksu/plantrack/internal/util"
	"github.com/josephgoksu/plantrack/models"
)

var (
	importNewID   bool
	listArchived  bool
	showByKind    bool
	exportDir     string
	deleteConfirm bool
)

var importCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Validate a plan document and store it",
	Long: `Validate a plan document and store it for tracking.

The import fails when the document is invalid or a plan with the same ID is
already stored. With --new-id the document is treated as a template: it gets
a fresh "plan-xxxxxxxx" ID, revision 1 and every step pending.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readDocument(cmd, args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			res, err := a.Import(ctx, raw, app.ImportOptions{NewID: importNewID})
			if err != nil {
				if res != nil {
					return printReport(cmd, res.Report)
				}
				return err
			}
			if jsonOutput {
				return printJSON(cmd, res)
			}
			cmd.Printf("✓ Imported %s (%d steps)\n", res.Plan.ID, len(res.Plan.Steps))
			for i := range res.Report.Warnings {
				cmd.Printf("  %s %s\n", ui.StyleWarning.Render("warn"), res.Report.Warnings[i].Error())
			}
			return nil
		})
	},
}

var reviseCmd = &cobra.Command{
	Use:   "revise <plan> <file|->",
	Short: "Replace a stored plan's definition",
	Long: `Replace the steps, phases and metadata of a stored plan with a new
document. The document is fully re-validated. Steps that keep their ID keep
their status; new steps start with the status the document declares.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readDocument(cmd, args[1])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			res, err := a.Revise(ctx, id, raw)
			if err != nil {
				if res != nil {
					return printReport(cmd, res.Report)
				}
				return err
			}
			if jsonOutput {
				return printJSON(cmd, res)
			}
			cmd.Printf("✓ Revised %s (revision %d)\n", id, res.Plan.Metadata.Revision)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored plans",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			plans, err := a.List(ctx)
			if err != nil {
				return err
			}
			if !listArchived {
				plans = slices.DeleteFunc(plans, func(p *models.Plan) bool { return p.IsArchived() })
			}
			if jsonOutput {
				return printJSON(cmd, plans)
			}
			if len(plans) == 0 {
				cmd.Println("No plans stored. Run 'plantrack import <file>' to add one.")
				return nil
			}

			t := &ui.Table{Headers: []string{"ID", "TITLE", "TYPE", "PROGRESS", "REV"}, MaxWidth: 40}
			for _, p := range plans {
				pr := progress.Compute(p.Steps)
				title := p.Metadata.Title
				if p.IsArchived() {
					title += " (archived)"
				}
				t.Rows = append(t.Rows, []string{
					util.ShortID(p.ID, 0),
					title,
					string(p.Type),
					fmt.Sprintf("%s %3d%%", ui.ProgressBar(pr.PercentComplete, 10), pr.PercentComplete),
					fmt.Sprintf("%d", p.Metadata.Revision),
				})
			}
			cmd.Print(t.Render())
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <plan>",
	Short: "Show a plan with its steps and progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			plan, err := a.Get(ctx, id)
			if err != nil {
				return err
			}
			pr, err := a.Progress(ctx, id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, map[string]any{"plan": plan, "progress": pr})
			}

			cmd.Print(ui.RenderPlan(plan))
			groups := pr.Phases
			title := "Phases"
			if showByKind || len(plan.Phases) == 0 {
				groups, title = pr.Kinds, "Kinds"
			}
			body := ui.RenderProgress(pr.Overall, groups)
			if ui.IsInteractive() {
				cmd.Println(ui.NewPanel(title, body).WithWidth(min(ui.TerminalWidth(100), 100) - 2).Render())
			} else {
				cmd.Printf("\n%s\n%s", title, body)
			}
			return nil
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <plan>",
	Short: "Archive a plan",
	Long: `Mark a plan archived. The default transition policy denies step changes
on archived plans, and archived plans cannot be revised.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			plan, changed, err := a.Archive(ctx, id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, map[string]any{"plan": plan, "changed": changed})
			}
			if !changed {
				cmd.Printf("%s is already archived\n", id)
				return nil
			}
			cmd.Printf("✓ Archived %s\n", id)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <plan>",
	Aliases: []string{"rm"},
	Short:   "Delete a stored plan",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !deleteConfirm {
			return fmt.Errorf("refusing to delete without --yes")
		}
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			if err := a.Delete(ctx, id); err != nil {
				return err
			}
			cmd.Printf("✓ Deleted %s\n", id)
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <plan>",
	Short: "Write a plan as a Markdown checklist",
	Long: `Render a plan as Markdown: a progress line, a phase table and one
checkbox per step. Without --dir the Markdown is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			plan, err := a.Get(ctx, id)
			if err != nil {
				return err
			}
			if exportDir == "" {
				cmd.Print(memory.RenderPlan(plan))
				return nil
			}
			path, err := memory.NewMarkdownStore(afero.NewOsFs(), exportDir).WritePlan(plan)
			if err != nil {
				return err
			}
			cmd.Printf("✓ Wrote %s\n", path)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd, reviseCmd, listCmd, showCmd, archiveCmd, deleteCmd, exportCmd)

	importCmd.Flags().BoolVar(&importNewID, "new-id", false, "store the document as a new plan with a generated ID")
	listCmd.Flags().BoolVarP(&listArchived, "all", "a", false, "include archived plans")
	showCmd.Flags().BoolVar(&showByKind, "by-kind", false, "group progress by step kind instead of phase")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "write <dir>/plans/<id>.md instead of printing")
	deleteCmd.Flags().BoolVarP(&deleteConfirm, "yes", "y", false, "confirm deletion")
}
