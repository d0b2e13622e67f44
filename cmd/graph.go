/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/plantrack/internal/app"
	"github.com/josephgoksu/plantrack/internal/ui"
)

var canStartCmd = &cobra.Command{
	Use:   "can-start <plan> <step>",
	Short: "Check whether a step's dependencies are satisfied",
	Long: `Report whether every dependency of a step is done. The exit status is
non-zero when the step cannot start, so the command works in scripts.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			res, err := a.CanStart(ctx, id, args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := printJSON(cmd, res); err != nil {
					return err
				}
			} else {
				cmd.Print(ui.RenderEligibility(args[1], res))
			}
			if !res.Allowed {
				return errSilentFailure
			}
			return nil
		})
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready <plan>",
	Short: "List pending steps that may start now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			ids, err := a.Ready(ctx, id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, ids)
			}
			cmd.Print(ui.RenderIDs("Ready to start", ids))
			return nil
		})
	},
}

var impactCmd = &cobra.Command{
	Use:   "impact <plan> <step>",
	Short: "List every step that depends on a step, directly or not",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			ids, err := a.Impact(ctx, id, args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, ids)
			}
			cmd.Print(ui.RenderIDs("Steps waiting on "+args[1], ids))
			return nil
		})
	},
}

var layoutCmd = &cobra.Command{
	Use:   "layout <plan>",
	Short: "Print the dependency graph by level",
	Long: `Derive the node and edge view of a plan. Steps are placed on levels by
longest dependency path. --json prints positions, colors and edges for a
graph renderer.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			l, err := a.Layout(ctx, id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, l)
			}
			cmd.Print(ui.RenderLayout(l))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(canStartCmd, readyCmd, impactCmd, layoutCmd)
}
