/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/josephgoksu/plantrack/internal/app"
	"github.com/josephgoksu/plantrack/internal/status"
	"github.com/josephgoksu/plantrack/internal/steputil"
	"github.com/josephgoksu/plantrack/internal/ui"
	"github.com/josephgoksu/plantrack/models"
)

var (
	stepNotes  string
	stepReason string
	stepActor  string
)

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Change the status of a plan step",
	Long: `Move a step through its lifecycle:

  pending ──start──▶ in-progress ──done──▶ done
     │                  │   ▲
     │                block unblock
     │                  ▼   │
     │                blocked ──reset──▶ pending
     └──skip──▶ skipped ◀──skip── in-progress

done and skipped are terminal; 'reopen' is the explicit way back to pending.
A step can only start once its dependencies are done.

Examples:
  plantrack step start plan-auth A
  plantrack step block plan-auth B --reason "waiting on API keys"
  plantrack step done plan-auth A --notes "merged in #42"
  plantrack step move plan-auth A wip`,
}

func newTransitionCmd(use, short string, to models.StepState) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <plan> <step>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args[0], args[1], to)
		},
	}
}

var stepMoveCmd = &cobra.Command{
	Use:   "move <plan> <step> <state>",
	Short: "Move a step to any state (accepts aliases like wip, todo, stuck)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := steputil.NormalizeState(args[2])
		if err != nil {
			return err
		}
		if to == "" {
			return fmt.Errorf("a target state is required")
		}
		return runTransition(cmd, args[0], args[1], to)
	},
}

var stepReopenCmd = &cobra.Command{
	Use:   "reopen <plan> <step>",
	Short: "Return a done or skipped step to pending",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			res, err := a.Reopen(ctx, id, args[1], stepReason, actor())
			if err != nil {
				return err
			}
			return printStepResult(cmd, res)
		})
	},
}

var stepNoteCmd = &cobra.Command{
	Use:   "note <plan> <step> <text>",
	Short: "Replace the notes of a step",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.PlanApp) error {
			id, err := resolvePlan(ctx, a, args[0])
			if err != nil {
				return err
			}
			res, err := a.Annotate(ctx, id, args[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			return printStepResult(cmd, res)
		})
	},
}

func runTransition(cmd *cobra.Command, planArg, stepID string, to models.StepState) error {
	return withApp(func(ctx context.Context, a *app.PlanApp) error {
		id, err := resolvePlan(ctx, a, planArg)
		if err != nil {
			return err
		}
		res, err := a.Transition(ctx, id, status.Request{
			StepID:      stepID,
			To:          to,
			Notes:       stepNotes,
			BlockReason: stepReason,
			Actor:       actor(),
		})
		if err != nil {
			return err
		}
		return printStepResult(cmd, res)
	})
}

func printStepResult(cmd *cobra.Command, res *app.StepResult) error {
	if jsonOutput {
		return printJSON(cmd, res)
	}
	state := res.Step.Status.State
	cmd.Printf("%s %s → %s  %s\n",
		ui.StateIcon(state),
		res.Step.ID,
		ui.StateStyle(state).Render(ui.StateLabel(state)),
		ui.StyleSubtle.Render(fmt.Sprintf("(%s rev %d)", res.Plan.ID, res.Plan.Metadata.Revision)))
	for _, w := range res.PolicyWarnings {
		cmd.Printf("  %s %s\n", ui.StyleWarning.Render("policy"), w)
	}
	return nil
}

// actor is --actor, then PLANTRACK_ACTOR or the actor config key, then the
// OS user.
func actor() string {
	if stepActor != "" {
		return stepActor
	}
	if a := viper.GetString("actor"); a != "" {
		return a
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

func init() {
	rootCmd.AddCommand(stepCmd)
	stepCmd.AddCommand(
		newTransitionCmd("start", "Start a step whose dependencies are done", models.StateInProgress),
		newTransitionCmd("done", "Complete an in-progress step", models.StateDone),
		newTransitionCmd("block", "Block an in-progress step (needs --reason)", models.StateBlocked),
		newTransitionCmd("unblock", "Resume a blocked step", models.StateInProgress),
		newTransitionCmd("reset", "Return a blocked step to pending", models.StatePending),
		newTransitionCmd("skip", "Skip a pending or in-progress step", models.StateSkipped),
		stepMoveCmd,
		stepReopenCmd,
		stepNoteCmd,
	)

	stepCmd.PersistentFlags().StringVar(&stepNotes, "notes", "", "notes to record with the change")
	stepCmd.PersistentFlags().StringVar(&stepReason, "reason", "", "block or reopen reason")
	stepCmd.PersistentFlags().StringVar(&stepActor, "actor", "", "who is making the change (default: $PLANTRACK_ACTOR or the OS user)")
}
