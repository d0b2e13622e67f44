package status

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/eligibility"
	"github.com/josephgoksu/plantrack/models"
	"github.com/josephgoksu/plantrack/types"
)

var (
	t0      = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	now     = t0.Add(2 * time.Hour)
	allowed = eligibility.Result{Allowed: true, MissingDependencies: []string{}}
)

func engine() *Engine {
	return New(config.DefaultPlanConfig(), func() time.Time { return now })
}

func ptr(t time.Time) *time.Time { return &t }

func status(state models.StepState) models.StepStatus {
	s := models.StepStatus{State: state}
	if state.IsStarted() {
		s.StartedAt = ptr(t0)
	}
	if state.IsTerminal() {
		s.CompletedAt = ptr(t0.Add(time.Hour))
	}
	if state == models.StateBlocked {
		s.BlockReason = "waiting on review"
	}
	return s
}

func TestApply_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		from  models.StepState
		req   Request
		check func(t *testing.T, got models.StepStatus)
	}{
		{
			name: "start sets startedAt",
			from: models.StatePending,
			req:  Request{To: models.StateInProgress},
			check: func(t *testing.T, got models.StepStatus) {
				assert.Equal(t, ptr(now), got.StartedAt)
				assert.Nil(t, got.CompletedAt)
			},
		},
		{
			name: "complete sets completedAt and notes",
			from: models.StateInProgress,
			req:  Request{To: models.StateDone, Notes: "merged"},
			check: func(t *testing.T, got models.StepStatus) {
				assert.Equal(t, ptr(t0), got.StartedAt)
				assert.Equal(t, ptr(now), got.CompletedAt)
				assert.Equal(t, "merged", got.Notes)
			},
		},
		{
			name: "block records reason",
			from: models.StateInProgress,
			req:  Request{To: models.StateBlocked, BlockReason: "  flaky CI  "},
			check: func(t *testing.T, got models.StepStatus) {
				assert.Equal(t, "flaky CI", got.BlockReason)
				assert.Equal(t, ptr(t0), got.StartedAt)
			},
		},
		{
			name: "unblock clears reason and keeps startedAt",
			from: models.StateBlocked,
			req:  Request{To: models.StateInProgress},
			check: func(t *testing.T, got models.StepStatus) {
				assert.Empty(t, got.BlockReason)
				assert.Equal(t, ptr(t0), got.StartedAt)
			},
		},
		{
			name: "reset clears reason and startedAt",
			from: models.StateBlocked,
			req:  Request{To: models.StatePending},
			check: func(t *testing.T, got models.StepStatus) {
				assert.Empty(t, got.BlockReason)
				assert.Nil(t, got.StartedAt)
			},
		},
		{
			name: "skip from pending sets both timestamps",
			from: models.StatePending,
			req:  Request{To: models.StateSkipped},
			check: func(t *testing.T, got models.StepStatus) {
				assert.Equal(t, ptr(now), got.StartedAt)
				assert.Equal(t, ptr(now), got.CompletedAt)
			},
		},
		{
			name: "skip from in-progress keeps startedAt",
			from: models.StateInProgress,
			req:  Request{To: models.StateSkipped},
			check: func(t *testing.T, got models.StepStatus) {
				assert.Equal(t, ptr(t0), got.StartedAt)
				assert.Equal(t, ptr(now), got.CompletedAt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := status(tt.from)
			before := current.Clone()
			tt.req.StepID = "S"

			got, err := engine().Apply(current, tt.req, allowed)
			require.NoError(t, err)
			assert.Equal(t, tt.req.To, got.State)
			assert.Equal(t, before, current, "current status is not modified")
			tt.check(t, got)
		})
	}
}

func TestApply_InvalidTransitions(t *testing.T) {
	valid := map[[2]models.StepState]bool{}
	for _, from := range models.AllStates {
		for _, to := range Targets(from) {
			valid[[2]models.StepState{from, to}] = true
		}
	}

	for _, from := range models.AllStates {
		for _, to := range models.AllStates {
			if valid[[2]models.StepState{from, to}] {
				continue
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				current := status(from)
				got, err := engine().Apply(current, Request{StepID: "S", To: to}, allowed)
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrInvalidTransition))
				assert.Equal(t, current, got)

				issue, ok := types.AsIssue(err)
				require.True(t, ok)
				assert.Equal(t, "S", issue.StepID)
			})
		}
	}
}

func TestApply_DoneToInProgressRejected(t *testing.T) {
	_, err := engine().Apply(status(models.StateDone), Request{StepID: "S", To: models.StateInProgress}, allowed)
	require.Error(t, err)

	issue, ok := types.AsIssue(err)
	require.True(t, ok)
	assert.Equal(t, types.KindInvalidTransition, issue.Kind)
	assert.Equal(t, CodeInvalidTransition, issue.Code)
	assert.Equal(t, "step S: cannot transition from done to in-progress; reopen the step instead", err.Error())
}

func TestApply_StartRequiresEligibility(t *testing.T) {
	elig := eligibility.Result{
		Reason:              "dependency is not done: A (pending)",
		MissingDependencies: []string{"A"},
	}

	_, err := engine().Apply(status(models.StatePending), Request{StepID: "B", To: models.StateInProgress}, elig)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrIneligibleStart))

	issue, _ := types.AsIssue(err)
	assert.Equal(t, []string{"A"}, issue.Related)
	assert.Contains(t, issue.Message, "A (pending)")
}

func TestApply_SkipIgnoresEligibility(t *testing.T) {
	got, err := engine().Apply(status(models.StatePending), Request{To: models.StateSkipped}, eligibility.Result{})
	require.NoError(t, err)
	assert.Equal(t, models.StateSkipped, got.State)
}

func TestApply_BlockReasonRules(t *testing.T) {
	t.Run("block without reason", func(t *testing.T) {
		_, err := engine().Apply(status(models.StateInProgress), Request{To: models.StateBlocked, BlockReason: "  "}, allowed)
		issue, ok := types.AsIssue(err)
		require.True(t, ok)
		assert.Equal(t, CodeBlockReasonRequired, issue.Code)
	})

	t.Run("reason on non-blocked target", func(t *testing.T) {
		_, err := engine().Apply(status(models.StateBlocked), Request{To: models.StatePending, BlockReason: "still waiting"}, allowed)
		issue, ok := types.AsIssue(err)
		require.True(t, ok)
		assert.Equal(t, CodeBlockReasonForbidden, issue.Code)
		assert.True(t, errors.Is(err, types.ErrInvalidTransition))
	})

	t.Run("blocked to pending once the reason is cleared", func(t *testing.T) {
		got, err := engine().Apply(status(models.StateBlocked), Request{To: models.StatePending}, allowed)
		require.NoError(t, err)
		assert.Equal(t, models.PendingStatus(), got)
	})
}

func TestApply_UnknownTarget(t *testing.T) {
	narrow := config.DefaultPlanConfig()
	narrow.StepStates = []string{"pending", "in-progress", "done", "blocked"}
	noSkip := New(narrow, func() time.Time { return now })

	tests := []struct {
		name    string
		engine  *Engine
		from    models.StepState
		to      models.StepState
		message string
	}{
		{"not a state at all", engine(), models.StatePending, "finished", `unknown target state "finished"`},
		{"skipped outside vocabulary from pending", noSkip, models.StatePending, models.StateSkipped, `"skipped" is not one of`},
		{"skipped outside vocabulary from in-progress", noSkip, models.StateInProgress, models.StateSkipped, `"skipped" is not one of`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := status(tt.from)
			got, err := tt.engine.Apply(current, Request{StepID: "S", To: tt.to}, allowed)
			require.Error(t, err)
			assert.Equal(t, current, got)

			issue, ok := types.AsIssue(err)
			require.True(t, ok)
			assert.Equal(t, types.KindInvalidTransition, issue.Kind)
			assert.Equal(t, CodeUnknownState, issue.Code)
			assert.Contains(t, issue.Message, tt.message)
		})
	}

	t.Run("configured states still move", func(t *testing.T) {
		got, err := noSkip.Apply(status(models.StatePending), Request{To: models.StateInProgress}, allowed)
		require.NoError(t, err)
		assert.Equal(t, models.StateInProgress, got.State)
	})
}

func TestApply_EmptyStateIsPending(t *testing.T) {
	got, err := engine().Apply(models.StepStatus{}, Request{To: models.StateInProgress}, allowed)
	require.NoError(t, err)
	assert.Equal(t, models.StateInProgress, got.State)
}

func TestReopen(t *testing.T) {
	t.Run("done step", func(t *testing.T) {
		current := status(models.StateDone)
		current.Notes = "shipped"

		got, err := engine().Reopen(current, "S", "regression found")
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, got.State)
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.CompletedAt)
		assert.Equal(t, "shipped\nreopened 2025-06-01T10:00:00Z: regression found", got.Notes)
	})

	t.Run("requires reason", func(t *testing.T) {
		_, err := engine().Reopen(status(models.StateSkipped), "S", "")
		issue, ok := types.AsIssue(err)
		require.True(t, ok)
		assert.Equal(t, CodeReopenReasonRequired, issue.Code)
	})

	t.Run("only terminal steps", func(t *testing.T) {
		_, err := engine().Reopen(status(models.StateBlocked), "S", "why not")
		issue, ok := types.AsIssue(err)
		require.True(t, ok)
		assert.Equal(t, CodeReopenNotTerminal, issue.Code)
	})
}

func TestAnnotate(t *testing.T) {
	current := status(models.StateInProgress)
	got := engine().Annotate(current, "halfway")
	assert.Equal(t, "halfway", got.Notes)
	assert.Equal(t, current.State, got.State)
	assert.Empty(t, current.Notes)
}

func TestTargets(t *testing.T) {
	assert.Equal(t, []models.StepState{models.StateInProgress, models.StateSkipped}, Targets(models.StatePending))
	assert.Equal(t, []models.StepState{models.StatePending, models.StateInProgress}, Targets(models.StateBlocked))
	assert.Empty(t, Targets(models.StateDone))

	narrow := config.DefaultPlanConfig()
	narrow.StepStates = []string{"pending", "in-progress", "done"}
	e := New(narrow, nil)
	assert.Equal(t, []models.StepState{models.StateInProgress}, e.Targets(models.StatePending))
	assert.Equal(t, []models.StepState{models.StateDone}, e.Targets(models.StateInProgress))
}
