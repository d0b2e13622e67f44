package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephgoksu/plantrack/models"
)

func step(id string, kind models.StepKind, state models.StepState) models.Step {
	return models.Step{ID: id, Kind: kind, Status: models.StepStatus{State: state}}
}

func TestCompute(t *testing.T) {
	steps := []models.Step{
		step("A", models.KindCreateFile, models.StateDone),
		step("B", models.KindEditFile, models.StateDone),
		step("C", models.KindTest, models.StateInProgress),
		step("D", models.KindReview, models.StatePending),
	}

	assert.Equal(t, Progress{
		Total:           4,
		Completed:       2,
		InProgress:      1,
		Pending:         1,
		PercentComplete: 50,
	}, Compute(steps))
}

func TestCompute_Empty(t *testing.T) {
	assert.Equal(t, Progress{}, Compute(nil))
}

func TestCompute_Rounding(t *testing.T) {
	tests := []struct {
		done, total int
		want        int
	}{
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{3, 3, 100},
	}
	for _, tt := range tests {
		var steps []models.Step
		for i := 0; i < tt.total; i++ {
			state := models.StatePending
			if i < tt.done {
				state = models.StateDone
			}
			steps = append(steps, step(string(rune('A'+i)), models.KindCustom, state))
		}
		assert.Equal(t, tt.want, Compute(steps).PercentComplete, "%d/%d", tt.done, tt.total)
	}
}

func TestCompute_SkippedNotCompleted(t *testing.T) {
	p := Compute([]models.Step{
		step("A", models.KindCustom, models.StateSkipped),
		step("B", models.KindCustom, models.StateDone),
		step("C", models.KindCustom, models.StateBlocked),
	})
	assert.Equal(t, 1, p.Skipped)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.Blocked)
	assert.Equal(t, 33, p.PercentComplete)
}

func TestByKind_FirstAppearanceOrder(t *testing.T) {
	groups := ByKind([]models.Step{
		step("A", models.KindTest, models.StateDone),
		step("B", models.KindCreateFile, models.StatePending),
		step("C", models.KindTest, models.StatePending),
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "test", groups[0].Key)
	assert.Equal(t, []string{"A", "C"}, groups[0].StepIDs)
	assert.Equal(t, 50, groups[0].Progress.PercentComplete)
	assert.Equal(t, "create_file", groups[1].Key)
	assert.Equal(t, 0, groups[1].Progress.PercentComplete)
}

func TestByPhase(t *testing.T) {
	plan := &models.Plan{
		Phases: []models.Phase{
			{ID: "build", Title: "Build", StepIDs: []string{"B", "A"}},
			{ID: "verify", Title: "Verify", StepIDs: []string{"C"}},
			{ID: "later", Title: "Later"},
		},
		Steps: []models.Step{
			step("A", models.KindCreateFile, models.StateDone),
			step("B", models.KindEditFile, models.StateDone),
			step("C", models.KindTest, models.StateInProgress),
			step("D", models.KindDocumentation, models.StatePending),
		},
	}

	groups := ByPhase(plan)
	require.Len(t, groups, 4)

	assert.Equal(t, "build", groups[0].Key)
	assert.Equal(t, "Build", groups[0].Title)
	assert.Equal(t, []string{"B", "A"}, groups[0].StepIDs)
	assert.Equal(t, 100, groups[0].Progress.PercentComplete)

	assert.Equal(t, "verify", groups[1].Key)
	assert.Equal(t, 1, groups[1].Progress.InProgress)

	assert.Equal(t, "later", groups[2].Key)
	assert.Equal(t, Progress{}, groups[2].Progress)

	assert.Equal(t, Unphased, groups[3].Key)
	assert.Equal(t, []string{"D"}, groups[3].StepIDs)
}

func TestByPhase_NoUnphasedGroupWhenAllAssigned(t *testing.T) {
	plan := &models.Plan{
		Phases: []models.Phase{{ID: "only", StepIDs: []string{"A"}}},
		Steps:  []models.Step{step("A", models.KindCustom, models.StatePending)},
	}
	groups := ByPhase(plan)
	require.Len(t, groups, 1)
	assert.Equal(t, "only", groups[0].Key)
}
