package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlanConfig(t *testing.T) {
	cfg := DefaultPlanConfig()

	assert.Equal(t, 200, cfg.MaxSteps)
	assert.Equal(t, []string{"1.0", "1.1"}, cfg.SchemaVersions)
	assert.Len(t, cfg.PlanTypes, 6)
	assert.Len(t, cfg.StepKinds, 8)
	assert.Equal(t, []string{"pending", "in-progress", "done", "blocked", "skipped"}, cfg.StepStates)
	assert.False(t, cfg.SkippedSatisfiesDependencies, "skipped deps must not satisfy eligibility unless configured")
	assert.Equal(t, 250.0, cfg.HorizontalSpacing)
	assert.Equal(t, 150.0, cfg.VerticalSpacing)

	require.NoError(t, cfg.Validate())
}

func TestDefaultPlanConfig_ReturnsCopies(t *testing.T) {
	cfg := DefaultPlanConfig()
	cfg.PlanTypes[0] = "mutated"

	assert.Equal(t, "feature", DefaultPlanTypes[0])
	assert.Equal(t, "feature", DefaultPlanConfig().PlanTypes[0])
}

func TestLoadPlanConfig_Defaults(t *testing.T) {
	viper.Reset()

	cfg := LoadPlanConfig()

	defaults := DefaultPlanConfig()
	assert.Equal(t, defaults, cfg)
}

func TestLoadPlanConfig_CustomValues(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("plan.max_steps", 10)
	viper.Set("plan.plan_types", []string{"feature", " bugfix "})
	viper.Set("plan.skipped_satisfies_dependencies", true)
	viper.Set("plan.layout.horizontal_spacing", 100.0)

	cfg := LoadPlanConfig()

	assert.Equal(t, 10, cfg.MaxSteps)
	assert.Equal(t, []string{"feature", "bugfix"}, cfg.PlanTypes)
	assert.True(t, cfg.SkippedSatisfiesDependencies)
	assert.Equal(t, 100.0, cfg.HorizontalSpacing)
	assert.Equal(t, DefaultVerticalSpacing, cfg.VerticalSpacing)
}

func TestPlanConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PlanConfig)
		wantErr string
	}{
		{
			name:    "zero max steps",
			mutate:  func(c *PlanConfig) { c.MaxSteps = 0 },
			wantErr: "MaxSteps",
		},
		{
			name:    "unknown step kind",
			mutate:  func(c *PlanConfig) { c.StepKinds = append(c.StepKinds, "deploy") },
			wantErr: `unknown step kind "deploy"`,
		},
		{
			name:    "unknown state",
			mutate:  func(c *PlanConfig) { c.StepStates = []string{"pending", "waiting"} },
			wantErr: `unknown step state "waiting"`,
		},
		{
			name:    "pending missing",
			mutate:  func(c *PlanConfig) { c.StepStates = []string{"done"} },
			wantErr: "must include",
		},
		{
			name:    "negative spacing",
			mutate:  func(c *PlanConfig) { c.VerticalSpacing = -1 },
			wantErr: "VerticalSpacing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPlanConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlanConfig_Vocabulary(t *testing.T) {
	cfg := DefaultPlanConfig()

	assert.True(t, cfg.HasPlanType("migration"))
	assert.False(t, cfg.HasPlanType("chore"))
	assert.True(t, cfg.HasStepKind("run_command"))
	assert.True(t, cfg.HasStepState("in-progress"))
	assert.False(t, cfg.HasStepState("in_progress"))
	assert.True(t, cfg.HasSchemaVersion("1.1"))
}
