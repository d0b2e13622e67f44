package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// PlanConfig holds the recognized-options set injected into every plan
// component. It is passed explicitly so several configurations can coexist
// in one process.
type PlanConfig struct {
	MaxSteps       int      `mapstructure:"max_steps" validate:"min=1"`
	SchemaVersions []string `mapstructure:"schema_versions" validate:"min=1,dive,required"`
	PlanTypes      []string `mapstructure:"plan_types" validate:"min=1,dive,required"`
	StepKinds      []string `mapstructure:"step_kinds" validate:"min=1,dive,required"`
	StepStates     []string `mapstructure:"step_states" validate:"min=1,dive,required"`

	// SkippedSatisfiesDependencies lets a skipped dependency count as
	// satisfied when checking whether a dependent may start.
	SkippedSatisfiesDependencies bool `mapstructure:"skipped_satisfies_dependencies"`

	HorizontalSpacing float64 `mapstructure:"horizontal_spacing" validate:"gt=0"`
	VerticalSpacing   float64 `mapstructure:"vertical_spacing" validate:"gt=0"`
}

// DefaultPlanConfig returns the default plan configuration.
func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		MaxSteps:       DefaultMaxSteps,
		SchemaVersions: slices.Clone(DefaultSchemaVersions),
		PlanTypes:      slices.Clone(DefaultPlanTypes),
		StepKinds:      slices.Clone(DefaultStepKinds),
		StepStates:     slices.Clone(DefaultStepStates),

		// Off by default: a skipped dependency has not produced its output.
		SkippedSatisfiesDependencies: false,

		HorizontalSpacing: DefaultHorizontalSpacing,
		VerticalSpacing:   DefaultVerticalSpacing,
	}
}

// LoadPlanConfig loads plan configuration from Viper with defaults.
func LoadPlanConfig() PlanConfig {
	defaults := DefaultPlanConfig()

	return PlanConfig{
		MaxSteps:       getIntWithDefault("plan.max_steps", defaults.MaxSteps),
		SchemaVersions: getStringSliceWithDefault("plan.schema_versions", defaults.SchemaVersions),
		PlanTypes:      getStringSliceWithDefault("plan.plan_types", defaults.PlanTypes),
		StepKinds:      getStringSliceWithDefault("plan.step_kinds", defaults.StepKinds),
		StepStates:     getStringSliceWithDefault("plan.step_states", defaults.StepStates),

		SkippedSatisfiesDependencies: getBoolWithDefault("plan.skipped_satisfies_dependencies", defaults.SkippedSatisfiesDependencies),

		HorizontalSpacing: getFloat64WithDefault("plan.layout.horizontal_spacing", defaults.HorizontalSpacing),
		VerticalSpacing:   getFloat64WithDefault("plan.layout.vertical_spacing", defaults.VerticalSpacing),
	}
}

var configValidate = validator.New()

// Validate checks field bounds and that every configured vocabulary entry
// is one the core knows how to handle.
func (c PlanConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid plan config: %w", err)
	}
	for _, kind := range c.StepKinds {
		if !slices.Contains(DefaultStepKinds, kind) {
			return fmt.Errorf("invalid plan config: unknown step kind %q", kind)
		}
	}
	for _, state := range c.StepStates {
		if !slices.Contains(DefaultStepStates, state) {
			return fmt.Errorf("invalid plan config: unknown step state %q", state)
		}
	}
	if !slices.Contains(c.StepStates, "pending") {
		return fmt.Errorf("invalid plan config: step_states must include %q", "pending")
	}
	return nil
}

// HasSchemaVersion reports whether v is a supported schema version.
func (c PlanConfig) HasSchemaVersion(v string) bool { return slices.Contains(c.SchemaVersions, v) }

// HasPlanType reports whether t is a supported plan type.
func (c PlanConfig) HasPlanType(t string) bool { return slices.Contains(c.PlanTypes, t) }

// HasStepKind reports whether k is a supported step kind.
func (c PlanConfig) HasStepKind(k string) bool { return slices.Contains(c.StepKinds, k) }

// HasStepState reports whether s belongs to the status vocabulary.
func (c PlanConfig) HasStepState(s string) bool { return slices.Contains(c.StepStates, s) }

// Helper functions for Viper with defaults

func getFloat64WithDefault(key string, defaultVal float64) float64 {
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	return defaultVal
}

func getIntWithDefault(key string, defaultVal int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return defaultVal
}

func getBoolWithDefault(key string, defaultVal bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return defaultVal
}

func getStringWithDefault(key string, defaultVal string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultVal
}

func getStringSliceWithDefault(key string, defaultVal []string) []string {
	if viper.IsSet(key) {
		var out []string
		for _, v := range viper.GetStringSlice(key) {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return slices.Clone(defaultVal)
}
