package models

import (
	"fmt"
	"maps"

	"github.com/go-viper/mapstructure/v2"
)

// ActionType tags an action. It shares the step kind vocabulary, and each
// tag has its own payload shape.
type ActionType string

const (
	ActionCreateFile    ActionType = "create_file"
	ActionEditFile      ActionType = "edit_file"
	ActionDeleteFile    ActionType = "delete_file"
	ActionRunCommand    ActionType = "run_command"
	ActionTest          ActionType = "test"
	ActionReview        ActionType = "review"
	ActionDocumentation ActionType = "documentation"
	ActionCustom        ActionType = "custom"
)

// Action is one concrete operation inside a step. Payload stays free form
// on the wire; DecodePayload turns it into the typed variant for Type.
type Action struct {
	Type        ActionType     `json:"type" yaml:"type" toml:"type"`
	Description string         `json:"description" yaml:"description" toml:"description"`
	Payload     map[string]any `json:"payload,omitempty" yaml:"payload,omitempty" toml:"payload,omitempty"`
}

// Clone returns a copy with its own top-level payload map.
func (a Action) Clone() Action {
	out := a
	if a.Payload != nil {
		out.Payload = maps.Clone(a.Payload)
	}
	return out
}

// FilePayload is carried by create_file, edit_file and delete_file actions.
type FilePayload struct {
	Path    string `mapstructure:"path" json:"path" validate:"required,nonempty"`
	Content string `mapstructure:"content" json:"content,omitempty"`
}

// CommandPayload is carried by run_command actions.
type CommandPayload struct {
	Command          string   `mapstructure:"command" json:"command" validate:"required,nonempty"`
	Args             []string `mapstructure:"args" json:"args,omitempty"`
	WorkDir          string   `mapstructure:"workDir" json:"workDir,omitempty"`
	ExpectedExitCode int      `mapstructure:"expectedExitCode" json:"expectedExitCode,omitempty" validate:"gte=0,lte=255"`
}

// TestPayload is carried by test actions.
type TestPayload struct {
	Command string `mapstructure:"command" json:"command,omitempty"`
	Pattern string `mapstructure:"pattern" json:"pattern,omitempty"`
}

// ReviewPayload is carried by review actions.
type ReviewPayload struct {
	Reviewers []string `mapstructure:"reviewers" json:"reviewers,omitempty" validate:"omitempty,dive,nonempty"`
	Checklist []string `mapstructure:"checklist" json:"checklist,omitempty"`
}

// DocumentationPayload is carried by documentation actions.
type DocumentationPayload struct {
	Path    string `mapstructure:"path" json:"path,omitempty"`
	Section string `mapstructure:"section" json:"section,omitempty"`
}

// CustomPayload is the escape hatch: any keys are accepted.
type CustomPayload map[string]any

// NewPayload returns a pointer to the zero payload for an action type, or
// nil when the type is unknown.
func NewPayload(t ActionType) any {
	switch t {
	case ActionCreateFile, ActionEditFile, ActionDeleteFile:
		return &FilePayload{}
	case ActionRunCommand:
		return &CommandPayload{}
	case ActionTest:
		return &TestPayload{}
	case ActionReview:
		return &ReviewPayload{}
	case ActionDocumentation:
		return &DocumentationPayload{}
	case ActionCustom:
		return &CustomPayload{}
	default:
		return nil
	}
}

// DecodePayloadAs decodes a free-form payload into the typed variant for t.
// Type mismatches are errors; unknown keys are tolerated.
func DecodePayloadAs(t ActionType, payload map[string]any) (any, error) {
	out := NewPayload(t)
	if out == nil {
		return nil, fmt.Errorf("unknown action type %q", t)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: false,
		ErrorUnused:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("create payload decoder: %w", err)
	}
	if err := decoder.Decode(payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return out, nil
}

// DecodePayload decodes the action's payload into its typed variant.
func (a Action) DecodePayload() (any, error) {
	return DecodePayloadAs(a.Type, a.Payload)
}
