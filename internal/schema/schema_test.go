package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/types"
)

func validDoc() map[string]any {
	return map[string]any{
		"planId":        "plan-auth",
		"schemaVersion": "1.0",
		"planType":      "feature",
		"metadata": map[string]any{
			"title":     "Add login",
			"author":    "dev",
			"createdAt": "2025-03-01T09:00:00Z",
			"updatedAt": "2025-03-01T10:00:00Z",
			"revision":  1,
		},
		"objective": "Users can log in",
		"scope":     map[string]any{"inScope": []any{"api"}},
		"steps": []any{
			map[string]any{
				"id":    "A",
				"title": "Create handler",
				"kind":  "create_file",
				"actions": []any{
					map[string]any{
						"type":        "create_file",
						"description": "handler file",
						"payload":     map[string]any{"path": "internal/auth/login.go"},
					},
				},
			},
			map[string]any{
				"id":         "B",
				"title":      "Test handler",
				"kind":       "test",
				"dependsOn":  []any{"A"},
				"validation": map[string]any{"criteria": []any{"tests pass"}},
				"status": map[string]any{
					"state":     "in-progress",
					"startedAt": "2025-03-01T11:00:00Z",
				},
			},
		},
	}
}

func step(doc map[string]any, i int) map[string]any {
	return doc["steps"].([]any)[i].(map[string]any)
}

func paths(issues []types.Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Path
	}
	return out
}

func newValidator() *Validator {
	return New(config.DefaultPlanConfig())
}

func TestValidate_ValidJSON(t *testing.T) {
	raw, err := json.Marshal(validDoc())
	require.NoError(t, err)

	result := newValidator().Validate(raw)
	assert.True(t, result.Valid, "unexpected errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.NotNil(t, result.Document)
	assert.Equal(t, "plan-auth", result.Document.PlanID)
	assert.Len(t, result.Document.Steps, 2)
}

func TestValidate_ValidYAML(t *testing.T) {
	raw := []byte(`
planId: plan-yaml
schemaVersion: "1.1"
planType: refactor
metadata:
  title: Extract store
objective: Split persistence
steps:
  - id: A
    title: Move files
    kind: edit_file
    actions:
      - type: run_command
        description: build
        payload:
          command: go
          args: [build, ./...]
  - id: B
    title: Review
    kind: review
    dependsOn: [A]
`)
	result := newValidator().Validate(raw)
	assert.True(t, result.Valid, "unexpected errors: %v", result.Errors)
}

func TestValidate_MissingRequiredField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		path   string
	}{
		{"planId", func(d map[string]any) { delete(d, "planId") }, "planId"},
		{"metadata", func(d map[string]any) { delete(d, "metadata") }, "metadata"},
		{"metadata title", func(d map[string]any) { delete(d["metadata"].(map[string]any), "title") }, "metadata.title"},
		{"steps", func(d map[string]any) { delete(d, "steps") }, "steps"},
		{"step kind", func(d map[string]any) { delete(step(d, 1), "kind") }, "steps[1].kind"},
		{"action description", func(d map[string]any) {
			delete(step(d, 0)["actions"].([]any)[0].(map[string]any), "description")
		}, "steps[0].actions[0].description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			tt.mutate(doc)

			result := newValidator().ValidateValue(doc)
			require.False(t, result.Valid)
			require.Len(t, result.Errors, 1, "errors: %v", result.Errors)

			issue := result.Errors[0]
			assert.Equal(t, tt.path, issue.Path)
			assert.Equal(t, CodeRequired, issue.Code)
			assert.Equal(t, types.KindStructural, issue.Kind)
			assert.True(t, errors.Is(&issue, types.ErrStructural))
		})
	}
}

func TestValidate_CollectsEveryViolation(t *testing.T) {
	doc := validDoc()
	doc["planType"] = "epic"
	step(doc, 0)["kind"] = "deploy"
	step(doc, 1)["title"] = 42

	result := newValidator().ValidateValue(doc)
	require.False(t, result.Valid)
	assert.ElementsMatch(t, []string{"planType", "steps[0].kind", "steps[1].title"}, paths(result.Errors))

	for _, issue := range result.Errors {
		switch issue.Path {
		case "steps[1].title":
			assert.Equal(t, CodeInvalidType, issue.Code)
			assert.Equal(t, "expected string, got number", issue.Message)
		default:
			assert.Equal(t, CodeInvalidEnum, issue.Code)
		}
	}
}

func TestValidate_EmptyStringsAndBounds(t *testing.T) {
	doc := validDoc()
	step(doc, 0)["id"] = "   "
	long := make([]byte, config.MaxTitleLength+1)
	for i := range long {
		long[i] = 'x'
	}
	step(doc, 1)["title"] = string(long)
	step(doc, 1)["dependsOn"] = []any{"A", "A"}

	result := newValidator().ValidateValue(doc)
	require.False(t, result.Valid)

	byPath := map[string]string{}
	for _, issue := range result.Errors {
		byPath[issue.Path] = issue.Code
	}
	assert.Equal(t, map[string]string{
		"steps[0].id":        CodeEmpty,
		"steps[1].title":     CodeTooLong,
		"steps[1].dependsOn": CodeDuplicateEntry,
	}, byPath)
}

func TestValidate_IDLength(t *testing.T) {
	doc := validDoc()
	long := strings.Repeat("s", config.MaxIDLength+1)
	step(doc, 0)["id"] = long

	result := newValidator().ValidateValue(doc)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "steps[0].id", result.Errors[0].Path)
	assert.Equal(t, CodeTooLong, result.Errors[0].Code)

	doc = validDoc()
	step(doc, 0)["title"] = strings.Repeat("é", config.MaxTitleLength)
	assert.True(t, newValidator().ValidateValue(doc).Valid, "length counts characters, not bytes")
}

func TestValidate_PlanIDFormat(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"plan-auth", true},
		{"p1", true},
		{"release_2.0", true},
		{"a/b", false},
		{"../escape", false},
		{".hidden", false},
		{"-leading-dash", false},
		{"has space", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			doc := validDoc()
			doc["planId"] = tt.id

			result := newValidator().ValidateValue(doc)
			if tt.valid {
				assert.True(t, result.Valid, "%v", result.Errors)
				return
			}
			require.Len(t, result.Errors, 1)
			assert.Equal(t, "planId", result.Errors[0].Path)
			assert.Equal(t, CodeInvalidFormat, result.Errors[0].Code)
			assert.Equal(t, types.KindStructural, result.Errors[0].Kind)
		})
	}
}

func TestValidate_MaxSteps(t *testing.T) {
	cfg := config.DefaultPlanConfig()
	cfg.MaxSteps = 1

	result := New(cfg).ValidateValue(validDoc())
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "steps", result.Errors[0].Path)
	assert.Equal(t, CodeTooMany, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Message, "at most 1 steps, got 2")
}

func TestValidate_InjectedVocabulary(t *testing.T) {
	doc := validDoc()
	doc["schemaVersion"] = "2.0"

	result := newValidator().ValidateValue(doc)
	require.False(t, result.Valid)
	assert.Equal(t, "schemaVersion", result.Errors[0].Path)

	cfg := config.DefaultPlanConfig()
	cfg.SchemaVersions = append(cfg.SchemaVersions, "2.0")
	assert.True(t, New(cfg).ValidateValue(doc).Valid)
}

func TestValidate_StatusInvariants(t *testing.T) {
	tests := []struct {
		name   string
		status map[string]any
		path   string
		code   string
	}{
		{
			name:   "blocked without reason",
			status: map[string]any{"state": "blocked", "startedAt": "2025-03-01T11:00:00Z"},
			path:   "steps[1].status.blockReason",
			code:   CodeInvalidStatus,
		},
		{
			name:   "reason while in progress",
			status: map[string]any{"state": "in-progress", "startedAt": "2025-03-01T11:00:00Z", "blockReason": "waiting"},
			path:   "steps[1].status.blockReason",
			code:   CodeInvalidStatus,
		},
		{
			name:   "done without completedAt",
			status: map[string]any{"state": "done", "startedAt": "2025-03-01T11:00:00Z"},
			path:   "steps[1].status.completedAt",
			code:   CodeInvalidStatus,
		},
		{
			name:   "pending with startedAt",
			status: map[string]any{"state": "pending", "startedAt": "2025-03-01T11:00:00Z"},
			path:   "steps[1].status.startedAt",
			code:   CodeInvalidStatus,
		},
		{
			name:   "skipped without startedAt",
			status: map[string]any{"state": "skipped", "completedAt": "2025-03-01T11:00:00Z"},
			path:   "steps[1].status.startedAt",
			code:   CodeInvalidStatus,
		},
		{
			name: "completed before started",
			status: map[string]any{
				"state":       "done",
				"startedAt":   "2025-03-01T11:00:00Z",
				"completedAt": "2025-03-01T10:00:00Z",
			},
			path: "steps[1].status.completedAt",
			code: CodeInvalidOrder,
		},
		{
			name:   "malformed timestamp",
			status: map[string]any{"state": "in-progress", "startedAt": "yesterday"},
			path:   "steps[1].status.startedAt",
			code:   CodeInvalidTimestamp,
		},
		{
			name:   "unknown state",
			status: map[string]any{"state": "finished"},
			path:   "steps[1].status.state",
			code:   CodeInvalidEnum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			step(doc, 1)["status"] = tt.status

			result := newValidator().ValidateValue(doc)
			require.False(t, result.Valid)
			require.Len(t, result.Errors, 1, "errors: %v", result.Errors)
			assert.Equal(t, tt.path, result.Errors[0].Path)
			assert.Equal(t, tt.code, result.Errors[0].Code)
		})
	}
}

func TestValidate_UpdatedBeforeCreated(t *testing.T) {
	doc := validDoc()
	doc["metadata"].(map[string]any)["updatedAt"] = "2025-02-01T00:00:00Z"

	result := newValidator().ValidateValue(doc)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "metadata.updatedAt", result.Errors[0].Path)
	assert.Equal(t, CodeInvalidOrder, result.Errors[0].Code)
}

func TestValidate_ActionPayloads(t *testing.T) {
	t.Run("missing required payload field", func(t *testing.T) {
		doc := validDoc()
		step(doc, 0)["actions"] = []any{
			map[string]any{"type": "delete_file", "description": "remove"},
		}
		result := newValidator().ValidateValue(doc)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "steps[0].actions[0].payload.path", result.Errors[0].Path)
		assert.Equal(t, CodeRequired, result.Errors[0].Code)
	})

	t.Run("payload field of wrong type", func(t *testing.T) {
		doc := validDoc()
		step(doc, 0)["actions"] = []any{
			map[string]any{"type": "run_command", "description": "run", "payload": map[string]any{"command": 5}},
		}
		result := newValidator().ValidateValue(doc)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "steps[0].actions[0].payload", result.Errors[0].Path)
		assert.Equal(t, CodeInvalidPayload, result.Errors[0].Code)
	})

	t.Run("exit code out of range", func(t *testing.T) {
		doc := validDoc()
		step(doc, 0)["actions"] = []any{
			map[string]any{"type": "run_command", "description": "run", "payload": map[string]any{"command": "make", "expectedExitCode": 300}},
		}
		result := newValidator().ValidateValue(doc)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "steps[0].actions[0].payload.expectedExitCode", result.Errors[0].Path)
		assert.Equal(t, CodeOutOfRange, result.Errors[0].Code)
	})

	t.Run("custom payload is free form", func(t *testing.T) {
		doc := validDoc()
		step(doc, 0)["actions"] = []any{
			map[string]any{"type": "custom", "description": "x", "payload": map[string]any{"anything": []any{1, 2}}},
		}
		assert.True(t, newValidator().ValidateValue(doc).Valid)
	})

	t.Run("unknown action type", func(t *testing.T) {
		doc := validDoc()
		step(doc, 0)["actions"] = []any{
			map[string]any{"type": "deploy", "description": "ship"},
		}
		result := newValidator().ValidateValue(doc)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "steps[0].actions[0].type", result.Errors[0].Path)
		assert.Equal(t, CodeInvalidEnum, result.Errors[0].Code)
	})
}

func TestValidate_IgnoresCrossStepReferences(t *testing.T) {
	doc := validDoc()
	step(doc, 1)["dependsOn"] = []any{"does-not-exist"}
	step(doc, 0)["id"] = "B"

	assert.True(t, newValidator().ValidateValue(doc).Valid)
}

func TestValidate_Malformed(t *testing.T) {
	t.Run("not a document", func(t *testing.T) {
		result := newValidator().Validate([]byte("{planId: [unterminated"))
		require.False(t, result.Valid)
		assert.Equal(t, CodeMalformed, result.Errors[0].Code)
		assert.Nil(t, result.Document)
	})

	t.Run("not an object", func(t *testing.T) {
		result := newValidator().Validate([]byte(`["a", "b"]`))
		require.Len(t, result.Errors, 1)
		assert.Equal(t, CodeInvalidType, result.Errors[0].Code)
		assert.Nil(t, result.Document)
	})

	t.Run("steps not an array", func(t *testing.T) {
		doc := validDoc()
		doc["steps"] = "A,B"
		result := newValidator().ValidateValue(doc)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "steps", result.Errors[0].Path)
		assert.Equal(t, "expected array, got string", result.Errors[0].Message)
	})
}

func TestResult_Report(t *testing.T) {
	doc := validDoc()
	delete(doc, "objective")

	report := newValidator().ValidateValue(doc).Report()
	assert.False(t, report.IsValid)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "objective: required field is missing", report.ErrorSummary())
	assert.NotNil(t, report.Warnings)
}
