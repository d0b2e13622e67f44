package steputil

import (
	"fmt"
	"strings"

	"github.com/josephgoksu/plantrack/models"
)

// NormalizeState maps common inputs and typos to canonical step states.
// Empty input stays empty.
func NormalizeState(input string) (models.StepState, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return "", nil
	}

	switch s {
	case "pending", "in-progress", "done", "blocked", "skipped":
		return models.StepState(s), nil
	case "todo", "open", "new", "reset":
		return models.StatePending, nil
	case "in_progress", "inprogress", "in progress", "wip", "doing", "started", "start", "active":
		return models.StateInProgress, nil
	case "complete", "completed", "finished", "closed", "ok":
		return models.StateDone, nil
	case "block", "stuck", "waiting", "on-hold", "hold":
		return models.StateBlocked, nil
	case "skip", "skiped", "wontfix", "won't do", "n/a":
		return models.StateSkipped, nil
	}

	return "", fmt.Errorf("unknown step state '%s'", input)
}

// NormalizeKind accepts dashed or spaced spellings of step kinds.
func NormalizeKind(input string) (models.StepKind, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)

	switch s {
	case "create_file", "edit_file", "delete_file", "run_command", "test",
		"review", "documentation", "custom":
		return models.StepKind(s), nil
	case "create", "new_file":
		return models.KindCreateFile, nil
	case "edit", "modify", "update_file":
		return models.KindEditFile, nil
	case "delete", "remove", "rm":
		return models.KindDeleteFile, nil
	case "run", "command", "cmd", "exec":
		return models.KindRunCommand, nil
	case "tests", "testing":
		return models.KindTest, nil
	case "docs", "doc":
		return models.KindDocumentation, nil
	}

	return "", fmt.Errorf("unknown step kind '%s'", input)
}

// StateToInt maps states to workflow order for sorting.
func StateToInt(s models.StepState) int {
	switch s {
	case models.StatePending:
		return 1
	case models.StateInProgress:
		return 2
	case models.StateBlocked:
		return 3
	case models.StateDone:
		return 4
	case models.StateSkipped:
		return 5
	default:
		return 0
	}
}
