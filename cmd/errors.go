/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/josephgoksu/plantrack/internal/app"
	"github.com/josephgoksu/plantrack/store"
	"github.com/josephgoksu/plantrack/types"
)

// exitFunc is replaced in tests.
var exitFunc = os.Exit

// errSilentFailure sets a non-zero exit status for a command that already
// printed its answer.
var errSilentFailure = errors.New("command reported failure")

// HandleFatalError handles unrecoverable errors that should terminate the application.
func HandleFatalError(userMsg string, technicalErr error) {
	PrintError(userMsg, technicalErr)
	exitFunc(1)
}

// PrintError prints an error message without exiting, allowing for recovery.
func PrintError(userMsg string, technicalErr error) {
	if viper.GetBool("verbose") && technicalErr != nil {
		// In verbose mode, print the detailed, underlying technical error.
		fmt.Fprintf(os.Stderr, "Error: %v\n", technicalErr)
	} else {
		fmt.Fprintln(os.Stderr, userMsg)
	}
}

// LogError logs an error without printing to stderr if verbose mode is off.
func LogError(msg string, err error) {
	if viper.GetBool("verbose") {
		if err != nil {
			fmt.Fprintf(os.Stderr, "[DEBUG] %s: %v\n", msg, err)
		} else {
			fmt.Fprintf(os.Stderr, "[DEBUG] %s\n", msg)
		}
	}
}

// userMessage turns a command error into the line shown without --verbose.
func userMessage(err error) string {
	var verr *app.ValidationError
	if errors.As(err, &verr) {
		return fmt.Sprintf("Error: plan is invalid (%d error(s)). Run 'plantrack validate' for the full report.",
			len(verr.Report.Errors))
	}
	if issue, ok := types.AsIssue(err); ok {
		return "Error: " + issue.Error()
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return "Error: plan not found. Run 'plantrack list' to see stored plans."
	case errors.Is(err, store.ErrConcurrentModify):
		return "Error: the plan changed while this command ran. Try again."
	}
	return "Error: " + err.Error()
}
