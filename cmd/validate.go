/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/logger"
	"github.com/josephgoksu/plantrack/internal/semantic"
	"github.com/josephgoksu/plantrack/internal/ui"
	"github.com/josephgoksu/plantrack/internal/watch"
)

var validateWatch bool

// validateCmd checks a plan document without storing it.
var validateCmd = &cobra.Command{
	Use:   "validate <file|->",
	Short: "Validate a plan document",
	Long: `Run structural then semantic validation over a JSON or YAML plan document.

Every problem is reported: missing or malformed fields, duplicate IDs,
references to unknown steps, dependency cycles and self-dependencies.
Warnings (orphan steps, review steps without criteria) never fail the run.

With --watch the file is re-validated every time it changes.

Examples:
  plantrack validate plan.yaml
  plantrack validate --json plan.json
  cat plan.json | plantrack validate -
  plantrack validate --watch plan.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVarP(&validateWatch, "watch", "w", false, "re-validate whenever the file changes")
}

func runValidate(cmd *cobra.Command, args []string) error {
	v := semantic.New(config.LoadPlanConfig())

	if validateWatch {
		if args[0] == "-" {
			return fmt.Errorf("--watch needs a file, not stdin")
		}
		return watchValidate(cmd, v, args[0])
	}

	raw, err := readDocument(cmd, args[0])
	if err != nil {
		return err
	}
	_, report := v.ValidateDocument(raw, time.Now().UTC())
	return printReport(cmd, report)
}

func watchValidate(cmd *cobra.Command, v *semantic.Validator, path string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(path, func(_ context.Context, data []byte) error {
		logger.SetLastInput(string(data))
		_, report := v.ValidateDocument(data, time.Now().UTC())
		if jsonOutput {
			return printJSON(cmd, report)
		}
		cmd.Printf("%s %s\n", ui.StyleSubtle.Render(time.Now().Format("15:04:05")), path)
		cmd.Print(ui.RenderReport(report))
		return nil
	}, slog.Default())
	if err != nil {
		return err
	}

	if !jsonOutput {
		cmd.Printf("Watching %s (Ctrl+C to stop)\n", path)
	}
	return w.Run(ctx)
}
