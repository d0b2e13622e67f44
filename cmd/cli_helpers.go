/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/josephgoksu/plantrack/internal/app"
	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/logger"
	"github.com/josephgoksu/plantrack/internal/memory"
	"github.com/josephgoksu/plantrack/internal/policy"
	"github.com/josephgoksu/plantrack/internal/ui"
	"github.com/josephgoksu/plantrack/store"
	"github.com/josephgoksu/plantrack/types"
)

// appFactory builds the PlanApp used by commands. Tests replace it.
var appFactory = openApp

// openApp wires the configured store, the policy engine and the audit log
// into a PlanApp. A non-nil engine replaces the configured policies. The
// returned func releases the store.
func openApp(engine *policy.Engine) (*app.PlanApp, func(), error) {
	cfg := GetConfig()

	opts := app.Options{Logger: slog.Default()}
	planCfg := config.LoadPlanConfig()
	opts.Config = &planCfg

	switch cfg.Data.Backend {
	case "file":
		fs, err := store.NewFileStore(afero.NewOsFs(), filepath.Join(cfg.Data.Dir, "plans"), cfg.Data.Format)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		opts.Store = fs
	default:
		db, err := memory.NewSQLiteStore(cfg.Data.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open plan database: %w", err)
		}
		opts.Store = db
		if cfg.Policy.Audit {
			opts.Audit = db.Audit()
		}
	}

	switch {
	case engine != nil:
		opts.Policies = engine
	case cfg.Policy.Enabled:
		engine, err := policy.NewEngine(policy.EngineConfig{
			PoliciesDir:   cfg.Policy.Dir,
			PolicyPackage: cfg.Policy.Package,
		})
		if err != nil {
			// Non-fatal: transitions proceed without policy checks.
			slog.Warn("failed to load transition policies", "dir", cfg.Policy.Dir, "error", err)
		} else if engine.PolicyCount() > 0 {
			opts.Policies = engine
		}
	}

	a, err := app.New(opts)
	if err != nil {
		_ = opts.Store.Close()
		return nil, nil, err
	}
	return a, func() {
		if err := opts.Store.Close(); err != nil {
			LogError("close store", err)
		}
	}, nil
}

// withApp runs fn against a freshly opened PlanApp.
func withApp(fn func(ctx context.Context, a *app.PlanApp) error) error {
	a, closeFn, err := appFactory(nil)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(context.Background(), a)
}

// resolvePlan expands a plan ID prefix and records it for crash logs.
func resolvePlan(ctx context.Context, a *app.PlanApp, arg string) (string, error) {
	id, err := a.ResolvePlanID(ctx, arg)
	if err != nil {
		return "", err
	}
	logger.SetPlan(id)
	return id, nil
}

// readDocument reads a plan document from path, or stdin for "-".
func readDocument(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read plan document: %w", err)
	}
	logger.SetLastInput(string(data))
	return data, nil
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport prints a validation report and turns an invalid one into an
// error so the exit status is non-zero.
func printReport(cmd *cobra.Command, report types.Report) error {
	if jsonOutput {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		cmd.Print(ui.RenderReport(report))
	}
	if !report.IsValid {
		return errSilentFailure
	}
	return nil
}
