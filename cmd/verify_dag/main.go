// Command verify_dag imports a plan into a throwaway database and drives it
// to completion, starting and finishing every ready step level by level.
// It prints the layout and the progress after each round, which makes it a
// quick end-to-end check of a plan's dependency graph.
//
//	go run ./cmd/verify_dag plan.yaml
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/josephgoksu/plantrack/internal/app"
	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/memory"
	"github.com/josephgoksu/plantrack/internal/status"
	"github.com/josephgoksu/plantrack/internal/ui"
	"github.com/josephgoksu/plantrack/models"
)

const samplePlan = `{
  "planId": "plan-rocket",
  "schemaVersion": "1.0",
  "planType": "feature",
  "metadata": {"title": "Build a rocket"},
  "objective": "Build a Falcon 9 replica",
  "steps": [
    {"id": "engine", "title": "Build engine", "kind": "create_file"},
    {"id": "fuselage", "title": "Build body", "kind": "create_file"},
    {"id": "assembly", "title": "Put it together", "kind": "edit_file", "dependsOn": ["engine", "fuselage"]},
    {"id": "launch-review", "title": "Launch review", "kind": "review", "dependsOn": ["assembly"],
     "validation": {"criteria": ["it flies"]}}
  ]
}`

func main() {
	raw := []byte(samplePlan)
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			log.Fatal(err)
		}
		raw = data
	}

	tmpDir, err := os.MkdirTemp("", "plantrack-verify")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	db, err := memory.NewSQLiteStore(tmpDir)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	cfg := config.DefaultPlanConfig()
	a, err := app.New(app.Options{Store: db, Config: &cfg})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	res, err := a.Import(ctx, raw, app.ImportOptions{NewID: true})
	if err != nil {
		if res != nil {
			fmt.Print(ui.RenderReport(res.Report))
		}
		log.Fatal(err)
	}
	id := res.Plan.ID
	fmt.Printf("Imported %s with %d steps\n\n", id, len(res.Plan.Steps))

	l, err := a.Layout(ctx, id)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(ui.RenderLayout(l))

	for round := 1; ; round++ {
		ready, err := a.Ready(ctx, id)
		if err != nil {
			log.Fatal(err)
		}
		if len(ready) == 0 {
			break
		}
		fmt.Printf("\nRound %d: %v\n", round, ready)
		for _, stepID := range ready {
			for _, to := range []models.StepState{models.StateInProgress, models.StateDone} {
				if _, err := a.Transition(ctx, id, status.Request{StepID: stepID, To: to, Actor: "verify_dag"}); err != nil {
					log.Fatalf("%s -> %s: %v", stepID, to, err)
				}
			}
		}
		pr, err := a.Progress(ctx, id)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("  %s %d%%\n", ui.ProgressBar(pr.Overall.PercentComplete, 20), pr.Overall.PercentComplete)
	}

	plan, err := a.Get(ctx, id)
	if err != nil {
		log.Fatal(err)
	}
	if !plan.IsComplete() {
		fmt.Println("\nFAIL: some steps never became ready")
		for _, s := range plan.Steps {
			if s.Status.State != models.StateDone {
				fmt.Printf("  %s %s\n", s.ID, s.Status.State)
			}
		}
		os.Exit(1)
	}
	fmt.Printf("\nSUCCESS: all %d steps done at revision %d\n", len(plan.Steps), plan.Metadata.Revision)
}
