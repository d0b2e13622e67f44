package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/josephgoksu/plantrack/internal/policy"
	"github.com/josephgoksu/plantrack/models"
	"github.com/josephgoksu/plantrack/store"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testPlan(id string) *models.Plan {
	created := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	started := created.Add(30 * time.Minute)
	done := created.Add(time.Hour)
	return &models.Plan{
		ID:            id,
		SchemaVersion: "1.0",
		Type:          models.PlanTypeRefactor,
		Metadata:      models.Metadata{Title: "Split parser", CreatedAt: created, UpdatedAt: created, Revision: 1},
		Objective:     "Smaller parser files",
		Phases:        []models.Phase{{ID: "p1", Title: "Prep", StepIDs: []string{"a"}}},
		Steps: []models.Step{
			{ID: "a", Title: "Move lexer", Kind: models.KindEditFile,
				Status: models.StepStatus{State: models.StateDone, StartedAt: &started, CompletedAt: &done, Notes: "moved"}},
			{ID: "b", Title: "Review", Kind: models.KindReview, DependsOn: []string{"a"},
				Status: models.StepStatus{State: models.StateBlocked, StartedAt: &started, BlockReason: "waiting on CI"}},
			{ID: "c", Title: "Docs", Kind: models.KindDocumentation, DependsOn: []string{"b"},
				Status: models.StepStatus{State: models.StatePending}},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	plan := testPlan("plan-1")

	if err := s.Save(ctx, plan); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, "plan-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got.Metadata.Title != "Split parser" || got.Type != models.PlanTypeRefactor {
		t.Errorf("unexpected plan header: %+v", got.Metadata)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(got.Steps))
	}
	a := got.Steps[0].Status
	if a.State != models.StateDone || a.Notes != "moved" || a.CompletedAt == nil || !a.CompletedAt.Equal(*plan.Steps[0].Status.CompletedAt) {
		t.Errorf("step a status = %+v", a)
	}
	if b := got.Steps[1].Status; b.State != models.StateBlocked || b.BlockReason != "waiting on CI" || b.CompletedAt != nil {
		t.Errorf("step b status = %+v", b)
	}
	if got.Steps[2].Status.StartedAt != nil {
		t.Error("pending step should have no start time")
	}
}

func TestLoadNotFound(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.Load(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRevisionCheck(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, testPlan("plan-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.Save(ctx, testPlan("plan-1")); !errors.Is(err, store.ErrConcurrentModify) {
		t.Fatalf("expected ErrConcurrentModify, got %v", err)
	}

	next, _ := s.Load(ctx, "plan-1")
	next.Steps[2].Status.Notes = "later"
	next.Touch(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	if err := s.Save(ctx, next); err != nil {
		t.Fatalf("save next revision: %v", err)
	}

	got, _ := s.Load(ctx, "plan-1")
	if got.Metadata.Revision != 2 || got.Steps[2].Status.Notes != "later" {
		t.Errorf("revision=%d notes=%q", got.Metadata.Revision, got.Steps[2].Status.Notes)
	}
}

func TestListAndDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"plan-z", "plan-a"} {
		if err := s.Save(ctx, testPlan(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	plans, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(plans) != 2 || plans[0].ID != "plan-a" {
		t.Fatalf("unexpected list: %v", plans)
	}
	if plans[1].Steps[0].Status.State != models.StateDone {
		t.Error("listed plans should carry statuses")
	}

	if err := s.Delete(ctx, "plan-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "plan-a"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}

	var rows int
	_ = s.DB().QueryRow(`SELECT COUNT(*) FROM step_statuses WHERE plan_id = 'plan-a'`).Scan(&rows)
	if rows != 0 {
		t.Errorf("status rows left after delete: %d", rows)
	}
}

func TestStateCounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, testPlan("plan-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	counts, err := s.StateCounts(ctx, "plan-1")
	if err != nil {
		t.Fatalf("state counts: %v", err)
	}
	if counts[models.StateDone] != 1 || counts[models.StateBlocked] != 1 || counts[models.StatePending] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestArchivedAtRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	plan := testPlan("plan-1")
	plan.Archive(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC))
	plan.Metadata.Revision = 1

	if err := s.Save(ctx, plan); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := s.Load(ctx, "plan-1")
	if !got.IsArchived() {
		t.Error("archived flag lost")
	}
}

func TestInMemoryStoreSharesAudit(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer func() { _ = s.Close() }()

	audit := s.Audit()
	d := &policy.PolicyDecision{PolicyPath: policy.DefaultPolicyPackage, Result: policy.PolicyResultAllow, PlanID: "plan-1"}
	if err := audit.SaveDecision(d); err != nil {
		t.Fatalf("save decision: %v", err)
	}
	list, err := audit.ListDecisions(policy.ListDecisionsOptions{PlanID: "plan-1"})
	if err != nil || len(list) != 1 {
		t.Fatalf("list decisions = %v, %v", list, err)
	}
}
