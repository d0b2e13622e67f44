package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/josephgoksu/plantrack/internal/policy"
	"github.com/josephgoksu/plantrack/models"
	"github.com/josephgoksu/plantrack/store"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements store.PlanStore using SQLite for persistence.
// Plan structure is kept as a JSON document in the plans table; step
// statuses live in their own rows so they can be queried.
type SQLiteStore struct {
	db       *sql.DB
	basePath string // Path to the data directory, or ":memory:"
}

// NewSQLiteStore opens (or creates) basePath/plans.db. Pass ":memory:" for
// a throwaway database.
func NewSQLiteStore(basePath string) (*SQLiteStore, error) {
	var dbPath string
	if basePath == ":memory:" {
		dbPath = ":memory:"
	} else {
		dbPath = filepath.Join(basePath, "plans.db")
		if err := os.MkdirAll(basePath, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, basePath: basePath}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		id             TEXT PRIMARY KEY,
		schema_version TEXT NOT NULL,
		plan_type      TEXT NOT NULL,
		title          TEXT NOT NULL,
		revision       INTEGER NOT NULL,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL,
		archived_at    TEXT,
		document       TEXT NOT NULL       -- plan JSON without step statuses
	);

	CREATE TABLE IF NOT EXISTS step_statuses (
		plan_id      TEXT NOT NULL,
		step_id      TEXT NOT NULL,
		position     INTEGER NOT NULL,   -- declaration order
		state        TEXT NOT NULL,
		started_at   TEXT,
		completed_at TEXT,
		notes        TEXT NOT NULL DEFAULT '',
		block_reason TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (plan_id, step_id),
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_step_statuses_state ON step_statuses(plan_id, state);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return policy.NewAuditStore(s.db).Migrate()
}

// Load implements store.PlanStore.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*models.Plan, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM plans WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query plan %s: %w", id, err)
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(doc), &plan); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", id, err)
	}
	if err := s.loadStatuses(ctx, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *SQLiteStore) loadStatuses(ctx context.Context, plan *models.Plan) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, state, started_at, completed_at, notes, block_reason
		FROM step_statuses WHERE plan_id = ?`, plan.ID)
	if err != nil {
		return fmt.Errorf("query step statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			stepID, state          string
			startedAt, completedAt sql.NullString
			st                     models.StepStatus
		)
		if err := rows.Scan(&stepID, &state, &startedAt, &completedAt, &st.Notes, &st.BlockReason); err != nil {
			return fmt.Errorf("scan step status: %w", err)
		}
		st.State = models.StepState(state)
		if st.StartedAt, err = parseNullTime(startedAt); err != nil {
			return fmt.Errorf("step %s started_at: %w", stepID, err)
		}
		if st.CompletedAt, err = parseNullTime(completedAt); err != nil {
			return fmt.Errorf("step %s completed_at: %w", stepID, err)
		}
		if step := plan.StepByID(stepID); step != nil {
			step.Status = st
		}
	}
	return checkRowsErr(rows)
}

// Save implements store.PlanStore: plan row and all status rows are
// replaced in one transaction after the revision check.
func (s *SQLiteStore) Save(ctx context.Context, plan *models.Plan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored int
	err = tx.QueryRowContext(ctx, `SELECT revision FROM plans WHERE id = ?`, plan.ID).Scan(&stored)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("query revision: %w", err)
	}
	if err := store.CheckRevision(exists, stored, plan); err != nil {
		return fmt.Errorf("%w: %s is at revision %d", err, plan.ID, stored)
	}

	doc, err := json.Marshal(withoutStatuses(plan))
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO plans (id, schema_version, plan_type, title, revision, created_at, updated_at, archived_at, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			plan_type      = excluded.plan_type,
			title          = excluded.title,
			revision       = excluded.revision,
			created_at     = excluded.created_at,
			updated_at     = excluded.updated_at,
			archived_at    = excluded.archived_at,
			document       = excluded.document
	`, plan.ID, plan.SchemaVersion, string(plan.Type), plan.Metadata.Title, plan.Metadata.Revision,
		formatTime(plan.Metadata.CreatedAt), formatTime(plan.Metadata.UpdatedAt),
		nullTimeString(plan.Metadata.ArchivedAt), string(doc)); err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM step_statuses WHERE plan_id = ?`, plan.ID); err != nil {
		return fmt.Errorf("clear step statuses: %w", err)
	}
	for i, step := range plan.Steps {
		st := step.Status
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO step_statuses (plan_id, step_id, position, state, started_at, completed_at, notes, block_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, plan.ID, step.ID, i, string(st.State), nullTimeString(st.StartedAt), nullTimeString(st.CompletedAt),
			st.Notes, st.BlockReason); err != nil {
			return fmt.Errorf("insert status for step %s: %w", step.ID, err)
		}
	}

	return tx.Commit()
}

// List implements store.PlanStore.
func (s *SQLiteStore) List(ctx context.Context) ([]*models.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM plans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan plan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := checkRowsErr(rows); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	plans := make([]*models.Plan, 0, len(ids))
	for _, id := range ids {
		p, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// StateCounts returns how many steps of a plan are in each state.
func (s *SQLiteStore) StateCounts(ctx context.Context, planID string) (map[models.StepState]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM step_statuses WHERE plan_id = ? GROUP BY state`, planID)
	if err != nil {
		return nil, fmt.Errorf("count step states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.StepState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts[models.StepState(state)] = n
	}
	return counts, checkRowsErr(rows)
}

// Delete implements store.PlanStore. Status rows go with the plan.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

// Audit returns the policy decision log stored in the same database.
func (s *SQLiteStore) Audit() *policy.AuditStore {
	return policy.NewAuditStore(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func withoutStatuses(p *models.Plan) *models.Plan {
	out := *p
	out.Steps = make([]models.Step, len(p.Steps))
	for i, step := range p.Steps {
		step.Status = models.StepStatus{}
		out.Steps[i] = step
	}
	return &out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ store.PlanStore = (*SQLiteStore)(nil)
