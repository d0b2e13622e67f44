package policy

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// auditTimeLayout is fixed-width so evaluated_at sorts as text.
const auditTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrDecisionNotFound is returned when no decision has the requested ID.
var ErrDecisionNotFound = errors.New("policy decision not found")

// AuditSchema creates the policy_decisions table. The memory store runs it
// alongside its own migrations so both share one database file.
const AuditSchema = `
CREATE TABLE IF NOT EXISTS policy_decisions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id  TEXT NOT NULL UNIQUE,
	policy_path  TEXT NOT NULL,
	result       TEXT NOT NULL,
	violations   TEXT NOT NULL DEFAULT '[]',
	warnings     TEXT NOT NULL DEFAULT '[]',
	input_json   TEXT NOT NULL DEFAULT '{}',
	plan_id      TEXT,
	step_id      TEXT,
	actor        TEXT,
	evaluated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_policy_decisions_plan ON policy_decisions(plan_id, step_id);
`

// AuditStore persists policy decisions.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore wraps an open database. Call Migrate before first use
// unless the owner already ran AuditSchema.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Migrate creates the audit table if needed.
func (s *AuditStore) Migrate() error {
	if _, err := s.db.Exec(AuditSchema); err != nil {
		return fmt.Errorf("create policy_decisions: %w", err)
	}
	return nil
}

// SaveDecision inserts a decision, filling DecisionID and EvaluatedAt when
// they are unset.
func (s *AuditStore) SaveDecision(d *PolicyDecision) error {
	if d == nil {
		return errors.New("decision is nil")
	}
	if d.DecisionID == "" {
		d.DecisionID = uuid.New().String()
	}
	if d.EvaluatedAt.IsZero() {
		d.EvaluatedAt = time.Now().UTC()
	}

	res, err := s.db.Exec(`
		INSERT INTO policy_decisions (
			decision_id, policy_path, result, violations, warnings, input_json,
			plan_id, step_id, actor, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DecisionID,
		d.PolicyPath,
		d.Result,
		d.ViolationsJSON(),
		d.WarningsJSON(),
		d.InputJSON(),
		nullString(d.PlanID),
		nullString(d.StepID),
		nullString(d.Actor),
		d.EvaluatedAt.UTC().Format(auditTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert policy decision: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		d.ID = id
	}
	return nil
}

// GetDecision fetches a decision by its UUID.
func (s *AuditStore) GetDecision(decisionID string) (*PolicyDecision, error) {
	row := s.db.QueryRow(selectDecisions+" WHERE decision_id = ?", decisionID)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDecisionNotFound, decisionID)
	}
	return d, err
}

// ListDecisionsOptions filters ListDecisions. Zero values match everything.
type ListDecisionsOptions struct {
	PlanID string
	StepID string
	Result string
	Since  time.Time
	Limit  int
}

// ListDecisions returns matching decisions, newest first.
func (s *AuditStore) ListDecisions(opts ListDecisionsOptions) ([]*PolicyDecision, error) {
	query := selectDecisions + " WHERE 1=1"
	var args []any
	if opts.PlanID != "" {
		query += " AND plan_id = ?"
		args = append(args, opts.PlanID)
	}
	if opts.StepID != "" {
		query += " AND step_id = ?"
		args = append(args, opts.StepID)
	}
	if opts.Result != "" {
		query += " AND result = ?"
		args = append(args, opts.Result)
	}
	if !opts.Since.IsZero() {
		query += " AND evaluated_at >= ?"
		args = append(args, opts.Since.UTC().Format(auditTimeLayout))
	}
	query += " ORDER BY evaluated_at DESC, id DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query policy decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*PolicyDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountViolations counts deny decisions since the given time.
func (s *AuditStore) CountViolations(since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM policy_decisions WHERE result = ? AND evaluated_at >= ?`,
		PolicyResultDeny, since.UTC().Format(auditTimeLayout),
	).Scan(&n)
	return n, err
}

// PruneOldDecisions deletes decisions evaluated before now minus olderThan.
func (s *AuditStore) PruneOldDecisions(now time.Time, olderThan time.Duration) (int64, error) {
	cutoff := now.UTC().Add(-olderThan)
	res, err := s.db.Exec(
		"DELETE FROM policy_decisions WHERE evaluated_at < ?",
		cutoff.Format(auditTimeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune old decisions: %w", err)
	}
	return res.RowsAffected()
}

const selectDecisions = `
	SELECT id, decision_id, policy_path, result, violations, warnings, input_json,
		plan_id, step_id, actor, evaluated_at
	FROM policy_decisions`

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(row scanner) (*PolicyDecision, error) {
	var (
		d                           PolicyDecision
		violations, warnings, input string
		planID, stepID, actor       sql.NullString
		evaluatedAt                 string
	)
	err := row.Scan(&d.ID, &d.DecisionID, &d.PolicyPath, &d.Result,
		&violations, &warnings, &input, &planID, &stepID, &actor, &evaluatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan policy decision: %w", err)
	}

	d.Violations = ParseStrings(violations)
	d.Warnings = ParseStrings(warnings)
	if input != "" && input != "{}" {
		var v TransitionInput
		if err := json.Unmarshal([]byte(input), &v); err == nil {
			d.Input = &v
		}
	}
	d.PlanID = planID.String
	d.StepID = stepID.String
	d.Actor = actor.String
	d.EvaluatedAt, _ = time.Parse(auditTimeLayout, evaluatedAt)
	return &d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
