package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/lberrio/flowpilot/pkg/schema"
)

// LibSQLArchive implements Archive on libSQL (embedded SQLite fork).
type LibSQLArchive struct {
	db *sql.DB
}

// NewLibSQLArchive opens a libSQL database at the given path and applies
// pending migrations. The path should be a file URI, e.g. "file:/path/db.db".
func NewLibSQLArchive(ctx context.Context, dbPath string) (*LibSQLArchive, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows, so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &LibSQLArchive{db: db}, nil
}

func (s *LibSQLArchive) Close() error { return s.db.Close() }

func (s *LibSQLArchive) SaveResult(ctx context.Context, result *schema.WorkflowResult) error {
	if result == nil || result.RunID == "" {
		return schema.NewError(schema.ErrCodeStore, "result has no run id")
	}

	executed, err := json.Marshal(result.ExecutedStepIDs)
	if err != nil {
		return fmt.Errorf("marshal executed steps: %w", err)
	}
	failed, err := json.Marshal(result.FailedStepIDs)
	if err != nil {
		return fmt.Errorf("marshal failed steps: %w", err)
	}
	results, err := json.Marshal(result.Results)
	if err != nil {
		return fmt.Errorf("marshal step results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, workflow_id, resource_key, state, success, error,
		                   executed_steps, failed_steps, results, start_time, end_time, execution_time_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   state=excluded.state, success=excluded.success, error=excluded.error,
		   executed_steps=excluded.executed_steps, failed_steps=excluded.failed_steps,
		   results=excluded.results, end_time=excluded.end_time,
		   execution_time_ms=excluded.execution_time_ms`,
		result.RunID, result.WorkflowID, result.ResourceKey, string(result.State),
		boolToInt(result.Success), result.Error,
		string(executed), string(failed), string(results),
		result.StartTime.UTC(), nullTime(result.EndTime), result.ExecutionTimeMs,
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "save run result").WithCause(err)
	}
	return nil
}

func (s *LibSQLArchive) GetResult(ctx context.Context, runID string) (*schema.WorkflowResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, workflow_id, resource_key, state, success, error,
		        executed_steps, failed_steps, results, start_time, end_time, execution_time_ms
		 FROM runs WHERE run_id = ?`, runID)

	result, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", runID)
	}
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load run result").WithCause(err)
	}
	return result, nil
}

func (s *LibSQLArchive) ListResults(ctx context.Context, workflowID string, limit int) ([]*schema.WorkflowResult, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT run_id, workflow_id, resource_key, state, success, error,
	                 executed_steps, failed_steps, results, start_time, end_time, execution_time_ms
	          FROM runs`
	args := []any{}
	if workflowID != "" {
		query += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` ORDER BY start_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list run results").WithCause(err)
	}
	defer rows.Close()

	var out []*schema.WorkflowResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan run result").WithCause(err)
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

func (s *LibSQLArchive) SaveSchedule(ctx context.Context, sched *Schedule) error {
	if sched == nil || sched.ID == "" {
		return schema.NewError(schema.ErrCodeStore, "schedule has no id")
	}
	doc, err := json.Marshal(sched.Workflow)
	if err != nil {
		return fmt.Errorf("marshal schedule workflow: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, cron_expr, resource_key, workflow, enabled, next_run_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   cron_expr=excluded.cron_expr, resource_key=excluded.resource_key,
		   workflow=excluded.workflow, enabled=excluded.enabled, next_run_at=excluded.next_run_at`,
		sched.ID, sched.CronExpr, sched.ResourceKey, string(doc),
		boolToInt(sched.Enabled), nullTime(sched.NextRunAt), timeOrNow(sched.CreatedAt),
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "save schedule").WithCause(err)
	}
	return nil
}

func (s *LibSQLArchive) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, cron_expr, resource_key, workflow, enabled, next_run_at, created_at
		 FROM schedules WHERE id = ?`, id)

	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", id)
	}
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load schedule").WithCause(err)
	}
	return sched, nil
}

func (s *LibSQLArchive) ListSchedules(ctx context.Context) ([]*Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cron_expr, resource_key, workflow, enabled, next_run_at, created_at
		 FROM schedules ORDER BY id`)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list schedules").WithCause(err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "scan schedule").WithCause(err)
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func (s *LibSQLArchive) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "delete schedule").WithCause(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", id)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanResult(sc scanner) (*schema.WorkflowResult, error) {
	r := &schema.WorkflowResult{}
	var state string
	var success int
	var errMsg, executed, failed, results sql.NullString
	var resourceKey sql.NullString
	var endTime sql.NullTime

	if err := sc.Scan(&r.RunID, &r.WorkflowID, &resourceKey, &state, &success, &errMsg,
		&executed, &failed, &results, &r.StartTime, &endTime, &r.ExecutionTimeMs); err != nil {
		return nil, err
	}

	r.State = schema.RunState(state)
	r.Success = success != 0
	r.ResourceKey = resourceKey.String
	r.Error = errMsg.String
	if endTime.Valid {
		r.EndTime = &endTime.Time
	}
	if executed.Valid && executed.String != "" {
		if err := json.Unmarshal([]byte(executed.String), &r.ExecutedStepIDs); err != nil {
			return nil, err
		}
	}
	if failed.Valid && failed.String != "" {
		if err := json.Unmarshal([]byte(failed.String), &r.FailedStepIDs); err != nil {
			return nil, err
		}
	}
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &r.Results); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func scanSchedule(sc scanner) (*Schedule, error) {
	s := &Schedule{}
	var doc string
	var enabled int
	var resourceKey sql.NullString
	var nextRun sql.NullTime

	if err := sc.Scan(&s.ID, &s.CronExpr, &resourceKey, &doc, &enabled, &nextRun, &s.CreatedAt); err != nil {
		return nil, err
	}

	s.ResourceKey = resourceKey.String
	s.Enabled = enabled != 0
	if nextRun.Valid {
		s.NextRunAt = &nextRun.Time
	}
	if err := json.Unmarshal([]byte(doc), &s.Workflow); err != nil {
		return nil, err
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
