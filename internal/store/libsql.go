package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/loomworks/loom/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/loom.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *WorkflowRecord) error {
	doc, err := json.Marshal(wf.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, document, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, string(doc), timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.ID).WithCause(err)
	}
	return err
}

// isUniqueViolation reports whether the driver error is a UNIQUE constraint
// failure. go-libsql exposes no typed errors, so this matches the SQLite
// message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error) {
	wf := &WorkflowRecord{}
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, document, created_at, updated_at FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &wf.Name, &doc, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(doc), &wf.Document); err != nil {
		return nil, fmt.Errorf("unmarshal document for %s: %w", id, err)
	}
	return wf, nil
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, wf *WorkflowRecord) error {
	doc, err := json.Marshal(wf.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET name = ?, document = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		wf.Name, string(doc), wf.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", wf.ID)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, document, created_at, updated_at FROM workflows ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*WorkflowRecord
	for rows.Next() {
		wf := &WorkflowRecord{}
		var doc string
		if err := rows.Scan(&wf.ID, &wf.Name, &doc, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(doc), &wf.Document); err != nil {
			return nil, fmt.Errorf("unmarshal document for %s: %w", wf.ID, err)
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_id, mode, status, steps, input, output, error, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, run.Mode, run.Status,
		nullableJSON(run.Steps), nullableJSON(run.Input), nullableJSON(run.Output), nullableJSON(run.Error),
		timeOrNow(run.StartedAt), timeOrNow(run.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{}
	var steps, input, output, errJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, mode, status, steps, input, output, error, started_at, completed_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.WorkflowID, &run.Mode, &run.Status,
		&steps, &input, &output, &errJSON, &run.StartedAt, &run.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	run.Steps = jsonOrNil(steps)
	run.Input = jsonOrNil(input)
	run.Output = jsonOrNil(output)
	run.Error = jsonOrNil(errJSON)
	return run, nil
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, workflow_id, mode, status, steps, input, output, error, started_at, completed_at FROM runs`
	var args []any
	var where []string
	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run := &Run{}
		var steps, input, output, errJSON sql.NullString
		if err := rows.Scan(&run.ID, &run.WorkflowID, &run.Mode, &run.Status,
			&steps, &input, &output, &errJSON, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		run.Steps = jsonOrNil(steps)
		run.Input = jsonOrNil(input)
		run.Output = jsonOrNil(output)
		run.Error = jsonOrNil(errJSON)
		out = append(out, run)
	}
	return out, rows.Err()
}

// --- Records (db_save sink) ---

func (s *LibSQLStore) InsertRecord(ctx context.Context, rec *SavedRecord) (string, error) {
	if rec.ID == "" {
		return "", schema.NewError(schema.ErrCodeStore, "record id is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, run_id, node_id, table_name, mode, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.NodeID, rec.Table, rec.Mode, string(rec.Payload), timeOrNow(rec.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// --- Exports ---

func (s *LibSQLStore) CreateExport(ctx context.Context, exp *Export) (string, error) {
	if exp.ID == "" {
		return "", schema.NewError(schema.ErrCodeStore, "export id is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (id, run_id, node_id, filename, format, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.RunID, exp.NodeID, exp.Filename, exp.Format, exp.Content, timeOrNow(exp.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return exp.ID, nil
}

func (s *LibSQLStore) GetExport(ctx context.Context, id string) (*Export, error) {
	exp := &Export{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, node_id, filename, format, content, created_at FROM exports WHERE id = ?`, id,
	).Scan(&exp.ID, &exp.RunID, &exp.NodeID, &exp.Filename, &exp.Format, &exp.Content, &exp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("export", id)
	}
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// --- Helpers ---

func notFound(kind, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", kind, id)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func jsonOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
