package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLite is the default single-host ledger backend.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the ledger database at path and applies the
// schema. WAL keeps readers unblocked during commits; synchronous=FULL
// makes completion marks durable before the call returns.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) StartRun(ctx context.Context, cfgJSON []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (start_time, status, config) VALUES (?, ?, ?)`,
		time.Now().UTC(), StatusInProgress, string(cfgJSON))
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLite) EndRun(ctx context.Context, runID int64, status string, totals RunSummaryTotals) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET end_time = ?, status = ?,
		        total_principals = ?, completed_principals = ?, failed_principals = ?
		 WHERE id = ?`,
		time.Now().UTC(), status,
		totals.TotalPrincipals, totals.CompletedPrincipals, totals.FailedPrincipals,
		runID)
	if err != nil {
		return fmt.Errorf("end run %d: %w", runID, err)
	}
	return nil
}

func (s *SQLite) AddPrincipal(ctx context.Context, source, dest string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO principals (source_email, dest_email, status) VALUES (?, ?, ?)
		 ON CONFLICT(source_email) DO UPDATE SET dest_email = excluded.dest_email`,
		source, dest, StatusPending)
	if err != nil {
		return fmt.Errorf("add principal %s: %w", source, err)
	}
	return nil
}

func (s *SQLite) SetPrincipalStatus(ctx context.Context, source, status string) error {
	var err error
	if status == StatusInProgress {
		_, err = s.db.ExecContext(ctx,
			`UPDATE principals SET status = ?, start_time = COALESCE(start_time, ?) WHERE source_email = ?`,
			status, time.Now().UTC(), source)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE principals SET status = ? WHERE source_email = ?`, status, source)
	}
	if err != nil {
		return fmt.Errorf("set principal %s status %s: %w", source, status, err)
	}
	return nil
}

func (s *SQLite) MarkPrincipalCompleted(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE principals SET status = ?, end_time = COALESCE(end_time, ?) WHERE source_email = ?`,
		StatusCompleted, time.Now().UTC(), source)
	if err != nil {
		return fmt.Errorf("mark principal %s completed: %w", source, err)
	}
	return nil
}

func (s *SQLite) IsPrincipalCompleted(ctx context.Context, source string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM principals WHERE source_email = ?`, source).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query principal %s: %w", source, err)
	}
	return status == StatusCompleted, nil
}

func (s *SQLite) Principals(ctx context.Context) ([]PrincipalRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_email, dest_email, status, completed_objects, failed_objects,
		        start_time, end_time
		 FROM principals ORDER BY source_email`)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []PrincipalRecord
	for rows.Next() {
		var p PrincipalRecord
		var start, end sql.NullTime
		if err := rows.Scan(&p.Source, &p.Dest, &p.Status,
			&p.CompletedObjects, &p.FailedObjects, &start, &end); err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		p.StartTime, p.EndTime = start.Time, end.Time
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) AddObject(ctx context.Context, o ObjectRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (id, principal, name, mime_type, size, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		o.ID, o.Principal, o.Name, o.MIMEType, o.Size, StatusPending)
	if err != nil {
		return fmt.Errorf("add object %s: %w", o.ID, err)
	}
	return nil
}

func (s *SQLite) IsObjectCompleted(ctx context.Context, id string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM objects WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query object %s: %w", id, err)
	}
	return status == StatusCompleted, nil
}

func (s *SQLite) MarkObjectCompleted(ctx context.Context, id, principal, destID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET status = ?, dest_id = ?, last_error = NULL, last_attempt = ?
		 WHERE id = ? AND status != ?`,
		StatusCompleted, destID, time.Now().UTC(), id, StatusCompleted)
	if err != nil {
		return fmt.Errorf("mark object %s completed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Already completed, or unknown id. Either way the counter must
		// not move again.
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE principals SET completed_objects = completed_objects + 1 WHERE source_email = ?`,
		principal)
	if err != nil {
		return fmt.Errorf("bump completed counter for %s: %w", principal, err)
	}
	return nil
}

func (s *SQLite) MarkObjectFailed(ctx context.Context, id, principal, errText string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE objects SET status = ?, last_error = ?, attempts = attempts + 1, last_attempt = ?
		 WHERE id = ?`,
		StatusFailed, errText, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark object %s failed: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE principals SET failed_objects = failed_objects + 1 WHERE source_email = ?`,
		principal)
	if err != nil {
		return fmt.Errorf("bump failed counter for %s: %w", principal, err)
	}
	return nil
}

func (s *SQLite) ResetFailedObjects(ctx context.Context, maxAttempts int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET status = ?, last_error = NULL
		 WHERE status = ? AND attempts < ?`,
		StatusPending, StatusFailed, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("reset failed objects: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) FailedObjects(ctx context.Context, principal string) ([]ObjectRecord, error) {
	query := `SELECT id, principal, name, mime_type, size, status, dest_id,
	                 last_error, attempts, last_attempt
	          FROM objects WHERE status = ?`
	args := []any{StatusFailed}
	if principal != "" {
		query += ` AND principal = ?`
		args = append(args, principal)
	}
	query += ` ORDER BY principal, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failed objects: %w", err)
	}
	defer rows.Close()
	return scanObjects(rows)
}

func (s *SQLite) AllObjects(ctx context.Context) ([]ObjectRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, principal, name, mime_type, size, status, dest_id,
		        last_error, attempts, last_attempt
		 FROM objects ORDER BY principal, id`)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()
	return scanObjects(rows)
}

func scanObjects(rows *sql.Rows) ([]ObjectRecord, error) {
	var out []ObjectRecord
	for rows.Next() {
		var o ObjectRecord
		var mime, destID, lastErr sql.NullString
		var lastAttempt sql.NullTime
		if err := rows.Scan(&o.ID, &o.Principal, &o.Name, &mime, &o.Size,
			&o.Status, &destID, &lastErr, &o.Attempts, &lastAttempt); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		o.MIMEType, o.DestID, o.LastError = mime.String, destID.String, lastErr.String
		o.LastAttempt = lastAttempt.Time
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLite) OverallProgress(ctx context.Context) (Progress, error) {
	p := Progress{
		PrincipalsByStatus: make(map[string]int64),
		ObjectsByStatus:    make(map[string]int64),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM principals GROUP BY status`)
	if err != nil {
		return p, fmt.Errorf("aggregate principals: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return p, err
		}
		p.PrincipalsByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return p, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM objects GROUP BY status`)
	if err != nil {
		return p, fmt.Errorf("aggregate objects: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return p, err
		}
		p.ObjectsByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return p, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM objects WHERE status = ?`,
		StatusCompleted).Scan(&p.CompletedBytes)
	if err != nil {
		return p, fmt.Errorf("sum completed bytes: %w", err)
	}
	return p, nil
}
