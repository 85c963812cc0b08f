package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema_postgres.sql
var postgresSchema string

// Postgres is the shared ledger backend for runs driven from more than
// one host.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database, verifies connectivity and
// applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect ledger database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) StartRun(ctx context.Context, cfgJSON []byte) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO runs (start_time, status, config) VALUES ($1, $2, $3) RETURNING id`,
		time.Now().UTC(), StatusInProgress, cfgJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

func (p *Postgres) EndRun(ctx context.Context, runID int64, status string, totals RunSummaryTotals) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE runs SET end_time = $1, status = $2,
		        total_principals = $3, completed_principals = $4, failed_principals = $5
		 WHERE id = $6`,
		time.Now().UTC(), status,
		totals.TotalPrincipals, totals.CompletedPrincipals, totals.FailedPrincipals,
		runID)
	if err != nil {
		return fmt.Errorf("end run %d: %w", runID, err)
	}
	return nil
}

func (p *Postgres) AddPrincipal(ctx context.Context, source, dest string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO principals (source_email, dest_email, status) VALUES ($1, $2, $3)
		 ON CONFLICT (source_email) DO UPDATE SET dest_email = EXCLUDED.dest_email`,
		source, dest, StatusPending)
	if err != nil {
		return fmt.Errorf("add principal %s: %w", source, err)
	}
	return nil
}

func (p *Postgres) SetPrincipalStatus(ctx context.Context, source, status string) error {
	var err error
	if status == StatusInProgress {
		_, err = p.pool.Exec(ctx,
			`UPDATE principals SET status = $1, start_time = COALESCE(start_time, $2)
			 WHERE source_email = $3`,
			status, time.Now().UTC(), source)
	} else {
		_, err = p.pool.Exec(ctx,
			`UPDATE principals SET status = $1 WHERE source_email = $2`, status, source)
	}
	if err != nil {
		return fmt.Errorf("set principal %s status %s: %w", source, status, err)
	}
	return nil
}

func (p *Postgres) MarkPrincipalCompleted(ctx context.Context, source string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE principals SET status = $1, end_time = COALESCE(end_time, $2)
		 WHERE source_email = $3`,
		StatusCompleted, time.Now().UTC(), source)
	if err != nil {
		return fmt.Errorf("mark principal %s completed: %w", source, err)
	}
	return nil
}

func (p *Postgres) IsPrincipalCompleted(ctx context.Context, source string) (bool, error) {
	var status string
	err := p.pool.QueryRow(ctx,
		`SELECT status FROM principals WHERE source_email = $1`, source).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query principal %s: %w", source, err)
	}
	return status == StatusCompleted, nil
}

func (p *Postgres) Principals(ctx context.Context) ([]PrincipalRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT source_email, dest_email, status, completed_objects, failed_objects,
		        start_time, end_time
		 FROM principals ORDER BY source_email`)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []PrincipalRecord
	for rows.Next() {
		var rec PrincipalRecord
		var start, end *time.Time
		if err := rows.Scan(&rec.Source, &rec.Dest, &rec.Status,
			&rec.CompletedObjects, &rec.FailedObjects, &start, &end); err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		if start != nil {
			rec.StartTime = *start
		}
		if end != nil {
			rec.EndTime = *end
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) AddObject(ctx context.Context, o ObjectRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO objects (id, principal, name, mime_type, size, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		o.ID, o.Principal, o.Name, o.MIMEType, o.Size, StatusPending)
	if err != nil {
		return fmt.Errorf("add object %s: %w", o.ID, err)
	}
	return nil
}

func (p *Postgres) IsObjectCompleted(ctx context.Context, id string) (bool, error) {
	var status string
	err := p.pool.QueryRow(ctx,
		`SELECT status FROM objects WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query object %s: %w", id, err)
	}
	return status == StatusCompleted, nil
}

func (p *Postgres) MarkObjectCompleted(ctx context.Context, id, principal, destID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE objects SET status = $1, dest_id = $2, last_error = NULL, last_attempt = $3
		 WHERE id = $4 AND status != $1`,
		StatusCompleted, destID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark object %s completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	_, err = p.pool.Exec(ctx,
		`UPDATE principals SET completed_objects = completed_objects + 1 WHERE source_email = $1`,
		principal)
	if err != nil {
		return fmt.Errorf("bump completed counter for %s: %w", principal, err)
	}
	return nil
}

func (p *Postgres) MarkObjectFailed(ctx context.Context, id, principal, errText string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE objects SET status = $1, last_error = $2, attempts = attempts + 1, last_attempt = $3
		 WHERE id = $4`,
		StatusFailed, errText, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark object %s failed: %w", id, err)
	}
	_, err = p.pool.Exec(ctx,
		`UPDATE principals SET failed_objects = failed_objects + 1 WHERE source_email = $1`,
		principal)
	if err != nil {
		return fmt.Errorf("bump failed counter for %s: %w", principal, err)
	}
	return nil
}

func (p *Postgres) ResetFailedObjects(ctx context.Context, maxAttempts int) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE objects SET status = $1, last_error = NULL
		 WHERE status = $2 AND attempts < $3`,
		StatusPending, StatusFailed, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("reset failed objects: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) FailedObjects(ctx context.Context, principal string) ([]ObjectRecord, error) {
	query := `SELECT id, principal, name, mime_type, size, status, dest_id,
	                 last_error, attempts, last_attempt
	          FROM objects WHERE status = $1`
	args := []any{StatusFailed}
	if principal != "" {
		query += ` AND principal = $2`
		args = append(args, principal)
	}
	query += ` ORDER BY principal, id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failed objects: %w", err)
	}
	defer rows.Close()
	return scanPgObjects(rows)
}

func (p *Postgres) AllObjects(ctx context.Context) ([]ObjectRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, principal, name, mime_type, size, status, dest_id,
		        last_error, attempts, last_attempt
		 FROM objects ORDER BY principal, id`)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()
	return scanPgObjects(rows)
}

func scanPgObjects(rows pgx.Rows) ([]ObjectRecord, error) {
	var out []ObjectRecord
	for rows.Next() {
		var o ObjectRecord
		var mime, destID, lastErr *string
		var lastAttempt *time.Time
		if err := rows.Scan(&o.ID, &o.Principal, &o.Name, &mime, &o.Size,
			&o.Status, &destID, &lastErr, &o.Attempts, &lastAttempt); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		if mime != nil {
			o.MIMEType = *mime
		}
		if destID != nil {
			o.DestID = *destID
		}
		if lastErr != nil {
			o.LastError = *lastErr
		}
		if lastAttempt != nil {
			o.LastAttempt = *lastAttempt
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) OverallProgress(ctx context.Context) (Progress, error) {
	prog := Progress{
		PrincipalsByStatus: make(map[string]int64),
		ObjectsByStatus:    make(map[string]int64),
	}

	rows, err := p.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM principals GROUP BY status`)
	if err != nil {
		return prog, fmt.Errorf("aggregate principals: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return prog, err
		}
		prog.PrincipalsByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return prog, err
	}

	rows, err = p.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM objects GROUP BY status`)
	if err != nil {
		return prog, fmt.Errorf("aggregate objects: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return prog, err
		}
		prog.ObjectsByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return prog, err
	}

	err = p.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM objects WHERE status = $1`,
		StatusCompleted).Scan(&prog.CompletedBytes)
	if err != nil {
		return prog, fmt.Errorf("sum completed bytes: %w", err)
	}
	return prog, nil
}
