// Package ledger provides the durable migration state store. Every
// completion mark commits before the caller proceeds, so a crash at any
// point leaves a state the next run can resume from.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/hemanttanawade-debug/drive-migration/internal/config"
)

// Run, principal and object statuses. "completed" is terminal across
// restarts; a completed object is never re-transferred.
const (
	StatusPending          = "pending"
	StatusInProgress       = "in_progress"
	StatusCompleted        = "completed"
	StatusFailed           = "failed"
	StatusAlreadyCompleted = "already_completed"
)

// PrincipalRecord is one row of per-principal migration state.
type PrincipalRecord struct {
	Source           string
	Dest             string
	Status           string
	CompletedObjects int
	FailedObjects    int
	StartTime        time.Time
	EndTime          time.Time
}

// ObjectRecord is one row of per-object migration state, keyed by the
// source object id.
type ObjectRecord struct {
	ID          string
	Principal   string
	Name        string
	MIMEType    string
	Size        int64
	Status      string
	DestID      string
	LastError   string
	Attempts    int
	LastAttempt time.Time
}

// Progress aggregates ledger state for reporting.
type Progress struct {
	PrincipalsByStatus map[string]int64
	ObjectsByStatus    map[string]int64
	CompletedBytes     int64
}

// RunSummaryTotals closes out a run row.
type RunSummaryTotals struct {
	TotalPrincipals     int
	CompletedPrincipals int
	FailedPrincipals    int
}

// Ledger is the durable state store behind a migration run.
type Ledger interface {
	// StartRun opens a run row and returns its id. cfgJSON is the
	// serialized configuration, kept for the run report.
	StartRun(ctx context.Context, cfgJSON []byte) (int64, error)

	// EndRun closes the run row with a final status and totals.
	EndRun(ctx context.Context, runID int64, status string, totals RunSummaryTotals) error

	// AddPrincipal upserts a principal mapping in pending status. An
	// existing row keeps its status and counters.
	AddPrincipal(ctx context.Context, source, dest string) error

	// SetPrincipalStatus moves a principal to the given status.
	SetPrincipalStatus(ctx context.Context, source, status string) error

	// MarkPrincipalCompleted is idempotent; the first call fixes the end
	// time, later calls leave it untouched.
	MarkPrincipalCompleted(ctx context.Context, source string) error

	// IsPrincipalCompleted reports whether the principal already finished
	// in a previous run. Unknown principals report false.
	IsPrincipalCompleted(ctx context.Context, source string) (bool, error)

	// Principals lists all principal rows ordered by source email.
	Principals(ctx context.Context) ([]PrincipalRecord, error)

	// AddObject inserts an object row in pending status; an existing row
	// is left untouched so completion survives restarts.
	AddObject(ctx context.Context, o ObjectRecord) error

	// IsObjectCompleted reports whether the object already transferred.
	IsObjectCompleted(ctx context.Context, id string) (bool, error)

	// MarkObjectCompleted records a successful transfer and bumps the
	// principal's completed counter. Re-marking a completed object is a
	// no-op.
	MarkObjectCompleted(ctx context.Context, id, principal, destID string) error

	// MarkObjectFailed records a failure, increments the attempt count
	// and bumps the principal's failed counter.
	MarkObjectFailed(ctx context.Context, id, principal, errText string) error

	// ResetFailedObjects returns failed objects under the attempt ceiling
	// to pending and reports how many were reset.
	ResetFailedObjects(ctx context.Context, maxAttempts int) (int64, error)

	// FailedObjects lists failed objects, optionally scoped to one
	// principal ("" for all).
	FailedObjects(ctx context.Context, principal string) ([]ObjectRecord, error)

	// AllObjects lists every object row ordered by principal then id.
	AllObjects(ctx context.Context) ([]ObjectRecord, error)

	// OverallProgress aggregates principal and object counts by status.
	OverallProgress(ctx context.Context) (Progress, error)

	Close() error
}

// New opens the ledger backend selected by config.
func New(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	switch cfg.Backend {
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
