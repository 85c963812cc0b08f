// Package coordinator fans a migration run out over a bounded worker
// pool, one principal per slot, and aggregates the run summary.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hemanttanawade-debug/drive-migration/internal/engine"
	"github.com/hemanttanawade-debug/drive-migration/internal/ledger"
	"github.com/hemanttanawade-debug/drive-migration/internal/logging"
)

// PrincipalMigrator runs the migration state machine for one principal.
type PrincipalMigrator interface {
	MigratePrincipal(ctx context.Context, source, dest string) engine.Result
}

// MigratorFactory builds the migrator once the run id is known.
type MigratorFactory func(runID int64) PrincipalMigrator

// RunSummary aggregates a whole run.
type RunSummary struct {
	RunID      int64           `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Status     string          `json:"status"`
	Principals int             `json:"principals"`
	Completed  int             `json:"completed"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	Objects    ObjectTotals    `json:"objects"`
	Grants     GrantTotals     `json:"grants"`
	Bytes      int64           `json:"bytes_transferred"`
	Results    []engine.Result `json:"results"`
}

// ObjectTotals sums per-object outcomes across principals.
type ObjectTotals struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// GrantTotals sums access-entry outcomes across principals.
type GrantTotals struct {
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Coordinator owns run lifecycle and principal fan-out.
type Coordinator struct {
	ledger     ledger.Ledger
	newMigrate MigratorFactory
	workers    int
}

// New builds a Coordinator with the given parallelism.
func New(led ledger.Ledger, factory MigratorFactory, workers int) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{ledger: led, newMigrate: factory, workers: workers}
}

type job struct {
	source string
	dest   string
}

// Run migrates every principal in the mapping. Principal failures are
// aggregated, never fatal; the returned summary carries them.
func (c *Coordinator) Run(ctx context.Context, mapping map[string]string, cfgJSON []byte) (*RunSummary, error) {
	log := logging.Component("coordinator")

	runID, err := c.ledger.StartRun(ctx, cfgJSON)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	sources := make([]string, 0, len(mapping))
	for src := range mapping {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for _, src := range sources {
		if err := c.ledger.AddPrincipal(ctx, src, mapping[src]); err != nil {
			return nil, fmt.Errorf("register principal %s: %w", src, err)
		}
	}

	summary := &RunSummary{
		RunID:      runID,
		StartedAt:  time.Now().UTC(),
		Principals: len(sources),
	}
	log.Info("run started", "run_id", runID, "principals", len(sources), "workers", c.workers)

	migrator := c.newMigrate(runID)

	jobs := make(chan job)
	results := make(chan engine.Result)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			wlog := logging.WorkerLogger(workerID)
			for j := range jobs {
				wlog.Info("migrating principal", "source", j.source, "dest", j.dest)
				results <- migrator.MigratePrincipal(ctx, j.source, j.dest)
			}
		}(i)
	}

	go func() {
		defer close(jobs)
		for _, src := range sources {
			select {
			case jobs <- job{source: src, dest: mapping[src]}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Results arrive in completion order, not submission order.
	for res := range results {
		summary.Results = append(summary.Results, res)
		switch res.Status {
		case ledger.StatusCompleted:
			summary.Completed++
		case ledger.StatusAlreadyCompleted:
			summary.Skipped++
		default:
			summary.Failed++
		}
		summary.Objects.Completed += res.ObjectsCompleted
		summary.Objects.Failed += res.ObjectsFailed
		summary.Objects.Skipped += res.ObjectsSkipped
		summary.Grants.Migrated += res.GrantsMigrated
		summary.Grants.Skipped += res.GrantsSkipped
		summary.Grants.Failed += res.GrantsFailed
		summary.Bytes += res.BytesTransferred
	}

	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].Principal < summary.Results[j].Principal
	})

	summary.FinishedAt = time.Now().UTC()
	summary.Status = ledger.StatusCompleted
	if summary.Failed > 0 {
		summary.Status = ledger.StatusFailed
	}

	err = c.ledger.EndRun(ctx, runID, summary.Status, ledger.RunSummaryTotals{
		TotalPrincipals:     summary.Principals,
		CompletedPrincipals: summary.Completed + summary.Skipped,
		FailedPrincipals:    summary.Failed,
	})
	if err != nil {
		return summary, fmt.Errorf("end run %d: %w", runID, err)
	}

	log.Info("run finished", "run_id", runID, "status", summary.Status,
		"completed", summary.Completed, "failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

// Resume returns bounded-retry failures to pending, reopens failed
// principals and re-runs the stored principal set. Principals that
// finished cleanly short-circuit inside the engine.
func (c *Coordinator) Resume(ctx context.Context, maxAttempts int, cfgJSON []byte) (*RunSummary, error) {
	log := logging.Component("coordinator")

	reset, err := c.ledger.ResetFailedObjects(ctx, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("reset failed objects: %w", err)
	}
	log.Info("failed objects returned to pending", "count", reset)

	principals, err := c.ledger.Principals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored principals: %w", err)
	}
	if len(principals) == 0 {
		return nil, fmt.Errorf("nothing to resume: ledger has no principals")
	}

	mapping := make(map[string]string, len(principals))
	for _, p := range principals {
		if p.Status == ledger.StatusFailed || p.Status == ledger.StatusInProgress {
			if err := c.ledger.SetPrincipalStatus(ctx, p.Source, ledger.StatusPending); err != nil {
				return nil, fmt.Errorf("reopen principal %s: %w", p.Source, err)
			}
		}
		mapping[p.Source] = p.Dest
	}
	return c.Run(ctx, mapping, cfgJSON)
}
