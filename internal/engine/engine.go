// Package engine drives the per-principal migration state machine:
// snapshot the source, rebuild the folder hierarchy, transfer objects,
// snapshot the destination, reconcile. Progress is checkpointed to the
// ledger after every object so an interrupted run resumes where it
// stopped.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hemanttanawade-debug/drive-migration/internal/identity"
	"github.com/hemanttanawade-debug/drive-migration/internal/ledger"
	"github.com/hemanttanawade-debug/drive-migration/internal/logging"
	"github.com/hemanttanawade-debug/drive-migration/internal/metrics"
	"github.com/hemanttanawade-debug/drive-migration/internal/remote"
	"github.com/hemanttanawade-debug/drive-migration/internal/snapshot"
	"github.com/hemanttanawade-debug/drive-migration/internal/validator"
)

// State is a phase of the per-principal migration.
type State int

const (
	StateNotStarted State = iota
	StateSnapshotSource
	StateBuildHierarchy
	StateTransfer
	StateSnapshotDest
	StateValidate
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateSnapshotSource:
		return "snapshot_source"
	case StateBuildHierarchy:
		return "build_hierarchy"
	case StateTransfer:
		return "transfer"
	case StateSnapshotDest:
		return "snapshot_dest"
	case StateValidate:
		return "validate"
	case StateCompleted:
		return "completed"
	default:
		return "failed"
	}
}

// Options tunes one migration run.
type Options struct {
	RunID          int64
	DomainMap      map[string]string
	MaxObjectSize  int64
	Throttle       time.Duration
	Retry          remote.RetryPolicy
	ExportFallback bool

	// Identity, when set, mints per-principal credentials before any
	// remote call so a delegation problem surfaces as a clean principal
	// failure instead of mid-transfer errors.
	Identity *identity.Cache
}

// Result is the outcome of migrating one principal.
type Result struct {
	Principal string
	Dest      string
	State     State
	Status    string

	ObjectsCompleted int
	ObjectsFailed    int
	ObjectsSkipped   int
	BytesTransferred int64

	GrantsMigrated int
	GrantsSkipped  int
	GrantsFailed   int

	SourceSnapshotKey string
	DestSnapshotKey   string
	Validation        *validator.Report

	Duration  time.Duration
	ErrorText string
}

// Migrator migrates principals between two tenants.
type Migrator struct {
	source remote.Service
	dest   remote.Service
	ledger ledger.Ledger
	store  *snapshot.Store
	opts   Options
	sleep  func(time.Duration)
	log    *slog.Logger
}

// New builds a Migrator. The snapshot store receives one source and one
// destination capture per principal.
func New(source, dest remote.Service, led ledger.Ledger, store *snapshot.Store, opts Options) *Migrator {
	return &Migrator{
		source: source,
		dest:   dest,
		ledger: led,
		store:  store,
		opts:   opts,
		sleep:  time.Sleep,
		log:    logging.Component("engine"),
	}
}

// SetSleep overrides the throttle sleep for tests.
func (m *Migrator) SetSleep(fn func(time.Duration)) { m.sleep = fn }

func (m *Migrator) call(ctx context.Context, op string, fn func() error) error {
	return remote.Call(ctx, m.opts.Retry, op, fn)
}

func (m *Migrator) throttle() {
	if m.opts.Throttle > 0 {
		m.sleep(m.opts.Throttle)
	}
}

// MigratePrincipal runs the state machine for one principal. Object
// failures are recorded and skipped over; only enumeration and snapshot
// failures fail the principal.
func (m *Migrator) MigratePrincipal(ctx context.Context, source, dest string) Result {
	started := time.Now()
	correlationID := logging.GenerateCorrelationID()
	log := logging.PrincipalLogger(correlationID, source, dest)

	res := Result{Principal: source, Dest: dest, State: StateNotStarted}
	defer func() {
		res.Duration = time.Since(started)
		metrics.PrincipalDuration.Observe(res.Duration.Seconds())
		metrics.PrincipalsProcessed.WithLabelValues(res.Status).Inc()
	}()

	done, err := m.ledger.IsPrincipalCompleted(ctx, source)
	if err != nil {
		return m.failPrincipal(ctx, log, res, fmt.Errorf("check completion: %w", err))
	}
	if done {
		log.Info("principal already completed, skipping")
		res.State = StateCompleted
		res.Status = ledger.StatusAlreadyCompleted
		return res
	}

	if err := m.ledger.SetPrincipalStatus(ctx, source, ledger.StatusInProgress); err != nil {
		return m.failPrincipal(ctx, log, res, fmt.Errorf("set in_progress: %w", err))
	}

	if m.opts.Identity != nil {
		if _, err := m.opts.Identity.Handle(ctx, "source", source); err != nil {
			return m.failPrincipal(ctx, log, res, err)
		}
		if _, err := m.opts.Identity.Handle(ctx, "dest", dest); err != nil {
			return m.failPrincipal(ctx, log, res, err)
		}
	}

	res.State = StateSnapshotSource
	log.Info("capturing source snapshot")
	srcSnap, err := snapshot.NewMapper(m.source, m.opts.Retry).Capture(ctx, source)
	if err != nil {
		return m.failPrincipal(ctx, log, res, fmt.Errorf("source snapshot: %w", err))
	}
	res.SourceSnapshotKey, err = m.store.WriteSnapshot(ctx, m.opts.RunID, "source", srcSnap)
	if err != nil {
		return m.failPrincipal(ctx, log, res, fmt.Errorf("persist source snapshot: %w", err))
	}

	res.State = StateBuildHierarchy
	folderMap, err := m.buildHierarchy(ctx, log, srcSnap, &res)
	if err != nil {
		return m.failPrincipal(ctx, log, res, fmt.Errorf("build hierarchy: %w", err))
	}

	res.State = StateTransfer
	m.transferAll(ctx, log, srcSnap, folderMap, &res)

	res.State = StateSnapshotDest
	log.Info("capturing destination snapshot")
	destSnap, err := snapshot.NewMapper(m.dest, m.opts.Retry).Capture(ctx, dest)
	if err != nil {
		return m.failPrincipal(ctx, log, res, fmt.Errorf("destination snapshot: %w", err))
	}
	res.DestSnapshotKey, err = m.store.WriteSnapshot(ctx, m.opts.RunID, "dest", destSnap)
	if err != nil {
		return m.failPrincipal(ctx, log, res, fmt.Errorf("persist destination snapshot: %w", err))
	}

	res.State = StateValidate
	res.Validation = validator.Validate(srcSnap, destSnap)
	log.Info("validation finished", "status", res.Validation.Status,
		"matched", res.Validation.Matched, "missing", res.Validation.Missing)

	if err := m.ledger.MarkPrincipalCompleted(ctx, source); err != nil {
		return m.failPrincipal(ctx, log, res, fmt.Errorf("mark completed: %w", err))
	}
	res.State = StateCompleted
	res.Status = ledger.StatusCompleted
	log.Info("principal migration finished",
		"completed", res.ObjectsCompleted,
		"failed", res.ObjectsFailed,
		"skipped", res.ObjectsSkipped,
		"bytes", res.BytesTransferred)
	return res
}

func (m *Migrator) failPrincipal(ctx context.Context, log *slog.Logger, res Result, err error) Result {
	log.Error("principal migration failed", "state", res.State.String(), "error", err)
	res.State = StateFailed
	res.Status = ledger.StatusFailed
	res.ErrorText = err.Error()
	if setErr := m.ledger.SetPrincipalStatus(ctx, res.Principal, ledger.StatusFailed); setErr != nil {
		log.Error("failed to record principal failure", "error", setErr)
	}
	return res
}

// buildHierarchy recreates the source folder tree in the destination,
// shallowest first, and returns the source-to-destination folder id map.
// The map is private to this principal run; first writer wins. Folders
// shared beyond the owner get their access entries translated and
// applied as they are created.
func (m *Migrator) buildHierarchy(ctx context.Context, log *slog.Logger, snap *snapshot.Snapshot, res *Result) (map[string]string, error) {
	folderMap := map[string]string{"": ""}

	// Folders arrive sorted by depth, so every parent is mapped before
	// its children.
	for _, folder := range snap.Folders {
		if _, exists := folderMap[folder.ID]; exists {
			continue
		}
		destParent := folderMap[folder.ParentID]

		var destID string
		err := m.call(ctx, "CreateFolder", func() error {
			var callErr error
			destID, callErr = m.dest.CreateFolder(ctx, folder.Name, destParent)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("create folder %q: %w", folder.Name, err)
		}
		folderMap[folder.ID] = destID
		log.Debug("folder created", "path", folder.Path, "dest_id", destID)

		if len(folder.Entries) > 1 {
			m.applyGrants(ctx, log, folder, destID, res)
		}
	}
	return folderMap, nil
}
