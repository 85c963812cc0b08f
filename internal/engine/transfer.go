package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hemanttanawade-debug/drive-migration/internal/access"
	"github.com/hemanttanawade-debug/drive-migration/internal/ledger"
	"github.com/hemanttanawade-debug/drive-migration/internal/metrics"
	"github.com/hemanttanawade-debug/drive-migration/internal/remote"
	"github.com/hemanttanawade-debug/drive-migration/internal/snapshot"
)

// transferAll walks the snapshot's leaf objects in order, strictly
// sequentially. An object failure is recorded and the walk continues;
// nothing here aborts the principal.
func (m *Migrator) transferAll(ctx context.Context, log *slog.Logger, snap *snapshot.Snapshot, folderMap map[string]string, res *Result) {
	for _, node := range snap.Objects {
		if err := m.ledger.AddObject(ctx, ledger.ObjectRecord{
			ID:        node.ID,
			Principal: snap.Principal,
			Name:      node.Name,
			MIMEType:  node.MIMEType,
			Size:      node.Size,
		}); err != nil {
			log.Error("ledger add failed", "object", node.ID, "error", err)
			res.ObjectsFailed++
			continue
		}

		done, err := m.ledger.IsObjectCompleted(ctx, node.ID)
		if err != nil {
			log.Error("ledger lookup failed", "object", node.ID, "error", err)
			res.ObjectsFailed++
			continue
		}
		if done {
			log.Debug("object already completed", "object", node.ID, "name", node.Name)
			res.ObjectsSkipped++
			continue
		}

		destID, bytes, err := m.transferObject(ctx, log, node, folderMap, snap.Principal, res.Dest)
		if err != nil {
			log.Warn("object transfer failed", "object", node.ID, "name", node.Name,
				"kind", remote.KindOf(err).String(), "error", err)
			if markErr := m.ledger.MarkObjectFailed(ctx, node.ID, snap.Principal, err.Error()); markErr != nil {
				log.Error("ledger failure mark failed", "object", node.ID, "error", markErr)
			}
			metrics.ObjectsProcessed.WithLabelValues("failed").Inc()
			res.ObjectsFailed++
			m.throttle()
			continue
		}

		if destID != "" {
			m.applyGrants(ctx, log, node, destID, res)
		}

		if err := m.ledger.MarkObjectCompleted(ctx, node.ID, snap.Principal, destID); err != nil {
			log.Error("ledger completion mark failed", "object", node.ID, "error", err)
			res.ObjectsFailed++
			m.throttle()
			continue
		}

		if destID == "" {
			metrics.ObjectsProcessed.WithLabelValues("skipped").Inc()
			res.ObjectsSkipped++
		} else {
			metrics.ObjectsProcessed.WithLabelValues("completed").Inc()
			metrics.BytesTransferred.Add(float64(bytes))
			res.ObjectsCompleted++
			res.BytesTransferred += bytes
		}
		m.throttle()
	}
}

// transferObject resolves the decision table for one leaf object. A
// returned empty destID with nil error means skip-as-success: the
// ledger row completes so the object is never revisited, but nothing
// landed in the destination.
func (m *Migrator) transferObject(ctx context.Context, log *slog.Logger, node snapshot.Node, folderMap map[string]string, srcPrincipal, destPrincipal string) (string, int64, error) {
	kind := ClassifyMIME(node.MIMEType)
	if kind == KindFolder {
		return "", 0, nil
	}
	if kind == KindShortcut {
		log.Debug("skipping shortcut", "object", node.ID, "name", node.Name)
		return "", 0, nil
	}
	if len(node.Owners) > 0 && !containsOwner(node.Owners, srcPrincipal) {
		log.Debug("skipping object owned elsewhere", "object", node.ID, "name", node.Name)
		return "", 0, nil
	}
	if m.opts.MaxObjectSize > 0 && node.Size > m.opts.MaxObjectSize {
		return "", 0, remote.Errorf(remote.KindTooLarge, "transfer",
			"%q is %d bytes, ceiling is %d", node.Name, node.Size, m.opts.MaxObjectSize)
	}

	destParent := folderMap[node.ParentID]

	if kind == KindNativeDoc {
		return m.transferNative(ctx, log, node, destParent)
	}
	return m.transferOpaque(ctx, log, node, destParent, destPrincipal)
}

// transferNative copies an editable document, falling back to export
// plus upload when the copy is refused.
func (m *Migrator) transferNative(ctx context.Context, log *slog.Logger, node snapshot.Node, destParent string) (string, int64, error) {
	var destID string
	copyErr := m.call(ctx, "Copy", func() error {
		var callErr error
		destID, callErr = m.dest.Copy(ctx, node.ID, node.Name, destParent)
		return callErr
	})
	if copyErr == nil {
		return destID, node.Size, nil
	}
	if !m.opts.ExportFallback {
		return "", 0, fmt.Errorf("copy %q: %w", node.Name, copyErr)
	}

	target, ok := remote.ExportTargetFor(node.MIMEType)
	if !ok {
		return "", 0, fmt.Errorf("copy %q failed and no export format for %s: %w", node.Name, node.MIMEType, copyErr)
	}
	log.Debug("copy refused, exporting", "object", node.ID, "format", target.MIME, "error", copyErr)

	var content []byte
	err := m.call(ctx, "ExportAs", func() error {
		var callErr error
		content, callErr = m.source.ExportAs(ctx, node.ID, target.MIME)
		return callErr
	})
	if err != nil {
		return "", 0, fmt.Errorf("export %q: %w", node.Name, err)
	}

	err = m.call(ctx, "Upload", func() error {
		var callErr error
		destID, callErr = m.dest.Upload(ctx, content, node.Name+target.Extension, target.MIME, destParent)
		return callErr
	})
	if err != nil {
		return "", 0, fmt.Errorf("upload exported %q: %w", node.Name, err)
	}
	return destID, int64(len(content)), nil
}

// transferOpaque downloads raw bytes and uploads them, then promotes
// the destination principal to owner. An ownership refusal is logged
// and the transfer still succeeds.
func (m *Migrator) transferOpaque(ctx context.Context, log *slog.Logger, node snapshot.Node, destParent, destPrincipal string) (string, int64, error) {
	var content []byte
	err := m.call(ctx, "Download", func() error {
		var callErr error
		content, callErr = m.source.Download(ctx, node.ID)
		return callErr
	})
	if err != nil {
		return "", 0, fmt.Errorf("download %q: %w", node.Name, err)
	}

	var destID string
	err = m.call(ctx, "Upload", func() error {
		var callErr error
		destID, callErr = m.dest.Upload(ctx, content, node.Name, node.MIMEType, destParent)
		return callErr
	})
	if err != nil {
		return "", 0, fmt.Errorf("upload %q: %w", node.Name, err)
	}

	err = m.call(ctx, "TransferOwnership", func() error {
		return m.dest.TransferOwnership(ctx, destID, destPrincipal)
	})
	if err != nil {
		log.Warn("ownership not transferable", "object", node.ID, "name", node.Name, "error", err)
	}
	return destID, int64(len(content)), nil
}

// applyGrants translates and applies the object's non-owner access
// entries. A grantee missing from the destination fails that entry
// only; the rest of the list still applies.
func (m *Migrator) applyGrants(ctx context.Context, log *slog.Logger, node snapshot.Node, destID string, res *Result) {
	for _, entry := range node.Entries {
		translated, ok := access.Translate(entry, m.opts.DomainMap)
		if !ok {
			metrics.GrantsApplied.WithLabelValues("skipped").Inc()
			res.GrantsSkipped++
			continue
		}

		err := m.call(ctx, "CreateAccessEntry", func() error {
			return m.dest.CreateAccessEntry(ctx, destID, translated)
		})
		if err != nil {
			log.Warn("grant application failed", "object", node.ID,
				"grantee", translated.Email, "role", translated.Role, "error", err)
			metrics.GrantsApplied.WithLabelValues("failed").Inc()
			res.GrantsFailed++
		} else {
			metrics.GrantsApplied.WithLabelValues("migrated").Inc()
			res.GrantsMigrated++
		}
		m.throttle()
	}
}

func containsOwner(owners []string, principal string) bool {
	for _, o := range owners {
		if o == principal {
			return true
		}
	}
	return false
}
