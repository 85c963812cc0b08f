// Package report renders run artifacts: a JSON summary, a per-principal
// CSV, a parquet object inventory for downstream tooling and the
// per-principal validation reports.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/hemanttanawade-debug/drive-migration/internal/coordinator"
	"github.com/hemanttanawade-debug/drive-migration/internal/ledger"
	"github.com/hemanttanawade-debug/drive-migration/internal/snapshot"
)

// Publish writes every run artifact to the store and returns the keys
// written.
func Publish(ctx context.Context, store *snapshot.Store, summary *coordinator.RunSummary, objects []ledger.ObjectRecord) ([]string, error) {
	var keys []string

	key, err := WriteSummaryJSON(ctx, store, summary)
	if err != nil {
		return keys, err
	}
	keys = append(keys, key)

	key, err = WriteSummaryCSV(ctx, store, summary)
	if err != nil {
		return keys, err
	}
	keys = append(keys, key)

	if len(objects) > 0 {
		key, err = WriteInventoryParquet(ctx, store, summary.RunID, objects)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	validationKeys, err := WriteValidationReports(ctx, store, summary)
	if err != nil {
		return keys, err
	}
	return append(keys, validationKeys...), nil
}

// WriteSummaryJSON persists the machine-readable run summary.
func WriteSummaryJSON(ctx context.Context, store *snapshot.Store, summary *coordinator.RunSummary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run summary: %w", err)
	}
	key := store.ReportKey(summary.RunID, "summary.json")
	if err := store.WriteDocument(ctx, key, data, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// WriteSummaryCSV persists one row per principal for spreadsheet review.
func WriteSummaryCSV(ctx context.Context, store *snapshot.Store, summary *coordinator.RunSummary) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"source", "dest", "status",
		"objects_completed", "objects_failed", "objects_skipped",
		"grants_migrated", "grants_skipped", "grants_failed",
		"bytes", "duration_seconds", "validation", "error",
	}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}

	for _, res := range summary.Results {
		validation := ""
		if res.Validation != nil {
			validation = res.Validation.Status
		}
		row := []string{
			res.Principal,
			res.Dest,
			res.Status,
			strconv.Itoa(res.ObjectsCompleted),
			strconv.Itoa(res.ObjectsFailed),
			strconv.Itoa(res.ObjectsSkipped),
			strconv.Itoa(res.GrantsMigrated),
			strconv.Itoa(res.GrantsSkipped),
			strconv.Itoa(res.GrantsFailed),
			strconv.FormatInt(res.BytesTransferred, 10),
			strconv.FormatFloat(res.Duration.Seconds(), 'f', 1, 64),
			validation,
			res.ErrorText,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}

	key := store.ReportKey(summary.RunID, "summary.csv")
	if err := store.WriteDocument(ctx, key, buf.Bytes(), "text/csv"); err != nil {
		return "", err
	}
	return key, nil
}

// inventoryRow is one parquet record per ledger object.
type inventoryRow struct {
	ObjectID  string `parquet:"object_id"`
	Principal string `parquet:"principal"`
	Name      string `parquet:"name"`
	MIMEType  string `parquet:"mime_type"`
	Size      int64  `parquet:"size"`
	Status    string `parquet:"status"`
	DestID    string `parquet:"dest_id"`
	Attempts  int32  `parquet:"attempts"`
	LastError string `parquet:"last_error"`
}

// WriteInventoryParquet persists the full object inventory in a columnar
// format for analytics tooling.
func WriteInventoryParquet(ctx context.Context, store *snapshot.Store, runID int64, objects []ledger.ObjectRecord) (string, error) {
	rows := make([]inventoryRow, 0, len(objects))
	for _, o := range objects {
		rows = append(rows, inventoryRow{
			ObjectID:  o.ID,
			Principal: o.Principal,
			Name:      o.Name,
			MIMEType:  o.MIMEType,
			Size:      o.Size,
			Status:    o.Status,
			DestID:    o.DestID,
			Attempts:  int32(o.Attempts),
			LastError: o.LastError,
		})
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[inventoryRow](&buf)
	if _, err := w.Write(rows); err != nil {
		return "", fmt.Errorf("write inventory rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close inventory writer: %w", err)
	}

	key := store.ReportKey(runID, "inventory.parquet")
	if err := store.WriteDocument(ctx, key, buf.Bytes(), "application/vnd.apache.parquet"); err != nil {
		return "", err
	}
	return key, nil
}

// WriteValidationReports persists each principal's reconciliation
// report as JSON plus a human-readable text rendering. The report is
// timestamped here, at write time, so the comparison that produced it
// stays a pure function of its snapshots.
func WriteValidationReports(ctx context.Context, store *snapshot.Store, summary *coordinator.RunSummary) ([]string, error) {
	var keys []string
	for _, res := range summary.Results {
		if res.Validation == nil {
			continue
		}
		if res.Validation.ValidatedAt.IsZero() {
			res.Validation.ValidatedAt = time.Now().UTC()
		}
		data, err := json.MarshalIndent(res.Validation, "", "  ")
		if err != nil {
			return keys, fmt.Errorf("encode validation for %s: %w", res.Principal, err)
		}

		jsonKey := store.ReportKey(summary.RunID, res.Principal+"/validation.json")
		if err := store.WriteDocument(ctx, jsonKey, data, "application/json"); err != nil {
			return keys, err
		}
		keys = append(keys, jsonKey)

		textKey := store.ReportKey(summary.RunID, res.Principal+"/validation.txt")
		if err := store.WriteDocument(ctx, textKey, []byte(res.Validation.RenderText()), "text/plain"); err != nil {
			return keys, err
		}
		keys = append(keys, textKey)
	}
	return keys, nil
}

// RenderProgress formats ledger progress for the status command.
func RenderProgress(p ledger.Progress) string {
	var b strings.Builder
	b.WriteString("Principals:\n")
	writeCounts(&b, p.PrincipalsByStatus)
	b.WriteString("Objects:\n")
	writeCounts(&b, p.ObjectsByStatus)
	fmt.Fprintf(&b, "Bytes transferred: %d\n", p.CompletedBytes)
	return b.String()
}

func writeCounts(b *strings.Builder, counts map[string]int64) {
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(b, "  %-18s %d\n", status, counts[status])
	}
}
