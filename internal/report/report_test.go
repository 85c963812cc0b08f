package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/hemanttanawade-debug/drive-migration/internal/config"
	"github.com/hemanttanawade-debug/drive-migration/internal/coordinator"
	"github.com/hemanttanawade-debug/drive-migration/internal/engine"
	"github.com/hemanttanawade-debug/drive-migration/internal/ledger"
	"github.com/hemanttanawade-debug/drive-migration/internal/snapshot"
	"github.com/hemanttanawade-debug/drive-migration/internal/validator"
)

func openTestStore(t *testing.T) *snapshot.Store {
	t.Helper()
	store, err := snapshot.OpenStore(context.Background(), config.ArtifactsConfig{
		Backend:  "local",
		LocalDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSummary() *coordinator.RunSummary {
	return &coordinator.RunSummary{
		RunID:      42,
		StartedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:     ledger.StatusCompleted,
		Principals: 2,
		Completed:  2,
		Results: []engine.Result{
			{
				Principal:        "alice@source.com",
				Dest:             "alice@dest.com",
				Status:           ledger.StatusCompleted,
				ObjectsCompleted: 3,
				GrantsMigrated:   2,
				BytesTransferred: 1024,
				Duration:         90 * time.Second,
				Validation:       &validator.Report{Principal: "alice@source.com", Status: validator.StatusSuccess},
			},
			{
				Principal: "bob@source.com",
				Dest:      "bob@dest.com",
				Status:    ledger.StatusFailed,
				ErrorText: "delegation missing",
			},
		},
	}
}

func TestWriteSummaryJSON(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	key, err := WriteSummaryJSON(ctx, store, sampleSummary())
	if err != nil {
		t.Fatal(err)
	}
	data, err := store.ReadDocument(ctx, key)
	if err != nil {
		t.Fatal(err)
	}

	var got coordinator.RunSummary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.RunID != 42 || got.Principals != 2 {
		t.Errorf("round-tripped summary = %+v", got)
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	key, err := WriteSummaryCSV(ctx, store, sampleSummary())
	if err != nil {
		t.Fatal(err)
	}
	data, err := store.ReadDocument(ctx, key)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("csv rows = %d, want header + 2", len(rows))
	}
	if rows[1][0] != "alice@source.com" || rows[1][3] != "3" {
		t.Errorf("alice row = %v", rows[1])
	}
	if rows[2][2] != ledger.StatusFailed || rows[2][12] != "delegation missing" {
		t.Errorf("bob row = %v", rows[2])
	}
}

func TestWriteInventoryParquet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	objects := []ledger.ObjectRecord{
		{ID: "o1", Principal: "alice@source.com", Name: "scan.pdf", MIMEType: "application/pdf", Size: 9, Status: ledger.StatusCompleted, DestID: "d1"},
		{ID: "o2", Principal: "alice@source.com", Name: "huge.bin", Status: ledger.StatusFailed, Attempts: 3, LastError: "object_too_large"},
	}
	key, err := WriteInventoryParquet(ctx, store, 42, objects)
	if err != nil {
		t.Fatal(err)
	}
	data, err := store.ReadDocument(ctx, key)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := parquet.Read[inventoryRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("parquet rows = %d, want 2", len(rows))
	}
	if rows[0].ObjectID != "o1" || rows[0].Status != ledger.StatusCompleted {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Attempts != 3 || rows[1].LastError != "object_too_large" {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestPublishWritesAllArtifacts(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	keys, err := Publish(ctx, store, sampleSummary(), []ledger.ObjectRecord{
		{ID: "o1", Principal: "alice@source.com", Name: "scan.pdf", Status: ledger.StatusCompleted},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"summary.json", "summary.csv", "inventory.parquet", "validation.json", "validation.txt"}
	for _, suffix := range want {
		var found bool
		for _, key := range keys {
			if strings.HasSuffix(key, suffix) {
				found = true
			}
		}
		if !found {
			t.Errorf("artifact %s not published: %v", suffix, keys)
		}
	}
}

func TestWriteValidationReportsStampsTimestamp(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	keys, err := WriteValidationReports(ctx, store, sampleSummary())
	if err != nil {
		t.Fatal(err)
	}
	var jsonKey string
	for _, key := range keys {
		if strings.HasSuffix(key, "validation.json") {
			jsonKey = key
		}
	}
	if jsonKey == "" {
		t.Fatalf("no validation.json written: %v", keys)
	}

	data, err := store.ReadDocument(ctx, jsonKey)
	if err != nil {
		t.Fatal(err)
	}
	var got validator.Report
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ValidatedAt.IsZero() {
		t.Error("validated_at not stamped at write time")
	}
}

func TestRenderProgress(t *testing.T) {
	text := RenderProgress(ledger.Progress{
		PrincipalsByStatus: map[string]int64{"completed": 2, "failed": 1},
		ObjectsByStatus:    map[string]int64{"completed": 10},
		CompletedBytes:     4096,
	})
	for _, want := range []string{"completed", "failed", "4096"} {
		if !strings.Contains(text, want) {
			t.Errorf("progress text missing %q:\n%s", want, text)
		}
	}
}
