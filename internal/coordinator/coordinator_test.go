package coordinator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hemanttanawade-debug/drive-migration/internal/engine"
	"github.com/hemanttanawade-debug/drive-migration/internal/ledger"
)

type fakeMigrator struct {
	mu        sync.Mutex
	runID     int64
	calls     []string
	inFlight  int
	peak      int
	statusFor map[string]string
}

func (f *fakeMigrator) MigratePrincipal(ctx context.Context, source, dest string) engine.Result {
	f.mu.Lock()
	f.calls = append(f.calls, source)
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	status := ledger.StatusCompleted
	if s, ok := f.statusFor[source]; ok {
		status = s
	}
	f.mu.Unlock()

	res := engine.Result{Principal: source, Dest: dest, Status: status}
	if status == ledger.StatusCompleted {
		res.ObjectsCompleted = 2
		res.GrantsMigrated = 1
		res.BytesTransferred = 10
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return res
}

func openTestLedger(t *testing.T) *ledger.SQLite {
	t.Helper()
	l, err := ledger.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRunAggregatesResults(t *testing.T) {
	led := openTestLedger(t)
	fake := &fakeMigrator{statusFor: map[string]string{
		"carol@source.com": ledger.StatusFailed,
	}}
	c := New(led, func(runID int64) PrincipalMigrator {
		fake.runID = runID
		return fake
	}, 2)

	mapping := map[string]string{
		"alice@source.com": "alice@dest.com",
		"bob@source.com":   "bob@dest.com",
		"carol@source.com": "carol@dest.com",
	}
	summary, err := c.Run(context.Background(), mapping, []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	if fake.runID == 0 {
		t.Error("migrator factory never received the run id")
	}
	if summary.Principals != 3 || summary.Completed != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Status != ledger.StatusFailed {
		t.Errorf("status = %q, want failed when any principal failed", summary.Status)
	}
	if summary.Objects.Completed != 4 || summary.Grants.Migrated != 2 || summary.Bytes != 20 {
		t.Errorf("totals = %+v", summary)
	}
	if len(summary.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(summary.Results))
	}
	// Results are sorted for stable reports regardless of completion
	// order.
	if summary.Results[0].Principal != "alice@source.com" {
		t.Errorf("results not sorted: %v", summary.Results)
	}

	principals, err := led.Principals(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(principals) != 3 {
		t.Errorf("ledger principals = %d, want 3", len(principals))
	}
}

func TestRunBoundsParallelism(t *testing.T) {
	led := openTestLedger(t)
	fake := &fakeMigrator{}
	c := New(led, func(int64) PrincipalMigrator { return fake }, 2)

	mapping := make(map[string]string)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		mapping[name+"@source.com"] = name + "@dest.com"
	}
	if _, err := c.Run(context.Background(), mapping, nil); err != nil {
		t.Fatal(err)
	}

	if len(fake.calls) != 6 {
		t.Errorf("calls = %d, want 6", len(fake.calls))
	}
	if fake.peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", fake.peak)
	}
}

func TestResumeReopensFailedPrincipals(t *testing.T) {
	ctx := context.Background()
	led := openTestLedger(t)

	// Simulate an interrupted earlier run: one principal done, one
	// failed, one failed object under the retry ceiling.
	if err := led.AddPrincipal(ctx, "alice@source.com", "alice@dest.com"); err != nil {
		t.Fatal(err)
	}
	if err := led.AddPrincipal(ctx, "bob@source.com", "bob@dest.com"); err != nil {
		t.Fatal(err)
	}
	if err := led.MarkPrincipalCompleted(ctx, "alice@source.com"); err != nil {
		t.Fatal(err)
	}
	if err := led.SetPrincipalStatus(ctx, "bob@source.com", ledger.StatusFailed); err != nil {
		t.Fatal(err)
	}
	if err := led.AddObject(ctx, ledger.ObjectRecord{ID: "o1", Principal: "bob@source.com", Name: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := led.MarkObjectFailed(ctx, "o1", "bob@source.com", "transient outage"); err != nil {
		t.Fatal(err)
	}

	fake := &fakeMigrator{statusFor: map[string]string{
		"alice@source.com": ledger.StatusAlreadyCompleted,
	}}
	c := New(led, func(int64) PrincipalMigrator { return fake }, 1)

	summary, err := c.Resume(ctx, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Principals != 2 {
		t.Errorf("resumed principals = %d, want 2", summary.Principals)
	}
	if summary.Skipped != 1 || summary.Completed != 1 {
		t.Errorf("summary = %+v", summary)
	}

	failed, err := led.FailedObjects(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Errorf("failed objects after resume reset = %d, want 0", len(failed))
	}
}

func TestResumeWithEmptyLedgerFails(t *testing.T) {
	led := openTestLedger(t)
	c := New(led, func(int64) PrincipalMigrator { return &fakeMigrator{} }, 1)
	if _, err := c.Resume(context.Background(), 3, nil); err == nil {
		t.Fatal("expected error when ledger has no principals")
	}
}
