package record

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"tradepulse/internal/models"
)

func newTestStore() (*Store, *stubRepo) {
	repo := &stubRepo{}
	return NewStore(repo, zap.NewNop()), repo
}

func TestCreateDeduplicates(t *testing.T) {
	store, repo := newTestStore()
	ctx := context.Background()

	err := store.Create(ctx, models.ProcessingRecord{ID: "itm-1", SourceAccount: "acct"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, models.ProcessingRecord{ID: "itm-1"}); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate Create err = %v, want ErrExists", err)
	}

	rec, ok := store.Get("itm-1")
	if !ok {
		t.Fatal("record missing after Create")
	}
	if rec.Status != models.StatusPending {
		t.Fatalf("status = %q, want default %q", rec.Status, models.StatusPending)
	}
	if rec.LastUpdatedAt.IsZero() {
		t.Fatal("LastUpdatedAt not stamped")
	}
	if got := repo.saveCount(); got != 1 {
		t.Fatalf("flushed %d times, want 1 (duplicate never flushes)", got)
	}
}

func TestCreateFlushFailureKeepsRecord(t *testing.T) {
	store, repo := newTestStore()
	repo.saveErr = errors.New("db down")

	err := store.Create(context.Background(), models.ProcessingRecord{ID: "itm-1"})
	if err == nil {
		t.Fatal("Create did not report the flush failure")
	}
	if !store.Exists("itm-1") {
		t.Fatal("dedup set must hold even when the flush fails")
	}
	if _, ok := store.Get("itm-1"); !ok {
		t.Fatal("record must stay in memory when the flush fails")
	}
}

func TestUpdateAppliesAndFlushes(t *testing.T) {
	store, repo := newTestStore()
	ctx := context.Background()
	if err := store.Create(ctx, models.ProcessingRecord{ID: "itm-1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	before, _ := store.Get("itm-1")

	time.Sleep(time.Millisecond)
	snapshot, applied, err := store.Update(ctx, "itm-1", func(r *models.ProcessingRecord) bool {
		r.Status = models.StatusProcessing
		return true
	})
	if err != nil || !applied {
		t.Fatalf("Update: applied=%v err=%v", applied, err)
	}
	if snapshot.Status != models.StatusProcessing {
		t.Fatalf("snapshot status = %q", snapshot.Status)
	}
	if !snapshot.LastUpdatedAt.After(before.LastUpdatedAt) {
		t.Fatal("LastUpdatedAt not advanced by Update")
	}

	last, ok := repo.lastSave()
	if !ok || last.Status != models.StatusProcessing {
		t.Fatalf("flush after Update = %+v (ok=%v)", last, ok)
	}
}

func TestUpdateRejectedMutatorChangesNothing(t *testing.T) {
	store, repo := newTestStore()
	ctx := context.Background()
	if err := store.Create(ctx, models.ProcessingRecord{ID: "itm-1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	flushes := repo.saveCount()

	snapshot, applied, err := store.Update(ctx, "itm-1", func(r *models.ProcessingRecord) bool {
		if r.Status != models.StatusProcessing {
			return false
		}
		r.Status = models.StatusDone
		return true
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if applied {
		t.Fatal("rejected mutator reported as applied")
	}
	if snapshot.Status != models.StatusPending {
		t.Fatalf("snapshot status = %q, want the untouched %q", snapshot.Status, models.StatusPending)
	}
	rec, _ := store.Get("itm-1")
	if rec.Status != models.StatusPending {
		t.Fatalf("stored status = %q, want %q", rec.Status, models.StatusPending)
	}
	if got := repo.saveCount(); got != flushes {
		t.Fatalf("rejected update flushed (%d -> %d saves)", flushes, got)
	}
}

func TestUpdateUnknownRecord(t *testing.T) {
	store, _ := newTestStore()
	_, _, err := store.Update(context.Background(), "ghost", func(r *models.ProcessingRecord) bool {
		return true
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	if err := store.Create(ctx, models.ProcessingRecord{ID: "itm-1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, _ := store.Get("itm-1")
	rec.Status = models.StatusFailed
	rec.RetryCount = 99

	fresh, _ := store.Get("itm-1")
	if fresh.Status != models.StatusPending || fresh.RetryCount != 0 {
		t.Fatalf("store state mutated through a Get copy: %+v", fresh)
	}
}

func TestLoadRebuildsWorkingSetAndDedup(t *testing.T) {
	store, repo := newTestStore()
	now := time.Now().UTC()
	repo.load = []models.ProcessingRecord{
		{ID: "fresh-pending", Status: models.StatusPending, LastUpdatedAt: now},
		{ID: "old-done", Status: models.StatusDone, LastUpdatedAt: now.Add(-2 * time.Hour)},
		{ID: "old-processing", Status: models.StatusProcessing, LastUpdatedAt: now.Add(-2 * time.Hour)},
		{ID: "fresh-done", Status: models.StatusDone, LastUpdatedAt: now},
	}

	n, err := store.Load(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 4 {
		t.Fatalf("Load count = %d, want 4", n)
	}

	for _, id := range []string{"fresh-pending", "old-processing", "fresh-done"} {
		if _, ok := store.Get(id); !ok {
			t.Fatalf("record %q not in the working set after Load", id)
		}
	}
	if _, ok := store.Get("old-done"); ok {
		t.Fatal("old terminal record loaded into the working set")
	}
	// Every loaded id participates in dedup, evicted or not.
	for _, id := range []string{"fresh-pending", "old-done", "old-processing", "fresh-done"} {
		if !store.Exists(id) {
			t.Fatalf("id %q missing from the dedup set", id)
		}
	}
}

func TestLoadStorageErrorAborts(t *testing.T) {
	store, repo := newTestStore()
	repo.loadErr = errors.New("db down")
	if _, err := store.Load(context.Background(), time.Hour); err == nil {
		t.Fatal("Load swallowed the storage error")
	}
}

func TestRecoverInterrupted(t *testing.T) {
	store, repo := newTestStore()
	now := time.Now().UTC()
	repo.load = []models.ProcessingRecord{
		{ID: "was-pending", Status: models.StatusPending, LastUpdatedAt: now},
		{ID: "was-processing", Status: models.StatusProcessing, RetryCount: 0, LastUpdatedAt: now},
		{ID: "was-timed-out", Status: models.StatusTimedOut, RetryCount: 1, LastUpdatedAt: now},
		{ID: "spent", Status: models.StatusProcessing, RetryCount: 2, LastUpdatedAt: now},
		{ID: "finished", Status: models.StatusDone, LastUpdatedAt: now},
	}
	if _, err := store.Load(context.Background(), time.Hour); err != nil {
		t.Fatalf("Load: %v", err)
	}

	enqueue, err := store.RecoverInterrupted(context.Background(), 3)
	if err != nil {
		t.Fatalf("RecoverInterrupted: %v", err)
	}
	sort.Strings(enqueue)
	want := []string{"was-pending", "was-processing", "was-timed-out"}
	if len(enqueue) != len(want) {
		t.Fatalf("enqueue = %v, want %v", enqueue, want)
	}
	for i := range want {
		if enqueue[i] != want[i] {
			t.Fatalf("enqueue = %v, want %v", enqueue, want)
		}
	}

	cases := []struct {
		id         string
		status     string
		retryCount int
	}{
		{"was-pending", models.StatusPending, 0},
		{"was-processing", models.StatusPending, 1},
		{"was-timed-out", models.StatusPending, 2},
		{"spent", models.StatusFailed, 3},
		{"finished", models.StatusDone, 0},
	}
	for _, tc := range cases {
		rec, ok := store.Get(tc.id)
		if !ok {
			t.Fatalf("record %q missing", tc.id)
		}
		if rec.Status != tc.status || rec.RetryCount != tc.retryCount {
			t.Fatalf("%s: status=%q retries=%d, want status=%q retries=%d",
				tc.id, rec.Status, rec.RetryCount, tc.status, tc.retryCount)
		}
	}

	spent, _ := store.Get("spent")
	if spent.AnalysisError == "" {
		t.Fatal("interrupted record carries no error note")
	}
	// Pending and Done rows were untouched, so only the three mutated rows
	// were flushed.
	if got := repo.saveCount(); got != 3 {
		t.Fatalf("flushed %d rows, want 3", got)
	}
}

func TestStaleProcessing(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if err := store.Create(ctx, models.ProcessingRecord{ID: id}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, applied, _ := store.Update(ctx, "a", func(r *models.ProcessingRecord) bool {
		r.Status = models.StatusProcessing
		return true
	}); !applied {
		t.Fatal("claim a")
	}

	time.Sleep(2 * time.Millisecond)
	stale := store.StaleProcessing(time.Now().UTC())
	if len(stale) != 1 || stale[0] != "a" {
		t.Fatalf("StaleProcessing = %v, want [a]", stale)
	}
	if stale := store.StaleProcessing(time.Now().UTC().Add(-time.Hour)); len(stale) != 0 {
		t.Fatalf("StaleProcessing with old cutoff = %v, want empty", stale)
	}
}

func TestEvictTerminalPreservesDedup(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	for _, tc := range []struct {
		id     string
		status string
	}{
		{"done", models.StatusDone},
		{"failed", models.StatusFailed},
		{"pending", models.StatusPending},
	} {
		if err := store.Create(ctx, models.ProcessingRecord{ID: tc.id, Status: tc.status}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	time.Sleep(2 * time.Millisecond)
	if got := store.EvictTerminal(time.Now().UTC()); got != 2 {
		t.Fatalf("EvictTerminal = %d, want 2", got)
	}
	if _, ok := store.Get("pending"); !ok {
		t.Fatal("pending record evicted")
	}
	for _, id := range []string{"done", "failed"} {
		if _, ok := store.Get(id); ok {
			t.Fatalf("terminal record %q still in the working set", id)
		}
		if !store.Exists(id) {
			t.Fatalf("dedup lost id %q on eviction", id)
		}
	}

	stats := store.Stats()
	if stats.WorkingSet != 1 || stats.KnownIDs != 3 {
		t.Fatalf("Stats = %+v, want working set 1 and 3 known ids", stats)
	}
	if stats.ByStatus[models.StatusPending] != 1 {
		t.Fatalf("ByStatus = %v", stats.ByStatus)
	}
}
