package pipeline

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"tradepulse/internal/models"
	"tradepulse/internal/record"
	"tradepulse/internal/service"
)

type reaperFixture struct {
	repo   *stubRepo
	store  *record.Store
	queue  *Queue
	reaper *Reaper
}

func newReaperFixture(staleAfter, evictAfter time.Duration) *reaperFixture {
	f := &reaperFixture{
		repo:  newStubRepo(),
		queue: NewQueue(),
	}
	f.store = record.NewStore(f.repo, zap.NewNop())
	f.reaper = &Reaper{
		Store:      f.store,
		Queue:      f.queue,
		Logger:     zap.NewNop(),
		StaleAfter: staleAfter,
		EvictAfter: evictAfter,
		MaxRetries: 3,
	}
	return f
}

// claim simulates a worker that took the record and then died.
func (f *reaperFixture) claim(t *testing.T, id string) {
	t.Helper()
	_, applied, err := f.store.Update(context.Background(), id, func(r *models.ProcessingRecord) bool {
		if r.Status != models.StatusPending {
			return false
		}
		r.Status = models.StatusProcessing
		return true
	})
	if err != nil || !applied {
		t.Fatalf("claim(%q): applied=%v err=%v", id, applied, err)
	}
}

func (f *reaperFixture) create(t *testing.T, id string, retryCount int) {
	t.Helper()
	err := f.store.Create(context.Background(), models.ProcessingRecord{
		ID:         id,
		RetryCount: retryCount,
		CapturedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Create(%q): %v", id, err)
	}
}

func TestReaperReclaimsStaleProcessing(t *testing.T) {
	f := newReaperFixture(time.Millisecond, time.Hour)
	f.create(t, "stuck", 0)
	f.claim(t, "stuck")
	time.Sleep(5 * time.Millisecond)

	f.reaper.RunOnce(context.Background())

	rec, ok := f.store.Get("stuck")
	if !ok {
		t.Fatal("record missing")
	}
	if rec.Status != models.StatusPending {
		t.Fatalf("status = %q, want %q (reclaimed for retry)", rec.Status, models.StatusPending)
	}
	if rec.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", rec.RetryCount)
	}
	if rec.AnalysisError == "" {
		t.Fatal("AnalysisError not recorded on the reclaimed attempt")
	}
	if got := f.queue.Len(); got != 1 {
		t.Fatalf("queue length = %d, want 1 (record re-enqueued)", got)
	}
	if got := countStatus(f.repo.statusTrail("stuck"), models.StatusTimedOut); got != 1 {
		t.Fatalf("flushed %d TimedOut transitions, want 1", got)
	}
}

func TestReaperLeavesFreshProcessing(t *testing.T) {
	f := newReaperFixture(time.Hour, time.Hour)
	f.create(t, "busy", 0)
	f.claim(t, "busy")

	f.reaper.RunOnce(context.Background())

	rec, _ := f.store.Get("busy")
	if rec.Status != models.StatusProcessing {
		t.Fatalf("status = %q, want untouched %q", rec.Status, models.StatusProcessing)
	}
	if got := f.queue.Len(); got != 0 {
		t.Fatalf("queue length = %d, want 0", got)
	}
}

func TestReaperExhaustsRetries(t *testing.T) {
	f := newReaperFixture(time.Millisecond, time.Hour)
	f.create(t, "stuck", 2)
	f.claim(t, "stuck")
	time.Sleep(5 * time.Millisecond)

	f.reaper.RunOnce(context.Background())

	rec, _ := f.store.Get("stuck")
	if rec.Status != models.StatusFailed {
		t.Fatalf("status = %q, want terminal %q", rec.Status, models.StatusFailed)
	}
	if rec.RetryCount != 3 {
		t.Fatalf("RetryCount = %d, want 3", rec.RetryCount)
	}
	if got := f.queue.Len(); got != 0 {
		t.Fatalf("queue length = %d, want 0 (no requeue after exhaustion)", got)
	}
}

func TestReaperEvictsTerminalKeepsDedup(t *testing.T) {
	f := newReaperFixture(time.Hour, time.Millisecond)
	f.create(t, "old-done", 0)
	_, applied, err := f.store.Update(context.Background(), "old-done", func(r *models.ProcessingRecord) bool {
		r.Status = models.StatusDone
		return true
	})
	if err != nil || !applied {
		t.Fatalf("mark done: applied=%v err=%v", applied, err)
	}
	time.Sleep(5 * time.Millisecond)

	f.reaper.RunOnce(context.Background())

	if _, ok := f.store.Get("old-done"); ok {
		t.Fatal("terminal record still in the working set after eviction")
	}
	if !f.store.Exists("old-done") {
		t.Fatal("dedup set lost an evicted id")
	}
	if err := f.store.Create(context.Background(), models.ProcessingRecord{ID: "old-done"}); err != record.ErrExists {
		t.Fatalf("re-ingesting an evicted id: err = %v, want ErrExists", err)
	}
}

func TestReaperSkipsWhenDisabled(t *testing.T) {
	f := newReaperFixture(time.Millisecond, time.Hour)
	flags := &service.SystemSettingsService{Repo: f.repo}
	if err := flags.SetEnabled(context.Background(), service.FeatureReaper, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	f.reaper.Flags = flags

	f.create(t, "stuck", 0)
	f.claim(t, "stuck")
	time.Sleep(5 * time.Millisecond)

	f.reaper.RunOnce(context.Background())

	rec, _ := f.store.Get("stuck")
	if rec.Status != models.StatusProcessing {
		t.Fatalf("status = %q, want untouched %q while reaper disabled", rec.Status, models.StatusProcessing)
	}
}
