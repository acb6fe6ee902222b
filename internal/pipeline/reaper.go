package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tradepulse/internal/models"
	"tradepulse/internal/record"
	"tradepulse/internal/service"
)

// Reaper recovers records stuck in Processing past the staleness bound and
// evicts long-terminal records from the working set. Runs on the cron
// schedule.
type Reaper struct {
	Store  *record.Store
	Queue  *Queue
	Flags  *service.SystemSettingsService
	Logger *zap.Logger

	StaleAfter time.Duration
	EvictAfter time.Duration
	MaxRetries int
}

func (r *Reaper) RunOnce(ctx context.Context) {
	if r == nil || r.Store == nil {
		return
	}
	if r.Flags != nil && !r.Flags.IsEnabled(ctx, service.FeatureReaper, true) {
		return
	}
	now := time.Now().UTC()

	staleAfter := r.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	cutoff := now.Add(-staleAfter)
	for _, id := range r.Store.StaleProcessing(cutoff) {
		r.reap(ctx, id, cutoff)
	}

	evictAfter := r.EvictAfter
	if evictAfter <= 0 {
		evictAfter = 30 * time.Minute
	}
	if evicted := r.Store.EvictTerminal(now.Add(-evictAfter)); evicted > 0 && r.Logger != nil {
		r.Logger.Info("terminal records evicted", zap.Int("count", evicted))
	}
}

// reap forces one stale Processing record to TimedOut and runs the retry
// gate, exactly as if the owning worker had reported a timeout.
func (r *Reaper) reap(ctx context.Context, recordID string, cutoff time.Time) {
	attempt := 0
	snapshot, applied, _ := r.Store.Update(ctx, recordID, func(rec *models.ProcessingRecord) bool {
		// Recheck under the store lock: the worker may have finished in the
		// meantime.
		if rec.Status != models.StatusProcessing || rec.LastUpdatedAt.After(cutoff) {
			return false
		}
		attempt = rec.RetryCount
		rec.Status = models.StatusTimedOut
		rec.AnalysisError = "analysis stalled past staleness threshold"
		return true
	})
	if !applied {
		return
	}
	if r.Logger != nil {
		r.Logger.Warn("stale processing record reclaimed",
			zap.String("record_id", recordID),
			zap.Time("last_updated_at", snapshot.LastUpdatedAt))
	}
	retryGate(ctx, r.Store, r.Queue, r.Logger, recordID, attempt, r.MaxRetries)
}
