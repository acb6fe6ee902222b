package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"tradepulse/internal/client/analysis"
	"tradepulse/internal/models"
	"tradepulse/internal/record"
)

// Analyzer turns one captured post into a structured outcome.
type Analyzer interface {
	Analyze(ctx context.Context, text, authorNote string) (*analysis.Outcome, error)
}

// WorkerPool drains the task queue with a fixed number of workers. Each task
// claims its record, runs analysis under a timeout, and either completes the
// record or sends it through the retry gate.
type WorkerPool struct {
	Store    *record.Store
	Queue    *Queue
	Cache    *ResultCache
	Analyzer Analyzer
	Logger   *zap.Logger

	Workers     int
	Timeout     time.Duration
	MaxRetries  int
	AuthorNotes map[string]string
}

// Run blocks until the context is cancelled.
func (w *WorkerPool) Run(ctx context.Context) error {
	if w == nil || w.Store == nil || w.Queue == nil {
		return nil
	}
	workers := w.Workers
	if workers <= 0 {
		workers = 3
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		idx := i
		g.Go(func() error {
			return w.runWorker(ctx, idx)
		})
	}
	return g.Wait()
}

func (w *WorkerPool) runWorker(ctx context.Context, idx int) error {
	for {
		task, err := w.Queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		w.handle(ctx, task, idx)
	}
}

func (w *WorkerPool) handle(ctx context.Context, task Task, idx int) {
	attempt := 0
	snapshot, claimed, err := w.Store.Update(ctx, task.RecordID, func(r *models.ProcessingRecord) bool {
		if r.Status != models.StatusPending {
			return false
		}
		attempt = r.RetryCount
		r.Status = models.StatusProcessing
		return true
	})
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			if w.Logger != nil {
				w.Logger.Debug("task for unknown record dropped", zap.String("record_id", task.RecordID))
			}
			return
		}
		// Flush failed but the claim holds in memory; keep going.
	}
	if !claimed {
		if w.Logger != nil {
			w.Logger.Debug("record not claimable",
				zap.String("record_id", task.RecordID),
				zap.String("status", snapshot.Status))
		}
		return
	}

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	note := ""
	if w.AuthorNotes != nil {
		note = w.AuthorNotes[snapshot.SourceAccount]
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	outcome, aerr := w.Analyzer.Analyze(actx, snapshot.PreviewText, note)
	cancel()

	if aerr != nil {
		if ctx.Err() != nil {
			// Shutdown: abandon with the record left in Processing; startup
			// recovery turns it back into an attempt.
			return
		}
		w.fail(ctx, task.RecordID, attempt, aerr)
		return
	}

	raw, _ := json.Marshal(outcome)
	_, applied, _ := w.Store.Update(ctx, task.RecordID, func(r *models.ProcessingRecord) bool {
		if r.Status != models.StatusProcessing || r.RetryCount != attempt {
			return false
		}
		r.Status = models.StatusDone
		r.AnalysisResult = datatypes.JSON(raw)
		r.AnalysisError = ""
		return true
	})
	if !applied {
		if w.Logger != nil {
			w.Logger.Debug("stale analysis outcome discarded", zap.String("record_id", task.RecordID))
		}
		return
	}
	if w.Cache != nil && outcome != nil {
		w.Cache.Put(task.RecordID, *outcome)
	}
	if w.Logger != nil {
		w.Logger.Info("record analyzed",
			zap.Int("worker", idx),
			zap.String("record_id", task.RecordID),
			zap.String("direction", outcome.Direction),
			zap.Int("confidence", outcome.Confidence))
	}
}

// fail moves a claimed record to TimedOut or Failed, then runs the retry
// gate. The intermediate status is flushed so a crash between the two steps
// is recovered as a burned attempt.
func (w *WorkerPool) fail(ctx context.Context, recordID string, attempt int, aerr error) {
	timedOut := errors.Is(aerr, context.DeadlineExceeded)
	_, applied, _ := w.Store.Update(ctx, recordID, func(r *models.ProcessingRecord) bool {
		if r.Status != models.StatusProcessing || r.RetryCount != attempt {
			return false
		}
		if timedOut {
			r.Status = models.StatusTimedOut
		} else {
			r.Status = models.StatusFailed
		}
		r.AnalysisError = aerr.Error()
		return true
	})
	if !applied {
		return
	}
	if w.Logger != nil {
		w.Logger.Warn("analysis attempt failed",
			zap.String("record_id", recordID),
			zap.Int("attempt", attempt+1),
			zap.Bool("timed_out", timedOut),
			zap.Error(aerr))
	}
	retryGate(ctx, w.Store, w.Queue, w.Logger, recordID, attempt, w.MaxRetries)
}

// retryGate advances a TimedOut or Failed record: back to Pending and onto
// the queue while attempts remain, terminal Failed once they are exhausted.
// Both the workers and the reaper funnel through here.
func retryGate(ctx context.Context, store *record.Store, queue *Queue, logger *zap.Logger, recordID string, attempt, maxRetries int) {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	requeue := false
	snapshot, applied, _ := store.Update(ctx, recordID, func(r *models.ProcessingRecord) bool {
		if r.Status != models.StatusTimedOut && r.Status != models.StatusFailed {
			return false
		}
		if r.RetryCount != attempt {
			return false
		}
		r.RetryCount++
		if r.RetryCount < maxRetries {
			r.Status = models.StatusPending
			requeue = true
		} else {
			r.Status = models.StatusFailed
		}
		return true
	})
	if !applied {
		return
	}
	if requeue {
		queue.Enqueue(Task{RecordID: recordID})
		if logger != nil {
			logger.Warn("analysis will retry",
				zap.String("record_id", recordID),
				zap.Int("attempts_used", snapshot.RetryCount),
				zap.Int("max_retries", maxRetries))
		}
		return
	}
	if logger != nil {
		logger.Error("record retries exhausted",
			zap.String("record_id", recordID),
			zap.Int("attempts_used", snapshot.RetryCount),
			zap.String("last_error", snapshot.AnalysisError))
	}
}
