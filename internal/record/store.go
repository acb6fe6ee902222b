package record

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradepulse/internal/models"
	"tradepulse/internal/repository"
)

var (
	ErrExists   = errors.New("record already exists")
	ErrNotFound = errors.New("record not found")
)

// Store is the single source of truth for per-item processing state. The
// in-memory map is mutated under a mutex and every mutation is flushed
// write-through to the repository after the lock is released, so no lock is
// held across storage I/O. Per-id transitions are serialized by the state
// machine itself (only one worker ever holds a record in Processing), which
// is what makes the unguarded flush ordering safe.
type Store struct {
	repo   repository.Repository
	logger *zap.Logger

	mu      sync.Mutex
	records map[string]*models.ProcessingRecord
	// seen survives terminal eviction so dedup stays correct for ids whose
	// full record left the working set.
	seen map[string]struct{}
}

func NewStore(repo repository.Repository, logger *zap.Logger) *Store {
	return &Store{
		repo:    repo,
		logger:  logger,
		records: map[string]*models.ProcessingRecord{},
		seen:    map[string]struct{}{},
	}
}

// Load rebuilds the in-memory state from storage. Terminal records older than
// evictAfter contribute only their id to the dedup set; everything else joins
// the working set. Storage failure here must abort startup.
func (s *Store) Load(ctx context.Context, evictAfter time.Duration) (int, error) {
	if s == nil || s.repo == nil {
		return 0, errors.New("record store: no repository")
	}
	items, err := s.repo.LoadProcessingRecords(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-evictAfter)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range items {
		item := items[i]
		s.seen[item.ID] = struct{}{}
		if evictAfter > 0 && item.Terminal() && item.LastUpdatedAt.Before(cutoff) {
			continue
		}
		s.records[item.ID] = &item
	}
	return len(items), nil
}

// RecoverInterrupted applies crash-recovery transitions to records that a
// previous run left in a non-terminal state and returns the ids to enqueue.
// Processing and TimedOut remnants go through the normal retry gate (the
// interruption counts as an attempt); Pending records are re-enqueued as-is.
func (s *Store) RecoverInterrupted(ctx context.Context, maxRetries int) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	var enqueue []string
	var dirty []models.ProcessingRecord

	s.mu.Lock()
	for id, rec := range s.records {
		switch rec.Status {
		case models.StatusPending:
			enqueue = append(enqueue, id)
		case models.StatusProcessing, models.StatusTimedOut:
			rec.RetryCount++
			rec.AnalysisError = "processing interrupted by restart"
			if rec.RetryCount < maxRetries {
				rec.Status = models.StatusPending
				enqueue = append(enqueue, id)
			} else {
				rec.Status = models.StatusFailed
			}
			rec.LastUpdatedAt = now
			dirty = append(dirty, *rec)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for i := range dirty {
		if err := s.repo.SaveProcessingRecord(ctx, &dirty[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	sort.Strings(enqueue)
	return enqueue, firstErr
}

func (s *Store) Exists(id string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

// Get returns a copy of the record, so callers never share mutable state
// with the store.
func (s *Store) Get(id string) (models.ProcessingRecord, bool) {
	if s == nil {
		return models.ProcessingRecord{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return models.ProcessingRecord{}, false
	}
	return *rec, true
}

// Create inserts a new Pending record and flushes it. ErrExists guards the
// dedup invariant. A flush failure leaves the record in memory (dedup holds;
// durability catches up on the next transition) and is reported to the
// caller.
func (s *Store) Create(ctx context.Context, rec models.ProcessingRecord) error {
	if s == nil {
		return errors.New("record store is nil")
	}
	now := time.Now().UTC()
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	if rec.LastUpdatedAt.IsZero() {
		rec.LastUpdatedAt = now
	}

	s.mu.Lock()
	if _, ok := s.seen[rec.ID]; ok {
		s.mu.Unlock()
		return ErrExists
	}
	stored := rec
	s.records[rec.ID] = &stored
	s.seen[rec.ID] = struct{}{}
	s.mu.Unlock()

	return s.flush(ctx, rec)
}

// Update applies the mutator atomically under the store lock. The mutator
// returns false to reject the transition (e.g. a fenced-off stale worker), in
// which case nothing changes and nothing is flushed. On success the updated
// snapshot is flushed after the lock is released.
func (s *Store) Update(ctx context.Context, id string, fn func(*models.ProcessingRecord) bool) (models.ProcessingRecord, bool, error) {
	if s == nil {
		return models.ProcessingRecord{}, false, errors.New("record store is nil")
	}
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return models.ProcessingRecord{}, false, ErrNotFound
	}
	if !fn(rec) {
		snapshot := *rec
		s.mu.Unlock()
		return snapshot, false, nil
	}
	rec.LastUpdatedAt = time.Now().UTC()
	snapshot := *rec
	s.mu.Unlock()

	return snapshot, true, s.flush(ctx, snapshot)
}

// StaleProcessing returns ids of records sitting in Processing since before
// the cutoff.
func (s *Store) StaleProcessing(cutoff time.Time) []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, rec := range s.records {
		if rec.Status == models.StatusProcessing && rec.LastUpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// EvictTerminal drops terminal records older than the cutoff from the working
// set. Rows stay in storage and the ids stay in the dedup set.
func (s *Store) EvictTerminal(cutoff time.Time) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, rec := range s.records {
		if rec.Terminal() && rec.LastUpdatedAt.Before(cutoff) {
			delete(s.records, id)
			evicted++
		}
	}
	return evicted
}

// Stats reports working-set counts by status plus the dedup set size.
type Stats struct {
	WorkingSet int            `json:"working_set"`
	KnownIDs   int            `json:"known_ids"`
	ByStatus   map[string]int `json:"by_status"`
}

func (s *Store) Stats() Stats {
	out := Stats{ByStatus: map[string]int{}}
	if s == nil {
		return out
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out.WorkingSet = len(s.records)
	out.KnownIDs = len(s.seen)
	for _, rec := range s.records {
		out.ByStatus[rec.Status]++
	}
	return out
}

func (s *Store) flush(ctx context.Context, snapshot models.ProcessingRecord) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SaveProcessingRecord(ctx, &snapshot); err != nil {
		if s.logger != nil {
			s.logger.Error("record flush failed",
				zap.String("id", snapshot.ID),
				zap.String("status", snapshot.Status),
				zap.Error(err),
			)
		}
		return err
	}
	return nil
}
