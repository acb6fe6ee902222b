package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradepulse/internal/models"
	"tradepulse/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Pipeline tests touch only a subset; the rest are no-ops.
type stubRepo struct {
	mu       sync.Mutex
	records  map[string]models.ProcessingRecord
	saves    []models.ProcessingRecord
	rawItems []models.RawItem
	pass     map[string]models.Position
	orders   []models.Order
	settings map[string]models.SystemSetting
	saveErr  error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		records:  make(map[string]models.ProcessingRecord),
		pass:     make(map[string]models.Position),
		settings: make(map[string]models.SystemSetting),
	}
}

func (s *stubRepo) SaveProcessingRecord(ctx context.Context, item *models.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records[item.ID] = *item
	s.saves = append(s.saves, *item)
	return nil
}

func (s *stubRepo) GetProcessingRecord(ctx context.Context, id string) (*models.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		out := rec
		return &out, nil
	}
	return nil, nil
}

func (s *stubRepo) LoadProcessingRecords(ctx context.Context) ([]models.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProcessingRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubRepo) ListProcessingRecords(ctx context.Context, params repository.ListRecordsParams) ([]models.ProcessingRecord, error) {
	return nil, nil
}

func (s *stubRepo) CountProcessingRecords(ctx context.Context, params repository.ListRecordsParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) InsertRawItem(ctx context.Context, item *models.RawItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawItems = append(s.rawItems, *item)
	return nil
}

func (s *stubRepo) SavePosition(ctx context.Context, item *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pass[item.PositionID] = *item
	return nil
}

func (s *stubRepo) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pass[id]; ok {
		out := p
		return &out, nil
	}
	return nil, nil
}

func (s *stubRepo) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	return nil, nil
}

func (s *stubRepo) CountPositions(ctx context.Context, params repository.ListPositionsParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Position, 0, len(s.pass))
	for _, p := range s.pass {
		if p.Status == models.PositionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubRepo) ClosePosition(ctx context.Context, id string, realizedPnL decimal.Decimal, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pass[id]; ok {
		p.Status = models.PositionClosed
		p.RealizedPnL = realizedPnL
		p.ClosedAt = &closedAt
		s.pass[id] = p
	}
	return nil
}

func (s *stubRepo) InsertOrder(ctx context.Context, item *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, *item)
	return nil
}

func (s *stubRepo) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	return nil, nil
}

func (s *stubRepo) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.settings[key]; ok {
		out := item
		return &out, nil
	}
	return nil, nil
}

func (s *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[item.Key] = *item
	return nil
}

func (s *stubRepo) ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error) {
	return nil, nil
}

func (s *stubRepo) savedRecord(id string) (models.ProcessingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *stubRepo) rawItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rawItems)
}

func (s *stubRepo) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// statusTrail returns the sequence of statuses flushed for one record.
func (s *stubRepo) statusTrail(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var trail []string
	for _, rec := range s.saves {
		if rec.ID == id {
			trail = append(trail, rec.Status)
		}
	}
	return trail
}
