package record

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradepulse/internal/models"
	"tradepulse/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// The store only saves and loads processing records; everything else is a
// no-op.
type stubRepo struct {
	mu      sync.Mutex
	saves   []models.ProcessingRecord
	saveErr error
	load    []models.ProcessingRecord
	loadErr error
}

func (s *stubRepo) SaveProcessingRecord(ctx context.Context, item *models.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves = append(s.saves, *item)
	return nil
}

func (s *stubRepo) GetProcessingRecord(ctx context.Context, id string) (*models.ProcessingRecord, error) {
	return nil, nil
}

func (s *stubRepo) LoadProcessingRecords(ctx context.Context) ([]models.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]models.ProcessingRecord, len(s.load))
	copy(out, s.load)
	return out, nil
}

func (s *stubRepo) ListProcessingRecords(ctx context.Context, params repository.ListRecordsParams) ([]models.ProcessingRecord, error) {
	return nil, nil
}

func (s *stubRepo) CountProcessingRecords(ctx context.Context, params repository.ListRecordsParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) InsertRawItem(ctx context.Context, item *models.RawItem) error { return nil }

func (s *stubRepo) SavePosition(ctx context.Context, item *models.Position) error { return nil }

func (s *stubRepo) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	return nil, nil
}

func (s *stubRepo) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	return nil, nil
}

func (s *stubRepo) CountPositions(ctx context.Context, params repository.ListPositionsParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	return nil, nil
}

func (s *stubRepo) ClosePosition(ctx context.Context, id string, realizedPnL decimal.Decimal, closedAt time.Time) error {
	return nil
}

func (s *stubRepo) InsertOrder(ctx context.Context, item *models.Order) error { return nil }

func (s *stubRepo) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	return nil, nil
}

func (s *stubRepo) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	return nil, nil
}

func (s *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	return nil
}

func (s *stubRepo) ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error) {
	return nil, nil
}

func (s *stubRepo) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *stubRepo) lastSave() (models.ProcessingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return models.ProcessingRecord{}, false
	}
	return s.saves[len(s.saves)-1], true
}
