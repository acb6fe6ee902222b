package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradepulse/internal/models"
)

// Repository is the durable side of the pipeline: whole-record upserts for
// the record store, append-only audit rows, and position/order persistence.
type Repository interface {
	// Processing records (write-through from the record store).
	SaveProcessingRecord(ctx context.Context, item *models.ProcessingRecord) error
	GetProcessingRecord(ctx context.Context, id string) (*models.ProcessingRecord, error)
	LoadProcessingRecords(ctx context.Context) ([]models.ProcessingRecord, error)
	ListProcessingRecords(ctx context.Context, params ListRecordsParams) ([]models.ProcessingRecord, error)
	CountProcessingRecords(ctx context.Context, params ListRecordsParams) (int64, error)

	// Raw item audit log.
	InsertRawItem(ctx context.Context, item *models.RawItem) error

	// Positions.
	SavePosition(ctx context.Context, item *models.Position) error
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	ListPositions(ctx context.Context, params ListPositionsParams) ([]models.Position, error)
	CountPositions(ctx context.Context, params ListPositionsParams) (int64, error)
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	ClosePosition(ctx context.Context, id string, realizedPnL decimal.Decimal, closedAt time.Time) error

	// Orders.
	InsertOrder(ctx context.Context, item *models.Order) error
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.Order, error)
	CountOrders(ctx context.Context, params ListOrdersParams) (int64, error)

	// System settings.
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error)
}

type ListRecordsParams struct {
	Limit   int
	Offset  int
	Status  *string
	Account *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListPositionsParams struct {
	Limit      int
	Offset     int
	Status     *string
	Instrument *string
	OrderBy    string
	Asc        *bool
}

type ListOrdersParams struct {
	Limit      int
	Offset     int
	PositionID *string
	RecordID   *string
	Purpose    *string
	OrderBy    string
	Asc        *bool
}
