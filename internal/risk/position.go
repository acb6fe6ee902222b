package risk

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"tradepulse/internal/models"
)

const (
	SideLong  = "long"
	SideShort = "short"
)

// SideForDirection maps a signal direction to a position side.
func SideForDirection(direction string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "buy":
		return SideLong, nil
	case "sell":
		return SideShort, nil
	default:
		return "", fmt.Errorf("no position side for direction %q", direction)
	}
}

// Position is the in-memory view of one open futures position. The monitor
// goroutine owns it; nothing else mutates it after creation.
type Position struct {
	ID                string
	Instrument        string
	Side              string
	EntryPrice        decimal.Decimal
	OriginalQuantity  decimal.Decimal
	RemainingQuantity decimal.Decimal
	RealizedPnL       decimal.Decimal
	Tiers             []TierState
	Params            StrategyParams
	OriginRecordID    string
	OpenedAt          time.Time
}

func NewPosition(id, instrument, side string, entryPrice, quantity decimal.Decimal, params StrategyParams, originRecordID string) *Position {
	return &Position{
		ID:                id,
		Instrument:        strings.ToUpper(strings.TrimSpace(instrument)),
		Side:              side,
		EntryPrice:        entryPrice,
		OriginalQuantity:  quantity,
		RemainingQuantity: quantity,
		RealizedPnL:       decimal.Zero,
		Tiers:             NewTierStates(params.Tiers),
		Params:            params,
		OriginRecordID:    originRecordID,
		OpenedAt:          time.Now().UTC(),
	}
}

func (p *Position) ToModel() *models.Position {
	tiers, _ := json.Marshal(p.Tiers)
	params, _ := json.Marshal(p.Params)
	return &models.Position{
		PositionID:        p.ID,
		Instrument:        p.Instrument,
		Side:              p.Side,
		EntryPrice:        p.EntryPrice,
		OriginalQuantity:  p.OriginalQuantity,
		RemainingQuantity: p.RemainingQuantity,
		RealizedPnL:       p.RealizedPnL,
		TiersState:        datatypes.JSON(tiers),
		StrategyConfig:    datatypes.JSON(params),
		Status:            models.PositionOpen,
		OriginRecordID:    p.OriginRecordID,
		OpenedAt:          p.OpenedAt,
	}
}

// PositionFromModel rebuilds the in-memory position from a stored row, used
// when monitors are recreated after a restart.
func PositionFromModel(m *models.Position) (*Position, error) {
	if m == nil {
		return nil, fmt.Errorf("position row is nil")
	}
	if m.Side != SideLong && m.Side != SideShort {
		return nil, fmt.Errorf("position %s has invalid side %q", m.PositionID, m.Side)
	}
	p := &Position{
		ID:                m.PositionID,
		Instrument:        m.Instrument,
		Side:              m.Side,
		EntryPrice:        m.EntryPrice,
		OriginalQuantity:  m.OriginalQuantity,
		RemainingQuantity: m.RemainingQuantity,
		RealizedPnL:       m.RealizedPnL,
		OriginRecordID:    m.OriginRecordID,
		OpenedAt:          m.OpenedAt,
	}
	if len(m.TiersState) > 0 {
		if err := json.Unmarshal(m.TiersState, &p.Tiers); err != nil {
			return nil, fmt.Errorf("position %s has invalid tiers state: %w", m.PositionID, err)
		}
	}
	if len(m.StrategyConfig) > 0 {
		if err := json.Unmarshal(m.StrategyConfig, &p.Params); err != nil {
			return nil, fmt.Errorf("position %s has invalid strategy config: %w", m.PositionID, err)
		}
	}
	return p, nil
}
