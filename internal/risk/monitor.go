package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradepulse/internal/client/exchange"
	"tradepulse/internal/models"
)

func (r *Registry) runMonitor(ctx context.Context, p *Position) {
	interval := r.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := r.evaluateOnce(ctx, p); done {
				return
			}
		}
	}
}

// evaluateOnce runs one poll of the exit rules. It returns true once the
// position is fully closed. A failed price fetch or close order leaves all
// state untouched so the next poll retries.
func (r *Registry) evaluateOnce(ctx context.Context, p *Position) bool {
	price, err := r.Prices.Price(ctx, p.Instrument)
	if err != nil {
		if r.Logger != nil && ctx.Err() == nil {
			r.Logger.Warn("price fetch failed, skipping evaluation",
				zap.String("position_id", p.ID),
				zap.String("instrument", p.Instrument),
				zap.Error(err))
		}
		return false
	}
	for _, action := range PlanExit(p, price) {
		conf, err := r.Trader.CloseMarketOrder(ctx, p.Instrument, p.Side, action.Quantity)
		if err != nil {
			if r.Logger != nil && ctx.Err() == nil {
				r.Logger.Warn("close order failed, will retry",
					zap.String("position_id", p.ID),
					zap.String("reason", action.Reason()),
					zap.String("quantity", action.Quantity.String()),
					zap.Error(err))
			}
			return false
		}
		r.applyClose(ctx, p, action, price, conf)
	}
	if p.RemainingQuantity.Sign() <= 0 {
		r.finalize(ctx, p)
		return true
	}
	return false
}

// applyClose folds one accepted close order into the position and persists
// the new state before the next action runs.
func (r *Registry) applyClose(ctx context.Context, p *Position, action ExitAction, price decimal.Decimal, conf *exchange.Confirmation) {
	closePrice := price
	if conf != nil && conf.AvgPrice.Sign() > 0 {
		closePrice = conf.AvgPrice
	}
	var pnl decimal.Decimal
	if p.Side == SideShort {
		pnl = p.EntryPrice.Sub(closePrice).Mul(action.Quantity)
	} else {
		pnl = closePrice.Sub(p.EntryPrice).Mul(action.Quantity)
	}
	if action.Kind == ExitTakeProfit && action.Tier >= 0 && action.Tier < len(p.Tiers) {
		p.Tiers[action.Tier].Executed = true
	}
	p.RemainingQuantity = p.RemainingQuantity.Sub(action.Quantity)
	if p.RemainingQuantity.Sign() < 0 {
		p.RemainingQuantity = decimal.Zero
	}
	p.RealizedPnL = p.RealizedPnL.Add(pnl)

	if r.Repo != nil {
		order := &models.Order{
			PositionID: p.ID,
			RecordID:   p.OriginRecordID,
			Instrument: p.Instrument,
			Purpose:    orderPurpose(action.Kind),
			Quantity:   action.Quantity,
			Price:      closePrice,
			Reason:     action.Reason(),
		}
		if conf != nil {
			order.Side = conf.Side
			order.ExchangeOrderID = conf.OrderID
			order.DryRun = conf.DryRun
		}
		if err := r.Repo.InsertOrder(ctx, order); err != nil && r.Logger != nil {
			r.Logger.Error("failed to record close order", zap.String("position_id", p.ID), zap.Error(err))
		}
		if err := r.Repo.SavePosition(ctx, p.ToModel()); err != nil && r.Logger != nil {
			r.Logger.Error("failed to persist position state", zap.String("position_id", p.ID), zap.Error(err))
		}
	}
	if r.Logger != nil {
		r.Logger.Info("position reduced",
			zap.String("position_id", p.ID),
			zap.String("reason", action.Reason()),
			zap.String("quantity", action.Quantity.String()),
			zap.String("close_price", closePrice.String()),
			zap.String("remaining", p.RemainingQuantity.String()),
			zap.String("realized_pnl", p.RealizedPnL.StringFixed(4)))
	}
}

func (r *Registry) finalize(ctx context.Context, p *Position) {
	if r.Repo != nil {
		if err := r.Repo.ClosePosition(ctx, p.ID, p.RealizedPnL, time.Now().UTC()); err != nil && r.Logger != nil {
			r.Logger.Error("failed to mark position closed", zap.String("position_id", p.ID), zap.Error(err))
		}
	}
	if r.Logger != nil {
		r.Logger.Info("position closed",
			zap.String("position_id", p.ID),
			zap.String("instrument", p.Instrument),
			zap.String("realized_pnl", p.RealizedPnL.StringFixed(4)))
	}
}

func orderPurpose(kind string) string {
	if kind == ExitStopLoss {
		return models.OrderPurposeStopLoss
	}
	return models.OrderPurposeTakeProfit
}
