package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradepulse/internal/client/exchange"
	"tradepulse/internal/client/feed"
	"tradepulse/internal/models"
	"tradepulse/internal/record"
	"tradepulse/internal/repository"
	"tradepulse/internal/risk"
	"tradepulse/internal/service"
)

const previewLimit = 500

// Source lists recently captured posts.
type Source interface {
	LatestItems(ctx context.Context, accounts []string, limit int) ([]feed.Item, error)
}

// Trader is the slice of the exchange client the ingestion loop needs to
// turn a signal into a position.
type Trader interface {
	AvailableBalance(ctx context.Context) (decimal.Decimal, error)
	Price(ctx context.Context, instrument string) (decimal.Decimal, error)
	SymbolFilters(ctx context.Context, instrument string) (exchange.SymbolFilters, error)
	PlaceMarketOrder(ctx context.Context, instrument, direction string, quantity decimal.Decimal) (*exchange.Confirmation, error)
	SetLeverage(ctx context.Context, instrument string, leverage int) error
}

// Ingestor runs the poll tick: pull new items into the store and queue, then
// drain finished analyses into orders.
type Ingestor struct {
	Source   Source
	Store    *record.Store
	Queue    *Queue
	Cache    *ResultCache
	Trader   Trader
	Registry *risk.Registry
	Repo     repository.Repository
	Filter   *SignalFilter
	Flags    *service.SystemSettingsService
	Logger   *zap.Logger

	Accounts    []string
	PageLimit   int
	EntryParams risk.StrategyParams
	Leverage    int

	leveraged map[string]struct{}
}

// Run polls on the given interval until the context is cancelled.
func (ing *Ingestor) Run(ctx context.Context, interval time.Duration) error {
	if ing == nil {
		return nil
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if err := ing.RunOnce(ctx); err != nil && ing.Logger != nil {
		ing.Logger.Warn("ingest tick failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := ing.RunOnce(ctx); err != nil && ing.Logger != nil {
				ing.Logger.Warn("ingest tick failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes a single tick. A failed feed fetch only skips the intake
// half; cached analysis results still drain.
func (ing *Ingestor) RunOnce(ctx context.Context) error {
	if ing == nil || ing.Store == nil {
		return nil
	}
	if ing.Flags == nil || ing.Flags.IsEnabled(ctx, service.FeatureIngest, true) {
		items, err := ing.Source.LatestItems(ctx, ing.Accounts, ing.PageLimit)
		if err != nil {
			if ing.Logger != nil && ctx.Err() == nil {
				ing.Logger.Warn("feed fetch failed", zap.Error(err))
			}
		} else {
			for i := range items {
				ing.ingestItem(ctx, &items[i])
			}
		}
	}
	ing.drainResults(ctx)
	return nil
}

func (ing *Ingestor) ingestItem(ctx context.Context, item *feed.Item) {
	if item.ID == "" {
		return
	}
	if ing.Store.Exists(item.ID) {
		return
	}
	rec := models.ProcessingRecord{
		ID:            item.ID,
		SourceAccount: item.Account,
		CapturedAt:    item.CreatedAt,
		PreviewText:   truncateRunes(item.Text, previewLimit),
		Status:        models.StatusPending,
	}
	if err := ing.Store.Create(ctx, rec); err != nil {
		if errors.Is(err, record.ErrExists) {
			return
		}
		// Flush failure: the record is tracked in memory, keep going.
		if ing.Logger != nil {
			ing.Logger.Warn("record flush failed on create", zap.String("record_id", item.ID), zap.Error(err))
		}
	}
	ing.Queue.Enqueue(Task{RecordID: item.ID})
	if ing.Repo != nil {
		raw := item.Raw
		if len(raw) == 0 {
			raw, _ = json.Marshal(item)
		}
		audit := &models.RawItem{
			ItemID:     item.ID,
			Account:    item.Account,
			Payload:    datatypes.JSON(raw),
			CapturedAt: item.CreatedAt,
		}
		if err := ing.Repo.InsertRawItem(ctx, audit); err != nil && ing.Logger != nil {
			ing.Logger.Warn("raw item audit insert failed", zap.String("item_id", item.ID), zap.Error(err))
		}
	}
	if ing.Logger != nil {
		ing.Logger.Info("item ingested",
			zap.String("record_id", item.ID),
			zap.String("account", item.Account))
	}
}

func (ing *Ingestor) drainResults(ctx context.Context) {
	if ing.Cache == nil {
		return
	}
	results := ing.Cache.Drain()
	if len(results) == 0 {
		return
	}
	tradingEnabled := ing.Flags == nil || ing.Flags.IsEnabled(ctx, service.FeatureTrading, true)
	for recordID, outcome := range results {
		rec, ok := ing.Store.Get(recordID)
		if !ok || rec.Status != models.StatusDone {
			continue
		}
		sig, ok := BuildSignal(recordID, outcome)
		if !ok {
			if ing.Logger != nil {
				ing.Logger.Debug("no trade intent", zap.String("record_id", recordID))
			}
			continue
		}
		if reason, ok := ing.Filter.Check(sig); !ok {
			ing.markSkipped(ctx, sig, reason)
			continue
		}
		if !tradingEnabled {
			ing.markSkipped(ctx, sig, "trading_disabled")
			continue
		}
		ing.placeEntry(ctx, sig)
	}
}

// placeEntry sizes and places the market order for one signal. Any rejection
// drops the signal; the record stays Done with the reason recorded.
func (ing *Ingestor) placeEntry(ctx context.Context, sig TradeSignal) {
	if ing.Trader == nil || ing.Registry == nil {
		ing.markSkipped(ctx, sig, "trading_not_wired")
		return
	}
	price, err := ing.Trader.Price(ctx, sig.Instrument)
	if err != nil {
		ing.warnEntry(sig, "price fetch failed", err)
		ing.markSkipped(ctx, sig, "price_unavailable")
		return
	}
	balance, err := ing.Trader.AvailableBalance(ctx)
	if err != nil {
		ing.warnEntry(sig, "balance fetch failed", err)
		ing.markSkipped(ctx, sig, "balance_unavailable")
		return
	}
	filters, err := ing.Trader.SymbolFilters(ctx, sig.Instrument)
	if err != nil {
		ing.warnEntry(sig, "symbol lookup failed", err)
		ing.markSkipped(ctx, sig, "instrument_unavailable")
		return
	}
	quantity := risk.OrderQuantity(balance, ing.EntryParams.PositionSizeFraction, price, filters)
	if quantity.IsZero() {
		ing.markSkipped(ctx, sig, "quantity_not_placeable")
		return
	}
	ing.ensureLeverage(ctx, sig.Instrument)

	conf, err := ing.Trader.PlaceMarketOrder(ctx, sig.Instrument, sig.Direction, quantity)
	if err != nil {
		ing.warnEntry(sig, "order rejected", err)
		ing.markSkipped(ctx, sig, "order_rejected: "+err.Error())
		return
	}
	entryPrice := price
	if conf.AvgPrice.Sign() > 0 {
		entryPrice = conf.AvgPrice
	}
	filled := quantity
	if conf.Quantity.Sign() > 0 {
		filled = conf.Quantity
	}
	side, err := risk.SideForDirection(sig.Direction)
	if err != nil {
		ing.markSkipped(ctx, sig, "order_rejected: "+err.Error())
		return
	}

	pos := risk.NewPosition(uuid.NewString(), sig.Instrument, side, entryPrice, filled, ing.EntryParams, sig.RecordID)
	if ing.Repo != nil {
		order := &models.Order{
			PositionID:      pos.ID,
			RecordID:        sig.RecordID,
			Instrument:      sig.Instrument,
			Side:            conf.Side,
			Purpose:         models.OrderPurposeEntry,
			Quantity:        filled,
			Price:           entryPrice,
			ExchangeOrderID: conf.OrderID,
			DryRun:          conf.DryRun,
			Reason:          "signal",
		}
		if err := ing.Repo.InsertOrder(ctx, order); err != nil && ing.Logger != nil {
			ing.Logger.Error("failed to record entry order", zap.String("position_id", pos.ID), zap.Error(err))
		}
		if err := ing.Repo.SavePosition(ctx, pos.ToModel()); err != nil && ing.Logger != nil {
			ing.Logger.Error("failed to persist position", zap.String("position_id", pos.ID), zap.Error(err))
		}
	}
	ing.Registry.Add(pos)

	info, _ := json.Marshal(map[string]any{
		"position_id": pos.ID,
		"order_id":    conf.OrderID,
		"instrument":  sig.Instrument,
		"direction":   sig.Direction,
		"quantity":    filled.String(),
		"entry_price": entryPrice.String(),
		"confidence":  sig.Confidence,
		"dry_run":     conf.DryRun,
	})
	ing.setExecutionInfo(ctx, sig.RecordID, info)

	if ing.Logger != nil {
		ing.Logger.Info("entry order placed",
			zap.String("record_id", sig.RecordID),
			zap.String("position_id", pos.ID),
			zap.String("instrument", sig.Instrument),
			zap.String("direction", sig.Direction),
			zap.String("quantity", filled.String()),
			zap.String("entry_price", entryPrice.String()),
			zap.Bool("dry_run", conf.DryRun))
	}
}

// ensureLeverage sets the configured leverage once per instrument.
// Best effort: a failure is logged and the entry proceeds.
func (ing *Ingestor) ensureLeverage(ctx context.Context, instrument string) {
	if ing.Leverage <= 0 {
		return
	}
	if ing.leveraged == nil {
		ing.leveraged = make(map[string]struct{})
	}
	if _, ok := ing.leveraged[instrument]; ok {
		return
	}
	if err := ing.Trader.SetLeverage(ctx, instrument, ing.Leverage); err != nil {
		if ing.Logger != nil {
			ing.Logger.Warn("leverage setup failed", zap.String("instrument", instrument), zap.Error(err))
		}
		return
	}
	ing.leveraged[instrument] = struct{}{}
}

func (ing *Ingestor) markSkipped(ctx context.Context, sig TradeSignal, reason string) {
	info, _ := json.Marshal(map[string]any{
		"skipped":    reason,
		"instrument": sig.Instrument,
	})
	ing.setExecutionInfo(ctx, sig.RecordID, info)
	if ing.Logger != nil {
		ing.Logger.Info("signal dropped",
			zap.String("record_id", sig.RecordID),
			zap.String("instrument", sig.Instrument),
			zap.String("reason", reason))
	}
}

func (ing *Ingestor) setExecutionInfo(ctx context.Context, recordID string, info []byte) {
	_, _, err := ing.Store.Update(ctx, recordID, func(r *models.ProcessingRecord) bool {
		if r.Status != models.StatusDone {
			return false
		}
		r.ExecutionInfo = datatypes.JSON(info)
		return true
	})
	if err != nil && !errors.Is(err, record.ErrNotFound) && ing.Logger != nil {
		ing.Logger.Warn("execution info flush failed", zap.String("record_id", recordID), zap.Error(err))
	}
}

func (ing *Ingestor) warnEntry(sig TradeSignal, msg string, err error) {
	if ing.Logger == nil {
		return
	}
	ing.Logger.Warn(msg,
		zap.String("record_id", sig.RecordID),
		zap.String("instrument", sig.Instrument),
		zap.Error(err))
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
