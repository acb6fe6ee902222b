package risk

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradepulse/internal/client/exchange"
	"tradepulse/internal/repository"
)

// PriceFeed supplies current prices for monitored instruments.
type PriceFeed interface {
	Price(ctx context.Context, instrument string) (decimal.Decimal, error)
}

// CloseExecutor reduces open positions on the exchange.
type CloseExecutor interface {
	CloseMarketOrder(ctx context.Context, instrument, positionSide string, quantity decimal.Decimal) (*exchange.Confirmation, error)
}

// Registry runs one monitor goroutine per open position. Monitors stop and
// deregister themselves when their position is fully closed.
type Registry struct {
	Repo     repository.Repository
	Logger   *zap.Logger
	Prices   PriceFeed
	Trader   CloseExecutor
	Interval time.Duration

	mu          sync.Mutex
	base        context.Context
	cancels     map[string]context.CancelFunc
	instruments map[string]string
	wg          sync.WaitGroup
}

// Start binds the base context new monitors derive from. Call once before
// adding positions.
func (r *Registry) Start(ctx context.Context) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.base = ctx
	r.mu.Unlock()
}

// Add spawns a monitor for the position. Adding an already monitored
// position is a no-op.
func (r *Registry) Add(p *Position) {
	if r == nil || p == nil || p.ID == "" {
		return
	}
	r.mu.Lock()
	if r.cancels == nil {
		r.cancels = make(map[string]context.CancelFunc)
		r.instruments = make(map[string]string)
	}
	if _, ok := r.cancels[p.ID]; ok {
		r.mu.Unlock()
		return
	}
	base := r.base
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	r.cancels[p.ID] = cancel
	r.instruments[p.ID] = p.Instrument
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.release(p.ID)
		r.runMonitor(ctx, p)
	}()

	if r.Logger != nil {
		r.Logger.Info("position monitor started",
			zap.String("position_id", p.ID),
			zap.String("instrument", p.Instrument),
			zap.String("side", p.Side),
			zap.String("quantity", p.RemainingQuantity.String()))
	}
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	if ok {
		delete(r.cancels, id)
		delete(r.instruments, id)
	}
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll cancels every monitor and waits for them to exit.
func (r *Registry) StopAll() {
	if r == nil {
		return
	}
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.cancels))
	for _, cancel := range r.cancels {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	r.wg.Wait()
}

// Active returns the number of running monitors.
func (r *Registry) Active() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// ActiveInstruments returns the distinct instruments under monitoring, used
// to drive price stream subscriptions.
func (r *Registry) ActiveInstruments() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(r.instruments))
	out := make([]string, 0, len(r.instruments))
	for _, instrument := range r.instruments {
		if _, ok := seen[instrument]; ok {
			continue
		}
		seen[instrument] = struct{}{}
		out = append(out, instrument)
	}
	return out
}

// ReloadOpenPositions rebuilds monitors for every open position row, used at
// startup. Rows that fail to decode are skipped with a warning.
func (r *Registry) ReloadOpenPositions(ctx context.Context) (int, error) {
	if r == nil || r.Repo == nil {
		return 0, nil
	}
	rows, err := r.Repo.ListOpenPositions(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for i := range rows {
		p, err := PositionFromModel(&rows[i])
		if err != nil {
			if r.Logger != nil {
				r.Logger.Warn("skipping undecodable position row", zap.Error(err))
			}
			continue
		}
		r.Add(p)
		added++
	}
	return added, nil
}
