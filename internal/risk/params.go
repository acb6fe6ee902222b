package risk

import (
	"sort"

	"github.com/shopspring/decimal"

	"tradepulse/internal/config"
)

// TierPolicy is one take-profit rung: close CloseFraction of the original
// quantity once unrealized pnl reaches TriggerFraction.
type TierPolicy struct {
	TriggerFraction decimal.Decimal `json:"trigger_fraction"`
	CloseFraction   decimal.Decimal `json:"close_fraction"`
}

// StrategyParams is the exit policy attached to a position at entry time.
// Later config changes do not touch positions already open.
type StrategyParams struct {
	PositionSizeFraction decimal.Decimal `json:"position_size_fraction"`
	StopLossFraction     decimal.Decimal `json:"stop_loss_fraction"`
	Tiers                []TierPolicy    `json:"tiers"`
}

// TierState is a TierPolicy plus its fire-once flag.
type TierState struct {
	TierPolicy
	Executed bool `json:"executed"`
}

// ParamsFromConfig converts the static trading config into strategy params.
func ParamsFromConfig(cfg config.TradingConfig) StrategyParams {
	out := StrategyParams{
		PositionSizeFraction: decimal.NewFromFloat(cfg.PositionSizeFraction),
		StopLossFraction:     decimal.NewFromFloat(cfg.StopLossFraction),
	}
	for _, t := range cfg.TakeProfitTiers {
		out.Tiers = append(out.Tiers, TierPolicy{
			TriggerFraction: decimal.NewFromFloat(t.TriggerFraction),
			CloseFraction:   decimal.NewFromFloat(t.CloseFraction),
		})
	}
	sortTiers(out.Tiers)
	return out
}

// NewTierStates builds the per-position tier flags, lowest trigger first.
func NewTierStates(tiers []TierPolicy) []TierState {
	if len(tiers) == 0 {
		return nil
	}
	sorted := make([]TierPolicy, len(tiers))
	copy(sorted, tiers)
	sortTiers(sorted)
	out := make([]TierState, 0, len(sorted))
	for _, t := range sorted {
		if t.CloseFraction.Sign() <= 0 {
			continue
		}
		out = append(out, TierState{TierPolicy: t})
	}
	return out
}

func sortTiers(tiers []TierPolicy) {
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].TriggerFraction.LessThan(tiers[j].TriggerFraction)
	})
}
