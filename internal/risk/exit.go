package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
)

// ExitAction is one market close the monitor should place. Tier is the
// index into the position's tier list, -1 for stop-loss.
type ExitAction struct {
	Kind     string
	Tier     int
	Quantity decimal.Decimal
}

func (a ExitAction) Reason() string {
	if a.Kind == ExitStopLoss {
		return ExitStopLoss
	}
	return fmt.Sprintf("take_profit_tier_%d", a.Tier+1)
}

// PnLFraction returns unrealized pnl relative to entry, positive in favor of
// the position: price/entry-1 for longs, entry/price-1 for shorts.
func PnLFraction(side string, entry, price decimal.Decimal) decimal.Decimal {
	if entry.Sign() <= 0 || price.Sign() <= 0 {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	if side == SideShort {
		return entry.Div(price).Sub(one)
	}
	return price.Div(entry).Sub(one)
}

// PlanExit returns the close actions for one evaluation pass at the given
// price. A stop-loss hit closes the full remainder and suppresses tier
// checks. Tiers fire in ascending trigger order, each at most once, with
// quantities capped at what is still open.
func PlanExit(p *Position, price decimal.Decimal) []ExitAction {
	if p == nil || p.RemainingQuantity.Sign() <= 0 {
		return nil
	}
	pnl := PnLFraction(p.Side, p.EntryPrice, price)
	if p.Params.StopLossFraction.Sign() > 0 && pnl.LessThanOrEqual(p.Params.StopLossFraction.Neg()) {
		return []ExitAction{{Kind: ExitStopLoss, Tier: -1, Quantity: p.RemainingQuantity}}
	}
	remaining := p.RemainingQuantity
	var actions []ExitAction
	for i := range p.Tiers {
		if remaining.Sign() <= 0 {
			break
		}
		tier := p.Tiers[i]
		if pnl.LessThan(tier.TriggerFraction) {
			// Tiers are ascending; later ones cannot trigger either.
			break
		}
		if tier.Executed {
			continue
		}
		qty := p.OriginalQuantity.Mul(tier.CloseFraction)
		if qty.GreaterThan(remaining) {
			qty = remaining
		}
		if qty.Sign() <= 0 {
			continue
		}
		actions = append(actions, ExitAction{Kind: ExitTakeProfit, Tier: i, Quantity: qty})
		remaining = remaining.Sub(qty)
	}
	return actions
}
