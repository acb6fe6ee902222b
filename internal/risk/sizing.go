package risk

import (
	"github.com/shopspring/decimal"

	"tradepulse/internal/client/exchange"
)

// OrderQuantity sizes an entry order as a balance fraction at the given
// price, snapped down to the exchange quantity step. Zero means the order
// is not placeable under the symbol's trading rules.
func OrderQuantity(balance, fraction, price decimal.Decimal, filters exchange.SymbolFilters) decimal.Decimal {
	if balance.Sign() <= 0 || fraction.Sign() <= 0 || price.Sign() <= 0 {
		return decimal.Zero
	}
	qty := balance.Mul(fraction).Div(price)
	if filters.StepSize.Sign() > 0 {
		qty = qty.Div(filters.StepSize).Floor().Mul(filters.StepSize)
	}
	if qty.Sign() <= 0 {
		return decimal.Zero
	}
	if filters.MinQuantity.Sign() > 0 && qty.LessThan(filters.MinQuantity) {
		return decimal.Zero
	}
	if filters.MinNotional.Sign() > 0 && qty.Mul(price).LessThan(filters.MinNotional) {
		return decimal.Zero
	}
	return qty
}
