package exchange

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	PositionSideLong  = "LONG"
	PositionSideShort = "SHORT"
	PositionSideBoth  = "BOTH"
)

// SymbolFilters carries the exchange trading rules needed to size an order.
type SymbolFilters struct {
	Symbol      string
	StepSize    decimal.Decimal
	MinQuantity decimal.Decimal
	MinNotional decimal.Decimal
}

// Confirmation is the normalized result of an accepted order.
type Confirmation struct {
	OrderID      string
	Symbol       string
	Side         string
	PositionSide string
	Quantity     decimal.Decimal
	AvgPrice     decimal.Decimal
	Status       string
	DryRun       bool
}

type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("exchange API error (%d, code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("exchange API error (%d): %s", e.Status, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Msg != "" {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Msg
	}
	return apiErr
}

func parseDecimalField(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty decimal field")
	}
	return decimal.NewFromString(s)
}
