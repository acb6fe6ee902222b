package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Binance returns -4059 when the account is already in the requested
// position mode.
const codeNoChangeNeeded = -4059

// SetDualSidePosition switches the account between hedge and one-way mode.
func (c *Client) SetDualSidePosition(ctx context.Context, enabled bool) error {
	if c.dryRun {
		return nil
	}
	query := url.Values{}
	query.Set("dualSidePosition", strconv.FormatBool(enabled))
	_, err := c.do(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", query, true)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeNoChangeNeeded {
		return nil
	}
	return err
}

// SetLeverage sets the initial leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if c.dryRun {
		return nil
	}
	if leverage <= 0 {
		return fmt.Errorf("leverage must be positive")
	}
	query := url.Values{}
	query.Set("symbol", strings.ToUpper(symbol))
	query.Set("leverage", strconv.Itoa(leverage))
	_, err := c.do(ctx, http.MethodPost, "/fapi/v1/leverage", query, true)
	return err
}

// PlaceMarketOrder opens a position with a market order. direction is
// "buy" or "sell" from the signal.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol, direction string, quantity decimal.Decimal) (*Confirmation, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if quantity.Sign() <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	var side, positionSide string
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "buy":
		side, positionSide = SideBuy, PositionSideLong
	case "sell":
		side, positionSide = SideSell, PositionSideShort
	default:
		return nil, fmt.Errorf("invalid direction %q", direction)
	}
	if !c.dualSide {
		positionSide = PositionSideBoth
	}
	return c.submitMarketOrder(ctx, symbol, side, positionSide, quantity, false)
}

// CloseMarketOrder reduces an open position with a market order.
// positionSide is "long" or "short".
func (c *Client) CloseMarketOrder(ctx context.Context, symbol, positionSide string, quantity decimal.Decimal) (*Confirmation, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if quantity.Sign() <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	var side, posSide string
	switch strings.ToLower(strings.TrimSpace(positionSide)) {
	case "long":
		side, posSide = SideSell, PositionSideLong
	case "short":
		side, posSide = SideBuy, PositionSideShort
	default:
		return nil, fmt.Errorf("invalid position side %q", positionSide)
	}
	reduceOnly := false
	if !c.dualSide {
		posSide = PositionSideBoth
		reduceOnly = true
	}
	return c.submitMarketOrder(ctx, symbol, side, posSide, quantity, reduceOnly)
}

func (c *Client) submitMarketOrder(ctx context.Context, symbol, side, positionSide string, quantity decimal.Decimal, reduceOnly bool) (*Confirmation, error) {
	if c.dryRun {
		c.logger.Info("dry-run market order",
			zap.String("symbol", symbol),
			zap.String("side", side),
			zap.String("position_side", positionSide),
			zap.String("quantity", quantity.String()))
		return &Confirmation{
			OrderID:      "dry-" + strconv.FormatInt(time.Now().UnixNano(), 36),
			Symbol:       symbol,
			Side:         side,
			PositionSide: positionSide,
			Quantity:     quantity,
			Status:       "FILLED",
			DryRun:       true,
		}, nil
	}
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("side", side)
	query.Set("positionSide", positionSide)
	query.Set("type", "MARKET")
	query.Set("quantity", quantity.String())
	query.Set("newOrderRespType", "RESULT")
	if reduceOnly {
		query.Set("reduceOnly", "true")
	}
	body, err := c.do(ctx, http.MethodPost, "/fapi/v1/order", query, true)
	if err != nil {
		return nil, err
	}
	return parseOrderResponse(body, symbol, side, positionSide, quantity)
}

func parseOrderResponse(body []byte, symbol, side, positionSide string, quantity decimal.Decimal) (*Confirmation, error) {
	var parsed struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		AvgPrice    string `json:"avgPrice"`
		ExecutedQty string `json:"executedQty"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	if parsed.OrderID == 0 {
		return nil, fmt.Errorf("order id missing in response")
	}
	conf := &Confirmation{
		OrderID:      strconv.FormatInt(parsed.OrderID, 10),
		Symbol:       symbol,
		Side:         side,
		PositionSide: positionSide,
		Quantity:     quantity,
		Status:       parsed.Status,
	}
	if v, err := parseDecimalField(parsed.AvgPrice); err == nil && v.Sign() > 0 {
		conf.AvgPrice = v
	}
	if v, err := parseDecimalField(parsed.ExecutedQty); err == nil && v.Sign() > 0 {
		conf.Quantity = v
	}
	return conf, nil
}
