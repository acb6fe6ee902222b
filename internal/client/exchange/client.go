package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultHost = "https://fapi.binance.com"

// Options configures the futures REST client.
type Options struct {
	Host        string
	APIKey      string
	SecretKey   string
	RecvWindow  int
	QuoteAsset  string
	DryRun      bool
	DualSide    bool
	PriceMaxAge time.Duration
	Logger      *zap.Logger
}

// Client talks to the USD-M futures REST API. Prices are served from the
// websocket cache when fresh and fall back to REST otherwise.
type Client struct {
	host       string
	apiKey     string
	secretKey  string
	recvWindow int
	quoteAsset string
	dryRun     bool
	dualSide   bool
	httpClient *http.Client
	logger     *zap.Logger

	priceMaxAge time.Duration

	mu      sync.Mutex
	filters map[string]SymbolFilters
	prices  map[string]pricePoint
}

type pricePoint struct {
	price decimal.Decimal
	at    time.Time
}

func NewClient(httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	host := strings.TrimRight(opts.Host, "/")
	if host == "" {
		host = DefaultHost
	}
	recvWindow := opts.RecvWindow
	if recvWindow <= 0 {
		recvWindow = 5000
	}
	quote := strings.ToUpper(strings.TrimSpace(opts.QuoteAsset))
	if quote == "" {
		quote = "USDT"
	}
	priceMaxAge := opts.PriceMaxAge
	if priceMaxAge <= 0 {
		priceMaxAge = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		host:        host,
		apiKey:      opts.APIKey,
		secretKey:   opts.SecretKey,
		recvWindow:  recvWindow,
		quoteAsset:  quote,
		dryRun:      opts.DryRun,
		dualSide:    opts.DualSide,
		httpClient:  httpClient,
		logger:      logger,
		priceMaxAge: priceMaxAge,
		filters:     make(map[string]SymbolFilters),
		prices:      make(map[string]pricePoint),
	}
}

func (c *Client) DryRun() bool { return c != nil && c.dryRun }

// QuoteAsset returns the margin asset balances are reported in.
func (c *Client) QuoteAsset() string { return c.quoteAsset }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, signed bool) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if query == nil {
		query = url.Values{}
	}
	if signed {
		if c.secretKey == "" {
			return nil, fmt.Errorf("signed request requires a secret key")
		}
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query.Set("recvWindow", strconv.Itoa(c.recvWindow))
		mac := hmac.New(sha256.New, []byte(c.secretKey))
		_, _ = mac.Write([]byte(query.Encode()))
		query.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	}
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// AvailableBalance returns the free margin balance in the quote asset.
func (c *Client) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	body, err := c.do(ctx, http.MethodGet, "/fapi/v2/balance", nil, true)
	if err != nil {
		return decimal.Zero, err
	}
	var balances []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &balances); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balances: %w", err)
	}
	for _, b := range balances {
		if strings.EqualFold(b.Asset, c.quoteAsset) {
			return parseDecimalField(b.AvailableBalance)
		}
	}
	return decimal.Zero, fmt.Errorf("no %s balance in account", c.quoteAsset)
}

// SymbolFilters returns the trading rules for a symbol, cached after the
// first exchangeInfo lookup.
func (c *Client) SymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return SymbolFilters{}, fmt.Errorf("symbol is required")
	}
	c.mu.Lock()
	if f, ok := c.filters[symbol]; ok {
		c.mu.Unlock()
		return f, nil
	}
	c.mu.Unlock()

	query := url.Values{}
	query.Set("symbol", symbol)
	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", query, false)
	if err != nil {
		return SymbolFilters{}, err
	}
	f, err := parseSymbolFilters(body, symbol)
	if err != nil {
		return SymbolFilters{}, err
	}
	c.mu.Lock()
	c.filters[symbol] = f
	c.mu.Unlock()
	return f, nil
}

func parseSymbolFilters(body []byte, symbol string) (SymbolFilters, error) {
	var info struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
				MinQty     string `json:"minQty"`
				Notional   string `json:"notional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return SymbolFilters{}, fmt.Errorf("failed to parse exchangeInfo: %w", err)
	}
	for _, s := range info.Symbols {
		if !strings.EqualFold(s.Symbol, symbol) {
			continue
		}
		out := SymbolFilters{Symbol: symbol}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				if v, err := parseDecimalField(f.StepSize); err == nil {
					out.StepSize = v
				}
				if v, err := parseDecimalField(f.MinQty); err == nil {
					out.MinQuantity = v
				}
			case "MIN_NOTIONAL":
				if v, err := parseDecimalField(f.Notional); err == nil {
					out.MinNotional = v
				}
			}
		}
		return out, nil
	}
	return SymbolFilters{}, fmt.Errorf("symbol %s not listed", symbol)
}

// Price returns the latest mark price for a symbol, preferring the stream
// cache and falling back to REST when the cached point is stale.
func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	now := time.Now().UTC()
	c.mu.Lock()
	if p, ok := c.prices[symbol]; ok && now.Sub(p.at) <= c.priceMaxAge {
		c.mu.Unlock()
		return p.price, nil
	}
	c.mu.Unlock()

	price, err := c.restPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	c.recordPrice(symbol, price, now)
	return price, nil
}

func (c *Client) restPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("symbol is required")
	}
	query := url.Values{}
	query.Set("symbol", symbol)
	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/ticker/price", query, false)
	if err != nil {
		return decimal.Zero, err
	}
	var parsed struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse ticker: %w", err)
	}
	price, err := parseDecimalField(parsed.Price)
	if err != nil {
		return decimal.Zero, err
	}
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("invalid price for %s", symbol)
	}
	return price, nil
}

func (c *Client) recordPrice(symbol string, price decimal.Decimal, at time.Time) {
	if c == nil || symbol == "" || price.Sign() <= 0 {
		return
	}
	c.mu.Lock()
	c.prices[strings.ToUpper(symbol)] = pricePoint{price: price, at: at}
	c.mu.Unlock()
}
