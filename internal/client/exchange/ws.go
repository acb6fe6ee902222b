package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const DefaultStreamURL = "wss://fstream.binance.com/ws"

// SymbolProvider returns the instruments the stream should keep subscribed.
type SymbolProvider func(context.Context) ([]string, error)

type wsConn struct {
	url  string
	conn *websocket.Conn

	mu     sync.Mutex
	nextID int
}

func newWSConn(url string) *wsConn {
	if strings.TrimSpace(url) == "" {
		url = DefaultStreamURL
	}
	return &wsConn{url: url}
}

func (c *wsConn) connect(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("ws conn is nil")
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20) // 1MB
	c.conn = conn
	return nil
}

func (c *wsConn) close(status websocket.StatusCode, reason string) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close(status, reason)
}

func (c *wsConn) subscribe(ctx context.Context, symbols []string, method string) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	if len(symbols) == 0 {
		return nil
	}
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, markPriceStream(s))
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	payload, err := json.Marshal(map[string]any{
		"method": method,
		"params": streams,
		"id":     id,
	})
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *wsConn) read(ctx context.Context) ([]byte, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("ws not connected")
	}
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func markPriceStream(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol)) + "@markPrice@1s"
}

type PriceStreamOptions struct {
	URL               string
	SymbolProvider    SymbolProvider
	RefreshInterval   time.Duration
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger
}

// PriceStream keeps the client's price cache fed from the mark price
// websocket feed. Subscriptions follow the symbols reported by the provider.
type PriceStream struct {
	client    *Client
	opts      PriceStreamOptions
	seenFirst bool
}

func NewPriceStream(client *Client, opts PriceStreamOptions) *PriceStream {
	if opts.URL == "" {
		opts.URL = DefaultStreamURL
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = 1 * time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = 15 * time.Second
	}
	return &PriceStream{client: client, opts: opts}
}

func (s *PriceStream) Run(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("stream is nil")
	}
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn := newWSConn(s.opts.URL)
		if err := conn.connect(ctx); err != nil {
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("price ws connect failed", zap.Error(err))
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		if s.opts.Logger != nil {
			s.opts.Logger.Info("price ws connected")
		}
		var symbols []string
		if s.opts.SymbolProvider != nil {
			if got, err := s.opts.SymbolProvider(ctx); err == nil {
				symbols = got
			}
		}
		if len(symbols) > 0 {
			if err := conn.subscribe(ctx, symbols, "SUBSCRIBE"); err != nil {
				if s.opts.Logger != nil {
					s.opts.Logger.Warn("price ws subscribe failed", zap.Error(err))
				}
				_ = conn.close(websocket.StatusInternalError, "subscribe failed")
				if err := sleepWithJitter(ctx, backoff); err != nil {
					return err
				}
				backoff = nextBackoff(backoff, s.opts.BackoffMax)
				continue
			}
			if s.opts.Logger != nil {
				s.opts.Logger.Info("price ws subscribed", zap.Int("symbols", len(symbols)))
			}
		}
		backoff = s.opts.BackoffMin

		current := setFromSlice(symbols)
		err := s.consume(ctx, conn, current)
		_ = conn.close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *PriceStream) consume(ctx context.Context, conn *wsConn, current map[string]struct{}) error {
	if conn == nil {
		return fmt.Errorf("ws conn is nil")
	}
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var refreshErr chan error
	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()

	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				heartbeatErr <- heartbeatCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, s.opts.PingTimeout)
				err := conn.conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	if s.opts.SymbolProvider != nil && s.opts.RefreshInterval > 0 {
		refreshErr = make(chan error, 1)
		go func() {
			ticker := time.NewTicker(s.opts.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-refreshCtx.Done():
					refreshErr <- refreshCtx.Err()
					return
				case <-ticker.C:
					symbols, err := s.opts.SymbolProvider(refreshCtx)
					if err != nil {
						continue
					}
					next := setFromSlice(symbols)
					added, removed := diffSets(current, next)
					if len(added) > 0 {
						_ = conn.subscribe(refreshCtx, added, "SUBSCRIBE")
					}
					if len(removed) > 0 {
						_ = conn.subscribe(refreshCtx, removed, "UNSUBSCRIBE")
					}
					current = next
				}
			}
		}()
	}

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case err := <-refreshErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		raw, err := conn.read(ctx)
		if err != nil {
			if s.opts.Logger != nil && !errors.Is(err, context.Canceled) {
				s.opts.Logger.Warn("price ws read failed", zap.Error(err))
			}
			return err
		}
		symbol, price, at, ok := parseMarkPriceEvent(raw)
		if !ok {
			continue
		}
		if s.opts.Logger != nil && !s.seenFirst {
			s.seenFirst = true
			s.opts.Logger.Info("price ws first tick", zap.String("symbol", symbol))
		}
		s.client.recordPrice(symbol, price, at)
	}
}

// parseMarkPriceEvent decodes a markPriceUpdate event. Subscription acks and
// other event types report ok=false.
func parseMarkPriceEvent(raw []byte) (string, decimal.Decimal, time.Time, bool) {
	var event struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		MarkPrice string `json:"p"`
		Data      *struct {
			EventType string `json:"e"`
			EventTime int64  `json:"E"`
			Symbol    string `json:"s"`
			MarkPrice string `json:"p"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return "", decimal.Zero, time.Time{}, false
	}
	if event.Data != nil {
		event.EventType = event.Data.EventType
		event.EventTime = event.Data.EventTime
		event.Symbol = event.Data.Symbol
		event.MarkPrice = event.Data.MarkPrice
	}
	if event.EventType != "markPriceUpdate" || event.Symbol == "" {
		return "", decimal.Zero, time.Time{}, false
	}
	price, err := parseDecimalField(event.MarkPrice)
	if err != nil || price.Sign() <= 0 {
		return "", decimal.Zero, time.Time{}, false
	}
	at := time.Now().UTC()
	if event.EventTime > 0 {
		at = time.UnixMilli(event.EventTime).UTC()
	}
	return event.Symbol, price, at, true
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base / 2)))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func setFromSlice(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		out[item] = struct{}{}
	}
	return out
}

func diffSets(current, next map[string]struct{}) ([]string, []string) {
	added := make([]string, 0)
	removed := make([]string, 0)
	for key := range next {
		if _, ok := current[key]; !ok {
			added = append(added, key)
		}
	}
	for key := range current {
		if _, ok := next[key]; !ok {
			removed = append(removed, key)
		}
	}
	return added, removed
}
