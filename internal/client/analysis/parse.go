package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
	DirectionNone = "none"
)

// Outcome is the structured verdict for one analyzed post. Instrument is the
// tradeable symbol (asset plus quote currency); Asset is the bare base asset.
type Outcome struct {
	Asset      string `json:"asset"`
	Instrument string `json:"instrument"`
	Direction  string `json:"direction"`
	Confidence int    `json:"confidence"`
}

// Actionable reports whether the outcome names a tradeable instrument and a
// buy or sell direction.
func (o *Outcome) Actionable() bool {
	if o == nil {
		return false
	}
	return o.Instrument != "" && (o.Direction == DirectionBuy || o.Direction == DirectionSell)
}

// assetAliases maps spelled-out names the model occasionally returns to
// exchange symbols.
var assetAliases = map[string]string{
	"BITCOIN":  "BTC",
	"ETHEREUM": "ETH",
	"DOGECOIN": "DOGE",
	"SOLANA":   "SOL",
	"RIPPLE":   "XRP",
}

// parseOutcome pulls the JSON verdict out of a model reply. Replies wrapped
// in markdown fences or prose are tolerated.
func parseOutcome(content, quoteAsset string) (*Outcome, error) {
	body := extractJSON(content)
	if body == "" {
		return nil, fmt.Errorf("no JSON object in model reply: %q", truncate(content, 120))
	}
	var raw struct {
		Asset      string          `json:"asset"`
		Symbol     string          `json:"symbol"`
		Coin       string          `json:"coin"`
		Direction  string          `json:"direction"`
		Confidence json.RawMessage `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse model reply: %w", err)
	}
	out := &Outcome{
		Asset:      NormalizeAsset(firstNonEmpty(raw.Asset, raw.Symbol, raw.Coin)),
		Direction:  normalizeDirection(raw.Direction),
		Confidence: parseConfidence(raw.Confidence),
	}
	if out.Asset != "" {
		out.Instrument = InstrumentFor(out.Asset, quoteAsset)
	}
	return out, nil
}

// NormalizeAsset uppercases an asset symbol and resolves common aliases.
// "$btc" and "Bitcoin" both come back as "BTC".
func NormalizeAsset(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "/USDT")
	s = strings.TrimSuffix(s, "-USDT")
	if alias, ok := assetAliases[s]; ok {
		return alias
	}
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// InstrumentFor appends the quote asset unless the symbol already carries it.
func InstrumentFor(asset, quoteAsset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	quoteAsset = strings.ToUpper(strings.TrimSpace(quoteAsset))
	if asset == "" {
		return ""
	}
	if quoteAsset != "" && strings.HasSuffix(asset, quoteAsset) && asset != quoteAsset {
		return asset
	}
	return asset + quoteAsset
}

func normalizeDirection(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return DirectionBuy
	case "sell", "short":
		return DirectionSell
	default:
		return DirectionNone
	}
}

func parseConfidence(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return clampConfidence(int(n))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return clampConfidence(int(f))
		}
	}
	return 0
}

func clampConfidence(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// extractJSON returns the outermost {...} block, stripping markdown fences.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if i := strings.LastIndex(content, "```"); i >= 0 {
			content = content[:i]
		}
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
