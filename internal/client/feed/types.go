package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Item is one captured post. Raw keeps the exact crawler payload for the
// audit trail.
type Item struct {
	ID        string
	Account   string
	Text      string
	CreatedAt time.Time
	Raw       json.RawMessage
}

func (it *Item) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	it.Raw = append(json.RawMessage(nil), b...)
	it.ID = firstString(obj, "id", "item_id", "id_str")
	it.Account = firstString(obj, "account", "author", "screen_name", "username")
	it.Text = firstString(obj, "text", "full_text", "content")
	it.CreatedAt = firstTime(obj, "created_at", "captured_at", "timestamp")
	return nil
}

// parseItems accepts the crawler's response envelopes: a bare array,
// {"items": [...]} or {"data": {"items": [...]}}.
func parseItems(raw []byte) ([]Item, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []Item
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to parse items: %w", err)
		}
		return items, nil
	}
	var envelope struct {
		Items []Item `json:"items"`
		Data  struct {
			Items []Item `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse items: %w", err)
	}
	if len(envelope.Items) > 0 {
		return envelope.Items, nil
	}
	return envelope.Data.Items, nil
}

func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

// firstTime tries RFC3339, the legacy crawler layout and unix seconds.
func firstTime(obj map[string]json.RawMessage, keys ...string) time.Time {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t.UTC()
			}
			if t, err := time.Parse("Mon Jan 02 15:04:05 -0700 2006", s); err == nil {
				return t.UTC()
			}
			if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
				return time.Unix(sec, 0).UTC()
			}
			continue
		}
		var sec int64
		if err := json.Unmarshal(raw, &sec); err == nil && sec > 0 {
			return time.Unix(sec, 0).UTC()
		}
	}
	return time.Time{}
}
