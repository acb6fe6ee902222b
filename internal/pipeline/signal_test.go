package pipeline

import (
	"testing"

	"tradepulse/internal/client/analysis"
)

func TestBuildSignal(t *testing.T) {
	out := analysis.Outcome{Asset: "BTC", Instrument: "BTCUSDT", Direction: analysis.DirectionBuy, Confidence: 85}
	sig, ok := BuildSignal("rec-1", out)
	if !ok {
		t.Fatal("BuildSignal rejected an actionable outcome")
	}
	if sig.RecordID != "rec-1" || sig.Instrument != "BTCUSDT" || sig.Direction != analysis.DirectionBuy || sig.Confidence != 85 {
		t.Fatalf("unexpected signal: %+v", sig)
	}

	if _, ok := BuildSignal("rec-2", analysis.Outcome{Direction: analysis.DirectionNone}); ok {
		t.Fatal("BuildSignal accepted a no-intent outcome")
	}
	if _, ok := BuildSignal("rec-3", analysis.Outcome{Asset: "BTC", Direction: analysis.DirectionBuy}); ok {
		t.Fatal("BuildSignal accepted an outcome with no instrument")
	}
}

func TestSignalFilterCheck(t *testing.T) {
	f := NewSignalFilter([]string{"doge", " SHIB ", ""}, 60)

	cases := []struct {
		name       string
		sig        TradeSignal
		wantReason string
		wantOK     bool
	}{
		{
			name:   "passes",
			sig:    TradeSignal{Asset: "BTC", Confidence: 60},
			wantOK: true,
		},
		{
			name:       "blacklisted ignoring case",
			sig:        TradeSignal{Asset: "Doge", Confidence: 99},
			wantReason: "asset_blacklisted",
		},
		{
			name:       "blacklisted after trim",
			sig:        TradeSignal{Asset: "SHIB", Confidence: 99},
			wantReason: "asset_blacklisted",
		},
		{
			name:       "below threshold",
			sig:        TradeSignal{Asset: "ETH", Confidence: 59},
			wantReason: "confidence_below_threshold",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, ok := f.Check(tc.sig)
			if ok != tc.wantOK || reason != tc.wantReason {
				t.Fatalf("Check(%+v) = (%q, %v), want (%q, %v)", tc.sig, reason, ok, tc.wantReason, tc.wantOK)
			}
		})
	}

	var nilFilter *SignalFilter
	if reason, ok := nilFilter.Check(TradeSignal{Asset: "BTC"}); !ok || reason != "" {
		t.Fatalf("nil filter Check = (%q, %v), want pass", reason, ok)
	}
	zero := NewSignalFilter(nil, 0)
	if _, ok := zero.Check(TradeSignal{Asset: "ETH", Confidence: 0}); !ok {
		t.Fatal("zero threshold should not reject")
	}
}
