package analysis

import "testing"

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		instrument string
		direction  string
		confidence int
	}{
		{
			name:       "plain json",
			reply:      `{"asset":"BTC","direction":"buy","confidence":85}`,
			instrument: "BTCUSDT",
			direction:  DirectionBuy,
			confidence: 85,
		},
		{
			name:       "fenced json",
			reply:      "```json\n{\"asset\":\"eth\",\"direction\":\"sell\",\"confidence\":70}\n```",
			instrument: "ETHUSDT",
			direction:  DirectionSell,
			confidence: 70,
		},
		{
			name:       "prose around json",
			reply:      `Here is my verdict: {"asset":"$DOGE","direction":"long","confidence":"60%"} hope it helps`,
			instrument: "DOGEUSDT",
			direction:  DirectionBuy,
			confidence: 60,
		},
		{
			name:       "asset alias",
			reply:      `{"asset":"Bitcoin","direction":"short","confidence":90}`,
			instrument: "BTCUSDT",
			direction:  DirectionSell,
			confidence: 90,
		},
		{
			name:       "no intent",
			reply:      `{"asset":"","direction":"none","confidence":0}`,
			instrument: "",
			direction:  DirectionNone,
			confidence: 0,
		},
		{
			name:       "symbol already quoted",
			reply:      `{"asset":"BTCUSDT","direction":"buy","confidence":75}`,
			instrument: "BTCUSDT",
			direction:  DirectionBuy,
			confidence: 75,
		},
		{
			name:       "confidence clamped",
			reply:      `{"asset":"SOL","direction":"buy","confidence":140}`,
			instrument: "SOLUSDT",
			direction:  DirectionBuy,
			confidence: 100,
		},
	}
	for _, tt := range tests {
		out, err := parseOutcome(tt.reply, "USDT")
		if err != nil {
			t.Fatalf("%s: parseOutcome: %v", tt.name, err)
		}
		if out.Instrument != tt.instrument {
			t.Fatalf("%s: instrument = %q, want %q", tt.name, out.Instrument, tt.instrument)
		}
		if out.Direction != tt.direction {
			t.Fatalf("%s: direction = %q, want %q", tt.name, out.Direction, tt.direction)
		}
		if out.Confidence != tt.confidence {
			t.Fatalf("%s: confidence = %d, want %d", tt.name, out.Confidence, tt.confidence)
		}
	}
}

func TestParseOutcomeRejectsNonJSON(t *testing.T) {
	if _, err := parseOutcome("I cannot help with that.", "USDT"); err == nil {
		t.Fatalf("expected error for reply without JSON")
	}
}

func TestActionable(t *testing.T) {
	tests := []struct {
		out  Outcome
		want bool
	}{
		{Outcome{Instrument: "BTCUSDT", Direction: DirectionBuy}, true},
		{Outcome{Instrument: "BTCUSDT", Direction: DirectionSell}, true},
		{Outcome{Instrument: "BTCUSDT", Direction: DirectionNone}, false},
		{Outcome{Instrument: "", Direction: DirectionBuy}, false},
	}
	for _, tt := range tests {
		out := tt.out
		if got := out.Actionable(); got != tt.want {
			t.Fatalf("Actionable(%+v) = %v, want %v", tt.out, got, tt.want)
		}
	}
}
