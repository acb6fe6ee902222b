package pipeline

import (
	"strings"

	"tradepulse/internal/client/analysis"
)

// TradeSignal is an actionable verdict ready for sizing and execution.
type TradeSignal struct {
	RecordID   string
	Asset      string
	Instrument string
	Direction  string
	Confidence int
}

// BuildSignal converts an analysis outcome into a trade signal. ok is false
// when the outcome carries no trade intent.
func BuildSignal(recordID string, out analysis.Outcome) (TradeSignal, bool) {
	if !out.Actionable() {
		return TradeSignal{}, false
	}
	return TradeSignal{
		RecordID:   recordID,
		Asset:      out.Asset,
		Instrument: out.Instrument,
		Direction:  out.Direction,
		Confidence: out.Confidence,
	}, true
}

// SignalFilter rejects signals the desk does not want to trade.
type SignalFilter struct {
	blacklist     map[string]struct{}
	minConfidence int
}

func NewSignalFilter(blacklist []string, minConfidence int) *SignalFilter {
	f := &SignalFilter{
		blacklist:     make(map[string]struct{}, len(blacklist)),
		minConfidence: minConfidence,
	}
	for _, asset := range blacklist {
		asset = strings.ToUpper(strings.TrimSpace(asset))
		if asset == "" {
			continue
		}
		f.blacklist[asset] = struct{}{}
	}
	return f
}

// Check returns ok=true when the signal passes, otherwise a short reject
// reason for the record's execution info.
func (f *SignalFilter) Check(sig TradeSignal) (string, bool) {
	if f == nil {
		return "", true
	}
	if _, ok := f.blacklist[strings.ToUpper(sig.Asset)]; ok {
		return "asset_blacklisted", false
	}
	if f.minConfidence > 0 && sig.Confidence < f.minConfidence {
		return "confidence_below_threshold", false
	}
	return "", true
}
