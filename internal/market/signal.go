package market

import (
	"math"
)

// Action is a discrete trade suggestion derived from a Quote.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is a trade suggestion with a confidence score, recomputed on
// demand from a Quote and never persisted as independent state.
type Signal struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Action        Action  `json:"action"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Confidence    int     `json:"confidence"`
	Timestamp     string  `json:"timestamp"`
	Volume        float64 `json:"volume"`
}

// SignalParams parameterize the thresholding. The dashboard feed reacts to
// smaller moves with a steeper confidence ramp than the chat tool; both are
// variants of the same algorithm.
type SignalParams struct {
	Threshold   float64 // abs changePercent beyond which BUY/SELL triggers
	Sensitivity float64 // confidence points per percent of movement
}

var (
	// FeedParams is used by the polling signals feed.
	FeedParams = SignalParams{Threshold: 1.5, Sensitivity: 8}

	// ChatParams is used by the chat quote-lookup tool.
	ChatParams = SignalParams{Threshold: 2.0, Sensitivity: 5}
)

const (
	baseConfidence = 60
	maxConfidence  = 95
	holdConfidence = 60
)

// Derive maps a Quote's price movement to an action and confidence.
// Confidence for BUY/SELL is clamped to [0, 95]; HOLD returns a fixed
// mid-band value.
func Derive(q Quote, p SignalParams) (Action, float64) {
	cp := q.ChangePercent

	switch {
	case cp > p.Threshold:
		return ActionBuy, math.Min(maxConfidence, baseConfidence+cp*p.Sensitivity)
	case cp < -p.Threshold:
		return ActionSell, math.Min(maxConfidence, baseConfidence+math.Abs(cp)*p.Sensitivity)
	default:
		return ActionHold, holdConfidence
	}
}

// SignalFromQuote builds a full feed Signal from a Quote.
func SignalFromQuote(q Quote, p SignalParams) Signal {
	action, confidence := Derive(q, p)

	return Signal{
		ID:            q.Ticker,
		Symbol:        q.Ticker,
		Action:        action,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Confidence:    int(math.Round(confidence)),
		Timestamp:     q.Timestamp.Format("3:04 PM"),
		Volume:        q.Volume,
	}
}
