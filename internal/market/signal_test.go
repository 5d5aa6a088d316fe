package market

import (
	"math"
	"testing"
	"time"
)

// TestNewQuoteDerivedFields tests change and changePercent normalization
func TestNewQuoteDerivedFields(t *testing.T) {
	q := NewQuote("AAPL", 100.00, 104.20, 99.10, 103.50, 28000000, time.Now())

	if q.Change != 3.50 {
		t.Errorf("Expected change 3.50, got %f", q.Change)
	}
	if q.ChangePercent != 3.50 {
		t.Errorf("Expected changePercent 3.50, got %f", q.ChangePercent)
	}
	if q.Price != 103.50 {
		t.Errorf("Expected price to equal close, got %f", q.Price)
	}
}

// TestNewQuoteRounding tests 2-decimal rounding at normalization
func TestNewQuoteRounding(t *testing.T) {
	q := NewQuote("TSLA", 300, 311, 298, 310.123, 1000, time.Now())

	if q.Change != 10.12 {
		t.Errorf("Expected change 10.12, got %f", q.Change)
	}
	// 10.123/300*100 = 3.374...
	if q.ChangePercent != 3.37 {
		t.Errorf("Expected changePercent 3.37, got %f", q.ChangePercent)
	}
}

// TestNewQuoteZeroOpen tests that a zero open price does not divide by zero
func TestNewQuoteZeroOpen(t *testing.T) {
	q := NewQuote("JUNK", 0, 1, 0, 1, 0, time.Now())

	if q.ChangePercent != 0 {
		t.Errorf("Expected changePercent 0 for zero open, got %f", q.ChangePercent)
	}
}

// TestDeriveBuy tests the BUY branch and its confidence ramp
func TestDeriveBuy(t *testing.T) {
	q := NewQuote("AAPL", 100.00, 104.20, 99.10, 103.50, 28000000, time.Now())

	action, confidence := Derive(q, ChatParams)

	if action != ActionBuy {
		t.Fatalf("Expected BUY, got %s", action)
	}
	// min(95, 60 + 3.5*5) = 77.5
	if confidence != 77.5 {
		t.Errorf("Expected confidence 77.5, got %f", confidence)
	}
}

// TestDeriveSell tests the SELL branch uses the absolute move
func TestDeriveSell(t *testing.T) {
	q := NewQuote("TSLA", 100, 101, 95, 96, 1000, time.Now())

	action, confidence := Derive(q, ChatParams)

	if action != ActionSell {
		t.Fatalf("Expected SELL, got %s", action)
	}
	// min(95, 60 + 4*5) = 80
	if confidence != 80 {
		t.Errorf("Expected confidence 80, got %f", confidence)
	}
}

// TestDeriveConfidenceClamp tests that BUY/SELL confidence never exceeds 95
func TestDeriveConfidenceClamp(t *testing.T) {
	q := NewQuote("NVDA", 100, 130, 99, 125, 1000, time.Now())

	_, confidence := Derive(q, FeedParams)

	if confidence != 95 {
		t.Errorf("Expected confidence clamped to 95, got %f", confidence)
	}
}

// TestDeriveHold tests the HOLD band boundaries
func TestDeriveHold(t *testing.T) {
	cases := []struct {
		name   string
		open   float64
		close  float64
		params SignalParams
		want   Action
	}{
		{"flat", 100, 100, FeedParams, ActionHold},
		{"just under feed threshold", 100, 101.4, FeedParams, ActionHold},
		{"at feed threshold", 100, 101.5, FeedParams, ActionHold},
		{"over feed threshold", 100, 101.6, FeedParams, ActionBuy},
		{"under chat threshold", 100, 101.9, ChatParams, ActionHold},
		{"negative within band", 100, 98.6, FeedParams, ActionHold},
		{"at negative feed threshold", 100, 98.5, FeedParams, ActionHold},
		{"below negative feed threshold", 100, 98.4, FeedParams, ActionSell},
	}

	for _, tc := range cases {
		q := NewQuote("X", tc.open, tc.close, tc.open, tc.close, 0, time.Now())
		action, confidence := Derive(q, tc.params)
		if action != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, action)
		}
		if action == ActionHold && confidence != holdConfidence {
			t.Errorf("%s: expected fixed HOLD confidence %d, got %f", tc.name, holdConfidence, confidence)
		}
	}
}

// TestDeriveDeterministic tests that derivation is a pure function of the Quote
func TestDeriveDeterministic(t *testing.T) {
	q := NewQuote("MSFT", 100, 101, 99, 100.5, 1000, time.Now())

	a1, c1 := Derive(q, FeedParams)
	a2, c2 := Derive(q, FeedParams)

	if a1 != a2 || c1 != c2 {
		t.Errorf("Derive is not deterministic: (%s,%f) vs (%s,%f)", a1, c1, a2, c2)
	}
}

// TestSignalFromQuote tests the full feed signal construction
func TestSignalFromQuote(t *testing.T) {
	q := NewQuote("NVDA", 137.30, 143.00, 136.90, 142.50, 45000000, time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC))

	s := SignalFromQuote(q, FeedParams)

	if s.Symbol != "NVDA" || s.ID != "NVDA" {
		t.Errorf("Expected symbol NVDA, got %s/%s", s.Symbol, s.ID)
	}
	if s.Action != ActionBuy {
		t.Errorf("Expected BUY, got %s", s.Action)
	}
	if s.Price != 142.50 {
		t.Errorf("Expected price 142.50, got %f", s.Price)
	}
	// changePercent = 3.79 (rounded), confidence = min(95, 60+3.79*8) = 90.32 -> 90
	wantConf := int(math.Round(math.Min(95, 60+s.ChangePercent*8)))
	if s.Confidence != wantConf {
		t.Errorf("Expected confidence %d, got %d", wantConf, s.Confidence)
	}
	if s.Timestamp != "10:30 AM" {
		t.Errorf("Expected timestamp 10:30 AM, got %s", s.Timestamp)
	}
}
