package simulation

import (
	"testing"
	"time"

	"github.com/classroom-sim/session-coordinator/internal/apperr"
	"github.com/classroom-sim/session-coordinator/pkg/types"
	"github.com/shopspring/decimal"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func mkDay(date time.Time, ticker string, open, close int64, rec types.Recommendation) types.MarketDay {
	return types.MarketDay{
		Date:         date,
		IsTradingDay: true,
		Prices: map[string]types.TickerPrice{
			ticker: {Ticker: ticker, Open: d(open), Close: d(close)},
		},
		Recommendations: []types.TickerRecommendation{
			{Ticker: ticker, Recommendation: rec},
		},
	}
}

// TestSoloAsyncSingleTicker: a single buy on day 0,
// then three advances, yielding a 10% return and grade B under medium
// difficulty.
func TestSoloAsyncSingleTicker(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	day0 := mkDay(start, "AAPL", 100, 100, types.RecommendationBuy)
	day1 := mkDay(start.AddDate(0, 0, 1), "AAPL", 100, 110, types.RecommendationHold)
	day2 := mkDay(start.AddDate(0, 0, 2), "AAPL", 110, 120, types.RecommendationHold)

	p := NewPlayerState(d(100000))

	if err := QueueBuy(p, &day0, &day1, "AAPL", 500); err != nil {
		t.Fatalf("QueueBuy: %v", err)
	}

	AdvanceDay(p, day0, &day1)
	AdvanceDay(p, day1, &day2)
	AdvanceDay(p, day2, nil)

	if !p.Cash.Equal(d(50000)) {
		t.Fatalf("expected cash 50000, got %s", p.Cash)
	}
	if p.Holdings["AAPL"].Shares != 500 {
		t.Fatalf("expected 500 AAPL shares, got %d", p.Holdings["AAPL"].Shares)
	}

	score := ComputeScore(p, day2, 0, types.DifficultyMedium)
	if p.ReturnPct < 9.99 || p.ReturnPct > 10.01 {
		t.Fatalf("expected ~10%% return, got %v", p.ReturnPct)
	}
	if score.Grade != types.GradeB {
		t.Fatalf("expected grade B, got %s", score.Grade)
	}
	if score.RiskDisciplinePoints != 50 {
		t.Fatalf("expected risk discipline 50, got %v", score.RiskDisciplinePoints)
	}
	if score.PortfolioReturnPoints != 500 {
		t.Fatalf("expected portfolio return points 500, got %v", score.PortfolioReturnPoints)
	}
	if score.Total < 550 {
		t.Fatalf("expected total score >= 550, got %v", score.Total)
	}
}

// TestAIBeatBonusScenario: the player never trades
// while the AI shadow buys on the BUY signal, ending with player return 0%,
// AI return +5%, and a C grade.
func TestAIBeatBonusScenario(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	day0 := mkDay(start, "AAPL", 100, 100, types.RecommendationBuy)
	day1 := mkDay(start.AddDate(0, 0, 1), "AAPL", 100, 110, types.RecommendationHold)
	day2 := mkDay(start.AddDate(0, 0, 2), "AAPL", 110, 120, types.RecommendationHold)

	p := NewPlayerState(d(100000))
	AdvanceDay(p, day0, &day1)
	AdvanceDay(p, day1, &day2)
	AdvanceDay(p, day2, nil)

	ai := NewShadowState(d(100000))
	ai.Step(day0, &day1)
	ai.Step(day1, &day2)
	ai.Step(day2, nil)

	if ai.Cash.Cmp(d(75000)) != 0 {
		t.Fatalf("expected AI cash 75000, got %s", ai.Cash)
	}
	if ai.Holdings["AAPL"].Shares != 250 {
		t.Fatalf("expected AI holding 250 shares, got %d", ai.Holdings["AAPL"].Shares)
	}
	aiReturn := ai.ReturnPct(day2)
	if aiReturn < 4.99 || aiReturn > 5.01 {
		t.Fatalf("expected AI return ~5%%, got %v", aiReturn)
	}

	score := ComputeScore(p, day2, aiReturn, types.DifficultyMedium)
	if p.ReturnPct != 0 {
		t.Fatalf("expected player return 0%%, got %v", p.ReturnPct)
	}
	if score.BeatAIPoints != 0 {
		t.Fatalf("expected beat-AI points 0, got %v", score.BeatAIPoints)
	}
	if score.Total != 0 {
		t.Fatalf("expected total score 0, got %v", score.Total)
	}
	if score.Grade != types.GradeC {
		t.Fatalf("expected grade C, got %s", score.Grade)
	}
}

// TestBuyBlockedByRecommendation: a HOLD
// recommendation rejects a buy attempt with RecommendationBlocked, leaving
// cash, holdings and the trade log untouched.
func TestBuyBlockedByRecommendation(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	day0 := mkDay(start, "MSFT", 300, 300, types.RecommendationHold)
	day1 := mkDay(start.AddDate(0, 0, 1), "MSFT", 305, 305, types.RecommendationHold)

	p := NewPlayerState(d(100000))
	err := QueueBuy(p, &day0, &day1, "MSFT", 10)
	if err == nil {
		t.Fatal("expected an error")
	}
	if apperr.KindOf(err) != apperr.RecommendationBlocked {
		t.Fatalf("expected RecommendationBlocked, got %v", err)
	}
	if !p.Cash.Equal(d(100000)) {
		t.Fatalf("cash should be unchanged, got %s", p.Cash)
	}
	if len(p.Trades) != 0 {
		t.Fatalf("expected no trades recorded, got %d", len(p.Trades))
	}
}

// TestBuyThenSellRoundTrip: buying n shares then selling n shares at the
// same open price leaves cash unchanged and removes the holding entirely.
func TestBuyThenSellRoundTrip(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	day0 := mkDay(start, "AAPL", 100, 100, types.RecommendationBuy)
	day1 := mkDay(start.AddDate(0, 0, 1), "AAPL", 100, 100, types.RecommendationHold)
	day2 := mkDay(start.AddDate(0, 0, 2), "AAPL", 100, 100, types.RecommendationHold)

	p := NewPlayerState(d(100000))
	if err := QueueBuy(p, &day0, &day1, "AAPL", 100); err != nil {
		t.Fatalf("QueueBuy: %v", err)
	}
	AdvanceDay(p, day0, &day1)

	if err := QueueSell(p, &day1, &day2, "AAPL", 100); err != nil {
		t.Fatalf("QueueSell: %v", err)
	}
	AdvanceDay(p, day1, &day2)

	if !p.Cash.Equal(d(100000)) {
		t.Fatalf("expected cash restored to 100000, got %s", p.Cash)
	}
	if _, ok := p.Holdings["AAPL"]; ok {
		t.Fatalf("expected holding to be removed entirely")
	}
}

// TestSellBlockedOnWeekend matches the boundary behavior: neither buy nor
// sell are accepted on a non-trading day.
func TestSellBlockedOnWeekend(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC) // Saturday
	weekend := types.MarketDay{Date: start, IsTradingDay: false}
	next := mkDay(start.AddDate(0, 0, 1), "AAPL", 100, 100, types.RecommendationHold)

	p := NewPlayerState(d(100000))
	p.Holdings["AAPL"] = types.Holding{Shares: 10, AvgCost: d(90), TotalCost: d(900)}

	err := ValidateSell(p, &weekend, &next, "AAPL", 5)
	if apperr.KindOf(err) != apperr.MarketsClosed {
		t.Fatalf("expected MarketsClosed, got %v", err)
	}
}
