package simulation

import (
	"github.com/classroom-sim/session-coordinator/pkg/types"
	"github.com/shopspring/decimal"
)

var (
	pctStrongBuy  = decimal.NewFromFloat(0.40)
	pctBuy        = decimal.NewFromFloat(0.25)
	pctStrongSell = decimal.NewFromFloat(1.00)
	pctSell       = decimal.NewFromFloat(0.50)
)

// ShadowState is the AI benchmark portfolio tracked alongside each player.
// It consumes a recommendation day and executes at the
// following day's open, the same settlement timing as the player engine,
// so both portfolios react to the same signal under the same price.
type ShadowState struct {
	InitialCash decimal.Decimal
	Cash        decimal.Decimal
	Holdings    map[string]types.Holding
}

// NewShadowState creates a fresh AI shadow portfolio.
func NewShadowState(initialCash decimal.Decimal) *ShadowState {
	return &ShadowState{
		InitialCash: initialCash,
		Cash:        initialCash,
		Holdings:    make(map[string]types.Holding),
	}
}

// Step applies the fixed allocation policy for day's recommendations,
// executing at nextDay's open and processed left-to-right in the order the
// Market Data Reader produced them (lexicographic by ticker), so cash
// consumed by an earlier buy is visible to a later one. nextDay
// may be nil if day was the last day in the session, in which case Step is
// a no-op.
func (s *ShadowState) Step(day types.MarketDay, nextDay *types.MarketDay) {
	if !day.IsTradingDay || nextDay == nil {
		return
	}
	for _, rec := range day.Recommendations {
		price, ok := nextDay.Open(rec.Ticker)
		if !ok {
			continue
		}
		switch rec.Recommendation {
		case types.RecommendationStrongBuy:
			s.buy(rec.Ticker, price, pctStrongBuy)
		case types.RecommendationBuy:
			s.buy(rec.Ticker, price, pctBuy)
		case types.RecommendationStrongSell:
			s.sell(rec.Ticker, price, pctStrongSell)
		case types.RecommendationSell:
			s.sell(rec.Ticker, price, pctSell)
		case types.RecommendationHold:
		}
	}
}

func (s *ShadowState) buy(ticker string, price, fraction decimal.Decimal) {
	budget := s.Cash.Mul(fraction)
	shares := budget.Div(price).Floor().IntPart()
	if shares < 1 {
		return
	}
	cost := price.Mul(decimal.NewFromInt(shares))
	s.Cash = s.Cash.Sub(cost)

	h := s.Holdings[ticker]
	newShares := h.Shares + shares
	newTotalCost := h.TotalCost.Add(cost)
	s.Holdings[ticker] = types.Holding{
		Shares:    newShares,
		TotalCost: newTotalCost,
		AvgCost:   newTotalCost.Div(decimal.NewFromInt(newShares)),
	}
}

func (s *ShadowState) sell(ticker string, price, fraction decimal.Decimal) {
	h, ok := s.Holdings[ticker]
	if !ok || h.Shares <= 0 {
		return
	}
	shares := decimal.NewFromInt(h.Shares).Mul(fraction).Ceil().IntPart()
	if shares < 1 {
		shares = 1
	}
	if shares > h.Shares {
		shares = h.Shares
	}

	proceeds := price.Mul(decimal.NewFromInt(shares))
	s.Cash = s.Cash.Add(proceeds)

	remaining := h.Shares - shares
	if remaining <= 0 {
		delete(s.Holdings, ticker)
	} else {
		s.Holdings[ticker] = types.Holding{
			Shares:    remaining,
			AvgCost:   h.AvgCost,
			TotalCost: h.AvgCost.Mul(decimal.NewFromInt(remaining)),
		}
	}
}

// Value returns cash plus holdings priced at day's close, falling back to
// average cost for a ticker the day has no price for.
func (s *ShadowState) Value(day types.MarketDay) decimal.Decimal {
	total := s.Cash
	for ticker, h := range s.Holdings {
		price, ok := day.Close(ticker)
		if !ok {
			price = h.AvgCost
		}
		total = total.Add(price.Mul(decimal.NewFromInt(h.Shares)))
	}
	return total
}

// ReturnPct returns the AI shadow's return percent as of day's close.
func (s *ShadowState) ReturnPct(day types.MarketDay) float64 {
	v := s.Value(day)
	pct, _ := v.Sub(s.InitialCash).Div(s.InitialCash).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// Snapshot returns the room-level view of this shadow portfolio for a day
// index, used to populate Room.AIBenchmark.
func (s *ShadowState) Snapshot(day types.MarketDay, dayIndex int) types.AIBenchmarkSnapshot {
	return types.AIBenchmarkSnapshot{
		PortfolioValue: s.Value(day),
		ReturnPct:      s.ReturnPct(day),
		Day:            dayIndex,
	}
}
