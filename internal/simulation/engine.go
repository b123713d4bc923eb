// Package simulation implements the player trading simulation and the AI
// shadow benchmark. Money and price fields stay decimal.Decimal
// throughout; shares are whole int64 since players and the AI shadow both
// trade whole shares only.
package simulation

import (
	"github.com/classroom-sim/session-coordinator/internal/apperr"
	"github.com/classroom-sim/session-coordinator/pkg/types"
	"github.com/classroom-sim/session-coordinator/pkg/utils"
	"github.com/shopspring/decimal"
)

// PendingOrder is a buy or sell accepted on the player's current day but not
// yet executed; it settles at the next day's open.
type PendingOrder struct {
	Type   types.TradeType
	Ticker string
	Shares int64
}

// PlayerState is the mutable simulation state for a single player. It is not
// safe for concurrent use; callers serialize access per room.
type PlayerState struct {
	InitialCash decimal.Decimal
	Cash        decimal.Decimal
	Holdings    map[string]types.Holding
	Trades      []types.Trade
	History     []types.PortfolioSnapshot
	Pending     []PendingOrder
	CurrentDay  int
	IsFinished  bool
	ReturnPct   float64
	Score       types.ScoreBreakdown
}

// NewPlayerState creates a fresh simulation state with empty holdings.
func NewPlayerState(initialCash decimal.Decimal) *PlayerState {
	return &PlayerState{
		InitialCash: initialCash,
		Cash:        initialCash,
		Holdings:    make(map[string]types.Holding),
	}
}

// reservedCash returns the cash already committed to pending buys not yet
// executed, so a second same-day buy can't overcommit the balance.
func (p *PlayerState) reservedCash(nextOpen func(ticker string) (decimal.Decimal, bool)) decimal.Decimal {
	total := decimal.Zero
	for _, o := range p.Pending {
		if o.Type != types.TradeTypeBuy {
			continue
		}
		if price, ok := nextOpen(o.Ticker); ok {
			total = total.Add(price.Mul(decimal.NewFromInt(o.Shares)))
		}
	}
	return total
}

// reservedShares returns shares of ticker already committed to pending sells.
func (p *PlayerState) reservedShares(ticker string) int64 {
	var total int64
	for _, o := range p.Pending {
		if o.Type == types.TradeTypeSell && o.Ticker == ticker {
			total += o.Shares
		}
	}
	return total
}

// ValidateBuy checks the five buy-admissibility rules against the player's
// current day, without mutating state.
func ValidateBuy(p *PlayerState, day, nextDay *types.MarketDay, ticker string, shares int64) error {
	if day == nil || !day.IsTradingDay {
		return apperr.New(apperr.MarketsClosed, "day %s is not a trading day", tradingDate(day))
	}
	rec, ok := day.RecommendationFor(ticker)
	if !ok {
		return apperr.New(apperr.RecommendationBlocked, "no recommendation for %s on this day", ticker)
	}
	if !rec.Recommendation.IsBuySignal() {
		return apperr.New(apperr.RecommendationBlocked, "recommendation for %s is %s, not BUY/STRONG_BUY", ticker, rec.Recommendation)
	}
	if shares < 1 {
		return apperr.New(apperr.InvalidRequest, "shares must be >= 1")
	}
	if nextDay == nil {
		return apperr.New(apperr.InvalidRequest, "no next trading day available to execute the order")
	}
	openPrice, ok := nextDay.Open(ticker)
	if !ok {
		return apperr.New(apperr.InvalidRequest, "no open price for %s on the next day", ticker)
	}
	cost := openPrice.Mul(decimal.NewFromInt(shares))
	available := p.Cash.Sub(p.reservedCash(nextDay.Open))
	if cost.GreaterThan(available) {
		return apperr.New(apperr.InsufficientCash, "need %s, have %s available", cost, available)
	}
	return nil
}

// ValidateSell checks the three sell-admissibility rules: a trading day, a
// sufficient unreserved position, and a next-day open to execute at.
func ValidateSell(p *PlayerState, day, nextDay *types.MarketDay, ticker string, shares int64) error {
	if day == nil || !day.IsTradingDay {
		return apperr.New(apperr.MarketsClosed, "day %s is not a trading day", tradingDate(day))
	}
	if shares < 1 {
		return apperr.New(apperr.InvalidRequest, "shares must be >= 1")
	}
	held := p.Holdings[ticker].Shares - p.reservedShares(ticker)
	if shares > held {
		return apperr.New(apperr.InsufficientShares, "holds %d available shares of %s, requested %d", held, ticker, shares)
	}
	if nextDay == nil {
		return apperr.New(apperr.InvalidRequest, "no next trading day available to execute the order")
	}
	if _, ok := nextDay.Open(ticker); !ok {
		return apperr.New(apperr.InvalidRequest, "no open price for %s on the next day", ticker)
	}
	return nil
}

// QueueBuy validates and, on success, queues a buy order for execution at
// the next day's open.
func QueueBuy(p *PlayerState, day, nextDay *types.MarketDay, ticker string, shares int64) error {
	if err := ValidateBuy(p, day, nextDay, ticker, shares); err != nil {
		return err
	}
	p.Pending = append(p.Pending, PendingOrder{Type: types.TradeTypeBuy, Ticker: ticker, Shares: shares})
	return nil
}

// QueueSell validates and, on success, queues a sell order for execution at
// the next day's open.
func QueueSell(p *PlayerState, day, nextDay *types.MarketDay, ticker string, shares int64) error {
	if err := ValidateSell(p, day, nextDay, ticker, shares); err != nil {
		return err
	}
	p.Pending = append(p.Pending, PendingOrder{Type: types.TradeTypeSell, Ticker: ticker, Shares: shares})
	return nil
}

// applyOrder executes a single settled order against cash and holdings,
// appending the resulting trade.
func applyOrder(p *PlayerState, dayIndex int, date types.MarketDay, nextDay types.MarketDay, o PendingOrder) {
	price, _ := nextDay.Open(o.Ticker)
	total := price.Mul(decimal.NewFromInt(o.Shares))

	switch o.Type {
	case types.TradeTypeBuy:
		p.Cash = p.Cash.Sub(total)
		h := p.Holdings[o.Ticker]
		newShares := h.Shares + o.Shares
		newTotalCost := h.TotalCost.Add(total)
		p.Holdings[o.Ticker] = types.Holding{
			Shares:    newShares,
			TotalCost: newTotalCost,
			AvgCost:   newTotalCost.Div(decimal.NewFromInt(newShares)),
		}
	case types.TradeTypeSell:
		p.Cash = p.Cash.Add(total)
		h := p.Holdings[o.Ticker]
		remaining := h.Shares - o.Shares
		if remaining <= 0 {
			delete(p.Holdings, o.Ticker)
		} else {
			p.Holdings[o.Ticker] = types.Holding{
				Shares:    remaining,
				AvgCost:   h.AvgCost,
				TotalCost: h.AvgCost.Mul(decimal.NewFromInt(remaining)),
			}
		}
	}

	p.Trades = append(p.Trades, types.Trade{
		ID:                 utils.GenerateTradeID(),
		DayIndex:           dayIndex,
		Date:               nextDay.Date,
		Ticker:             o.Ticker,
		Type:               o.Type,
		Shares:             o.Shares,
		Price:              price,
		Total:              total,
		PostTradePortfolio: p.Cash.Add(holdingsValue(p, nextDay)),
	})
}

// holdingsValue prices current holdings using the given day's close,
// falling back to average cost for a ticker the day has no price for.
func holdingsValue(p *PlayerState, day types.MarketDay) decimal.Decimal {
	total := decimal.Zero
	for ticker, h := range p.Holdings {
		price, ok := day.Close(ticker)
		if !ok {
			price = h.AvgCost
		}
		total = total.Add(price.Mul(decimal.NewFromInt(h.Shares)))
	}
	return total
}

// AdvanceDay moves the player from day D (the current day) to D+1:
// snapshot at close(D) with pre-trade holdings, then settle pending orders
// at open(D+1), then increment the day. nextDay may be nil if D was the
// last day in the session.
func AdvanceDay(p *PlayerState, day types.MarketDay, nextDay *types.MarketDay) types.PortfolioSnapshot {
	hv := holdingsValue(p, day)
	total := p.Cash.Add(hv)
	returnUSD := total.Sub(p.InitialCash)
	returnPct, _ := returnUSD.Div(p.InitialCash).Mul(decimal.NewFromInt(100)).Float64()

	snapshot := types.PortfolioSnapshot{
		DayIndex:      p.CurrentDay,
		Date:          day.Date,
		Cash:          p.Cash,
		HoldingsValue: hv,
		TotalValue:    total,
		ReturnPct:     returnPct,
		ReturnUSD:     returnUSD,
	}
	p.History = append(p.History, snapshot)

	if nextDay != nil {
		pending := p.Pending
		p.Pending = nil
		for _, o := range pending {
			applyOrder(p, p.CurrentDay, day, *nextDay, o)
		}
	}

	p.CurrentDay++
	return snapshot
}

// ComputeScore recomputes the four-component score using the live (possibly
// post-trade) cash and holdings, priced at lastKnownDay's close, the most
// recent close known to the player.
func ComputeScore(p *PlayerState, lastKnownDay types.MarketDay, aiReturnPct float64, difficulty types.Difficulty) types.ScoreBreakdown {
	liveValue := p.Cash.Add(holdingsValue(p, lastKnownDay))
	returnUSD := liveValue.Sub(p.InitialCash)
	returnPct, _ := returnUSD.Div(p.InitialCash).Mul(decimal.NewFromInt(100)).Float64()
	p.ReturnPct = returnPct

	portfolioPoints := clamp(returnPct*50, 0, 500)

	buyCount := 0
	for _, t := range p.Trades {
		if t.Type == types.TradeTypeBuy {
			buyCount++
		}
	}
	riskPoints := 50 * float64(buyCount)

	beatAIPoints := 0.0
	if returnPct > aiReturnPct {
		beatAIPoints = 200
	}

	drawdownPct := maxDrawdownPct(p.History)
	drawdownPenalty := 0.0
	if drawdownPct < -10 {
		drawdownPenalty = 20 * drawdownPct
	}

	score := types.ScoreBreakdown{
		PortfolioReturnPoints: portfolioPoints,
		RiskDisciplinePoints:  riskPoints,
		BeatAIPoints:          beatAIPoints,
		DrawdownPenaltyPoints: drawdownPenalty,
		Grade:                 types.GradeForReturn(returnPct, difficulty),
	}
	score.Total = score.PortfolioReturnPoints + score.RiskDisciplinePoints + score.BeatAIPoints + score.DrawdownPenaltyPoints
	p.Score = score
	return score
}

// maxDrawdownPct computes min over t of 100*(V(t)-peak(t))/peak(t) across
// the portfolio history, a non-positive number.
func maxDrawdownPct(history []types.PortfolioSnapshot) float64 {
	if len(history) == 0 {
		return 0
	}
	peak := history[0].TotalValue
	worst := 0.0
	for _, snap := range history {
		if snap.TotalValue.GreaterThan(peak) {
			peak = snap.TotalValue
		}
		if peak.IsZero() {
			continue
		}
		dd, _ := snap.TotalValue.Sub(peak).Div(peak).Mul(decimal.NewFromInt(100)).Float64()
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func tradingDate(day *types.MarketDay) string {
	if day == nil {
		return "unknown"
	}
	return day.Date.Format("2006-01-02")
}
