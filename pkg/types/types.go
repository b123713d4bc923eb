// Package types provides shared type definitions for the classroom trading
// session coordinator.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameMode selects who drives day advancement for a room.
type GameMode string

const (
	GameModeAsync    GameMode = "async"
	GameModeSync     GameMode = "sync"
	GameModeSyncAuto GameMode = "sync_auto"
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	RoomStatusWaiting    RoomStatus = "waiting"
	RoomStatusInProgress RoomStatus = "in_progress"
	RoomStatusFinished   RoomStatus = "finished"
)

// Difficulty selects the grade thresholds used for scoring.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Recommendation is the offline agent's per-ticker, per-day trading signal.
type Recommendation string

const (
	RecommendationStrongBuy  Recommendation = "STRONG_BUY"
	RecommendationBuy        Recommendation = "BUY"
	RecommendationHold       Recommendation = "HOLD"
	RecommendationSell       Recommendation = "SELL"
	RecommendationStrongSell Recommendation = "STRONG_SELL"
)

// IsBuySignal reports whether the recommendation clears the risk-discipline
// gate for player buys.
func (r Recommendation) IsBuySignal() bool {
	return r == RecommendationBuy || r == RecommendationStrongBuy
}

// TradeType distinguishes a buy from a sell in the append-only trade log.
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// Grade is the letter grade derived from raw return percent.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// TechnicalIndicators is the fixed, small set of indicators the offline
// pipeline attaches to each (ticker, date) row.
type TechnicalIndicators struct {
	SMA20 decimal.Decimal `json:"sma20"`
	RSI14 decimal.Decimal `json:"rsi14"`
	MACD  decimal.Decimal `json:"macd"`
}

// TickerPrice is a single ticker's OHLCV row for one calendar date.
type TickerPrice struct {
	Ticker     string              `json:"ticker"`
	Open       decimal.Decimal     `json:"open"`
	High       decimal.Decimal     `json:"high"`
	Low        decimal.Decimal     `json:"low"`
	Close      decimal.Decimal     `json:"close"`
	Volume     decimal.Decimal     `json:"volume"`
	Indicators TechnicalIndicators `json:"indicators"`
}

// TickerRecommendation is one ticker's recommendation row for one date.
type TickerRecommendation struct {
	Ticker          string          `json:"ticker"`
	Recommendation  Recommendation  `json:"recommendation"`
	Confidence      decimal.Decimal `json:"confidence"`
	TechnicalSignal string          `json:"technical_signal"`
	SentimentSignal string          `json:"sentiment_signal"`
	RiskLevel       string          `json:"risk_level"`
	Rationale       string          `json:"rationale"`
}

// NewsArticle is a single dated, ticker-tagged news item.
type NewsArticle struct {
	Ticker    string    `json:"ticker"`
	Date      time.Time `json:"date"`
	Headline  string    `json:"headline"`
	Summary   string    `json:"summary"`
	Sentiment string    `json:"sentiment"`
}

// MarketDay is one calendar date's joined prices, recommendations, news and
// indicators, across every ticker configured for a session.
type MarketDay struct {
	Date            time.Time              `json:"date"`
	IsTradingDay    bool                   `json:"is_trading_day"`
	Prices          map[string]TickerPrice `json:"prices"`
	Recommendations []TickerRecommendation `json:"recommendations"`
	News            []NewsArticle          `json:"news"`
}

// Open returns the day's open price for a ticker, or false if absent.
func (d MarketDay) Open(ticker string) (decimal.Decimal, bool) {
	p, ok := d.Prices[ticker]
	if !ok {
		return decimal.Zero, false
	}
	return p.Open, true
}

// Close returns the day's close price for a ticker, or false if absent.
func (d MarketDay) Close(ticker string) (decimal.Decimal, bool) {
	p, ok := d.Prices[ticker]
	if !ok {
		return decimal.Zero, false
	}
	return p.Close, true
}

// RecommendationFor returns the recommendation row for a ticker on this day.
// Recommendations are returned in the order the reader produced them, a
// stable lexicographic-by-ticker ordering that the AI shadow simulator
// relies on for deterministic left-to-right allocation.
func (d MarketDay) RecommendationFor(ticker string) (TickerRecommendation, bool) {
	for _, r := range d.Recommendations {
		if r.Ticker == ticker {
			return r, true
		}
	}
	return TickerRecommendation{}, false
}

// Holding is a player's position in a single ticker.
type Holding struct {
	Shares    int64           `json:"shares"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// Trade is an append-only record of a single executed order. It is recorded
// on DayIndex but executes at the open price of DayIndex+1.
type Trade struct {
	ID                 string          `json:"id"`
	DayIndex           int             `json:"day_index"`
	Date               time.Time       `json:"date"`
	Ticker             string          `json:"ticker"`
	Type               TradeType       `json:"type"`
	Shares             int64           `json:"shares"`
	Price              decimal.Decimal `json:"price"`
	Total              decimal.Decimal `json:"total"`
	PostTradePortfolio decimal.Decimal `json:"post_trade_portfolio_value"`
}

// PortfolioSnapshot is an append-only end-of-day record of portfolio state,
// produced exactly once as a side effect of advancing past a day.
type PortfolioSnapshot struct {
	DayIndex      int             `json:"day_index"`
	Date          time.Time       `json:"date"`
	Cash          decimal.Decimal `json:"cash"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	TotalValue    decimal.Decimal `json:"total_value"`
	ReturnPct     float64         `json:"return_pct"`
	ReturnUSD     decimal.Decimal `json:"return_usd"`
}

// ScoreBreakdown is the four-component decomposition of a player's score,
// recomputed on every day advance.
type ScoreBreakdown struct {
	PortfolioReturnPoints float64 `json:"portfolio_return_points"`
	RiskDisciplinePoints  float64 `json:"risk_discipline_points"`
	BeatAIPoints          float64 `json:"beat_ai_points"`
	DrawdownPenaltyPoints float64 `json:"drawdown_penalty_points"`
	Total                 float64 `json:"total"`
	Grade                 Grade   `json:"grade"`
}

// AIBenchmarkSnapshot is the room-level view of the AI shadow simulation,
// surfaced for UI comparison purposes.
type AIBenchmarkSnapshot struct {
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	ReturnPct      float64         `json:"return_pct"`
	Day            int             `json:"day"`
}
