// Package marketdata provides the read-through market data reader over the
// append-only store populated by external ingestion pipelines: a
// per-session join of prices, recommendations and news across tickers and
// calendar dates.
package marketdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/classroom-sim/session-coordinator/internal/apperr"
	"github.com/classroom-sim/session-coordinator/pkg/types"
	"github.com/classroom-sim/session-coordinator/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// dayRow is the on-disk row for one ticker on one date.
type dayRow struct {
	Date       time.Time                 `json:"date"`
	Open       decimal.Decimal           `json:"open"`
	High       decimal.Decimal           `json:"high"`
	Low        decimal.Decimal           `json:"low"`
	Close      decimal.Decimal           `json:"close"`
	Volume     decimal.Decimal           `json:"volume"`
	Indicators types.TechnicalIndicators `json:"indicators"`
}

// recommendationRow is the on-disk row for one ticker's recommendation on
// one date. The embedded TickerRecommendation carries the ticker itself;
// declaring a second ticker field here would shadow the embedded one's
// json tag and leave it empty after unmarshal.
type recommendationRow struct {
	Date time.Time `json:"date"`
	types.TickerRecommendation
}

// Store is a read-through, cached reader over per-ticker price files, a
// recommendations file and a news file for a data directory: an in-memory
// cache over lazy disk loads, with a deterministic sample-data fallback
// when nothing has been ingested yet (this subsystem never performs
// ingestion itself).
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string
	prices  map[string][]dayRow // ticker -> rows, sorted by date
	recs    []recommendationRow
	news    []types.NewsArticle
	loaded  bool
}

// NewStore creates a market data store rooted at dataDir.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{
		logger:  logger,
		dataDir: dataDir,
		prices:  make(map[string][]dayRow),
	}, nil
}

func (s *Store) ensureLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	s.loaded = true

	if b, err := os.ReadFile(filepath.Join(s.dataDir, "recommendations.json")); err == nil {
		var recs []recommendationRow
		if err := json.Unmarshal(b, &recs); err == nil {
			s.recs = recs
		}
	}
	if b, err := os.ReadFile(filepath.Join(s.dataDir, "news.json")); err == nil {
		var news []types.NewsArticle
		if err := json.Unmarshal(b, &news); err == nil {
			s.news = news
		}
	}
}

// loadTicker returns the sorted rows for a ticker, generating deterministic
// sample data the first time an unseen ticker's file is missing.
func (s *Store) loadTicker(ticker string, start, end time.Time) []dayRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rows, ok := s.prices[ticker]; ok {
		return rows
	}

	filename := filepath.Join(s.dataDir, ticker+".json")
	data, err := os.ReadFile(filename)
	if err != nil {
		s.logger.Info("generating sample price data", zap.String("ticker", ticker))
		rows := generateSampleRows(ticker, start, end)
		s.prices[ticker] = rows
		return rows
	}

	var rows []dayRow
	if err := json.Unmarshal(data, &rows); err != nil {
		s.logger.Warn("failed to parse price file, using sample data", zap.String("ticker", ticker), zap.Error(err))
		rows = generateSampleRows(ticker, start, end)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	s.prices[ticker] = rows
	return rows
}

// GetSessionWindow returns the ordered MarketDay sequence covering every
// calendar date in [start, end], joining prices, recommendations, and news
// across all configured tickers.
func (s *Store) GetSessionWindow(tickers []string, start, end time.Time) ([]types.MarketDay, error) {
	s.ensureLoaded()

	byTicker := make(map[string]map[time.Time]dayRow, len(tickers))
	for _, t := range tickers {
		rows := s.loadTicker(t, start, end)
		m := make(map[time.Time]dayRow, len(rows))
		for _, r := range rows {
			m[normalizeDate(r.Date)] = r
		}
		byTicker[t] = m
	}

	recsByDate := make(map[time.Time][]recommendationRow)
	tickerSet := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		tickerSet[t] = true
	}
	for _, r := range s.recs {
		if !tickerSet[r.Ticker] {
			continue
		}
		d := normalizeDate(r.Date)
		recsByDate[d] = append(recsByDate[d], r)
	}
	for d := range recsByDate {
		sort.Slice(recsByDate[d], func(i, j int) bool {
			return recsByDate[d][i].Ticker < recsByDate[d][j].Ticker
		})
	}

	newsByDate := make(map[time.Time][]types.NewsArticle)
	for _, n := range s.news {
		if !tickerSet[n.Ticker] {
			continue
		}
		newsByDate[normalizeDate(n.Date)] = append(newsByDate[normalizeDate(n.Date)], n)
	}

	var days []types.MarketDay
	expectedWeekdays := 0
	tradingDaysFound := 0

	for d := normalizeDate(start); !d.After(normalizeDate(end)); d = d.AddDate(0, 0, 1) {
		weekday := d.Weekday() != time.Saturday && d.Weekday() != time.Sunday
		if weekday {
			expectedWeekdays++
		}

		prices := make(map[string]types.TickerPrice, len(tickers))
		allPresent := true
		for _, t := range tickers {
			row, ok := byTicker[t][d]
			if !ok {
				allPresent = false
				continue
			}
			prices[t] = types.TickerPrice{
				Ticker:     t,
				Open:       row.Open,
				High:       row.High,
				Low:        row.Low,
				Close:      row.Close,
				Volume:     row.Volume,
				Indicators: row.Indicators,
			}
		}

		isTradingDay := weekday && allPresent && len(tickers) > 0
		if isTradingDay {
			tradingDaysFound++
		}

		var recs []types.TickerRecommendation
		for _, r := range recsByDate[d] {
			recs = append(recs, r.TickerRecommendation)
		}

		var news []types.NewsArticle
		for cursor := normalizeDate(start); !cursor.After(d); cursor = cursor.AddDate(0, 0, 1) {
			news = append(news, newsByDate[cursor]...)
		}

		days = append(days, types.MarketDay{
			Date:            d,
			IsTradingDay:    isTradingDay,
			Prices:          prices,
			Recommendations: recs,
			News:            news,
		})
	}

	if expectedWeekdays > 0 && tradingDaysFound < expectedWeekdays {
		return days, apperr.New(apperr.InsufficientData,
			"found %d trading days, expected %d across window %s to %s",
			tradingDaysFound, expectedWeekdays, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	return days, nil
}

func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// generateSampleRows deterministically synthesizes a price series for a
// ticker so the coordinator is runnable before the ingestion pipeline has
// populated real data.
func generateSampleRows(ticker string, start, end time.Time) []dayRow {
	seed := int64(0)
	for _, c := range ticker {
		seed = seed*31 + int64(c)
	}

	basePrice := decimal.NewFromInt(100 + seed%400)

	sma20 := utils.NewSMA(20)
	emaFast, emaSlow := basePrice, basePrice

	var rows []dayRow
	price := basePrice
	for d := normalizeDate(start); !d.After(normalizeDate(end)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		step := (seed%7 - 3) // deterministic pseudo-walk per ticker
		seed = seed*1103515245 + 12345
		open := price
		close := open.Add(decimal.NewFromInt(int64(step)))
		if close.LessThanOrEqual(decimal.NewFromInt(1)) {
			close = decimal.NewFromInt(1)
		}
		high := utils.MaxDecimal(open, close).Add(decimal.NewFromInt(1))
		low := utils.MaxDecimal(decimal.Zero, utils.MinDecimal(open, close).Sub(decimal.NewFromInt(1)))

		sma := sma20.Add(close)
		emaFast = close.Sub(emaFast).Mul(decimal.NewFromFloat(2.0 / 13)).Add(emaFast)
		emaSlow = close.Sub(emaSlow).Mul(decimal.NewFromFloat(2.0 / 27)).Add(emaSlow)

		rows = append(rows, dayRow{
			Date:   d,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: decimal.NewFromInt(1000),
			Indicators: types.TechnicalIndicators{
				SMA20: sma,
				RSI14: decimal.NewFromInt(50),
				MACD:  emaFast.Sub(emaSlow),
			},
		})
		price = close
	}
	return rows
}

// SaveTicker writes price rows for a ticker to disk, used by tests and by
// the (out-of-scope) ingestion pipeline when seeding a data directory.
func (s *Store) SaveTicker(ticker string, rows []dayRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal price rows: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dataDir, ticker+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write price file: %w", err)
	}
	s.prices[ticker] = rows
	return nil
}

// ClearCache clears the in-memory cache, forcing the next read to reload
// from disk.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = make(map[string][]dayRow)
	s.loaded = false
}
