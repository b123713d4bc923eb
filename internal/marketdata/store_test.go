package marketdata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/classroom-sim/session-coordinator/internal/apperr"
	"github.com/classroom-sim/session-coordinator/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func mustStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestGetSessionWindowJoinsAcrossTickers(t *testing.T) {
	s := mustStore(t)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // Monday
	end := start.AddDate(0, 0, 4)                         // through Friday

	rows := []dayRow{
		{Date: start, Open: decimal.NewFromInt(100), High: decimal.NewFromInt(105), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(102)},
	}
	for d := 1; d <= 4; d++ {
		rows = append(rows, dayRow{
			Date:  start.AddDate(0, 0, d),
			Open:  decimal.NewFromInt(100),
			High:  decimal.NewFromInt(105),
			Low:   decimal.NewFromInt(99),
			Close: decimal.NewFromInt(102),
		})
	}
	if err := s.SaveTicker("AAPL", rows); err != nil {
		t.Fatalf("SaveTicker: %v", err)
	}

	days, err := s.GetSessionWindow([]string{"AAPL"}, start, end)
	if err != nil {
		t.Fatalf("GetSessionWindow: %v", err)
	}
	if len(days) != 5 {
		t.Fatalf("expected 5 calendar days, got %d", len(days))
	}
	for _, d := range days {
		if !d.IsTradingDay {
			t.Errorf("expected %s to be a trading day", d.Date)
		}
	}
}

func TestGetSessionWindowWeekendIsNonTrading(t *testing.T) {
	s := mustStore(t)

	// Friday through Monday: Sat/Sun have no data rows.
	friday := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	monday := friday.AddDate(0, 0, 3)

	rows := []dayRow{
		{Date: friday, Open: decimal.NewFromInt(50), High: decimal.NewFromInt(51), Low: decimal.NewFromInt(49), Close: decimal.NewFromInt(50)},
		{Date: monday, Open: decimal.NewFromInt(50), High: decimal.NewFromInt(51), Low: decimal.NewFromInt(49), Close: decimal.NewFromInt(50)},
	}
	if err := s.SaveTicker("MSFT", rows); err != nil {
		t.Fatalf("SaveTicker: %v", err)
	}

	days, err := s.GetSessionWindow([]string{"MSFT"}, friday, monday)
	if err != nil {
		t.Fatalf("GetSessionWindow: %v", err)
	}
	if len(days) != 4 {
		t.Fatalf("expected 4 calendar days, got %d", len(days))
	}
	for _, d := range days {
		wantTrading := d.Date.Weekday() != time.Saturday && d.Date.Weekday() != time.Sunday
		if d.IsTradingDay != wantTrading {
			t.Errorf("%s: IsTradingDay=%v want %v", d.Date.Weekday(), d.IsTradingDay, wantTrading)
		}
	}
}

func TestGetSessionWindowInsufficientData(t *testing.T) {
	s := mustStore(t)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // Monday
	end := start.AddDate(0, 0, 4)

	// Only seed one of five weekdays.
	if err := s.SaveTicker("GOOG", []dayRow{
		{Date: start, Open: decimal.NewFromInt(1), High: decimal.NewFromInt(1), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(1)},
	}); err != nil {
		t.Fatalf("SaveTicker: %v", err)
	}

	_, err := s.GetSessionWindow([]string{"GOOG"}, start, end)
	if err == nil {
		t.Fatal("expected InsufficientData error")
	}
	if apperr.KindOf(err) != apperr.InsufficientData {
		t.Fatalf("expected InsufficientData, got %v", err)
	}
}

func TestGetSessionWindowRecommendationOrderIsStable(t *testing.T) {
	s := mustStore(t)
	s.ensureLoaded()
	s.mu.Lock()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s.recs = []recommendationRow{
		{Date: day, TickerRecommendation: types.TickerRecommendation{Ticker: "TSLA", Recommendation: types.RecommendationBuy}},
		{Date: day, TickerRecommendation: types.TickerRecommendation{Ticker: "AAPL", Recommendation: types.RecommendationHold}},
	}
	s.mu.Unlock()

	for _, ticker := range []string{"AAPL", "TSLA"} {
		if err := s.SaveTicker(ticker, []dayRow{
			{Date: day, Open: decimal.NewFromInt(1), High: decimal.NewFromInt(1), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(1)},
		}); err != nil {
			t.Fatalf("SaveTicker(%s): %v", ticker, err)
		}
	}

	days, err := s.GetSessionWindow([]string{"AAPL", "TSLA"}, day, day)
	if err != nil {
		t.Fatalf("GetSessionWindow: %v", err)
	}
	if len(days) != 1 || len(days[0].Recommendations) != 2 {
		t.Fatalf("unexpected days: %+v", days)
	}
	if days[0].Recommendations[0].Ticker != "AAPL" || days[0].Recommendations[1].Ticker != "TSLA" {
		t.Fatalf("expected lexicographic order AAPL,TSLA; got %v", days[0].Recommendations)
	}
}

// TestRecommendationsLoadedFromDiskKeepTicker: a recommendation row
// round-tripped through recommendations.json must keep its ticker, so that
// RecommendationFor can resolve it on the serving path.
func TestRecommendationsLoadedFromDiskKeepTicker(t *testing.T) {
	dir := t.TempDir()

	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rows := []recommendationRow{
		{Date: day, TickerRecommendation: types.TickerRecommendation{
			Ticker:         "AAPL",
			Recommendation: types.RecommendationStrongBuy,
			Confidence:     decimal.NewFromFloat(0.9),
		}},
	}
	data, err := json.Marshal(rows)
	if err != nil {
		t.Fatalf("marshal recommendations: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "recommendations.json"), data, 0644); err != nil {
		t.Fatalf("write recommendations.json: %v", err)
	}

	s, err := NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.SaveTicker("AAPL", []dayRow{
		{Date: day, Open: decimal.NewFromInt(100), High: decimal.NewFromInt(101), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(100)},
	}); err != nil {
		t.Fatalf("SaveTicker: %v", err)
	}

	days, err := s.GetSessionWindow([]string{"AAPL"}, day, day)
	if err != nil {
		t.Fatalf("GetSessionWindow: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	rec, ok := days[0].RecommendationFor("AAPL")
	if !ok {
		t.Fatalf("expected a recommendation for AAPL, got %+v", days[0].Recommendations)
	}
	if rec.Ticker != "AAPL" || rec.Recommendation != types.RecommendationStrongBuy {
		t.Fatalf("unexpected recommendation: %+v", rec)
	}
}
