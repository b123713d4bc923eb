// Package types provides configuration types for the classroom trading
// session coordinator.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoomConfig is the recognized subset of a room's game configuration.
// Clients submit an open structured object; ingress
// validation drops anything not listed here.
type RoomConfig struct {
	InitialCash        decimal.Decimal `json:"initial_cash"`
	NumDays            int             `json:"num_days"`
	Tickers            []string        `json:"tickers"`
	Difficulty         Difficulty      `json:"difficulty"`
	DayDurationSeconds int             `json:"day_duration_seconds,omitempty"`
}

// DefaultInitialCash is used when a room config omits initial_cash.
var DefaultInitialCash = decimal.NewFromInt(100000)

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	WebSocketPath  string        `json:"websocketPath"`
	ReadTimeout    time.Duration `json:"readTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout"`
	MaxConnections int           `json:"maxConnections"`
	EnableMetrics  bool          `json:"enableMetrics"`
	MetricsPort    int           `json:"metricsPort"`
}

// GradeThreshold is the minimum raw return percent for one letter grade;
// thresholds are evaluated from highest grade to lowest.
type GradeThreshold struct {
	Grade       Grade
	MinReturnPct float64
}

// ThresholdsFor returns the ordered grade thresholds for a difficulty.
func ThresholdsFor(d Difficulty) []GradeThreshold {
	switch d {
	case DifficultyEasy:
		return []GradeThreshold{
			{GradeA, 5}, {GradeB, 2}, {GradeC, 0}, {GradeD, -3},
		}
	case DifficultyHard:
		return []GradeThreshold{
			{GradeA, 15}, {GradeB, 10}, {GradeC, 5}, {GradeD, 0},
		}
	default: // medium
		return []GradeThreshold{
			{GradeA, 10}, {GradeB, 5}, {GradeC, 0}, {GradeD, -5},
		}
	}
}

// GradeForReturn derives the letter grade from a raw return percent using
// the difficulty-dependent thresholds.
func GradeForReturn(returnPct float64, difficulty Difficulty) Grade {
	for _, t := range ThresholdsFor(difficulty) {
		if returnPct >= t.MinReturnPct {
			return t.Grade
		}
	}
	return GradeF
}
