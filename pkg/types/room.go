// Package types: room and player entities for the classroom session
// coordinator. Rooms and players are mutated in place through the
// registry under a per-room lock; these structs are the persisted shape.
package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Room is a single classroom game instance.
type Room struct {
	ID           uuid.UUID           `json:"id"`
	Code         string              `json:"room_code"`
	CreatorName  string              `json:"created_by"`
	RoomName     string              `json:"room_name,omitempty"`
	Config       RoomConfig          `json:"config"`
	Mode         GameMode            `json:"game_mode"`
	Status       RoomStatus          `json:"status"`
	CurrentDay   int                 `json:"current_day"`
	StartDate    time.Time           `json:"start_date"`
	EndDate      time.Time           `json:"end_date"`
	DayStartedAt *time.Time          `json:"day_started_at,omitempty"`
	DayTimeLimit *int                `json:"day_time_limit,omitempty"` // seconds
	AIBenchmark  AIBenchmarkSnapshot `json:"ai_benchmark"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	EndedAt      *time.Time          `json:"ended_at,omitempty"`
}

// RoomSummary is the narrow read-projection returned by the list-rooms
// operation, decoupled from Room's full internal shape.
type RoomSummary struct {
	Code        string     `json:"room_code"`
	RoomName    string     `json:"room_name,omitempty"`
	CreatorName string     `json:"created_by"`
	Status      RoomStatus `json:"status"`
	Mode        GameMode   `json:"game_mode"`
	NumDays     int        `json:"num_days"`
	CurrentDay  int        `json:"current_day"`
	PlayerCount int        `json:"player_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Player is a single participant in exactly one room.
type Player struct {
	ID          uuid.UUID           `json:"id"`
	RoomID      uuid.UUID           `json:"room_id"`
	Name        string              `json:"player_name"`
	Email       string              `json:"player_email,omitempty"`
	InitialCash decimal.Decimal     `json:"initial_cash"`
	CurrentDay  int                 `json:"current_day"`
	Cash        decimal.Decimal     `json:"cash"`
	Holdings    map[string]Holding  `json:"holdings"`
	Trades      []Trade             `json:"trades"`
	History     []PortfolioSnapshot `json:"portfolio_history"`
	ReturnPct   float64             `json:"total_return_pct"`
	Score       ScoreBreakdown      `json:"score"`
	IsReady     bool                `json:"is_ready"`
	LastSyncDay int                 `json:"last_sync_day"`
	IsFinished  bool                `json:"is_finished"`
	JoinedAt    time.Time           `json:"joined_at"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
}

// PortfolioValue returns the total value recorded in the most recent
// portfolio snapshot, or cash alone if no snapshot exists yet.
func (p Player) PortfolioValue() decimal.Decimal {
	if len(p.History) == 0 {
		return p.Cash
	}
	return p.History[len(p.History)-1].TotalValue
}

// RoomState is the polled snapshot surfaced by GET /rooms/{code}/state.
type RoomState struct {
	RoomCode          string     `json:"room_code"`
	Status            RoomStatus `json:"status"`
	GameMode          GameMode   `json:"game_mode"`
	CurrentDay        int        `json:"current_day"`
	DayStartedAt      *time.Time `json:"day_started_at,omitempty"`
	DayTimeLimit      *int       `json:"day_time_limit,omitempty"`
	TimeRemaining     *int       `json:"time_remaining,omitempty"`
	WaitingForTeacher bool       `json:"waiting_for_teacher"`
	ReadyCount        int        `json:"ready_count"`
	TotalPlayers      int        `json:"total_players"`
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank           int             `json:"rank"`
	PlayerID       uuid.UUID       `json:"player_id"`
	PlayerName     string          `json:"player_name"`
	Score          float64         `json:"score"`
	Grade          Grade           `json:"grade"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	TotalReturnPct float64         `json:"total_return_pct"`
	CurrentDay     int             `json:"current_day"`
	IsFinished     bool            `json:"is_finished"`
}

// PlayerStateUpdate is the body of PUT /players/{id}: the full post-day
// state of one player, applied last-writer-wins onto the stored Player
// record.
type PlayerStateUpdate struct {
	CurrentDay int                 `json:"current_day"`
	Cash       decimal.Decimal     `json:"cash"`
	Holdings   map[string]Holding  `json:"holdings"`
	Trades     []Trade             `json:"trades"`
	History    []PortfolioSnapshot `json:"portfolio_history"`
	Score      ScoreBreakdown      `json:"score"`
	IsFinished bool                `json:"is_finished"`
}
