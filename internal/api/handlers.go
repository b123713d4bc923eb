package api

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/classroom-sim/session-coordinator/internal/apperr"
	"github.com/classroom-sim/session-coordinator/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type createRoomRequest struct {
	CreatedBy          string           `json:"created_by"`
	RoomName           string           `json:"room_name"`
	GameMode           types.GameMode   `json:"game_mode"`
	InitialCash        decimal.Decimal  `json:"initial_cash"`
	NumDays            int              `json:"num_days"`
	Tickers            []string         `json:"tickers"`
	Difficulty         types.Difficulty `json:"difficulty"`
	StartDate          string           `json:"start_date"`
	DayDurationSeconds int              `json:"day_duration_seconds"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.InvalidRequest, "malformed request body: %v", err))
		return
	}

	var startDate time.Time
	if req.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeError(w, apperr.New(apperr.InvalidRequest, "start_date must be YYYY-MM-DD"))
			return
		}
		startDate = parsed
	}

	cfg := types.RoomConfig{
		InitialCash:        req.InitialCash,
		NumDays:            req.NumDays,
		Tickers:            req.Tickers,
		Difficulty:         req.Difficulty,
		DayDurationSeconds: req.DayDurationSeconds,
	}

	room, err := s.registry.Create(cfg, req.GameMode, req.CreatedBy, req.RoomName, startDate, req.DayDurationSeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	status := types.RoomStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.registry.List(status)})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	room, err := s.registry.Get(code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type joinRoomRequest struct {
	RoomCode    string `json:"room_code"`
	PlayerName  string `json:"player_name"`
	PlayerEmail string `json:"player_email"`
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.InvalidRequest, "malformed request body: %v", err))
		return
	}
	player, err := s.registry.Join(req.RoomCode, req.PlayerName, req.PlayerEmail)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

type startRoomRequest struct {
	StartedBy string `json:"started_by"`
}

func (s *Server) handleStartRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req startRoomRequest
	json.NewDecoder(r.Body).Decode(&req)
	room, err := s.registry.Start(code, req.StartedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type advanceDayRequest struct {
	InitiatedBy  string `json:"initiated_by"`
	DayTimeLimit *int   `json:"day_time_limit,omitempty"`
}

func (s *Server) handleAdvanceDay(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req advanceDayRequest
	json.NewDecoder(r.Body).Decode(&req)

	current, err := s.registry.Get(code)
	if err != nil {
		writeError(w, err)
		return
	}
	room, err := s.registry.AdvanceDay(code, req.InitiatedBy, current.CurrentDay, req.DayTimeLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type endGameRequest struct {
	EndedBy string `json:"ended_by"`
}

func (s *Server) handleEndGame(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req endGameRequest
	json.NewDecoder(r.Body).Decode(&req)
	room, err := s.registry.EndGame(code, req.EndedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type setTimerRequest struct {
	InitiatedBy     string `json:"initiated_by"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (s *Server) handleSetTimer(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req setTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.InvalidRequest, "malformed request body: %v", err))
		return
	}
	room, err := s.registry.SetTimer(code, req.InitiatedBy, req.DurationSeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	state, err := s.registry.RoomState(code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleLeaderboard serves the ranked leaderboard as JSON by default, or as
// CSV when ?format=csv is given.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	board, err := s.registry.Leaderboard(code)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=\"leaderboard-"+code+".csv\"")
		cw := csv.NewWriter(w)
		cw.Write([]string{"rank", "player_name", "score", "grade", "portfolio_value", "total_return_pct", "current_day", "is_finished"})
		for _, e := range board {
			cw.Write([]string{
				strconv.Itoa(e.Rank),
				e.PlayerName,
				strconv.FormatFloat(e.Score, 'f', 2, 64),
				string(e.Grade),
				e.PortfolioValue.StringFixed(2),
				strconv.FormatFloat(e.TotalReturnPct, 'f', 2, 64),
				strconv.Itoa(e.CurrentDay),
				strconv.FormatBool(e.IsFinished),
			})
		}
		cw.Flush()
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": board})
}

func (s *Server) handleMarkReady(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.InvalidRequest, "invalid player id"))
		return
	}
	player, err := s.registry.MarkReady(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (s *Server) handleUpdatePlayerState(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apperr.New(apperr.InvalidRequest, "invalid player id"))
		return
	}
	var update types.PlayerStateUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, apperr.New(apperr.InvalidRequest, "malformed request body: %v", err))
		return
	}
	player, err := s.registry.UpdatePlayerState(id, update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}
