// Package api_test provides tests for the API server.
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/classroom-sim/session-coordinator/internal/api"
	"github.com/classroom-sim/session-coordinator/internal/marketdata"
	"github.com/classroom-sim/session-coordinator/internal/rooms"
	"github.com/classroom-sim/session-coordinator/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func setupTestServer(t *testing.T) (*api.Server, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()

	store, err := marketdata.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create market data store: %v", err)
	}
	registry := rooms.NewRegistry(logger, store, nil)

	config := &types.ServerConfig{
		Host:          "localhost",
		Port:          0,
		WebSocketPath: "/ws",
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  10 * time.Second,
	}

	server := api.NewServer(logger, config, registry, nil)
	ts := httptest.NewServer(server.Router())
	return server, ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result["status"] != "healthy" {
		t.Fatalf("expected status 'healthy', got %v", result["status"])
	}
}

func TestCreateJoinAndGetRoomFlow(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	createBody := map[string]any{
		"created_by":   "ms-rivera",
		"room_name":    "Period 3",
		"game_mode":    "sync",
		"initial_cash": decimal.NewFromInt(100000),
		"num_days":     3,
		"tickers":      []string{"AAPL"},
		"difficulty":   "medium",
		"start_date":   "2026-01-05",
	}
	resp := postJSON(t, ts, "/api/v1/rooms", createBody)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 creating room, got %d", resp.StatusCode)
	}
	var room types.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	if len(room.Code) != 6 {
		t.Fatalf("expected a 6-character room code, got %q", room.Code)
	}

	joinResp := postJSON(t, ts, "/api/v1/rooms/join", map[string]any{"room_code": room.Code, "player_name": "avery"})
	defer joinResp.Body.Close()
	if joinResp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 joining room, got %d", joinResp.StatusCode)
	}

	getResp, err := http.Get(ts.URL + "/api/v1/rooms/" + room.Code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 getting room, got %d", getResp.StatusCode)
	}
}

func TestGetUnknownRoomReturnsNotFound(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/rooms/ZZZZZZ")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown room code, got %d", resp.StatusCode)
	}
}

func TestStartRoomRequiresCreatorIdentity(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	createBody := map[string]any{
		"created_by":   "ms-rivera",
		"game_mode":    "sync",
		"initial_cash": decimal.NewFromInt(50000),
		"num_days":     2,
		"tickers":      []string{"MSFT"},
		"start_date":   "2026-01-05",
	}
	resp := postJSON(t, ts, "/api/v1/rooms", createBody)
	var room types.Room
	json.NewDecoder(resp.Body).Decode(&room)
	resp.Body.Close()

	startResp := postJSON(t, ts, "/api/v1/rooms/"+room.Code+"/start", map[string]any{"started_by": "someone-else"})
	defer startResp.Body.Close()
	if startResp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 starting room as a non-creator, got %d", startResp.StatusCode)
	}
}
