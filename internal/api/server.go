// Package api provides the HTTP and WebSocket surface of the classroom
// session coordinator.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/classroom-sim/session-coordinator/internal/apperr"
	"github.com/classroom-sim/session-coordinator/internal/metrics"
	"github.com/classroom-sim/session-coordinator/internal/rooms"
	"github.com/classroom-sim/session-coordinator/pkg/types"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server is the HTTP/WebSocket API server fronting a Registry.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    map[string]*Client
	registry   *rooms.Registry
	metrics    *metrics.Metrics
}

// NewServer creates an API server backed by registry. metrics may be nil,
// in which case request durations are not recorded.
func NewServer(logger *zap.Logger, config *types.ServerConfig, registry *rooms.Registry, m *metrics.Metrics) *Server {
	s := &Server{
		logger:   logger,
		config:   config,
		router:   mux.NewRouter(),
		clients:  make(map[string]*Client),
		registry: registry,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if m != nil {
		s.router.Use(s.metricsMiddleware)
	}
	s.setupRoutes()
	registry.OnAdvance(s.broadcastRoomState)
	return s
}

// metricsMiddleware records each request's duration against its matched
// route template and resulting status code.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.ObserveHTTP(route, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.router.HandleFunc("/api/v1/rooms", s.handleCreateRoom).Methods("POST")
	s.router.HandleFunc("/api/v1/rooms", s.handleListRooms).Methods("GET")
	s.router.HandleFunc("/api/v1/rooms/join", s.handleJoinRoom).Methods("POST")
	s.router.HandleFunc("/api/v1/rooms/{code}", s.handleGetRoom).Methods("GET")
	s.router.HandleFunc("/api/v1/rooms/{code}/start", s.handleStartRoom).Methods("POST")
	s.router.HandleFunc("/api/v1/rooms/{code}/advance-day", s.handleAdvanceDay).Methods("POST")
	s.router.HandleFunc("/api/v1/rooms/{code}/end-game", s.handleEndGame).Methods("POST")
	s.router.HandleFunc("/api/v1/rooms/{code}/set-timer", s.handleSetTimer).Methods("POST")
	s.router.HandleFunc("/api/v1/rooms/{code}/state", s.handleRoomState).Methods("GET")
	s.router.HandleFunc("/api/v1/rooms/{code}/leaderboard", s.handleLeaderboard).Methods("GET")

	s.router.HandleFunc("/api/v1/players/{id}", s.handleUpdatePlayerState).Methods("PUT")
	s.router.HandleFunc("/api/v1/players/{id}/ready", s.handleMarkReady).Methods("POST")

	s.router.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
}

// Router exposes the underlying mux.Router for tests that want to drive
// the server without the CORS wrapper or a bound listener.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting API server", zap.String("addr", addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully stops the server, closing every live WebSocket client.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, client := range s.clients {
		client.Conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "time": time.Now().Unix()})
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a coordinator error onto its HTTP status and writes it
// as a JSON body.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := httpStatusFor(kind)
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func httpStatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.RoomNotFound:
		return http.StatusNotFound
	case apperr.NotAuthorized:
		return http.StatusForbidden
	case apperr.RoomFinished, apperr.RoomInProgress, apperr.InvalidTransition:
		return http.StatusConflict
	case apperr.InsufficientData, apperr.MarketsClosed, apperr.RecommendationBlocked,
		apperr.InsufficientCash, apperr.InsufficientShares:
		return http.StatusUnprocessableEntity
	case apperr.InvalidRequest:
		return http.StatusBadRequest
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
