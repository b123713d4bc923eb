package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/classroom-sim/session-coordinator/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one live WebSocket connection. It mirrors room_state pushes;
// it never accepts commands, the HTTP routes remain the only way to
// mutate a room: the WebSocket push is an optional low-latency mirror of
// the poll-based /state endpoint, not a replacement for it.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
}

// roomStateMessage is the envelope pushed to every connected client
// whenever a room's state changes.
type roomStateMessage struct {
	Type string          `json:"type"`
	Room types.RoomState `json:"room"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()

	s.logger.Info("websocket client connected", zap.String("id", client.ID))

	go s.readPump(client)
	go s.writePump(client)
}

// readPump drains and discards inbound frames, keeping the connection's
// read deadline alive via pong handling; the coordinator has nothing for a
// client to request over the socket beyond keepalive.
func (s *Server) readPump(client *Client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		s.mu.Unlock()
		client.Conn.Close()
		s.logger.Info("websocket client disconnected", zap.String("id", client.ID))
	}()

	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcastRoomState is the rooms.AdvanceHook wired into the registry: it
// fans the new RoomState out to every connected client. It
// recomputes RoomState via the registry's own accessor rather than
// constructing one from the bare types.Room the hook receives, so the
// pushed payload always matches what GET /state would return.
func (s *Server) broadcastRoomState(room types.Room) {
	state, err := s.registry.RoomState(room.Code)
	if err != nil {
		return
	}
	payload, err := json.Marshal(roomStateMessage{Type: "room_state", Room: *state})
	if err != nil {
		s.logger.Warn("failed to marshal room state broadcast", zap.Error(err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		select {
		case client.Send <- payload:
		default:
			s.logger.Warn("dropping room state broadcast for slow client", zap.String("id", client.ID))
		}
	}
}
