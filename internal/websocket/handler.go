package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"engage/internal/aggregator"
	"engage/internal/config"
	"engage/internal/hub"
	"engage/internal/registry"
	"engage/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// All origins accepted; deployments needing origin checks put a
		// proxy in front.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// joinRequest is the first message a client sends after the upgrade.
type joinRequest struct {
	Type      string `json:"type"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// Handler supervises connection lifecycle: Connecting on upgrade, Joined
// after a valid join message, Disconnected on transport close or explicit
// leave. It reconciles every transition with the session registry and emits
// membership notifications to faculty observers.
type Handler struct {
	registry   *registry.Registry
	hub        *hub.Hub
	aggregator *aggregator.Aggregator
	cfg        *config.WebSocketConfig
}

// NewHandler creates a connection supervisor.
func NewHandler(reg *registry.Registry, h *hub.Hub, agg *aggregator.Aggregator, cfg *config.WebSocketConfig) *Handler {
	return &Handler{
		registry:   reg,
		hub:        h,
		aggregator: agg,
		cfg:        cfg,
	}
}

// HandleWebSocket upgrades the request and starts supervising the
// connection. Join happens in-band, not via query parameters, so a client
// that never joins costs nothing beyond the socket itself.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, h.cfg.QueueSize, h.cfg.WriteTimeout)
	go h.superviseConnection(conn)
}

// superviseConnection runs the read loop and heartbeat for one connection
// and guarantees registry cleanup on every exit path.
func (h *Handler) superviseConnection(conn *Connection) {
	defer func() {
		sessionID, role, removed := h.registry.RemoveMember(conn)
		_ = conn.Close()
		if removed && role == types.RoleStudent {
			h.hub.NotifyMembershipChange(sessionID, types.MembershipEvent{
				SessionID:    sessionID,
				ConnectionID: conn.ID(),
				Event:        types.MembershipLeft,
			})
		}
		log.Printf("Connection closed: conn=%s session=%s role=%s", conn.ID(), sessionID, role)
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: conn=%s err=%v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req joinRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.sendDiagnostic(conn, "malformed message: expected JSON")
			continue
		}

		switch req.Type {
		case "join":
			h.handleJoin(conn, &req)
		case "leave":
			// Explicit leave tears the connection down; the deferred
			// cleanup handles removal and the left notification.
			return
		default:
			h.sendDiagnostic(conn, "unknown message type: "+req.Type)
		}
	}
}

// handleJoin validates and applies a join request. An invalid request leaves
// the connection in Connecting with a diagnostic frame; it never terminates
// the connection.
func (h *Handler) handleJoin(conn *Connection, req *joinRequest) {
	if !types.IsValidRole(req.Role) {
		h.sendDiagnostic(conn, "join rejected: role must be 'student' or 'faculty'")
		return
	}
	if req.SessionID == "" || !types.IsValidID(req.SessionID) {
		h.sendDiagnostic(conn, "join rejected: valid session_id is required")
		return
	}
	if err := conn.Join(req.Role, req.SessionID); err != nil {
		h.sendDiagnostic(conn, "join rejected: already joined")
		return
	}

	if err := h.registry.AddMember(req.SessionID, conn, req.Role); err != nil {
		log.Printf("Failed to register member: conn=%s err=%v", conn.ID(), err)
		return
	}

	log.Printf("Connection joined: conn=%s session=%s role=%s", conn.ID(), req.SessionID, req.Role)

	ack := &types.Envelope{
		Type: types.EventSystem,
		Payload: map[string]interface{}{
			"event":         "joined",
			"connection_id": conn.ID(),
			"session_id":    req.SessionID,
			"role":          req.Role,
		},
		Timestamp: time.Now(),
	}
	if err := conn.Deliver(ack); err != nil {
		log.Printf("Failed to send join ack: conn=%s err=%v", conn.ID(), err)
	}

	switch req.Role {
	case types.RoleStudent:
		h.hub.NotifyMembershipChange(req.SessionID, types.MembershipEvent{
			SessionID:    req.SessionID,
			ConnectionID: conn.ID(),
			Event:        types.MembershipJoined,
		})
	case types.RoleFaculty:
		// New observers get the current aggregate immediately instead of
		// waiting for the next sample. No data yet is fine; nothing is
		// fabricated.
		if snapshot, err := h.aggregator.Snapshot(req.SessionID); err == nil {
			_ = conn.Deliver(&types.Envelope{
				Type:      types.EventLiveAnalyticsUpdate,
				Payload:   snapshot,
				Timestamp: time.Now(),
			})
		}
	}
}

func (h *Handler) sendDiagnostic(conn *Connection, message string) {
	envelope := &types.Envelope{
		Type: types.EventSystem,
		Payload: map[string]interface{}{
			"event":   "error",
			"message": message,
		},
		Timestamp: time.Now(),
	}
	if err := conn.Deliver(envelope); err != nil {
		log.Printf("Failed to send diagnostic: conn=%s err=%v", conn.ID(), err)
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		case <-conn.ctx.Done():
			return
		}
	}
}
