package ws

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chatspace/internal/observability"
)

// TokenVerifier recovers the authenticated user id from a bearer token.
type TokenVerifier interface {
	Verify(token string) (int, error)
}

// UserWebSocketHandler upgrades per-user event stream connections.
type UserWebSocketHandler struct {
	hub      *Hub
	verifier TokenVerifier
}

// NewUserWebSocketHandler constructs a UserWebSocketHandler.
func NewUserWebSocketHandler(hub *Hub, verifier TokenVerifier) *UserWebSocketHandler {
	return &UserWebSocketHandler{hub: hub, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client under its
// user id.
func (h *UserWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chatspace/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(userID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.users", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   wsEventPayload(info, "ws_connect", 0, ""),
	}, observability.BuildHeaders(requestID, traceID))

	// Keep connection alive and clean on close
	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveClient(userID, conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			_ = observability.PublishEvent(ctx, "ws_events.users", observability.EventEnvelope{
				EventType: "ws_events",
				EventName: "ws_disconnect",
				Payload:   wsEventPayload(info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
			}, observability.BuildHeaders(requestID, traceID))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
				}
				return
			}
		}
	}()
}

func (h *UserWebSocketHandler) validateToken(header string) (int, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.verifier.Verify(parts[1])
	}
	return 0, fmt.Errorf("invalid token")
}

func wsEventPayload(info ConnInfo, event string, durationMs int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMs,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
