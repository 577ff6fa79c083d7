package ws

import (
	"go.uber.org/zap"

	"agency-chat-service/internal/models"
)

// Hub delivers events to the live connections of users joined to a
// conversation. It is the single-process broadcaster; a bus-backed relay can
// wrap it for multi-instance deployments.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	logger   *zap.Logger
}

// NewHub composes the registry and room tracker into a broadcaster.
func NewHub(registry *Registry, rooms *Rooms, logger *zap.Logger) *Hub {
	return &Hub{registry: registry, rooms: rooms, logger: logger}
}

// Broadcast pushes the event to every joined user with a live connection.
// Pushes are fire-and-forget; a failing transport is closed and evicted.
func (h *Hub) Broadcast(conversationID string, event models.ServerEvent) {
	for _, userID := range h.rooms.Members(conversationID) {
		sess, ok := h.registry.Get(userID)
		if !ok {
			continue
		}
		if err := sess.Send(event); err != nil {
			h.logger.Warn("websocket write failed, evicting connection",
				zap.String("user_id", userID),
				zap.String("conversation_id", conversationID),
				zap.Error(err))
			_ = sess.Close()
			h.registry.Unregister(sess)
		}
	}
}
