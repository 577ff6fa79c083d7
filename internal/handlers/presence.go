package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agency-chat-service/internal/middleware"
	"agency-chat-service/internal/ws"
)

// PresenceHandler exposes the live connection registry.
type PresenceHandler struct {
	registry *ws.Registry
}

// NewPresenceHandler builds a PresenceHandler.
func NewPresenceHandler(registry *ws.Registry) *PresenceHandler {
	return &PresenceHandler{registry: registry}
}

// OnlineUsers lists the caller's agency members that currently hold a live
// connection. Presence is in-memory state; a restart empties it.
func (h *PresenceHandler) OnlineUsers(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"online": h.registry.Online(identity.AgencyID)})
}
