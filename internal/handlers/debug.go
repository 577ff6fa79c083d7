package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agency-chat-service/internal/middleware"
	"agency-chat-service/internal/observability"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, secret string, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/event-test", middleware.Auth(secret), func(c *gin.Context) {
		identity, _ := middleware.IdentityFromContext(c)
		err := observability.PublishEvent(c.Request.Context(), "ws_events.debug", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "debug_test",
			Payload: map[string]any{
				"user_id":    identity.UserID,
				"agency_id":  identity.AgencyID,
				"request_id": observability.RequestIDFromRequest(c.Request),
			},
		})
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event publish failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
