package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"agency-chat-service/internal/chat"
	"agency-chat-service/internal/middleware"
	"agency-chat-service/internal/models"
	"agency-chat-service/internal/repositories"
)

// ChatHandler serves the REST surface over conversations and messages. All
// write paths go through the router so REST and websocket sends share one
// pipeline.
type ChatHandler struct {
	conversations repositories.ConversationRepository
	router        *chat.Router
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(conversations repositories.ConversationRepository, router *chat.Router) *ChatHandler {
	return &ChatHandler{conversations: conversations, router: router}
}

// ListConversations returns the conversations visible to the caller. Agency
// admins see every active conversation of their agency.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var (
		convs []models.Conversation
		err   error
	)
	if identity.IsAdmin() {
		convs, err = h.conversations.ListForAgency(c.Request.Context(), identity.AgencyID)
	} else {
		convs, err = h.conversations.ListForUser(c.Request.Context(), identity.AgencyID, identity.UserID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// CreateConversation opens a new conversation within the caller's agency.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req struct {
		Type                 string   `json:"type" binding:"required"`
		Title                string   `json:"title"`
		Participants         []string `json:"participants"`
		AllowFileUploads     *bool    `json:"allow_file_uploads"`
		NotificationsEnabled *bool    `json:"notifications_enabled"`
		RetentionDays        int      `json:"retention_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	convType := models.ConversationType(req.Type)
	switch convType {
	case models.ConversationDirect, models.ConversationGroup,
		models.ConversationSupport, models.ConversationAIAssistant:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown conversation type"})
		return
	}

	conv := models.Conversation{
		ID:                   uuid.NewString(),
		AgencyID:             identity.AgencyID,
		Type:                 convType,
		Title:                req.Title,
		CreatedBy:            identity.UserID,
		Participants:         req.Participants,
		AllowFileUploads:     true,
		NotificationsEnabled: true,
		RetentionDays:        req.RetentionDays,
	}
	if req.AllowFileUploads != nil {
		conv.AllowFileUploads = *req.AllowFileUploads
	}
	if req.NotificationsEnabled != nil {
		conv.NotificationsEnabled = *req.NotificationsEnabled
	}

	created, err := h.conversations.Create(c.Request.Context(), conv)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": created})
}

// CloseConversation deactivates a conversation. The creator or an agency
// admin may close; messages stay readable.
func (h *ChatHandler) CloseConversation(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	conversationID := c.Param("conversation_id")

	conv, err := h.conversations.GetByID(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	if conv.AgencyID != identity.AgencyID || (conv.CreatedBy != identity.UserID && !identity.IsAdmin()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "no permission to close this conversation"})
		return
	}

	if err := h.conversations.Deactivate(c.Request.Context(), conversationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not close conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// PurgeConversation hard-deletes a conversation and its messages. Agency
// admins only; this is the single path that physically removes rows.
func (h *ChatHandler) PurgeConversation(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	if !identity.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}
	conversationID := c.Param("conversation_id")

	conv, err := h.conversations.GetByID(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	if conv.AgencyID != identity.AgencyID {
		c.JSON(http.StatusForbidden, gin.H{"error": "no permission to purge this conversation"})
		return
	}

	if err := h.conversations.Purge(c.Request.Context(), conversationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not purge conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "purged"})
}

// GetMessages returns recent messages of a conversation, oldest first.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	conversationID := c.Param("conversation_id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.router.History(c.Request.Context(), identity, conversationID, limit)
	if err != nil {
		if errors.Is(err, chat.ErrPermissionDenied) {
			c.JSON(http.StatusForbidden, gin.H{"error": "no permission to view this conversation"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// PostMessage sends a message through the shared pipeline.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	conversationID := c.Param("conversation_id")

	var req struct {
		Content  string          `json:"content" binding:"required"`
		Type     string          `json:"type"`
		Metadata models.Metadata `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.router.Send(c.Request.Context(), chat.SendRequest{
		ConversationID: conversationID,
		Sender:         identity,
		Content:        req.Content,
		Type:           models.MessageType(req.Type),
		Metadata:       req.Metadata,
	})

	switch result.Status {
	case chat.SendDelivered:
		c.JSON(http.StatusCreated, gin.H{"message": result.Message})
	case chat.SendDenied:
		c.JSON(http.StatusForbidden, gin.H{"error": result.Reason})
	case chat.SendRateLimited:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": result.Reason})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Reason})
	}
}

// EditMessage rewrites a message's content in place.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	conversationID := c.Param("conversation_id")
	messageID := c.Param("message_id")

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.router.EditMessage(c.Request.Context(), identity, conversationID, messageID, req.Content)
	if err != nil {
		respondChatError(c, err, "could not edit message")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// DeleteMessage soft-deletes a message.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	conversationID := c.Param("conversation_id")
	messageID := c.Param("message_id")

	if err := h.router.DeleteMessage(c.Request.Context(), identity, conversationID, messageID); err != nil {
		respondChatError(c, err, "could not delete message")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// MarkRead records a read receipt for a message.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	conversationID := c.Param("conversation_id")
	messageID := c.Param("message_id")

	if err := h.router.MarkRead(c.Request.Context(), identity, conversationID, messageID); err != nil {
		respondChatError(c, err, "could not mark message as read")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func respondChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, chat.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	case errors.Is(err, repositories.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
