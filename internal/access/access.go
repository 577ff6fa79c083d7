// Package access decides whether a user may read or write a conversation.
// Every failure path denies: a lookup error is logged and treated as "no".
package access

import (
	"context"

	"go.uber.org/zap"

	"agency-chat-service/internal/models"
	"agency-chat-service/internal/repositories"
)

// Mode distinguishes read from write access.
type Mode string

const (
	Read  Mode = "read"
	Write Mode = "write"
)

// Checker gates conversation access on tenant membership, the durable
// participant list, and the elevated agency admin role.
type Checker struct {
	conversations repositories.ConversationRepository
	logger        *zap.Logger
}

// NewChecker constructs a Checker.
func NewChecker(conversations repositories.ConversationRepository, logger *zap.Logger) *Checker {
	return &Checker{conversations: conversations, logger: logger}
}

// CanAccess reports whether the identity may access the conversation in the
// given mode. Admins of the same agency pass regardless of mode; everyone
// else must be on the participant list.
func (c *Checker) CanAccess(ctx context.Context, id models.Identity, conversationID string, mode Mode) bool {
	if id.IsZero() {
		return false
	}

	conv, err := c.conversations.GetByID(ctx, conversationID)
	if err != nil {
		c.logger.Warn("access check failed, denying",
			zap.String("user_id", id.UserID),
			zap.String("conversation_id", conversationID),
			zap.String("mode", string(mode)),
			zap.Error(err))
		return false
	}

	return c.CanAccessConversation(id, conv)
}

// CanAccessConversation applies the same policy to an already-resolved
// conversation. Mode does not change the outcome: participants and agency
// admins hold both read and write.
func (c *Checker) CanAccessConversation(id models.Identity, conv models.Conversation) bool {
	if id.IsZero() {
		return false
	}
	if conv.AgencyID != id.AgencyID {
		return false
	}
	if conv.HasParticipant(id.UserID) {
		return true
	}
	return id.IsAdmin()
}
