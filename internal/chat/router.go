// Package chat orchestrates message delivery: access checks, rate limits,
// persistence, fan-out and audit, in that order.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agency-chat-service/internal/access"
	"agency-chat-service/internal/bus"
	"agency-chat-service/internal/models"
	"agency-chat-service/internal/observability"
	"agency-chat-service/internal/ratelimit"
	"agency-chat-service/internal/repositories"
)

// ErrPermissionDenied marks an operation refused by the access policy.
var ErrPermissionDenied = errors.New("permission denied")

// SendStatus tags the outcome of a send. The router never returns an error
// to its caller; the status carries the failure class instead.
type SendStatus string

const (
	SendDelivered   SendStatus = "delivered"
	SendDenied      SendStatus = "denied"
	SendRateLimited SendStatus = "rate_limited"
	SendFailed      SendStatus = "failed"
)

// SendResult is the tagged outcome of a send.
type SendResult struct {
	Status  SendStatus
	Message *models.Message
	Reason  string
}

// SendRequest describes one message to route. A request with an empty
// Sender.UserID is system-authored (bot, assistant) and skips the access and
// rate-limit gates; Sender.AgencyID still scopes the audit record.
type SendRequest struct {
	ConversationID string
	Sender         models.Identity
	Content        string
	Type           models.MessageType
	Metadata       models.Metadata
}

// Router is the message pipeline shared by the websocket and REST surfaces.
type Router struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	settings      repositories.SettingsRepository
	audit         repositories.AuditRepository
	checker       *access.Checker
	limiter       *ratelimit.Limiter
	fanout        bus.Broadcaster
	persistTO     time.Duration
	logger        *zap.Logger
}

// NewRouter constructs a Router.
func NewRouter(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	settings repositories.SettingsRepository,
	audit repositories.AuditRepository,
	checker *access.Checker,
	limiter *ratelimit.Limiter,
	fanout bus.Broadcaster,
	persistTimeout time.Duration,
	logger *zap.Logger,
) *Router {
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &Router{
		conversations: conversations,
		messages:      messages,
		settings:      settings,
		audit:         audit,
		checker:       checker,
		limiter:       limiter,
		fanout:        fanout,
		persistTO:     persistTimeout,
		logger:        logger,
	}
}

// Send routes one message: access check, rate limit, persist, conversation
// touch, fan-out, audit. Only users joined to the conversation at this
// moment receive the live push; everyone else catches up via history.
func (r *Router) Send(ctx context.Context, req SendRequest) SendResult {
	if req.Type == "" {
		req.Type = models.MessageText
	}
	system := req.Sender.UserID == ""

	conv, err := r.getConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			observability.IncSendOutcome(string(SendDenied))
			return SendResult{Status: SendDenied, Reason: "no permission to post in this conversation"}
		}
		r.logger.Error("send: conversation lookup failed",
			zap.String("conversation_id", req.ConversationID), zap.Error(err))
		observability.IncSendOutcome(string(SendFailed))
		return SendResult{Status: SendFailed, Reason: "message could not be sent"}
	}
	if !conv.Active {
		observability.IncSendOutcome(string(SendDenied))
		return SendResult{Status: SendDenied, Reason: "conversation is closed"}
	}

	if !system {
		if !r.checker.CanAccessConversation(req.Sender, conv) {
			observability.IncSendOutcome(string(SendDenied))
			return SendResult{Status: SendDenied, Reason: "no permission to post in this conversation"}
		}
		if req.Type == models.MessageFile && !conv.AllowFileUploads {
			observability.IncSendOutcome(string(SendDenied))
			return SendResult{Status: SendDenied, Reason: "file uploads are disabled for this conversation"}
		}
		if !r.allowRate(ctx, req.Sender, req.Type) {
			observability.IncSendOutcome(string(SendRateLimited))
			return SendResult{Status: SendRateLimited, Reason: "rate limit exceeded, try again later"}
		}
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       req.Sender.UserID,
		Content:        req.Content,
		Type:           req.Type,
		Metadata:       req.Metadata,
		ReadBy:         models.ReadReceipts{},
		CreatedAt:      now,
	}
	if !system {
		// the sender has read their own message, at creation time
		msg.ReadBy[req.Sender.UserID] = now
	}

	pctx, cancel := context.WithTimeout(ctx, r.persistTO)
	msg, err = r.messages.Create(pctx, msg)
	cancel()
	if err != nil {
		r.logger.Error("send: persist failed",
			zap.String("conversation_id", conv.ID),
			zap.String("user_id", req.Sender.UserID),
			zap.Error(err))
		observability.IncSendOutcome(string(SendFailed))
		return SendResult{Status: SendFailed, Reason: "message could not be sent"}
	}

	tctx, cancel := context.WithTimeout(ctx, r.persistTO)
	if err := r.conversations.TouchLastMessage(tctx, conv.ID, msg.CreatedAt); err != nil {
		// message is already durable; do not fail the send
		r.logger.Warn("send: conversation touch failed",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	cancel()

	r.fanout.Broadcast(conv.ID, models.ServerEvent{Type: models.EventMessage, Data: msg})

	r.recordAudit(ctx, models.AuditEntry{
		AgencyID:       conv.AgencyID,
		UserID:         req.Sender.UserID,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Action:         models.AuditSend,
		Metadata: models.Metadata{
			"message_type":   string(msg.Type),
			"content_length": len(msg.Content),
		},
	})

	observability.IncSendOutcome(string(SendDelivered))
	return SendResult{Status: SendDelivered, Message: &msg}
}

// History returns the most recent visible messages, access-checked for read.
func (r *Router) History(ctx context.Context, actor models.Identity, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if !r.checker.CanAccess(ctx, actor, conversationID, access.Read) {
		return nil, ErrPermissionDenied
	}
	return r.messages.ListByConversation(ctx, conversationID, limit)
}

// EditMessage replaces a message's content. Only the sender or an agency
// admin may edit; deleted messages and closed conversations refuse.
func (r *Router) EditMessage(ctx context.Context, actor models.Identity, conversationID, messageID, content string) (models.Message, error) {
	conv, err := r.getConversation(ctx, conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if !conv.Active {
		return models.Message{}, ErrPermissionDenied
	}
	msg, err := r.getMessage(ctx, conversationID, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if !r.canModify(actor, conv, msg) {
		return models.Message{}, ErrPermissionDenied
	}

	now := time.Now().UTC()
	ectx, cancel := context.WithTimeout(ctx, r.persistTO)
	err = r.messages.Edit(ectx, messageID, content, now)
	cancel()
	if err != nil {
		return models.Message{}, err
	}

	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &now
	r.fanout.Broadcast(conv.ID, models.ServerEvent{Type: models.EventMessageEdited, Data: msg})

	r.recordAudit(ctx, models.AuditEntry{
		AgencyID:       conv.AgencyID,
		UserID:         actor.UserID,
		ConversationID: conv.ID,
		MessageID:      messageID,
		Action:         models.AuditEdit,
		Metadata:       models.Metadata{"content_length": len(content)},
	})
	return msg, nil
}

// DeleteMessage soft-deletes a message; a second delete is a no-op. The row
// is never physically removed by this path.
func (r *Router) DeleteMessage(ctx context.Context, actor models.Identity, conversationID, messageID string) error {
	conv, err := r.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.Active {
		return ErrPermissionDenied
	}
	msg, err := r.getMessage(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if !r.canModify(actor, conv, msg) {
		return ErrPermissionDenied
	}

	dctx, cancel := context.WithTimeout(ctx, r.persistTO)
	err = r.messages.SoftDelete(dctx, messageID)
	cancel()
	if err != nil {
		return err
	}

	r.fanout.Broadcast(conv.ID, models.ServerEvent{
		Type: models.EventMessageDeleted,
		Data: map[string]string{"conversation_id": conv.ID, "message_id": messageID},
	})

	r.recordAudit(ctx, models.AuditEntry{
		AgencyID:       conv.AgencyID,
		UserID:         actor.UserID,
		ConversationID: conv.ID,
		MessageID:      messageID,
		Action:         models.AuditDelete,
		Metadata:       models.Metadata{"message_type": string(msg.Type)},
	})
	return nil
}

// MarkRead records a read receipt and announces it to joined users.
func (r *Router) MarkRead(ctx context.Context, actor models.Identity, conversationID, messageID string) error {
	if !r.checker.CanAccess(ctx, actor, conversationID, access.Read) {
		return ErrPermissionDenied
	}
	// the receipt must land on a message of this conversation
	if _, err := r.getMessage(ctx, conversationID, messageID); err != nil {
		return err
	}

	now := time.Now().UTC()
	mctx, cancel := context.WithTimeout(ctx, r.persistTO)
	err := r.messages.MarkRead(mctx, messageID, actor.UserID, now)
	cancel()
	if err != nil {
		return err
	}

	r.fanout.Broadcast(conversationID, models.ServerEvent{
		Type: models.EventRead,
		Data: models.ReadPayload{
			ConversationID: conversationID,
			MessageID:      messageID,
			UserID:         actor.UserID,
			ReadAt:         now,
		},
	})

	r.recordAudit(ctx, models.AuditEntry{
		AgencyID:       actor.AgencyID,
		UserID:         actor.UserID,
		ConversationID: conversationID,
		MessageID:      messageID,
		Action:         models.AuditRead,
	})
	return nil
}

// RecordMembership audits join/leave of the live conversation view.
func (r *Router) RecordMembership(ctx context.Context, actor models.Identity, conversationID, action string) {
	r.recordAudit(ctx, models.AuditEntry{
		AgencyID:       actor.AgencyID,
		UserID:         actor.UserID,
		ConversationID: conversationID,
		Action:         action,
	})
}

func (r *Router) allowRate(ctx context.Context, sender models.Identity, msgType models.MessageType) bool {
	action := ratelimit.ActionMessage
	if msgType == models.MessageFile {
		action = ratelimit.ActionFile
	}

	// per-agency override, zero means default
	limit := 0
	sctx, cancel := context.WithTimeout(ctx, r.persistTO)
	settings, err := r.settings.GetByAgency(sctx, sender.AgencyID)
	cancel()
	if err == nil {
		if action == ratelimit.ActionFile {
			limit = settings.FilesPerMinute
		} else {
			limit = settings.MessagesPerMinute
		}
	} else if !errors.Is(err, repositories.ErrSettingsNotFound) {
		r.logger.Warn("send: settings lookup failed, using default limits",
			zap.String("agency_id", sender.AgencyID), zap.Error(err))
	}

	return r.limiter.Allow(sender.UserID, action, limit)
}

func (r *Router) getConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	gctx, cancel := context.WithTimeout(ctx, r.persistTO)
	defer cancel()
	return r.conversations.GetByID(gctx, conversationID)
}

func (r *Router) getMessage(ctx context.Context, conversationID, messageID string) (models.Message, error) {
	gctx, cancel := context.WithTimeout(ctx, r.persistTO)
	defer cancel()
	msg, err := r.messages.GetByID(gctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.ConversationID != conversationID {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return msg, nil
}

func (r *Router) canModify(actor models.Identity, conv models.Conversation, msg models.Message) bool {
	if !r.checker.CanAccessConversation(actor, conv) {
		return false
	}
	return msg.SenderID == actor.UserID || actor.IsAdmin()
}

func (r *Router) recordAudit(ctx context.Context, entry models.AuditEntry) {
	actx, cancel := context.WithTimeout(ctx, r.persistTO)
	defer cancel()
	if err := r.audit.Record(actx, entry); err != nil {
		r.logger.Warn("audit append failed",
			zap.String("action", entry.Action),
			zap.String("conversation_id", entry.ConversationID),
			zap.Error(err))
	}
}
