package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"agency-chat-service/internal/access"
	"agency-chat-service/internal/autoresponder"
	"agency-chat-service/internal/bus"
	"agency-chat-service/internal/chat"
	"agency-chat-service/internal/middleware"
	"agency-chat-service/internal/models"
	"agency-chat-service/internal/observability"
	"agency-chat-service/internal/repositories"
)

const authDeadline = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatSocketHandler owns the websocket endpoint: it upgrades the connection,
// authenticates the first envelope, and then serves the envelope loop until
// the client goes away.
type ChatSocketHandler struct {
	registry  *Registry
	rooms     *Rooms
	checker   *access.Checker
	router    *chat.Router
	fanout    bus.Broadcaster
	assistant *autoresponder.Assistant
	bot       *autoresponder.Bot
	settings  repositories.SettingsRepository
	jwtSecret string
	logger    *zap.Logger
}

// NewChatSocketHandler constructs a ChatSocketHandler.
func NewChatSocketHandler(
	registry *Registry,
	rooms *Rooms,
	checker *access.Checker,
	router *chat.Router,
	fanout bus.Broadcaster,
	assistant *autoresponder.Assistant,
	bot *autoresponder.Bot,
	settings repositories.SettingsRepository,
	jwtSecret string,
	logger *zap.Logger,
) *ChatSocketHandler {
	return &ChatSocketHandler{
		registry:  registry,
		rooms:     rooms,
		checker:   checker,
		router:    router,
		fanout:    fanout,
		assistant: assistant,
		bot:       bot,
		settings:  settings,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Handle upgrades the connection and hands it to the session loop.
func (h *ChatSocketHandler) Handle(c *gin.Context) {
	_, span := otel.Tracer("agency-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	ip := observability.IPFromRequest(c.Request)
	go h.serve(conn, ip)
}

type authPayload struct {
	Token string `json:"token"`
}

type messagePayload struct {
	Content  string          `json:"content"`
	Type     string          `json:"type"`
	Metadata models.Metadata `json:"metadata"`
}

type typingPayload struct {
	Typing bool `json:"typing"`
}

type contentPayload struct {
	Content string `json:"content"`
}

// serve authenticates the connection, then processes envelopes until the
// read loop ends. Authentication failure is the only fault that terminates
// the connection; everything else degrades to an error envelope.
func (h *ChatSocketHandler) serve(conn *websocket.Conn, ip string) {
	ctx := context.Background()

	sess, ok := h.authenticate(conn)
	if !ok {
		_ = conn.Close()
		return
	}

	h.registry.Register(sess)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]any{
			"conn_id":   sess.ConnID,
			"user_id":   sess.Identity.UserID,
			"agency_id": sess.Identity.AgencyID,
			"ip":        ip,
		},
	})

	defer func() {
		h.rooms.LeaveAll(sess.Identity.UserID)
		h.registry.Unregister(sess)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload: map[string]any{
				"conn_id":     sess.ConnID,
				"user_id":     sess.Identity.UserID,
				"agency_id":   sess.Identity.AgencyID,
				"ip":          ip,
				"duration_ms": time.Since(sess.ConnectedAt).Milliseconds(),
			},
		})
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}
		sess.Touch()

		var env models.ClientEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			sess.SendError("malformed envelope")
			continue
		}
		h.dispatch(ctx, sess, env)
	}
}

// authenticate reads the first envelope, which must be an auth frame with a
// valid token.
func (h *ChatSocketHandler) authenticate(conn *websocket.Conn) (*Session, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(authDeadline))
	defer conn.SetReadDeadline(time.Time{})

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	var env models.ClientEnvelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Type != models.ClientAuth {
		writeError(conn, "authentication required")
		return nil, false
	}

	var auth authPayload
	if err := json.Unmarshal(env.Data, &auth); err != nil || auth.Token == "" {
		writeError(conn, "authentication required")
		return nil, false
	}

	identity, err := middleware.ParseToken(h.jwtSecret, auth.Token)
	if err != nil {
		h.logger.Info("websocket auth rejected", zap.Error(err))
		writeError(conn, "invalid token")
		return nil, false
	}

	return NewSession(conn, identity), true
}

func (h *ChatSocketHandler) dispatch(ctx context.Context, sess *Session, env models.ClientEnvelope) {
	observability.IncWSEvent(env.Type)

	switch env.Type {
	case models.ClientJoin:
		h.handleJoin(ctx, sess, env)
	case models.ClientLeave:
		h.handleLeave(ctx, sess, env)
	case models.ClientMessage:
		h.handleMessage(ctx, sess, env)
	case models.ClientTyping:
		h.handleTyping(sess, env)
	case models.ClientRead:
		h.handleRead(ctx, sess, env)
	case models.ClientAIAssist:
		h.handleAssistant(ctx, sess, env)
	case models.ClientSupportBot:
		h.handleSupportBot(ctx, sess, env)
	case models.ClientAuth:
		// already authenticated; ignore
	default:
		sess.SendError("unrecognized message type")
	}
}

func (h *ChatSocketHandler) handleJoin(ctx context.Context, sess *Session, env models.ClientEnvelope) {
	if env.ConversationID == "" {
		sess.SendError("conversation id required")
		return
	}

	history, err := h.router.History(ctx, sess.Identity, env.ConversationID, 50)
	if err != nil {
		sess.SendError(joinErrorMessage(err))
		return
	}

	h.rooms.Join(sess.Identity.UserID, env.ConversationID)
	h.router.RecordMembership(ctx, sess.Identity, env.ConversationID, models.AuditJoin)

	_ = sess.Send(models.ServerEvent{
		Type: models.EventHistory,
		Data: map[string]any{
			"conversation_id": env.ConversationID,
			"messages":        history,
		},
	})
}

func (h *ChatSocketHandler) handleLeave(ctx context.Context, sess *Session, env models.ClientEnvelope) {
	if env.ConversationID == "" {
		sess.SendError("conversation id required")
		return
	}
	h.rooms.Leave(sess.Identity.UserID, env.ConversationID)
	h.router.RecordMembership(ctx, sess.Identity, env.ConversationID, models.AuditLeave)
}

func (h *ChatSocketHandler) handleMessage(ctx context.Context, sess *Session, env models.ClientEnvelope) {
	if env.ConversationID == "" {
		sess.SendError("conversation id required")
		return
	}

	var msg messagePayload
	if err := json.Unmarshal(env.Data, &msg); err != nil || msg.Content == "" {
		sess.SendError("message content required")
		return
	}

	result := h.router.Send(ctx, chat.SendRequest{
		ConversationID: env.ConversationID,
		Sender:         sess.Identity,
		Content:        msg.Content,
		Type:           models.MessageType(msg.Type),
		Metadata:       msg.Metadata,
	})
	if result.Status != chat.SendDelivered {
		sess.SendError(result.Reason)
	}
}

func (h *ChatSocketHandler) handleTyping(sess *Session, env models.ClientEnvelope) {
	if env.ConversationID == "" || !h.rooms.IsJoined(sess.Identity.UserID, env.ConversationID) {
		return
	}

	var typing typingPayload
	if err := json.Unmarshal(env.Data, &typing); err != nil {
		return
	}

	// ephemeral: broadcast only, never persisted
	h.fanout.Broadcast(env.ConversationID, models.ServerEvent{
		Type: models.EventTyping,
		Data: models.TypingPayload{
			ConversationID: env.ConversationID,
			UserID:         sess.Identity.UserID,
			Typing:         typing.Typing,
		},
	})
}

func (h *ChatSocketHandler) handleRead(ctx context.Context, sess *Session, env models.ClientEnvelope) {
	if env.ConversationID == "" || env.MessageID == "" {
		sess.SendError("conversation and message ids required")
		return
	}

	if err := h.router.MarkRead(ctx, sess.Identity, env.ConversationID, env.MessageID); err != nil {
		sess.SendError(readErrorMessage(err))
	}
}

func (h *ChatSocketHandler) handleAssistant(ctx context.Context, sess *Session, env models.ClientEnvelope) {
	if !sess.Identity.IsAdmin() {
		sess.SendError("the assistant is available to agency administrators only")
		return
	}
	if env.ConversationID == "" {
		sess.SendError("conversation id required")
		return
	}
	if !h.checker.CanAccess(ctx, sess.Identity, env.ConversationID, access.Read) {
		sess.SendError("no permission to use this conversation")
		return
	}

	var req contentPayload
	if err := json.Unmarshal(env.Data, &req); err != nil || req.Content == "" {
		sess.SendError("message content required")
		return
	}

	reply, ok := h.assistant.Respond(ctx, sess.Identity.AgencyID, env.ConversationID, req.Content)
	if !ok {
		observability.IncResponder("assistant", "silent")
		return
	}
	observability.IncResponder("assistant", "replied")

	h.router.Send(ctx, chat.SendRequest{
		ConversationID: env.ConversationID,
		Sender:         models.Identity{AgencyID: sess.Identity.AgencyID},
		Content:        reply.Content,
		Type:           models.MessageAIResponse,
		Metadata: models.Metadata{
			"model":              reply.Model,
			"processing_time_ms": reply.ElapsedMS,
		},
	})
}

func (h *ChatSocketHandler) handleSupportBot(ctx context.Context, sess *Session, env models.ClientEnvelope) {
	if env.ConversationID == "" {
		sess.SendError("conversation id required")
		return
	}
	if !h.checker.CanAccess(ctx, sess.Identity, env.ConversationID, access.Write) {
		sess.SendError("no permission to use this conversation")
		return
	}

	var req contentPayload
	if err := json.Unmarshal(env.Data, &req); err != nil || req.Content == "" {
		sess.SendError("message content required")
		return
	}

	settings, err := h.settings.GetByAgency(ctx, sess.Identity.AgencyID)
	if err != nil {
		// zero-value settings answer with the fixed unavailable reply
		settings = models.ChatSettings{}
	}

	reply := h.bot.Reply(settings, req.Content)
	observability.IncResponder("bot", "replied")

	h.router.Send(ctx, chat.SendRequest{
		ConversationID: env.ConversationID,
		Sender:         models.Identity{AgencyID: sess.Identity.AgencyID},
		Content:        reply,
		Type:           models.MessageBot,
	})
}

func joinErrorMessage(err error) string {
	if err == chat.ErrPermissionDenied {
		return "no permission to view this conversation"
	}
	return "could not load conversation history"
}

func readErrorMessage(err error) string {
	switch err {
	case chat.ErrPermissionDenied:
		return "no permission to view this conversation"
	case repositories.ErrMessageNotFound:
		return "message not found"
	default:
		return "could not mark message as read"
	}
}

func writeError(conn *websocket.Conn, message string) {
	payload, err := json.Marshal(models.ErrorEvent(message))
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}
