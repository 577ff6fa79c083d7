package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agency-chat-service/internal/access"
	"agency-chat-service/internal/models"
	"agency-chat-service/internal/mocks"
	"agency-chat-service/internal/ratelimit"
	"agency-chat-service/internal/repositories"
)

type routerFixture struct {
	conversations *mocks.ConversationRepositoryMock
	messages      *mocks.MessageRepositoryMock
	settings      *mocks.SettingsRepositoryMock
	audit         *mocks.AuditRepositoryMock
	fanout        *mocks.BroadcasterMock
	router        *Router
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		conversations: new(mocks.ConversationRepositoryMock),
		messages:      new(mocks.MessageRepositoryMock),
		settings:      new(mocks.SettingsRepositoryMock),
		audit:         new(mocks.AuditRepositoryMock),
		fanout:        new(mocks.BroadcasterMock),
	}
	checker := access.NewChecker(f.conversations, zap.NewNop())
	f.router = NewRouter(f.conversations, f.messages, f.settings, f.audit,
		checker, ratelimit.NewLimiter(), f.fanout, time.Second, zap.NewNop())
	return f
}

func activeConversation() models.Conversation {
	return models.Conversation{
		ID:               "conv-1",
		AgencyID:         "agency-1",
		Type:             models.ConversationGroup,
		Participants:     []string{"user-1", "user-2"},
		AllowFileUploads: true,
		Active:           true,
	}
}

func member() models.Identity {
	return models.Identity{UserID: "user-1", AgencyID: "agency-1", Role: "member"}
}

func TestSendDelivered(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.settings.On("GetByAgency", mock.Anything, "agency-1").
		Return(models.ChatSettings{}, repositories.ErrSettingsNotFound).Once()
	stored := models.Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderID:       "user-1",
		Content:        "hello there",
		Type:           models.MessageText,
		ReadBy:         models.ReadReceipts{"user-1": time.Now().UTC()},
		CreatedAt:      time.Now().UTC(),
	}
	f.messages.On("Create", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		_, senderRead := msg.ReadBy["user-1"]
		return msg.SenderID == "user-1" && msg.Content == "hello there" && senderRead
	})).Return(stored, nil).Once()
	f.conversations.On("TouchLastMessage", mock.Anything, "conv-1", mock.Anything).Return(nil).Once()
	f.fanout.On("Broadcast", "conv-1", mock.MatchedBy(func(ev models.ServerEvent) bool {
		return ev.Type == models.EventMessage
	})).Once()
	f.audit.On("Record", mock.Anything, mock.MatchedBy(func(entry models.AuditEntry) bool {
		return entry.Action == models.AuditSend && entry.AgencyID == "agency-1"
	})).Return(nil).Once()

	result := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1",
		Sender:         member(),
		Content:        "hello there",
	})

	require.Equal(t, SendDelivered, result.Status)
	require.NotNil(t, result.Message)
	assert.Equal(t, "hello there", result.Message.Content)
	assert.Equal(t, models.MessageText, result.Message.Type)
	assert.Contains(t, result.Message.ReadBy, "user-1", "sender has read their own message")

	f.conversations.AssertExpectations(t)
	f.messages.AssertExpectations(t)
	f.fanout.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}

func TestSendDeniedNonParticipant(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()

	result := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1",
		Sender:         models.Identity{UserID: "outsider", AgencyID: "agency-1", Role: "member"},
		Content:        "hi",
	})

	assert.Equal(t, SendDenied, result.Status)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.fanout.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

func TestSendDeniedCrossTenant(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()

	result := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1",
		Sender:         models.Identity{UserID: "user-1", AgencyID: "agency-2", Role: models.RoleAgencyAdmin},
		Content:        "hi",
	})

	assert.Equal(t, SendDenied, result.Status)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendDeniedUnknownConversation(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "missing").
		Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	result := f.router.Send(context.Background(), SendRequest{
		ConversationID: "missing",
		Sender:         member(),
		Content:        "hi",
	})

	assert.Equal(t, SendDenied, result.Status)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendDeniedClosedConversation(t *testing.T) {
	f := newRouterFixture()

	conv := activeConversation()
	conv.Active = false
	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(conv, nil).Once()

	result := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1",
		Sender:         member(),
		Content:        "hi",
	})

	assert.Equal(t, SendDenied, result.Status)
	assert.Equal(t, "conversation is closed", result.Reason)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendDeniedFileUploadsDisabled(t *testing.T) {
	f := newRouterFixture()

	conv := activeConversation()
	conv.AllowFileUploads = false
	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(conv, nil).Once()

	result := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1",
		Sender:         member(),
		Content:        "report.pdf",
		Type:           models.MessageFile,
	})

	assert.Equal(t, SendDenied, result.Status)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendRateLimitedBeforePersist(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil)
	f.settings.On("GetByAgency", mock.Anything, "agency-1").
		Return(models.ChatSettings{MessagesPerMinute: 1}, nil)
	f.messages.On("Create", mock.Anything, mock.Anything).
		Return(models.Message{ID: "msg-1", ConversationID: "conv-1", SenderID: "user-1"}, nil).Once()
	f.conversations.On("TouchLastMessage", mock.Anything, "conv-1", mock.Anything).Return(nil).Once()
	f.fanout.On("Broadcast", "conv-1", mock.Anything).Once()
	f.audit.On("Record", mock.Anything, mock.Anything).Return(nil).Once()

	first := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1", Sender: member(), Content: "one",
	})
	require.Equal(t, SendDelivered, first.Status)

	second := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1", Sender: member(), Content: "two",
	})

	assert.Equal(t, SendRateLimited, second.Status)
	// the rejected send never reaches persistence or fan-out
	f.messages.AssertNumberOfCalls(t, "Create", 1)
	f.fanout.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestSendFailedOnPersistError(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.settings.On("GetByAgency", mock.Anything, "agency-1").
		Return(models.ChatSettings{}, repositories.ErrSettingsNotFound).Once()
	f.messages.On("Create", mock.Anything, mock.Anything).
		Return(models.Message{}, assert.AnError).Once()

	result := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1", Sender: member(), Content: "hi",
	})

	assert.Equal(t, SendFailed, result.Status)
	f.fanout.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestSendSystemAuthoredBypassesGates(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.messages.On("Create", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.SenderID == "" && msg.Type == models.MessageBot
	})).Return(models.Message{
		ID: "msg-bot", ConversationID: "conv-1", Type: models.MessageBot, ReadBy: models.ReadReceipts{},
	}, nil).Once()
	f.conversations.On("TouchLastMessage", mock.Anything, "conv-1", mock.Anything).Return(nil).Once()
	f.fanout.On("Broadcast", "conv-1", mock.Anything).Once()
	f.audit.On("Record", mock.Anything, mock.Anything).Return(nil).Once()

	result := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1",
		Sender:         models.Identity{AgencyID: "agency-1"},
		Content:        "How can we help?",
		Type:           models.MessageBot,
	})

	require.Equal(t, SendDelivered, result.Status)
	assert.Empty(t, result.Message.ReadBy)
	// no rate-limit settings lookup for system sends
	f.settings.AssertNotCalled(t, "GetByAgency", mock.Anything, mock.Anything)
}

func TestSendAuditFailureStillDelivered(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.settings.On("GetByAgency", mock.Anything, "agency-1").
		Return(models.ChatSettings{}, repositories.ErrSettingsNotFound).Once()
	f.messages.On("Create", mock.Anything, mock.Anything).
		Return(models.Message{ID: "msg-1", ConversationID: "conv-1", SenderID: "user-1"}, nil).Once()
	f.conversations.On("TouchLastMessage", mock.Anything, "conv-1", mock.Anything).Return(nil).Once()
	f.fanout.On("Broadcast", "conv-1", mock.Anything).Once()
	f.audit.On("Record", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	result := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1", Sender: member(), Content: "hi",
	})

	assert.Equal(t, SendDelivered, result.Status)
}

func TestHistoryPermissionDenied(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()

	_, err := f.router.History(context.Background(),
		models.Identity{UserID: "outsider", AgencyID: "agency-1", Role: "member"}, "conv-1", 50)

	assert.ErrorIs(t, err, ErrPermissionDenied)
	f.messages.AssertNotCalled(t, "ListByConversation", mock.Anything, mock.Anything, mock.Anything)
}

func TestHistoryClampsLimit(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil)
	f.messages.On("ListByConversation", mock.Anything, "conv-1", 50).
		Return([]models.Message{}, nil).Twice()

	_, err := f.router.History(context.Background(), member(), "conv-1", 0)
	require.NoError(t, err)
	_, err = f.router.History(context.Background(), member(), "conv-1", 10000)
	require.NoError(t, err)

	f.messages.AssertExpectations(t)
}

func TestEditMessageBySenderBroadcasts(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.messages.On("GetByID", mock.Anything, "msg-1").Return(models.Message{
		ID: "msg-1", ConversationID: "conv-1", SenderID: "user-1", Content: "old",
	}, nil).Once()
	f.messages.On("Edit", mock.Anything, "msg-1", "new", mock.Anything).Return(nil).Once()
	f.fanout.On("Broadcast", "conv-1", mock.MatchedBy(func(ev models.ServerEvent) bool {
		return ev.Type == models.EventMessageEdited
	})).Once()
	f.audit.On("Record", mock.Anything, mock.MatchedBy(func(entry models.AuditEntry) bool {
		return entry.Action == models.AuditEdit
	})).Return(nil).Once()

	msg, err := f.router.EditMessage(context.Background(), member(), "conv-1", "msg-1", "new")

	require.NoError(t, err)
	assert.Equal(t, "new", msg.Content)
	assert.True(t, msg.Edited)
	f.fanout.AssertExpectations(t)
}

func TestEditMessageByOtherMemberDenied(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.messages.On("GetByID", mock.Anything, "msg-1").Return(models.Message{
		ID: "msg-1", ConversationID: "conv-1", SenderID: "user-1",
	}, nil).Once()

	_, err := f.router.EditMessage(context.Background(),
		models.Identity{UserID: "user-2", AgencyID: "agency-1", Role: "member"},
		"conv-1", "msg-1", "hijack")

	assert.ErrorIs(t, err, ErrPermissionDenied)
	f.messages.AssertNotCalled(t, "Edit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageWrongConversation(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.messages.On("GetByID", mock.Anything, "msg-1").Return(models.Message{
		ID: "msg-1", ConversationID: "conv-other", SenderID: "user-1",
	}, nil).Once()

	_, err := f.router.EditMessage(context.Background(), member(), "conv-1", "msg-1", "new")

	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
}

func TestDeleteMessageByAdmin(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.messages.On("GetByID", mock.Anything, "msg-1").Return(models.Message{
		ID: "msg-1", ConversationID: "conv-1", SenderID: "user-1",
	}, nil).Once()
	f.messages.On("SoftDelete", mock.Anything, "msg-1").Return(nil).Once()
	f.fanout.On("Broadcast", "conv-1", mock.MatchedBy(func(ev models.ServerEvent) bool {
		return ev.Type == models.EventMessageDeleted
	})).Once()
	f.audit.On("Record", mock.Anything, mock.Anything).Return(nil).Once()

	admin := models.Identity{UserID: "admin-1", AgencyID: "agency-1", Role: models.RoleAgencyAdmin}
	require.NoError(t, f.router.DeleteMessage(context.Background(), admin, "conv-1", "msg-1"))
	f.fanout.AssertExpectations(t)
}

func TestMarkReadBroadcastsReceipt(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.messages.On("GetByID", mock.Anything, "msg-1").Return(models.Message{
		ID: "msg-1", ConversationID: "conv-1", SenderID: "user-2",
	}, nil).Once()
	f.messages.On("MarkRead", mock.Anything, "msg-1", "user-1", mock.Anything).Return(nil).Once()
	f.fanout.On("Broadcast", "conv-1", mock.MatchedBy(func(ev models.ServerEvent) bool {
		payload, ok := ev.Data.(models.ReadPayload)
		return ev.Type == models.EventRead && ok && payload.UserID == "user-1"
	})).Once()
	f.audit.On("Record", mock.Anything, mock.MatchedBy(func(entry models.AuditEntry) bool {
		return entry.Action == models.AuditRead
	})).Return(nil).Once()

	require.NoError(t, f.router.MarkRead(context.Background(), member(), "conv-1", "msg-1"))
	f.fanout.AssertExpectations(t)
}

func TestMarkReadRejectsMessageFromOtherConversation(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.messages.On("GetByID", mock.Anything, "msg-foreign").Return(models.Message{
		ID: "msg-foreign", ConversationID: "conv-other", SenderID: "user-9",
	}, nil).Once()

	err := f.router.MarkRead(context.Background(), member(), "conv-1", "msg-foreign")

	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
	f.messages.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.fanout.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestDeleteMessageInClosedConversation(t *testing.T) {
	f := newRouterFixture()

	conv := activeConversation()
	conv.Active = false
	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(conv, nil).Once()

	err := f.router.DeleteMessage(context.Background(), member(), "conv-1", "msg-1")

	assert.ErrorIs(t, err, ErrPermissionDenied)
	f.messages.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything)
	f.fanout.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

func TestSendSeedsReceiptAtCreationTime(t *testing.T) {
	f := newRouterFixture()

	f.conversations.On("GetByID", mock.Anything, "conv-1").Return(activeConversation(), nil).Once()
	f.settings.On("GetByAgency", mock.Anything, "agency-1").
		Return(models.ChatSettings{}, repositories.ErrSettingsNotFound).Once()
	f.messages.On("Create", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		readAt, ok := msg.ReadBy["user-1"]
		return ok && !msg.CreatedAt.IsZero() && readAt.Equal(msg.CreatedAt)
	})).Return(models.Message{ID: "msg-1", ConversationID: "conv-1", SenderID: "user-1"}, nil).Once()
	f.conversations.On("TouchLastMessage", mock.Anything, "conv-1", mock.Anything).Return(nil).Once()
	f.fanout.On("Broadcast", "conv-1", mock.Anything).Once()
	f.audit.On("Record", mock.Anything, mock.Anything).Return(nil).Once()

	result := f.router.Send(context.Background(), SendRequest{
		ConversationID: "conv-1", Sender: member(), Content: "hi",
	})

	require.Equal(t, SendDelivered, result.Status)
	f.messages.AssertExpectations(t)
}
