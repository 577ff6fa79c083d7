package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"agency-chat-service/internal/bus"
	"agency-chat-service/internal/llm"
	"agency-chat-service/internal/models"
	"agency-chat-service/internal/observability"
	"agency-chat-service/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) Create(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	args := m.Called(ctx, conv)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ConversationRepositoryMock) GetByID(ctx context.Context, id string) (models.Conversation, error) {
	args := m.Called(ctx, id)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, agencyID, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, agencyID, userID)
	var out []models.Conversation
	if val := args.Get(0); val != nil {
		out = val.([]models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForAgency(ctx context.Context, agencyID string) ([]models.Conversation, error) {
	args := m.Called(ctx, agencyID)
	var out []models.Conversation
	if val := args.Get(0); val != nil {
		out = val.([]models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ConversationRepositoryMock) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) Deactivate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) Purge(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetByID(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, messageID, content string, at time.Time) error {
	args := m.Called(ctx, messageID, content, at)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID, userID string, at time.Time) error {
	args := m.Called(ctx, messageID, userID, at)
	return args.Error(0)
}

type SettingsRepositoryMock struct {
	mock.Mock
}

func (m *SettingsRepositoryMock) GetByAgency(ctx context.Context, agencyID string) (models.ChatSettings, error) {
	args := m.Called(ctx, agencyID)
	var out models.ChatSettings
	if val := args.Get(0); val != nil {
		out = val.(models.ChatSettings)
	}
	return out, args.Error(1)
}

type AuditRepositoryMock struct {
	mock.Mock
}

func (m *AuditRepositoryMock) Record(ctx context.Context, entry models.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Broadcast(conversationID string, event models.ServerEvent) {
	m.Called(conversationID, event)
}

type LLMClientMock struct {
	mock.Mock
}

func (m *LLMClientMock) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	args := m.Called(ctx, req)
	var out *llm.CompletionResponse
	if val := args.Get(0); val != nil {
		out = val.(*llm.CompletionResponse)
	}
	return out, args.Error(1)
}

func (m *LLMClientMock) Name() string {
	args := m.Called()
	return args.String(0)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

var (
	_ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
	_ repositories.MessageRepository      = (*MessageRepositoryMock)(nil)
	_ repositories.SettingsRepository     = (*SettingsRepositoryMock)(nil)
	_ repositories.AuditRepository        = (*AuditRepositoryMock)(nil)
	_ bus.Broadcaster                     = (*BroadcasterMock)(nil)
	_ llm.Client                          = (*LLMClientMock)(nil)
	_ observability.Publisher             = (*PublisherMock)(nil)
)
