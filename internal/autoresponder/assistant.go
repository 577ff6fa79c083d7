package autoresponder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"agency-chat-service/internal/llm"
	"agency-chat-service/internal/models"
	"agency-chat-service/internal/repositories"
)

// Fixed assistant fallbacks; the assistant path never surfaces an error to
// the message router.
const (
	AssistantUnavailableReply = "The AI assistant is not available right now. Please try again later."
	AssistantErrorReply       = "An error occurred while generating a response. Please try again later."
)

const (
	historyFetchLimit = 20
	transcriptTurns   = 6
)

const assistantInstructions = `Respond professionally and in the language the client writes in.
Use the agency context above when it is relevant.
If you do not know the answer, say so instead of guessing.
Prefer concrete, actionable suggestions.`

// Reply is an assistant answer with its generation metadata.
type Reply struct {
	Content   string
	Model     string
	ElapsedMS int64
}

// Assistant is the agency-staff-facing LLM responder. It is gated per
// agency; absent or disabled configuration produces no reply at all.
type Assistant struct {
	settings repositories.SettingsRepository
	messages repositories.MessageRepository
	client   llm.Client
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAssistant constructs an Assistant. A nil client means no backend is
// configured; enabled agencies then get the fixed unavailable reply.
func NewAssistant(
	settings repositories.SettingsRepository,
	messages repositories.MessageRepository,
	client llm.Client,
	timeout time.Duration,
	logger *zap.Logger,
) *Assistant {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Assistant{
		settings: settings,
		messages: messages,
		client:   client,
		timeout:  timeout,
		logger:   logger,
	}
}

// Respond generates a reply to the user message. The second return value is
// false when the agency has no assistant configured or it is disabled: the
// caller sends nothing and the backend is never called.
func (a *Assistant) Respond(ctx context.Context, agencyID, conversationID, userMessage string) (Reply, bool) {
	settings, err := a.settings.GetByAgency(ctx, agencyID)
	if err != nil {
		if !errors.Is(err, repositories.ErrSettingsNotFound) {
			a.logger.Warn("assistant: settings lookup failed",
				zap.String("agency_id", agencyID), zap.Error(err))
		}
		return Reply{}, false
	}
	if !settings.AIEnabled {
		return Reply{}, false
	}
	if a.client == nil {
		return Reply{Content: AssistantUnavailableReply}, true
	}

	system := a.buildSystemPrompt(ctx, settings, conversationID)

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	resp, err := a.client.Complete(cctx, &llm.CompletionRequest{
		Model:       settings.AIModel,
		Temperature: settings.AITemperature,
		MaxTokens:   settings.AIMaxTokens,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: userMessage},
		},
	})
	if err != nil {
		a.logger.Error("assistant: completion failed",
			zap.String("agency_id", agencyID),
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return Reply{Content: AssistantErrorReply}, true
	}

	return Reply{
		Content:   resp.Content,
		Model:     resp.Model,
		ElapsedMS: resp.LatencyMs,
	}, true
}

// buildSystemPrompt combines the agency prompt, a short transcript of the
// recent plain-text turns, and the fixed instruction block.
func (a *Assistant) buildSystemPrompt(ctx context.Context, settings models.ChatSettings, conversationID string) string {
	var b strings.Builder
	if settings.AISystemPrompt != "" {
		b.WriteString(settings.AISystemPrompt)
		b.WriteString("\n\n")
	}

	if transcript := a.renderTranscript(ctx, conversationID); transcript != "" {
		b.WriteString("Recent conversation:\n")
		b.WriteString(transcript)
		b.WriteString("\n")
	}

	b.WriteString(assistantInstructions)
	return b.String()
}

func (a *Assistant) renderTranscript(ctx context.Context, conversationID string) string {
	history, err := a.messages.ListByConversation(ctx, conversationID, historyFetchLimit)
	if err != nil {
		a.logger.Warn("assistant: history fetch failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return ""
	}

	var turns []string
	for _, msg := range history {
		switch msg.Type {
		case models.MessageText:
			turns = append(turns, fmt.Sprintf("User: %s", msg.Content))
		case models.MessageAIResponse:
			turns = append(turns, fmt.Sprintf("Assistant: %s", msg.Content))
		}
	}
	if len(turns) > transcriptTurns {
		turns = turns[len(turns)-transcriptTurns:]
	}
	return strings.Join(turns, "\n")
}
