// Package autoresponder holds the two policy-driven reply generators: the
// LLM-backed assistant for agency staff and the keyword support bot for
// client-facing chat. Both send their replies back through the message
// router as system-authored messages.
package autoresponder

import (
	"strings"

	"agency-chat-service/internal/models"
)

// Fixed bot replies. The welcome message is the only per-agency text.
const (
	BotDisabledReply = "Support is currently unavailable. Please try again later."
	BotMenuReply     = "I can help with: projects and tasks, quotes and invoices, files and documents, account questions. Reply with a topic, or ask to talk to a human agent."
	BotTransferReply = "Transferring you to a human agent. Please hold on."
	BotFallbackReply = "Sorry, I didn't understand that. Could you rephrase, or ask to talk to a human agent?"

	defaultWelcome = "Hello! How can we help you today?"
)

var (
	greetingKeywords = []string{"hello", "hi", "hey", "good morning", "שלום", "היי", "בוקר טוב"}
	supportKeywords  = []string{"support", "help", "עזרה", "תמיכה"}
	humanKeywords    = []string{"agent", "human", "נציג", "אדם"}
)

// Bot is the client-facing keyword responder. It keeps no state between
// turns: the reply is a pure function of the input and the agency config.
type Bot struct{}

// NewBot constructs a Bot.
func NewBot() *Bot {
	return &Bot{}
}

// Reply matches the lowercased input against the keyword chain, first match
// wins. A disabled bot answers with the fixed unavailable reply.
func (b *Bot) Reply(settings models.ChatSettings, input string) string {
	if !settings.BotEnabled {
		return BotDisabledReply
	}

	text := strings.ToLower(strings.TrimSpace(input))
	switch {
	case containsAny(text, greetingKeywords):
		if settings.BotWelcomeMessage != "" {
			return settings.BotWelcomeMessage
		}
		return defaultWelcome
	case containsAny(text, supportKeywords):
		return BotMenuReply
	case containsAny(text, humanKeywords):
		return BotTransferReply
	default:
		return BotFallbackReply
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
