// Package bus abstracts "deliver this event to every joined user". The
// in-process hub satisfies it directly; the NATS relay extends delivery
// across instances without the message router knowing the difference.
package bus

import "agency-chat-service/internal/models"

// Broadcaster fans an event out to the live connections joined to a
// conversation.
type Broadcaster interface {
	Broadcast(conversationID string, event models.ServerEvent)
}
