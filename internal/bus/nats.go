package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"agency-chat-service/internal/models"
)

const fanoutSubjectPrefix = "chat.fanout."

type relayEnvelope struct {
	Origin         string             `json:"origin"`
	ConversationID string             `json:"conversation_id"`
	Event          models.ServerEvent `json:"event"`
}

// NATSFanout relays fan-out events between instances. Local delivery always
// happens directly; the relay republishes to NATS and applies events
// arriving from other instances to the local hub.
type NATSFanout struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	local  Broadcaster
	origin string
	logger *zap.Logger
}

// NewNATSFanout connects to NATS and subscribes to the fan-out subject tree.
func NewNATSFanout(url, origin string, local Broadcaster, logger *zap.Logger) (*NATSFanout, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	f := &NATSFanout{conn: conn, local: local, origin: origin, logger: logger}

	f.sub, err = conn.Subscribe(fanoutSubjectPrefix+">", f.handleRelay)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe fanout: %w", err)
	}
	return f, nil
}

// Broadcast delivers locally and relays to the other instances.
func (f *NATSFanout) Broadcast(conversationID string, event models.ServerEvent) {
	f.local.Broadcast(conversationID, event)

	payload, err := json.Marshal(relayEnvelope{
		Origin:         f.origin,
		ConversationID: conversationID,
		Event:          event,
	})
	if err != nil {
		f.logger.Error("fanout relay marshal failed", zap.Error(err))
		return
	}
	if err := f.conn.Publish(fanoutSubjectPrefix+conversationID, payload); err != nil {
		f.logger.Warn("fanout relay publish failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

func (f *NATSFanout) handleRelay(msg *nats.Msg) {
	var env relayEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		f.logger.Warn("fanout relay decode failed", zap.Error(err))
		return
	}
	if env.Origin == f.origin {
		return
	}
	f.local.Broadcast(env.ConversationID, env.Event)
}

// Close drains the subscription and closes the connection.
func (f *NATSFanout) Close() {
	if f.sub != nil {
		_ = f.sub.Unsubscribe()
	}
	if f.conn != nil {
		f.conn.Close()
	}
}
