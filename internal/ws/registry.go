package ws

import (
	"sync"

	"go.uber.org/zap"

	"agency-chat-service/internal/models"
)

// Registry maps connected users to their live session. One instance is
// shared by every event handler; tests construct isolated copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Register stores the session for its user, replacing any previous one
// (last write wins; the replaced transport is left to its own read loop),
// then announces the user online to the rest of the agency.
func (r *Registry) Register(sess *Session) {
	userID := sess.Identity.UserID

	r.mu.Lock()
	if prev, ok := r.sessions[userID]; ok && prev.ConnID != sess.ConnID {
		r.logger.Warn("replacing existing session for user",
			zap.String("user_id", userID),
			zap.String("old_conn_id", prev.ConnID),
			zap.String("new_conn_id", sess.ConnID))
	}
	r.sessions[userID] = sess
	r.mu.Unlock()

	r.broadcastPresence(sess, true)
}

// Unregister removes the session if it is still the current one for its
// user, then announces the user offline. A stale session (already replaced
// by a newer registration) is ignored.
func (r *Registry) Unregister(sess *Session) {
	userID := sess.Identity.UserID

	r.mu.Lock()
	current, ok := r.sessions[userID]
	if !ok || current.ConnID != sess.ConnID {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, userID)
	r.mu.Unlock()

	r.broadcastPresence(sess, false)
}

// Get returns the live session for a user, if connected.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[userID]
	return sess, ok
}

// Online lists the user IDs of an agency with a live connection.
func (r *Registry) Online(agencyID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0)
	for userID, sess := range r.sessions {
		if sess.Identity.AgencyID == agencyID {
			users = append(users, userID)
		}
	}
	return users
}

// broadcastPresence notifies every other connection of the same agency.
// Delivery is best-effort: broken transports are skipped, never retried.
func (r *Registry) broadcastPresence(from *Session, online bool) {
	event := models.ServerEvent{
		Type: models.EventPresence,
		Data: models.PresencePayload{UserID: from.Identity.UserID, Online: online},
	}

	r.mu.RLock()
	peers := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		if sess.Identity.AgencyID == from.Identity.AgencyID && sess.Identity.UserID != from.Identity.UserID {
			peers = append(peers, sess)
		}
	}
	r.mu.RUnlock()

	for _, peer := range peers {
		if err := peer.Send(event); err != nil {
			r.logger.Debug("presence push skipped",
				zap.String("user_id", peer.Identity.UserID),
				zap.Error(err))
		}
	}
}
