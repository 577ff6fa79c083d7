// Package ratelimit bounds per-user message and file-send throughput with a
// fixed window per (user, action). Windows expire lazily: there is no
// background sweep, a stale entry is reset on its next use.
package ratelimit

import (
	"sync"
	"time"
)

// Action classes with independent quotas.
const (
	ActionMessage = "message"
	ActionFile    = "file"
)

// Default per-minute quotas; per-agency settings may override at call time.
const (
	DefaultMessagesPerMinute = 20
	DefaultFilesPerMinute    = 10

	Window = time.Minute
)

type counter struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter keyed by (user, action). One shared
// instance is injected into the message router; tests construct their own.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	window   time.Duration

	messageLimit int
	fileLimit    int

	now func() time.Time
}

// NewLimiter constructs a Limiter with the standard 60-second window and the
// package default quotas.
func NewLimiter() *Limiter {
	return NewLimiterWithDefaults(DefaultMessagesPerMinute, DefaultFilesPerMinute)
}

// NewLimiterWithDefaults constructs a Limiter whose process-level default
// quotas come from configuration. Zero or negative values fall back to the
// package defaults.
func NewLimiterWithDefaults(messagesPerMinute, filesPerMinute int) *Limiter {
	if messagesPerMinute <= 0 {
		messagesPerMinute = DefaultMessagesPerMinute
	}
	if filesPerMinute <= 0 {
		filesPerMinute = DefaultFilesPerMinute
	}
	return &Limiter{
		counters:     make(map[string]*counter),
		window:       Window,
		messageLimit: messagesPerMinute,
		fileLimit:    filesPerMinute,
		now:          time.Now,
	}
}

// Allow consumes one unit of quota for the user and action, bounded by
// limit. A non-positive limit falls back to the process default for the
// action. It returns false once the window's quota is exhausted; denial has
// no side effects.
func (l *Limiter) Allow(userID, action string, limit int) bool {
	if limit <= 0 {
		limit = l.defaultLimit(action)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := userID + ":" + action
	now := l.now()

	c, ok := l.counters[key]
	if !ok || now.After(c.resetAt) {
		l.counters[key] = &counter{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if c.count < limit {
		c.count++
		return true
	}
	return false
}

func (l *Limiter) defaultLimit(action string) int {
	if action == ActionFile {
		return l.fileLimit
	}
	return l.messageLimit
}
