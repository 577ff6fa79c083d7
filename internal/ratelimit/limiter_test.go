package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowDefaultMessageQuota(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < DefaultMessagesPerMinute; i++ {
		require.True(t, l.Allow("user-1", ActionMessage, 0), "send %d should pass", i+1)
	}
	assert.False(t, l.Allow("user-1", ActionMessage, 0), "send over quota must be rejected")
}

func TestAllowWindowReset(t *testing.T) {
	now := time.Now()
	l := NewLimiter()
	l.now = func() time.Time { return now }

	for i := 0; i < DefaultMessagesPerMinute; i++ {
		require.True(t, l.Allow("user-1", ActionMessage, 0))
	}
	require.False(t, l.Allow("user-1", ActionMessage, 0))

	now = now.Add(Window + time.Second)
	assert.True(t, l.Allow("user-1", ActionMessage, 0), "quota must reset after the window")
}

func TestAllowPerUserIsolation(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < DefaultMessagesPerMinute; i++ {
		require.True(t, l.Allow("user-1", ActionMessage, 0))
	}
	require.False(t, l.Allow("user-1", ActionMessage, 0))

	assert.True(t, l.Allow("user-2", ActionMessage, 0), "another user's quota is untouched")
}

func TestAllowIndependentActionQuotas(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < DefaultFilesPerMinute; i++ {
		require.True(t, l.Allow("user-1", ActionFile, 0))
	}
	require.False(t, l.Allow("user-1", ActionFile, 0))

	assert.True(t, l.Allow("user-1", ActionMessage, 0), "message quota is separate from file quota")
}

func TestAllowConfiguredProcessDefaults(t *testing.T) {
	l := NewLimiterWithDefaults(2, 1)

	require.True(t, l.Allow("user-1", ActionMessage, 0))
	require.True(t, l.Allow("user-1", ActionMessage, 0))
	assert.False(t, l.Allow("user-1", ActionMessage, 0), "configured message default applies")

	require.True(t, l.Allow("user-1", ActionFile, 0))
	assert.False(t, l.Allow("user-1", ActionFile, 0), "configured file default applies")
}

func TestAllowZeroDefaultsFallBackToPackageDefaults(t *testing.T) {
	l := NewLimiterWithDefaults(0, -1)

	for i := 0; i < DefaultMessagesPerMinute; i++ {
		require.True(t, l.Allow("user-1", ActionMessage, 0))
	}
	assert.False(t, l.Allow("user-1", ActionMessage, 0))
}

func TestAllowCustomLimit(t *testing.T) {
	l := NewLimiter()

	require.True(t, l.Allow("user-1", ActionMessage, 2))
	require.True(t, l.Allow("user-1", ActionMessage, 2))
	assert.False(t, l.Allow("user-1", ActionMessage, 2))
}

func TestDeniedSendConsumesNothing(t *testing.T) {
	now := time.Now()
	l := NewLimiter()
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("user-1", ActionMessage, 1))
	for i := 0; i < 5; i++ {
		require.False(t, l.Allow("user-1", ActionMessage, 1))
	}

	now = now.Add(Window + time.Second)
	assert.True(t, l.Allow("user-1", ActionMessage, 1), "denials must not extend the window")
}
