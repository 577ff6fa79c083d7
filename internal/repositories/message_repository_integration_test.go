//go:build integration

package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-chat-service/internal/db"
	"agency-chat-service/internal/models"
)

// Requires a reachable postgres; run with:
//
//	TEST_DB_DSN=postgres://... go test -tags integration ./internal/repositories
func TestMarkReadMergeIsMonotonic(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	database, err := db.Connect(dsn)
	require.NoError(t, err)
	defer database.Close()

	conversations := NewConversationRepo(database)
	messages := NewMessageRepo(database)
	ctx := context.Background()

	conv, err := conversations.Create(ctx, models.Conversation{
		ID:        uuid.NewString(),
		AgencyID:  "agency-int",
		Type:      models.ConversationGroup,
		CreatedBy: "user-1",
		Participants: []string{
			"user-2",
		},
	})
	require.NoError(t, err)
	defer conversations.Purge(ctx, conv.ID)

	created := time.Now().UTC().Truncate(time.Millisecond)
	msg, err := messages.Create(ctx, models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       "user-1",
		Content:        "hello",
		Type:           models.MessageText,
		ReadBy:         models.ReadReceipts{"user-1": created},
		CreatedAt:      created,
	})
	require.NoError(t, err)

	first := created.Add(time.Second)
	require.NoError(t, messages.MarkRead(ctx, msg.ID, "user-2", first))

	got, err := messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.ReadBy, 2, "a new reader adds exactly one entry")
	assert.WithinDuration(t, first, got.ReadBy["user-2"], time.Second)

	later := first.Add(time.Minute)
	require.NoError(t, messages.MarkRead(ctx, msg.ID, "user-2", later))

	got, err = messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, got.ReadBy, 2, "re-reading never adds entries")
	assert.WithinDuration(t, later, got.ReadBy["user-2"], time.Second, "re-reading refreshes the timestamp")
	assert.WithinDuration(t, created, got.ReadBy["user-1"], time.Second, "other readers are untouched")
}
