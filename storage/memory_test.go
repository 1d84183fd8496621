package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "64b000000000000000000001"
	bob   = "64b000000000000000000002"
	carol = "64b000000000000000000003"
)

// runStoreContract exercises the behavior every MessageStore must share,
// regardless of backend.
func runStoreContract(t *testing.T, store MessageStore) {
	ctx := context.Background()

	conv, existed, err := store.CreateConversation(ctx, []string{alice, bob})
	require.NoError(t, err)
	assert.False(t, existed)
	require.NotEmpty(t, conv.ID)
	assert.Len(t, conv.Participants, 2)

	t.Run("create is idempotent per participant set", func(t *testing.T) {
		again, existed, err := store.CreateConversation(ctx, []string{bob, alice})
		require.NoError(t, err)
		assert.True(t, existed)
		assert.Equal(t, conv.ID, again.ID)
	})

	t.Run("get enforces participation", func(t *testing.T) {
		got, err := store.GetConversation(ctx, conv.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, conv.ID, got.ID)

		_, err = store.GetConversation(ctx, conv.ID, carol)
		assert.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("get missing conversation", func(t *testing.T) {
		_, err := store.GetConversation(ctx, "64b0000000000000000000ff", alice)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("send and list messages in order", func(t *testing.T) {
		now := time.Now().Unix()
		first := &Message{ConversationID: conv.ID, SenderID: alice, Content: "hey", Type: MessageText, CreatedAt: now}
		require.NoError(t, store.SendMessage(ctx, first))
		assert.NotEmpty(t, first.ID)

		second := &Message{ConversationID: conv.ID, SenderID: bob, Content: "hi back", Type: MessageText, CreatedAt: now + 1}
		require.NoError(t, store.SendMessage(ctx, second))

		msgs, err := store.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "hey", msgs[0].Content)
		assert.Equal(t, "hi back", msgs[1].Content)
		assert.False(t, msgs[0].IsRead)
	})

	t.Run("send updates conversation preview", func(t *testing.T) {
		got, err := store.GetConversation(ctx, conv.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, "hi back", got.LastMessage)
	})

	t.Run("mark read skips own messages", func(t *testing.T) {
		updated, err := store.MarkRead(ctx, conv.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated)

		msgs, err := store.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		assert.False(t, msgs[0].IsRead, "own message stays unread")
		assert.True(t, msgs[1].IsRead)

		// Second pass finds nothing left to mark.
		updated, err = store.MarkRead(ctx, conv.ID, alice)
		require.NoError(t, err)
		assert.Zero(t, updated)
	})

	t.Run("list conversations is scoped and ordered", func(t *testing.T) {
		other, _, err := store.CreateConversation(ctx, []string{alice, carol})
		require.NoError(t, err)
		msg := &Message{ConversationID: other.ID, SenderID: carol, Content: "newest", Type: MessageText, CreatedAt: time.Now().Unix() + 100}
		require.NoError(t, store.SendMessage(ctx, msg))

		convs, err := store.ListConversations(ctx, alice)
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, other.ID, convs[0].ID, "most recent activity first")

		convs, err = store.ListConversations(ctx, bob)
		require.NoError(t, err)
		assert.Len(t, convs, 1)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestConversationHasParticipant(t *testing.T) {
	conv := Conversation{Participants: []string{alice, bob}}
	assert.True(t, conv.HasParticipant(alice))
	assert.False(t, conv.HasParticipant(carol))
}
