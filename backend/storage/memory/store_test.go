package memory

import (
	"context"
	"testing"
	"time"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/adwski/chat-backend/backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_Users(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore()

	alice := &model.User{Name: "Alice", Email: "alice@example.com"}
	require.NoError(t, ms.CreateUser(ctx, alice))
	require.NotEmpty(t, alice.ID)

	err := ms.CreateUser(ctx, &model.User{Name: "Impostor", Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	bob := &model.User{Name: "Bob", Email: "bob@example.com"}
	require.NoError(t, ms.CreateUser(ctx, bob))

	got, err := ms.GetUserByEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = ms.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	users, err := ms.GetUsersByIDs(ctx, []string{bob.ID, "missing", alice.ID})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[0].Name)
	assert.Equal(t, "Alice", users[1].Name)

	found, err := ms.SearchUsers(ctx, "EXAMPLE", alice.ID)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bob.ID, found[0].ID)
}

func TestMemStore_Chats(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore()
	now := time.Now()

	direct := &model.Chat{ChatName: "sender", UserIDs: []string{"a", "b"}, UpdatedAt: now}
	require.NoError(t, ms.CreateChat(ctx, direct))
	group := &model.Chat{ChatName: "g", IsGroupChat: true, UserIDs: []string{"a", "b", "c"}, UpdatedAt: now.Add(time.Second)}
	require.NoError(t, ms.CreateChat(ctx, group))

	found, err := ms.FindDirectChat(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, direct.ID, found.ID)

	_, err = ms.FindDirectChat(ctx, "a", "c")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	chats, err := ms.ListChatsForUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, group.ID, chats[0].ID)

	// returned copies must not alias stored state
	chats[0].UserIDs[0] = "mutated"
	stored, err := ms.GetChat(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", stored.UserIDs[0])

	stored.ChatName = "renamed"
	require.NoError(t, ms.UpdateChat(ctx, stored))
	stored, err = ms.GetChat(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.ChatName)

	assert.ErrorIs(t, ms.UpdateChat(ctx, &model.Chat{ID: "missing"}), storage.ErrNotFound)
}

func TestMemStore_Messages(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore()

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, ms.CreateMessage(ctx, &model.Message{ChatID: "c1", Content: content}))
	}
	require.NoError(t, ms.CreateMessage(ctx, &model.Message{ChatID: "c2", Content: "other"}))

	msgs, err := ms.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)

	got, err := ms.GetMessage(ctx, msgs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "two", got.Content)

	msgs, err = ms.ListMessages(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
