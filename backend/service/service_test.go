package service

import (
	"context"
	"testing"

	"github.com/adwski/chat-backend/backend/auth"
	"github.com/adwski/chat-backend/backend/model"
	"github.com/adwski/chat-backend/backend/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tokens, err := auth.NewTokenManager("test-secret", 0)
	require.NoError(t, err)
	logger := zerolog.Nop()
	return NewService(Config{
		Store:          memory.NewMemStore(),
		TokenManager:   tokens,
		PasswordHasher: auth.NewPasswordHasher(bcrypt.MinCost),
		Logger:         &logger,
	})
}

func register(t *testing.T, svc *Service, name string) *model.User {
	t.Helper()
	res, err := svc.Register(context.Background(), RegisterRequest{
		Name:     name,
		Email:    name + "@example.com",
		Password: "pass-" + name,
	})
	require.NoError(t, err)
	return &res.User
}

func TestService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	res, err := svc.Register(ctx, RegisterRequest{Name: "Alice", Email: " Alice@Example.com ", Password: "secret"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "alice@example.com", res.Email)
	assert.Equal(t, model.DefaultPic, res.Pic)
	assert.NotEqual(t, "secret", res.Password)

	_, err = svc.Register(ctx, RegisterRequest{Name: "Alice2", Email: "alice@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = svc.Register(ctx, RegisterRequest{Name: "NoPass", Email: "np@example.com"})
	assert.ErrorIs(t, err, ErrMissingFields)

	logged, err := svc.Login(ctx, LoginRequest{Email: "ALICE@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, res.ID, logged.ID)

	_, err = svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "secret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := svc.Authenticate(ctx, logged.Token)
	require.NoError(t, err)
	assert.Equal(t, res.ID, user.ID)

	_, err = svc.Authenticate(ctx, "bogus")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestService_SearchUsersExcludesCaller(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	alice := register(t, svc, "alice")
	register(t, svc, "bob")
	register(t, svc, "alina")

	users, err := svc.SearchUsers(ctx, alice, "ali")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alina", users[0].Name)

	users, err = svc.SearchUsers(ctx, alice, "")
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestService_AccessChatIsStable(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	alice, bob := register(t, svc, "alice"), register(t, svc, "bob")

	first, err := svc.AccessChat(ctx, alice, AccessChatRequest{UserID: bob.ID})
	require.NoError(t, err)
	assert.False(t, first.IsGroupChat)
	assert.Len(t, first.Users, 2)

	second, err := svc.AccessChat(ctx, bob, AccessChatRequest{UserID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = svc.AccessChat(ctx, alice, AccessChatRequest{})
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = svc.AccessChat(ctx, alice, AccessChatRequest{UserID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_GroupChat(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	alice, bob, carol, dave := register(t, svc, "alice"), register(t, svc, "bob"),
		register(t, svc, "carol"), register(t, svc, "dave")

	_, err := svc.CreateGroupChat(ctx, alice, GroupChatRequest{Name: "g", Users: []string{bob.ID}})
	assert.ErrorIs(t, err, ErrGroupTooSmall)
	_, err = svc.CreateGroupChat(ctx, alice, GroupChatRequest{Users: []string{bob.ID, carol.ID}})
	assert.ErrorIs(t, err, ErrMissingFields)

	group, err := svc.CreateGroupChat(ctx, alice, GroupChatRequest{Name: "team", Users: []string{bob.ID, carol.ID}})
	require.NoError(t, err)
	assert.True(t, group.IsGroupChat)
	assert.Len(t, group.Users, 3)
	require.NotNil(t, group.GroupAdmin)
	assert.Equal(t, alice.ID, group.GroupAdmin.ID)

	renamed, err := svc.RenameGroup(ctx, bob, RenameGroupRequest{ChatID: group.ID, ChatName: "crew"})
	require.NoError(t, err)
	assert.Equal(t, "crew", renamed.ChatName)

	_, err = svc.RenameGroup(ctx, alice, RenameGroupRequest{ChatID: "missing", ChatName: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.AddToGroup(ctx, bob, GroupMemberRequest{ChatID: group.ID, UserID: dave.ID})
	assert.ErrorIs(t, err, ErrForbidden)

	added, err := svc.AddToGroup(ctx, alice, GroupMemberRequest{ChatID: group.ID, UserID: dave.ID})
	require.NoError(t, err)
	assert.Len(t, added.Users, 4)

	_, err = svc.RemoveFromGroup(ctx, bob, GroupMemberRequest{ChatID: group.ID, UserID: carol.ID})
	assert.ErrorIs(t, err, ErrForbidden)

	left, err := svc.RemoveFromGroup(ctx, bob, GroupMemberRequest{ChatID: group.ID, UserID: bob.ID})
	require.NoError(t, err)
	assert.Len(t, left.Users, 3)

	direct, err := svc.AccessChat(ctx, alice, AccessChatRequest{UserID: bob.ID})
	require.NoError(t, err)
	_, err = svc.AddToGroup(ctx, alice, GroupMemberRequest{ChatID: direct.ID, UserID: carol.ID})
	assert.ErrorIs(t, err, ErrNotGroup)
}

func TestService_Messages(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	alice, bob, eve := register(t, svc, "alice"), register(t, svc, "bob"), register(t, svc, "eve")

	chat, err := svc.AccessChat(ctx, alice, AccessChatRequest{UserID: bob.ID})
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, alice, SendMessageRequest{ChatID: chat.ID, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, msg.Sender.ID)
	require.NotNil(t, msg.Chat)
	assert.Len(t, msg.Chat.Users, 2)

	_, err = svc.SendMessage(ctx, bob, SendMessageRequest{ChatID: chat.ID, Content: "hi back"})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, eve, SendMessageRequest{ChatID: chat.ID, Content: "intrude"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.SendMessage(ctx, alice, SendMessageRequest{ChatID: chat.ID, Content: "  "})
	assert.ErrorIs(t, err, ErrMissingFields)

	msgs, err := svc.AllMessages(ctx, bob, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hi back", msgs[1].Content)

	_, err = svc.AllMessages(ctx, eve, chat.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	chats, err := svc.FetchChats(ctx, alice)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.NotNil(t, chats[0].LatestMessage)
	assert.Equal(t, "hi back", chats[0].LatestMessage.Content)
}
