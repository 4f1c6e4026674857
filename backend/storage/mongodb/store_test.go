package mongodb

import (
	"context"
	"testing"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/adwski/chat-backend/backend/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMockStore(mt *mtest.T) *Store {
	logger := zerolog.Nop()
	return newStore(mt.DB, &logger)
}

func TestStore_GetUserByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	uid := primitive.NewObjectID()

	mt.Run("found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: uid},
			{Key: "name", Value: "Alice"},
			{Key: "email", Value: "alice@example.com"},
		}))

		user, err := newMockStore(mt).GetUserByID(context.Background(), uid.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, uid.Hex(), user.ID)
		assert.Equal(mt, "Alice", user.Name)
	})

	mt.Run("not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat.users", mtest.FirstBatch))

		_, err := newMockStore(mt).GetUserByID(context.Background(), uid.Hex())
		assert.ErrorIs(mt, err, storage.ErrNotFound)
	})

	mt.Run("malformed id", func(mt *mtest.T) {
		// no mock response: the store must not hit the server
		_, err := newMockStore(mt).GetUserByID(context.Background(), "u1")
		assert.ErrorIs(mt, err, storage.ErrNotFound)
	})
}

func TestStore_GetChatWithObjectIDRefs(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes refs", func(mt *mtest.T) {
		var (
			chatID = primitive.NewObjectID()
			alice  = primitive.NewObjectID()
			bob    = primitive.NewObjectID()
			msgID  = primitive.NewObjectID()
		)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat.chats", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: chatID},
			{Key: "chatName", Value: "sender"},
			{Key: "isGroupChat", Value: false},
			{Key: "users", Value: bson.A{alice, bob}},
			{Key: "latestMessage", Value: msgID},
		}))

		chat, err := newMockStore(mt).GetChat(context.Background(), chatID.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, chatID.Hex(), chat.ID)
		assert.Equal(mt, []string{alice.Hex(), bob.Hex()}, chat.UserIDs)
		assert.Equal(mt, msgID.Hex(), chat.LatestMessageID)
		assert.Empty(mt, chat.GroupAdminID)
	})

	mt.Run("malformed id", func(mt *mtest.T) {
		_, err := newMockStore(mt).GetChat(context.Background(), "missing")
		assert.ErrorIs(mt, err, storage.ErrNotFound)
	})
}

func TestStore_CreateChatRejectsMalformedRefs(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("bad user id", func(mt *mtest.T) {
		chat := &model.Chat{UserIDs: []string{primitive.NewObjectID().Hex(), "nope"}}
		err := newMockStore(mt).CreateChat(context.Background(), chat)
		assert.ErrorIs(mt, err, ErrInvalidID)
	})
}

func TestStore_CreateUser(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("assigns id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		user := &model.User{Name: "Alice", Email: "alice@example.com"}
		require.NoError(mt, newMockStore(mt).CreateUser(context.Background(), user))
		assert.Len(mt, user.ID, 24)
	})

	mt.Run("duplicate email", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := newMockStore(mt).CreateUser(context.Background(), &model.User{Email: "alice@example.com"})
		assert.ErrorIs(mt, err, storage.ErrDuplicate)
	})
}

func TestStore_UpdateChat(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("missing chat", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := newMockStore(mt).UpdateChat(context.Background(), &model.Chat{ID: primitive.NewObjectID().Hex()})
		assert.ErrorIs(mt, err, storage.ErrNotFound)
	})

	mt.Run("updated", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := newMockStore(mt).UpdateChat(context.Background(), &model.Chat{
			ID:       primitive.NewObjectID().Hex(),
			ChatName: "new",
		})
		assert.NoError(mt, err)
	})
}

func TestStore_GetUsersByIDsKeepsOrder(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("order", func(mt *mtest.T) {
		a, b, x := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat.users", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: a}, {Key: "name", Value: "A"}},
			bson.D{{Key: "_id", Value: b}, {Key: "name", Value: "B"}},
		))

		users, err := newMockStore(mt).GetUsersByIDs(context.Background(), []string{b.Hex(), x.Hex(), "bogus", a.Hex()})
		require.NoError(mt, err)
		require.Len(mt, users, 2)
		assert.Equal(mt, b.Hex(), users[0].ID)
		assert.Equal(mt, a.Hex(), users[1].ID)
	})
}
