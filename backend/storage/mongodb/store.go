package mongodb

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/adwski/chat-backend/backend/storage"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	usersCollection    = "users"
	chatsCollection    = "chats"
	messagesCollection = "messages"
)

var (
	ErrConnect   = errors.New("unable to connect to mongodb")
	ErrInvalidID = errors.New("malformed object id")
)

type (
	Config struct {
		Logger   *zerolog.Logger
		URI      string
		Database string
	}

	// Store is a MongoDB backed document store for users, chats and messages.
	Store struct {
		client   *mongo.Client
		users    *mongo.Collection
		chats    *mongo.Collection
		messages *mongo.Collection
		logger   zerolog.Logger
	}
)

// NewStore connects, pings the primary and ensures indexes.
// Any failure here means storage is unreachable.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	cCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(cCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Join(ErrConnect, err)
	}

	pCtx, pCancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer pCancel()
	if err = client.Ping(pCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Join(ErrConnect, err)
	}

	st := newStore(client.Database(cfg.Database), cfg.Logger)
	st.client = client

	if err = st.ensureIndexes(cCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	st.logger.Info().Str("database", cfg.Database).Msg("mongodb connected")
	return st, nil
}

func newStore(db *mongo.Database, logger *zerolog.Logger) *Store {
	return &Store{
		users:    db.Collection(usersCollection),
		chats:    db.Collection(chatsCollection),
		messages: db.Collection(messagesCollection),
		logger:   logger.With().Str("component", "mongo-store").Logger(),
	}
}

func (st *Store) ensureIndexes(ctx context.Context) error {
	_, err := st.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = st.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "users", Value: 1}, {Key: "updatedAt", Value: -1}},
	})
	if err != nil {
		return err
	}
	_, err = st.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

func (st *Store) Close(ctx context.Context) error {
	if st.client == nil {
		return nil
	}
	return st.client.Disconnect(ctx)
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return errors.Join(storage.ErrDuplicate, err)
	default:
		return err
	}
}

// lookupID parses an id coming from a client. Ids that are not ObjectIds
// can never match a document.
func lookupID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

func (st *Store) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	doc, err := newUserDoc(user)
	if err != nil {
		return errors.Join(ErrInvalidID, err)
	}
	_, err = st.users.InsertOne(ctx, doc)
	return mapErr(err)
}

func (st *Store) findUser(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDoc
	if err := st.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	user := doc.model()
	return &user, nil
}

func (st *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	oid, ok := lookupID(id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return st.findUser(ctx, bson.M{"_id": oid})
}

func (st *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return st.findUser(ctx, bson.M{"email": email})
}

// GetUsersByIDs returns known users in the order of ids, unknown ids are skipped.
func (st *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, ok := lookupID(id); ok {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return []model.User{}, nil
	}
	cursor, err := st.users.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, mapErr(err)
	}
	var found []userDoc
	if err = cursor.All(ctx, &found); err != nil {
		return nil, mapErr(err)
	}

	byID := make(map[string]model.User, len(found))
	for i := range found {
		u := found[i].model()
		byID[u.ID] = u
	}
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (st *Store) SearchUsers(ctx context.Context, query, excludeID string) ([]model.User, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{
		"$or": []bson.M{
			{"name": pattern},
			{"email": pattern},
		},
	}
	if oid, ok := lookupID(excludeID); ok {
		filter["_id"] = bson.M{"$ne": oid}
	}
	cursor, err := st.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, mapErr(err)
	}
	var docs []userDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, mapErr(err)
	}
	users := make([]model.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].model())
	}
	return users, nil
}

func (st *Store) CreateChat(ctx context.Context, chat *model.Chat) error {
	if chat.ID == "" {
		chat.ID = newID()
	}
	doc, err := newChatDoc(chat)
	if err != nil {
		return errors.Join(ErrInvalidID, err)
	}
	_, err = st.chats.InsertOne(ctx, doc)
	return mapErr(err)
}

func (st *Store) findChat(ctx context.Context, filter bson.M) (*model.Chat, error) {
	var doc chatDoc
	if err := st.chats.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	chat := doc.model()
	return &chat, nil
}

func (st *Store) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	oid, ok := lookupID(id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return st.findChat(ctx, bson.M{"_id": oid})
}

func (st *Store) FindDirectChat(ctx context.Context, userA, userB string) (*model.Chat, error) {
	a, okA := lookupID(userA)
	b, okB := lookupID(userB)
	if !okA || !okB {
		return nil, storage.ErrNotFound
	}
	return st.findChat(ctx, bson.M{
		"isGroupChat": false,
		"users": bson.M{
			"$all":  []primitive.ObjectID{a, b},
			"$size": 2,
		},
	})
}

func (st *Store) ListChatsForUser(ctx context.Context, userID string) ([]model.Chat, error) {
	oid, ok := lookupID(userID)
	if !ok {
		return []model.Chat{}, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := st.chats.Find(ctx, bson.M{"users": oid}, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	var docs []chatDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, mapErr(err)
	}
	chats := make([]model.Chat, 0, len(docs))
	for i := range docs {
		chats = append(chats, docs[i].model())
	}
	return chats, nil
}

func (st *Store) UpdateChat(ctx context.Context, chat *model.Chat) error {
	if _, ok := lookupID(chat.ID); !ok {
		return storage.ErrNotFound
	}
	doc, err := newChatDoc(chat)
	if err != nil {
		return errors.Join(ErrInvalidID, err)
	}
	res, err := st.chats.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (st *Store) CreateMessage(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = newID()
	}
	doc, err := newMessageDoc(msg)
	if err != nil {
		return errors.Join(ErrInvalidID, err)
	}
	_, err = st.messages.InsertOne(ctx, doc)
	return mapErr(err)
}

func (st *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	oid, ok := lookupID(id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	var doc messageDoc
	if err := st.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	msg := doc.model()
	return &msg, nil
}

func (st *Store) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	oid, ok := lookupID(chatID)
	if !ok {
		return []model.Message{}, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := st.messages.Find(ctx, bson.M{"chat": oid}, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	var docs []messageDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, mapErr(err)
	}
	msgs := make([]model.Message, 0, len(docs))
	for i := range docs {
		msgs = append(msgs, docs[i].model())
	}
	return msgs, nil
}
