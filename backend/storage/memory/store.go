package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/adwski/chat-backend/backend/storage"
	"github.com/google/uuid"
)

// MemStore keeps users, chats and messages in process memory.
// Records are copied on the way in and out.
type MemStore struct {
	mx       *sync.Mutex
	users    map[string]model.User
	emails   map[string]string
	chats    map[string]model.Chat
	messages map[string]model.Message
	byChat   map[string][]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:       &sync.Mutex{},
		users:    make(map[string]model.User),
		emails:   make(map[string]string),
		chats:    make(map[string]model.Chat),
		messages: make(map[string]model.Message),
		byChat:   make(map[string][]string),
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (ms *MemStore) CreateUser(_ context.Context, user *model.User) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := ms.emails[email]; ok {
		return storage.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = newID()
	}
	ms.users[user.ID] = *user
	ms.emails[email] = user.ID
	return nil
}

func (ms *MemStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	user, ok := ms.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &user, nil
}

func (ms *MemStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	id, ok := ms.emails[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	user := ms.users[id]
	return &user, nil
}

// GetUsersByIDs returns known users in the order of ids, unknown ids are skipped.
func (ms *MemStore) GetUsersByIDs(_ context.Context, ids []string) ([]model.User, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := ms.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (ms *MemStore) SearchUsers(_ context.Context, query, excludeID string) ([]model.User, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	q := strings.ToLower(query)
	users := make([]model.User, 0)
	for id, user := range ms.users {
		if id == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(user.Name), q) || strings.Contains(strings.ToLower(user.Email), q) {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (ms *MemStore) CreateChat(_ context.Context, chat *model.Chat) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if chat.ID == "" {
		chat.ID = newID()
	}
	if _, ok := ms.chats[chat.ID]; ok {
		return storage.ErrDuplicate
	}
	ms.chats[chat.ID] = copyChat(*chat)
	return nil
}

func (ms *MemStore) GetChat(_ context.Context, id string) (*model.Chat, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	chat, ok := ms.chats[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	chat = copyChat(chat)
	return &chat, nil
}

// FindDirectChat returns the one-on-one chat between two users.
func (ms *MemStore) FindDirectChat(_ context.Context, userA, userB string) (*model.Chat, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	for _, chat := range ms.chats {
		if chat.IsGroupChat || len(chat.UserIDs) != 2 {
			continue
		}
		if chat.HasUser(userA) && chat.HasUser(userB) {
			chat = copyChat(chat)
			return &chat, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListChatsForUser returns chats of the user, most recently updated first.
func (ms *MemStore) ListChatsForUser(_ context.Context, userID string) ([]model.Chat, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	chats := make([]model.Chat, 0)
	for _, chat := range ms.chats {
		if chat.HasUser(userID) {
			chats = append(chats, copyChat(chat))
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (ms *MemStore) UpdateChat(_ context.Context, chat *model.Chat) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.chats[chat.ID]; !ok {
		return storage.ErrNotFound
	}
	ms.chats[chat.ID] = copyChat(*chat)
	return nil
}

func (ms *MemStore) CreateMessage(_ context.Context, msg *model.Message) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if msg.ID == "" {
		msg.ID = newID()
	}
	if _, ok := ms.messages[msg.ID]; ok {
		return storage.ErrDuplicate
	}
	ms.messages[msg.ID] = *msg
	ms.byChat[msg.ChatID] = append(ms.byChat[msg.ChatID], msg.ID)
	return nil
}

func (ms *MemStore) GetMessage(_ context.Context, id string) (*model.Message, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	msg, ok := ms.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &msg, nil
}

// ListMessages returns messages of the chat, oldest first.
func (ms *MemStore) ListMessages(_ context.Context, chatID string) ([]model.Message, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ids := ms.byChat[chatID]
	msgs := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, ms.messages[id])
	}
	return msgs, nil
}

func copyChat(chat model.Chat) model.Chat {
	chat.UserIDs = append([]string(nil), chat.UserIDs...)
	return chat
}
