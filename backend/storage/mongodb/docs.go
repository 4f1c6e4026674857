package mongodb

import (
	"time"

	"github.com/adwski/chat-backend/backend/model"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Documents keep ObjectId references so the collections stay readable
// by anything else that works with the same database.
type (
	userDoc struct {
		ID        primitive.ObjectID `bson:"_id"`
		Name      string             `bson:"name"`
		Email     string             `bson:"email"`
		Password  string             `bson:"password"`
		Pic       string             `bson:"pic"`
		IsAdmin   bool               `bson:"isAdmin"`
		CreatedAt time.Time          `bson:"createdAt"`
		UpdatedAt time.Time          `bson:"updatedAt"`
	}

	chatDoc struct {
		ID            primitive.ObjectID   `bson:"_id"`
		ChatName      string               `bson:"chatName"`
		IsGroupChat   bool                 `bson:"isGroupChat"`
		Users         []primitive.ObjectID `bson:"users"`
		LatestMessage *primitive.ObjectID  `bson:"latestMessage,omitempty"`
		GroupAdmin    *primitive.ObjectID  `bson:"groupAdmin,omitempty"`
		CreatedAt     time.Time            `bson:"createdAt"`
		UpdatedAt     time.Time            `bson:"updatedAt"`
	}

	messageDoc struct {
		ID        primitive.ObjectID   `bson:"_id"`
		Sender    primitive.ObjectID   `bson:"sender"`
		Content   string               `bson:"content"`
		Chat      primitive.ObjectID   `bson:"chat"`
		ReadBy    []primitive.ObjectID `bson:"readBy"`
		CreatedAt time.Time            `bson:"createdAt"`
		UpdatedAt time.Time            `bson:"updatedAt"`
	}
)

// objectIDs parses every id; the first malformed one fails the whole list.
func objectIDs(ids []string) ([]primitive.ObjectID, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, err
		}
		oids = append(oids, oid)
	}
	return oids, nil
}

func hexIDs(oids []primitive.ObjectID) []string {
	ids := make([]string, 0, len(oids))
	for _, oid := range oids {
		ids = append(ids, oid.Hex())
	}
	return ids
}

func optionalID(id string) (*primitive.ObjectID, error) {
	if id == "" {
		return nil, nil
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	return &oid, nil
}

func optionalHex(oid *primitive.ObjectID) string {
	if oid == nil {
		return ""
	}
	return oid.Hex()
}

func newUserDoc(u *model.User) (*userDoc, error) {
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return nil, err
	}
	return &userDoc{
		ID:        oid,
		Name:      u.Name,
		Email:     u.Email,
		Password:  u.Password,
		Pic:       u.Pic,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}, nil
}

func (d *userDoc) model() model.User {
	return model.User{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Email:     d.Email,
		Password:  d.Password,
		Pic:       d.Pic,
		IsAdmin:   d.IsAdmin,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func newChatDoc(c *model.Chat) (*chatDoc, error) {
	oid, err := primitive.ObjectIDFromHex(c.ID)
	if err != nil {
		return nil, err
	}
	users, err := objectIDs(c.UserIDs)
	if err != nil {
		return nil, err
	}
	latest, err := optionalID(c.LatestMessageID)
	if err != nil {
		return nil, err
	}
	admin, err := optionalID(c.GroupAdminID)
	if err != nil {
		return nil, err
	}
	return &chatDoc{
		ID:            oid,
		ChatName:      c.ChatName,
		IsGroupChat:   c.IsGroupChat,
		Users:         users,
		LatestMessage: latest,
		GroupAdmin:    admin,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}, nil
}

func (d *chatDoc) model() model.Chat {
	return model.Chat{
		ID:              d.ID.Hex(),
		ChatName:        d.ChatName,
		IsGroupChat:     d.IsGroupChat,
		UserIDs:         hexIDs(d.Users),
		LatestMessageID: optionalHex(d.LatestMessage),
		GroupAdminID:    optionalHex(d.GroupAdmin),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func newMessageDoc(m *model.Message) (*messageDoc, error) {
	oid, err := primitive.ObjectIDFromHex(m.ID)
	if err != nil {
		return nil, err
	}
	sender, err := primitive.ObjectIDFromHex(m.SenderID)
	if err != nil {
		return nil, err
	}
	chat, err := primitive.ObjectIDFromHex(m.ChatID)
	if err != nil {
		return nil, err
	}
	readBy, err := objectIDs(m.ReadBy)
	if err != nil {
		return nil, err
	}
	return &messageDoc{
		ID:        oid,
		Sender:    sender,
		Content:   m.Content,
		Chat:      chat,
		ReadBy:    readBy,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func (d *messageDoc) model() model.Message {
	return model.Message{
		ID:        d.ID.Hex(),
		SenderID:  d.Sender.Hex(),
		Content:   d.Content,
		ChatID:    d.Chat.Hex(),
		ReadBy:    hexIDs(d.ReadBy),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
