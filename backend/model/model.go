package model

import (
	"time"
)

const DefaultPic = "https://icon-library.com/images/anonymous-avatar-icon/anonymous-avatar-icon-25.jpg"

type User struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Pic       string    `json:"pic"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Chat is a stored conversation. Users, admin and latest message are kept as
// ids; ChatView is the populated form.
type Chat struct {
	ID              string
	ChatName        string
	IsGroupChat     bool
	UserIDs         []string
	LatestMessageID string
	GroupAdminID    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c *Chat) HasUser(userID string) bool {
	for _, id := range c.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type Message struct {
	ID        string
	SenderID  string
	Content   string
	ChatID    string
	ReadBy    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatView is the populated form of a Chat as it goes over the wire.
type ChatView struct {
	ID            string       `json:"_id"`
	ChatName      string       `json:"chatName"`
	IsGroupChat   bool         `json:"isGroupChat"`
	Users         []User       `json:"users"`
	LatestMessage *MessageView `json:"latestMessage,omitempty"`
	GroupAdmin    *User        `json:"groupAdmin,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// MessageView is the populated form of a Message. It is what clients pass
// back into the "new message" socket event.
type MessageView struct {
	ID        string    `json:"_id"`
	Sender    User      `json:"sender"`
	Content   string    `json:"content"`
	Chat      *ChatView `json:"chat,omitempty"`
	ReadBy    []string  `json:"readBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
