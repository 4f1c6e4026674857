package service

import (
	"context"
	"errors"
	"strings"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/adwski/chat-backend/backend/storage"
)

type SendMessageRequest struct {
	Content string `json:"content"`
	ChatID  string `json:"chatId"`
}

// SendMessage stores a message and makes it the latest one of its chat.
// The returned view carries chat.users and sender._id, which is what
// clients emit as "new message" over the socket.
func (svc *Service) SendMessage(ctx context.Context, caller *model.User, req SendMessageRequest) (*model.MessageView, error) {
	if strings.TrimSpace(req.Content) == "" || req.ChatID == "" {
		return nil, ErrMissingFields
	}
	chat, err := svc.store.GetChat(ctx, req.ChatID)
	if err != nil {
		return nil, storageErr(err)
	}
	if !chat.HasUser(caller.ID) {
		return nil, ErrForbidden
	}

	now := svc.now()
	msg := &model.Message{
		SenderID:  caller.ID,
		Content:   req.Content,
		ChatID:    chat.ID,
		ReadBy:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = svc.store.CreateMessage(ctx, msg); err != nil {
		return nil, storageErr(err)
	}

	chat.LatestMessageID = msg.ID
	chat.UpdatedAt = now
	if err = svc.store.UpdateChat(ctx, chat); err != nil {
		return nil, storageErr(err)
	}
	svc.logger.Debug().
		Str("chatID", chat.ID).
		Str("messageID", msg.ID).
		Msg("message stored")
	return svc.messageView(ctx, msg, chat)
}

// AllMessages lists messages of a chat the caller belongs to, oldest first.
func (svc *Service) AllMessages(ctx context.Context, caller *model.User, chatID string) ([]model.MessageView, error) {
	chat, err := svc.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, storageErr(err)
	}
	if !chat.HasUser(caller.ID) {
		return nil, ErrForbidden
	}
	msgs, err := svc.store.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	views := make([]model.MessageView, 0, len(msgs))
	for i := range msgs {
		view, err := svc.messageView(ctx, &msgs[i], chat)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// messageView populates sender and, when chat is given, the chat with its users.
func (svc *Service) messageView(ctx context.Context, msg *model.Message, chat *model.Chat) (*model.MessageView, error) {
	view := &model.MessageView{
		ID:        msg.ID,
		Content:   msg.Content,
		ReadBy:    msg.ReadBy,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}
	if view.ReadBy == nil {
		view.ReadBy = []string{}
	}

	sender, err := svc.store.GetUserByID(ctx, msg.SenderID)
	switch {
	case err == nil:
		view.Sender = *sender
	case errors.Is(err, storage.ErrNotFound):
		view.Sender = model.User{ID: msg.SenderID}
	default:
		return nil, storageErr(err)
	}

	if chat != nil {
		users, err := svc.store.GetUsersByIDs(ctx, chat.UserIDs)
		if err != nil {
			return nil, storageErr(err)
		}
		view.Chat = &model.ChatView{
			ID:          chat.ID,
			ChatName:    chat.ChatName,
			IsGroupChat: chat.IsGroupChat,
			Users:       users,
			CreatedAt:   chat.CreatedAt,
			UpdatedAt:   chat.UpdatedAt,
		}
	}
	return view, nil
}
