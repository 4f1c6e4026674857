package service

import (
	"context"
	"errors"
	"strings"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/adwski/chat-backend/backend/storage"
)

const directChatName = "sender"

type (
	AccessChatRequest struct {
		UserID string `json:"userId"`
	}

	GroupChatRequest struct {
		Name  string   `json:"name"`
		Users []string `json:"users"`
	}

	RenameGroupRequest struct {
		ChatID   string `json:"chatId"`
		ChatName string `json:"chatName"`
	}

	GroupMemberRequest struct {
		ChatID string `json:"chatId"`
		UserID string `json:"userId"`
	}
)

// AccessChat returns the one-on-one chat between caller and another user,
// creating it on first access.
func (svc *Service) AccessChat(ctx context.Context, caller *model.User, req AccessChatRequest) (*model.ChatView, error) {
	if req.UserID == "" {
		return nil, ErrMissingFields
	}
	if _, err := svc.store.GetUserByID(ctx, req.UserID); err != nil {
		return nil, storageErr(err)
	}

	chat, err := svc.store.FindDirectChat(ctx, caller.ID, req.UserID)
	switch {
	case err == nil:
		return svc.chatView(ctx, chat)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, storageErr(err)
	}

	now := svc.now()
	chat = &model.Chat{
		ChatName:  directChatName,
		UserIDs:   []string{caller.ID, req.UserID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = svc.store.CreateChat(ctx, chat); err != nil {
		return nil, storageErr(err)
	}
	svc.logger.Debug().
		Str("chatID", chat.ID).
		Str("userID", caller.ID).
		Msg("direct chat created")
	return svc.chatView(ctx, chat)
}

// FetchChats lists chats of the caller, most recently updated first.
func (svc *Service) FetchChats(ctx context.Context, caller *model.User) ([]model.ChatView, error) {
	chats, err := svc.store.ListChatsForUser(ctx, caller.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	views := make([]model.ChatView, 0, len(chats))
	for i := range chats {
		view, err := svc.chatView(ctx, &chats[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

func (svc *Service) CreateGroupChat(ctx context.Context, caller *model.User, req GroupChatRequest) (*model.ChatView, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Users == nil {
		return nil, ErrMissingFields
	}

	members := uniqueIDs(append(req.Users, caller.ID))
	if len(members) < 3 {
		return nil, ErrGroupTooSmall
	}
	known, err := svc.store.GetUsersByIDs(ctx, members)
	if err != nil {
		return nil, storageErr(err)
	}
	if len(known) != len(members) {
		return nil, ErrNotFound
	}

	now := svc.now()
	chat := &model.Chat{
		ChatName:     req.Name,
		IsGroupChat:  true,
		UserIDs:      members,
		GroupAdminID: caller.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = svc.store.CreateChat(ctx, chat); err != nil {
		return nil, storageErr(err)
	}
	svc.logger.Debug().
		Str("chatID", chat.ID).
		Str("userID", caller.ID).
		Int("members", len(members)).
		Msg("group chat created")
	return svc.chatView(ctx, chat)
}

func (svc *Service) RenameGroup(ctx context.Context, caller *model.User, req RenameGroupRequest) (*model.ChatView, error) {
	req.ChatName = strings.TrimSpace(req.ChatName)
	if req.ChatID == "" || req.ChatName == "" {
		return nil, ErrMissingFields
	}
	chat, err := svc.groupChat(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasUser(caller.ID) {
		return nil, ErrForbidden
	}
	chat.ChatName = req.ChatName
	return svc.saveChat(ctx, chat)
}

// AddToGroup adds a user to a group chat. Only the group admin may do that.
func (svc *Service) AddToGroup(ctx context.Context, caller *model.User, req GroupMemberRequest) (*model.ChatView, error) {
	if req.ChatID == "" || req.UserID == "" {
		return nil, ErrMissingFields
	}
	chat, err := svc.groupChat(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	if chat.GroupAdminID != caller.ID {
		return nil, ErrForbidden
	}
	if _, err = svc.store.GetUserByID(ctx, req.UserID); err != nil {
		return nil, storageErr(err)
	}
	if !chat.HasUser(req.UserID) {
		chat.UserIDs = append(chat.UserIDs, req.UserID)
	}
	return svc.saveChat(ctx, chat)
}

// RemoveFromGroup removes a user from a group chat. The admin may remove
// anyone, other members may only remove themselves.
func (svc *Service) RemoveFromGroup(ctx context.Context, caller *model.User, req GroupMemberRequest) (*model.ChatView, error) {
	if req.ChatID == "" || req.UserID == "" {
		return nil, ErrMissingFields
	}
	chat, err := svc.groupChat(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	if chat.GroupAdminID != caller.ID && req.UserID != caller.ID {
		return nil, ErrForbidden
	}
	users := chat.UserIDs[:0]
	for _, id := range chat.UserIDs {
		if id != req.UserID {
			users = append(users, id)
		}
	}
	chat.UserIDs = users
	return svc.saveChat(ctx, chat)
}

func (svc *Service) groupChat(ctx context.Context, chatID string) (*model.Chat, error) {
	chat, err := svc.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, storageErr(err)
	}
	if !chat.IsGroupChat {
		return nil, ErrNotGroup
	}
	return chat, nil
}

func (svc *Service) saveChat(ctx context.Context, chat *model.Chat) (*model.ChatView, error) {
	chat.UpdatedAt = svc.now()
	if err := svc.store.UpdateChat(ctx, chat); err != nil {
		return nil, storageErr(err)
	}
	return svc.chatView(ctx, chat)
}

// chatView populates users, admin and latest message of a chat.
func (svc *Service) chatView(ctx context.Context, chat *model.Chat) (*model.ChatView, error) {
	users, err := svc.store.GetUsersByIDs(ctx, chat.UserIDs)
	if err != nil {
		return nil, storageErr(err)
	}
	view := &model.ChatView{
		ID:          chat.ID,
		ChatName:    chat.ChatName,
		IsGroupChat: chat.IsGroupChat,
		Users:       users,
		CreatedAt:   chat.CreatedAt,
		UpdatedAt:   chat.UpdatedAt,
	}
	for i := range users {
		if users[i].ID == chat.GroupAdminID {
			admin := users[i]
			view.GroupAdmin = &admin
		}
	}
	if chat.LatestMessageID != "" {
		msg, err := svc.store.GetMessage(ctx, chat.LatestMessageID)
		switch {
		case err == nil:
			latest, err := svc.messageView(ctx, msg, nil)
			if err != nil {
				return nil, err
			}
			view.LatestMessage = latest
		case !errors.Is(err, storage.ErrNotFound):
			return nil, storageErr(err)
		}
	}
	return view, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
