package service

import (
	"context"
	"errors"
	"time"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/adwski/chat-backend/backend/storage"
	"github.com/rs/zerolog"
)

var (
	ErrMissingFields      = errors.New("please enter all the fields")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("not authorized")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("operation is not allowed")
	ErrGroupTooSmall      = errors.New("more than 2 users are required to form a group chat")
	ErrNotGroup           = errors.New("chat is not a group chat")
	ErrStorage            = errors.New("storage failure")
)

type (
	Store interface {
		CreateUser(ctx context.Context, user *model.User) error
		GetUserByID(ctx context.Context, id string) (*model.User, error)
		GetUserByEmail(ctx context.Context, email string) (*model.User, error)
		GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
		SearchUsers(ctx context.Context, query, excludeID string) ([]model.User, error)

		CreateChat(ctx context.Context, chat *model.Chat) error
		GetChat(ctx context.Context, id string) (*model.Chat, error)
		FindDirectChat(ctx context.Context, userA, userB string) (*model.Chat, error)
		ListChatsForUser(ctx context.Context, userID string) ([]model.Chat, error)
		UpdateChat(ctx context.Context, chat *model.Chat) error

		CreateMessage(ctx context.Context, msg *model.Message) error
		GetMessage(ctx context.Context, id string) (*model.Message, error)
		ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
	}

	TokenManager interface {
		Generate(userID string) (string, error)
		Verify(token string) (string, error)
	}

	PasswordHasher interface {
		Hash(password string) (string, error)
		Verify(password, hash string) bool
	}

	Service struct {
		store  Store
		tokens TokenManager
		hasher PasswordHasher
		now    func() time.Time
		logger zerolog.Logger
	}

	Config struct {
		Store          Store
		TokenManager   TokenManager
		PasswordHasher PasswordHasher
		Logger         *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:  cfg.Store,
		tokens: cfg.TokenManager,
		hasher: cfg.PasswordHasher,
		now:    time.Now,
		logger: cfg.Logger.With().Str("component", "service").Logger(),
	}
}

// storageErr converts storage errors into service errors.
func storageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	default:
		return errors.Join(ErrStorage, err)
	}
}
