package service

import (
	"context"
	"errors"
	"strings"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/adwski/chat-backend/backend/storage"
)

type (
	RegisterRequest struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Pic      string `json:"pic"`
	}

	LoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	// AuthResult is the user record together with a fresh access token.
	AuthResult struct {
		model.User
		Token string `json:"token"`
	}
)

func (svc *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	hash, err := svc.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	pic := req.Pic
	if pic == "" {
		pic = model.DefaultPic
	}
	now := svc.now()
	user := &model.User{
		Name:      req.Name,
		Email:     req.Email,
		Password:  hash,
		Pic:       pic,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = svc.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, storageErr(err)
	}
	svc.logger.Debug().
		Str("userID", user.ID).
		Msg("user registered")
	return svc.authResult(user)
}

func (svc *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := svc.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storageErr(err)
	}
	if !svc.hasher.Verify(req.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	return svc.authResult(user)
}

func (svc *Service) authResult(user *model.User) (*AuthResult, error) {
	token, err := svc.tokens.Generate(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: *user, Token: token}, nil
}

// Authenticate resolves a bearer token into the user it was issued to.
func (svc *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	userID, err := svc.tokens.Verify(token)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	user, err := svc.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, storageErr(err)
	}
	return user, nil
}

// SearchUsers looks up users by name or email, the caller is never included.
// Empty query matches everyone.
func (svc *Service) SearchUsers(ctx context.Context, caller *model.User, query string) ([]model.User, error) {
	users, err := svc.store.SearchUsers(ctx, strings.TrimSpace(query), caller.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	return users, nil
}
