package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-events/internal/auth"
	"github.com/example/ride-events/internal/models"
	"github.com/example/ride-events/internal/storage"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotFound           = errors.New("user not found")
	ErrValidation         = errors.New("invalid input")
)

// Service handles account signup, login and profile lookup.
type Service struct {
	store  storage.UserStore
	tokens *auth.TokenManager
	now    func() time.Time
}

func NewService(store storage.UserStore, tokens *auth.TokenManager) *Service {
	return &Service{store: store, tokens: tokens, now: time.Now}
}

// SignupInput is the account-creation payload.
type SignupInput struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	BikeName string `json:"bikeName"`
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: username and name are required", ErrValidation)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Name:         in.Name,
		PasswordHash: hash,
		BikeName:     in.BikeName,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return u, nil
}

// Login verifies the password and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Get returns the profile for userID.
func (s *Service) Get(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}
