// Package user manages the accounts that create and receive tasks.
// Credentials are not stored here; identity is asserted by bearer tokens.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/btouchard/taskpulse/internal/validate"
)

var (
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("username or email already taken")
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func (in CreateInput) Validate() error {
	var errs validate.Errors

	if len(strings.TrimSpace(in.Username)) < 3 {
		errs.Add("username", "must be at least 3 characters")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != strings.TrimSpace(in.Email) {
		errs.Add("email", "must be a valid email address")
	}

	return errs.Err()
}

// Store persists users.
type Store interface {
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create registers a new active user.
func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	u, err := s.store.CreateUser(ctx, &User{
		Username:  strings.TrimSpace(in.Username),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		FullName:  in.FullName,
		AvatarURL: in.AvatarURL,
		IsActive:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	slog.Info("user created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading user %d: %w", id, err)
	}
	return u, nil
}
