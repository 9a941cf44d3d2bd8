package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/KachiAlex/kex/internal/auth"
	"github.com/KachiAlex/kex/internal/domain"
	"github.com/KachiAlex/kex/internal/repository"
)

type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenIssuer
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenIssuer) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// Signup creates a customer account. Admin accounts are provisioned
// explicitly via the seedadmin command, never through signup.
func (s *AuthService) Signup(ctx context.Context, name, email, password string) (*domain.User, string, error) {
	var verr domain.ValidationError
	if !domain.ValidEmail(email) {
		verr.Add("email", "must be a valid email address")
	}
	if len(password) < 6 {
		verr.Add("password", "must be at least 6 characters")
	}
	if verr.HasErrors() {
		return nil, "", &verr
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// LoginWithIdentity finds or creates the account for an identity-provider
// login (no password; the hash stays empty so password login never matches).
func (s *AuthService) LoginWithIdentity(ctx context.Context, email, name string) (*domain.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		user = &domain.User{
			Name:  name,
			Email: email,
			Role:  domain.RoleCustomer,
		}
		if createErr := s.users.Create(ctx, user); createErr != nil {
			if errors.Is(createErr, repository.ErrDuplicateEmail) {
				// lost a race with a concurrent first login
				user, err = s.users.GetByEmail(ctx, email)
				if err != nil {
					return nil, "", err
				}
			} else {
				return nil, "", fmt.Errorf("create identity user: %w", createErr)
			}
		}
		log.Printf("created identity-provider account for %s", email)
	} else if err != nil {
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

type ProfileUpdate struct {
	Name   *string `json:"name,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*domain.User, error) {
	fields := map[string]any{}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.Phone != nil {
		fields["phone"] = *update.Phone
	}
	if update.Avatar != nil {
		fields["avatar"] = *update.Avatar
	}
	if len(fields) == 0 {
		return s.users.GetByID(ctx, userID)
	}
	return s.users.UpdateProfile(ctx, userID, fields)
}
