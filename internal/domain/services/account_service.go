package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillsign/quillsign/internal/domain/dto"
	"github.com/quillsign/quillsign/internal/domain/repositories"
	"github.com/quillsign/quillsign/internal/infrastructure/auth/jwt"
	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
	"github.com/quillsign/quillsign/pkg/logger"
)

// TokenIssuer mints session tokens. A non-nil targetDocument scopes the
// token to that single document.
type TokenIssuer interface {
	Issue(userID uuid.UUID, targetDocument *uuid.UUID) (string, error)
}

// AccountService implements authentication and account management.
type AccountService struct {
	store  repositories.Store
	tokens TokenIssuer
	logger *logger.Logger
}

func NewAccountService(store repositories.Store, tokens TokenIssuer, log *logger.Logger) *AccountService {
	return &AccountService{store: store, tokens: tokens, logger: log}
}

// Login authenticates by username and password. Users without a stored
// password hash (created through document signator lists) authenticate
// only with an empty password.
func (s *AccountService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user.Deleted {
		return "", ErrUnauthorized
	}

	if user.PasswordHash == nil {
		if password != "" {
			return "", ErrUnauthorized
		}
	} else if !jwt.CheckPassword(*user.PasswordHash, password) {
		return "", ErrUnauthorized
	}

	token, err := s.tokens.Issue(user.ID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

// LoginWithAccessURI exchanges an access URI for a token scoped to the
// URI's document.
func (s *AccountService) LoginWithAccessURI(ctx context.Context, accessID string) (string, error) {
	if accessID == "" {
		return "", ErrUnauthorized
	}

	uri, err := s.store.AccessURIs().GetByURI(ctx, accessID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("failed to look up access uri: %w", err)
	}
	if uri.Revoked {
		return "", ErrUnauthorized
	}

	token, err := s.tokens.Issue(uri.UserID, &uri.DocumentID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

// CreateAccount registers a user with a password and returns a fresh
// session token.
func (s *AccountService) CreateAccount(ctx context.Context, username, password string, businessID uint) (string, error) {
	if _, err := s.store.Businesses().GetByID(ctx, businessID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", NewValidationError("Unknown business", "")
		}
		return "", fmt.Errorf("failed to look up business: %w", err)
	}

	if _, err := s.store.Users().GetByUsername(ctx, username); err == nil {
		return "", NewValidationError("Username already taken", "")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return "", fmt.Errorf("failed to check username: %w", err)
	}

	hash, err := jwt.HashPassword(password)
	if err != nil {
		return "", err
	}

	user := &models.User{
		BusinessID:   businessID,
		Username:     username,
		PasswordHash: &hash,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return "", err
	}

	s.logger.Info("account created", "user_id", models.CompactID(user.ID))

	token, err := s.tokens.Issue(user.ID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

// ChangePassword rehashes and stores a new password for the caller.
func (s *AccountService) ChangePassword(ctx context.Context, scope Scope, newPassword string) error {
	if newPassword == "" {
		return NewValidationError("Password may not be empty", "")
	}

	user, err := s.store.Users().GetByID(ctx, scope.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user.Deleted {
		return ErrUnauthorized
	}

	hash, err := jwt.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = &hash
	return s.store.Users().Update(ctx, user)
}

// DeleteAccount marks the account deleted and permanently revokes
// every access URI issued to it.
func (s *AccountService) DeleteAccount(ctx context.Context, scope Scope) error {
	user, err := s.store.Users().GetByID(ctx, scope.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	return s.store.WithTx(ctx, func(tx repositories.Store) error {
		user.Deleted = true
		if err := tx.Users().Update(ctx, user); err != nil {
			return err
		}
		return tx.AccessURIs().RevokeAllForUser(ctx, user.ID)
	})
}

// Resurrect reactivates a deleted account. Only accounts that had a
// password can come back.
func (s *AccountService) Resurrect(ctx context.Context, username, password string) error {
	user, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	if !user.Deleted {
		return NewValidationError("Account is not deleted", "")
	}
	if user.PasswordHash == nil {
		return NewValidationError("Account has no password", "")
	}
	if !jwt.CheckPassword(*user.PasswordHash, password) {
		return ErrUnauthorized
	}

	user.Deleted = false
	return s.store.Users().Update(ctx, user)
}

// Documents lists the caller's owned documents.
func (s *AccountService) Documents(ctx context.Context, scope Scope) ([]dto.DocumentSummary, error) {
	docs, err := s.store.Documents().ListByOwner(ctx, scope.UserID)
	if err != nil {
		return nil, err
	}

	summaries := make([]dto.DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, dto.DocumentSummary{
			ID:    models.CompactID(doc.ID),
			Title: doc.Title,
		})
	}
	return summaries, nil
}

// Fields lists the newest status of every field assigned to the caller.
func (s *AccountService) Fields(ctx context.Context, scope Scope) ([]dto.FieldStatusEntry, error) {
	statuses, err := s.store.Usages().UserFieldStatuses(ctx, scope.UserID)
	if err != nil {
		return nil, err
	}

	entries := make([]dto.FieldStatusEntry, 0, len(statuses))
	for _, st := range statuses {
		entries = append(entries, dto.FieldStatusEntry{
			ID:        models.CompactID(st.FieldID),
			Status:    string(st.Status),
			Title:     st.Title,
			Timestamp: st.Timestamp,
		})
	}
	return entries, nil
}
