// Package whitelist manages the per-user list of senders allowed to trigger auto-replies.
package whitelist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/welldanyogia/replydesk/backend/internal/repository"
)

// Service errors
var (
	ErrAlreadyWhitelisted = repository.ErrAlreadyWhitelisted
	ErrEntryNotFound      = repository.ErrWhitelistEntryNotFound
	ErrInvalidAddress     = errors.New("invalid email address")
)

// Store is the whitelist persistence used by the service
type Store interface {
	Add(ctx context.Context, userID uuid.UUID, address string) (*repository.WhitelistEntry, error)
	Remove(ctx context.Context, userID uuid.UUID, address string) error
	List(ctx context.Context, userID uuid.UUID) ([]repository.WhitelistEntry, error)
	Clear(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Service handles whitelist business logic
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new whitelist Service
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Add whitelists address for the user. The address is stored lowercased.
func (s *Service) Add(ctx context.Context, userID uuid.UUID, address string) (*repository.WhitelistEntry, error) {
	normalized := repository.NormalizeAddress(address)
	if err := validateAddress(normalized); err != nil {
		return nil, err
	}

	entry, err := s.store.Add(ctx, userID, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyWhitelisted) {
			return nil, ErrAlreadyWhitelisted
		}
		return nil, fmt.Errorf("failed to add whitelist entry: %w", err)
	}

	s.logger.Info("Sender whitelisted",
		slog.String("user_id", userID.String()),
		slog.String("email_address", normalized),
	)
	return entry, nil
}

// Remove deletes address from the user's whitelist
func (s *Service) Remove(ctx context.Context, userID uuid.UUID, address string) error {
	normalized := repository.NormalizeAddress(address)
	if normalized == "" {
		return ErrInvalidAddress
	}

	if err := s.store.Remove(ctx, userID, normalized); err != nil {
		if errors.Is(err, repository.ErrWhitelistEntryNotFound) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("failed to remove whitelist entry: %w", err)
	}
	return nil
}

// List returns the user's whitelist, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]repository.WhitelistEntry, error) {
	entries, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list whitelist: %w", err)
	}
	return entries, nil
}

// Clear removes every entry and reports how many were removed
func (s *Service) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.store.Clear(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear whitelist: %w", err)
	}
	s.logger.Info("Whitelist cleared",
		slog.String("user_id", userID.String()),
		slog.Int64("removed", n),
	)
	return n, nil
}
