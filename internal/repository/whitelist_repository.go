package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welldanyogia/replydesk/backend/internal/metrics"
)

// Whitelist repository errors
var (
	ErrAlreadyWhitelisted     = errors.New("email address already in whitelist")
	ErrWhitelistEntryNotFound = errors.New("email address not found in whitelist")
)

// WhitelistRepository defines data access for per-user auto-reply sender allow-lists
type WhitelistRepository interface {
	Add(ctx context.Context, userID uuid.UUID, address string) (*WhitelistEntry, error)
	Remove(ctx context.Context, userID uuid.UUID, address string) error
	List(ctx context.Context, userID uuid.UUID) ([]WhitelistEntry, error)
	IsWhitelisted(ctx context.Context, userID uuid.UUID, address string) (bool, error)
	Clear(ctx context.Context, userID uuid.UUID) (int64, error)
}

type whitelistRepository struct {
	pool *pgxpool.Pool
}

// NewWhitelistRepository creates a new WhitelistRepository instance
func NewWhitelistRepository(pool *pgxpool.Pool) WhitelistRepository {
	return &whitelistRepository{pool: pool}
}

// NormalizeAddress lowercases and trims an address for whitelist storage and lookup
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Add inserts a whitelist entry. A duplicate (user, address) returns ErrAlreadyWhitelisted
// and leaves the existing row untouched.
func (r *whitelistRepository) Add(ctx context.Context, userID uuid.UUID, address string) (*WhitelistEntry, error) {
	query := `
		INSERT INTO auto_reply_whitelist (user_id, email_address)
		VALUES ($1, $2)
		ON CONFLICT (user_id, email_address) DO NOTHING
		RETURNING id, user_id, email_address, created_at
	`

	entry := &WhitelistEntry{}
	err := r.pool.QueryRow(ctx, query, userID, NormalizeAddress(address)).Scan(
		&entry.ID,
		&entry.UserID,
		&entry.EmailAddress,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyWhitelisted
		}
		return nil, err
	}
	return entry, nil
}

// Remove deletes a single whitelist entry
func (r *whitelistRepository) Remove(ctx context.Context, userID uuid.UUID, address string) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM auto_reply_whitelist WHERE user_id = $1 AND email_address = $2`,
		userID, NormalizeAddress(address),
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWhitelistEntryNotFound
	}
	return nil
}

// List returns the user's whitelist, newest first
func (r *whitelistRepository) List(ctx context.Context, userID uuid.UUID) ([]WhitelistEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, email_address, created_at
		FROM auto_reply_whitelist
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []WhitelistEntry{}
	for rows.Next() {
		var e WhitelistEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.EmailAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// IsWhitelisted reports whether address is on the user's whitelist
func (r *whitelistRepository) IsWhitelisted(ctx context.Context, userID uuid.UUID, address string) (bool, error) {
	defer metrics.TimeQuery("whitelist_lookup")()

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM auto_reply_whitelist WHERE user_id = $1 AND email_address = $2)`,
		userID, NormalizeAddress(address),
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Clear removes every whitelist entry of a user and returns how many were deleted
func (r *whitelistRepository) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM auto_reply_whitelist WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
