package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welldanyogia/replydesk/backend/internal/metrics"
)

// Credential repository errors
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExists   = errors.New("credential already linked for this address")
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// CredentialRepository defines data access for connected mailboxes
type CredentialRepository interface {
	Create(ctx context.Context, cred *Credential) error
	GetByID(ctx context.Context, id uuid.UUID) (*Credential, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Credential, error)
	FindUserIDByAddress(ctx context.Context, address string) (uuid.UUID, error)
	GetActive(ctx context.Context, userID uuid.UUID) (*Credential, error)
	SetActive(ctx context.Context, userID, credentialID uuid.UUID) error
	SetGatewayIDs(ctx context.Context, id uuid.UUID, accountID, gatewayID *string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new CredentialRepository instance
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepository{pool: pool}
}

const credentialColumns = `
	id, user_id, email_address, provider, imap_host, imap_port, smtp_host, smtp_port,
	gateway_account_id, gateway_id, is_active, sending_limit_exceeded, created_at, updated_at
`

func scanCredential(row pgx.Row) (*Credential, error) {
	c := &Credential{}
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.EmailAddress,
		&c.Provider,
		&c.IMAPHost,
		&c.IMAPPort,
		&c.SMTPHost,
		&c.SMTPPort,
		&c.GatewayAccountID,
		&c.GatewayID,
		&c.IsActive,
		&c.SendingLimitExceeded,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return c, nil
}

// Create inserts a credential. The user's first credential becomes active;
// every later one starts inactive until explicitly switched.
func (r *credentialRepository) Create(ctx context.Context, cred *Credential) error {
	query := `
		INSERT INTO email_credentials (
			user_id, email_address, provider, imap_host, imap_port, smtp_host, smtp_port,
			gateway_account_id, gateway_id, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
			NOT EXISTS (SELECT 1 FROM email_credentials WHERE user_id = $1))
		RETURNING ` + credentialColumns

	created, err := scanCredential(r.pool.QueryRow(ctx, query,
		cred.UserID,
		strings.ToLower(cred.EmailAddress),
		cred.Provider,
		cred.IMAPHost,
		cred.IMAPPort,
		cred.SMTPHost,
		cred.SMTPPort,
		cred.GatewayAccountID,
		cred.GatewayID,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "idx_email_credentials_user_address" {
			return ErrCredentialExists
		}
		return err
	}

	*cred = *created
	return nil
}

// GetByID retrieves a credential by its ID
func (r *credentialRepository) GetByID(ctx context.Context, id uuid.UUID) (*Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM email_credentials WHERE id = $1`
	return scanCredential(r.pool.QueryRow(ctx, query, id))
}

// ListByUser returns all credentials owned by a user, oldest first
func (r *credentialRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM email_credentials WHERE user_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creds := []Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return creds, nil
}

// FindUserIDByAddress resolves the owning user of a mailbox address (case-insensitive).
// When several users linked the same address the oldest link wins.
func (r *credentialRepository) FindUserIDByAddress(ctx context.Context, address string) (uuid.UUID, error) {
	defer metrics.TimeQuery("credential_find_user")()

	query := `
		SELECT user_id
		FROM email_credentials
		WHERE LOWER(email_address) = LOWER($1)
		ORDER BY created_at ASC
		LIMIT 1
	`

	var userID uuid.UUID
	if err := r.pool.QueryRow(ctx, query, address).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrCredentialNotFound
		}
		return uuid.Nil, err
	}
	return userID, nil
}

// GetActive returns the user's active credential
func (r *credentialRepository) GetActive(ctx context.Context, userID uuid.UUID) (*Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM email_credentials WHERE user_id = $1 AND is_active`
	return scanCredential(r.pool.QueryRow(ctx, query, userID))
}

// SetActive makes credentialID the user's only active credential.
// Both writes run in one transaction, so a failure leaves the previous active credential in place.
func (r *credentialRepository) SetActive(ctx context.Context, userID, credentialID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the user's credentials so concurrent switches serialize
	rows, err := tx.Query(ctx, `SELECT id FROM email_credentials WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		return err
	}
	found := false
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if id == credentialID {
			found = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if !found {
		return ErrCredentialNotFound
	}

	// Deactivate first: the partial unique index rejects two active rows even transiently
	if _, err := tx.Exec(ctx, `
		UPDATE email_credentials SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND id <> $2 AND is_active
	`, userID, credentialID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE email_credentials SET is_active = TRUE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, credentialID, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SetGatewayIDs stores the ids the mail gateway assigned to a credential
func (r *credentialRepository) SetGatewayIDs(ctx context.Context, id uuid.UUID, accountID, gatewayID *string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE email_credentials
		SET gateway_account_id = $2, gateway_id = $3, updated_at = NOW()
		WHERE id = $1
	`, id, accountID, gatewayID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// Delete removes a credential by its ID
func (r *credentialRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM email_credentials WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
