package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Sent mail ledger errors
var (
	ErrSentMailNotFound = errors.New("sent mail record not found")
	ErrInvalidStatus    = errors.New("invalid sent mail status")
)

// Ledger listing bounds
const (
	DefaultSentMailLimit = 50
	MaxSentMailLimit     = 200
)

// SentMailRepository is the append-only ledger of outbound mail.
// Records are appended at send time and only their status changes afterwards.
type SentMailRepository interface {
	Append(ctx context.Context, mail *SentMail) error
	UpdateStatus(ctx context.Context, messageID string, status SentMailStatus) (bool, error)
	HasAutoReplyFor(ctx context.Context, originalMessageID string) (bool, error)
	GetByMessageID(ctx context.Context, messageID string) (*SentMail, error)
	List(ctx context.Context, params ListSentMailParams) ([]SentMail, error)
}

// SentMailRepo implements SentMailRepository using sqlx over the pgx stdlib driver
type SentMailRepo struct {
	db *sqlx.DB
}

// NewSentMailRepo creates a new SentMailRepo instance
func NewSentMailRepo(db *sqlx.DB) *SentMailRepo {
	return &SentMailRepo{db: db}
}

const sentMailColumns = `
	id, message_id, thread_id, from_address, to_addresses, subject, body_html, body_text,
	type, source, status, ai_generated, prompt, model, webhook_event, original_message_id,
	created_at, updated_at
`

// Append inserts a ledger record. Status defaults to sent.
func (r *SentMailRepo) Append(ctx context.Context, mail *SentMail) error {
	if mail.Status == "" {
		mail.Status = SentMailStatusSent
	}
	if !mail.Status.Valid() {
		return ErrInvalidStatus
	}

	query := `
		INSERT INTO sent_emails (
			message_id, thread_id, from_address, to_addresses, subject, body_html, body_text,
			type, source, status, ai_generated, prompt, model, webhook_event, original_message_id
		) VALUES (
			:message_id, :thread_id, :from_address, :to_addresses, :subject, :body_html, :body_text,
			:type, :source, :status, :ai_generated, :prompt, :model, :webhook_event, :original_message_id
		)
		RETURNING id, created_at, updated_at
	`

	rows, err := r.db.NamedQueryContext(ctx, query, mail)
	if err != nil {
		return fmt.Errorf("failed to insert sent mail: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return errors.New("insert returned no row")
	}
	return rows.Scan(&mail.ID, &mail.CreatedAt, &mail.UpdatedAt)
}

// UpdateStatus sets the status of every record with the given provider message id.
// It returns false when no record matched.
func (r *SentMailRepo) UpdateStatus(ctx context.Context, messageID string, status SentMailStatus) (bool, error) {
	if !status.Valid() {
		return false, ErrInvalidStatus
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE sent_emails SET status = $1, updated_at = NOW() WHERE message_id = $2`,
		status, messageID,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasAutoReplyFor reports whether an auto-reply was already recorded for an inbound message
func (r *SentMailRepo) HasAutoReplyFor(ctx context.Context, originalMessageID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM sent_emails
			WHERE type = $1 AND original_message_id = $2
		)
	`, SentMailTypeAutoReply, originalMessageID)
	return exists, err
}

// GetByMessageID returns the most recent record for a provider message id
func (r *SentMailRepo) GetByMessageID(ctx context.Context, messageID string) (*SentMail, error) {
	var mail SentMail
	err := r.db.GetContext(ctx, &mail,
		`SELECT `+sentMailColumns+` FROM sent_emails WHERE message_id = $1 ORDER BY created_at DESC LIMIT 1`,
		messageID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSentMailNotFound
		}
		return nil, err
	}
	return &mail, nil
}

// List returns ledger records newest first, filtered by type, status and thread
func (r *SentMailRepo) List(ctx context.Context, params ListSentMailParams) ([]SentMail, error) {
	query, args := buildSentMailListQuery(params)

	mails := []SentMail{}
	if err := r.db.SelectContext(ctx, &mails, query, args...); err != nil {
		return nil, err
	}
	return mails, nil
}

// ClampSentMailLimit applies the default and maximum page size
func ClampSentMailLimit(limit int) int {
	if limit <= 0 {
		return DefaultSentMailLimit
	}
	if limit > MaxSentMailLimit {
		return MaxSentMailLimit
	}
	return limit
}

func buildSentMailListQuery(params ListSentMailParams) (string, []any) {
	var conditions []string
	var args []any

	if params.Type != "" {
		args = append(args, params.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if params.Status != "" {
		args = append(args, params.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.ThreadID != "" {
		args = append(args, params.ThreadID)
		conditions = append(conditions, fmt.Sprintf("thread_id = $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(sentMailColumns)
	sb.WriteString(" FROM sent_emails")
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	args = append(args, ClampSentMailLimit(params.Limit))
	fmt.Fprintf(&sb, " ORDER BY created_at DESC LIMIT $%d", len(args))

	return sb.String(), args
}
