package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Credential represents a user's connected mailbox
type Credential struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	UserID               uuid.UUID `db:"user_id" json:"user_id"`
	EmailAddress         string    `db:"email_address" json:"email_address"`
	Provider             string    `db:"provider" json:"provider"`
	IMAPHost             *string   `db:"imap_host" json:"imap_host,omitempty"` // nil for OAuth providers
	IMAPPort             *int      `db:"imap_port" json:"imap_port,omitempty"`
	SMTPHost             *string   `db:"smtp_host" json:"smtp_host,omitempty"`
	SMTPPort             *int      `db:"smtp_port" json:"smtp_port,omitempty"`
	GatewayAccountID     *string   `db:"gateway_account_id" json:"gateway_account_id,omitempty"`
	GatewayID            *string   `db:"gateway_id" json:"gateway_id,omitempty"`
	IsActive             bool      `db:"is_active" json:"is_active"`
	SendingLimitExceeded bool      `db:"sending_limit_exceeded" json:"sending_limit_exceeded"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// WhitelistEntry is a sender address allowed to trigger auto-replies for a user
type WhitelistEntry struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"-"`
	EmailAddress string    `db:"email_address" json:"email_address"` // always lowercase
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SentMailType classifies how a ledger entry was produced
type SentMailType string

const (
	SentMailTypeSent        SentMailType = "sent"
	SentMailTypeAutoReply   SentMailType = "auto-reply"
	SentMailTypeManualReply SentMailType = "manual-reply"
)

// SentMailSource identifies the entry point that sent the mail
type SentMailSource string

const (
	SentMailSourceCompose         SentMailSource = "compose"
	SentMailSourceWebhook         SentMailSource = "webhook"
	SentMailSourceManualAutoReply SentMailSource = "manual-auto-reply"
)

// SentMailStatus is the delivery status of a ledger entry
type SentMailStatus string

const (
	SentMailStatusSent      SentMailStatus = "sent"
	SentMailStatusDelivered SentMailStatus = "delivered"
	SentMailStatusOpened    SentMailStatus = "opened"
	SentMailStatusFailed    SentMailStatus = "failed"
)

// Valid reports whether s is a known status
func (s SentMailStatus) Valid() bool {
	switch s {
	case SentMailStatusSent, SentMailStatusDelivered, SentMailStatusOpened, SentMailStatusFailed:
		return true
	}
	return false
}

// AddressList is a list of email addresses stored as a JSONB array
type AddressList []string

// Value implements driver.Valuer
func (a AddressList) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(a))
}

// Scan implements sql.Scanner
func (a *AddressList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = AddressList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported type for AddressList")
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*a = out
	return nil
}

// SentMail is an append-only ledger record of an outbound message
type SentMail struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	MessageID   string         `db:"message_id" json:"message_id"`
	ThreadID    string         `db:"thread_id" json:"thread_id"`
	FromAddress string         `db:"from_address" json:"from"`
	ToAddresses AddressList    `db:"to_addresses" json:"to"`
	Subject     string         `db:"subject" json:"subject"`
	BodyHTML    string         `db:"body_html" json:"body_html"`
	BodyText    string         `db:"body_text" json:"body_text"`
	Type        SentMailType   `db:"type" json:"type"`
	Source      SentMailSource `db:"source" json:"source"`
	Status      SentMailStatus `db:"status" json:"status"`

	AIGenerated       bool    `db:"ai_generated" json:"ai_generated"`
	Prompt            *string `db:"prompt" json:"prompt,omitempty"`
	Model             *string `db:"model" json:"model,omitempty"`
	WebhookEvent      *string `db:"webhook_event" json:"webhook_event,omitempty"`
	OriginalMessageID *string `db:"original_message_id" json:"original_message_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ListSentMailParams holds filters for browsing the ledger
type ListSentMailParams struct {
	Type     SentMailType
	Status   SentMailStatus
	ThreadID string
	Limit    int
}
