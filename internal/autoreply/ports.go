// Package autoreply decides whether an inbound message deserves an automatic
// reply, drafts one from the thread, sends it in-thread and records it in the
// sent-mail ledger.
package autoreply

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/replydesk/backend/internal/completion"
	"github.com/welldanyogia/replydesk/backend/internal/gateway"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
)

// CredentialStore resolves receiving addresses to users and their active mailbox
type CredentialStore interface {
	FindUserIDByAddress(ctx context.Context, address string) (uuid.UUID, error)
	GetActive(ctx context.Context, userID uuid.UUID) (*repository.Credential, error)
}

// WhitelistStore answers sender membership in a user's allow-list
type WhitelistStore interface {
	IsWhitelisted(ctx context.Context, userID uuid.UUID, address string) (bool, error)
}

// SettingsStore reads the global auto-reply toggle
type SettingsStore interface {
	AutoReplyEnabled(ctx context.Context) (bool, error)
}

// LedgerStore is the part of the sent-mail ledger the pipeline writes to
type LedgerStore interface {
	Append(ctx context.Context, mail *repository.SentMail) error
	HasAutoReplyFor(ctx context.Context, originalMessageID string) (bool, error)
}

// MailGateway is the mail-provider surface used to read threads and send replies
type MailGateway interface {
	SearchByThread(ctx context.Context, account, threadID string) ([]gateway.MessageSummary, error)
	FetchContent(ctx context.Context, account, contentID string) (*gateway.Content, error)
	Submit(ctx context.Context, account string, req gateway.SubmitRequest) ([]gateway.SubmitResult, error)
}

// Completer produces reply text from a prompt
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (string, error)
	Model() string
}

// ClaimStore holds short-lived claims on incoming message ids so concurrent
// deliveries of the same webhook cannot both reply
type ClaimStore interface {
	Claim(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// callContext bounds a single remote call. A non-positive timeout only adds cancellation.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
