// Package mailbox reads the user's active mailbox through the mail gateway.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/replydesk/backend/internal/gateway"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
	"github.com/welldanyogia/replydesk/backend/internal/sanitizer"
)

// Service errors
var (
	ErrNoActiveAccount = errors.New("no active account for user")
)

// Listing bounds
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CredentialStore resolves the mailbox a user reads
type CredentialStore interface {
	GetActive(ctx context.Context, userID uuid.UUID) (*repository.Credential, error)
}

// Reader is the read side of the mail gateway
type Reader interface {
	ListMessages(ctx context.Context, account string, page, pageSize int) (*gateway.MessageList, error)
	SearchByThread(ctx context.Context, account, threadID string) ([]gateway.MessageSummary, error)
	FetchContent(ctx context.Context, account, contentID string) (*gateway.Content, error)
}

// Service reads messages of the active mailbox
type Service struct {
	credentials CredentialStore
	reader      Reader
	sanitizer   *sanitizer.Sanitizer
	timeout     time.Duration
}

// NewService creates a new mailbox Service
func NewService(credentials CredentialStore, reader Reader, s *sanitizer.Sanitizer, timeout time.Duration) *Service {
	if s == nil {
		s = sanitizer.New()
	}
	return &Service{credentials: credentials, reader: reader, sanitizer: s, timeout: timeout}
}

// Inbox returns one page of the active mailbox, newest first
func (s *Service) Inbox(ctx context.Context, userID uuid.UUID, page, pageSize int) (*gateway.MessageList, error) {
	account, err := s.activeAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	list, err := s.reader.ListMessages(callCtx, account, max(page, 0), ClampPageSize(pageSize))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return list, nil
}

// Thread returns every message of a thread, oldest first. Bodies are fetched separately.
func (s *Service) Thread(ctx context.Context, userID uuid.UUID, threadID string) ([]gateway.MessageSummary, error) {
	account, err := s.activeAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	messages, err := s.reader.SearchByThread(callCtx, account, threadID)
	if err != nil {
		return nil, fmt.Errorf("search thread: %w", err)
	}
	if messages == nil {
		messages = []gateway.MessageSummary{}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Time().Before(messages[j].Time())
	})
	return messages, nil
}

// Content returns a message body with unsafe HTML removed
func (s *Service) Content(ctx context.Context, userID uuid.UUID, contentID string) (*gateway.Content, error) {
	account, err := s.activeAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	content, err := s.reader.FetchContent(callCtx, account, contentID)
	if err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}
	return &gateway.Content{
		HTML: s.sanitizer.SafeHTML(content.HTML),
		Text: content.Text,
	}, nil
}

// ClampPageSize applies the default and maximum page size
func ClampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

func (s *Service) activeAccount(ctx context.Context, userID uuid.UUID) (string, error) {
	cred, err := s.credentials.GetActive(ctx, userID)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return "", ErrNoActiveAccount
	}
	if err != nil {
		return "", fmt.Errorf("get active credential: %w", err)
	}
	return cred.EmailAddress, nil
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
