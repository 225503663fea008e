package autoreply

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/replydesk/backend/internal/completion"
	"github.com/welldanyogia/replydesk/backend/internal/gateway"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
)

// mockCredentialStore is an in-memory CredentialStore
type mockCredentialStore struct {
	mu    sync.Mutex
	creds []repository.Credential
	err   error
	calls int
}

func (m *mockCredentialStore) add(userID uuid.UUID, address string, active bool) {
	m.creds = append(m.creds, repository.Credential{
		ID:           uuid.New(),
		UserID:       userID,
		EmailAddress: address,
		IsActive:     active,
	})
}

func (m *mockCredentialStore) FindUserIDByAddress(ctx context.Context, address string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return uuid.Nil, m.err
	}
	for _, c := range m.creds {
		if strings.EqualFold(c.EmailAddress, address) {
			return c.UserID, nil
		}
	}
	return uuid.Nil, repository.ErrCredentialNotFound
}

func (m *mockCredentialStore) GetActive(ctx context.Context, userID uuid.UUID) (*repository.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, c := range m.creds {
		if c.UserID == userID && c.IsActive {
			c := c
			return &c, nil
		}
	}
	return nil, repository.ErrCredentialNotFound
}

// mockWhitelistStore is an in-memory WhitelistStore
type mockWhitelistStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]map[string]bool
	err     error
	calls   int
}

func newMockWhitelistStore() *mockWhitelistStore {
	return &mockWhitelistStore{entries: make(map[uuid.UUID]map[string]bool)}
}

func (m *mockWhitelistStore) allow(userID uuid.UUID, address string) {
	if m.entries[userID] == nil {
		m.entries[userID] = make(map[string]bool)
	}
	m.entries[userID][strings.ToLower(address)] = true
}

func (m *mockWhitelistStore) IsWhitelisted(ctx context.Context, userID uuid.UUID, address string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	return m.entries[userID][strings.ToLower(strings.TrimSpace(address))], nil
}

// mockSettingsStore is an in-memory SettingsStore
type mockSettingsStore struct {
	enabled bool
	err     error
	calls   int
}

func (m *mockSettingsStore) AutoReplyEnabled(ctx context.Context) (bool, error) {
	m.calls++
	return m.enabled, m.err
}

// mockLedgerStore is an in-memory LedgerStore
type mockLedgerStore struct {
	mu        sync.Mutex
	records   []repository.SentMail
	appendErr error
	checkErr  error
}

func (m *mockLedgerStore) Append(ctx context.Context, mail *repository.SentMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	mail.ID = uuid.New()
	m.records = append(m.records, *mail)
	return nil
}

func (m *mockLedgerStore) HasAutoReplyFor(ctx context.Context, originalMessageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkErr != nil {
		return false, m.checkErr
	}
	for _, r := range m.records {
		if r.Type == repository.SentMailTypeAutoReply && r.OriginalMessageID != nil && *r.OriginalMessageID == originalMessageID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockLedgerStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// mockGateway is an in-memory MailGateway keyed by thread id
type mockGateway struct {
	mu        sync.Mutex
	threads   map[string][]gateway.MessageSummary
	contents  map[string]*gateway.Content
	searchErr error
	fetchErr  error
	submitErr error
	rejectAll bool
	// timeoutAll fails every recipient the way a submit past its deadline does
	timeoutAll bool
	delay     time.Duration

	searches  int
	fetches   int
	submitted []gateway.SubmitRequest
	accounts  []string
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		threads:  make(map[string][]gateway.MessageSummary),
		contents: make(map[string]*gateway.Content),
	}
}

func (m *mockGateway) SearchByThread(ctx context.Context, account, threadID string) ([]gateway.MessageSummary, error) {
	m.mu.Lock()
	m.searches++
	m.accounts = append(m.accounts, account)
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.threads[threadID], nil
}

func (m *mockGateway) FetchContent(ctx context.Context, account, contentID string) (*gateway.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	c, ok := m.contents[contentID]
	if !ok {
		return nil, gateway.ErrRequestFailed
	}
	return c, nil
}

func (m *mockGateway) Submit(ctx context.Context, account string, req gateway.SubmitRequest) ([]gateway.SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, req)
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	results := make([]gateway.SubmitResult, 0, len(req.To))
	for i, to := range req.To {
		if m.rejectAll {
			results = append(results, gateway.SubmitResult{To: to, Error: "mailbox unavailable", Rejected: true})
			continue
		}
		if m.timeoutAll {
			results = append(results, gateway.SubmitResult{To: to, Error: context.DeadlineExceeded.Error()})
			continue
		}
		results = append(results, gateway.SubmitResult{To: to, ID: "<reply-" + string(rune('a'+i)) + "@mail>"})
	}
	return results, nil
}

func (m *mockGateway) submitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted)
}

// mockCompleter returns a canned completion
type mockCompleter struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []completion.Request
}

func (m *mockCompleter) Complete(ctx context.Context, req completion.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.text, m.err
}

func (m *mockCompleter) Model() string { return "gpt-4o-mini" }

func (m *mockCompleter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// mockClaimStore is an in-memory ClaimStore
type mockClaimStore struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released []string
}

func newMockClaimStore() *mockClaimStore {
	return &mockClaimStore{held: make(map[string]bool)}
}

func (m *mockClaimStore) Claim(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.held[messageID] {
		return false, nil
	}
	m.held[messageID] = true
	return true, nil
}

func (m *mockClaimStore) Release(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, messageID)
	m.released = append(m.released, messageID)
	return nil
}

var errStoreDown = errors.New("store unavailable")
