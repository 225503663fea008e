package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/welldanyogia/replydesk/backend/internal/gateway"
	"github.com/welldanyogia/replydesk/backend/internal/sanitizer"
)

// DefaultSummarySize is how many recent thread messages are summarized for the prompt
const DefaultSummarySize = 5

// ThreadContext is the conversation material a reply is drafted from
type ThreadContext struct {
	Latest     gateway.MessageSummary
	LatestBody string
	Summary    string
	// IdentityName is the account's display name as seen in the thread headers, if any
	IdentityName string
	MessageCount int
}

// Text joins the latest body and the summary, skipping whichever is empty
func (tc *ThreadContext) Text() string {
	parts := make([]string, 0, 2)
	if tc.LatestBody != "" {
		parts = append(parts, tc.LatestBody)
	}
	if tc.Summary != "" {
		parts = append(parts, tc.Summary)
	}
	return strings.Join(parts, "\n\n")
}

// ThreadContextBuilder assembles a ThreadContext from the mail gateway
type ThreadContextBuilder struct {
	gateway     MailGateway
	sanitizer   *sanitizer.Sanitizer
	summarySize int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewThreadContextBuilder creates a new ThreadContextBuilder
func NewThreadContextBuilder(gw MailGateway, s *sanitizer.Sanitizer, summarySize int, timeout time.Duration, logger *slog.Logger) *ThreadContextBuilder {
	if summarySize <= 0 {
		summarySize = DefaultSummarySize
	}
	if s == nil {
		s = sanitizer.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ThreadContextBuilder{
		gateway:     gw,
		sanitizer:   s,
		summarySize: summarySize,
		timeout:     timeout,
		logger:      logger,
	}
}

// Build fetches the thread as seen by account and summarizes it.
// It returns ErrEmptyThread when the thread has no messages. A failed body
// fetch leaves LatestBody empty instead of failing the build.
func (b *ThreadContextBuilder) Build(ctx context.Context, account, threadID string) (*ThreadContext, error) {
	searchCtx, cancel := callContext(ctx, b.timeout)
	messages, err := b.gateway.SearchByThread(searchCtx, account, threadID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("search thread: %w", err)
	}
	if len(messages) == 0 {
		return nil, ErrEmptyThread
	}

	ordered := chronological(messages)
	latest := ordered[len(ordered)-1]

	tc := &ThreadContext{
		Latest:       latest,
		LatestBody:   b.latestBody(ctx, account, latest),
		Summary:      summarize(ordered, b.summarySize),
		IdentityName: identityName(messages, account),
		MessageCount: len(messages),
	}
	return tc, nil
}

func (b *ThreadContextBuilder) latestBody(ctx context.Context, account string, latest gateway.MessageSummary) string {
	contentID := latest.ContentID()
	if contentID == "" {
		return ""
	}

	fetchCtx, cancel := callContext(ctx, b.timeout)
	defer cancel()

	content, err := b.gateway.FetchContent(fetchCtx, account, contentID)
	if err != nil {
		b.logger.Warn("Failed to fetch latest message body, continuing without it",
			slog.String("content_id", contentID),
			slog.String("error", err.Error()),
		)
		return ""
	}

	body := content.HTML
	if body == "" {
		body = content.Text
	}
	return b.sanitizer.ToPlainText(body)
}

// chronological returns a copy of messages ordered oldest first.
// Messages with equal dates keep their gateway order.
func chronological(messages []gateway.MessageSummary) []gateway.MessageSummary {
	ordered := make([]gateway.MessageSummary, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Time().Before(ordered[j].Time())
	})
	return ordered
}

// summarize renders the last n messages of an ordered thread, one per paragraph
func summarize(ordered []gateway.MessageSummary, n int) string {
	if len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	lines := make([]string, 0, len(ordered))
	for _, m := range ordered {
		lines = append(lines, fmt.Sprintf("%s (%s): %s", m.SenderLabel(), m.Date, m.Subject))
	}
	return strings.Join(lines, "\n\n")
}

// identityName finds a display name for account in any thread header
func identityName(messages []gateway.MessageSummary, account string) string {
	match := func(a gateway.Address) bool {
		return a.Name != "" && strings.EqualFold(a.Address, account)
	}
	for _, m := range messages {
		if m.From != nil && match(*m.From) {
			return m.From.Name
		}
		for _, a := range m.To {
			if match(a) {
				return a.Name
			}
		}
		for _, a := range m.ReplyTo {
			if match(a) {
				return a.Name
			}
		}
	}
	return ""
}
