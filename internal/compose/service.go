// Package compose drafts and sends mail on behalf of a user's active mailbox:
// reply drafts for a thread, manual replies, and AI-written new messages.
package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/replydesk/backend/internal/autoreply"
	"github.com/welldanyogia/replydesk/backend/internal/completion"
	"github.com/welldanyogia/replydesk/backend/internal/gateway"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
	"github.com/welldanyogia/replydesk/backend/internal/sanitizer"
)

// Service errors
var (
	ErrNoActiveAccount  = errors.New("no active account for user")
	ErrThreadNotFound   = errors.New("no messages found in thread")
	ErrNoRecipient      = errors.New("latest thread message has no external sender")
	ErrGenerationFailed = errors.New("failed to generate email")
	ErrSendRejected     = errors.New("mail gateway rejected the message")
)

// Compose formats and actions
const (
	FormatFormal   = "formal"
	FormatCasual   = "casual"
	FormatFriendly = "friendly"
	FormatConcise  = "concise"

	ActionPreview = "preview"
	ActionSend    = "send"
)

// CredentialStore resolves the mailbox a user sends from
type CredentialStore interface {
	GetActive(ctx context.Context, userID uuid.UUID) (*repository.Credential, error)
}

// ThreadBuilder summarizes a thread as seen by a mailbox
type ThreadBuilder interface {
	Build(ctx context.Context, account, threadID string) (*autoreply.ThreadContext, error)
}

// ReplyDrafter writes a reply from a thread context
type ReplyDrafter interface {
	Draft(ctx context.Context, tc *autoreply.ThreadContext, account string) (*autoreply.Draft, error)
}

// ReplySender submits an in-thread reply and records it
type ReplySender interface {
	Deliver(ctx context.Context, reply autoreply.Reply) (*autoreply.Delivery, error)
}

// Completer writes new messages
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (string, error)
	Model() string
}

// Submitter sends new messages through the mail gateway
type Submitter interface {
	Submit(ctx context.Context, account string, req gateway.SubmitRequest) ([]gateway.SubmitResult, error)
}

// Ledger records sent mail
type Ledger interface {
	Append(ctx context.Context, mail *repository.SentMail) error
}

// Deps are the collaborators of a Service
type Deps struct {
	Credentials CredentialStore
	Thread      ThreadBuilder
	Drafter     ReplyDrafter
	Sender      ReplySender
	Completer   Completer
	Gateway     Submitter
	Ledger      Ledger
	Sanitizer   *sanitizer.Sanitizer
	// CallTimeout bounds each completion and gateway call made directly by the service
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Service drafts and sends user-initiated mail
type Service struct {
	deps   Deps
	logger *slog.Logger
}

// NewService creates a new compose Service
func NewService(deps Deps) *Service {
	if deps.Sanitizer == nil {
		deps.Sanitizer = sanitizer.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{deps: deps, logger: logger}
}

// GeneratedReply is a reply draft for a thread, not yet sent
type GeneratedReply struct {
	Account      string `json:"account"`
	ThreadID     string `json:"thread_id"`
	Reply        string `json:"reply"`
	MessageCount int    `json:"message_count"`
	Model        string `json:"model"`
}

// GenerateReply drafts a reply to the latest message of threadID as the user's active mailbox
func (s *Service) GenerateReply(ctx context.Context, userID uuid.UUID, threadID string) (*GeneratedReply, error) {
	account, err := s.activeAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	tc, err := s.thread(ctx, account, threadID)
	if err != nil {
		return nil, err
	}

	draft, err := s.draft(ctx, tc, account)
	if err != nil {
		return nil, err
	}

	return &GeneratedReply{
		Account:      account,
		ThreadID:     threadID,
		Reply:        draft.Text,
		MessageCount: tc.MessageCount,
		Model:        draft.Model,
	}, nil
}

// ReplyInput is a manual reply to a thread. An empty Text asks for a generated one.
type ReplyInput struct {
	ThreadID string
	Text     string
}

// SentReply describes a reply that left through the gateway
type SentReply struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	Generated bool   `json:"generated"`
	Recorded  bool   `json:"recorded"`
}

// SendReply answers the latest message of a thread from the user's active mailbox
func (s *Service) SendReply(ctx context.Context, userID uuid.UUID, in ReplyInput) (*SentReply, error) {
	account, err := s.activeAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	tc, err := s.thread(ctx, account, in.ThreadID)
	if err != nil {
		return nil, err
	}

	latest := tc.Latest
	if latest.From == nil || latest.From.Address == "" || strings.EqualFold(latest.From.Address, account) {
		return nil, ErrNoRecipient
	}

	draft := &autoreply.Draft{Text: strings.TrimSpace(in.Text)}
	if draft.Text == "" {
		if draft, err = s.draft(ctx, tc, account); err != nil {
			return nil, err
		}
	}

	delivery, err := s.deps.Sender.Deliver(ctx, autoreply.Reply{
		Account:           account,
		Recipient:         latest.From.Address,
		Subject:           latest.Subject,
		ThreadID:          in.ThreadID,
		OriginalMessageID: latest.ID,
		Draft:             draft,
		Type:              repository.SentMailTypeManualReply,
		Source:            repository.SentMailSourceManualAutoReply,
	})
	if err != nil {
		if errors.Is(err, autoreply.ErrSubmitFailed) {
			return nil, fmt.Errorf("%w: %v", ErrSendRejected, err)
		}
		return nil, err
	}

	s.logger.Info("Manual reply sent",
		slog.String("user_id", userID.String()),
		slog.String("thread_id", in.ThreadID),
		slog.String("message_id", delivery.MessageID),
		slog.Bool("generated", draft.Model != ""),
	)

	return &SentReply{
		MessageID: delivery.MessageID,
		ThreadID:  in.ThreadID,
		To:        latest.From.Address,
		Subject:   delivery.Record.Subject,
		Text:      draft.Text,
		Generated: draft.Model != "",
		Recorded:  delivery.Recorded,
	}, nil
}

// ComposeInput asks for a new message written from a brief
type ComposeInput struct {
	Emails  []string
	Subject string
	Brief   string
	Format  string
	Action  string
}

// Message is a generated email
type Message struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// RecipientResult is the send outcome for one recipient
type RecipientResult struct {
	To    string `json:"to"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// ComposeResult holds the generated message and, unless previewing, per-recipient results
type ComposeResult struct {
	Message *Message          `json:"message"`
	Results []RecipientResult `json:"results,omitempty"`
}

// Compose writes a new message from a brief. With ActionPreview nothing is sent;
// otherwise the message goes to every recipient from the active mailbox and each
// accepted copy is recorded in the ledger.
func (s *Service) Compose(ctx context.Context, userID uuid.UUID, in ComposeInput) (*ComposeResult, error) {
	if in.Format == "" {
		in.Format = FormatFriendly
	}
	if in.Action == "" {
		in.Action = ActionSend
	}

	// Resolve the sender before spending a completion on a message that cannot go out
	var account string
	if in.Action == ActionSend {
		var err error
		if account, err = s.activeAccount(ctx, userID); err != nil {
			return nil, err
		}
	}

	req := completion.Request{
		System: composeSystemPrompt,
		User:   composeUserPrompt(in.Format, in.Subject, in.Brief),
		JSON:   true,
	}
	msg, err := s.generate(ctx, req, in)
	if err != nil {
		return nil, err
	}

	if in.Action == ActionPreview {
		return &ComposeResult{Message: msg}, nil
	}

	submitCtx, cancel := s.callContext(ctx)
	results, err := s.deps.Gateway.Submit(submitCtx, account, gateway.SubmitRequest{
		To:      in.Emails,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("submit composed message: %w", err)
	}

	out := &ComposeResult{Message: msg, Results: make([]RecipientResult, 0, len(results))}
	for _, r := range results {
		if !r.OK() {
			out.Results = append(out.Results, RecipientResult{To: r.To, Error: r.Error})
			continue
		}
		out.Results = append(out.Results, RecipientResult{To: r.To, ID: r.ID})
		s.record(ctx, account, r, msg, req)
	}

	s.logger.Info("Composed message sent",
		slog.String("user_id", userID.String()),
		slog.Int("recipients", len(in.Emails)),
		slog.Int("accepted", countAccepted(out.Results)),
	)
	return out, nil
}

func (s *Service) activeAccount(ctx context.Context, userID uuid.UUID) (string, error) {
	cred, err := s.deps.Credentials.GetActive(ctx, userID)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return "", ErrNoActiveAccount
	}
	if err != nil {
		return "", fmt.Errorf("get active credential: %w", err)
	}
	return cred.EmailAddress, nil
}

func (s *Service) thread(ctx context.Context, account, threadID string) (*autoreply.ThreadContext, error) {
	tc, err := s.deps.Thread.Build(ctx, account, threadID)
	if errors.Is(err, autoreply.ErrEmptyThread) {
		return nil, ErrThreadNotFound
	}
	return tc, err
}

func (s *Service) draft(ctx context.Context, tc *autoreply.ThreadContext, account string) (*autoreply.Draft, error) {
	draft, err := s.deps.Drafter.Draft(ctx, tc, account)
	if errors.Is(err, autoreply.ErrEmptyDraft) {
		return nil, ErrGenerationFailed
	}
	return draft, err
}

// generate asks the model for {subject, html, text} and fills gaps from the input
func (s *Service) generate(ctx context.Context, req completion.Request, in ComposeInput) (*Message, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	raw, err := s.deps.Completer.Complete(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("compose message: %w", err)
	}

	var generated struct {
		Subject string `json:"subject"`
		HTML    string `json:"html"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &generated); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	msg := &Message{
		Subject: strings.TrimSpace(generated.Subject),
		Text:    strings.TrimSpace(generated.Text),
		HTML:    s.deps.Sanitizer.SafeHTML(generated.HTML),
	}
	if msg.Subject == "" {
		msg.Subject = in.Subject
	}
	if msg.Text == "" {
		msg.Text = in.Brief
	}
	if msg.HTML == "" {
		msg.HTML = s.deps.Sanitizer.ReplyHTML(msg.Text)
	}
	return msg, nil
}

// record appends one ledger entry per accepted recipient. The message is already out,
// so a failed write is logged and the caller's cancellation is ignored.
func (s *Service) record(ctx context.Context, account string, r gateway.SubmitResult, msg *Message, req completion.Request) {
	messageID := r.ID
	if messageID == "" {
		messageID = fmt.Sprintf("compose-%d", time.Now().UnixMilli())
	}

	ledgerCtx, cancel := s.callContext(context.WithoutCancel(ctx))
	defer cancel()

	model := s.deps.Completer.Model()
	err := s.deps.Ledger.Append(ledgerCtx, &repository.SentMail{
		MessageID:   messageID,
		FromAddress: account,
		ToAddresses: repository.AddressList{r.To},
		Subject:     msg.Subject,
		BodyHTML:    msg.HTML,
		BodyText:    msg.Text,
		Type:        repository.SentMailTypeSent,
		Source:      repository.SentMailSourceCompose,
		Status:      repository.SentMailStatusSent,
		AIGenerated: true,
		Prompt:      &req.User,
		Model:       &model,
	})
	if err != nil {
		s.logger.Error("Failed to record composed message",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.deps.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.deps.CallTimeout)
}

func countAccepted(results []RecipientResult) int {
	n := 0
	for _, r := range results {
		if r.Error == "" {
			n++
		}
	}
	return n
}

const composeSystemPrompt = "You are an assistant that writes clear, actionable emails. Keep it polite and include a short CTA."

func composeUserPrompt(format, subject, brief string) string {
	var tone string
	switch format {
	case FormatFormal:
		tone = "Write in a professional tone."
	case FormatCasual:
		tone = "Write in a relaxed tone."
	case FormatConcise:
		tone = "Write concisely."
	default:
		tone = "Write in a friendly tone."
	}
	return tone + "\n\nSubject: " + subject + "\n\nBrief: " + brief + "\n\nPlease produce JSON with keys: subject, html, text."
}
