package autoreply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/replydesk/backend/internal/metrics"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
	"github.com/welldanyogia/replydesk/backend/internal/sanitizer"
)

// Pipeline defaults
const (
	DefaultCallTimeout = 20 * time.Second
	DefaultClaimTTL    = 10 * time.Minute
)

// Message is the part of a new-message event the pipeline acts on
type Message struct {
	ReceivingAddress string
	SenderAddress    string
	ThreadID         string
	MessageID        string
	Subject          string
}

// Config tunes a Pipeline
type Config struct {
	CallTimeout    time.Duration
	ClaimTTL       time.Duration
	SummarySize    int
	DedupeRePrefix bool
}

// Deps are the collaborators a Pipeline runs against
type Deps struct {
	Credentials CredentialStore
	Whitelist   WhitelistStore
	Settings    SettingsStore
	Ledger      LedgerStore
	Gateway     MailGateway
	Completer   Completer
	Claims      ClaimStore // optional
	Sanitizer   *sanitizer.Sanitizer
	Logger      *slog.Logger
}

// Pipeline turns one new-message event into zero or one in-thread reply
type Pipeline struct {
	credentials CredentialStore
	ledger      LedgerStore
	claims      ClaimStore
	claimTTL    time.Duration
	gate        *Gate
	thread      *ThreadContextBuilder
	drafter     *Drafter
	deliverer   *Deliverer
	logger      *slog.Logger
}

// NewPipeline wires a Pipeline from its collaborators
func NewPipeline(deps Deps, cfg Config) *Pipeline {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = DefaultClaimTTL
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = sanitizer.New()
	}
	claims := deps.Claims
	if claims == nil {
		claims = NoopClaimStore{}
	}

	return &Pipeline{
		credentials: deps.Credentials,
		ledger:      deps.Ledger,
		claims:      claims,
		claimTTL:    cfg.ClaimTTL,
		gate:        NewGate(deps.Settings, deps.Whitelist),
		thread:      NewThreadContextBuilder(deps.Gateway, deps.Sanitizer, cfg.SummarySize, cfg.CallTimeout, deps.Logger),
		drafter:     NewDrafter(deps.Completer, cfg.CallTimeout),
		deliverer:   NewDeliverer(deps.Gateway, deps.Ledger, deps.Sanitizer, cfg.DedupeRePrefix, cfg.CallTimeout, deps.Logger),
		logger:      deps.Logger,
	}
}

// Run executes the pipeline for msg. Skip conditions come back as a skipped
// Outcome with a nil error. A non-nil error means a collaborator failed and
// the run was aborted before anything was sent.
func (p *Pipeline) Run(ctx context.Context, msg Message) (out Outcome, err error) {
	defer func() {
		reason := string(out.Reason)
		if out.Result == ResultAborted {
			reason = "error"
		}
		metrics.RecordAutoReplyOutcome(string(out.Result), reason)
	}()

	receiving := strings.TrimSpace(msg.ReceivingAddress)
	if receiving == "" {
		return skipped(ReasonMissingRecipient), nil
	}
	if strings.TrimSpace(msg.ThreadID) == "" {
		return skipped(ReasonMissingThread), nil
	}

	userID, active, reason, err := p.resolveAccount(ctx, receiving)
	if err != nil {
		return aborted(err)
	}
	if reason != "" {
		return skipped(reason), nil
	}

	reason, err = p.gate.Evaluate(ctx, userID, active.EmailAddress, msg.SenderAddress)
	if err != nil {
		return aborted(err)
	}
	if reason != "" {
		return skipped(reason), nil
	}

	claimed := false
	if msg.MessageID != "" {
		reason, claimed, err = p.claim(ctx, msg.MessageID)
		if err != nil {
			return aborted(err)
		}
		if reason != "" {
			return skipped(reason), nil
		}
	}
	// Until the reply is submitted a failed run gives the claim back for a retry
	release := func() {
		if claimed {
			if err := p.claims.Release(context.WithoutCancel(ctx), msg.MessageID); err != nil {
				p.logger.Warn("Failed to release message claim",
					slog.String("message_id", msg.MessageID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	account := active.EmailAddress
	tc, err := p.thread.Build(ctx, account, msg.ThreadID)
	if errors.Is(err, ErrEmptyThread) {
		release()
		return skipped(ReasonEmptyThread), nil
	}
	if err != nil {
		release()
		return aborted(err)
	}

	draft, err := p.drafter.Draft(ctx, tc, account)
	if errors.Is(err, ErrEmptyDraft) {
		release()
		return skipped(ReasonEmptyDraft), nil
	}
	if err != nil {
		release()
		return aborted(err)
	}

	delivery, err := p.deliverer.Deliver(ctx, Reply{
		Account:           account,
		Recipient:         msg.SenderAddress,
		Subject:           msg.Subject,
		ThreadID:          msg.ThreadID,
		OriginalMessageID: msg.MessageID,
		Draft:             draft,
	})
	if err != nil {
		// Only an explicit rejection proves nothing went out
		if errors.Is(err, ErrSubmitFailed) {
			release()
		}
		return aborted(err)
	}

	return Outcome{Result: ResultSent, SentMessageID: delivery.MessageID, Recorded: delivery.Recorded}, nil
}

// resolveAccount finds the owner of the receiving address and confirms it is their active mailbox
func (p *Pipeline) resolveAccount(ctx context.Context, receiving string) (uuid.UUID, *repository.Credential, SkipReason, error) {
	userID, err := p.credentials.FindUserIDByAddress(ctx, receiving)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return uuid.Nil, nil, ReasonNoUserFound, nil
	}
	if err != nil {
		return uuid.Nil, nil, "", fmt.Errorf("find user by address: %w", err)
	}

	active, err := p.credentials.GetActive(ctx, userID)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return userID, nil, ReasonNotActiveAccount, nil
	}
	if err != nil {
		return uuid.Nil, nil, "", fmt.Errorf("get active credential: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(active.EmailAddress), receiving) {
		return userID, nil, ReasonNotActiveAccount, nil
	}

	return userID, active, "", nil
}

// claim guards against replying twice to the same incoming message: once through
// the durable ledger, once through a short-lived claim for concurrent deliveries.
// An unavailable claim store is logged and ignored.
func (p *Pipeline) claim(ctx context.Context, messageID string) (SkipReason, bool, error) {
	replied, err := p.ledger.HasAutoReplyFor(ctx, messageID)
	if err != nil {
		return "", false, fmt.Errorf("check ledger for prior reply: %w", err)
	}
	if replied {
		return ReasonAlreadyReplied, false, nil
	}

	ok, err := p.claims.Claim(ctx, messageID, p.claimTTL)
	if err != nil {
		p.logger.Warn("Message claim unavailable, relying on ledger check",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return "", false, nil
	}
	if !ok {
		return ReasonAlreadyReplied, false, nil
	}
	return "", true, nil
}

func aborted(err error) (Outcome, error) {
	return Outcome{Result: ResultAborted}, err
}
