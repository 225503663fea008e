package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/welldanyogia/replydesk/backend/internal/gateway"
	"github.com/welldanyogia/replydesk/backend/internal/metrics"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
	"github.com/welldanyogia/replydesk/backend/internal/sanitizer"
)

// WebhookEventMessageNew is recorded as the originating event of webhook replies
const WebhookEventMessageNew = "messageNew"

// Reply is a drafted reply ready to send.
// Type and Source default to an auto-reply triggered by the webhook.
type Reply struct {
	Account           string
	Recipient         string
	Subject           string
	ThreadID          string
	OriginalMessageID string
	Draft             *Draft
	Type              repository.SentMailType
	Source            repository.SentMailSource
}

// Delivery is the result of sending a reply
type Delivery struct {
	MessageID string
	Record    *repository.SentMail
	// Recorded is false when the ledger write failed after a successful send
	Recorded bool
}

// Deliverer sends replies through the gateway and records them in the ledger
type Deliverer struct {
	gateway        MailGateway
	ledger         LedgerStore
	sanitizer      *sanitizer.Sanitizer
	dedupeRePrefix bool
	timeout        time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// NewDeliverer creates a new Deliverer
func NewDeliverer(gw MailGateway, ledger LedgerStore, s *sanitizer.Sanitizer, dedupeRePrefix bool, timeout time.Duration, logger *slog.Logger) *Deliverer {
	if s == nil {
		s = sanitizer.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		gateway:        gw,
		ledger:         ledger,
		sanitizer:      s,
		dedupeRePrefix: dedupeRePrefix,
		timeout:        timeout,
		logger:         logger,
		now:            time.Now,
	}
}

// Deliver submits the reply in-thread and appends one auto-reply ledger record.
// A submission the gateway rejected returns ErrSubmitFailed and records nothing.
// One that timed out or lost its connection returns ErrSubmitUncertain.
// Once the reply is out, a ledger failure is logged and never returned.
func (d *Deliverer) Deliver(ctx context.Context, reply Reply) (*Delivery, error) {
	subject := ReplySubject(reply.Subject, d.dedupeRePrefix)
	html := d.sanitizer.ReplyHTML(reply.Draft.Text)

	req := gateway.SubmitRequest{
		To:      []string{reply.Recipient},
		Subject: subject,
		Text:    reply.Draft.Text,
		HTML:    html,
	}
	if reply.OriginalMessageID != "" {
		req.Reference = &gateway.Reference{Message: reply.OriginalMessageID, Action: gateway.ActionReply}
	}

	submitCtx, cancel := callContext(ctx, d.timeout)
	results, err := d.gateway.Submit(submitCtx, reply.Account, req)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("submit reply: %w", err)
	}

	messageID, err := acceptedID(results)
	if err != nil {
		return nil, err
	}
	if messageID == "" {
		messageID = fmt.Sprintf("auto-reply-%d", d.now().UnixMilli())
	}

	kind, source := reply.Type, reply.Source
	if kind == "" {
		kind = repository.SentMailTypeAutoReply
	}
	if source == "" {
		source = repository.SentMailSourceWebhook
	}
	var event *string
	if source == repository.SentMailSourceWebhook {
		event = stringPtr(WebhookEventMessageNew)
	}

	record := &repository.SentMail{
		MessageID:         messageID,
		ThreadID:          reply.ThreadID,
		FromAddress:       reply.Account,
		ToAddresses:       repository.AddressList{reply.Recipient},
		Subject:           subject,
		BodyHTML:          html,
		BodyText:          reply.Draft.Text,
		Type:              kind,
		Source:            source,
		Status:            repository.SentMailStatusSent,
		AIGenerated:       reply.Draft.Model != "",
		Prompt:            stringPtr(reply.Draft.Prompt),
		Model:             stringPtr(reply.Draft.Model),
		WebhookEvent:      event,
		OriginalMessageID: stringPtr(reply.OriginalMessageID),
	}

	// The reply has left; the record is written even if the caller has gone away.
	ledgerCtx, cancel := callContext(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	delivery := &Delivery{MessageID: messageID, Record: record, Recorded: true}
	if err := d.ledger.Append(ledgerCtx, record); err != nil {
		metrics.LedgerWriteFailuresTotal.Inc()
		d.logger.Error("Failed to record sent auto-reply",
			slog.String("message_id", messageID),
			slog.String("thread_id", reply.ThreadID),
			slog.String("error", err.Error()),
		)
		delivery.Recorded = false
	}
	return delivery, nil
}

// acceptedID returns the provider id of the first accepted recipient.
// It fails only when no recipient was accepted.
func acceptedID(results []gateway.SubmitResult) (string, error) {
	var firstErr string
	uncertain := false
	for _, r := range results {
		if r.OK() {
			return r.ID, nil
		}
		if firstErr == "" {
			firstErr = r.Error
		}
		if !r.Rejected {
			uncertain = true
		}
	}
	if firstErr == "" {
		firstErr = "no recipients accepted"
	}
	if uncertain {
		return "", fmt.Errorf("%w: %s", ErrSubmitUncertain, firstErr)
	}
	return "", fmt.Errorf("%w: %s", ErrSubmitFailed, firstErr)
}

// ReplySubject prefixes subject with "Re: ". With dedupe set, a subject that
// already carries the prefix is left alone.
func ReplySubject(subject string, dedupe bool) string {
	subject = strings.TrimSpace(subject)
	if dedupe && len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return strings.TrimSpace("Re: " + subject)
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
