package webhook

import (
	"context"
	"log/slog"

	"github.com/welldanyogia/replydesk/backend/internal/autoreply"
	"github.com/welldanyogia/replydesk/backend/internal/logger"
	"github.com/welldanyogia/replydesk/backend/internal/metrics"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
)

// ReasonProcessingError is reported when a run was aborted by a collaborator failure
const ReasonProcessingError = "processing error"

// AutoReplier runs the auto-reply pipeline for a new message
type AutoReplier interface {
	Run(ctx context.Context, msg autoreply.Message) (autoreply.Outcome, error)
}

// StatusUpdater advances ledger records by provider message id
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, messageID string, status repository.SentMailStatus) (bool, error)
}

// Result is what the webhook reports back to the gateway
type Result struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

var ack = Result{OK: true}

// deliveryStatus maps delivery events to the ledger status they set
var deliveryStatus = map[EventKind]repository.SentMailStatus{
	EventMessageSent:   repository.SentMailStatusDelivered,
	EventMessageFailed: repository.SentMailStatusFailed,
	EventTrackOpen:     repository.SentMailStatusOpened,
}

// Dispatcher routes each event kind to one handler
type Dispatcher struct {
	replier AutoReplier
	ledger  StatusUpdater
	logger  *slog.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(replier AutoReplier, ledger StatusUpdater, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{replier: replier, ledger: ledger, logger: logger}
}

// Dispatch handles ev and returns the acknowledgement. It never fails:
// every error is logged and folded into the result.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *InboundEvent) Result {
	metrics.WebhookEventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case EventMessageNew:
		return d.handleMessageNew(ctx, ev)
	case EventMessageSent, EventMessageFailed, EventTrackOpen:
		return d.handleDeliveryStatus(ctx, ev)
	default:
		d.logger.Debug("Ignoring webhook event", slog.String("event", ev.RawKind))
		return ack
	}
}

func (d *Dispatcher) handleMessageNew(ctx context.Context, ev *InboundEvent) Result {
	log := logger.WithCorrelationID(ctx, d.logger).With(
		slog.String("event", string(ev.Kind)),
		slog.String("thread_id", ev.ThreadID),
		slog.String("message_id", ev.MessageID),
	)

	out, err := d.replier.Run(ctx, autoreply.Message{
		ReceivingAddress: ev.ReceivingAddress,
		SenderAddress:    ev.SenderAddress,
		ThreadID:         ev.ThreadID,
		MessageID:        ev.MessageID,
		Subject:          ev.Subject,
	})
	if err != nil {
		log.Error("Auto-reply aborted", slog.String("error", err.Error()))
		return Result{OK: true, Skipped: true, Reason: ReasonProcessingError}
	}

	if out.Skipped() {
		log.Info("Auto-reply skipped", slog.String("reason", string(out.Reason)))
		return Result{OK: true, Skipped: true, Reason: string(out.Reason)}
	}

	log.Info("Auto-reply sent",
		slog.String("sent_message_id", out.SentMessageID),
		slog.Bool("recorded", out.Recorded),
	)
	return ack
}

func (d *Dispatcher) handleDeliveryStatus(ctx context.Context, ev *InboundEvent) Result {
	status := deliveryStatus[ev.Kind]
	log := logger.WithCorrelationID(ctx, d.logger).With(
		slog.String("event", string(ev.Kind)),
		slog.String("message_id", ev.MessageID),
		slog.String("status", string(status)),
	)

	if ev.MessageID == "" {
		log.Warn("Delivery event without message id")
		return ack
	}

	found, err := d.ledger.UpdateStatus(ctx, ev.MessageID, status)
	if err != nil {
		log.Error("Failed to update sent mail status", slog.String("error", err.Error()))
		return ack
	}
	if !found {
		log.Debug("No sent mail record for delivery event")
		return ack
	}

	log.Info("Sent mail status updated")
	return ack
}
