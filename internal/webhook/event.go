// Package webhook receives mail-gateway notifications and routes each event
// kind to its handler.
package webhook

import (
	"encoding/json"
	"errors"
	"strings"
)

// EventKind is the closed set of gateway events this service reacts to
type EventKind string

const (
	EventMessageNew    EventKind = "messageNew"
	EventMessageSent   EventKind = "messageSent"
	EventMessageFailed EventKind = "messageFailed"
	EventTrackOpen     EventKind = "trackOpen"
	EventOther         EventKind = "other"
)

// ErrMalformedEvent indicates the webhook body was not a JSON event object
var ErrMalformedEvent = errors.New("malformed webhook event")

// InboundEvent is one webhook delivery, immutable after parsing
type InboundEvent struct {
	Kind EventKind
	// RawKind is the event name as sent, kept for events classified as other
	RawKind          string
	ReceivingAddress string
	SenderAddress    string
	ThreadID         string
	// MessageID is the provider id of the message the event is about
	MessageID string
	Subject   string
	Raw       json.RawMessage
}

type wireAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type wireEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        string        `json:"id"`
		MessageID string        `json:"messageId"`
		ThreadID  string        `json:"threadId"`
		Subject   string        `json:"subject"`
		From      *wireAddress  `json:"from"`
		To        []wireAddress `json:"to"`
	} `json:"data"`
}

// ParseEvent classifies a webhook body. Unknown event names parse as EventOther.
func ParseEvent(body []byte) (*InboundEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}

	ev := &InboundEvent{
		Kind:     classify(w.Event),
		RawKind:  w.Event,
		ThreadID: strings.TrimSpace(w.Data.ThreadID),
		Subject:  w.Data.Subject,
		Raw:      json.RawMessage(body),
	}
	if len(w.Data.To) > 0 {
		ev.ReceivingAddress = strings.TrimSpace(w.Data.To[0].Address)
	}
	if w.Data.From != nil {
		ev.SenderAddress = strings.TrimSpace(w.Data.From.Address)
	}

	// New messages are referenced by their gateway id; delivery events by the
	// id returned at submission time.
	if ev.Kind == EventMessageNew {
		ev.MessageID = firstNonEmpty(w.Data.ID, w.Data.MessageID)
	} else {
		ev.MessageID = firstNonEmpty(w.Data.MessageID, w.Data.ID)
	}

	return ev, nil
}

func classify(name string) EventKind {
	switch EventKind(name) {
	case EventMessageNew, EventMessageSent, EventMessageFailed, EventTrackOpen:
		return EventKind(name)
	}
	return EventOther
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
