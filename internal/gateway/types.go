package gateway

import (
	"time"
)

// Address is a named mailbox as reported by the gateway
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// TextRef points at the text part of a message, fetched separately on demand
type TextRef struct {
	ID string `json:"id"`
}

// MessageSummary is one entry of a message list or search result
type MessageSummary struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId,omitempty"`
	ThreadID  string    `json:"threadId,omitempty"`
	Date      string    `json:"date,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	From      *Address  `json:"from,omitempty"`
	To        []Address `json:"to,omitempty"`
	ReplyTo   []Address `json:"replyTo,omitempty"`
	Text      *TextRef  `json:"text,omitempty"`
}

// Time parses the message date. An unparseable date yields the zero time.
func (m MessageSummary) Time() time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.RFC1123Z} {
		if t, err := time.Parse(layout, m.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ContentID returns the id used to fetch the message body, preferring the dedicated text-part id
func (m MessageSummary) ContentID() string {
	if m.Text != nil && m.Text.ID != "" {
		return m.Text.ID
	}
	return m.ID
}

// SenderLabel returns the sender's display name, falling back to the address
func (m MessageSummary) SenderLabel() string {
	if m.From == nil {
		return "Unknown"
	}
	if m.From.Name != "" {
		return m.From.Name
	}
	if m.From.Address != "" {
		return m.From.Address
	}
	return "Unknown"
}

// MessageList is one page of a mailbox listing
type MessageList struct {
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Pages    int              `json:"pages"`
	Messages []MessageSummary `json:"messages"`
}

// Content is the resolved body of a message
type Content struct {
	HTML string `json:"html,omitempty"`
	Text string `json:"plain,omitempty"`
}

// Reference ties a submitted message to an existing one
type Reference struct {
	Message string `json:"message"`
	Action  string `json:"action"` // reply, replyAll or forward
}

// ActionReply is the reference action for an in-thread reply
const ActionReply = "reply"

// SubmitRequest is a message to send from an account
type SubmitRequest struct {
	To        []string
	Subject   string
	Text      string
	HTML      string
	Reference *Reference
}

// SubmitResult is the per-recipient outcome of a submission
type SubmitResult struct {
	To      string `json:"to"`
	ID      string `json:"id,omitempty"`
	QueueID string `json:"queueId,omitempty"`
	SentAt  string `json:"sentAt,omitempty"`
	Error   string `json:"error,omitempty"`
	// Rejected is set when the gateway answered with an error status.
	// A failure without it (timeout, dropped connection) may still have been queued.
	Rejected bool `json:"rejected,omitempty"`
}

// OK reports whether the recipient was accepted by the gateway
func (r SubmitResult) OK() bool {
	return r.Error == ""
}

// ServerSettings are IMAP or SMTP connection settings for account linking
type ServerSettings struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Secure bool   `json:"secure"`
	Auth   struct {
		User string `json:"user"`
		Pass string `json:"pass"`
	} `json:"auth"`
}

// OAuth2Settings asks the gateway to start an OAuth2 authorization for the account
type OAuth2Settings struct {
	Authorize   bool   `json:"authorize"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// CreateAccountRequest registers a mailbox with the gateway
type CreateAccountRequest struct {
	Account string          `json:"account"`
	Name    string          `json:"name,omitempty"`
	Email   string          `json:"email"`
	IMAP    *ServerSettings `json:"imap,omitempty"`
	SMTP    *ServerSettings `json:"smtp,omitempty"`
	OAuth2  *OAuth2Settings `json:"oauth2,omitempty"`
}

// CreateAccountResponse is the gateway's answer to account registration
type CreateAccountResponse struct {
	Account string `json:"account"`
	State   string `json:"state"`
	// Redirect is set for OAuth2 accounts that still need user consent
	Redirect string `json:"redirect,omitempty"`
}

// CreateGatewayRequest registers an SMTP relay used to submit mail for an account
type CreateGatewayRequest struct {
	Gateway string `json:"gateway"`
	Name    string `json:"name"`
	User    string `json:"user"`
	Pass    string `json:"pass"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// CreateGatewayResponse is the gateway's answer to relay registration
type CreateGatewayResponse struct {
	Gateway string `json:"gateway"`
	State   string `json:"state"`
}
