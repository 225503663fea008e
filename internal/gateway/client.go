// Package gateway is a client for the EmailEngine REST API, the mail gateway that performs
// IMAP/SMTP/OAuth work on behalf of linked accounts.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/welldanyogia/replydesk/backend/internal/metrics"
)

var (
	// ErrNotConfigured indicates the gateway base URL or access token is missing
	ErrNotConfigured = errors.New("mail gateway not configured")
	// ErrRequestFailed indicates the gateway returned a non-success status or could not be reached
	ErrRequestFailed = errors.New("mail gateway request failed")
	// ErrInvalidResponse indicates the gateway returned a body that could not be decoded
	ErrInvalidResponse = errors.New("invalid mail gateway response")
	// ErrRejected marks an explicit non-2xx answer, as opposed to a timeout or transport failure
	ErrRejected = errors.New("rejected")
)

// microsoftSender matches senders that must be submitted with an explicit from address
var microsoftSender = regexp.MustCompile(`(?i)@(hotmail|outlook)\.com$`)

// Config holds gateway client configuration
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client talks to the gateway over HTTP
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a new gateway Client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// IsConfigured returns whether the client has an endpoint and credentials
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.accessToken != ""
}

// CreateAccount registers a mailbox with the gateway
func (c *Client) CreateAccount(ctx context.Context, req CreateAccountRequest) (resp *CreateAccountResponse, err error) {
	defer func(start time.Time) { metrics.ObserveRemoteCall("gateway", "create_account", start, err) }(time.Now())

	resp = &CreateAccountResponse{}
	if err := c.do(ctx, http.MethodPost, "/v1/account", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateGateway registers an SMTP relay with the gateway
func (c *Client) CreateGateway(ctx context.Context, req CreateGatewayRequest) (resp *CreateGatewayResponse, err error) {
	defer func(start time.Time) { metrics.ObserveRemoteCall("gateway", "create_gateway", start, err) }(time.Now())

	resp = &CreateGatewayResponse{}
	if err := c.do(ctx, http.MethodPost, "/v1/gateway", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SearchByThread returns every message of a thread visible to account
func (c *Client) SearchByThread(ctx context.Context, account, threadID string) (messages []MessageSummary, err error) {
	defer func(start time.Time) { metrics.ObserveRemoteCall("gateway", "search_thread", start, err) }(time.Now())

	path := "/v1/account/" + url.PathEscape(account) + "/search?path=" + url.QueryEscape(`\All`)
	body := map[string]any{
		"search": map[string]string{"threadId": threadID},
	}

	var out struct {
		Total    int              `json:"total"`
		Messages []MessageSummary `json:"messages"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}

	c.logger.Debug("Thread search completed",
		slog.String("thread_id", threadID),
		slog.Int("messages", len(out.Messages)),
	)
	return out.Messages, nil
}

// ListMessages returns one page of account's messages across all folders, newest first.
// Pages are zero-based as on the gateway.
func (c *Client) ListMessages(ctx context.Context, account string, page, pageSize int) (list *MessageList, err error) {
	defer func(start time.Time) { metrics.ObserveRemoteCall("gateway", "list_messages", start, err) }(time.Now())

	query := url.Values{}
	query.Set("path", `\All`)
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	path := "/v1/account/" + url.PathEscape(account) + "/messages?" + query.Encode()

	list = &MessageList{}
	if err := c.do(ctx, http.MethodGet, path, nil, list); err != nil {
		return nil, err
	}
	if list.Messages == nil {
		list.Messages = []MessageSummary{}
	}
	return list, nil
}

// FetchContent resolves the body of a message (or text part) by id
func (c *Client) FetchContent(ctx context.Context, account, contentID string) (content *Content, err error) {
	defer func(start time.Time) { metrics.ObserveRemoteCall("gateway", "fetch_content", start, err) }(time.Now())

	path := "/v1/account/" + url.PathEscape(account) + "/text/" + url.PathEscape(contentID)
	content = &Content{}
	if err := c.do(ctx, http.MethodGet, path, nil, content); err != nil {
		return nil, err
	}
	return content, nil
}

type submitPayload struct {
	To         []Address  `json:"to"`
	Subject    string     `json:"subject"`
	Text       string     `json:"text"`
	HTML       string     `json:"html,omitempty"`
	TrackOpens bool       `json:"trackOpens"`
	Reference  *Reference `json:"reference,omitempty"`
	From       *Address   `json:"from,omitempty"`
	Gateway    string     `json:"gateway,omitempty"`
}

// Submit sends a message from account, one gateway submission per recipient.
// Per-recipient failures are reported in the results; the returned error is
// non-nil only when the context ended before every recipient was attempted.
func (c *Client) Submit(ctx context.Context, account string, req SubmitRequest) (results []SubmitResult, err error) {
	defer func(start time.Time) { metrics.ObserveRemoteCall("gateway", "submit", start, err) }(time.Now())

	path := "/v1/account/" + url.PathEscape(account) + "/submit"
	results = make([]SubmitResult, 0, len(req.To))

	for _, recipient := range req.To {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		payload := submitPayload{
			To:         []Address{{Address: recipient}},
			Subject:    req.Subject,
			Text:       req.Text,
			HTML:       req.HTML,
			TrackOpens: true,
			Reference:  req.Reference,
		}
		// The gateway routes Microsoft consumer mailboxes through their own SMTP relay
		if microsoftSender.MatchString(account) {
			payload.From = &Address{Address: account}
		} else {
			payload.Gateway = account
		}

		var out struct {
			MessageID string `json:"messageId"`
			QueueID   string `json:"queueId"`
			SentAt    string `json:"sentAt"`
		}
		if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
			results = append(results, SubmitResult{
				To:       recipient,
				Error:    err.Error(),
				Rejected: errors.Is(err, ErrRejected),
			})
			continue
		}
		results = append(results, SubmitResult{
			To:      recipient,
			ID:      out.MessageID,
			QueueID: out.QueueID,
			SentAt:  out.SentAt,
		})
	}

	return results, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %w: status %d: %s", ErrRequestFailed, ErrRejected, resp.StatusCode, msg)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
