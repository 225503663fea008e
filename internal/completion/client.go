// Package completion wraps the chat-completion API used to draft email replies.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/welldanyogia/replydesk/backend/internal/metrics"
)

var (
	// ErrNotConfigured indicates the completion client has no API key
	ErrNotConfigured = errors.New("completion client not configured")
	// ErrAPICallFailed indicates the completion API call failed
	ErrAPICallFailed = errors.New("completion API call failed")
)

// Config holds completion client configuration
type Config struct {
	APIKey      string
	BaseURL     string // optional, for OpenAI-compatible endpoints
	Model       string
	MaxTokens   int
	Temperature float32
}

// Request is a single system + user prompt exchange
type Request struct {
	System string
	User   string
	// JSON asks the model for a single JSON object
	JSON bool
}

// Client invokes the completion API
type Client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewClient creates a new completion Client
func NewClient(cfg Config) *Client {
	c := &Client{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if c.model == "" {
		c.model = openai.GPT4oMini
	}
	if c.maxTokens <= 0 {
		c.maxTokens = 220
	}
	if cfg.APIKey != "" {
		apiCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			apiCfg.BaseURL = cfg.BaseURL
		}
		c.api = openai.NewClientWithConfig(apiCfg)
	}
	return c
}

// IsConfigured returns whether the client can make calls
func (c *Client) IsConfigured() bool {
	return c.api != nil
}

// Model returns the model name used for completions
func (c *Client) Model() string {
	return c.model
}

// Complete sends one chat completion and returns the first choice's text, untrimmed.
// An empty string with a nil error means the model produced nothing.
func (c *Client) Complete(ctx context.Context, req Request) (text string, err error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	defer func(start time.Time) { metrics.ObserveRemoteCall("completion", "chat", start, err) }(time.Now())

	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
