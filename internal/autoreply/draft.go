package autoreply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/welldanyogia/replydesk/backend/internal/completion"
)

// Draft is a reply text together with what produced it.
// Model and Prompt are empty for text written by a person.
type Draft struct {
	Text   string
	Prompt string
	Model  string
}

// Drafter turns a thread context into reply text
type Drafter struct {
	completer Completer
	timeout   time.Duration
}

// NewDrafter creates a new Drafter
func NewDrafter(completer Completer, timeout time.Duration) *Drafter {
	return &Drafter{completer: completer, timeout: timeout}
}

// Draft asks the completer for a reply written as account.
// A blank completion returns ErrEmptyDraft.
func (d *Drafter) Draft(ctx context.Context, tc *ThreadContext, account string) (*Draft, error) {
	identity := Identity(account, tc.IdentityName)
	req := completion.Request{
		System: SystemPrompt(identity),
		User:   UserPrompt(identity, tc.Text()),
	}

	callCtx, cancel := callContext(ctx, d.timeout)
	defer cancel()

	text, err := d.completer.Complete(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("draft reply: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyDraft
	}

	return &Draft{
		Text:   text,
		Prompt: req.User,
		Model:  d.completer.Model(),
	}, nil
}

// Identity formats the mailbox the reply is written as
func Identity(address, name string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

// SystemPrompt binds the assistant to the replying mailbox
func SystemPrompt(identity string) string {
	return "You write natural email replies as " + identity + "."
}

// UserPrompt embeds the conversation with the reply constraints
func UserPrompt(identity, conversation string) string {
	var b strings.Builder
	b.WriteString("You are an email assistant. Based on the following email conversation thread, generate a natural and contextual reply.\n\n")
	b.WriteString("IMPORTANT:\n")
	b.WriteString("- This is a REPLY to the most recent message, not a new email\n")
	b.WriteString("- Do NOT include a subject line\n")
	b.WriteString("- Do NOT include \"From:\" or \"To:\" headers\n")
	b.WriteString("- Generate ONLY the reply content in natural language\n")
	b.WriteString("- Keep it professional but conversational\n")
	b.WriteString("- Reference the conversation context appropriately\n")
	b.WriteString("- Keep it concise (2-4 sentences)\n\n")
	b.WriteString("CONTEXT: You are replying as " + identity + ". This is your email address and identity.\n\n")
	b.WriteString("Email Thread:\n")
	b.WriteString(conversation)
	b.WriteString("\n\nGenerate a natural reply as " + identity + ":")
	return b.String()
}
