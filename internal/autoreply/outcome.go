package autoreply

import "errors"

// SkipReason is the machine-readable reason a run stopped without replying
type SkipReason string

const (
	ReasonNoUserFound          SkipReason = "no user found"
	ReasonNotActiveAccount     SkipReason = "not active account"
	ReasonAutoReplyDisabled    SkipReason = "auto-reply disabled"
	ReasonSelfMessage          SkipReason = "self message"
	ReasonSenderNotWhitelisted SkipReason = "sender not whitelisted"
	ReasonEmptyThread          SkipReason = "empty thread"
	ReasonEmptyDraft           SkipReason = "empty draft"
	ReasonAlreadyReplied       SkipReason = "already replied"
	ReasonMissingThread        SkipReason = "missing thread"
	ReasonMissingRecipient     SkipReason = "missing recipient"
)

// Result is the terminal state of a pipeline run
type Result string

const (
	ResultSent    Result = "sent"
	ResultSkipped Result = "skipped"
	ResultAborted Result = "aborted"
)

// Outcome describes how a pipeline run ended
type Outcome struct {
	Result Result
	Reason SkipReason
	// SentMessageID is the provider id of the reply, set when Result is ResultSent
	SentMessageID string
	// Recorded is false when the reply went out but the ledger write failed
	Recorded bool
}

// Skipped reports whether the run stopped at a skip condition
func (o Outcome) Skipped() bool {
	return o.Result == ResultSkipped
}

func skipped(reason SkipReason) Outcome {
	return Outcome{Result: ResultSkipped, Reason: reason}
}

// Pipeline stage errors
var (
	// ErrEmptyThread indicates the gateway returned no messages for the thread
	ErrEmptyThread = errors.New("thread has no messages")
	// ErrEmptyDraft indicates the completion was blank after trimming
	ErrEmptyDraft = errors.New("completion produced an empty draft")
	// ErrSubmitFailed indicates the gateway explicitly rejected the reply for every recipient
	ErrSubmitFailed = errors.New("reply submission failed")
	// ErrSubmitUncertain indicates no recipient was confirmed but the gateway may have queued the reply
	ErrSubmitUncertain = errors.New("reply submission outcome unknown")
)
