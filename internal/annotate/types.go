// Package annotate turns free-form model output into validated per-message
// keyword annotations for a conversation thread.
package annotate

import (
	"fmt"
	"time"
)

// Item is the annotation for one message in a flattened conversation tree.
type Item struct {
	ID       string   `json:"id"`
	Author   string   `json:"author"`
	Keywords []string `json:"keywords"`
}

// RetryPolicy bounds the attempts made for one conversation.
// Waits grow linearly: BackoffBase before attempt 2, 2*BackoffBase before attempt 3, and so on.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// DefaultPolicy is used by the row pipeline unless configured otherwise.
var DefaultPolicy = RetryPolicy{MaxAttempts: 3, BackoffBase: 2 * time.Second}

// backoff returns the wait after the given 1-based attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	return p.BackoffBase * time.Duration(attempt)
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffBase < 0 {
		p.BackoffBase = 0
	}
	return p
}

// Result is the outcome of annotating one conversation. Exactly one of
// Payload (on success) or Message (on failure) is set; Text returns whichever
// it is so both can be written to the same output column.
type Result struct {
	OK       bool
	Payload  string // JSON array text as extracted from the model response
	Items    []Item
	Message  string // "ERROR ..." description on failure
	Attempts int
	Err      error // last failure cause, for errors.Is classification
}

// Text returns the value written to the output column.
func (r Result) Text() string {
	if r.OK {
		return r.Payload
	}
	return r.Message
}

// Success builds a successful Result.
func Success(payload string, items []Item, attempts int) Result {
	return Result{OK: true, Payload: payload, Items: items, Attempts: attempts}
}

// Failure builds a failed Result carrying err's description.
func Failure(message string, attempts int, err error) Result {
	return Result{Message: message, Attempts: attempts, Err: err}
}

// EmptyInput is the Result for a row with no conversation payload.
func EmptyInput() Result {
	return Failure(fmt.Sprintf("ERROR: %v", ErrEmptyConversation), 0, ErrEmptyConversation)
}
