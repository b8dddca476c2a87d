// Package llmcall provides LLM call recording for traceability.
// Every model attempt can be recorded with its row, attempt number, response, and metrics.
package llmcall

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/threadtag/internal/providers"
)

// Call represents a recorded LLM API call.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	Row     int `json:"row"`
	Attempt int `json:"attempt"`

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// Response
	Response string `json:"response"`

	// Status
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	Row     int
	Attempt int

	// Request parameters (pointer to distinguish "not set" from "set to 0")
	Temperature *float64
}

// FromChatResult creates a Call from a ChatResult.
// callErr is used when the client returned an error without a populated result.
func FromChatResult(result *providers.ChatResult, callErr error, opts RecordOptions) *Call {
	call := &Call{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		Row:         opts.Row,
		Attempt:     opts.Attempt,
		Temperature: opts.Temperature,
	}

	if result != nil {
		call.LatencyMs = int(result.ExecutionTime.Milliseconds())
		call.Provider = result.Provider
		call.Model = result.ModelUsed
		call.InputTokens = result.PromptTokens
		call.OutputTokens = result.CompletionTokens
		call.Response = result.Content
		call.Success = result.Success
		if !result.Success {
			call.Error = result.ErrorMessage
		}
	}
	if callErr != nil {
		call.Success = false
		if call.Error == "" {
			call.Error = callErr.Error()
		}
	}

	return call
}

type rowKey struct{}

// WithRow tags ctx with the input row index being annotated.
func WithRow(ctx context.Context, row int) context.Context {
	return context.WithValue(ctx, rowKey{}, row)
}

// RowFrom returns the row index set by WithRow, or -1.
func RowFrom(ctx context.Context) int {
	if row, ok := ctx.Value(rowKey{}).(int); ok {
		return row
	}
	return -1
}
