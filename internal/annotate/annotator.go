package annotate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/threadtag/internal/llmcall"
	"github.com/jackzampolin/threadtag/internal/providers"
	"github.com/jackzampolin/threadtag/internal/thread"
)

// Default generation settings.
const (
	DefaultTemperature     = 0.3
	DefaultMaxOutputTokens = 1024
)

// Annotator asks a model for per-message keywords and retries until the
// reply yields a valid annotation array or the policy is exhausted.
// It is safe for concurrent use if its LLMClient is.
type Annotator struct {
	client      providers.LLMClient
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	checkIDs    bool
	timer       retry.Timer
	recorder    *llmcall.Recorder
	logger      *slog.Logger
}

// Option configures an Annotator.
type Option func(*Annotator)

// WithModel overrides the client's default model.
func WithModel(model string) Option {
	return func(a *Annotator) { a.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *Annotator) { a.temperature = t }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) Option {
	return func(a *Annotator) { a.maxTokens = n }
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(a *Annotator) { a.timeout = d }
}

// WithIDCheck rejects annotations whose ids differ from the conversation tree.
func WithIDCheck(enabled bool) Option {
	return func(a *Annotator) { a.checkIDs = enabled }
}

// WithTimer replaces the clock used for backoff waits.
func WithTimer(t retry.Timer) Option {
	return func(a *Annotator) { a.timer = t }
}

// WithRecorder traces every model attempt.
func WithRecorder(r *llmcall.Recorder) Option {
	return func(a *Annotator) { a.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Annotator) { a.logger = l }
}

// New creates an Annotator backed by client.
func New(client providers.LLMClient, opts ...Option) *Annotator {
	a := &Annotator{
		client:      client,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxOutputTokens,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Annotate runs up to policy.MaxAttempts model calls for one conversation.
// It never returns an error: every outcome, including exhaustion and
// cancellation, is described by the Result.
func (a *Annotator) Annotate(ctx context.Context, conversation string, policy RetryPolicy) Result {
	policy = policy.normalize()
	row := llmcall.RowFrom(ctx)

	var ids map[string]struct{}
	if a.checkIDs {
		if th, err := thread.Parse(conversation); err == nil {
			ids = th.IDs()
		} else {
			a.logger.Debug("skipping id check", "row", row, "error", err)
		}
	}

	var (
		attempts int
		payload  string
		items    []Item
		lastErr  error
	)
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(policy.MaxAttempts)),
		// n is the 1-based attempt that just failed.
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return policy.backoff(int(n))
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Warn("annotation attempt failed",
				"row", row,
				"attempt", n+1,
				"max_attempts", policy.MaxAttempts,
				"error", err)
		}),
	}
	if a.timer != nil {
		opts = append(opts, retry.WithTimer(a.timer))
	}

	err := retry.Do(func() error {
		attempts++
		p, it, err := a.attempt(ctx, conversation, row, attempts, ids)
		if err != nil {
			lastErr = err
			return err
		}
		payload, items = p, it
		return nil
	}, opts...)

	if err == nil {
		return Success(payload, items, attempts)
	}
	if ctx.Err() != nil {
		// A wait interrupted by cancellation reports only ctx's error.
		if lastErr != nil && !errors.Is(err, lastErr) {
			err = fmt.Errorf("%w: %w", ctx.Err(), lastErr)
		}
		return Failure(fmt.Sprintf("ERROR cancelled after %d attempts: %v", attempts, err), attempts, err)
	}
	return Failure(fmt.Sprintf("ERROR after %d attempts: %v", policy.MaxAttempts, err), attempts, err)
}

// attempt performs one call/extract/parse/validate cycle.
func (a *Annotator) attempt(ctx context.Context, conversation string, row, n int, ids map[string]struct{}) (string, []Item, error) {
	temp := a.temperature
	req := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: SystemInstructions},
			{Role: providers.RoleUser, Content: conversation},
		},
		Model:       a.model,
		Temperature: &temp,
		MaxTokens:   a.maxTokens,
		Timeout:     a.timeout,
	}

	res, err := a.client.Chat(ctx, req)
	a.recorder.Record(res, err, llmcall.RecordOptions{Row: row, Attempt: n, Temperature: &temp})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrModelCall, err)
	}
	if res == nil || !res.Success {
		return "", nil, fmt.Errorf("%w: unsuccessful response", ErrModelCall)
	}

	arr, ok := Extract(res.Content)
	if !ok {
		return "", nil, ErrNoJSONArray
	}

	var parsed any
	if err := json.Unmarshal([]byte(arr), &parsed); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNoJSONArray, err)
	}

	items, err := Validate(parsed)
	if err != nil {
		return "", nil, err
	}
	if ids != nil {
		if err := checkIDs(items, ids); err != nil {
			return "", nil, err
		}
	}

	a.logger.Debug("annotation accepted", "row", row, "attempt", n, "items", len(items))
	return arr, items, nil
}
