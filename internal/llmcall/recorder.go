package llmcall

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/jackzampolin/threadtag/internal/providers"
)

// Recorder appends calls as JSON lines to a writer.
// It is safe for concurrent use. A nil *Recorder records nothing.
type Recorder struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger *slog.Logger
}

// NewRecorder creates a new LLM call recorder writing to w.
func NewRecorder(w io.Writer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{enc: json.NewEncoder(w), logger: logger}
}

// Record captures an LLM call result.
func (r *Recorder) Record(result *providers.ChatResult, callErr error, opts RecordOptions) {
	if r == nil {
		return
	}
	r.RecordCall(FromChatResult(result, callErr, opts))
}

// RecordCall captures an already-constructed Call.
// Write failures are logged, never returned: tracing must not fail a row.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || call == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(call); err != nil {
		r.logger.Warn("failed to write LLM call record", "id", call.ID, "error", err)
	}
}
