package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const MockClientName = "mock"

// MockResponse is one scripted reply from a MockClient.
type MockResponse struct {
	Text string
	Err  error
}

// MockClient is an LLMClient for testing.
//
// Replies are taken from Script in order; once the script is exhausted the
// last entry repeats. With an empty script every call returns ResponseText.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	ResponseText string
	Script       []MockResponse
	DefaultModel string

	mu       sync.Mutex
	requests []*ChatRequest
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText: "mock response",
		DefaultModel: "mock-model",
	}
}

// NewScriptedMockClient creates a mock that replies with texts in order.
func NewScriptedMockClient(texts ...string) *MockClient {
	c := NewMockClient()
	for _, t := range texts {
		c.Script = append(c.Script, MockResponse{Text: t})
	}
	return c
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Model returns the default model name.
func (c *MockClient) Model() string {
	return c.DefaultModel
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	c.mu.Lock()
	c.requests = append(c.requests, req)
	count := len(c.requests)
	reply := MockResponse{Text: c.ResponseText}
	if len(c.Script) > 0 {
		idx := count - 1
		if idx >= len(c.Script) {
			idx = len(c.Script) - 1
		}
		reply = c.Script[idx]
	}
	c.mu.Unlock()

	model := req.Model
	if model == "" {
		model = c.DefaultModel
	}
	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: model,
	}

	if c.ShouldFail {
		return result.fail(start, "mock_failure", fmt.Errorf("mock client configured to fail"))
	}

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return result.fail(start, "context_cancelled", ctx.Err())
		}
	}

	if reply.Err != nil {
		return result.fail(start, "mock_failure", reply.Err)
	}

	result.Success = true
	result.Content = reply.Text
	for _, m := range req.Messages {
		result.PromptTokens += len(m.Content) / 4 // Rough estimate
	}
	result.CompletionTokens = len(reply.Text) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests returns a copy of the requests received so far.
func (c *MockClient) Requests() []*ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// Reset clears recorded requests.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = nil
}

// Verify interface
var _ LLMClient = (*MockClient)(nil)
