package annotate

import "errors"

// Per-row failure causes. All but ErrEmptyConversation are retried.
var (
	// ErrEmptyConversation is returned when a row has no conversation payload.
	ErrEmptyConversation = errors.New("empty conversation cell")

	// ErrModelCall covers transport failures, timeouts, and empty model responses.
	ErrModelCall = errors.New("model call failed")

	// ErrNoJSONArray means the response contained no parseable JSON array.
	ErrNoJSONArray = errors.New("could not parse JSON array from model response")

	// ErrSchema means the parsed array does not have the annotation item shape.
	ErrSchema = errors.New("annotation schema violation")

	// ErrIDMismatch means the annotated ids differ from the conversation's ids.
	ErrIDMismatch = errors.New("annotation ids do not match conversation")
)
