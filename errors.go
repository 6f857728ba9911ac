package eka

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure modes.
var (
	// ErrEmptyQuestion indicates a question that is empty after trimming.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrSessionActive indicates a send while the conversation is streaming.
	ErrSessionActive = errors.New("session already active for conversation")

	// ErrConversationNotFound indicates an unknown conversation ID.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrNoBody indicates a successful response without a body to stream.
	ErrNoBody = errors.New("response has no body")

	// ErrUnsupportedVersion indicates persisted data in an unknown format.
	ErrUnsupportedVersion = errors.New("unsupported format version")
)

// StatusError is returned for non-success HTTP responses.
type StatusError struct {
	Code int
	Body string
}

// Error returns the response body, or the status when the body is empty.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// NotFound reports whether the status is 404.
func (e *StatusError) NotFound() bool {
	return e.Code == http.StatusNotFound
}
