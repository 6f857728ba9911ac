package eka

import (
	"context"
	"io"
)

// ChatRequest is a question sent to the backend. Optional fields are left to
// backend defaults when empty.
type ChatRequest struct {
	Question     string
	Mode         string
	Jurisdiction string
	Status       string
}

// ChatBackend opens streaming chat responses. The returned body is a text
// event stream; the caller closes it.
type ChatBackend interface {
	StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// Answer is a complete, non-streamed reply.
type Answer struct {
	Answer    string
	Citations []Citation
}

// Document is an ingested source as listed by the backend.
type Document struct {
	ID     string
	Title  string
	Source string
	Mode   string
	Text   string // empty in listings
	Meta   map[string]any
}

// IngestResult reports the document created by an ingest request.
type IngestResult struct {
	DocID  string
	Chunks int
}

// Health reports backend readiness and the state of its dependencies.
type Health struct {
	OK   bool
	App  string
	Env  string
	Deps map[string]bool
}
