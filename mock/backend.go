// Package mock provides test doubles for eka interfaces using function fields.
package mock

import (
	"context"
	"io"

	"github.com/fwojciec/eka"
)

// Interface compliance check.
var _ eka.ChatBackend = (*ChatBackend)(nil)

// ChatBackend is a test double for eka.ChatBackend.
// Set StreamChatFn before calling StreamChat.
type ChatBackend struct {
	StreamChatFn func(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error)
}

// StreamChat delegates to StreamChatFn.
func (b *ChatBackend) StreamChat(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
	return b.StreamChatFn(ctx, req)
}
