// Package bubbletea provides a Bubble Tea TUI for chatting with the EKA
// backend.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/eka"
	"github.com/fwojciec/eka/chat"
)

// Controller is the part of *chat.Controller the TUI drives.
type Controller interface {
	Conversations() []eka.Conversation
	ActiveID() string
	SetActive(id string) error
	NewConversation() eka.Conversation
	Busy(id string) bool
	Send(ctx context.Context, id, question string, opts ...chat.SendOption) (chat.Result, error)
}

var _ Controller = (*chat.Controller)(nil)

// Run creates and runs the Bubble Tea TUI program. It blocks until the program
// exits. The context is used for graceful shutdown: when cancelled, the
// program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// ConversationMsg carries a conversation snapshot published by a running
// session.
type ConversationMsg struct {
	Conversation eka.Conversation
}

// SessionDoneMsg signals that the session for ConversationID has ended.
// Err is set only when the session could not start.
type SessionDoneMsg struct {
	ConversationID string
	Result         chat.Result
	Err            error
}
