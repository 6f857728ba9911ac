package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*ThinkingBlock)(nil)

// ThinkingBlock is shown in place of an answer that has not received its
// first token.
type ThinkingBlock struct {
	frame  string
	styles Styles
}

// NewThinkingBlock creates a ThinkingBlock drawn with the given spinner
// frame.
func NewThinkingBlock(frame string, styles Styles) *ThinkingBlock {
	return &ThinkingBlock{frame: frame, styles: styles}
}

func (b *ThinkingBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *ThinkingBlock) View(width int) string {
	return b.styles.Thinking.Render(lipgloss.NewStyle().Width(width).Render(b.frame + " Thinking"))
}
