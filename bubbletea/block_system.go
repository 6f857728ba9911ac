package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*SystemBlock)(nil)

// SystemBlock renders a system notice such as the welcome text.
type SystemBlock struct {
	text   string
	styles Styles
}

func NewSystemBlock(text string, styles Styles) *SystemBlock {
	return &SystemBlock{text: text, styles: styles}
}

func (b *SystemBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *SystemBlock) View(width int) string {
	return b.styles.Muted.Render(lipgloss.NewStyle().Width(width).Render(b.text))
}
