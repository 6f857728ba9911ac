package bubbletea

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/eka"
)

var _ MessageBlock = (*SourcesBlock)(nil)

// SourcesBlock lists the citations of an answer. Collapsed, it shows one
// line per source; expanded, it adds the location and snippet.
type SourcesBlock struct {
	citations []eka.Citation
	collapsed bool
	styles    Styles
}

// NewSourcesBlock creates a collapsed SourcesBlock.
func NewSourcesBlock(citations []eka.Citation, styles Styles) *SourcesBlock {
	return &SourcesBlock{citations: citations, collapsed: true, styles: styles}
}

// Collapsed reports whether details are hidden.
func (b *SourcesBlock) Collapsed() bool { return b.collapsed }

func (b *SourcesBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok {
		b.collapsed = !b.collapsed
	}
	return b, nil
}

func (b *SourcesBlock) View(width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	indicator := "▶"
	if !b.collapsed {
		indicator = "▼"
	}

	var sb strings.Builder
	sb.WriteString(b.styles.Citation.Render(fmt.Sprintf("%s Sources (%d)", indicator, len(b.citations))))
	for _, c := range b.citations {
		sb.WriteString("\n")
		line := b.styles.Citation.Render(fmt.Sprintf("[%d]", c.Ref)) + " " + c.Label()
		if meta := citationMeta(c); meta != "" {
			line += " " + b.styles.Muted.Render(meta)
		}
		sb.WriteString(wrap.Render(line))
		if b.collapsed {
			continue
		}
		if len(c.HeadingPath) > 0 {
			sb.WriteString("\n")
			sb.WriteString(b.styles.Muted.Render(wrap.Render("    " + strings.Join(c.HeadingPath, " › "))))
		}
		if c.Snippet != "" {
			snippet := lipgloss.NewStyle().Width(max(width-4, 1)).Render(c.Snippet)
			for _, l := range strings.Split(snippet, "\n") {
				sb.WriteString("\n    " + b.styles.Thinking.Render(l))
			}
		}
	}
	return sb.String()
}

func citationMeta(c eka.Citation) string {
	var parts []string
	if c.Page != nil {
		parts = append(parts, fmt.Sprintf("p. %d", *c.Page))
	}
	if c.Score != nil {
		parts = append(parts, fmt.Sprintf("%.2f", *c.Score))
	}
	return strings.Join(parts, " · ")
}
