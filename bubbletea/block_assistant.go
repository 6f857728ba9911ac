package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/eka"
	"github.com/fwojciec/eka/goldmark"
)

var _ MessageBlock = (*AnswerBlock)(nil)

// AnswerBlock renders an assistant answer as markdown. Paragraphs that can
// no longer change are rendered once per width and cached; only the tail
// is re-rendered as the answer grows.
type AnswerBlock struct {
	raw   string
	theme eka.Theme

	// stable is the prefix of raw ending at the last paragraph break
	// outside a code fence.
	stable        string
	stableByWidth map[int]string
}

// NewAnswerBlock creates an empty answer block.
func NewAnswerBlock(theme eka.Theme) *AnswerBlock {
	return &AnswerBlock{
		theme:         theme,
		stableByWidth: make(map[int]string),
	}
}

// SetContent replaces the answer text. Streamed answers only grow, so a
// content that still starts with the cached prefix keeps the cache.
func (b *AnswerBlock) SetContent(content string) {
	if content == b.raw {
		return
	}
	if !strings.HasPrefix(content, b.stable) {
		b.stable = ""
		clear(b.stableByWidth)
	}
	b.raw = content
	b.promote()
}

// Content returns the raw answer text.
func (b *AnswerBlock) Content() string { return b.raw }

func (b *AnswerBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *AnswerBlock) View(width int) string {
	head := b.renderStable(width)
	tail := strings.TrimPrefix(b.raw, b.stable)
	tail = strings.TrimPrefix(tail, "\n\n")
	if hasUnclosedFence(tail) {
		tail += "\n```"
	}
	if strings.TrimSpace(tail) == "" {
		return head
	}
	rendered := goldmark.Render(tail, width, b.theme)
	if strings.TrimSpace(rendered) == "" {
		return head
	}
	if head == "" {
		return rendered
	}
	return strings.TrimRight(head, "\n") + "\n\n" + strings.TrimLeft(rendered, "\n")
}

// promote moves the stable prefix forward to the last "\n\n" whose prefix
// has every code fence closed.
func (b *AnswerBlock) promote() {
	for end := len(b.raw); ; {
		idx := strings.LastIndex(b.raw[:end], "\n\n")
		if idx <= 0 {
			return
		}
		candidate := b.raw[:idx]
		if !hasUnclosedFence(candidate) {
			if candidate != b.stable {
				b.stable = candidate
				clear(b.stableByWidth)
			}
			return
		}
		end = idx
	}
}

func (b *AnswerBlock) renderStable(width int) string {
	if width <= 0 || b.stable == "" {
		return ""
	}
	if cached, ok := b.stableByWidth[width]; ok {
		return cached
	}
	rendered := goldmark.Render(b.stable, width, b.theme)
	b.stableByWidth[width] = rendered
	return rendered
}

// hasUnclosedFence reports an odd number of "```" in s. Triple backticks
// inside inline code are miscounted.
func hasUnclosedFence(s string) bool {
	return strings.Count(s, "```")%2 == 1
}
