// Package goldmark renders assistant answers to ANSI-styled terminal output
// using goldmark for parsing and lipgloss for styling.
//
// Besides CommonMark it recognizes the answer conventions of the backend:
// numbered source references such as [1] and the [Error] label that precedes
// server-reported errors.
package goldmark

import "github.com/fwojciec/eka"

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width. Code blocks are
// rendered at full width without reflow.
func Render(source string, width int, theme eka.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r := newRenderer(theme)
	return r.render([]byte(source), width)
}
