package eka

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme.
type Theme struct {
	UserMsg   int // User message accent
	Assistant int // Assistant name label
	Thinking  int // Thinking indicator
	Citation  int // Source headers and reference markers
	Error     int // Error messages
	Muted     int // Status bar, placeholders, metadata
	CodeBg    int // Code block background
	Accent    int // Headings, links, selected conversation
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		UserMsg:   4,
		Assistant: 2,
		Thinking:  8,
		Citation:  6,
		Error:     1,
		Muted:     8,
		CodeBg:    0,
		Accent:    5,
	}
}
