package bubbletea

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fwojciec/eka"
	"github.com/mattn/go-runewidth"
)

const (
	sidebarWidth    = 28
	minWidthSidebar = 72
)

// sidebarEntry is the view data for one conversation in the sidebar.
type sidebarEntry struct {
	Title   string
	Created time.Time
	Active  bool
	Busy    bool
}

// renderSidebar lists conversations newest first, two lines each. The list
// scrolls so the active conversation stays visible.
func renderSidebar(entries []sidebarEntry, width, height int, now time.Time, styles Styles) string {
	var b strings.Builder
	b.WriteString(styles.Accent.Render(runewidth.Truncate("Conversations", width, "…")))
	b.WriteString("\n")

	perPage := max((height-1)/2, 1)
	start := 0
	for i, e := range entries {
		if e.Active && i >= perPage {
			start = i - perPage + 1
		}
	}
	end := min(start+perPage, len(entries))

	for _, e := range entries[start:end] {
		prefix := "  "
		if e.Active {
			prefix = "▸ "
		}
		suffix := ""
		if e.Busy {
			suffix = " ●"
		}
		title := e.Title
		if title == "" {
			title = eka.DefaultTitle
		}
		title = runewidth.Truncate(title, width-runewidth.StringWidth(prefix+suffix), "…")
		line := prefix + title + suffix
		if e.Active {
			line = styles.Selected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
		age := runewidth.Truncate(humanize.RelTime(e.Created, now, "ago", "from now"), width-2, "")
		b.WriteString("  " + styles.Muted.Render(age))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
