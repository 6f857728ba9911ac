package eka

import (
	"strings"

	"github.com/rivo/uniseg"
)

// TitleLength is the number of user-perceived characters a derived title
// keeps from the first question.
const TitleLength = 48

// DeriveTitle returns the conversation title after question is asked. Only
// conversations still carrying DefaultTitle are renamed.
func DeriveTitle(current, question string) string {
	if current != DefaultTitle {
		return current
	}
	q := strings.TrimSpace(question)
	if q == "" {
		return current
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(q)
	for n := 0; n < TitleLength && g.Next(); n++ {
		b.WriteString(g.Str())
	}
	return b.String()
}
