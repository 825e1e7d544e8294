package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

const maxCrumb = 24

// Crumbs shows the page stack as a trail of labels, the active one last.
type Crumbs struct {
	*tview.TextView
	theme *Theme
	// Label maps a page name to its crumb text, e.g. "thread" to "#general".
	Label func(page string) string
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &Crumbs{TextView: tv, theme: theme}
}

// Update renders the trail for stack.
func (c *Crumbs) Update(stack []string) {
	c.Clear()

	var b strings.Builder
	for i, page := range stack {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(stack)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "[%s:%s:%s] <%s> [-:-:-]", Tag(fg), Tag(bg), attr, c.label(page))
	}
	_, _ = fmt.Fprint(c, b.String())
}

func (c *Crumbs) label(page string) string {
	name := page
	if c.Label != nil {
		if l := c.Label(page); l != "" {
			name = l
		}
	}
	if r := []rune(name); len(r) > maxCrumb {
		name = string(r[:maxCrumb-1]) + "…"
	}
	return tview.Escape(name)
}
