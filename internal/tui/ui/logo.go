package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

var logoLines = []string{
	"╔═╗╦ ╦╔═╗╦ ╦",
	"╚═╗╠═╣║ ║║║║",
	"╚═╝╩ ╩╚═╝╚╩╝",
}

// Logo is the header mark. It takes the color of the live connection state
// so a dropped stream is visible from any page.
type Logo struct {
	*tview.TextView
	theme *Theme
	state string
}

// NewLogo creates a new logo component.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignRight)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 0, 1)

	l := &Logo{TextView: tv, theme: theme}
	l.render()
	return l
}

// SetState recolors the logo for a connection state name.
func (l *Logo) SetState(state string) {
	if state == l.state {
		return
	}
	l.state = state
	l.render()
}

func (l *Logo) render() {
	l.Clear()
	color := l.theme.TitleColor
	if l.state != "" {
		color = l.theme.StateColor(l.state)
	}
	c := Tag(color)

	var b strings.Builder
	for _, line := range logoLines {
		fmt.Fprintf(&b, "[%s::b]%s[-:-:-]\n", c, line)
	}
	label := "showroom"
	if l.state != "" {
		label = strings.ToLower(l.state)
	}
	fmt.Fprintf(&b, "[%s]%s[-:-:-]", Tag(l.theme.FgColor), label)
	_, _ = fmt.Fprint(l, b.String())
}
