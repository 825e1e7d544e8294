package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// ProfileData is what the header shows about the daemon.
type ProfileData struct {
	Profile  string
	Email    string
	Role     string
	State    string
	Target   string
	Targets  int64
	Messages int64
	Uptime   time.Duration
}

// ProfileInfo displays daemon metadata in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates a new profile info panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the profile info.
func (pi *ProfileInfo) Update(data *ProfileData) {
	pi.Clear()
	if data == nil {
		return
	}

	fg := Tag(pi.theme.FgColor)
	ct := Tag(pi.theme.CounterColor)
	st := Tag(pi.theme.StateColor(data.State))

	who := data.Email
	if data.Role == "admin" {
		who += " (admin)"
	}
	target := data.Target
	if target == "" {
		target = "-"
	}

	_, _ = fmt.Fprintf(pi,
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Stream:[-:-:-]  [%s::b]%s[-:-:-]\n"+
			"[%s::b]Target:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Cached:[-:-:-]  [%s]%d msgs / %d targets[-]\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fg, ct, data.Profile,
		fg, ct, tview.Escape(who),
		fg, st, data.State,
		fg, ct, tview.Escape(target),
		fg, ct, data.Messages, data.Targets,
		fg, ct, formatDuration(data.Uptime),
	)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
