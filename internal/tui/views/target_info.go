package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/showroom/internal/rpc"
	"github.com/matheus3301/showroom/internal/tui/ui"
)

// TargetInfo displays the permissions and lock state of the open target.
type TargetInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewTargetInfo creates a new details view.
func NewTargetInfo(theme *ui.Theme) *TargetInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &TargetInfo{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (ti *TargetInfo) Name() string { return "details" }

// Hints implements ui.Component.
func (ti *TargetInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Esc", Description: "Back"}}
}

// Update renders details for view.
func (ti *TargetInfo) Update(view *rpc.ThreadView) {
	ti.Clear()
	if view == nil {
		return
	}
	fg := ui.Tag(ti.theme.FgColor)
	ct := ui.Tag(ti.theme.CounterColor)

	kind := "Direct message"
	title, readRole, readPlan, lock := "-", "anyone", "any", "open"
	if p := view.Perms; p != nil {
		kind = "Channel"
		if p.Title != "" {
			title = p.Title
		}
		if p.ReadRole != "" {
			readRole = p.ReadRole
		}
		if p.ReadPlan != "" {
			readPlan = p.ReadPlan
		}
		switch {
		case p.Locked:
			lock = "locked"
		case p.LockedUntil != nil:
			lock = "locked until " + p.LockedUntil.Local().Format("15:04")
		}
	}
	send := "yes"
	if !view.CanSend {
		send = "no (" + view.Reason + ")"
	}

	_, _ = fmt.Fprintf(ti,
		"\n [%s::b]Target:[-:-:-]    [%s]%s[-]\n"+
			" [%s::b]Type:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Title:[-:-:-]     [%s]%s[-]\n"+
			" [%s::b]Read role:[-:-:-] [%s]%s[-]\n"+
			" [%s::b]Read plan:[-:-:-] [%s]%s[-]\n"+
			" [%s::b]Lock:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Can send:[-:-:-]  [%s]%s[-]\n"+
			" [%s::b]Messages:[-:-:-]  [%s]%d[-]",
		fg, ct, tview.Escape(view.Target.String()),
		fg, ct, kind,
		fg, ct, tview.Escape(title),
		fg, ct, readRole,
		fg, ct, readPlan,
		fg, ct, lock,
		fg, ct, tview.Escape(send),
		fg, ct, len(view.Messages),
	)
	ti.SetTitle(fmt.Sprintf(" %s details ", tview.Escape(view.Target.String())))
}
