package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/showroom/internal/tui/ui"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "help" }

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

type helpSection struct {
	title string
	rows  [][2]string
}

var helpSections = []helpSection{
	{"Global Keys", [][2]string{
		{":", "Command mode"},
		{"/", "Filter targets"},
		{"?", "Help"},
		{"Esc", "Cancel / Go back"},
		{"q", "Quit / Back"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Targets", [][2]string{
		{"Enter", "Open target"},
		{"1-9", "Jump to Nth target"},
		{"0", "Clear filter"},
		{"p", "Roster"},
	}},
	{"Thread", [][2]string{
		{"i", "Focus composer"},
		{"r", "Retry last failed message"},
		{"a", "Attachment tray"},
		{"d", "Target details"},
		{"Enter", "Send (in composer)"},
	}},
	{"Composer Commands", [][2]string{
		{"/purge [n]", "Delete the last n messages (admin, asks first)"},
		{"/lock [minutes]", "Lock the channel (admin)"},
		{"/unlock", "Unlock the channel (admin)"},
		{"/mute <email> [minutes]", "Mute a user (admin)"},
	}},
	{"Commands (: mode)", [][2]string{
		{":open <target>", "Open #channel or email"},
		{":dm <email>", "Open a direct message"},
		{":search <query>", "Search cached messages"},
		{":attach <path...>", "Add files to the tray"},
		{":toggle <n>", "Include or exclude tray item n"},
		{":retry <n>", "Retry tray item n"},
		{":status <status>", "online, idle, dnd, invisible, offline"},
		{":roster", "Show who is around"},
		{":info", "Target details"},
		{":help / :h", "Show this help"},
		{":quit / :q", "Quit application"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)

	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-24s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
