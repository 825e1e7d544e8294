package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/showroom/internal/tui/ui"
)

// StatusBar displays the profile, connection state and active target.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	state   string
	target  string
	flash   string
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(state string) {
	sb.state = state
	sb.render()
}

// SetTarget updates the active target display.
func (sb *StatusBar) SetTarget(target string) {
	sb.target = target
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	state := sb.state
	if state == "" {
		state = "IDLE"
	}
	target := sb.target
	if target == "" {
		target = "-"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-] | %s | %s",
		tview.Escape(sb.profile),
		ui.Tag(sb.theme.StateColor(state)), state,
		tview.Escape(target),
		sb.now().Format("15:04"))
	if sb.flash != "" {
		line += fmt.Sprintf(" | [%s]%s[-]", ui.Tag(sb.theme.FlashWarnColor), tview.Escape(sb.flash))
	}

	_, _ = fmt.Fprint(sb, line)
}
