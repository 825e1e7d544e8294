package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/showroom/internal/presence"
	"github.com/matheus3301/showroom/internal/tui/ui"
)

// Roster lists who is around.
type Roster struct {
	*tview.Table
	theme   *ui.Theme
	entries []presence.Entry
}

// NewRoster creates a new roster table.
func NewRoster(theme *ui.Theme) *Roster {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitleColor(theme.TitleColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	return &Roster{Table: table, theme: theme}
}

// Name implements ui.Component.
func (r *Roster) Name() string { return "roster" }

// Hints implements ui.Component.
func (r *Roster) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Message"},
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders entries; self is our own status.
func (r *Roster) Update(entries []presence.Entry, self presence.Status) {
	r.entries = entries
	r.Clear()
	for col, h := range []string{" USER", " NAME", " ROLE", " STATUS"} {
		r.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(r.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1))
	}
	online := 0
	for i, e := range entries {
		if e.Status != presence.Offline && e.Status != presence.Invisible {
			online++
		}
		color := r.theme.PresenceColor(string(e.Status))
		r.SetCell(i+1, 0, tview.NewTableCell(" "+tview.Escape(e.Email)).SetTextColor(r.theme.FgColor).SetExpansion(1))
		r.SetCell(i+1, 1, tview.NewTableCell(" "+tview.Escape(oneLine(e.Name))).SetTextColor(r.theme.FgColor).SetExpansion(1))
		r.SetCell(i+1, 2, tview.NewTableCell(" "+e.Role).SetTextColor(r.theme.FgColor))
		r.SetCell(i+1, 3, tview.NewTableCell(" "+string(e.Status)).SetTextColor(color))
	}
	r.SetTitle(fmt.Sprintf(" Roster (%d/%d online) you: %s ", online, len(entries), self))
}

// Selected returns the email under the cursor.
func (r *Roster) Selected() string {
	row, _ := r.GetSelection()
	if row < 1 || row > len(r.entries) {
		return ""
	}
	return r.entries[row-1].Email
}
