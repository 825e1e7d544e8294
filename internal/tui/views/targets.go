package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/tui/model"
	"github.com/matheus3301/showroom/internal/tui/ui"
)

// TargetList is the channel and DM table.
type TargetList struct {
	*tview.Table
	theme   *ui.Theme
	rows    []model.TargetRow
	visible []model.TargetRow
	filter  string
	stale   bool
}

// NewTargetList creates a new target table.
func NewTargetList(theme *ui.Theme) *TargetList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	return &TargetList{Table: table, theme: theme}
}

// Name implements ui.Component.
func (tl *TargetList) Name() string { return "targets" }

// Hints implements ui.Component.
func (tl *TargetList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update replaces the rows. stale marks a list served from the local cache.
func (tl *TargetList) Update(rows []model.TargetRow, stale bool) {
	tl.rows = rows
	tl.stale = stale
	tl.render()
}

// SetFilter sets the active filter text and re-renders.
func (tl *TargetList) SetFilter(filter string) {
	tl.filter = filter
	tl.render()
}

// ClearFilter clears the active filter.
func (tl *TargetList) ClearFilter() {
	tl.filter = ""
	tl.render()
}

func (tl *TargetList) render() {
	tl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" TARGET", 1},
		{" TITLE", 2},
		{" STATE", 0},
		{" NEW", 0},
	}
	for col, h := range headers {
		tl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(tl.theme.TableHeaderFg).
			SetBackgroundColor(tl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	tl.visible = tl.visible[:0]
	for _, r := range tl.rows {
		if tl.filter != "" && !containsFold(r.Target.String(), tl.filter) && !containsFold(r.Title, tl.filter) {
			continue
		}
		tl.visible = append(tl.visible, r)
	}

	for i, r := range tl.visible {
		row := i + 1
		fg := tl.theme.FgColor
		state := ""
		switch {
		case r.Target.IsDM():
			state = string(r.Presence)
			fg = tl.theme.PresenceColor(state)
		case !r.Readable:
			state = "no access"
			fg = tl.theme.PendingColor
		case r.Locked:
			state = "locked"
		}
		unread := ""
		if r.Unread > 0 {
			unread = fmt.Sprintf("%d", r.Unread)
		}
		tl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(r.Target.String())).SetExpansion(1).SetTextColor(fg))
		tl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(oneLine(r.Title))).SetExpansion(2).SetTextColor(tl.theme.FgColor))
		stateCell := tview.NewTableCell(" " + state).SetTextColor(fg)
		if r.Locked {
			stateCell.SetTextColor(tl.theme.LockedColor)
		}
		tl.SetCell(row, 2, stateCell)
		tl.SetCell(row, 3, tview.NewTableCell(unread).SetAlign(tview.AlignRight).SetTextColor(tl.theme.CounterColor))
	}

	title := fmt.Sprintf(" Targets (%d) ", len(tl.rows))
	if tl.filter != "" {
		title = fmt.Sprintf(" Targets (%d/%d) filter: %s ", len(tl.visible), len(tl.rows), tview.Escape(tl.filter))
	}
	if tl.stale {
		title += "(cached) "
	}
	tl.SetTitle(title)
}

// Selected returns the target under the cursor.
func (tl *TargetList) Selected() (chat.Target, bool) {
	row, _ := tl.GetSelection()
	return tl.ByIndex(row)
}

// ByIndex returns the n-th visible target (1-based).
func (tl *TargetList) ByIndex(n int) (chat.Target, bool) {
	if n < 1 || n > len(tl.visible) {
		return chat.Target{}, false
	}
	return tl.visible[n-1].Target, true
}
