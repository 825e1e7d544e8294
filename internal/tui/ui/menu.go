package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu displays keyboard shortcut hints in a vertical list.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// menuRows is the header height; longer hint lists wrap into columns.
const menuRows = 6

// Update renders menu hints column by column, menuRows per column.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()

	keyColor := Tag(m.theme.MenuKeyColor)
	numColor := Tag(m.theme.NumericKeyColor)

	cells := make([]string, len(hints))
	width := 0
	for i, h := range hints {
		if n := len(h.Key) + len(h.Description) + 3; n > width {
			width = n
		}
		cells[i] = fmt.Sprintf("<%s> %s", h.Key, h.Description)
	}
	for row := 0; row < menuRows && row < len(hints); row++ {
		var line strings.Builder
		for i := row; i < len(hints); i += menuRows {
			kc := keyColor
			if hints[i].Numeric {
				kc = numColor
			}
			pad := strings.Repeat(" ", width-len(cells[i])+2)
			fmt.Fprintf(&line, "[%s::b]<%s>[-:-:-] %s%s", kc, hints[i].Key, hints[i].Description, pad)
		}
		_, _ = fmt.Fprintln(m, strings.TrimRight(line.String(), " "))
	}
}
