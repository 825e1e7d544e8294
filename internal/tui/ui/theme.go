package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color

	SelfColor    tcell.Color
	PendingColor tcell.Color
	FailedColor  tcell.Color
	LockedColor  tcell.Color

	LiveColor         tcell.Color
	ReconnectingColor tcell.Color
	DisconnectedColor tcell.Color

	OnlineColor  tcell.Color
	IdleColor    tcell.Color
	DNDColor     tcell.Color
	OfflineColor tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		BorderFocusColor:  tcell.ColorLightSkyBlue,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorOrange,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorAqua,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		NumericKeyColor:   tcell.ColorFuchsia,
		TitleColor:        tcell.ColorFuchsia,
		CounterColor:      tcell.ColorPapayaWhip,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorDodgerBlue,

		SelfColor:    tcell.ColorLightSkyBlue,
		PendingColor: tcell.ColorGray,
		FailedColor:  tcell.ColorOrangeRed,
		LockedColor:  tcell.ColorOrange,

		LiveColor:         tcell.ColorLimeGreen,
		ReconnectingColor: tcell.ColorOrange,
		DisconnectedColor: tcell.ColorOrangeRed,

		OnlineColor:  tcell.ColorLimeGreen,
		IdleColor:    tcell.ColorGold,
		DNDColor:     tcell.ColorOrangeRed,
		OfflineColor: tcell.ColorGray,
	}
}

// StateColor picks the color for a live-connection state name.
func (t *Theme) StateColor(state string) tcell.Color {
	switch state {
	case "LIVE":
		return t.LiveColor
	case "CONNECTING", "RECONNECTING":
		return t.ReconnectingColor
	case "DISCONNECTED":
		return t.DisconnectedColor
	}
	return t.FgColor
}

// PresenceColor picks the color for a derived presence status.
func (t *Theme) PresenceColor(status string) tcell.Color {
	switch status {
	case "online":
		return t.OnlineColor
	case "idle":
		return t.IdleColor
	case "dnd":
		return t.DNDColor
	}
	return t.OfflineColor
}

// Tag returns c as a tview color tag value, preferring the W3C name.
func Tag(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
