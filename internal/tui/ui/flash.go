package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

var flashTTL = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// FlashMessage is a flash notification. Count > 1 means the same text was
// raised again while still on screen.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Count   int
	Expires time.Time
}

// FlashModel holds the current transient notification. Daemon toasts and
// local errors both land here; repeats collapse into one message.
type FlashModel struct {
	mu      sync.Mutex
	current FlashMessage
	watchCh chan FlashMessage
	now     func() time.Time
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		watchCh: make(chan FlashMessage, 8),
		now:     time.Now,
	}
}

// Info sets an info-level flash message.
func (f *FlashModel) Info(msg string) { f.raise(msg, FlashInfo) }

// Warn sets a warn-level flash message.
func (f *FlashModel) Warn(msg string) { f.raise(msg, FlashWarn) }

// Err sets an error-level flash message.
func (f *FlashModel) Err(err error) { f.raise(err.Error(), FlashErr) }

// Toast shows a daemon toast. level is the notifier's level name.
func (f *FlashModel) Toast(level, msg string) {
	switch level {
	case "error":
		f.raise(msg, FlashErr)
	case "warn":
		f.raise(msg, FlashWarn)
	default:
		f.raise(msg, FlashInfo)
	}
}

func (f *FlashModel) raise(msg string, level FlashLevel) {
	now := f.now()
	f.mu.Lock()
	cur := f.current
	if cur.Text == msg && cur.Level == level && now.Before(cur.Expires) {
		cur.Count++
	} else {
		cur = FlashMessage{Text: msg, Level: level, Count: 1}
	}
	cur.Expires = now.Add(flashTTL[level])
	f.current = cur
	f.mu.Unlock()

	select {
	case f.watchCh <- cur:
	default:
	}
}

// Get returns the current flash message text, or empty if expired.
func (f *FlashModel) Get() string {
	if m := f.GetMessage(); m != nil {
		return m.Text
	}
	return ""
}

// GetMessage returns the current flash message, or nil if expired.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current.Text == "" || !f.now().Before(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch returns a channel that receives flash messages. Sends are dropped
// when nobody keeps up.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// Clear drops the current message.
func (f *FlashModel) Clear() {
	f.mu.Lock()
	f.current = FlashMessage{}
	f.mu.Unlock()
}

// FlashBar is the one-line strip under the pages that shows the flash.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &FlashBar{TextView: tv, theme: theme}
}

// Update renders msg, or blanks the bar when msg is nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}

	color, mark := fb.theme.FlashInfoColor, "i"
	switch msg.Level {
	case FlashWarn:
		color, mark = fb.theme.FlashWarnColor, "!"
	case FlashErr:
		color, mark = fb.theme.FlashErrColor, "x"
	}
	text := tview.Escape(msg.Text)
	if msg.Count > 1 {
		text += fmt.Sprintf(" (x%d)", msg.Count)
	}
	_, _ = fmt.Fprintf(fb, " [%s::b]%s[-:-:-] [%s]%s[-]", Tag(color), mark, Tag(color), text)
}
