// Package notify decides when a new message deserves the user's attention
// and delivers notifications and toasts over the bus.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/chat"
)

// View is what the viewer currently has on screen.
type View struct {
	Self    string
	Active  chat.Target
	Focused bool
	// System lists channel slugs that never notify.
	System map[string]struct{}
}

// Decide reports whether a newly appended message should notify. Own echoes
// never notify; neither does the open target while the UI is focused, nor a
// system channel.
func Decide(m chat.Message, t chat.Target, v View) bool {
	if m.From(v.Self) {
		return false
	}
	if v.Focused && t == v.Active {
		return false
	}
	if t.IsChannel() {
		if _, ok := v.System[t.Name]; ok {
			return false
		}
	}
	return true
}

// Notification is the payload of bus.NotifyMessage.
type Notification struct {
	Target  chat.Target  `json:"target"`
	Message chat.Message `json:"message"`
	Title   string       `json:"title"`
	Body    string       `json:"body"`
}

// Level grades a toast.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Toast is the payload of bus.NotifyToast.
type Toast struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Notifier tracks the view state and publishes notifications.
type Notifier struct {
	bus    *bus.Bus
	self   string
	system map[string]struct{}

	mu      sync.Mutex
	active  chat.Target
	focused bool
}

// New creates a Notifier for the viewer self.
func New(self string, systemChannels []string, b *bus.Bus) *Notifier {
	sys := make(map[string]struct{}, len(systemChannels))
	for _, c := range systemChannels {
		sys[strings.ToLower(strings.TrimPrefix(c, "#"))] = struct{}{}
	}
	return &Notifier{bus: b, self: self, system: sys, focused: true}
}

// SetActive records the open target.
func (n *Notifier) SetActive(t chat.Target) {
	n.mu.Lock()
	n.active = t
	n.mu.Unlock()
}

// SetFocused records whether the UI has focus.
func (n *Notifier) SetFocused(focused bool) {
	n.mu.Lock()
	n.focused = focused
	n.mu.Unlock()
}

// View returns the current view state.
func (n *Notifier) View() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return View{Self: n.self, Active: n.active, Focused: n.focused, System: n.system}
}

// Message notifies about m when Decide allows it and reports whether it did.
func (n *Notifier) Message(t chat.Target, m chat.Message) bool {
	if !Decide(m, t, n.View()) {
		return false
	}
	n.bus.Emit(bus.NotifyMessage, Notification{
		Target:  t,
		Message: m,
		Title:   title(t, m),
		Body:    Preview(m, 100),
	})
	return true
}

// Toast publishes a transient message for the user.
func (n *Notifier) Toast(level Level, format string, args ...any) {
	n.bus.Emit(bus.NotifyToast, Toast{Level: level, Text: fmt.Sprintf(format, args...)})
}

func title(t chat.Target, m chat.Message) string {
	who := m.UserName
	if who == "" {
		who = m.UserEmail
	}
	if t.IsDM() {
		return who
	}
	return fmt.Sprintf("%s in #%s", who, t.Name)
}

// Preview renders a one-line summary of m, at most limit runes long.
func Preview(m chat.Message, limit int) string {
	text := strings.Join(strings.Fields(chat.NormalizeText(m.Text)), " ")
	if text == "" && len(m.Attachments) > 0 {
		if len(m.Attachments) == 1 {
			return "[1 attachment]"
		}
		return fmt.Sprintf("[%d attachments]", len(m.Attachments))
	}
	if limit > 0 && utf8.RuneCountInString(text) > limit {
		r := []rune(text)
		text = string(r[:limit-1]) + "…"
	}
	return text
}
