package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/showroom/internal/attach"
	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/rpc"
	"github.com/matheus3301/showroom/internal/tui/ui"
)

// Thread displays one conversation with its attachment tray and composer.
type Thread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	tray     *tview.TextView
	composer *tview.InputField
	target   chat.Target
	onSend   func(text string)
}

// NewThread creates a new thread view.
func NewThread(theme *ui.Theme) *Thread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	tray := tview.NewTextView().
		SetDynamicColors(true)
	tray.SetBackgroundColor(theme.BgColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(tray, 0, 0, false).
		AddItem(composer, 3, 0, false)

	th := &Thread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		tray:     tray,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && th.onSend != nil {
			text := composer.GetText()
			composer.SetText("")
			th.onSend(text)
		}
	})
	return th
}

// Name implements ui.Component.
func (th *Thread) Name() string {
	if th.target.IsZero() {
		return "thread"
	}
	return th.target.String()
}

// Hints implements ui.Component.
func (th *Thread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "r", Description: "Retry failed"},
		{Key: "a", Description: "Attachments"},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnSend sets the composer callback. Empty input is passed through so
// attachment-only sends work.
func (th *Thread) SetOnSend(fn func(text string)) {
	th.onSend = fn
}

// Composer returns the composer input field (for focus management).
func (th *Thread) Composer() *tview.InputField {
	return th.composer
}

// Messages returns the messages text view (for focus management).
func (th *Thread) Messages() *tview.TextView {
	return th.messages
}

// Update renders a thread view. self is our email.
func (th *Thread) Update(view *rpc.ThreadView, self string) {
	th.messages.Clear()
	if view == nil {
		th.target = chat.Target{}
		th.messages.SetTitle(" no conversation ")
		return
	}
	th.target = view.Target
	title := " " + view.Target.String() + " "
	if view.Perms != nil && view.Perms.Title != "" {
		title = fmt.Sprintf(" %s - %s ", view.Target.String(), tview.Escape(view.Perms.Title))
	}
	if !view.Loaded {
		title += "(loading) "
	}
	th.messages.SetTitle(title)

	if view.CanSend {
		th.composer.SetPlaceholder("")
		th.composer.SetLabel(" > ")
	} else {
		th.composer.SetPlaceholder(view.Reason)
		th.composer.SetLabel(" x ")
	}

	for _, m := range view.Messages {
		_, _ = fmt.Fprint(th.messages, th.line(m, view.URLs, self))
	}
	th.messages.ScrollToEnd()
}

func (th *Thread) line(m chat.Message, urls map[string]string, self string) string {
	sender := m.UserName
	if sender == "" {
		sender = m.UserEmail
	}
	color := th.theme.FgColor
	if m.From(self) {
		sender = "You"
		color = th.theme.SelfColor
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]", ui.Tag(color), tview.Escape(sanitizeForTerminal(sender)), formatTime(m.CreatedAt))
	switch m.Status {
	case chat.StatusPending:
		fmt.Fprintf(&b, " [%s]sending…[-]", ui.Tag(th.theme.PendingColor))
	case chat.StatusFailed:
		fmt.Fprintf(&b, " [%s::b]failed, r to retry[-:-:-]", ui.Tag(th.theme.FailedColor))
	}
	b.WriteByte('\n')
	if m.Text != "" {
		b.WriteString(tview.Escape(sanitizeForTerminal(m.Text)))
		b.WriteByte('\n')
	}
	for _, key := range m.Attachments {
		label := key
		if u := urls[key]; u != "" {
			label = u
		}
		fmt.Fprintf(&b, "[::d]attachment: %s[-:-:-]\n", tview.Escape(label))
	}
	b.WriteByte('\n')
	return b.String()
}

// UpdateTray renders the attachment tray; it collapses when empty.
func (th *Thread) UpdateTray(items []attach.Item) {
	th.tray.Clear()
	if len(items) == 0 {
		th.ResizeItem(th.tray, 0, 0)
		return
	}
	th.ResizeItem(th.tray, 1, 0)
	var parts []string
	for i, it := range items {
		mark := "[ ]"
		if it.Selected {
			mark = "[x]"
		}
		label := fmt.Sprintf("%d%s %s", i+1, tview.Escape(mark), tview.Escape(it.Name))
		switch {
		case it.Error != "":
			label = fmt.Sprintf("[%s]%s (%s)[-]", ui.Tag(th.theme.FailedColor), label, tview.Escape(it.Error))
		case it.State == attach.StateUploading:
			label = fmt.Sprintf("[%s]%s (uploading)[-]", ui.Tag(th.theme.PendingColor), label)
		}
		parts = append(parts, label)
	}
	_, _ = fmt.Fprint(th.tray, " "+strings.Join(parts, "  "))
}
