package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/chat"
)

func TestDecide(t *testing.T) {
	general := chat.Channel("general")
	system := map[string]struct{}{"announcements": {}}
	fromBo := chat.Message{ID: "m1", Text: "hi", UserEmail: "bo@x.io"}

	tests := []struct {
		name   string
		msg    chat.Message
		target chat.Target
		view   View
		want   bool
	}{
		{"other target", fromBo, chat.Channel("sales"), View{Self: "ana@x.io", Active: general, Focused: true}, true},
		{"open and focused", fromBo, general, View{Self: "ana@x.io", Active: general, Focused: true}, false},
		{"open but unfocused", fromBo, general, View{Self: "ana@x.io", Active: general}, true},
		{"own echo", chat.Message{ID: "m2", UserEmail: "ANA@x.io"}, chat.Channel("sales"), View{Self: "ana@x.io", Active: general}, false},
		{"system channel", fromBo, chat.Channel("announcements"), View{Self: "ana@x.io", Active: general, System: system}, false},
		{"dm", fromBo, chat.DM("bo@x.io"), View{Self: "ana@x.io", Active: general, Focused: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.msg, tt.target, tt.view); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotifierPublishes(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("notify.", 4)
	defer unsub()

	n := New("ana@x.io", []string{"#Announcements"}, b)
	n.SetActive(chat.Channel("general"))

	if n.Message(chat.Channel("announcements"), chat.Message{UserEmail: "bo@x.io", Text: "x"}) {
		t.Error("system channel notified")
	}
	if !n.Message(chat.Channel("sales"), chat.Message{UserEmail: "bo@x.io", UserName: "Bo", Text: "new\nstock"}) {
		t.Fatal("expected notification")
	}
	select {
	case evt := <-ch:
		got := evt.Payload.(Notification)
		if got.Title != "Bo in #sales" || got.Body != "new stock" {
			t.Errorf("notification = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification event")
	}

	n.Toast(LevelError, "send failed: %s", "boom")
	select {
	case evt := <-ch:
		if evt.Kind != bus.NotifyToast || evt.Payload.(Toast).Text != "send failed: boom" {
			t.Errorf("toast = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no toast event")
	}
}

func TestPreview(t *testing.T) {
	if got := Preview(chat.Message{Text: chat.Placeholder, Attachments: []string{"a", "b"}}, 10); got != "[2 attachments]" {
		t.Errorf("attachments preview = %q", got)
	}
	long := strings.Repeat("\u00e9", 20)
	if got := Preview(chat.Message{Text: long}, 10); len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncated preview = %q", got)
	}
}
