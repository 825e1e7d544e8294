package ui

import (
	"reflect"
	"testing"
	"time"

	"github.com/rivo/tview"
)

func newTestPages(names ...string) *Pages {
	p := NewPages()
	for _, n := range names {
		p.AddPage(n, tview.NewBox(), true, false)
	}
	return p
}

func TestPagesPushPop(t *testing.T) {
	p := newTestPages("targets", "thread", "search")
	var seen [][]string
	p.SetOnChange(func(stack []string) { seen = append(seen, stack) })

	p.Reset("targets")
	p.Push("thread")
	p.Push("search")
	if got := p.Current(); got != "search" {
		t.Fatalf("Current() = %q", got)
	}
	if got := p.Pop(); got != "search" {
		t.Fatalf("Pop() = %q", got)
	}
	if got := p.Current(); got != "thread" {
		t.Fatalf("after pop Current() = %q", got)
	}
	if len(seen) != 4 {
		t.Fatalf("onChange fired %d times, want 4", len(seen))
	}
}

func TestPagesPushExistingUnwinds(t *testing.T) {
	p := newTestPages("targets", "thread", "search")
	p.Reset("targets")
	p.Push("thread")
	p.Push("search")

	p.Push("thread")
	if got, want := p.Stack(), []string{"targets", "thread"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Stack() = %v, want %v", got, want)
	}
	p.Push("thread")
	if got := len(p.Stack()); got != 2 {
		t.Fatalf("re-pushing the top grew the stack to %d", got)
	}
}

func TestConfirmed(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y", true},
		{"yes", true},
		{"Y", true},
		{"", false},
		{"n", false},
		{"yep", false},
	}
	for _, tt := range tests {
		if got := Confirmed(tt.in); got != tt.want {
			t.Errorf("Confirmed(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFlashToastLevels(t *testing.T) {
	f := NewFlashModel()
	f.Toast("error", "send failed")
	msg := f.GetMessage()
	if msg == nil || msg.Level != FlashErr || msg.Text != "send failed" {
		t.Fatalf("GetMessage() = %+v", msg)
	}
	f.Toast("info", "purged 3")
	if msg := f.GetMessage(); msg.Level != FlashInfo {
		t.Fatalf("level = %v, want info", msg.Level)
	}
	f.Clear()
	if f.Get() != "" {
		t.Fatal("Clear left a message")
	}
}

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.Activate(PromptCommand)
	p.remember("open #general")
	p.remember("open #general")
	p.remember("roster")
	if got := p.History(); !reflect.DeepEqual(got, []string{"open #general", "roster"}) {
		t.Fatalf("History() = %v", got)
	}

	p.Activate(PromptCommand)
	p.browse(-1)
	if got := p.GetText(); got != "roster" {
		t.Fatalf("first Up = %q", got)
	}
	p.browse(-1)
	p.browse(-1)
	if got := p.GetText(); got != "open #general" {
		t.Fatalf("Up past the start = %q", got)
	}
	p.browse(1)
	p.browse(1)
	if got := p.GetText(); got != "" {
		t.Fatalf("Down to the end = %q", got)
	}
}

func TestPromptComplete(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.SetCommands([]string{"open", "roster", "retry"})
	p.Activate(PromptCommand)
	if got := p.complete("r"); !reflect.DeepEqual(got, []string{"roster", "retry"}) {
		t.Fatalf("complete(r) = %v", got)
	}
	if got := p.complete("open #x"); got != nil {
		t.Fatalf("completed arguments: %v", got)
	}
	p.Activate(PromptFilter)
	if got := p.complete("r"); got != nil {
		t.Fatalf("completed in filter mode: %v", got)
	}
}

func TestFlashRepeatsCollapse(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	f.Warn("stream reconnecting")
	f.Warn("stream reconnecting")
	if msg := f.GetMessage(); msg == nil || msg.Count != 2 {
		t.Fatalf("GetMessage() = %+v, want count 2", msg)
	}
	f.Info("stream reconnecting")
	if msg := f.GetMessage(); msg.Count != 1 || msg.Level != FlashInfo {
		t.Fatalf("different level kept the count: %+v", msg)
	}

	now = now.Add(6 * time.Second)
	if f.GetMessage() != nil {
		t.Fatal("info flash outlived its ttl")
	}
}
