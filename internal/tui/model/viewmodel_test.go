package model

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/matheus3301/showroom/internal/attach"
	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/notify"
	"github.com/matheus3301/showroom/internal/presence"
	"github.com/matheus3301/showroom/internal/rpc"
	"github.com/matheus3301/showroom/internal/status"
)

type fakeBackend struct {
	view     *rpc.ThreadView
	send     *rpc.SendResponse
	retried  string
	toggled  string
	channels []chat.ChannelPerms
	items    []attach.Item
}

func (f *fakeBackend) GetStatus(context.Context) (*rpc.StatusResponse, error) {
	return &rpc.StatusResponse{Profile: "test", State: "LIVE", Identity: chat.Identity{Email: "me@x.io", Plan: "free"}}, nil
}

func (f *fakeBackend) ListChannels(context.Context) (*rpc.ChannelsResponse, error) {
	return &rpc.ChannelsResponse{Channels: f.channels}, nil
}

func (f *fakeBackend) SwitchTarget(context.Context, string) (*rpc.ThreadView, error) {
	return f.view, nil
}

func (f *fakeBackend) SendText(context.Context, string, bool) (*rpc.SendResponse, error) {
	return f.send, nil
}

func (f *fakeBackend) Retry(_ context.Context, tempID string) (*rpc.MessageResponse, error) {
	f.retried = tempID
	return &rpc.MessageResponse{}, nil
}

func (f *fakeBackend) Search(context.Context, *rpc.SearchRequest) (*rpc.SearchResponse, error) {
	return &rpc.SearchResponse{}, nil
}

func (f *fakeBackend) SetFocus(context.Context, bool) error { return nil }

func (f *fakeBackend) AddAttachments(_ context.Context, files []rpc.AttachmentFile) (*rpc.AttachmentsResponse, error) {
	return &rpc.AttachmentsResponse{
		Results: []rpc.AttachmentResult{{Name: files[0].Name, Error: "file too large", Shake: true}},
		Items:   f.items,
	}, nil
}

func (f *fakeBackend) ToggleAttachment(_ context.Context, key string) (*rpc.AttachmentsResponse, error) {
	f.toggled = key
	return &rpc.AttachmentsResponse{Items: f.items}, nil
}

func (f *fakeBackend) ListAttachments(context.Context) (*rpc.AttachmentsResponse, error) {
	return &rpc.AttachmentsResponse{Items: f.items}, nil
}

func (f *fakeBackend) RetryAttachment(context.Context, string) (*rpc.AttachmentsResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeBackend) ListRoster(context.Context) (*rpc.RosterResponse, error) {
	return &rpc.RosterResponse{Self: presence.Online, Entries: []presence.Entry{{Email: "ana@x.io", Name: "Ana", Status: presence.Idle}}}, nil
}

func (f *fakeBackend) SetStatus(context.Context, string) error { return nil }

func event(t *testing.T, kind string, payload any) *rpc.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return &rpc.Event{Kind: kind, Payload: data}
}

func openGeneral(t *testing.T, f *fakeBackend) *ViewModel {
	t.Helper()
	if f.view == nil {
		f.view = &rpc.ThreadView{Target: chat.Channel("general"), Loaded: true, CanSend: true}
	}
	vm := NewViewModel(f)
	if err := vm.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := vm.Open(context.Background(), "#general"); err != nil {
		t.Fatal(err)
	}
	return vm
}

func TestApplyMessageLifecycle(t *testing.T) {
	f := &fakeBackend{}
	vm := openGeneral(t, f)
	general := chat.Channel("general")

	pending := chat.Message{TempID: "t1", Text: "hi", UserEmail: "me@x.io", Status: chat.StatusPending}
	if !vm.Apply(event(t, bus.MessageUpserted, chat.MessageChange{Target: general, Message: pending, Kind: chat.Appended, TempID: "t1"})) {
		t.Fatal("append not applied")
	}
	confirmed := pending
	confirmed.ID, confirmed.Status = "m1", chat.StatusSent
	vm.Apply(event(t, bus.MessageUpserted, chat.MessageChange{Target: general, Message: confirmed, Kind: chat.Confirmed, TempID: "t1"}))

	msgs := vm.Thread().Messages
	if len(msgs) != 1 || msgs[0].ID != "m1" || msgs[0].Status != chat.StatusSent {
		t.Fatalf("messages = %+v", msgs)
	}

	other := chat.Message{ID: "m2", Text: "yo", UserEmail: "ana@x.io", Status: chat.StatusSent}
	vm.Apply(event(t, bus.MessageUpserted, chat.MessageChange{Target: general, Message: other, Kind: chat.Appended}))
	vm.Apply(event(t, bus.MessageUpserted, chat.MessageChange{Target: general, Message: other, Kind: chat.Merged}))
	if n := len(vm.Thread().Messages); n != 2 {
		t.Fatalf("id merge duplicated: %d messages", n)
	}

	if !vm.Apply(event(t, bus.MessageRemoved, chat.MessageRemoval{Target: general, IDs: []string{"m1"}})) {
		t.Fatal("remove not applied")
	}
	if msgs := vm.Thread().Messages; len(msgs) != 1 || msgs[0].ID != "m2" {
		t.Fatalf("after remove = %+v", msgs)
	}

	if vm.Apply(event(t, bus.MessageUpserted, chat.MessageChange{Target: chat.Channel("random"), Message: other})) {
		t.Fatal("event for another target changed the open thread")
	}
}

func TestApplyIgnoresGarbage(t *testing.T) {
	vm := openGeneral(t, &fakeBackend{})
	if vm.Apply(&rpc.Event{Kind: bus.MessageUpserted, Payload: json.RawMessage(`"nope"`)}) {
		t.Fatal("garbage payload applied")
	}
	if vm.Apply(&rpc.Event{Kind: "unknown.kind"}) {
		t.Fatal("unknown kind applied")
	}
}

func TestApplyStatusAndPerms(t *testing.T) {
	f := &fakeBackend{channels: []chat.ChannelPerms{{Slug: "general"}, {Slug: "vip", ReadPlan: "pro"}}}
	vm := openGeneral(t, f)

	vm.Apply(event(t, bus.StreamStatusChanged, status.StatusChange{From: status.Reconnecting, To: status.Disconnected, Reason: "eof"}))
	if got := vm.Status().State; got != "DISCONNECTED" {
		t.Fatalf("state = %q", got)
	}
	if vm.Flash.Get() == "" {
		t.Fatal("disconnect was not flashed")
	}

	vm.Apply(event(t, bus.TargetPerms, []chat.ChannelPerms{{Slug: "general", Locked: true}}))
	if p := vm.Thread().Perms; p == nil || !p.Locked {
		t.Fatalf("thread perms = %+v", p)
	}

	rows := vm.Targets()
	if len(rows) != 2 || !rows[0].Locked || rows[1].Readable {
		t.Fatalf("targets = %+v", rows)
	}
}

func TestNotificationsCountUnreadAndAddDMs(t *testing.T) {
	vm := openGeneral(t, &fakeBackend{})
	dm := chat.DM("ana@x.io")
	vm.Apply(event(t, bus.NotifyMessage, notify.Notification{Target: dm, Title: "Ana", Body: "hey"}))
	vm.Apply(event(t, bus.NotifyMessage, notify.Notification{Target: dm, Title: "Ana", Body: "there?"}))

	rows := vm.Targets()
	if len(rows) != 1 || rows[0].Target != dm || rows[0].Unread != 2 {
		t.Fatalf("targets = %+v", rows)
	}
	if rows[0].Title != "Ana" || rows[0].Presence != presence.Idle {
		t.Fatalf("dm row did not pick up roster data: %+v", rows[0])
	}
}

func TestSendCommandResultsFlash(t *testing.T) {
	f := &fakeBackend{send: &rpc.SendResponse{Command: &rpc.CommandResult{Command: "lock", Error: "channel is a dm"}}}
	vm := openGeneral(t, f)
	if _, err := vm.Send(context.Background(), "/lock", false); err != nil {
		t.Fatal(err)
	}
	if msg := vm.Flash.GetMessage(); msg == nil || msg.Text != "/lock: channel is a dm" {
		t.Fatalf("flash = %+v", msg)
	}

	f.send = &rpc.SendResponse{Command: &rpc.CommandResult{Command: "purge", NeedsConfirm: true, Message: "purge 20?"}}
	vm.Flash.Clear()
	resp, _ := vm.Send(context.Background(), "/purge", false)
	if !resp.Command.NeedsConfirm || vm.Flash.Get() != "" {
		t.Fatal("confirmation prompt should be left to the caller")
	}
}

func TestRetryLastPicksNewestFailure(t *testing.T) {
	f := &fakeBackend{view: &rpc.ThreadView{Target: chat.Channel("general"), Messages: []chat.Message{
		{TempID: "a", Status: chat.StatusFailed},
		{TempID: "b", Status: chat.StatusFailed},
		{ID: "m", Status: chat.StatusSent},
	}}}
	vm := openGeneral(t, f)
	if err := vm.RetryLast(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.retried != "b" {
		t.Fatalf("retried %q, want b", f.retried)
	}
}

func TestAttachmentTray(t *testing.T) {
	f := &fakeBackend{items: []attach.Item{{Key: "k1", Name: "a.png", State: attach.StatePending}}}
	vm := openGeneral(t, f)
	if err := vm.Attach(context.Background(), []rpc.AttachmentFile{{Name: "huge.png"}}); err != nil {
		t.Fatal(err)
	}
	if vm.Flash.Get() == "" {
		t.Fatal("rejected file not flashed")
	}
	if err := vm.ToggleAttachment(context.Background(), 1); err != nil || f.toggled != "k1" {
		t.Fatalf("toggle: %v, key %q", err, f.toggled)
	}
	if err := vm.ToggleAttachment(context.Background(), 2); err == nil {
		t.Fatal("expected out of range error")
	}
}
