package slash

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/presence"
	"github.com/matheus3301/showroom/internal/showroom"
)

type fakeMod struct {
	purged  []string
	deleted []string
	err     error
	locks   []bool
	minutes int
	muted   string
	users   []showroom.User
}

func (f *fakeMod) Purge(_ context.Context, _ string, ids []string) ([]string, error) {
	f.purged = ids
	if f.err != nil {
		return nil, f.err
	}
	if f.deleted != nil {
		return f.deleted, nil
	}
	return ids, nil
}

func (f *fakeMod) Lock(_ context.Context, _ string, locked bool, minutes int) error {
	f.locks = append(f.locks, locked)
	f.minutes = minutes
	return f.err
}

func (f *fakeMod) Mute(_ context.Context, email, _ string, minutes int) error {
	f.muted = email
	f.minutes = minutes
	return f.err
}

func (f *fakeMod) SearchUsers(context.Context, string) ([]showroom.User, error) {
	return f.users, nil
}

// fakeView keeps one thread.
type fakeView struct {
	thread *chat.Thread
	locked bool
	until  *time.Time
}

func newView(ids ...string) *fakeView {
	v := &fakeView{thread: chat.NewThread(chat.Channel("general"))}
	var msgs []chat.Message
	for i, id := range ids {
		msgs = append(msgs, chat.Message{ID: id, Text: "msg " + id, UserEmail: "bo@x.io", CreatedAt: time.UnixMilli(int64(i+1) * 1000)})
	}
	v.thread.LoadSnapshot(msgs)
	return v
}

func (v *fakeView) RecentConfirmed(_ chat.Target, n int) []chat.Message {
	return chat.RecentConfirmed(v.thread.Messages, n)
}

func (v *fakeView) RemoveMessages(_ chat.Target, ids []string) []chat.Message {
	return v.thread.Remove(ids)
}

func (v *fakeView) RestoreMessages(_ chat.Target, msgs []chat.Message) {
	v.thread.Restore(msgs)
}

func (v *fakeView) SetLocked(_ chat.Target, locked bool, until *time.Time) {
	v.locked, v.until = locked, until
}

func (v *fakeView) ids() []string {
	var out []string
	for _, m := range v.thread.Messages {
		out = append(out, m.ID)
	}
	return out
}

var (
	admin  = chat.Identity{Email: "ana@x.io", Name: "Ana", Role: "admin"}
	member = chat.Identity{Email: "bo@x.io", Name: "Bo", Role: "member"}
)

func req(input string) Request {
	return Request{Input: input, Target: chat.Channel("general")}
}

func TestNonAdminInputIsNeverConsumed(t *testing.T) {
	mod := &fakeMod{}
	in := New(member, mod, newView("a"), nil, nil)
	for _, input := range []string{"/purge 10", "/lock", "/whatever", "/"} {
		if res := in.Handle(context.Background(), req(input)); res.Handled {
			t.Errorf("Handle(%q) consumed non-admin input", input)
		}
	}
	if mod.purged != nil || mod.locks != nil {
		t.Error("non-admin command reached the server")
	}
}

func TestAdminPurgeAsksForConfirmation(t *testing.T) {
	mod := &fakeMod{}
	view := newView("a", "b", "c")
	in := New(admin, mod, view, nil, nil)

	res := in.Handle(context.Background(), req("/purge 10"))
	if !res.Handled || !res.NeedsConfirm {
		t.Fatalf("result = %+v, want confirmation request", res)
	}
	if mod.purged != nil || len(view.ids()) != 3 {
		t.Fatal("purge ran before confirmation")
	}

	r := req("/purge 10")
	r.Confirmed = true
	res = in.Handle(context.Background(), r)
	if res.Err != nil || res.NeedsConfirm {
		t.Fatalf("result = %+v", res)
	}
	if !slices.Equal(mod.purged, []string{"a", "b", "c"}) {
		t.Errorf("purged = %v, want oldest to newest [a b c]", mod.purged)
	}
	if len(view.ids()) != 0 {
		t.Errorf("left = %v", view.ids())
	}
}

func TestPurgePartialRollback(t *testing.T) {
	mod := &fakeMod{deleted: []string{"a", "c"}}
	view := newView("x", "a", "b", "c")
	in := New(admin, mod, view, nil, nil)

	r := req("/purge 3")
	r.Confirmed = true
	res := in.Handle(context.Background(), r)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if !slices.Equal(view.ids(), []string{"x", "b"}) {
		t.Errorf("ids = %v, want [x b]", view.ids())
	}
	for _, m := range view.thread.Messages {
		if m.ID == "b" && m.Status != chat.StatusSent {
			t.Errorf("restored b has status %q", m.Status)
		}
	}
}

func TestPurgeTransportFailureRestoresAll(t *testing.T) {
	mod := &fakeMod{err: errors.New("503")}
	view := newView("a", "b")
	in := New(admin, mod, view, nil, nil)

	r := req("/purge")
	r.Confirmed = true
	if res := in.Handle(context.Background(), r); res.Err == nil {
		t.Fatal("expected error")
	}
	if !slices.Equal(view.ids(), []string{"a", "b"}) {
		t.Errorf("ids = %v, want everything restored", view.ids())
	}
}

func TestAdminUnknownCommandIsConsumed(t *testing.T) {
	in := New(admin, &fakeMod{}, newView(), nil, nil)
	res := in.Handle(context.Background(), req("/frobnicate"))
	if !res.Handled || !errors.Is(res.Err, ErrUnknownCommand) {
		t.Errorf("result = %+v", res)
	}
}

func TestModerationOnlyInChannels(t *testing.T) {
	in := New(admin, &fakeMod{}, newView(), nil, nil)
	res := in.Handle(context.Background(), Request{Input: "/lock", Target: chat.DM("bo@x.io")})
	if !res.Handled || !errors.Is(res.Err, ErrNotChannel) {
		t.Errorf("result = %+v", res)
	}
	if res := in.Handle(context.Background(), Request{Input: "hello", Target: chat.DM("bo@x.io")}); res.Handled {
		t.Error("plain text consumed")
	}
}

func TestLockUnlock(t *testing.T) {
	mod := &fakeMod{}
	view := newView()
	in := New(admin, mod, view, nil, nil)
	now := time.Unix(1700000000, 0)
	in.now = func() time.Time { return now }

	if res := in.Handle(context.Background(), req("/lock 15")); res.Err != nil {
		t.Fatal(res.Err)
	}
	if !view.locked || view.until == nil || !view.until.Equal(now.Add(15*time.Minute)) || mod.minutes != 15 {
		t.Errorf("after lock: locked=%v until=%v minutes=%d", view.locked, view.until, mod.minutes)
	}
	if res := in.Handle(context.Background(), req("/unlock")); res.Err != nil {
		t.Fatal(res.Err)
	}
	if view.locked || !slices.Equal(mod.locks, []bool{true, false}) {
		t.Errorf("after unlock: locked=%v calls=%v", view.locked, mod.locks)
	}
	if res := in.Handle(context.Background(), req("/lock soon")); !errors.Is(res.Err, ErrUsage) {
		t.Errorf("bad minutes: %+v", res)
	}
}

func TestMuteResolution(t *testing.T) {
	roster := presence.NewRoster(admin.Email)
	roster.ApplySnapshot([]presence.Raw{{"email": "cy@x.io", "name": "Cy Twombly"}})

	tests := []struct {
		name    string
		input   string
		users   []showroom.User
		want    string
		minutes int
		wantErr bool
	}{
		{"literal email", "/mute Dee@X.io 30", nil, "dee@x.io", 30, false},
		{"roster name with spaces", "/mute Cy Twombly", nil, "cy@x.io", 0, false},
		{"remote search", "/mute eve", []showroom.User{{Email: "Eve@x.io", Name: "Eve"}}, "eve@x.io", 0, false},
		{"ambiguous search", "/mute ed", []showroom.User{{Email: "ed1@x.io"}, {Email: "ed2@x.io"}}, "", 0, true},
		{"nobody", "/mute ghost", nil, "", 0, true},
		{"self", "/mute ana@x.io", nil, "", 0, true},
		{"self by name", "/mute Ana", []showroom.User{{Email: "ana@x.io", Name: "Ana"}}, "", 0, true},
		{"missing target", "/mute", nil, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := &fakeMod{users: tt.users}
			in := New(admin, mod, newView(), roster, nil)
			res := in.Handle(context.Background(), req(tt.input))
			if tt.wantErr {
				if res.Err == nil || mod.muted != "" {
					t.Errorf("result = %+v muted=%q, want error", res, mod.muted)
				}
				return
			}
			if res.Err != nil {
				t.Fatal(res.Err)
			}
			if mod.muted != tt.want || mod.minutes != tt.minutes {
				t.Errorf("muted %q for %d, want %q for %d", mod.muted, mod.minutes, tt.want, tt.minutes)
			}
		})
	}
}

func TestHelpWorksAnywhere(t *testing.T) {
	in := New(admin, &fakeMod{}, newView(), nil, nil)
	res := in.Handle(context.Background(), Request{Input: "/help", Target: chat.DM("bo@x.io")})
	if !res.Handled || res.Err != nil || res.Message == "" {
		t.Errorf("result = %+v", res)
	}
}
