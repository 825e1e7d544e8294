package chat

import (
	"slices"
	"testing"
	"time"
)

func row(id, email, text string, attachments ...string) *Row {
	return &Row{ID: id, UserEmail: email, Text: text, Attachments: attachments, CreatedAt: time.Unix(1700000000, 0)}
}

func insert(r *Row) Event { return Event{Action: ActionInsert, After: r} }

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestApplyDeleteIsIdempotent(t *testing.T) {
	msgs := []Message{{ID: "a", Text: "1"}, {ID: "b", Text: "2"}, {ID: "a", Text: "dup"}}
	del := Event{Action: ActionDelete, Before: &Row{ID: "a"}}

	once, out := Apply(msgs, del)
	if out.Kind != Removed {
		t.Errorf("first delete kind = %v, want removed", out.Kind)
	}
	twice, out := Apply(once, del)
	if out.Kind != Ignored {
		t.Errorf("second delete kind = %v, want ignored", out.Kind)
	}
	if !slices.Equal(ids(once), []string{"b"}) || !slices.Equal(ids(twice), ids(once)) {
		t.Errorf("once = %v, twice = %v; want [b] both times", ids(once), ids(twice))
	}
	if len(msgs) != 3 {
		t.Error("Apply modified its input")
	}
}

func TestApplyDeleteUsesAfterID(t *testing.T) {
	msgs := []Message{{ID: "a", Text: "1"}}
	got, _ := Apply(msgs, Event{Action: ActionDelete, After: &Row{ID: "a"}})
	if len(got) != 0 {
		t.Errorf("got %v, want empty", ids(got))
	}
}

func TestApplyOptimisticMergeUnique(t *testing.T) {
	msgs := []Message{
		{ID: "old", UserEmail: "me@x.com", Text: "earlier", Status: StatusSent},
		{TempID: "t1", UserEmail: "me@x.com", Text: "hello", Status: StatusPending},
	}
	echo := insert(row("srv-1", "ME@x.com", "hello"))

	got, out := Apply(msgs, echo)
	if out.Kind != Confirmed || out.TempID != "t1" {
		t.Fatalf("outcome = %+v, want confirmed t1", out)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (no duplicate)", len(got))
	}
	if got[1].ID != "srv-1" || got[1].Status != StatusSent || got[1].TempID != "" {
		t.Errorf("merged = %+v", got[1])
	}

	// Replaying the echo merges by id instead of appending.
	again, out := Apply(got, echo)
	if out.Kind != Merged || len(again) != 2 {
		t.Errorf("replay kind = %v len = %d, want merged 2", out.Kind, len(again))
	}
}

func TestApplyOptimisticPrefersNewest(t *testing.T) {
	msgs := []Message{
		{TempID: "t1", UserEmail: "me@x.com", Text: "same", Status: StatusFailed},
		{TempID: "t2", UserEmail: "me@x.com", Text: "same", Status: StatusPending},
	}
	got, out := Apply(msgs, insert(row("s", "me@x.com", "same")))
	if out.TempID != "t2" {
		t.Errorf("confirmed %q, want newest t2", out.TempID)
	}
	if got[0].TempID != "t1" || got[0].ID != "" {
		t.Errorf("older entry touched: %+v", got[0])
	}
}

func TestApplyOptimisticRequiresSameAttachments(t *testing.T) {
	msgs := []Message{{TempID: "t1", UserEmail: "me@x.com", Text: "pic", Attachments: []string{"a", "b"}, Status: StatusPending}}

	got, out := Apply(msgs, insert(row("s1", "me@x.com", "pic", "b", "a")))
	if out.Kind != Appended || len(got) != 2 {
		t.Errorf("reordered attachments matched: kind %v", out.Kind)
	}
	got, out = Apply(msgs, insert(row("s1", "me@x.com", "pic", "a", "b")))
	if out.Kind != Confirmed || len(got) != 1 {
		t.Errorf("identical attachments did not match: kind %v", out.Kind)
	}
}

func TestApplyOptimisticOtherSenderAppends(t *testing.T) {
	msgs := []Message{{TempID: "t1", UserEmail: "me@x.com", Text: "hi", Status: StatusPending}}
	got, out := Apply(msgs, insert(row("s1", "you@x.com", "hi")))
	if out.Kind != Appended || len(got) != 2 || got[0].ID != "" {
		t.Errorf("other sender merged into our pending message: %+v", got)
	}
}

func TestApplyExactClientIDMatch(t *testing.T) {
	msgs := []Message{
		{TempID: "t1", UserEmail: "me@x.com", Text: "dup", Status: StatusPending},
		{TempID: "t2", UserEmail: "me@x.com", Text: "dup", Status: StatusPending},
	}
	r := row("s1", "me@x.com", "dup")
	r.ClientID = "t1"
	got, out := Apply(msgs, insert(r))
	if out.TempID != "t1" {
		t.Fatalf("confirmed %q, want exact t1", out.TempID)
	}
	if got[0].ID != "s1" || got[1].ID != "" {
		t.Errorf("got %+v", got)
	}

	// A foreign client id never falls back to content matching.
	r2 := row("s2", "me@x.com", "dup")
	r2.ClientID = "other-device"
	got, out = Apply(got, insert(r2))
	if out.Kind != Appended || got[1].ID != "" {
		t.Errorf("foreign client id matched local entry: %+v", got)
	}
}

func TestApplyAttachmentOnlyPlaceholderSurvives(t *testing.T) {
	got, out := Apply(nil, insert(row("m1", "a@x.com", "\u200b", "k1")))
	if out.Kind != Appended || len(got) != 1 {
		t.Fatalf("attachment-only message dropped: %v", out.Kind)
	}
	if got[0].Text != "" || !slices.Equal(got[0].Attachments, []string{"k1"}) {
		t.Errorf("message = %+v, want empty text and [k1]", got[0])
	}

	got, out = Apply(nil, insert(row("m2", "a@x.com", "\u200b")))
	if out.Kind != Ignored || len(got) != 0 {
		t.Errorf("empty message rendered: %+v", got)
	}
}

func TestApplyAttachmentOnlyConfirmsOptimistic(t *testing.T) {
	msgs := []Message{{TempID: "t1", UserEmail: "me@x.com", Text: "", Attachments: []string{"k"}, Status: StatusPending}}
	got, out := Apply(msgs, insert(row("s", "me@x.com", Placeholder, "k")))
	if out.Kind != Confirmed || len(got) != 1 {
		t.Errorf("placeholder echo did not confirm: %v %+v", out.Kind, got)
	}
}

func TestApplyUpdateMergesByID(t *testing.T) {
	msgs := []Message{{ID: "m1", Text: "before"}, {ID: "m2", Text: "other"}}
	got, out := Apply(msgs, Event{Action: ActionUpdate, After: row("m1", "a@x.com", "after")})
	if out.Kind != Merged || got[0].Text != "after" || len(got) != 2 {
		t.Errorf("update = %v %+v", out.Kind, got)
	}
}

func TestApplyPartialRowKeepsKnownFields(t *testing.T) {
	created := time.Unix(1700000000, 0)
	known := Message{ID: "m1", UserName: "Ann", UserEmail: "a@x.com", Text: "first",
		CreatedAt: created, Status: StatusSent, Attachments: []string{"k1"}}
	pending := Message{TempID: "t1", UserName: "Ann", UserEmail: "a@x.com", Text: "first",
		CreatedAt: created, Status: StatusPending, Attachments: []string{"k1"}}

	tests := []struct {
		name     string
		msgs     []Message
		evt      Event
		wantKind OutcomeKind
		wantText string
	}{
		{
			name:     "update by id",
			msgs:     []Message{known},
			evt:      Event{Action: ActionUpdate, After: &Row{ID: "m1", Text: "edited"}},
			wantKind: Merged,
			wantText: "edited",
		},
		{
			name:     "echo confirms pending by client id",
			msgs:     []Message{pending},
			evt:      insert(&Row{ID: "m1", ClientID: "t1", Text: "first"}),
			wantKind: Confirmed,
			wantText: "first",
		},
		{
			name:     "echo without name confirms by content",
			msgs:     []Message{pending},
			evt:      insert(&Row{ID: "m1", UserEmail: "a@x.com", Text: "first", Attachments: []string{"k1"}}),
			wantKind: Confirmed,
			wantText: "first",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, out := Apply(tt.msgs, tt.evt)
			if out.Kind != tt.wantKind || len(got) != 1 {
				t.Fatalf("kind = %v len = %d, want %v 1", out.Kind, len(got), tt.wantKind)
			}
			m := got[0]
			if m.ID != "m1" || m.Text != tt.wantText || m.Status != StatusSent || m.TempID != "" {
				t.Errorf("message = %+v", m)
			}
			if m.UserName != "Ann" || m.UserEmail != "a@x.com" {
				t.Errorf("sender = %q <%s>, want Ann <a@x.com>", m.UserName, m.UserEmail)
			}
			if !m.CreatedAt.Equal(created) {
				t.Errorf("created_at = %v, want %v", m.CreatedAt, created)
			}
			if !slices.Equal(m.Attachments, []string{"k1"}) {
				t.Errorf("attachments = %v, want [k1]", m.Attachments)
			}
			if out.Message.UserName != "Ann" {
				t.Errorf("outcome message = %+v, want merged fields", out.Message)
			}
		})
	}
}

func TestConfirmSendKeepsKnownFields(t *testing.T) {
	created := time.Unix(1700000000, 0)
	pending := []Message{{TempID: "t1", UserName: "Ann", UserEmail: "a@x.com", Text: "hi",
		CreatedAt: created, Status: StatusPending, Attachments: []string{"k1"}}}
	got, ok := ConfirmSend(pending, "t1", Message{ID: "s1", Text: "hi"})
	if !ok || len(got) != 1 {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
	m := got[0]
	if m.ID != "s1" || m.UserName != "Ann" || m.UserEmail != "a@x.com" || !m.CreatedAt.Equal(created) ||
		!slices.Equal(m.Attachments, []string{"k1"}) || m.ClientID != "t1" {
		t.Errorf("confirmed = %+v", m)
	}
}

func TestConfirmSend(t *testing.T) {
	pending := []Message{{TempID: "t1", UserEmail: "me@x.com", Text: "hi", Status: StatusPending}}
	srv := Message{ID: "s1", UserEmail: "me@x.com", Text: "hi"}

	t.Run("response first", func(t *testing.T) {
		got, ok := ConfirmSend(pending, "t1", srv)
		if !ok || len(got) != 1 || got[0].ID != "s1" || got[0].Status != StatusSent {
			t.Fatalf("got %+v ok=%v", got, ok)
		}
		// The stream echo then merges by id.
		got, out := Apply(got, insert(row("s1", "me@x.com", "hi")))
		if out.Kind != Merged || len(got) != 1 {
			t.Errorf("echo after response: %v len %d", out.Kind, len(got))
		}
	})

	t.Run("echo first", func(t *testing.T) {
		got, _ := Apply(pending, insert(row("s1", "me@x.com", "hi")))
		got, ok := ConfirmSend(got, "t1", srv)
		if !ok || len(got) != 1 {
			t.Errorf("got %+v ok=%v, want single confirmed message", got, ok)
		}
	})

	t.Run("echo appended separately", func(t *testing.T) {
		list := append(slices.Clone(pending), Message{ID: "s1", Text: "hi", Status: StatusSent})
		got, ok := ConfirmSend(list, "t1", srv)
		if !ok || len(got) != 1 || got[0].ID != "s1" {
			t.Errorf("got %+v, want the duplicate collapsed", got)
		}
	})

	t.Run("deleted before response", func(t *testing.T) {
		got, ok := ConfirmSend(nil, "t1", srv)
		if ok || len(got) != 0 {
			t.Errorf("resurrected deleted message: %+v", got)
		}
	})
}

func TestSetStatus(t *testing.T) {
	msgs := []Message{{TempID: "t1", Status: StatusPending}}
	got, ok := SetStatus(msgs, "t1", StatusFailed)
	if !ok || got[0].Status != StatusFailed {
		t.Errorf("got %+v", got)
	}
	if msgs[0].Status != StatusPending {
		t.Error("SetStatus modified input")
	}
	if _, ok := SetStatus(msgs, "missing", StatusFailed); ok {
		t.Error("SetStatus on unknown tempID reported ok")
	}
}

func TestMergeSnapshotOrderIndependent(t *testing.T) {
	snapshot := []Message{
		{ID: "h1", UserEmail: "a@x.com", Text: "one"},
		{ID: "h2", UserEmail: "a@x.com", Text: "two"},
	}
	live := insert(row("h3", "b@x.com", "three"))
	dup := insert(row("h2", "a@x.com", "two"))

	// Stream first, then snapshot.
	th1 := NewThread(Channel("general"))
	th1.Apply(live)
	th1.Apply(dup)
	th1.LoadSnapshot(snapshot)

	// Snapshot first, then stream.
	th2 := NewThread(Channel("general"))
	th2.LoadSnapshot(snapshot)
	th2.Apply(live)
	th2.Apply(dup)

	if !slices.Equal(ids(th1.Messages), ids(th2.Messages)) {
		t.Errorf("stream-first %v != snapshot-first %v", ids(th1.Messages), ids(th2.Messages))
	}
	if !slices.Equal(ids(th1.Messages), []string{"h1", "h2", "h3"}) {
		t.Errorf("ids = %v", ids(th1.Messages))
	}
}

func TestMergeSnapshotHonorsEarlyDelete(t *testing.T) {
	th := NewThread(Channel("general"))
	th.Apply(Event{Action: ActionDelete, Before: &Row{ID: "h1"}})
	th.LoadSnapshot([]Message{{ID: "h1", Text: "gone"}, {ID: "h2", Text: "kept"}})
	if !slices.Equal(ids(th.Messages), []string{"h2"}) {
		t.Errorf("ids = %v, want [h2]", ids(th.Messages))
	}
}

func TestMergeSnapshotKeepsOptimistic(t *testing.T) {
	current := []Message{
		{TempID: "t1", Text: "pending", Status: StatusPending},
		{TempID: "t2", Text: "claimed", Status: StatusPending},
	}
	snapshot := []Message{{ID: "s2", ClientID: "t2", Text: "claimed"}, {ID: "s3", Text: "\u200b"}}
	got := MergeSnapshot(snapshot, current, nil)
	if len(got) != 2 || got[0].ID != "s2" || got[1].TempID != "t1" {
		t.Errorf("got %+v", got)
	}
}

func TestRecentConfirmed(t *testing.T) {
	msgs := []Message{{ID: "a"}, {ID: "b"}, {TempID: "t"}, {ID: "c"}}
	got := RecentConfirmed(msgs, 2)
	if !slices.Equal(ids(got), []string{"b", "c"}) {
		t.Errorf("RecentConfirmed = %v, want [b c]", ids(got))
	}
	if got := RecentConfirmed(msgs, 10); len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestRemoveAndRestore(t *testing.T) {
	base := time.Unix(1700000000, 0)
	msgs := []Message{
		{ID: "a", CreatedAt: base},
		{ID: "b", CreatedAt: base.Add(time.Second)},
		{ID: "c", CreatedAt: base.Add(2 * time.Second)},
		{TempID: "t", Status: StatusPending},
	}
	left, removed := RemoveIDs(msgs, []string{"a", "c", "zzz"})
	if !slices.Equal(ids(left), []string{"b", ""}) || len(removed) != 2 {
		t.Fatalf("left = %v removed = %v", ids(left), ids(removed))
	}

	restored := Restore(left, removed)
	if !slices.Equal(ids(restored), []string{"a", "b", "c", ""}) {
		t.Errorf("restored = %v, want [a b c <pending>]", ids(restored))
	}

	// Restoring twice does not duplicate.
	if again := Restore(restored, removed); len(again) != 4 {
		t.Errorf("double restore len = %d", len(again))
	}
}

func TestThreadRetry(t *testing.T) {
	th := NewThread(DM("b@x.com"))
	th.AddPending(Message{TempID: "t1", Text: "hi", UserEmail: "me@x.com"})

	if _, ok := th.Retry("t1"); ok {
		t.Error("Retry on a pending message should be refused")
	}
	if !th.Fail("t1") {
		t.Fatal("Fail() = false")
	}
	m, ok := th.Retry("t1")
	if !ok || m.Status != StatusPending || m.TempID != "t1" || m.Text != "hi" {
		t.Errorf("Retry() = %+v, %v", m, ok)
	}
}
