package chat

// Thread is the message list of one conversation. It is not safe for
// concurrent use; the session controller serializes access.
type Thread struct {
	Target   Target
	Messages []Message
	// Loaded is set once a history snapshot has been merged.
	Loaded bool
	// deleted remembers deletes seen before the snapshot so it cannot
	// resurrect them.
	deleted map[string]struct{}
}

func NewThread(t Target) *Thread {
	return &Thread{Target: t}
}

// Apply reconciles a live event into the thread.
func (t *Thread) Apply(evt Event) Outcome {
	var out Outcome
	t.Messages, out = Apply(t.Messages, evt)
	if evt.Action == ActionDelete && !t.Loaded {
		if t.deleted == nil {
			t.deleted = make(map[string]struct{})
		}
		t.deleted[evt.ID()] = struct{}{}
	}
	return out
}

// LoadSnapshot merges fetched history into the thread.
func (t *Thread) LoadSnapshot(snapshot []Message) {
	t.Messages = MergeSnapshot(snapshot, t.Messages, t.deleted)
	t.deleted = nil
	t.Loaded = true
}

// AddPending appends an optimistic local message.
func (t *Thread) AddPending(m Message) {
	m.Status = StatusPending
	m.ID = ""
	t.Messages = append(t.Messages, m)
}

// Confirm applies the server response for a send.
func (t *Thread) Confirm(tempID string, row Message) bool {
	var ok bool
	t.Messages, ok = ConfirmSend(t.Messages, tempID, row)
	return ok
}

// Fail marks an unconfirmed message as failed.
func (t *Thread) Fail(tempID string) bool {
	var ok bool
	t.Messages, ok = SetStatus(t.Messages, tempID, StatusFailed)
	return ok
}

// Retry flips a failed message back to pending and returns it for resubmission.
func (t *Thread) Retry(tempID string) (Message, bool) {
	i := indexByTempID(t.Messages, tempID)
	if i < 0 || t.Messages[i].Status != StatusFailed {
		return Message{}, false
	}
	t.Messages, _ = SetStatus(t.Messages, tempID, StatusPending)
	return t.Messages[i], true
}

// Remove drops the given ids, returning what was removed.
func (t *Thread) Remove(ids []string) []Message {
	var removed []Message
	t.Messages, removed = RemoveIDs(t.Messages, ids)
	return removed
}

// Restore re-inserts previously removed messages.
func (t *Thread) Restore(msgs []Message) {
	t.Messages = Restore(t.Messages, msgs)
}

// Snapshot returns a copy of the messages.
func (t *Thread) Snapshot() []Message {
	out := make([]Message, len(t.Messages))
	copy(out, t.Messages)
	return out
}
