package chat

import "slices"

// OutcomeKind says what Apply did with an event.
type OutcomeKind int

const (
	Ignored OutcomeKind = iota
	Removed
	Confirmed
	Merged
	Appended
)

func (k OutcomeKind) String() string {
	switch k {
	case Removed:
		return "removed"
	case Confirmed:
		return "confirmed"
	case Merged:
		return "merged"
	case Appended:
		return "appended"
	}
	return "ignored"
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *OutcomeKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "removed":
		*k = Removed
	case "confirmed":
		*k = Confirmed
	case "merged":
		*k = Merged
	case "appended":
		*k = Appended
	default:
		*k = Ignored
	}
	return nil
}

// Outcome describes the effect of one event on a message list.
type Outcome struct {
	Kind    OutcomeKind
	Message Message
	// TempID is set when an optimistic entry was confirmed.
	TempID string
}

// Apply reconciles one live event into msgs and returns the new list. msgs is
// never modified in place.
//
// Deletes drop every message with the event's id and are idempotent. Inserts
// and updates first try to confirm a local optimistic entry (newest first),
// then merge by id, then append.
func Apply(msgs []Message, evt Event) ([]Message, Outcome) {
	if evt.Action == ActionDelete {
		id := evt.ID()
		if id == "" {
			return msgs, Outcome{}
		}
		out := slices.DeleteFunc(slices.Clone(msgs), func(m Message) bool { return m.ID == id })
		if len(out) == len(msgs) {
			return msgs, Outcome{Kind: Ignored}
		}
		return out, Outcome{Kind: Removed, Message: Message{ID: id}}
	}

	if evt.After == nil {
		return msgs, Outcome{}
	}
	incoming := evt.After.Message()
	if incoming.Empty() || incoming.ID == "" {
		return msgs, Outcome{}
	}
	return upsert(msgs, incoming)
}

func upsert(msgs []Message, incoming Message) ([]Message, Outcome) {
	if i := matchOptimistic(msgs, incoming); i >= 0 {
		out := slices.Clone(msgs)
		tempID := out[i].TempID
		// An id match elsewhere means the send response already landed.
		if j := indexByID(out, incoming.ID); j >= 0 && j != i {
			out[j] = mergeMessage(mergeMessage(out[i], out[j]), incoming)
			m := out[j]
			out = slices.Delete(out, i, i+1)
			return out, Outcome{Kind: Merged, Message: m, TempID: tempID}
		}
		out[i] = mergeMessage(out[i], incoming)
		return out, Outcome{Kind: Confirmed, Message: out[i], TempID: tempID}
	}
	if i := indexByID(msgs, incoming.ID); i >= 0 {
		out := slices.Clone(msgs)
		out[i] = mergeMessage(out[i], incoming)
		return out, Outcome{Kind: Merged, Message: out[i]}
	}
	return append(slices.Clone(msgs), incoming), Outcome{Kind: Appended, Message: incoming}
}

// mergeMessage folds incoming into the slot held by prev. Id, status and
// text come from incoming; sender, timestamp, client id and attachments
// fall back to prev when incoming leaves them empty.
func mergeMessage(prev, incoming Message) Message {
	m := incoming
	m.TempID = ""
	if m.UserName == "" {
		m.UserName = prev.UserName
	}
	if m.UserEmail == "" {
		m.UserEmail = prev.UserEmail
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = prev.CreatedAt
	}
	if m.ClientID == "" {
		m.ClientID = prev.ClientID
	}
	if len(m.Attachments) == 0 {
		m.Attachments = slices.Clone(prev.Attachments)
	}
	return m
}

// matchOptimistic finds the newest unconfirmed local entry that incoming
// confirms. When the server echoes a client id only an exact match counts;
// otherwise sender, normalized text and attachment list must all agree.
func matchOptimistic(msgs []Message, incoming Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.ID != "" || m.Status == StatusSent {
			continue
		}
		if incoming.ClientID != "" {
			if m.TempID == incoming.ClientID {
				return i
			}
			continue
		}
		if m.From(incoming.UserEmail) &&
			NormalizeText(m.Text) == incoming.Text &&
			sameAttachments(m.Attachments, incoming.Attachments) {
			return i
		}
	}
	return -1
}

func indexByID(msgs []Message, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(msgs, func(m Message) bool { return m.ID == id })
}

func indexByTempID(msgs []Message, tempID string) int {
	if tempID == "" {
		return -1
	}
	return slices.IndexFunc(msgs, func(m Message) bool { return m.TempID == tempID && m.ID == "" })
}

// ConfirmSend reconciles the server's response to our own send. It returns
// false when neither the optimistic entry nor the confirmed id is present,
// which happens when the message was deleted before the response arrived.
func ConfirmSend(msgs []Message, tempID string, row Message) ([]Message, bool) {
	row.Text = NormalizeText(row.Text)
	row.Status = StatusSent
	row.TempID = ""
	if row.ClientID == "" {
		row.ClientID = tempID
	}

	i := indexByTempID(msgs, tempID)
	j := indexByID(msgs, row.ID)
	out := slices.Clone(msgs)
	switch {
	case i >= 0 && j >= 0:
		out[j] = mergeMessage(mergeMessage(out[i], out[j]), row)
		return slices.Delete(out, i, i+1), true
	case i >= 0:
		out[i] = mergeMessage(out[i], row)
		return out, true
	case j >= 0:
		out[j] = mergeMessage(out[j], row)
		return out, true
	}
	return msgs, false
}

// SetStatus changes the status of the unconfirmed entry with tempID.
func SetStatus(msgs []Message, tempID string, status Status) ([]Message, bool) {
	i := indexByTempID(msgs, tempID)
	if i < 0 {
		return msgs, false
	}
	out := slices.Clone(msgs)
	out[i].Status = status
	return out, true
}

// MergeSnapshot combines a freshly fetched history snapshot with whatever the
// list already holds, so it does not matter whether stream events or the
// snapshot arrived first. Confirmed messages missing from the snapshot and
// unconfirmed local entries are kept; ids in deleted are dropped.
func MergeSnapshot(snapshot, current []Message, deleted map[string]struct{}) []Message {
	out := make([]Message, 0, len(snapshot)+len(current))
	seen := make(map[string]struct{}, len(snapshot))
	claimed := make(map[string]struct{})
	for _, m := range snapshot {
		m.Text = NormalizeText(m.Text)
		m.Status = StatusSent
		if m.Empty() || m.ID == "" {
			continue
		}
		if _, gone := deleted[m.ID]; gone {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if m.ClientID != "" {
			claimed[m.ClientID] = struct{}{}
		}
		out = append(out, m)
	}
	for _, m := range current {
		if m.ID == "" {
			if _, ok := claimed[m.TempID]; ok {
				continue
			}
			out = append(out, m)
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		if _, gone := deleted[m.ID]; gone {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// RecentConfirmed returns up to n of the newest confirmed messages, oldest
// first.
func RecentConfirmed(msgs []Message, n int) []Message {
	var picked []Message
	for i := len(msgs) - 1; i >= 0 && len(picked) < n; i-- {
		if msgs[i].ID != "" {
			picked = append(picked, msgs[i])
		}
	}
	slices.Reverse(picked)
	return picked
}

// RemoveIDs drops messages whose id is in ids and returns the new list and
// the removed messages.
func RemoveIDs(msgs []Message, ids []string) ([]Message, []Message) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	var removed []Message
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := set[m.ID]; ok && m.ID != "" {
			removed = append(removed, m)
			continue
		}
		out = append(out, m)
	}
	return out, removed
}

// Restore puts previously removed messages back in creation order. Messages
// whose id is already present are skipped.
func Restore(msgs []Message, restored []Message) []Message {
	out := slices.Clone(msgs)
	for _, m := range restored {
		if indexByID(out, m.ID) >= 0 {
			continue
		}
		at := slices.IndexFunc(out, func(x Message) bool {
			return x.ID != "" && x.CreatedAt.After(m.CreatedAt)
		})
		if at < 0 {
			// Keep unconfirmed local entries at the tail.
			at = slices.IndexFunc(out, func(x Message) bool { return x.ID == "" })
			if at < 0 {
				at = len(out)
			}
		}
		out = slices.Insert(out, at, m)
	}
	return out
}
