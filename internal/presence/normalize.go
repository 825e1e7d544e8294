package presence

import (
	"strconv"
	"strings"
	"time"
)

// Status is a presence state. Raw statuses come from the server; derived
// statuses are what the roster shows.
type Status string

const (
	Online    Status = "online"
	Idle      Status = "idle"
	DND       Status = "dnd"
	Invisible Status = "invisible"
	Offline   Status = "offline"
)

// DefaultGrace is how long a non-self entry may go without an update before
// it is shown offline.
const DefaultGrace = 60 * time.Second

// Entry is one user on the roster.
type Entry struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	Image       string `json:"image,omitempty"`
	Role        string `json:"role,omitempty"`
	Plan        string `json:"plan,omitempty"`
	RawStatus   Status `json:"rawStatus"`
	UpdatedAtMs int64  `json:"updatedAtMs,omitempty"`
	Status      Status `json:"status"`
}

// Raw is an undecoded presence record.
type Raw map[string]any

// Retention decides what happens to entries missing from a new snapshot.
type Retention int

const (
	// RetainMissing keeps entries the snapshot omits; they age out to
	// offline through the grace window.
	RetainMissing Retention = iota
	// PruneMissing drops entries the snapshot omits.
	PruneMissing
)

// Normalizer turns raw presence payloads into roster entries.
type Normalizer struct {
	Self   string
	Grace  time.Duration
	Policy Retention
}

func (n Normalizer) grace() time.Duration {
	if n.Grace <= 0 {
		return DefaultGrace
	}
	return n.Grace
}

func (n Normalizer) isSelf(email string) bool {
	return n.Self != "" && strings.EqualFold(n.Self, email)
}

// NormalizeList normalizes a snapshot with the default grace window and
// retention policy.
func NormalizeList(raw []Raw, prev []Entry, self string, now time.Time) []Entry {
	return Normalizer{Self: self}.NormalizeList(raw, prev, now)
}

// MergeUpdate applies one delta with the default grace window.
func MergeUpdate(prev []Entry, delta Raw, self string, now time.Time) []Entry {
	return Normalizer{Self: self}.MergeUpdate(prev, delta, now)
}

// NormalizeList builds the roster from a snapshot. Absent fields fall back to
// the cached entry with the same email. Entries without an email are dropped.
func (n Normalizer) NormalizeList(raw []Raw, prev []Entry, now time.Time) []Entry {
	byEmail := index(prev)
	seen := make(map[string]struct{}, len(raw))
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		key := strings.ToLower(r.email())
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		var cached *Entry
		if i, ok := byEmail[key]; ok {
			cached = &prev[i]
		}
		out = append(out, n.build(r, cached, now))
	}
	if n.Policy == RetainMissing {
		for _, e := range prev {
			if _, ok := seen[strings.ToLower(e.Email)]; ok {
				continue
			}
			e.Status = n.Derive(e.RawStatus, e.UpdatedAtMs, e.Email, now)
			out = append(out, e)
		}
	}
	return out
}

// MergeUpdate replaces the entry with the delta's email in place, or prepends
// a new one. Deltas without an email are ignored.
func (n Normalizer) MergeUpdate(prev []Entry, delta Raw, now time.Time) []Entry {
	key := strings.ToLower(delta.email())
	if key == "" {
		return prev
	}
	out := make([]Entry, 0, len(prev)+1)
	if i, ok := index(prev)[key]; ok {
		out = append(out, prev...)
		out[i] = n.build(delta, &prev[i], now)
		return out
	}
	out = append(out, n.build(delta, nil, now))
	return append(out, prev...)
}

// Restamp recomputes derived statuses at now. It reports whether any changed.
func (n Normalizer) Restamp(entries []Entry, now time.Time) ([]Entry, bool) {
	out := make([]Entry, len(entries))
	changed := false
	for i, e := range entries {
		s := n.Derive(e.RawStatus, e.UpdatedAtMs, e.Email, now)
		if s != e.Status {
			changed = true
		}
		e.Status = s
		out[i] = e
	}
	return out, changed
}

// Derive computes the shown status for a raw status.
func (n Normalizer) Derive(raw Status, updatedAtMs int64, email string, now time.Time) Status {
	return Derive(raw, updatedAtMs, n.isSelf(email), now, n.grace())
}

// Derive computes the shown status. Invisible and offline pass through. The
// viewer's own entry never goes stale. Anyone else whose last update is older
// than grace is offline; an unknown timestamp counts as fresh.
func Derive(raw Status, updatedAtMs int64, isSelf bool, now time.Time, grace time.Duration) Status {
	switch raw {
	case Invisible, Offline:
		return raw
	}
	fresh := isSelf || updatedAtMs == 0 || now.Sub(time.UnixMilli(updatedAtMs)) <= grace
	if !fresh {
		return Offline
	}
	if raw == Idle || raw == DND {
		return raw
	}
	return Online
}

func (n Normalizer) build(r Raw, cached *Entry, now time.Time) Entry {
	var e Entry
	if cached != nil {
		e = *cached
	}
	if v := r.email(); v != "" {
		e.Email = v
	}
	if v := r.str("name", "userName", "displayName"); v != "" {
		e.Name = v
	}
	if v := r.str("image", "avatar", "picture"); v != "" {
		e.Image = v
	}
	if v := r.str("role"); v != "" {
		e.Role = v
	}
	if v := r.str("plan"); v != "" {
		e.Plan = v
	}
	if v := r.str("status", "presence_status", "rawStatus"); v != "" {
		e.RawStatus = ParseStatus(v)
	}
	if e.RawStatus == "" {
		e.RawStatus = Online
	}
	if ms, ok := r.millis("updatedAt", "presence_updated_at", "last_seen", "lastSeen"); ok {
		e.UpdatedAtMs = ms
	}
	e.Status = n.Derive(e.RawStatus, e.UpdatedAtMs, e.Email, now)
	return e
}

// ParseStatus maps server spellings onto the known statuses.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idle", "away":
		return Idle
	case "dnd", "busy", "do_not_disturb":
		return DND
	case "invisible", "hidden":
		return Invisible
	case "offline":
		return Offline
	}
	return Online
}

func index(entries []Entry) map[string]int {
	m := make(map[string]int, len(entries))
	for i, e := range entries {
		m[strings.ToLower(e.Email)] = i
	}
	return m
}

func (r Raw) email() string {
	return strings.TrimSpace(r.str("email", "userEmail", "user_email"))
}

func (r Raw) str(keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// millis reads a timestamp given as epoch milliseconds or an RFC 3339 string.
func (r Raw) millis(keys ...string) (int64, bool) {
	for _, k := range keys {
		switch v := r[k].(type) {
		case float64:
			if v > 0 {
				return int64(v), true
			}
		case int64:
			if v > 0 {
				return v, true
			}
		case int:
			if v > 0 {
				return int64(v), true
			}
		case string:
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
				return ms, true
			}
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t.UnixMilli(), true
			}
		case time.Time:
			if !v.IsZero() {
				return v.UnixMilli(), true
			}
		}
	}
	return 0, false
}
