package chat

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes channel conversations from direct messages.
type Kind string

const (
	KindChannel Kind = "channel"
	KindDM      Kind = "dm"
)

// Target is the active conversation: a channel slug or a DM peer email.
type Target struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

func Channel(slug string) Target {
	return Target{Kind: KindChannel, Name: strings.ToLower(strings.TrimSpace(slug))}
}

func DM(email string) Target {
	return Target{Kind: KindDM, Name: strings.ToLower(strings.TrimSpace(email))}
}

// Key is the stable map key for a target, e.g. "channel:general".
func (t Target) Key() string {
	if t.IsZero() {
		return ""
	}
	return string(t.Kind) + ":" + t.Name
}

func (t Target) IsZero() bool {
	return t.Name == ""
}

func (t Target) IsChannel() bool {
	return t.Kind == KindChannel && t.Name != ""
}

func (t Target) IsDM() bool {
	return t.Kind == KindDM && t.Name != ""
}

// String renders the target the way users type it.
func (t Target) String() string {
	switch t.Kind {
	case KindChannel:
		return "#" + t.Name
	case KindDM:
		return "@" + t.Name
	}
	return ""
}

// ParseTarget accepts "#slug", "@email", "channel:slug", "dm:email", a bare
// email (DM) or a bare slug (channel).
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	var t Target
	switch {
	case s == "":
		return Target{}, fmt.Errorf("empty target")
	case strings.HasPrefix(s, "#"):
		t = Channel(s[1:])
	case strings.HasPrefix(s, "@"):
		t = DM(s[1:])
	case strings.HasPrefix(s, "channel:"):
		t = Channel(strings.TrimPrefix(s, "channel:"))
	case strings.HasPrefix(s, "dm:"):
		t = DM(strings.TrimPrefix(s, "dm:"))
	case strings.Contains(s, "@"):
		t = DM(s)
	default:
		t = Channel(s)
	}
	if t.Name == "" {
		return Target{}, fmt.Errorf("invalid target %q", s)
	}
	if t.Kind == KindDM && !strings.Contains(t.Name, "@") {
		return Target{}, fmt.Errorf("invalid dm target %q: want an email", s)
	}
	return t, nil
}

// ChannelPerms is the read gating and lock state of one channel.
type ChannelPerms struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title,omitempty"`
	ReadRole    string     `json:"readRole,omitempty"`
	ReadPlan    string     `json:"readPlan,omitempty"`
	Locked      bool       `json:"locked"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

// IsLocked reports whether sending is blocked at now: the lock flag is set
// or locked_until is still in the future.
func (p ChannelPerms) IsLocked(now time.Time) bool {
	if p.Locked {
		return true
	}
	return p.LockedUntil != nil && p.LockedUntil.After(now)
}

// CanRead reports whether the identity passes the channel's role and plan
// gates. Admins read everything.
func (p ChannelPerms) CanRead(id Identity) bool {
	if id.IsAdmin() {
		return true
	}
	if p.ReadRole != "" && !strings.EqualFold(p.ReadRole, id.Role) {
		return false
	}
	if p.ReadPlan != "" && !strings.EqualFold(p.ReadPlan, id.Plan) {
		return false
	}
	return true
}
