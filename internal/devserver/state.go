package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/showroom/internal/chat"
)

// User is a seeded account.
type User struct {
	Email string `toml:"email" json:"email"`
	Name  string `toml:"name" json:"name,omitempty"`
	Image string `toml:"image" json:"image,omitempty"`
	Role  string `toml:"role" json:"role,omitempty"`
	Plan  string `toml:"plan" json:"plan,omitempty"`
}

// Identity is the token identity of a seeded user.
func (u User) Identity() chat.Identity {
	return chat.Identity{Email: strings.ToLower(u.Email), Name: u.Name, Role: u.Role, Plan: u.Plan}
}

type member struct {
	User
	status    string
	updatedAt time.Time
}

func (m *member) raw() map[string]any {
	out := map[string]any{
		"email":  m.Email,
		"name":   m.Name,
		"role":   m.Role,
		"plan":   m.Plan,
		"status": m.status,
	}
	if m.Image != "" {
		out["image"] = m.Image
	}
	if !m.updatedAt.IsZero() {
		out["updatedAt"] = m.updatedAt.UnixMilli()
	}
	return out
}

type upload struct {
	name string
	data []byte
}

// state is the server's in-memory data. Every field is guarded by mu.
type state struct {
	mu       sync.Mutex
	channels map[string]*chat.ChannelPerms
	messages map[string][]chat.Message
	members  map[string]*member
	// mutes maps "email" (everywhere) or "email|channel" to the end of the
	// mute; a zero time never ends.
	mutes   map[string]time.Time
	uploads map[string]upload
}

func newState(channels []chat.ChannelPerms, users []User) *state {
	s := &state{
		channels: make(map[string]*chat.ChannelPerms),
		messages: make(map[string][]chat.Message),
		members:  make(map[string]*member),
		mutes:    make(map[string]time.Time),
		uploads:  make(map[string]upload),
	}
	for _, c := range channels {
		c := c
		c.Slug = strings.ToLower(c.Slug)
		s.channels[c.Slug] = &c
	}
	for _, u := range users {
		u.Email = strings.ToLower(u.Email)
		s.members[u.Email] = &member{User: u, status: "offline"}
	}
	return s
}

// dmKey is shared by both participants of a DM.
func dmKey(a, b string) string {
	pair := []string{strings.ToLower(a), strings.ToLower(b)}
	sort.Strings(pair)
	return "dm:" + pair[0] + "|" + pair[1]
}

// streamKey is where events for t, as seen by viewer, are published.
func streamKey(viewer string, t chat.Target) string {
	if t.IsDM() {
		return dmKey(viewer, t.Name)
	}
	return t.Key()
}

func (s *state) channelList() []chat.ChannelPerms {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.ChannelPerms, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func (s *state) channel(slug string) (chat.ChannelPerms, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[slug]
	if !ok {
		return chat.ChannelPerms{}, false
	}
	return *c, true
}

// history returns the messages stored under key, dropping DM messages older
// than expiry first.
func (s *state) history(key string, expiry time.Duration, now time.Time) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(key, expiry, now)
	out := make([]chat.Message, len(s.messages[key]))
	copy(out, s.messages[key])
	return out
}

func (s *state) expireLocked(key string, expiry time.Duration, now time.Time) {
	if expiry <= 0 || !strings.HasPrefix(key, "dm:") {
		return
	}
	cutoff := now.Add(-expiry)
	msgs := s.messages[key]
	i := 0
	for i < len(msgs) && msgs[i].CreatedAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.messages[key] = append([]chat.Message(nil), msgs[i:]...)
	}
}

func (s *state) append(key string, m chat.Message, expiry time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(key, expiry, m.CreatedAt)
	s.messages[key] = append(s.messages[key], m)
}

// remove deletes ids from key and returns the ids that existed.
func (s *state) remove(key string, ids []string) []string {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []string
	kept := s.messages[key][:0]
	for _, m := range s.messages[key] {
		if _, ok := want[m.ID]; ok {
			deleted = append(deleted, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	s.messages[key] = kept
	return deleted
}

func (s *state) setLock(slug string, locked bool, until *time.Time) (chat.ChannelPerms, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[slug]
	if !ok {
		return chat.ChannelPerms{}, false
	}
	c.Locked = locked && until == nil
	c.LockedUntil = nil
	if locked {
		c.LockedUntil = until
	}
	return *c, true
}

func (s *state) mute(email, channel string, until time.Time) {
	key := strings.ToLower(email)
	if channel != "" {
		key += "|" + channel
	}
	s.mu.Lock()
	s.mutes[key] = until
	s.mu.Unlock()
}

func (s *state) muted(email, channel string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{strings.ToLower(email), strings.ToLower(email) + "|" + channel} {
		until, ok := s.mutes[key]
		if !ok {
			continue
		}
		if until.IsZero() || until.After(now) {
			return true
		}
		delete(s.mutes, key)
	}
	return false
}

// touch records a heartbeat, adding unknown users, and returns the delta.
func (s *state) touch(id chat.Identity, status string, now time.Time) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id.Email]
	if !ok {
		m = &member{User: User{Email: id.Email, Name: id.Name, Role: id.Role, Plan: id.Plan}}
		s.members[id.Email] = m
	}
	m.status = status
	m.updatedAt = now
	return m.raw()
}

func (s *state) roster() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	emails := make([]string, 0, len(s.members))
	for e := range s.members {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	out := make([]map[string]any, 0, len(emails))
	for _, e := range emails {
		out = append(out, s.members[e].raw())
	}
	return out
}

func (s *state) searchUsers(q string, limit int) []User {
	q = strings.ToLower(strings.TrimSpace(q))
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []User
	for _, m := range s.members {
		if q == "" || strings.Contains(m.Email, q) || strings.Contains(strings.ToLower(m.Name), q) {
			out = append(out, m.User)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *state) store(key, name string, data []byte) {
	s.mu.Lock()
	s.uploads[key] = upload{name: name, data: data}
	s.mu.Unlock()
}

func (s *state) file(key string) (upload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[key]
	return u, ok
}

// hub fans out encoded events to SSE subscribers per key.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan []byte]struct{})}
}

func (h *hub) subscribe(key string) (<-chan []byte, func()) {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan []byte]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[key], ch)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			h.mu.Unlock()
		})
	}
}

// publish never blocks; a subscriber with a full buffer misses the event.
func (h *hub) publish(key string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[key] {
		select {
		case ch <- data:
		default:
		}
	}
}

func (h *hub) count(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}
