package presence

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/showroom/internal/bus"
)

// Roster is the shared presence cache. Components that need presence get the
// same *Roster injected instead of reaching for a global.
type Roster struct {
	mu      sync.RWMutex
	norm    Normalizer
	entries []Entry
	bus     *bus.Bus
	now     func() time.Time
}

// Option configures a Roster.
type Option func(*Roster)

func WithGrace(d time.Duration) Option {
	return func(r *Roster) { r.norm.Grace = d }
}

func WithRetention(p Retention) Option {
	return func(r *Roster) { r.norm.Policy = p }
}

func WithBus(b *bus.Bus) Option {
	return func(r *Roster) { r.bus = b }
}

func WithClock(now func() time.Time) Option {
	return func(r *Roster) { r.now = now }
}

// NewRoster creates an empty roster for the given viewer.
func NewRoster(self string, opts ...Option) *Roster {
	r := &Roster{
		norm: Normalizer{Self: self},
		now:  time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Self returns the viewer's email.
func (r *Roster) Self() string {
	return r.norm.Self
}

// Entries returns a copy of the current roster.
func (r *Roster) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}

// Load seeds the roster from a persisted copy, recomputing statuses.
func (r *Roster) Load(entries []Entry) {
	r.mu.Lock()
	r.entries, _ = r.norm.Restamp(entries, r.now())
	r.mu.Unlock()
	r.publish()
}

// ApplySnapshot replaces the roster from a snapshot.
func (r *Roster) ApplySnapshot(raw []Raw) []Entry {
	r.mu.Lock()
	r.entries = r.norm.NormalizeList(raw, r.entries, r.now())
	out := slices.Clone(r.entries)
	r.mu.Unlock()
	r.publish()
	return out
}

// ApplyDelta merges one presence update.
func (r *Roster) ApplyDelta(delta Raw) {
	if delta.email() == "" {
		return
	}
	r.mu.Lock()
	r.entries = r.norm.MergeUpdate(r.entries, delta, r.now())
	r.mu.Unlock()
	r.publish()
}

// Restamp recomputes derived statuses so stale entries go offline as time
// passes without new updates.
func (r *Roster) Restamp() bool {
	r.mu.Lock()
	var changed bool
	r.entries, changed = r.norm.Restamp(r.entries, r.now())
	r.mu.Unlock()
	if changed {
		r.publish()
	}
	return changed
}

// Lookup finds an entry by email, then exact name, then a unique name
// prefix. Matching is case-insensitive.
func (r *Roster) Lookup(query string) (Entry, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if strings.ToLower(e.Email) == q {
			return e, true
		}
	}
	for _, e := range r.entries {
		if strings.ToLower(e.Name) == q {
			return e, true
		}
	}
	var found []Entry
	for _, e := range r.entries {
		if e.Name != "" && strings.HasPrefix(strings.ToLower(e.Name), q) {
			found = append(found, e)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return Entry{}, false
}

func (r *Roster) publish() {
	r.bus.Emit(bus.PresenceUpdated, r.Entries())
}
