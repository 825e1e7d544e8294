package sync

import (
	"slices"
	"time"

	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/store"
)

// ToStore converts a confirmed message for the cache.
func ToStore(t chat.Target, m chat.Message) store.Message {
	var created int64
	if !m.CreatedAt.IsZero() {
		created = m.CreatedAt.UnixMilli()
	}
	return store.Message{
		TargetKey:   t.Key(),
		ID:          m.ID,
		ClientID:    m.ClientID,
		Text:        m.Text,
		UserName:    m.UserName,
		UserEmail:   m.UserEmail,
		CreatedAt:   created,
		Attachments: m.Attachments,
	}
}

// FromStore converts a cached message back into a confirmed chat message.
func FromStore(m store.Message) chat.Message {
	var created time.Time
	if m.CreatedAt > 0 {
		created = time.UnixMilli(m.CreatedAt)
	}
	return chat.Message{
		ID:          m.ID,
		ClientID:    m.ClientID,
		Text:        m.Text,
		UserName:    m.UserName,
		UserEmail:   m.UserEmail,
		CreatedAt:   created,
		Status:      chat.StatusSent,
		Attachments: m.Attachments,
	}
}

// Cached loads up to limit cached messages for t, oldest first.
func Cached(db *store.DB, t chat.Target, limit int) ([]chat.Message, error) {
	rows, err := db.ListMessages(t.Key(), 0, limit)
	if err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromStore(r))
	}
	slices.Reverse(out)
	return out, nil
}

// TargetToStore converts channel metadata for the cache.
func TargetToStore(p chat.ChannelPerms) store.Target {
	t := chat.Channel(p.Slug)
	st := store.Target{
		Key:      t.Key(),
		Kind:     string(t.Kind),
		Name:     t.Name,
		Title:    p.Title,
		ReadRole: p.ReadRole,
		ReadPlan: p.ReadPlan,
		Locked:   p.Locked,
	}
	if p.LockedUntil != nil {
		st.LockedUntil = p.LockedUntil.UnixMilli()
	}
	return st
}

// PermsFromStore converts cached channel metadata back.
func PermsFromStore(st store.Target) chat.ChannelPerms {
	p := chat.ChannelPerms{
		Slug:     st.Name,
		Title:    st.Title,
		ReadRole: st.ReadRole,
		ReadPlan: st.ReadPlan,
		Locked:   st.Locked,
	}
	if st.LockedUntil > 0 {
		until := time.UnixMilli(st.LockedUntil)
		p.LockedUntil = &until
	}
	return p
}
