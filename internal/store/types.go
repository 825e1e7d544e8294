package store

// Target is a cached channel or DM conversation.
type Target struct {
	Key                string
	Kind               string // channel, dm
	Name               string
	Title              string
	ReadRole           string
	ReadPlan           string
	Locked             bool
	LockedUntil        int64 // unix ms, 0 when unset
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message is a server-confirmed message cached for a target.
type Message struct {
	Seq         int64
	TargetKey   string
	ID          string
	ClientID    string
	Text        string
	UserName    string
	UserEmail   string
	CreatedAt   int64 // unix ms
	Attachments []string
}

// OutboxEntry is a queued outgoing message.
type OutboxEntry struct {
	Seq         int64
	TempID      string
	TargetKey   string
	Text        string
	Attachments []string
	Status      string // queued, sending, sent, failed
	Error       string
	ServerID    string
}

// Outbox statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// RosterEntry is a persisted presence roster row.
type RosterEntry struct {
	Email       string
	Name        string
	Image       string
	Role        string
	Plan        string
	RawStatus   string
	UpdatedAtMs int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
