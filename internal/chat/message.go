package chat

import (
	"slices"
	"strings"
	"time"
)

// Status is the delivery state of a message as seen by this client.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// MaxAttachments is the most attachment keys one message may carry.
const MaxAttachments = 6

// Placeholder is sent as the text of attachment-only messages.
const Placeholder = "\u200b"

// Message is one chat message. A server-confirmed message has an ID; an
// optimistic local one has only a TempID until the server echoes it back.
type Message struct {
	ID          string    `json:"id,omitempty"`
	TempID      string    `json:"tempId,omitempty"`
	ClientID    string    `json:"clientId,omitempty"`
	Text        string    `json:"text"`
	UserName    string    `json:"userName,omitempty"`
	UserEmail   string    `json:"userEmail"`
	CreatedAt   time.Time `json:"created_at"`
	Status      Status    `json:"status,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
}

// Confirmed reports whether the server has assigned this message an id.
func (m Message) Confirmed() bool {
	return m.ID != ""
}

// Empty reports whether there is nothing to render.
func (m Message) Empty() bool {
	return m.Text == "" && len(m.Attachments) == 0
}

// From reports whether email sent this message, case-insensitively.
func (m Message) From(email string) bool {
	return email != "" && strings.EqualFold(m.UserEmail, email)
}

// NormalizeText strips zero-width characters used as placeholders and trims
// surrounding whitespace.
func NormalizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// WireText is the text to submit for a message: the placeholder when only
// attachments are being sent.
func WireText(text string, attachments []string) string {
	if NormalizeText(text) == "" && len(attachments) > 0 {
		return Placeholder
	}
	return text
}

func sameAttachments(a, b []string) bool {
	return slices.Equal(a, b)
}

// Identity is the signed-in viewer.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Plan  string `json:"plan,omitempty"`
}

// IsAdmin reports whether the identity may moderate channels.
func (i Identity) IsAdmin() bool {
	return i.Role == "admin"
}

// Is reports whether email belongs to this identity.
func (i Identity) Is(email string) bool {
	return i.Email != "" && strings.EqualFold(i.Email, email)
}
