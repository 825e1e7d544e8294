package rpc

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/showroom/internal/attach"
	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/presence"
)

// StatusResponse describes the daemon and its live connection.
type StatusResponse struct {
	Profile      string        `json:"profile"`
	Identity     chat.Identity `json:"identity"`
	State        string        `json:"state"`
	StateSince   time.Time     `json:"stateSince"`
	Failures     int           `json:"failures"`
	Target       string        `json:"target,omitempty"`
	UptimeMs     int64         `json:"uptimeMs"`
	TargetCount  int64         `json:"targetCount"`
	MessageCount int64         `json:"messageCount"`
	Presence     string        `json:"presence"`
}

type ChannelsResponse struct {
	Channels []chat.ChannelPerms `json:"channels"`
	// Stale is set when the server was unreachable and the list is cached.
	Stale bool `json:"stale,omitempty"`
}

// TargetRequest names a conversation in any form chat.ParseTarget accepts.
// An empty target means the active one.
type TargetRequest struct {
	Target string `json:"target,omitempty"`
}

// ThreadView is one conversation as a client renders it.
type ThreadView struct {
	Target   chat.Target        `json:"target"`
	Messages []chat.Message     `json:"messages"`
	Perms    *chat.ChannelPerms `json:"perms,omitempty"`
	CanSend  bool               `json:"canSend"`
	Reason   string             `json:"reason,omitempty"`
	Loaded   bool               `json:"loaded"`
	// URLs maps attachment keys of the listed messages to signed URLs.
	URLs map[string]string `json:"urls,omitempty"`
	// Warning carries a non-fatal error such as a failed history fetch.
	Warning string `json:"warning,omitempty"`
}

type SendRequest struct {
	Text      string `json:"text"`
	Confirmed bool   `json:"confirmed,omitempty"`
}

type CommandResult struct {
	Command      string `json:"command"`
	Message      string `json:"message,omitempty"`
	NeedsConfirm bool   `json:"needsConfirm,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SendResponse holds either the optimistic message or a command outcome.
type SendResponse struct {
	Command *CommandResult `json:"command,omitempty"`
	Message *chat.Message  `json:"message,omitempty"`
}

type RetryRequest struct {
	TempID string `json:"tempId"`
}

type MessageResponse struct {
	Message chat.Message `json:"message"`
}

type SearchRequest struct {
	Query  string `json:"query"`
	Target string `json:"target,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type SearchHit struct {
	Target  string       `json:"target"`
	Message chat.Message `json:"message"`
	Snippet string       `json:"snippet"`
}

type SearchResponse struct {
	Hits []SearchHit `json:"hits"`
}

type FocusRequest struct {
	Focused bool `json:"focused"`
}

// AttachmentFile is a file picked on the client side.
type AttachmentFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

type AddAttachmentsRequest struct {
	Files []AttachmentFile `json:"files"`
}

type AttachmentResult struct {
	Name  string `json:"name"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error,omitempty"`
	Shake bool   `json:"shake,omitempty"`
}

type AttachmentsResponse struct {
	Results []AttachmentResult `json:"results,omitempty"`
	Items   []attach.Item      `json:"items"`
}

type KeyRequest struct {
	Key string `json:"key"`
}

// ResolveRequest asks for signed URLs. Invalidate forces a fresh signature,
// for URLs that failed to load.
type ResolveRequest struct {
	Keys       []string `json:"keys"`
	Invalidate bool     `json:"invalidate,omitempty"`
}

type ResolveResponse struct {
	URLs map[string]string `json:"urls"`
}

// WatchRequest selects bus namespaces; empty means all.
type WatchRequest struct {
	Namespaces []string `json:"namespaces,omitempty"`
}

// Event is one bus event streamed to a client.
type Event struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	OccurredAtMs int64           `json:"occurredAtMs"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

type RosterResponse struct {
	Self    presence.Status  `json:"self"`
	Entries []presence.Entry `json:"entries"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}
