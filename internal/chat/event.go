package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Action is the kind of change a live event describes.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ErrMalformed marks payloads that cannot be turned into an Event.
var ErrMalformed = errors.New("malformed event")

// Event is one change on a conversation's live stream.
type Event struct {
	Action Action
	Before *Row
	After  *Row
}

// ID returns the affected message id, preferring the after image.
func (e Event) ID() string {
	if e.After != nil && e.After.ID != "" {
		return e.After.ID
	}
	if e.Before != nil {
		return e.Before.ID
	}
	return ""
}

// Row is a message row as the server sends it. Decoding accepts the field
// spellings seen across history, stream and send responses.
type Row struct {
	ID          string
	ClientID    string
	Text        string
	UserName    string
	UserEmail   string
	CreatedAt   time.Time
	Attachments []string
}

// Message converts the row into a confirmed message with normalized text.
func (r Row) Message() Message {
	return Message{
		ID:          r.ID,
		ClientID:    r.ClientID,
		Text:        NormalizeText(r.Text),
		UserName:    r.UserName,
		UserEmail:   r.UserEmail,
		CreatedAt:   r.CreatedAt,
		Status:      StatusSent,
		Attachments: r.Attachments,
	}
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	r.ID = firstString(fields, "id", "_id")
	r.ClientID = firstString(fields, "clientId", "client_id", "tempId")
	r.Text = firstString(fields, "text", "message", "content")
	r.UserName = firstString(fields, "userName", "user_name", "name")
	r.UserEmail = firstString(fields, "userEmail", "user_email", "email")
	r.CreatedAt = firstTime(fields, "created_at", "createdAt", "timestamp")
	if raw, ok := fields["attachments"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &r.Attachments); err != nil {
			return fmt.Errorf("attachments: %w", err)
		}
	}
	return nil
}

func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":          r.ID,
		"clientId":    r.ClientID,
		"text":        r.Text,
		"userName":    r.UserName,
		"userEmail":   r.UserEmail,
		"created_at":  r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"attachments": r.Attachments,
	})
}

// RowFromMessage is the inverse of Row.Message, used by servers.
func RowFromMessage(m Message) Row {
	return Row{
		ID:          m.ID,
		ClientID:    m.ClientID,
		Text:        m.Text,
		UserName:    m.UserName,
		UserEmail:   m.UserEmail,
		CreatedAt:   m.CreatedAt,
		Attachments: m.Attachments,
	}
}

type envelope struct {
	Action string          `json:"action"`
	Type   string          `json:"type"`
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Result json.RawMessage `json:"result"`
	Record json.RawMessage `json:"record"`
	ID     json.RawMessage `json:"id"`
}

// ParseEvent decodes a live stream payload. It accepts {action, before,
// after}, live-query style {action, result} where result may be an array,
// and a bare row, which is treated as an insert. A bare row's type field is
// only read as an action when it names one.
func ParseEvent(data []byte) (Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return Event{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	action := normalizeAction(env.Action)
	if action == "" {
		action = normalizeAction(env.Type)
	}

	var evt Event
	var err error
	if evt.Before, err = decodeRow(env.Before); err != nil {
		return Event{}, fmt.Errorf("%w: before: %v", ErrMalformed, err)
	}
	for _, raw := range []json.RawMessage{env.After, env.Result, env.Record} {
		if evt.After, err = decodeRow(raw); err != nil {
			return Event{}, fmt.Errorf("%w: after: %v", ErrMalformed, err)
		}
		if evt.After != nil {
			break
		}
	}

	if action == "" {
		bare := evt.After == nil && evt.Before == nil
		// A bare row may carry its own type field, such as "text".
		if env.Action != "" || (env.Type != "" && !bare) {
			return Event{}, fmt.Errorf("%w: unknown action %q", ErrMalformed, env.Action+env.Type)
		}
		if bare {
			row, err := decodeRow(data)
			if err != nil || row == nil || row.ID == "" {
				return Event{}, fmt.Errorf("%w: no action and no row", ErrMalformed)
			}
			evt.After = row
		}
		action = ActionInsert
	}
	evt.Action = action

	if action == ActionDelete && evt.ID() == "" {
		if id := rawString(env.ID); id != "" {
			evt.Before = &Row{ID: id}
		}
	}

	switch action {
	case ActionDelete:
		if evt.ID() == "" {
			return Event{}, fmt.Errorf("%w: delete without id", ErrMalformed)
		}
	default:
		if evt.After == nil {
			return Event{}, fmt.Errorf("%w: %s without row", ErrMalformed, action)
		}
	}
	return evt, nil
}

func normalizeAction(s string) Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "insert", "create", "created":
		return ActionInsert
	case "update", "updated", "modify":
		return ActionUpdate
	case "delete", "deleted", "remove":
		return ActionDelete
	}
	return ""
}

// decodeRow accepts an object or an array whose first object element is the row.
func decodeRow(raw json.RawMessage) (*Row, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) > 0 && item[0] == '{' {
				return decodeRow(item)
			}
		}
		return nil, nil
	case '{':
		var row Row
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, err
		}
		return &row, nil
	case '"':
		// Some deletes carry only the record id.
		if id := rawString(raw); id != "" {
			return &Row{ID: id}, nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected row %s", raw)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if v := rawString(fields[k]); v != "" {
			return v
		}
	}
	return ""
}

// rawString reads a JSON string or number as a string.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstTime(fields map[string]json.RawMessage, keys ...string) time.Time {
	for _, k := range keys {
		if t, ok := ParseTimestamp(rawString(fields[k])); ok {
			return t
		}
	}
	return time.Time{}
}

// ParseTimestamp reads an RFC 3339 string or epoch milliseconds.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.UnixMilli(int64(f)), true
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
