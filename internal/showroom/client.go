package showroom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/logging"
	"github.com/matheus3301/showroom/internal/presence"
	"go.uber.org/zap"
)

// StatusError is a non-2xx response from the web app.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.Code)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the showroom web app API.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	stream *http.Client
	logger *zap.Logger
}

// New creates a client. Streams use a client without a timeout.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q: want scheme://host", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	sc := &http.Client{Transport: hc.Transport}
	return &Client{
		base:   base,
		token:  opts.Token,
		http:   hc,
		stream: sc,
		logger: logging.OrNop(opts.Logger),
	}, nil
}

// User is a search result.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// SendRequest is the body of a message send.
type SendRequest struct {
	Channel     string   `json:"channel,omitempty"`
	DM          string   `json:"dm,omitempty"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments"`
	ClientID    string   `json:"clientId,omitempty"`
}

// NewSendRequest builds a send for target, substituting the placeholder
// text for attachment-only messages.
func NewSendRequest(t chat.Target, text string, attachments []string, clientID string) SendRequest {
	req := SendRequest{
		Text:        chat.WireText(text, attachments),
		Attachments: attachments,
		ClientID:    clientID,
	}
	if req.Attachments == nil {
		req.Attachments = []string{}
	}
	if t.IsDM() {
		req.DM = t.Name
	} else {
		req.Channel = t.Name
	}
	return req
}

func targetQuery(t chat.Target) url.Values {
	q := url.Values{}
	if t.IsDM() {
		q.Set("dm", t.Name)
	} else {
		q.Set("channel", t.Name)
	}
	return q
}

// Channels lists channels with their permissions and lock state.
func (c *Client) Channels(ctx context.Context) ([]chat.ChannelPerms, error) {
	var out []chat.ChannelPerms
	if err := c.do(ctx, "channels", http.MethodGet, "/api/showroom/channels", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History fetches the message snapshot for a target.
func (c *Client) History(ctx context.Context, t chat.Target) ([]chat.Message, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "history", http.MethodGet, "/api/showroom/messages", targetQuery(t), nil, &raw); err != nil {
		return nil, err
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	out := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Message())
	}
	return out, nil
}

// decodeRows accepts a bare array or {"messages": [...]}.
func decodeRows(raw json.RawMessage) ([]chat.Row, error) {
	raw = bytes.TrimSpace(raw)
	var rows []chat.Row
	if len(raw) > 0 && raw[0] == '[' {
		err := json.Unmarshal(raw, &rows)
		return rows, err
	}
	var wrapped struct {
		Messages []chat.Row `json:"messages"`
	}
	err := json.Unmarshal(raw, &wrapped)
	return wrapped.Messages, err
}

// Send posts a message and returns the server's canonical row.
func (c *Client) Send(ctx context.Context, req SendRequest) (chat.Message, error) {
	var row chat.Row
	if err := c.do(ctx, "send", http.MethodPost, "/api/showroom/messages", nil, req, &row); err != nil {
		return chat.Message{}, err
	}
	if row.ID == "" {
		return chat.Message{}, fmt.Errorf("send: response without id")
	}
	return row.Message(), nil
}

// Presence fetches the roster snapshot.
func (c *Client) Presence(ctx context.Context) ([]presence.Raw, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "presence", http.MethodGet, "/api/presence", nil, nil, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	var list []presence.Raw
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("presence: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		Users []presence.Raw `json:"users"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}
	return wrapped.Users, nil
}

// Heartbeat reports our own presence status.
func (c *Client) Heartbeat(ctx context.Context, status presence.Status) error {
	return c.do(ctx, "heartbeat", http.MethodPost, "/api/presence", nil, map[string]string{"status": string(status)}, nil)
}

// Upload stores a file under scope and returns its durable key.
func (c *Client) Upload(ctx context.Context, name string, data []byte, scope string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("path", scope); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", path.Base(name))
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", nil, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out struct {
		Key string `json:"key"`
	}
	if err := c.roundTrip(c.http, "upload", req, &out); err != nil {
		return "", err
	}
	if out.Key == "" {
		return "", fmt.Errorf("upload: response without key")
	}
	return out.Key, nil
}

// Resolve maps storage keys to short-lived URLs. A positive ttl asks the
// server for a fresh signature instead of a cached one.
func (c *Client) Resolve(ctx context.Context, keys []string, ttl time.Duration) (map[string]string, error) {
	body := map[string]any{"keys": keys}
	if ttl > 0 {
		body["ttlSeconds"] = int(ttl.Seconds())
	}
	var out struct {
		URLs map[string]string `json:"urls"`
	}
	if err := c.do(ctx, "resolve", http.MethodPost, "/api/storage/resolve", nil, body, &out); err != nil {
		return nil, err
	}
	return out.URLs, nil
}

// Purge deletes messages from a channel and returns the ids actually deleted.
func (c *Client) Purge(ctx context.Context, channel string, ids []string) ([]string, error) {
	var out struct {
		Deleted []string `json:"deleted"`
	}
	body := map[string]any{"channel": channel, "ids": ids}
	if err := c.do(ctx, "purge", http.MethodPost, "/api/admin/showroom/purge", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Deleted, nil
}

// Lock locks or unlocks a channel. minutes <= 0 locks until unlocked.
func (c *Client) Lock(ctx context.Context, channel string, locked bool, minutes int) error {
	body := map[string]any{"channel": channel, "locked": locked}
	if minutes > 0 {
		body["minutes"] = minutes
	}
	return c.do(ctx, "lock", http.MethodPost, "/api/admin/showroom/lock", nil, body, nil)
}

// Mute silences a user, optionally scoped to a channel and a duration.
func (c *Client) Mute(ctx context.Context, email, channel string, minutes int) error {
	body := map[string]any{"email": email}
	if channel != "" {
		body["channel"] = channel
	}
	if minutes > 0 {
		body["minutes"] = minutes
	}
	return c.do(ctx, "mute", http.MethodPost, "/api/admin/showroom/mute", nil, body, nil)
}

// SearchUsers finds users by name or email fragment.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	q := url.Values{"q": {query}}
	if err := c.do(ctx, "search users", http.MethodGet, "/api/users/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// OpenStream subscribes to live changes for a target.
func (c *Client) OpenStream(ctx context.Context, t chat.Target) (*EventStream, error) {
	return c.openSSE(ctx, "stream", "/api/showroom/stream", targetQuery(t))
}

// OpenPresenceStream subscribes to presence deltas.
func (c *Client) OpenPresenceStream(ctx context.Context) (*EventStream, error) {
	return c.openSSE(ctx, "presence stream", "/api/presence/stream", nil)
}

func (c *Client) openSSE(ctx context.Context, op, p string, q url.Values) (*EventStream, error) {
	req, err := c.newRequest(ctx, http.MethodGet, p, q, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode/100 != 2 {
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError(op, resp)
	}
	c.logger.Debug("stream opened", zap.String("op", op), zap.String("query", q.Encode()))
	return newEventStream(resp.Body), nil
}

func (c *Client) do(ctx context.Context, op, method, p string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, p, q, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.roundTrip(c.http, op, req, out)
}

func (c *Client) newRequest(ctx context.Context, method, p string, q url.Values, body io.Reader) (*http.Request, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + p
	if q != nil {
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) roundTrip(hc *http.Client, op string, req *http.Request, out any) error {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.Debug("api call",
		zap.String("op", op),
		zap.String("method", req.Method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	if resp.StatusCode/100 != 2 {
		return statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(data))
	var wrapped struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &wrapped) == nil && wrapped.Error != "" {
		msg = wrapped.Error
	}
	return &StatusError{Op: op, Code: resp.StatusCode, Body: msg}
}
