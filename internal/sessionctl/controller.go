// Package sessionctl owns the open conversation: which channel or DM is
// active, its message list, the live connection feeding it, and the send
// path from composer to outbox.
package sessionctl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/showroom/internal/attach"
	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/logging"
	"github.com/matheus3301/showroom/internal/notify"
	"github.com/matheus3301/showroom/internal/outbox"
	"github.com/matheus3301/showroom/internal/slash"
	"github.com/matheus3301/showroom/internal/store"
	"github.com/matheus3301/showroom/internal/stream"
	cachesync "github.com/matheus3301/showroom/internal/sync"
	"go.uber.org/zap"
)

var (
	ErrNoTarget  = errors.New("no active target")
	ErrLocked    = errors.New("channel is locked")
	ErrForbidden = errors.New("channel is not readable with your role or plan")
	ErrEmpty     = errors.New("nothing to send")
	ErrNotFound  = errors.New("message not found")
)

// API is the part of the showroom API the controller reads from.
type API interface {
	Channels(ctx context.Context) ([]chat.ChannelPerms, error)
	History(ctx context.Context, t chat.Target) ([]chat.Message, error)
}

// Queue accepts outgoing messages.
type Queue interface {
	Enqueue(tempID string, t chat.Target, text string, attachments []string) error
}

// Dialer opens the live event connection for a target.
type Dialer func(ctx context.Context, t chat.Target) (stream.Source, error)

// Deps are the controller's collaborators. DB, Attachments, Moderator and
// Roster are optional.
type Deps struct {
	Identity    chat.Identity
	API         API
	Dial        Dialer
	Queue       Queue
	Loop        *stream.Loop
	Attachments *attach.Pipeline
	Moderator   slash.Moderator
	Roster      slash.Roster
	Notifier    *notify.Notifier
	DB          *store.DB
	Bus         *bus.Bus
	Logger      *zap.Logger
}

// Controller is the channel/DM session controller.
type Controller struct {
	id       chat.Identity
	api      API
	dial     Dialer
	queue    Queue
	loop     *stream.Loop
	atts     *attach.Pipeline
	slash    *slash.Interpreter
	notifier *notify.Notifier
	db       *store.DB
	bus      *bus.Bus
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	active  chat.Target
	threads map[string]*chat.Thread
	perms   map[string]chat.ChannelPerms
	// sending maps a temp id to the attachment keys claimed for it.
	sending map[string][]string
}

// New creates a controller. Call Start before switching targets.
func New(d Deps) *Controller {
	logger := logging.OrNop(d.Logger).Named("session")
	n := d.Notifier
	if n == nil {
		n = notify.New(d.Identity.Email, nil, d.Bus)
	}
	c := &Controller{
		id:       d.Identity,
		api:      d.API,
		dial:     d.Dial,
		queue:    d.Queue,
		loop:     d.Loop,
		atts:     d.Attachments,
		notifier: n,
		db:       d.DB,
		bus:      d.Bus,
		logger:   logger,
		now:      time.Now,
		ctx:      context.Background(),
		threads:  make(map[string]*chat.Thread),
		perms:    make(map[string]chat.ChannelPerms),
		sending:  make(map[string][]string),
	}
	if c.loop == nil {
		c.loop = stream.NewLoop(stream.DefaultConfig(), nil, logger)
	}
	if d.Moderator != nil {
		c.slash = slash.New(d.Identity, d.Moderator, c, d.Roster, logger)
	}
	return c
}

// Start begins reconciling outbox results. Live connections opened later
// live as long as ctx.
func (c *Controller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	acks, unsub := c.bus.Subscribe("message.send_", 64)
	c.mu.Lock()
	c.ctx, c.cancel = ctx, cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case evt := <-acks:
				switch p := evt.Payload.(type) {
				case outbox.Ack:
					c.onAck(p)
				case outbox.Failure:
					c.onFailure(p)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop closes the live connection and stops reconciling.
func (c *Controller) Stop() {
	c.loop.Close()
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Identity returns who the controller acts as.
func (c *Controller) Identity() chat.Identity {
	return c.id
}

// Active returns the open target.
func (c *Controller) Active() chat.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// View is what a client needs to render one conversation.
type View struct {
	Target   chat.Target        `json:"target"`
	Messages []chat.Message     `json:"messages"`
	Perms    *chat.ChannelPerms `json:"perms,omitempty"`
	CanSend  bool               `json:"canSend"`
	Reason   string             `json:"reason,omitempty"`
	Loaded   bool               `json:"loaded"`
}

// SwitchTarget makes t the active conversation. History is fetched only when
// nothing is loaded for t yet; the previous live connection is closed and a
// new one opened. A failed history fetch leaves t active and is returned
// alongside whatever the thread already holds.
func (c *Controller) SwitchTarget(ctx context.Context, t chat.Target) (View, error) {
	if t.IsZero() {
		return View{}, ErrNoTarget
	}
	c.mu.Lock()
	if p, ok := c.perms[t.Name]; ok && t.IsChannel() && !p.CanRead(c.id) {
		c.mu.Unlock()
		return View{}, fmt.Errorf("%s: %w", t, ErrForbidden)
	}
	c.active = t
	th := c.threadLocked(t)
	needHistory := !th.Loaded
	loopCtx := c.ctx
	c.mu.Unlock()

	c.notifier.SetActive(t)
	c.bus.Emit(bus.TargetSwitched, t)
	c.logger.Info("target switched", zap.String("target", t.Key()), zap.Bool("fetch_history", needHistory))

	if c.dial != nil {
		c.loop.Switch(loopCtx, t.Key(), func(ctx context.Context) (stream.Source, error) {
			return c.dial(ctx, t)
		}, c.handler(t))
	}

	var histErr error
	if needHistory {
		histErr = c.loadHistory(ctx, t)
	}
	return c.View(t), histErr
}

func (c *Controller) loadHistory(ctx context.Context, t chat.Target) error {
	snapshot, err := c.api.History(ctx, t)
	if err != nil {
		c.logger.Warn("history fetch failed", zap.String("target", t.Key()), zap.Error(err))
		c.fallbackToCache(t)
		return fmt.Errorf("history %s: %w", t, err)
	}
	// Applied even if the user switched away meanwhile; threads are per target.
	c.mu.Lock()
	th := c.threadLocked(t)
	th.LoadSnapshot(snapshot)
	msgs := th.Snapshot()
	c.mu.Unlock()
	c.bus.Emit(bus.MessagesReplaced, chat.ThreadReplaced{Target: t, Messages: msgs})
	return nil
}

// fallbackToCache shows cached history when the server cannot be reached.
// The thread stays unloaded so the next switch fetches again.
func (c *Controller) fallbackToCache(t chat.Target) {
	if c.db == nil {
		return
	}
	cached, err := cachesync.Cached(c.db, t, 200)
	if err != nil || len(cached) == 0 {
		return
	}
	c.mu.Lock()
	th := c.threadLocked(t)
	if len(th.Messages) == 0 {
		th.Messages = cached
	}
	c.mu.Unlock()
}

func (c *Controller) threadLocked(t chat.Target) *chat.Thread {
	th, ok := c.threads[t.Key()]
	if !ok {
		th = chat.NewThread(t)
		c.threads[t.Key()] = th
	}
	return th
}

func (c *Controller) handler(t chat.Target) stream.Handler {
	return func(data []byte) {
		evt, err := chat.ParseEvent(data)
		if err != nil {
			c.logger.Debug("dropping malformed event", zap.String("target", t.Key()), zap.Error(err))
			return
		}
		c.ApplyEvent(t, evt)
	}
}

// ApplyEvent reconciles one live event into t's thread.
func (c *Controller) ApplyEvent(t chat.Target, evt chat.Event) chat.Outcome {
	c.mu.Lock()
	out := c.threadLocked(t).Apply(evt)
	c.mu.Unlock()

	switch out.Kind {
	case chat.Removed:
		c.bus.Emit(bus.MessageRemoved, chat.MessageRemoval{Target: t, IDs: []string{out.Message.ID}})
	case chat.Confirmed, chat.Merged:
		c.bus.Emit(bus.MessageUpserted, chat.MessageChange{Target: t, Message: out.Message, Kind: out.Kind, TempID: out.TempID})
	case chat.Appended:
		c.bus.Emit(bus.MessageUpserted, chat.MessageChange{Target: t, Message: out.Message, Kind: out.Kind})
		c.notifier.Message(t, out.Message)
	}
	return out
}

// Messages returns a copy of t's message list.
func (c *Controller) Messages(t chat.Target) []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	th, ok := c.threads[t.Key()]
	if !ok {
		return nil
	}
	return th.Snapshot()
}

// View returns the render state of t.
func (c *Controller) View(t chat.Target) View {
	c.mu.Lock()
	v := View{Target: t}
	if th, ok := c.threads[t.Key()]; ok {
		v.Messages = th.Snapshot()
		v.Loaded = th.Loaded
	}
	if p, ok := c.perms[t.Name]; ok && t.IsChannel() {
		v.Perms = &p
	}
	c.mu.Unlock()
	v.CanSend, v.Reason = c.CanSend(t)
	return v
}

// CanSend reports whether the viewer may post to t. Locked channels block
// non-admins; admins bypass locks.
func (c *Controller) CanSend(t chat.Target) (bool, string) {
	if t.IsZero() {
		return false, ErrNoTarget.Error()
	}
	if !t.IsChannel() || c.id.IsAdmin() {
		return true, ""
	}
	c.mu.Lock()
	p, ok := c.perms[t.Name]
	c.mu.Unlock()
	if ok && p.IsLocked(c.now()) {
		if p.LockedUntil != nil && !p.Locked {
			return false, fmt.Sprintf("locked until %s", p.LockedUntil.Local().Format("15:04"))
		}
		return false, "locked"
	}
	return true, ""
}

// Channels refreshes the channel list. When the server is unreachable the
// cached list is returned with the error.
func (c *Controller) Channels(ctx context.Context) ([]chat.ChannelPerms, error) {
	perms, err := c.api.Channels(ctx)
	if err != nil {
		return c.cachedChannels(), fmt.Errorf("list channels: %w", err)
	}
	c.mu.Lock()
	for _, p := range perms {
		c.perms[p.Slug] = p
	}
	c.mu.Unlock()
	c.bus.Emit(bus.TargetPerms, perms)
	return perms, nil
}

func (c *Controller) cachedChannels() []chat.ChannelPerms {
	c.mu.Lock()
	out := make([]chat.ChannelPerms, 0, len(c.perms))
	for _, p := range c.perms {
		out = append(out, p)
	}
	c.mu.Unlock()
	if len(out) == 0 && c.db != nil {
		if targets, err := c.db.ListTargets(); err == nil {
			for _, st := range targets {
				if st.Kind == string(chat.KindChannel) {
					out = append(out, cachesync.PermsFromStore(st))
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Focus records whether the UI has focus, for notification suppression.
func (c *Controller) Focus(focused bool) {
	c.notifier.SetFocused(focused)
}

// Attachments returns the attachment pipeline, or nil.
func (c *Controller) Attachments() *attach.Pipeline {
	return c.atts
}

// Search runs a full-text query over cached messages; an empty target
// searches everything.
func (c *Controller) Search(query string, t chat.Target, limit int) ([]store.SearchResult, error) {
	if c.db == nil {
		return nil, errors.New("search needs the local cache")
	}
	key := ""
	if !t.IsZero() {
		key = t.Key()
	}
	return c.db.SearchMessages(query, key, limit)
}

// SendRequest is one composer submission.
type SendRequest struct {
	Text string `json:"text"`
	// Confirmed resubmits a slash command that asked for confirmation.
	Confirmed bool `json:"confirmed,omitempty"`
}

// CommandResult is the outcome of a slash command.
type CommandResult struct {
	Command      string `json:"command"`
	Message      string `json:"message,omitempty"`
	NeedsConfirm bool   `json:"needsConfirm,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SendResult reports what a submission turned into.
type SendResult struct {
	Command *CommandResult `json:"command,omitempty"`
	Message *chat.Message  `json:"message,omitempty"`
}

// Send submits composer input to the active target. Slash commands are tried
// first; anything else is inserted optimistically and queued.
func (c *Controller) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	t := c.Active()
	if t.IsZero() {
		return SendResult{}, ErrNoTarget
	}
	if c.slash != nil {
		res := c.slash.Handle(ctx, slash.Request{Input: req.Text, Target: t, Confirmed: req.Confirmed})
		if res.Handled {
			cr := CommandResult{Command: res.Command, Message: res.Message, NeedsConfirm: res.NeedsConfirm}
			if res.Err != nil {
				cr.Error = res.Err.Error()
				c.notifier.Toast(notify.LevelError, "/%s: %v", res.Command, res.Err)
			}
			return SendResult{Command: &cr}, nil
		}
	}
	if ok, reason := c.CanSend(t); !ok {
		return SendResult{}, fmt.Errorf("%s: %w (%s)", t, ErrLocked, reason)
	}

	text := chat.NormalizeText(req.Text)
	var keys []string
	if c.atts != nil {
		keys = c.atts.Take(chat.MaxAttachments)
	}
	if text == "" && len(keys) == 0 {
		return SendResult{}, ErrEmpty
	}

	msg := chat.Message{
		TempID:      uuid.NewString(),
		Text:        text,
		UserName:    c.id.Name,
		UserEmail:   c.id.Email,
		CreatedAt:   c.now(),
		Status:      chat.StatusPending,
		Attachments: keys,
	}
	c.mu.Lock()
	c.threadLocked(t).AddPending(msg)
	if len(keys) > 0 {
		c.sending[msg.TempID] = keys
	}
	c.mu.Unlock()
	c.bus.Emit(bus.MessageUpserted, chat.MessageChange{Target: t, Message: msg, Kind: chat.Appended, TempID: msg.TempID})

	if err := c.queue.Enqueue(msg.TempID, t, text, keys); err != nil {
		c.onFailure(outbox.Failure{TempID: msg.TempID, Target: t, Error: err.Error()})
		return SendResult{}, fmt.Errorf("queue send: %w", err)
	}
	return SendResult{Message: &msg}, nil
}

// Retry resubmits a failed message with its original temp id and text.
func (c *Controller) Retry(_ context.Context, tempID string) (chat.Message, error) {
	c.mu.Lock()
	var (
		msg chat.Message
		t   chat.Target
		ok  bool
	)
	for _, th := range c.threads {
		if msg, ok = th.Retry(tempID); ok {
			t = th.Target
			break
		}
	}
	c.mu.Unlock()
	if !ok {
		return chat.Message{}, fmt.Errorf("retry %s: %w", tempID, ErrNotFound)
	}
	c.bus.Emit(bus.MessageUpserted, chat.MessageChange{Target: t, Message: msg, Kind: chat.Merged, TempID: tempID})
	if err := c.queue.Enqueue(tempID, t, msg.Text, msg.Attachments); err != nil {
		c.onFailure(outbox.Failure{TempID: tempID, Target: t, Error: err.Error()})
		return chat.Message{}, fmt.Errorf("queue retry: %w", err)
	}
	return msg, nil
}

func (c *Controller) onAck(a outbox.Ack) {
	c.mu.Lock()
	th := c.threadLocked(a.Target)
	ok := th.Confirm(a.TempID, a.Message)
	keys := c.sending[a.TempID]
	delete(c.sending, a.TempID)
	c.mu.Unlock()

	c.finalize(keys)
	if !ok {
		c.logger.Debug("send ack for a message no longer listed", zap.String("temp_id", a.TempID))
		return
	}
	confirmed := a.Message
	confirmed.Text = chat.NormalizeText(confirmed.Text)
	confirmed.Status = chat.StatusSent
	c.bus.Emit(bus.MessageUpserted, chat.MessageChange{Target: a.Target, Message: confirmed, Kind: chat.Confirmed, TempID: a.TempID})
}

func (c *Controller) onFailure(f outbox.Failure) {
	c.mu.Lock()
	th := c.threadLocked(f.Target)
	th.Fail(f.TempID)
	var failed chat.Message
	for _, m := range th.Messages {
		if m.TempID == f.TempID {
			failed = m
		}
	}
	keys := c.sending[f.TempID]
	delete(c.sending, f.TempID)
	c.mu.Unlock()

	c.finalize(keys)
	c.bus.Emit(bus.MessageUpserted, chat.MessageChange{Target: f.Target, Message: failed, Kind: chat.Merged, TempID: f.TempID})
	c.notifier.Toast(notify.LevelError, "message to %s failed: %s", f.Target, f.Error)
}

func (c *Controller) finalize(keys []string) {
	if c.atts != nil && len(keys) > 0 {
		c.atts.Finalize(keys)
	}
}

// RecentConfirmed returns up to n of t's newest confirmed messages.
func (c *Controller) RecentConfirmed(t chat.Target, n int) []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	th, ok := c.threads[t.Key()]
	if !ok {
		return nil
	}
	return chat.RecentConfirmed(th.Messages, n)
}

// RemoveMessages drops ids from t optimistically.
func (c *Controller) RemoveMessages(t chat.Target, ids []string) []chat.Message {
	c.mu.Lock()
	removed := c.threadLocked(t).Remove(ids)
	c.mu.Unlock()
	if len(removed) > 0 {
		gone := make([]string, len(removed))
		for i, m := range removed {
			gone[i] = m.ID
		}
		c.bus.Emit(bus.MessageRemoved, chat.MessageRemoval{Target: t, IDs: gone})
	}
	return removed
}

// RestoreMessages puts back messages a failed moderation action removed.
func (c *Controller) RestoreMessages(t chat.Target, msgs []chat.Message) {
	if len(msgs) == 0 {
		return
	}
	c.mu.Lock()
	th := c.threadLocked(t)
	th.Restore(msgs)
	all := th.Snapshot()
	c.mu.Unlock()
	c.bus.Emit(bus.MessagesReplaced, chat.ThreadReplaced{Target: t, Messages: all})
}

// SetLocked updates the local lock state of a channel.
func (c *Controller) SetLocked(t chat.Target, locked bool, until *time.Time) {
	c.mu.Lock()
	p, ok := c.perms[t.Name]
	if !ok {
		p = chat.ChannelPerms{Slug: t.Name}
	}
	p.Locked = locked && until == nil
	p.LockedUntil = until
	if !locked {
		p.LockedUntil = nil
	}
	c.perms[t.Name] = p
	c.mu.Unlock()
	c.bus.Emit(bus.TargetPerms, []chat.ChannelPerms{p})
}

// Resume reopens the target that was active when the daemon last ran.
func (c *Controller) Resume(ctx context.Context) (chat.Target, bool) {
	if c.db == nil {
		return chat.Target{}, false
	}
	t, ok := cachesync.LastActive(c.db)
	if !ok {
		return chat.Target{}, false
	}
	if _, err := c.SwitchTarget(ctx, t); err != nil {
		c.logger.Warn("resume last target", zap.String("target", t.Key()), zap.Error(err))
	}
	return t, true
}
