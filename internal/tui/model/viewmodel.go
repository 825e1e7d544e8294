package model

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/matheus3301/showroom/internal/attach"
	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/notify"
	"github.com/matheus3301/showroom/internal/presence"
	"github.com/matheus3301/showroom/internal/rpc"
	"github.com/matheus3301/showroom/internal/status"
	"github.com/matheus3301/showroom/internal/tui/ui"
)

// Backend is the slice of the daemon API the TUI uses. *rpc.Client
// implements it.
type Backend interface {
	GetStatus(ctx context.Context) (*rpc.StatusResponse, error)
	ListChannels(ctx context.Context) (*rpc.ChannelsResponse, error)
	SwitchTarget(ctx context.Context, target string) (*rpc.ThreadView, error)
	SendText(ctx context.Context, text string, confirmed bool) (*rpc.SendResponse, error)
	Retry(ctx context.Context, tempID string) (*rpc.MessageResponse, error)
	Search(ctx context.Context, in *rpc.SearchRequest) (*rpc.SearchResponse, error)
	SetFocus(ctx context.Context, focused bool) error
	AddAttachments(ctx context.Context, files []rpc.AttachmentFile) (*rpc.AttachmentsResponse, error)
	ToggleAttachment(ctx context.Context, key string) (*rpc.AttachmentsResponse, error)
	ListAttachments(ctx context.Context) (*rpc.AttachmentsResponse, error)
	RetryAttachment(ctx context.Context, key string) (*rpc.AttachmentsResponse, error)
	ListRoster(ctx context.Context) (*rpc.RosterResponse, error)
	SetStatus(ctx context.Context, status string) error
}

// ViewModel mirrors daemon state for rendering. It is refreshed by RPC
// calls and kept current by Apply as daemon events arrive.
type ViewModel struct {
	mu sync.RWMutex

	backend  Backend
	status   *rpc.StatusResponse
	channels []chat.ChannelPerms
	stale    bool
	dms      []chat.Target
	thread   *rpc.ThreadView
	roster   []presence.Entry
	self     presence.Status
	items    []attach.Item
	unread   map[string]int

	Flash *ui.FlashModel
}

// NewViewModel creates a view model backed by the daemon.
func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{
		backend: b,
		unread:  make(map[string]int),
		Flash:   ui.NewFlashModel(),
	}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.backend.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	return nil
}

// LoadChannels fetches the channel list. A stale list is kept and flagged.
func (vm *ViewModel) LoadChannels(ctx context.Context) error {
	resp, err := vm.backend.ListChannels(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.channels = resp.Channels
	vm.stale = resp.Stale
	vm.mu.Unlock()
	if resp.Stale {
		vm.Flash.Warn("channel list is cached; the server is unreachable")
	}
	return nil
}

// LoadRoster fetches the presence roster.
func (vm *ViewModel) LoadRoster(ctx context.Context) error {
	resp, err := vm.backend.ListRoster(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.roster = resp.Entries
	vm.self = resp.Self
	vm.mu.Unlock()
	return nil
}

// LoadAttachments fetches the attachment tray.
func (vm *ViewModel) LoadAttachments(ctx context.Context) error {
	resp, err := vm.backend.ListAttachments(ctx)
	if err != nil {
		return err
	}
	vm.setItems(resp.Items)
	return nil
}

// Refresh loads everything the first screen needs.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	for _, load := range []func(context.Context) error{vm.LoadStatus, vm.LoadChannels, vm.LoadRoster, vm.LoadAttachments} {
		if err := load(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Open switches the daemon to target. A history warning is flashed but the
// thread still opens.
func (vm *ViewModel) Open(ctx context.Context, target string) (*rpc.ThreadView, error) {
	view, err := vm.backend.SwitchTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.thread = view
	delete(vm.unread, view.Target.Key())
	if view.Target.IsDM() && !slices.Contains(vm.dms, view.Target) {
		vm.dms = append(vm.dms, view.Target)
	}
	vm.mu.Unlock()
	if view.Warning != "" {
		vm.Flash.Warn(view.Warning)
	}
	return view, nil
}

// Send submits composer input. A command needing confirmation is returned
// as is; the caller asks the user and calls Send again with confirmed set.
func (vm *ViewModel) Send(ctx context.Context, text string, confirmed bool) (*rpc.SendResponse, error) {
	resp, err := vm.backend.SendText(ctx, text, confirmed)
	if err != nil {
		return nil, err
	}
	if cmd := resp.Command; cmd != nil && !cmd.NeedsConfirm {
		switch {
		case cmd.Error != "":
			vm.Flash.Err(fmt.Errorf("/%s: %s", cmd.Command, cmd.Error))
		case cmd.Message != "":
			vm.Flash.Info(cmd.Message)
		}
	}
	if resp.Message != nil {
		vm.upsert(chat.MessageChange{Target: vm.Active(), Message: *resp.Message, TempID: resp.Message.TempID})
	}
	return resp, nil
}

// RetryLast re-sends the most recent failed message of the open thread.
func (vm *ViewModel) RetryLast(ctx context.Context) error {
	vm.mu.RLock()
	var tempID string
	if vm.thread != nil {
		for i := len(vm.thread.Messages) - 1; i >= 0; i-- {
			if m := vm.thread.Messages[i]; m.Status == chat.StatusFailed {
				tempID = m.TempID
				break
			}
		}
	}
	vm.mu.RUnlock()
	if tempID == "" {
		return fmt.Errorf("nothing to retry")
	}
	_, err := vm.backend.Retry(ctx, tempID)
	return err
}

// Search queries the local message cache.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]rpc.SearchHit, error) {
	resp, err := vm.backend.Search(ctx, &rpc.SearchRequest{Query: query, Limit: 50})
	if err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// SetFocus tells the daemon whether the open thread is on screen.
func (vm *ViewModel) SetFocus(ctx context.Context, focused bool) error {
	return vm.backend.SetFocus(ctx, focused)
}

// Attach uploads files; per-file rejections are flashed.
func (vm *ViewModel) Attach(ctx context.Context, files []rpc.AttachmentFile) error {
	resp, err := vm.backend.AddAttachments(ctx, files)
	if err != nil {
		return err
	}
	vm.setItems(resp.Items)
	for _, r := range resp.Results {
		if r.Error != "" {
			vm.Flash.Warn(r.Name + ": " + r.Error)
		}
	}
	return nil
}

// ToggleAttachment flips selection of the n-th tray item (1-based).
func (vm *ViewModel) ToggleAttachment(ctx context.Context, n int) error {
	key, err := vm.itemKey(n)
	if err != nil {
		return err
	}
	resp, err := vm.backend.ToggleAttachment(ctx, key)
	if err != nil {
		return err
	}
	vm.setItems(resp.Items)
	return nil
}

// RetryAttachment re-uploads the n-th tray item (1-based).
func (vm *ViewModel) RetryAttachment(ctx context.Context, n int) error {
	key, err := vm.itemKey(n)
	if err != nil {
		return err
	}
	resp, err := vm.backend.RetryAttachment(ctx, key)
	if err != nil {
		return err
	}
	vm.setItems(resp.Items)
	return nil
}

func (vm *ViewModel) itemKey(n int) (string, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if n < 1 || n > len(vm.items) {
		return "", fmt.Errorf("no attachment #%d", n)
	}
	return vm.items[n-1].Key, nil
}

// SetPresence sets our own presence status.
func (vm *ViewModel) SetPresence(ctx context.Context, s string) error {
	if err := vm.backend.SetStatus(ctx, s); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.self = presence.Status(s)
	vm.mu.Unlock()
	return nil
}

// Apply folds one daemon event into the model and reports whether anything
// visible changed. Unknown kinds and undecodable payloads are ignored.
func (vm *ViewModel) Apply(evt *rpc.Event) bool {
	switch evt.Kind {
	case bus.MessageUpserted:
		var ch chat.MessageChange
		if json.Unmarshal(evt.Payload, &ch) != nil {
			return false
		}
		return vm.upsert(ch)
	case bus.MessageRemoved:
		var rm chat.MessageRemoval
		if json.Unmarshal(evt.Payload, &rm) != nil {
			return false
		}
		return vm.remove(rm)
	case bus.MessagesReplaced:
		var rp chat.ThreadReplaced
		if json.Unmarshal(evt.Payload, &rp) != nil {
			return false
		}
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if vm.thread == nil || vm.thread.Target != rp.Target {
			return false
		}
		vm.thread.Messages = rp.Messages
		vm.thread.Loaded = true
		return true
	case bus.TargetPerms:
		var perms []chat.ChannelPerms
		if json.Unmarshal(evt.Payload, &perms) != nil {
			return false
		}
		vm.mergePerms(perms)
		return true
	case bus.PresenceUpdated:
		var entries []presence.Entry
		if json.Unmarshal(evt.Payload, &entries) != nil {
			return false
		}
		vm.mu.Lock()
		vm.roster = entries
		vm.mu.Unlock()
		return true
	case bus.AttachChanged:
		var items []attach.Item
		if json.Unmarshal(evt.Payload, &items) == nil {
			vm.setItems(items)
			return true
		}
		var urls map[string]string
		if json.Unmarshal(evt.Payload, &urls) != nil {
			return false
		}
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if vm.thread == nil {
			return false
		}
		if vm.thread.URLs == nil {
			vm.thread.URLs = make(map[string]string)
		}
		for k, u := range urls {
			vm.thread.URLs[k] = u
		}
		return true
	case bus.AttachShake:
		var name string
		_ = json.Unmarshal(evt.Payload, &name)
		vm.Flash.Warn("too large: " + name)
		return true
	case bus.NotifyToast:
		var t notify.Toast
		if json.Unmarshal(evt.Payload, &t) != nil {
			return false
		}
		vm.Flash.Toast(string(t.Level), t.Text)
		return true
	case bus.NotifyMessage:
		var n notify.Notification
		if json.Unmarshal(evt.Payload, &n) != nil {
			return false
		}
		vm.mu.Lock()
		vm.unread[n.Target.Key()]++
		if n.Target.IsDM() && !slices.Contains(vm.dms, n.Target) {
			vm.dms = append(vm.dms, n.Target)
		}
		vm.mu.Unlock()
		vm.Flash.Info(n.Title + ": " + n.Body)
		return true
	case bus.StreamStatusChanged:
		var sc status.StatusChange
		if json.Unmarshal(evt.Payload, &sc) != nil {
			return false
		}
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if vm.status == nil {
			vm.status = &rpc.StatusResponse{}
		}
		vm.status.State = string(sc.To)
		if sc.To == status.Disconnected && sc.Reason != "" {
			vm.Flash.Warn("live updates lost: " + sc.Reason)
		}
		return true
	}
	return false
}

// upsert places a changed message in the open thread, matching the tempId
// first and the server id second.
func (vm *ViewModel) upsert(ch chat.MessageChange) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.thread == nil || vm.thread.Target != ch.Target {
		return false
	}
	msgs := vm.thread.Messages
	idx := -1
	if ch.TempID != "" {
		idx = slices.IndexFunc(msgs, func(m chat.Message) bool { return m.TempID == ch.TempID })
	}
	if idx < 0 && ch.Message.ID != "" {
		idx = slices.IndexFunc(msgs, func(m chat.Message) bool { return m.ID == ch.Message.ID })
	}
	if idx >= 0 {
		msgs[idx] = ch.Message
	} else {
		vm.thread.Messages = append(msgs, ch.Message)
	}
	return true
}

func (vm *ViewModel) remove(rm chat.MessageRemoval) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.thread == nil || vm.thread.Target != rm.Target {
		return false
	}
	before := len(vm.thread.Messages)
	vm.thread.Messages = slices.DeleteFunc(vm.thread.Messages, func(m chat.Message) bool {
		return m.ID != "" && slices.Contains(rm.IDs, m.ID)
	})
	return len(vm.thread.Messages) != before
}

func (vm *ViewModel) mergePerms(perms []chat.ChannelPerms) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for _, p := range perms {
		i := slices.IndexFunc(vm.channels, func(c chat.ChannelPerms) bool { return c.Slug == p.Slug })
		if i >= 0 {
			vm.channels[i] = p
		} else {
			vm.channels = append(vm.channels, p)
		}
		if vm.thread != nil && vm.thread.Target == chat.Channel(p.Slug) {
			p := p
			vm.thread.Perms = &p
		}
	}
}

func (vm *ViewModel) setItems(items []attach.Item) {
	vm.mu.Lock()
	vm.items = items
	vm.mu.Unlock()
}

// Active returns the open target, zero when none.
func (vm *ViewModel) Active() chat.Target {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.thread == nil {
		return chat.Target{}
	}
	return vm.thread.Target
}

// Thread returns a copy of the open thread, nil when none.
func (vm *ViewModel) Thread() *rpc.ThreadView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.thread == nil {
		return nil
	}
	cp := *vm.thread
	cp.Messages = slices.Clone(vm.thread.Messages)
	return &cp
}

// Status returns the last known daemon status.
func (vm *ViewModel) Status() *rpc.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.status == nil {
		return nil
	}
	cp := *vm.status
	return &cp
}

// TargetRow is one line of the target list.
type TargetRow struct {
	Target   chat.Target
	Title    string
	Locked   bool
	Readable bool
	Unread   int
	Presence presence.Status
}

// Targets lists channels then DMs seen this session.
func (vm *ViewModel) Targets() []TargetRow {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	var id chat.Identity
	if vm.status != nil {
		id = vm.status.Identity
	}
	rows := make([]TargetRow, 0, len(vm.channels)+len(vm.dms))
	for _, c := range vm.channels {
		t := chat.Channel(c.Slug)
		rows = append(rows, TargetRow{
			Target:   t,
			Title:    c.Title,
			Locked:   c.Locked || c.LockedUntil != nil,
			Readable: c.CanRead(id),
			Unread:   vm.unread[t.Key()],
		})
	}
	for _, t := range vm.dms {
		row := TargetRow{Target: t, Readable: true, Unread: vm.unread[t.Key()], Presence: presence.Offline}
		for _, e := range vm.roster {
			if strings.EqualFold(e.Email, t.Name) {
				row.Title = e.Name
				row.Presence = e.Status
				break
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Stale reports whether the channel list came from the local cache.
func (vm *ViewModel) Stale() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.stale
}

// Roster returns the presence entries and our own status.
func (vm *ViewModel) Roster() ([]presence.Entry, presence.Status) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.roster), vm.self
}

// Attachments returns the tray.
func (vm *ViewModel) Attachments() []attach.Item {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.items)
}
