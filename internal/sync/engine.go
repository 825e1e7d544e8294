// Package sync writes reconciled conversation state through to the local
// cache DB so a restarted daemon starts warm.
package sync

import (
	"context"
	"fmt"

	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/logging"
	"github.com/matheus3301/showroom/internal/notify"
	"github.com/matheus3301/showroom/internal/store"
	"go.uber.org/zap"
)

// ActiveTargetKey is the state key holding the last opened target.
const ActiveTargetKey = "active_target"

// Engine handles idempotent ingestion of thread changes into the store.
// It subscribes to message, notify and target events on the bus.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logging.OrNop(logger),
	}
}

// Start subscribes to the bus and ingests until Stop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	msgs, unsubMsgs := e.bus.Subscribe(bus.NamespaceMessage, 256)
	notes, unsubNotes := e.bus.Subscribe(bus.NotifyMessage, 64)
	targets, unsubTargets := e.bus.Subscribe(bus.NamespaceTarget, 16)

	go func() {
		defer close(e.done)
		defer unsubMsgs()
		defer unsubNotes()
		defer unsubTargets()
		for {
			select {
			case evt := <-msgs:
				e.handleEvent(evt)
			case evt := <-notes:
				e.handleEvent(evt)
			case evt := <-targets:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	var err error
	switch p := evt.Payload.(type) {
	case chat.MessageChange:
		err = e.IngestMessage(p.Target, p.Message)
	case chat.MessageRemoval:
		_, err = e.db.DeleteMessages(p.Target.Key(), p.IDs)
	case chat.ThreadReplaced:
		err = e.IngestSnapshot(p.Target, p.Messages)
	case notify.Notification:
		err = e.db.TouchTarget(p.Target.Key(), string(p.Target.Kind), p.Target.Name, p.Message.CreatedAt.UnixMilli(), p.Body, 1)
	case chat.Target:
		if evt.Kind == bus.TargetSwitched {
			err = e.Opened(p)
		}
	case []chat.ChannelPerms:
		err = e.IngestChannels(p)
	default:
		return
	}
	if err != nil {
		e.logger.Error("failed to ingest event", zap.String("kind", evt.Kind), zap.Error(err))
	}
}

// IngestMessage stores one confirmed message (idempotent). Unconfirmed local
// entries are not cached.
func (e *Engine) IngestMessage(t chat.Target, m chat.Message) error {
	if m.ID == "" {
		return nil
	}
	sm := ToStore(t, m)
	if err := e.db.UpsertMessage(&sm); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	if err := e.db.TouchTarget(t.Key(), string(t.Kind), t.Name, sm.CreatedAt, notify.Preview(m, 100), 0); err != nil {
		return fmt.Errorf("touch target: %w", err)
	}
	return nil
}

// IngestSnapshot stores a history snapshot in one transaction.
func (e *Engine) IngestSnapshot(t chat.Target, msgs []chat.Message) error {
	batch := make([]store.Message, 0, len(msgs))
	var last *chat.Message
	for i, m := range msgs {
		if m.ID == "" {
			continue
		}
		batch = append(batch, ToStore(t, m))
		last = &msgs[i]
	}
	n, err := e.db.UpsertMessages(t.Key(), batch)
	if err != nil {
		return fmt.Errorf("ingest snapshot: %w", err)
	}
	if last != nil {
		if err := e.db.TouchTarget(t.Key(), string(t.Kind), t.Name, last.CreatedAt.UnixMilli(), notify.Preview(*last, 100), 0); err != nil {
			return fmt.Errorf("touch target: %w", err)
		}
	}
	e.logger.Debug("snapshot ingested", zap.String("target", t.Key()), zap.Int("messages", n))
	return nil
}

// IngestChannels caches channel metadata.
func (e *Engine) IngestChannels(perms []chat.ChannelPerms) error {
	targets := make([]store.Target, 0, len(perms))
	for _, p := range perms {
		targets = append(targets, TargetToStore(p))
	}
	return e.db.BulkUpsertTargets(targets)
}

// Opened marks t read and remembers it as the active target.
func (e *Engine) Opened(t chat.Target) error {
	if err := e.db.TouchTarget(t.Key(), string(t.Kind), t.Name, 0, "", 0); err != nil {
		return err
	}
	if err := e.db.MarkRead(t.Key()); err != nil {
		return err
	}
	return e.db.SetState(ActiveTargetKey, t.Key())
}

// LastActive returns the target that was open when the daemon last ran.
func LastActive(db *store.DB) (chat.Target, bool) {
	v, err := db.GetState(ActiveTargetKey)
	if err != nil || v == "" {
		return chat.Target{}, false
	}
	t, err := chat.ParseTarget(v)
	if err != nil {
		return chat.Target{}, false
	}
	return t, true
}
