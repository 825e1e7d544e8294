package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/logging"
	"github.com/matheus3301/showroom/internal/showroom"
	"github.com/matheus3301/showroom/internal/store"
	"go.uber.org/zap"
)

// MessageSender posts a message to the showroom API.
type MessageSender interface {
	Send(ctx context.Context, req showroom.SendRequest) (chat.Message, error)
}

// Ack is the payload of bus.MessageSendAck.
type Ack struct {
	TempID  string       `json:"tempId"`
	Target  chat.Target  `json:"target"`
	Message chat.Message `json:"message"`
}

// Failure is the payload of bus.MessageSendFailed.
type Failure struct {
	TempID      string      `json:"tempId"`
	Target      chat.Target `json:"target"`
	Attachments []string    `json:"attachments,omitempty"`
	Error       string      `json:"error"`
}

// DefaultInterval is how often the outbox is polled when nobody kicks it.
const DefaultInterval = 500 * time.Millisecond

// Sender drains the outbox and posts messages to the showroom API.
type Sender struct {
	db       *store.DB
	sender   MessageSender
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	kick     chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender MessageSender, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:       db,
		sender:   sender,
		bus:      b,
		logger:   logging.OrNop(logger),
		interval: DefaultInterval,
		kick:     make(chan struct{}, 1),
	}
}

// Enqueue persists a send and wakes the drain loop. Enqueuing a temp id that
// already failed queues it again.
func (s *Sender) Enqueue(tempID string, t chat.Target, text string, attachments []string) error {
	if err := s.db.QueueOutbox(tempID, t.Key(), text, attachments); err != nil {
		return fmt.Errorf("queue outbox: %w", err)
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
	return nil
}

// Start recovers sends interrupted by a previous run and begins draining.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.RequeueSending(); err != nil {
		s.logger.Error("failed to recover outbox", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("outbox recovered interrupted sends", zap.Int64("count", n))
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for an in-flight send to settle.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessPending(ctx)
		case <-s.kick:
			s.ProcessPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessPending sends every queued entry once.
func (s *Sender) ProcessPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		claimed, err := s.db.MarkOutboxSending(entry.TempID)
		if err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("temp_id", entry.TempID))
			continue
		}
		if !claimed {
			continue
		}
		s.send(ctx, entry)
	}
}

func (s *Sender) send(ctx context.Context, entry store.OutboxEntry) {
	target, err := chat.ParseTarget(entry.TargetKey)
	if err != nil {
		s.fail(entry, chat.Target{}, fmt.Errorf("bad target %q: %w", entry.TargetKey, err))
		return
	}

	req := showroom.NewSendRequest(target, entry.Text, entry.Attachments, entry.TempID)
	msg, err := s.sender.Send(ctx, req)
	if err != nil && ctx.Err() != nil {
		// Shutting down; the entry stays 'sending' and is requeued on start.
		s.logger.Info("send interrupted", zap.String("temp_id", entry.TempID))
		return
	}
	if err != nil {
		s.fail(entry, target, err)
		return
	}

	if err := s.db.MarkOutboxSent(entry.TempID, msg.ID); err != nil {
		s.logger.Error("failed to mark sent", zap.Error(err), zap.String("temp_id", entry.TempID))
	}
	s.logger.Info("message sent",
		zap.String("temp_id", entry.TempID),
		zap.String("server_id", msg.ID),
		zap.String("target", target.Key()))
	s.bus.Emit(bus.MessageSendAck, Ack{TempID: entry.TempID, Target: target, Message: msg})
}

func (s *Sender) fail(entry store.OutboxEntry, target chat.Target, err error) {
	s.logger.Error("failed to send message", zap.Error(err), zap.String("temp_id", entry.TempID))
	if mErr := s.db.MarkOutboxFailed(entry.TempID, err.Error()); mErr != nil {
		s.logger.Error("failed to mark failed", zap.Error(mErr), zap.String("temp_id", entry.TempID))
	}
	s.bus.Emit(bus.MessageSendFailed, Failure{
		TempID:      entry.TempID,
		Target:      target,
		Attachments: entry.Attachments,
		Error:       err.Error(),
	})
}
