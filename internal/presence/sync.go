package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/showroom/internal/logging"
	"github.com/matheus3301/showroom/internal/store"
	"github.com/matheus3301/showroom/internal/stream"
	"go.uber.org/zap"
)

// Server is the presence side of the showroom API.
type Server interface {
	Presence(ctx context.Context) ([]Raw, error)
	Heartbeat(ctx context.Context, status Status) error
}

// SyncConfig tunes the Syncer's timers.
type SyncConfig struct {
	Refetch   time.Duration
	Restamp   time.Duration
	Heartbeat time.Duration
	Stream    stream.Config
}

// Syncer keeps a Roster current: periodic snapshots, live deltas, restamping
// as entries age, and heartbeats for the viewer's own status.
type Syncer struct {
	roster *Roster
	server Server
	dial   stream.Dialer
	db     *store.DB
	cfg    SyncConfig
	logger *zap.Logger
	loop   *stream.Loop

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncer wires a roster to the server. db may be nil to skip persistence.
func NewSyncer(roster *Roster, server Server, dial stream.Dialer, db *store.DB, cfg SyncConfig, logger *zap.Logger) *Syncer {
	logger = logging.OrNop(logger).Named("presence")
	if cfg.Refetch <= 0 {
		cfg.Refetch = 2 * time.Minute
	}
	if cfg.Restamp <= 0 {
		cfg.Restamp = 10 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	return &Syncer{
		roster: roster,
		server: server,
		dial:   dial,
		db:     db,
		cfg:    cfg,
		logger: logger,
		loop:   stream.NewLoop(cfg.Stream, nil, logger),
		status: Online,
	}
}

// Start warms the roster from the cache, then fetches, subscribes and runs
// the timers until Stop.
func (s *Syncer) Start(ctx context.Context) {
	if s.db != nil {
		if saved, err := LoadRoster(s.db); err != nil {
			s.logger.Warn("failed to load cached roster", zap.Error(err))
		} else if len(saved) > 0 {
			s.roster.Load(saved)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if s.dial != nil {
		s.loop.Switch(ctx, "presence", s.dial, s.handleDelta)
	}
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the timers and the delta stream, persisting the roster.
func (s *Syncer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.loop.Close()
	s.wg.Wait()
	s.persist()
}

// SetStatus changes the viewer's declared status and sends it immediately.
func (s *Syncer) SetStatus(ctx context.Context, st Status) error {
	switch st {
	case Online, Idle, DND, Invisible:
	default:
		return fmt.Errorf("cannot set status %q", st)
	}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.roster.ApplyDelta(Raw{
		"email":     s.roster.Self(),
		"status":    string(st),
		"updatedAt": float64(time.Now().UnixMilli()),
	})
	return s.server.Heartbeat(ctx, st)
}

// Status returns the viewer's declared status.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Refetch replaces the roster from a fresh snapshot.
func (s *Syncer) Refetch(ctx context.Context) error {
	raw, err := s.server.Presence(ctx)
	if err != nil {
		return fmt.Errorf("fetch presence: %w", err)
	}
	entries := s.roster.ApplySnapshot(raw)
	s.logger.Debug("presence snapshot applied", zap.Int("entries", len(entries)))
	s.persist()
	return nil
}

func (s *Syncer) run(ctx context.Context) {
	defer s.wg.Done()
	if err := s.Refetch(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("initial presence fetch failed", zap.Error(err))
	}
	s.heartbeat(ctx)

	refetch := time.NewTicker(s.cfg.Refetch)
	restamp := time.NewTicker(s.cfg.Restamp)
	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer refetch.Stop()
	defer restamp.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-refetch.C:
			if err := s.Refetch(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("presence refetch failed", zap.Error(err))
			}
		case <-restamp.C:
			s.roster.Restamp()
		case <-heartbeat.C:
			s.heartbeat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Syncer) heartbeat(ctx context.Context) {
	if err := s.server.Heartbeat(ctx, s.Status()); err != nil && ctx.Err() == nil {
		s.logger.Debug("presence heartbeat failed", zap.Error(err))
	}
}

func (s *Syncer) handleDelta(data []byte) {
	deltas, err := ParseDeltas(data)
	if err != nil {
		s.logger.Debug("dropping malformed presence delta", zap.Error(err))
		return
	}
	for _, d := range deltas {
		s.roster.ApplyDelta(d)
	}
}

func (s *Syncer) persist() {
	if s.db == nil {
		return
	}
	if err := SaveRoster(s.db, s.roster.Entries()); err != nil {
		s.logger.Warn("failed to persist roster", zap.Error(err))
	}
}

// ParseDeltas decodes a presence stream payload: a single record, an array
// of records, or an object wrapping them under "user" or "users".
func ParseDeltas(data []byte) ([]Raw, error) {
	var list []Raw
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode presence delta: %w", err)
	}
	if raw, ok := obj["users"]; ok {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode presence users: %w", err)
		}
		return list, nil
	}
	if raw, ok := obj["user"]; ok {
		var one Raw
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("decode presence user: %w", err)
		}
		return []Raw{one}, nil
	}
	var one Raw
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []Raw{one}, nil
}

// SaveRoster persists entries to the cache DB.
func SaveRoster(db *store.DB, entries []Entry) error {
	rows := make([]store.RosterEntry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, store.RosterEntry{
			Email:       e.Email,
			Name:        e.Name,
			Image:       e.Image,
			Role:        e.Role,
			Plan:        e.Plan,
			RawStatus:   string(e.RawStatus),
			UpdatedAtMs: e.UpdatedAtMs,
		})
	}
	return db.SaveRoster(rows)
}

// LoadRoster reads persisted entries; statuses are recomputed by Roster.Load.
func LoadRoster(db *store.DB) ([]Entry, error) {
	rows, err := db.LoadRoster()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			Email:       r.Email,
			Name:        r.Name,
			Image:       r.Image,
			Role:        r.Role,
			Plan:        r.Plan,
			RawStatus:   ParseStatus(r.RawStatus),
			UpdatedAtMs: r.UpdatedAtMs,
		})
	}
	return out, nil
}
