package api

import (
	"context"
	"time"

	"github.com/matheus3301/showroom/internal/presence"
	"github.com/matheus3301/showroom/internal/rpc"
	"github.com/matheus3301/showroom/internal/sessionctl"
	"github.com/matheus3301/showroom/internal/status"
	"github.com/matheus3301/showroom/internal/store"
	"github.com/matheus3301/showroom/internal/stream"
	"google.golang.org/protobuf/types/known/emptypb"
)

// SessionService implements showroom.v1.Session.
type SessionService struct {
	profile   string
	startedAt time.Time
	machine   *status.Machine
	loop      *stream.Loop
	ctl       *sessionctl.Controller
	presence  *presence.Syncer
	db        *store.DB
}

// NewSessionService creates a new session service. loop, presence and db may be nil.
func NewSessionService(profile string, machine *status.Machine, loop *stream.Loop, ctl *sessionctl.Controller, syncer *presence.Syncer, db *store.DB) *SessionService {
	return &SessionService{
		profile:   profile,
		startedAt: time.Now(),
		machine:   machine,
		loop:      loop,
		ctl:       ctl,
		presence:  syncer,
		db:        db,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *emptypb.Empty) (*rpc.StatusResponse, error) {
	resp := &rpc.StatusResponse{
		Profile:    s.profile,
		Identity:   s.ctl.Identity(),
		State:      string(s.machine.Current()),
		StateSince: s.machine.Since(),
		UptimeMs:   time.Since(s.startedAt).Milliseconds(),
		Target:     s.ctl.Active().String(),
	}
	if s.loop != nil {
		resp.Failures = s.loop.Failures()
	}
	if s.presence != nil {
		resp.Presence = string(s.presence.Status())
	}

	// Populate counts from store.
	if s.db != nil {
		if n, err := s.db.TargetCount(); err == nil {
			resp.TargetCount = n
		}
		if n, err := s.db.MessageCount(); err == nil {
			resp.MessageCount = n
		}
	}
	return resp, nil
}
