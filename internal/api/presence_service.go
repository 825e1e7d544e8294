package api

import (
	"context"
	"strings"

	"github.com/matheus3301/showroom/internal/presence"
	"github.com/matheus3301/showroom/internal/rpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// PresenceService implements showroom.v1.Presence.
type PresenceService struct {
	roster *presence.Roster
	syncer *presence.Syncer
}

// NewPresenceService creates a new presence service.
func NewPresenceService(roster *presence.Roster, syncer *presence.Syncer) *PresenceService {
	return &PresenceService{roster: roster, syncer: syncer}
}

func (s *PresenceService) ListRoster(_ context.Context, _ *emptypb.Empty) (*rpc.RosterResponse, error) {
	return &rpc.RosterResponse{
		Self:    s.syncer.Status(),
		Entries: s.roster.Entries(),
	}, nil
}

func (s *PresenceService) SetStatus(ctx context.Context, req *rpc.SetStatusRequest) (*emptypb.Empty, error) {
	st := presence.ParseStatus(req.Status)
	if st == presence.Online && !strings.EqualFold(strings.TrimSpace(req.Status), string(presence.Online)) {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown status %q", req.Status)
	}
	if st == presence.Offline {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "offline is derived, not declared")
	}
	if err := s.syncer.SetStatus(ctx, st); err != nil {
		return nil, toStatus("set status", err)
	}
	return &emptypb.Empty{}, nil
}
