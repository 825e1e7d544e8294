package api

import (
	"context"
	"errors"

	"github.com/matheus3301/showroom/internal/attach"
	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/logging"
	"github.com/matheus3301/showroom/internal/rpc"
	"github.com/matheus3301/showroom/internal/sessionctl"
	"github.com/matheus3301/showroom/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ChatService implements showroom.v1.Chat on top of the session controller.
type ChatService struct {
	ctl    *sessionctl.Controller
	db     *store.DB
	urls   *attach.URLCache
	bus    *bus.Bus
	logger *zap.Logger
}

// NewChatService creates a new chat service. db and urls may be nil.
func NewChatService(ctl *sessionctl.Controller, db *store.DB, urls *attach.URLCache, b *bus.Bus, logger *zap.Logger) *ChatService {
	return &ChatService{ctl: ctl, db: db, urls: urls, bus: b, logger: logging.OrNop(logger)}
}

func (s *ChatService) ListChannels(ctx context.Context, _ *emptypb.Empty) (*rpc.ChannelsResponse, error) {
	perms, err := s.ctl.Channels(ctx)
	if err != nil {
		if len(perms) == 0 {
			return nil, toStatus("list channels", err)
		}
		s.logger.Warn("serving cached channel list", zap.Error(err))
		return &rpc.ChannelsResponse{Channels: perms, Stale: true}, nil
	}
	return &rpc.ChannelsResponse{Channels: perms}, nil
}

func (s *ChatService) SwitchTarget(ctx context.Context, req *rpc.TargetRequest) (*rpc.ThreadView, error) {
	t, err := chat.ParseTarget(req.Target)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	v, err := s.ctl.SwitchTarget(ctx, t)
	if errors.Is(err, sessionctl.ErrForbidden) || errors.Is(err, sessionctl.ErrNoTarget) {
		return nil, toStatus("switch target", err)
	}
	out := s.threadView(ctx, v)
	if err != nil {
		out.Warning = err.Error()
	}
	return out, nil
}

func (s *ChatService) ListMessages(ctx context.Context, req *rpc.TargetRequest) (*rpc.ThreadView, error) {
	t := s.ctl.Active()
	if req.Target != "" {
		var err error
		if t, err = chat.ParseTarget(req.Target); err != nil {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
		}
	}
	if t.IsZero() {
		return nil, toStatus("list messages", sessionctl.ErrNoTarget)
	}
	return s.threadView(ctx, s.ctl.View(t)), nil
}

func (s *ChatService) SetFocus(_ context.Context, req *rpc.FocusRequest) (*emptypb.Empty, error) {
	s.ctl.Focus(req.Focused)
	return &emptypb.Empty{}, nil
}

func (s *ChatService) ResolveURLs(ctx context.Context, req *rpc.ResolveRequest) (*rpc.ResolveResponse, error) {
	if s.urls == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "attachment urls are not configured")
	}
	if !req.Invalidate {
		urls, err := s.urls.Resolve(ctx, req.Keys)
		if err != nil && len(urls) == 0 {
			return nil, toStatus("resolve urls", err)
		}
		return &rpc.ResolveResponse{URLs: urls}, nil
	}
	urls := make(map[string]string, len(req.Keys))
	for _, k := range req.Keys {
		u, err := s.urls.Invalidate(ctx, k)
		if err != nil {
			return nil, toStatus("invalidate url", err)
		}
		urls[k] = u
	}
	return &rpc.ResolveResponse{URLs: urls}, nil
}

func (s *ChatService) threadView(ctx context.Context, v sessionctl.View) *rpc.ThreadView {
	out := &rpc.ThreadView{
		Target:   v.Target,
		Messages: v.Messages,
		Perms:    v.Perms,
		CanSend:  v.CanSend,
		Reason:   v.Reason,
		Loaded:   v.Loaded,
	}
	if out.Messages == nil {
		out.Messages = []chat.Message{}
	}
	if s.urls == nil {
		return out
	}
	var keys []string
	for _, m := range v.Messages {
		keys = append(keys, m.Attachments...)
	}
	if len(keys) == 0 {
		return out
	}
	urls, err := s.urls.Resolve(ctx, keys)
	if err != nil {
		s.logger.Warn("resolve attachment urls", zap.String("target", v.Target.Key()), zap.Error(err))
	}
	out.URLs = urls
	return out
}
