package api

import (
	"context"
	"errors"

	"github.com/matheus3301/showroom/internal/attach"
	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/rpc"
	"github.com/matheus3301/showroom/internal/sessionctl"
	cachesync "github.com/matheus3301/showroom/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

func (s *ChatService) SendText(ctx context.Context, req *rpc.SendRequest) (*rpc.SendResponse, error) {
	res, err := s.ctl.Send(ctx, sessionctl.SendRequest{Text: req.Text, Confirmed: req.Confirmed})
	if err != nil {
		return nil, toStatus("send", err)
	}
	out := &rpc.SendResponse{Message: res.Message}
	if res.Command != nil {
		out.Command = &rpc.CommandResult{
			Command:      res.Command.Command,
			Message:      res.Command.Message,
			NeedsConfirm: res.Command.NeedsConfirm,
			Error:        res.Command.Error,
		}
	}
	return out, nil
}

func (s *ChatService) Retry(ctx context.Context, req *rpc.RetryRequest) (*rpc.MessageResponse, error) {
	if req.TempID == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "temp id is required")
	}
	msg, err := s.ctl.Retry(ctx, req.TempID)
	if err != nil {
		return nil, toStatus("retry", err)
	}
	return &rpc.MessageResponse{Message: msg}, nil
}

func (s *ChatService) Search(_ context.Context, req *rpc.SearchRequest) (*rpc.SearchResponse, error) {
	if req.Query == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "query is required")
	}
	limit := 50
	if req.Limit > 0 {
		limit = req.Limit
	}
	var t chat.Target
	if req.Target != "" {
		var err error
		if t, err = chat.ParseTarget(req.Target); err != nil {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
		}
	}

	results, err := s.ctl.Search(req.Query, t, limit)
	if err != nil {
		return nil, toStatus("search messages", err)
	}
	hits := make([]rpc.SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, rpc.SearchHit{
			Target:  r.Message.TargetKey,
			Message: cachesync.FromStore(r.Message),
			Snippet: r.Snippet,
		})
	}
	return &rpc.SearchResponse{Hits: hits}, nil
}

func (s *ChatService) AddAttachments(ctx context.Context, req *rpc.AddAttachmentsRequest) (*rpc.AttachmentsResponse, error) {
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	files := make([]attach.File, len(req.Files))
	for i, f := range req.Files {
		files[i] = attach.File{Name: f.Name, Data: f.Data}
	}
	results := p.Add(ctx, files)
	out := &rpc.AttachmentsResponse{Items: p.Items()}
	for _, r := range results {
		ar := rpc.AttachmentResult{Name: r.Name, Key: r.Key, Shake: r.Shake}
		if r.Err != nil {
			ar.Error = r.Err.Error()
		}
		out.Results = append(out.Results, ar)
	}
	return out, nil
}

func (s *ChatService) ToggleAttachment(_ context.Context, req *rpc.KeyRequest) (*rpc.AttachmentsResponse, error) {
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	if _, err := p.Toggle(req.Key); err != nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "%v", err)
	}
	return &rpc.AttachmentsResponse{Items: p.Items()}, nil
}

func (s *ChatService) RetryAttachment(ctx context.Context, req *rpc.KeyRequest) (*rpc.AttachmentsResponse, error) {
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	key, err := p.Retry(ctx, req.Key)
	res := rpc.AttachmentResult{Name: req.Key, Key: key}
	if err != nil {
		res.Error = err.Error()
	}
	return &rpc.AttachmentsResponse{Results: []rpc.AttachmentResult{res}, Items: p.Items()}, nil
}

func (s *ChatService) ListAttachments(_ context.Context, _ *emptypb.Empty) (*rpc.AttachmentsResponse, error) {
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	return &rpc.AttachmentsResponse{Items: p.Items()}, nil
}

var errNoPipeline = errors.New("attachments are not configured")

func (s *ChatService) pipeline() (*attach.Pipeline, error) {
	p := s.ctl.Attachments()
	if p == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "%v", errNoPipeline)
	}
	return p, nil
}
