package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	SessionServiceName  = "showroom.v1.Session"
	ChatServiceName     = "showroom.v1.Chat"
	PresenceServiceName = "showroom.v1.Presence"
)

// SessionServer reports daemon status.
type SessionServer interface {
	GetStatus(ctx context.Context, in *emptypb.Empty) (*StatusResponse, error)
}

// ChatServer drives the session controller.
type ChatServer interface {
	ListChannels(ctx context.Context, in *emptypb.Empty) (*ChannelsResponse, error)
	SwitchTarget(ctx context.Context, in *TargetRequest) (*ThreadView, error)
	ListMessages(ctx context.Context, in *TargetRequest) (*ThreadView, error)
	SendText(ctx context.Context, in *SendRequest) (*SendResponse, error)
	Retry(ctx context.Context, in *RetryRequest) (*MessageResponse, error)
	Search(ctx context.Context, in *SearchRequest) (*SearchResponse, error)
	SetFocus(ctx context.Context, in *FocusRequest) (*emptypb.Empty, error)
	AddAttachments(ctx context.Context, in *AddAttachmentsRequest) (*AttachmentsResponse, error)
	ToggleAttachment(ctx context.Context, in *KeyRequest) (*AttachmentsResponse, error)
	ListAttachments(ctx context.Context, in *emptypb.Empty) (*AttachmentsResponse, error)
	RetryAttachment(ctx context.Context, in *KeyRequest) (*AttachmentsResponse, error)
	ResolveURLs(ctx context.Context, in *ResolveRequest) (*ResolveResponse, error)
	WatchEvents(in *WatchRequest, stream EventSender) error
}

// PresenceServer exposes the roster.
type PresenceServer interface {
	ListRoster(ctx context.Context, in *emptypb.Empty) (*RosterResponse, error)
	SetStatus(ctx context.Context, in *SetStatusRequest) (*emptypb.Empty, error)
}

// EventSender is the server side of WatchEvents.
type EventSender interface {
	Send(*Event) error
	Context() context.Context
}

func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
	},
}

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "ListChannels", ChatServer.ListChannels),
		unary(ChatServiceName, "SwitchTarget", ChatServer.SwitchTarget),
		unary(ChatServiceName, "ListMessages", ChatServer.ListMessages),
		unary(ChatServiceName, "SendText", ChatServer.SendText),
		unary(ChatServiceName, "Retry", ChatServer.Retry),
		unary(ChatServiceName, "Search", ChatServer.Search),
		unary(ChatServiceName, "SetFocus", ChatServer.SetFocus),
		unary(ChatServiceName, "AddAttachments", ChatServer.AddAttachments),
		unary(ChatServiceName, "ToggleAttachment", ChatServer.ToggleAttachment),
		unary(ChatServiceName, "ListAttachments", ChatServer.ListAttachments),
		unary(ChatServiceName, "RetryAttachment", ChatServer.RetryAttachment),
		unary(ChatServiceName, "ResolveURLs", ChatServer.ResolveURLs),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
}

var PresenceServiceDesc = grpc.ServiceDesc{
	ServiceName: PresenceServiceName,
	HandlerType: (*PresenceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(PresenceServiceName, "ListRoster", PresenceServer.ListRoster),
		unary(PresenceServiceName, "SetStatus", PresenceServer.SetStatus),
	},
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServer).WatchEvents(in, &eventSender{stream})
}

type eventSender struct {
	grpc.ServerStream
}

func (s *eventSender) Send(evt *Event) error {
	return s.ServerStream.SendMsg(evt)
}

func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

func RegisterPresenceServer(s grpc.ServiceRegistrar, srv PresenceServer) {
	s.RegisterService(&PresenceServiceDesc, srv)
}
