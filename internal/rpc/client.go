package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client is a typed client for the daemon's services.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket. The connection is lazy;
// the first call fails if no daemon is listening.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, service, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+service+"/"+method, in, out)
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.invoke(ctx, SessionServiceName, "GetStatus", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListChannels(ctx context.Context) (*ChannelsResponse, error) {
	out := new(ChannelsResponse)
	if err := c.invoke(ctx, ChatServiceName, "ListChannels", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SwitchTarget(ctx context.Context, target string) (*ThreadView, error) {
	out := new(ThreadView)
	if err := c.invoke(ctx, ChatServiceName, "SwitchTarget", &TargetRequest{Target: target}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMessages(ctx context.Context, target string) (*ThreadView, error) {
	out := new(ThreadView)
	if err := c.invoke(ctx, ChatServiceName, "ListMessages", &TargetRequest{Target: target}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendText(ctx context.Context, text string, confirmed bool) (*SendResponse, error) {
	out := new(SendResponse)
	if err := c.invoke(ctx, ChatServiceName, "SendText", &SendRequest{Text: text, Confirmed: confirmed}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Retry(ctx context.Context, tempID string) (*MessageResponse, error) {
	out := new(MessageResponse)
	if err := c.invoke(ctx, ChatServiceName, "Retry", &RetryRequest{TempID: tempID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Search(ctx context.Context, in *SearchRequest) (*SearchResponse, error) {
	out := new(SearchResponse)
	if err := c.invoke(ctx, ChatServiceName, "Search", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SetFocus(ctx context.Context, focused bool) error {
	return c.invoke(ctx, ChatServiceName, "SetFocus", &FocusRequest{Focused: focused}, &emptypb.Empty{})
}

func (c *Client) AddAttachments(ctx context.Context, files []AttachmentFile) (*AttachmentsResponse, error) {
	out := new(AttachmentsResponse)
	if err := c.invoke(ctx, ChatServiceName, "AddAttachments", &AddAttachmentsRequest{Files: files}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ToggleAttachment(ctx context.Context, key string) (*AttachmentsResponse, error) {
	out := new(AttachmentsResponse)
	if err := c.invoke(ctx, ChatServiceName, "ToggleAttachment", &KeyRequest{Key: key}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListAttachments(ctx context.Context) (*AttachmentsResponse, error) {
	out := new(AttachmentsResponse)
	if err := c.invoke(ctx, ChatServiceName, "ListAttachments", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RetryAttachment(ctx context.Context, key string) (*AttachmentsResponse, error) {
	out := new(AttachmentsResponse)
	if err := c.invoke(ctx, ChatServiceName, "RetryAttachment", &KeyRequest{Key: key}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ResolveURLs(ctx context.Context, keys []string, invalidate bool) (*ResolveResponse, error) {
	out := new(ResolveResponse)
	if err := c.invoke(ctx, ChatServiceName, "ResolveURLs", &ResolveRequest{Keys: keys, Invalidate: invalidate}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventStream receives events from WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (*Event, error) {
	evt := new(Event)
	if err := s.stream.RecvMsg(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// WatchEvents subscribes to daemon events until ctx is cancelled.
func (c *Client) WatchEvents(ctx context.Context, namespaces ...string) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &ChatServiceDesc.Streams[0], "/"+ChatServiceName+"/WatchEvents")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WatchRequest{Namespaces: namespaces}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

func (c *Client) ListRoster(ctx context.Context) (*RosterResponse, error) {
	out := new(RosterResponse)
	if err := c.invoke(ctx, PresenceServiceName, "ListRoster", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SetStatus(ctx context.Context, status string) error {
	return c.invoke(ctx, PresenceServiceName, "SetStatus", &SetStatusRequest{Status: status}, &emptypb.Empty{})
}
