package api

import (
	"encoding/json"
	"strings"

	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/rpc"
	"go.uber.org/zap"
)

// WatchEvents streams bus events to a client until it disconnects.
func (s *ChatService) WatchEvents(req *rpc.WatchRequest, stream rpc.EventSender) error {
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if !wanted(evt.Kind, req.Namespaces) {
				continue
			}
			out, err := envelope(evt)
			if err != nil {
				s.logger.Debug("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func wanted(kind string, namespaces []string) bool {
	if len(namespaces) == 0 {
		return true
	}
	for _, ns := range namespaces {
		if strings.HasPrefix(kind, ns) {
			return true
		}
	}
	return false
}

func envelope(evt bus.Event) (*rpc.Event, error) {
	out := &rpc.Event{
		ID:           evt.ID,
		Kind:         evt.Kind,
		OccurredAtMs: evt.Timestamp.UnixMilli(),
	}
	if evt.Payload != nil {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = payload
	}
	return out, nil
}
