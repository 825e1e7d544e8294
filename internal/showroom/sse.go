package showroom

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// SSEEvent is one server-sent event.
type SSEEvent struct {
	ID    string
	Event string
	Data  []byte
}

// SSEReader parses a text/event-stream body.
type SSEReader struct {
	r *bufio.Reader
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next blocks until a complete event with data arrives. Comments and events
// without data are skipped. It returns io.EOF when the stream ends.
func (s *SSEReader) Next() (SSEEvent, error) {
	var evt SSEEvent
	var data bytes.Buffer
	hasData := false
	for {
		line, err := s.r.ReadString('\n')
		if err != nil && (line == "" || err != io.EOF) {
			return SSEEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				evt.Data = data.Bytes()
				return evt, nil
			}
			evt = SSEEvent{}
			if err == io.EOF {
				return SSEEvent{}, io.EOF
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			evt.Event = value
		case "id":
			evt.ID = value
		}

		if err == io.EOF {
			if hasData {
				evt.Data = data.Bytes()
				return evt, nil
			}
			return SSEEvent{}, io.EOF
		}
	}
}

// EventStream is an open SSE response.
type EventStream struct {
	body   io.ReadCloser
	reader *SSEReader
}

func newEventStream(body io.ReadCloser) *EventStream {
	return &EventStream{body: body, reader: NewSSEReader(body)}
}

// Next returns the data of the next non-keepalive event.
func (s *EventStream) Next() ([]byte, error) {
	for {
		evt, err := s.reader.Next()
		if err != nil {
			return nil, err
		}
		switch evt.Event {
		case "ping", "keepalive", "heartbeat":
			continue
		}
		return evt.Data, nil
	}
}

// Close releases the underlying connection.
func (s *EventStream) Close() error {
	return s.body.Close()
}
