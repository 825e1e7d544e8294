package showroom

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSSEReader(t *testing.T) {
	body := ": comment\n" +
		"event: message\n" +
		"id: 1\n" +
		"data: {\"a\":1}\n" +
		"\n" +
		"retry: 3000\n" +
		"\n" +
		"data: line1\r\n" +
		"data: line2\r\n" +
		"\r\n" +
		"data:no-space"

	r := NewSSEReader(strings.NewReader(body))

	evt, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if evt.Event != "message" || evt.ID != "1" || string(evt.Data) != `{"a":1}` {
		t.Errorf("first = %+v (%s)", evt, evt.Data)
	}

	evt, err = r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(evt.Data) != "line1\nline2" {
		t.Errorf("multi-line data = %q", evt.Data)
	}

	evt, err = r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(evt.Data) != "no-space" {
		t.Errorf("trailing event data = %q", evt.Data)
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("end err = %v, want EOF", err)
	}
}

func TestEventStreamSkipsKeepalives(t *testing.T) {
	body := "event: ping\ndata: {}\n\ndata: real\n\n"
	s := newEventStream(io.NopCloser(strings.NewReader(body)))
	defer func() { _ = s.Close() }()

	data, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "real" {
		t.Errorf("Next() = %q, want real", data)
	}
}
