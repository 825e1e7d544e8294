package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/status"
)

type fakeSource struct {
	events chan []byte
	once   sync.Once
	closed chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeSource) Next() ([]byte, error) {
	select {
	case data, ok := <-f.events:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-f.closed:
		return nil, errors.New("closed")
	}
}

func (f *fakeSource) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSource) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func fastConfig() Config {
	return Config{BaseDelay: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond, DisconnectAfter: 3}
}

func waitState(t *testing.T, m *status.Machine, want status.State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for m.Current() != want {
		select {
		case <-deadline:
			t.Fatalf("state = %s, want %s", m.Current(), want)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{BaseDelay: 3 * time.Second, MaxBackoff: 20 * time.Second}
	want := []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second, 20 * time.Second, 20 * time.Second}
	for i, w := range want {
		if got := cfg.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestLoopDeliversEvents(t *testing.T) {
	m := status.NewMachine(nil)
	l := NewLoop(fastConfig(), m, nil)
	src := newFakeSource()
	got := make(chan string, 4)

	l.Switch(context.Background(), "channel:general",
		func(context.Context) (Source, error) { return src, nil },
		func(data []byte) { got <- string(data) })
	waitState(t, m, status.Live)

	src.events <- []byte("one")
	select {
	case v := <-got:
		if v != "one" {
			t.Errorf("got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	l.Close()
	if !src.isClosed() {
		t.Error("Close() left the source open")
	}
	if m.Current() != status.Closed {
		t.Errorf("state = %s, want closed", m.Current())
	}
}

func TestLoopDisconnectsAfterRepeatedFailuresAndKeepsRetrying(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.StreamStatusChanged, 64)
	defer unsub()
	m := status.NewMachine(b)
	l := NewLoop(fastConfig(), m, nil)

	var attempts atomic.Int32
	src := newFakeSource()
	l.Switch(context.Background(), "channel:general", func(context.Context) (Source, error) {
		if attempts.Add(1) <= 4 {
			return nil, errors.New("refused")
		}
		return src, nil
	}, func([]byte) {})
	defer l.Close()

	sawDisconnected := false
	deadline := time.After(2 * time.Second)
	for m.Current() != status.Live {
		select {
		case evt := <-ch:
			if evt.Payload.(status.StatusChange).To == status.Disconnected {
				sawDisconnected = true
			}
		case <-deadline:
			t.Fatalf("never recovered, state %s", m.Current())
		}
	}
	if !sawDisconnected {
		t.Error("expected DISCONNECTED after 3 consecutive failures")
	}
	if l.Failures() != 0 {
		t.Errorf("failures = %d after reconnect, want 0", l.Failures())
	}
}

func TestSwitchDisposesStaleAttempt(t *testing.T) {
	m := status.NewMachine(nil)
	l := NewLoop(fastConfig(), m, nil)
	defer l.Close()

	release := make(chan struct{})
	stale := newFakeSource()
	var staleEvents atomic.Int32
	l.Switch(context.Background(), "channel:old", func(context.Context) (Source, error) {
		<-release
		return stale, nil
	}, func([]byte) { staleEvents.Add(1) })

	fresh := newFakeSource()
	got := make(chan string, 1)
	l.Switch(context.Background(), "channel:new",
		func(context.Context) (Source, error) { return fresh, nil },
		func(data []byte) { got <- string(data) })
	waitState(t, m, status.Live)

	// The old dial completes after the switch; its result is discarded.
	close(release)
	deadline := time.After(time.Second)
	for !stale.isClosed() {
		select {
		case <-deadline:
			t.Fatal("stale source was not closed")
		case <-time.After(2 * time.Millisecond):
		}
	}
	stale.events <- []byte("ghost")

	fresh.events <- []byte("hello")
	select {
	case v := <-got:
		if v != "hello" {
			t.Errorf("got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("fresh event not delivered")
	}
	if staleEvents.Load() != 0 {
		t.Error("stale connection delivered events")
	}
	if l.Name() != "channel:new" {
		t.Errorf("Name() = %q", l.Name())
	}
}

func TestSwitchClosesPreviousConnection(t *testing.T) {
	l := NewLoop(fastConfig(), status.NewMachine(nil), nil)
	defer l.Close()

	first := newFakeSource()
	connected := make(chan struct{}, 1)
	l.Switch(context.Background(), "a", func(context.Context) (Source, error) {
		connected <- struct{}{}
		return first, nil
	}, func([]byte) {})
	<-connected
	time.Sleep(10 * time.Millisecond)

	second := newFakeSource()
	l.Switch(context.Background(), "b", func(context.Context) (Source, error) { return second, nil }, func([]byte) {})
	deadline := time.After(time.Second)
	for !first.isClosed() {
		select {
		case <-deadline:
			t.Fatal("previous connection left open")
		case <-time.After(2 * time.Millisecond):
		}
	}
}
