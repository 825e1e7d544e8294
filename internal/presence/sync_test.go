package presence

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/showroom/internal/store"
	"github.com/matheus3301/showroom/internal/stream"
)

type fakeServer struct {
	mu         sync.Mutex
	snapshot   []Raw
	err        error
	heartbeats []Status
}

func (f *fakeServer) Presence(context.Context) ([]Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.err
}

func (f *fakeServer) Heartbeat(_ context.Context, st Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, st)
	return nil
}

func (f *fakeServer) lastHeartbeat() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.heartbeats) == 0 {
		return ""
	}
	return f.heartbeats[len(f.heartbeats)-1]
}

type chanSource struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *chanSource) Next() ([]byte, error) {
	select {
	case b := <-c.ch:
		return b, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *chanSource) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSyncerSnapshotDeltasAndPersistence(t *testing.T) {
	db := testDB(t)
	now := time.Now().UnixMilli()
	server := &fakeServer{snapshot: []Raw{
		{"email": "bo@x.io", "name": "Bo", "status": "online", "updatedAt": float64(now)},
	}}
	src := &chanSource{ch: make(chan []byte, 4), closed: make(chan struct{})}
	roster := NewRoster("ana@x.io")
	s := NewSyncer(roster, server, func(context.Context) (stream.Source, error) { return src, nil }, db,
		SyncConfig{Stream: stream.Config{BaseDelay: time.Millisecond}}, nil)

	s.Start(context.Background())
	eventually(t, func() bool { return len(roster.Entries()) == 1 })

	src.ch <- []byte(`{"user":{"email":"cy@x.io","presence_status":"dnd"}}`)
	eventually(t, func() bool { _, ok := roster.Lookup("cy@x.io"); return ok })

	if err := s.SetStatus(context.Background(), Idle); err != nil {
		t.Fatal(err)
	}
	if server.lastHeartbeat() != Idle {
		t.Errorf("heartbeat = %q, want idle", server.lastHeartbeat())
	}
	self, ok := roster.Lookup("ana@x.io")
	if !ok || self.Status != Idle {
		t.Errorf("self = %+v", self)
	}
	s.Stop()

	saved, err := LoadRoster(db)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 3 {
		t.Fatalf("persisted %d entries, want 3", len(saved))
	}

	// A new roster starts warm from the cache even when the server is down.
	warm := NewRoster("ana@x.io")
	s2 := NewSyncer(warm, &fakeServer{err: errors.New("down")}, nil, db, SyncConfig{}, nil)
	s2.Start(context.Background())
	defer s2.Stop()
	if _, ok := warm.Lookup("Bo"); !ok {
		t.Error("cached roster not loaded")
	}
}

func TestSetStatusRejectsOffline(t *testing.T) {
	s := NewSyncer(NewRoster("ana@x.io"), &fakeServer{}, nil, nil, SyncConfig{}, nil)
	if err := s.SetStatus(context.Background(), Offline); err == nil {
		t.Error("expected error for offline")
	}
}

func TestParseDeltas(t *testing.T) {
	tests := []struct {
		in   string
		want int
		err  bool
	}{
		{`{"email":"a@x.io","status":"idle"}`, 1, false},
		{`[{"email":"a@x.io"},{"email":"b@x.io"}]`, 2, false},
		{`{"users":[{"email":"a@x.io"}]}`, 1, false},
		{`{"user":{"email":"a@x.io"}}`, 1, false},
		{`nope`, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDeltas([]byte(tt.in))
		if (err != nil) != tt.err || len(got) != tt.want {
			t.Errorf("ParseDeltas(%s) = %d, %v", tt.in, len(got), err)
		}
	}
}
