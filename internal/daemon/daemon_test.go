package daemon

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/config"
	"github.com/matheus3301/showroom/internal/devserver"
	"github.com/matheus3301/showroom/internal/rpc"
	"go.uber.org/fx"
)

var admin = chat.Identity{Email: "admin@showroom.local", Name: "Admin", Role: "admin", Plan: "pro"}

// testHome points SHOWROOM_HOME at a short temp dir; unix socket paths are
// limited to about 104 characters on macOS.
func testHome(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "showroom-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv("SHOWROOM_HOME", dir)
	return dir
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	secret := []byte("daemon-test")
	tok, err := devserver.MintToken(secret, admin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Server.BaseURL = baseURL
	cfg.Server.Token = tok
	cfg.Identity = config.IdentityConfig{Email: admin.Email, Name: admin.Name, Role: admin.Role, Plan: admin.Plan}
	cfg.Stream.ReconnectDelay = config.Duration{Duration: 50 * time.Millisecond}
	return cfg
}

func TestModuleGraph(t *testing.T) {
	home := testHome(t)
	p := Params{
		Profile:    "graph",
		SocketPath: filepath.Join(home, "d.sock"),
		Config:     testConfig(t, "http://127.0.0.1:1"),
	}
	if err := fx.ValidateApp(Module(p)); err != nil {
		t.Fatalf("fx graph: %v", err)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	home := testHome(t)

	seed := devserver.DefaultSeed()
	backend, err := devserver.New(devserver.Options{
		Secret:   []byte("daemon-test"),
		Channels: seed.Channels,
		Users:    seed.Users,
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	socketPath := filepath.Join(home, "d.sock")
	app := fx.New(
		Module(Params{Profile: "test", SocketPath: socketPath, Config: testConfig(t, ts.URL)}),
		fx.NopLogger,
	)
	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			t.Errorf("stop: %v", err)
		}
	}()

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket perm = %o, want 600", perm)
	}

	client, err := rpc.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancelCalls := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCalls()

	status, err := client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Profile != "test" || status.Identity.Email != admin.Email {
		t.Errorf("status = %+v", status)
	}

	channels, err := client.ListChannels(ctx)
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(channels.Channels) != len(seed.Channels) || channels.Stale {
		t.Errorf("channels = %+v", channels)
	}

	view, err := client.SwitchTarget(ctx, "#general")
	if err != nil {
		t.Fatalf("SwitchTarget: %v", err)
	}
	if view.Target != chat.Channel("general") || !view.CanSend || !view.Loaded {
		t.Errorf("view = %+v", view)
	}

	sent, err := client.SendText(ctx, "hello from the daemon", false)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if sent.Message == nil || sent.Message.Status != chat.StatusPending {
		t.Fatalf("send = %+v", sent)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		view, err = client.ListMessages(ctx, "#general")
		if err != nil {
			t.Fatalf("ListMessages: %v", err)
		}
		if len(view.Messages) == 1 && view.Messages[0].Status == chat.StatusSent {
			break
		}
		if len(view.Messages) > 1 {
			t.Fatalf("echo duplicated the message: %+v", view.Messages)
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never confirmed: %+v", view.Messages)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if view.Messages[0].ID == "" || view.Messages[0].Text != "hello from the daemon" {
		t.Errorf("confirmed = %+v", view.Messages[0])
	}

	// The cache write-through is asynchronous.
	deadline = time.Now().Add(2 * time.Second)
	for {
		hits, err := client.Search(ctx, &rpc.SearchRequest{Query: "daemon"})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits.Hits) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("search never found the sent message")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSecondDaemonRefusesProfile(t *testing.T) {
	home := testHome(t)
	cfg := testConfig(t, "http://127.0.0.1:1")

	first := fx.New(Module(Params{Profile: "dup", SocketPath: filepath.Join(home, "a.sock"), Config: cfg}), fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer func() { _ = first.Stop(ctx) }()

	second := fx.New(Module(Params{Profile: "dup", SocketPath: filepath.Join(home, "b.sock"), Config: cfg}), fx.NopLogger)
	if err := second.Start(ctx); err == nil {
		_ = second.Stop(ctx)
		t.Fatal("second daemon acquired a held profile lock")
	}
}
