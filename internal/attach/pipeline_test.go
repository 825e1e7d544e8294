package attach

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/chat"
)

type fakeUploader struct {
	mu    sync.Mutex
	calls int
	fail  error
	gate  chan struct{}
}

func (f *fakeUploader) Upload(_ context.Context, name string, _ []byte, scope string) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return "", f.fail
	}
	return fmt.Sprintf("%s/%d-%s", scope, f.calls, name), nil
}

func newPipeline(u Uploader, b *bus.Bus) *Pipeline {
	return NewPipeline(Config{MaxBytes: 64, Compressor: DefaultCompressor(), Scope: "showroom"}, u, b, nil)
}

func TestAddRejectsOversizedFile(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.AttachShake, 4)
	defer unsub()

	u := &fakeUploader{}
	p := newPipeline(u, b)
	res := p.Add(context.Background(), []File{{Name: "big.bin", Data: make([]byte, 65)}})

	if !errors.Is(res[0].Err, ErrTooLarge) || !res[0].Shake {
		t.Fatalf("result = %+v, want ErrTooLarge with shake", res[0])
	}
	if u.calls != 0 || len(p.Items()) != 0 {
		t.Errorf("oversized file reached upload: calls=%d items=%v", u.calls, p.Items())
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Error("no shake event")
	}
}

func TestAddUploadsAndPromotesKey(t *testing.T) {
	u := &fakeUploader{}
	p := newPipeline(u, nil)

	res := p.Add(context.Background(), []File{{Name: "a.txt", Data: []byte("a")}, {Name: "b.txt", Data: []byte("b")}})
	for _, r := range res {
		if r.Err != nil || r.Key == "" || strings.HasPrefix(r.Key, TempPrefix) {
			t.Fatalf("result = %+v", r)
		}
	}
	items := p.Items()
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	for _, it := range items {
		if it.State != StatePending || !it.Selected {
			t.Errorf("item = %+v, want pending+selected", it)
		}
	}
}

func TestDeselectDuringUploadDoesNotCancel(t *testing.T) {
	u := &fakeUploader{gate: make(chan struct{})}
	p := newPipeline(u, nil)

	done := make(chan []Result)
	go func() { done <- p.Add(context.Background(), []File{{Name: "a.txt", Data: []byte("a")}}) }()

	var tmp string
	deadline := time.After(time.Second)
	for tmp == "" {
		for _, it := range p.Items() {
			if it.State == StateUploading {
				tmp = it.Key
			}
		}
		select {
		case <-deadline:
			t.Fatal("upload never started")
		default:
		}
	}
	if sel, err := p.Toggle(tmp); err != nil || sel {
		t.Fatalf("Toggle() = %v, %v; want deselected", sel, err)
	}
	close(u.gate)
	res := <-done

	items := p.Items()
	if len(items) != 1 || items[0].Key != res[0].Key || items[0].Selected || items[0].State != StatePending {
		t.Errorf("items = %+v, want uploaded but deselected", items)
	}
	if keys := p.Take(chat.MaxAttachments); len(keys) != 0 {
		t.Errorf("Take() = %v, want nothing selected", keys)
	}
}

func TestUploadFailureRevertsToPending(t *testing.T) {
	u := &fakeUploader{fail: errors.New("storage down")}
	p := newPipeline(u, nil)

	res := p.Add(context.Background(), []File{{Name: "a.txt", Data: []byte("a")}})
	if res[0].Err == nil {
		t.Fatal("expected upload error")
	}
	items := p.Items()
	if len(items) != 1 {
		t.Fatalf("selection dropped: %+v", items)
	}
	it := items[0]
	if it.State != StatePending || it.Error == "" || !it.Selected {
		t.Errorf("item = %+v, want pending with inline error", it)
	}
	if keys := p.Take(chat.MaxAttachments); len(keys) != 0 {
		t.Errorf("failed upload was taken for send: %v", keys)
	}

	u.fail = nil
	key, err := p.Retry(context.Background(), it.Key)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if keys := p.Take(chat.MaxAttachments); !slices.Equal(keys, []string{key}) {
		t.Errorf("Take() after retry = %v, want [%s]", keys, key)
	}
}

func TestTakeAndFinalize(t *testing.T) {
	p := newPipeline(&fakeUploader{}, nil)
	p.Select("k1", "k2", "k3", TempPrefix+"x", "")

	first := p.Take(2)
	if !slices.Equal(first, []string{"k1", "k2"}) {
		t.Fatalf("Take(2) = %v", first)
	}
	second := p.Take(chat.MaxAttachments)
	if !slices.Equal(second, []string{"k3"}) {
		t.Fatalf("Take() = %v, want [k3]; a key must not join two messages", second)
	}
	if items := p.Items(); len(items) != 0 {
		t.Errorf("claimed keys still listed: %+v", items)
	}

	p.Finalize(first)
	p.Finalize(second)
	p.Select("k1")
	if keys := p.Take(chat.MaxAttachments); !slices.Equal(keys, []string{"k1"}) {
		t.Errorf("re-selected key after finalize = %v", keys)
	}
}
