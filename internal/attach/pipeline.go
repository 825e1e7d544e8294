package attach

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/matheus3301/showroom/internal/bus"
	"github.com/matheus3301/showroom/internal/logging"
	"go.uber.org/zap"
)

// ErrTooLarge rejects a file over the size limit.
var ErrTooLarge = errors.New("file too large")

// State is the upload state of one attachment key.
type State string

const (
	StateUploading State = "uploading"
	StatePending   State = "pending"
)

// TempPrefix marks keys that have not been uploaded yet.
const TempPrefix = "tmp/"

// Uploader stores bytes durably and returns the storage key.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, scope string) (string, error)
}

// File is a dropped or picked file.
type File struct {
	Name string
	Data []byte
}

// Result reports what happened to one File.
type Result struct {
	Name string
	Key  string
	Err  error
	// Shake asks the UI to signal the rejection.
	Shake bool
}

// Item is the visible state of one attachment.
type Item struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	State    State  `json:"state"`
	Selected bool   `json:"selected"`
	Error    string `json:"error,omitempty"`
	Size     int    `json:"size"`
}

type item struct {
	Item
	data    []byte
	sending bool
}

// Pipeline tracks attachments from drop to send.
type Pipeline struct {
	mu       sync.Mutex
	items    map[string]*item
	order    []string
	uploader Uploader
	comp     Compressor
	maxBytes int64
	scope    string
	bus      *bus.Bus
	logger   *zap.Logger
}

// Config configures a Pipeline.
type Config struct {
	MaxBytes   int64
	Compressor Compressor
	// Scope is the storage path prefix uploads go under.
	Scope string
}

func NewPipeline(cfg Config, uploader Uploader, b *bus.Bus, logger *zap.Logger) *Pipeline {
	if cfg.Scope == "" {
		cfg.Scope = "showroom"
	}
	return &Pipeline{
		items:    make(map[string]*item),
		uploader: uploader,
		comp:     cfg.Compressor,
		maxBytes: cfg.MaxBytes,
		scope:    cfg.Scope,
		bus:      b,
		logger:   logging.OrNop(logger),
	}
}

// Add validates, compresses and uploads files concurrently. It returns once
// every upload has finished. Oversized files are rejected without touching
// the selection.
func (p *Pipeline) Add(ctx context.Context, files []File) []Result {
	results := make([]Result, len(files))
	var wg sync.WaitGroup
	for i, f := range files {
		results[i].Name = f.Name
		if p.maxBytes > 0 && int64(len(f.Data)) > p.maxBytes {
			results[i].Err = fmt.Errorf("%s: %w (%d > %d bytes)", f.Name, ErrTooLarge, len(f.Data), p.maxBytes)
			results[i].Shake = true
			p.bus.Emit(bus.AttachShake, f.Name)
			continue
		}
		c, err := p.comp.Compress(f.Name, f.Data)
		if err != nil {
			results[i].Err = fmt.Errorf("%s: %w", f.Name, err)
			results[i].Shake = true
			continue
		}
		tmp := p.track(c.Name, c.Data)
		wg.Add(1)
		go func(i int, tmp string) {
			defer wg.Done()
			results[i].Key, results[i].Err = p.upload(ctx, tmp)
		}(i, tmp)
	}
	wg.Wait()
	return results
}

func (p *Pipeline) track(name string, data []byte) string {
	key := TempPrefix + uuid.NewString()
	p.mu.Lock()
	p.items[key] = &item{
		Item: Item{Key: key, Name: name, State: StateUploading, Selected: true, Size: len(data)},
		data: data,
	}
	p.order = append(p.order, key)
	p.mu.Unlock()
	p.changed()
	return key
}

func (p *Pipeline) upload(ctx context.Context, tmp string) (string, error) {
	p.mu.Lock()
	it, ok := p.items[tmp]
	if !ok {
		p.mu.Unlock()
		return "", fmt.Errorf("attachment %s no longer tracked", tmp)
	}
	it.State = StateUploading
	it.Error = ""
	name, data := it.Name, it.data
	p.mu.Unlock()

	key, err := p.uploader.Upload(ctx, name, data, p.scope)

	p.mu.Lock()
	it, ok = p.items[tmp]
	if !ok {
		// Removed while uploading; the stored object is simply unreferenced.
		p.mu.Unlock()
		return key, err
	}
	if err != nil {
		it.State = StatePending
		it.Error = err.Error()
		p.mu.Unlock()
		p.logger.Warn("attachment upload failed", zap.String("name", name), zap.Error(err))
		p.changed()
		return "", err
	}
	delete(p.items, tmp)
	it.Key = key
	it.State = StatePending
	it.data = nil
	p.items[key] = it
	if i := slices.Index(p.order, tmp); i >= 0 {
		p.order[i] = key
	}
	p.mu.Unlock()
	p.logger.Debug("attachment uploaded", zap.String("name", name), zap.String("key", key))
	p.changed()
	return key, nil
}

// Retry re-uploads an attachment whose upload failed.
func (p *Pipeline) Retry(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	it, ok := p.items[key]
	retryable := ok && it.Error != "" && it.data != nil
	p.mu.Unlock()
	if !retryable {
		return "", fmt.Errorf("attachment %s is not retryable", key)
	}
	return p.upload(ctx, key)
}

// Select adds already-uploaded keys to the selection.
func (p *Pipeline) Select(keys ...string) {
	p.mu.Lock()
	for _, k := range keys {
		if k == "" || strings.HasPrefix(k, TempPrefix) {
			continue
		}
		if it, ok := p.items[k]; ok {
			it.Selected = true
			continue
		}
		p.items[k] = &item{Item: Item{Key: k, Name: k, State: StatePending, Selected: true}}
		p.order = append(p.order, k)
	}
	p.mu.Unlock()
	p.changed()
}

// Toggle flips the selection of key. Deselecting does not cancel an upload.
func (p *Pipeline) Toggle(key string) (bool, error) {
	p.mu.Lock()
	it, ok := p.items[key]
	if !ok || it.sending {
		p.mu.Unlock()
		return false, fmt.Errorf("unknown attachment %s", key)
	}
	it.Selected = !it.Selected
	sel := it.Selected
	p.mu.Unlock()
	p.changed()
	return sel, nil
}

// Remove drops key from the pipeline entirely.
func (p *Pipeline) Remove(key string) {
	p.mu.Lock()
	delete(p.items, key)
	p.order = slices.DeleteFunc(p.order, func(k string) bool { return k == key })
	p.mu.Unlock()
	p.changed()
}

// Items lists tracked attachments in the order they were added.
func (p *Pipeline) Items() []Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Item, 0, len(p.order))
	for _, k := range p.order {
		if it, ok := p.items[k]; ok && !it.sending {
			out = append(out, it.Item)
		}
	}
	return out
}

// Take claims up to limit selected, uploaded keys for one outgoing message.
// A claimed key cannot be taken again; call Finalize once the send settles.
func (p *Pipeline) Take(limit int) []string {
	p.mu.Lock()
	var keys []string
	for _, k := range p.order {
		if limit > 0 && len(keys) >= limit {
			break
		}
		it := p.items[k]
		if it == nil || it.sending || !it.Selected || it.State != StatePending || it.Error != "" || strings.HasPrefix(k, TempPrefix) {
			continue
		}
		it.sending = true
		keys = append(keys, k)
	}
	p.mu.Unlock()
	if len(keys) > 0 {
		p.changed()
	}
	return keys
}

// Finalize forgets keys that were part of a send attempt, whether it
// succeeded or not.
func (p *Pipeline) Finalize(keys []string) {
	if len(keys) == 0 {
		return
	}
	p.mu.Lock()
	for _, k := range keys {
		delete(p.items, k)
	}
	p.order = slices.DeleteFunc(p.order, func(k string) bool {
		_, ok := p.items[k]
		return !ok
	})
	p.mu.Unlock()
	p.changed()
}

func (p *Pipeline) changed() {
	p.bus.Emit(bus.AttachChanged, p.Items())
}
