// Package stream keeps one live event connection open for the active
// conversation, reconnecting with backoff until it is switched or closed.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/matheus3301/showroom/internal/logging"
	"github.com/matheus3301/showroom/internal/status"
	"go.uber.org/zap"
)

// Source is one open live connection.
type Source interface {
	// Next blocks until the next event payload arrives.
	Next() ([]byte, error)
	Close() error
}

// Dialer opens a Source.
type Dialer func(ctx context.Context) (Source, error)

// Handler receives event payloads from the current connection.
type Handler func(data []byte)

// Config tunes reconnection.
type Config struct {
	BaseDelay  time.Duration
	MaxBackoff time.Duration
	// DisconnectAfter consecutive failures moves the state to Disconnected.
	// Retries continue regardless.
	DisconnectAfter int
}

// DefaultConfig returns the reconnect defaults.
func DefaultConfig() Config {
	return Config{BaseDelay: 3 * time.Second, MaxBackoff: time.Minute, DisconnectAfter: 5}
}

// Backoff returns the delay before retry number failures (1-based).
func (c Config) Backoff(failures int) time.Duration {
	d := c.BaseDelay
	if d <= 0 {
		d = 3 * time.Second
	}
	for i := 1; i < failures; i++ {
		d *= 2
		if c.MaxBackoff > 0 && d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

// Loop owns the live connection. Every Switch or Close bumps a generation
// counter; a connection attempt that finishes under an older generation
// discards its result.
type Loop struct {
	cfg     Config
	machine *status.Machine
	logger  *zap.Logger

	mu       sync.Mutex
	gen      uint64
	name     string
	cancel   context.CancelFunc
	src      Source
	failures int
	wg       sync.WaitGroup
}

// NewLoop creates an idle loop reporting its state to machine.
func NewLoop(cfg Config, machine *status.Machine, logger *zap.Logger) *Loop {
	return &Loop{cfg: cfg, machine: machine, logger: logging.OrNop(logger)}
}

// Switch closes the current connection, if any, and starts connecting with
// dial. name labels the connection in logs and state reasons.
func (l *Loop) Switch(ctx context.Context, name string, dial Dialer, handle Handler) {
	runCtx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	l.gen++
	gen := l.gen
	old, oldCancel := l.src, l.cancel
	l.src, l.cancel, l.name, l.failures = nil, cancel, name, 0
	l.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	if old != nil {
		_ = old.Close()
	}
	l.wg.Add(1)
	go l.run(runCtx, gen, name, dial, handle)
}

// Close disposes the loop. Pending attempts finish silently.
func (l *Loop) Close() {
	l.mu.Lock()
	l.gen++
	src, cancel := l.src, l.cancel
	l.src, l.cancel = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if src != nil {
		_ = src.Close()
	}
	l.wg.Wait()
	l.transitionAny(status.Closed, "closed")
}

// Name returns the label of the current connection.
func (l *Loop) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

// Failures returns the consecutive failure count of the current connection.
func (l *Loop) Failures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

func (l *Loop) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

// adopt records src as the live connection if gen is still current.
func (l *Loop) adopt(gen uint64, src Source) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen {
		return false
	}
	if src != nil {
		l.src = src
	}
	return true
}

// transition moves the machine only while gen is current.
func (l *Loop) transition(gen uint64, to status.State, reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen {
		return false
	}
	l.transitionLocked(to, reason)
	return true
}

func (l *Loop) transitionAny(to status.State, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitionLocked(to, reason)
}

func (l *Loop) transitionLocked(to status.State, reason string) {
	if l.machine == nil {
		return
	}
	if err := l.machine.TransitionWith(to, reason); err != nil {
		l.logger.Debug("stream state transition rejected", zap.Error(err))
	}
}

func (l *Loop) fail(gen uint64) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen {
		return 0, false
	}
	l.failures++
	l.src = nil
	return l.failures, true
}

func (l *Loop) run(ctx context.Context, gen uint64, name string, dial Dialer, handle Handler) {
	defer l.wg.Done()
	log := l.logger.With(zap.String("target", name))

	for {
		if ctx.Err() != nil || !l.transition(gen, status.Connecting, name) {
			return
		}
		src, err := dial(ctx)
		if !l.adopt(gen, src) {
			if src != nil {
				_ = src.Close()
			}
			return
		}
		if err == nil {
			l.mu.Lock()
			if l.gen == gen {
				l.failures = 0
			}
			l.mu.Unlock()
			if !l.transition(gen, status.Live, name) {
				_ = src.Close()
				return
			}
			log.Info("stream connected")
			err = l.consume(gen, src, handle)
			_ = src.Close()
			if !l.current(gen) {
				return
			}
			if err == nil {
				err = io.EOF
			}
		}

		failures, ok := l.fail(gen)
		if !ok {
			return
		}
		reason := fmt.Sprintf("%s: %v", name, err)
		l.transition(gen, status.Reconnecting, reason)
		if l.cfg.DisconnectAfter > 0 && failures >= l.cfg.DisconnectAfter {
			l.transition(gen, status.Disconnected, reason)
		}
		delay := l.cfg.Backoff(failures)
		log.Warn("stream dropped, retrying",
			zap.Error(err), zap.Int("failures", failures), zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *Loop) consume(gen uint64, src Source, handle Handler) error {
	for {
		data, err := src.Next()
		if !l.current(gen) {
			return nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		handle(data)
	}
}
