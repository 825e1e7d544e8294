package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/showroom/internal/bus"
)

// State is the lifecycle state of the live stream connection.
type State string

const (
	Idle         State = "IDLE"
	Connecting   State = "CONNECTING"
	Live         State = "LIVE"
	Reconnecting State = "RECONNECTING"
	Disconnected State = "DISCONNECTED"
	Closed       State = "CLOSED"
)

var validTransitions = map[State][]State{
	Idle:         {Connecting, Closed},
	Connecting:   {Live, Reconnecting, Disconnected, Closed},
	Live:         {Connecting, Reconnecting, Closed},
	Reconnecting: {Connecting, Disconnected, Closed},
	Disconnected: {Connecting, Closed},
	Closed:       {Connecting, Idle},
}

// Machine tracks and enforces stream state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition moves to a new state. Transitioning to the current state is a
// no-op; anything outside the transition table is an error.
func (m *Machine) Transition(to State) error {
	return m.TransitionWith(to, "")
}

// TransitionWith is Transition with a human readable reason attached to the
// published change.
func (m *Machine) TransitionWith(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.bus.Publish(bus.Event{
		Kind:      bus.StreamStatusChanged,
		Timestamp: m.since,
		Payload: StatusChange{
			From:   from,
			To:     to,
			Reason: reason,
		},
	})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From   State  `json:"from"`
	To     State  `json:"to"`
	Reason string `json:"reason,omitempty"`
}
