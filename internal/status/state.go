package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pedrozc90/wabridge/internal/bus"
)

// State represents a session connection state.
type State string

const (
	Disconnected    State = "DISCONNECTED"
	Connecting      State = "CONNECTING"
	AwaitingPairing State = "AWAITING_PAIRING"
	Connected       State = "CONNECTED"
	Error           State = "ERROR"
)

// validTransitions defines allowed state transitions. Disconnected is
// re-enterable: a session can always be restarted from it, and any
// non-disconnected state can be torn down back into it.
var validTransitions = map[State][]State{
	Disconnected:    {Connecting, Error},
	Connecting:      {AwaitingPairing, Connected, Disconnected, Error},
	AwaitingPairing: {Connected, Disconnected, Error},
	Connected:       {Disconnected, Error},
	Error:           {Connecting, Disconnected},
}

// Active reports whether s already has a connection attempt in flight,
// i.e. a further connect request would duplicate the underlying
// transport connection.
func (s State) Active() bool {
	return s == Connecting || s == AwaitingPairing || s == Connected
}

// Machine tracks and enforces session state transitions. Every
// successful transition is published on the bus as a session.status
// event.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error and
// leaves the state untouched if the transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Now(bus.KindStatus, StatusChange{From: from, To: to}))
	}
	return nil
}

// StatusChange is the payload for session.status events.
type StatusChange struct {
	From State
	To   State
}
