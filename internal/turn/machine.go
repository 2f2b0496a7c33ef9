// Package turn sequences the request lifecycle of a play session:
// connect, submit, await, settle.
//
// The machine owns the control gate. Input is accepted only while the
// session is connected with no request outstanding; a submission locks the
// gate before any network work starts and settlement reopens it whether
// the request succeeded or failed, so a failure can never leave the client
// permanently locked. Every submission is stamped with a monotonically
// increasing sequence number; a settlement carrying anything but the
// in-flight sequence is stale and is reported as such so the caller can
// discard its results.
package turn

import (
	"errors"
	"log/slog"
	"sync"
)

// State is the connection/request phase of the session.
type State int

const (
	// Disconnected means no successful health probe yet, or probes began
	// failing after a connection was established.
	Disconnected State = iota

	// ConnectedIdle means the backend is reachable and no request is in
	// flight. The only state that accepts submissions.
	ConnectedIdle

	// AwaitingResponse means a generation request is outstanding.
	AwaitingResponse
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectedIdle:
		return "connected-idle"
	case AwaitingResponse:
		return "awaiting-response"
	default:
		return "unknown"
	}
}

// Errors returned by [Machine.BeginTurn].
var (
	// ErrDisconnected rejects a submission while no connection is up.
	ErrDisconnected = errors.New("turn: not connected to the game master")

	// ErrBusy rejects a submission while another request is in flight.
	ErrBusy = errors.New("turn: a request is already in flight")
)

// Machine tracks session state, turn sequencing, and the lifetime
// counters. Safe for concurrent use. The zero value is a disconnected
// machine ready for use; [NewMachine] is provided for symmetry.
type Machine struct {
	mu            sync.Mutex
	state         State
	seq           uint64 // last issued turn sequence
	active        uint64 // sequence awaiting settlement; 0 when none
	scenes        uint64 // scenes requested, ever
	actions       uint64 // player actions taken, ever
	openingDone   bool   // opening scene triggered for this adventure
	everConnected bool   // a probe has succeeded at least once
}

// NewMachine returns a machine in [Disconnected] with the gate locked.
func NewMachine() *Machine {
	return &Machine{}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Gate reports whether interactive controls accept input right now.
func (m *Machine) Gate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == ConnectedIdle
}

// ProbeSucceeded records a healthy probe result. It returns true only when
// the probe established a connection that was previously down, which is
// the caller's cue to surface a "connected" notice.
func (m *Machine) ProbeSucceeded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.everConnected = true
	if m.state != Disconnected {
		return false
	}
	m.transition(ConnectedIdle)
	return true
}

// ProbeFailed records a failed probe. Startup polling is forgiving: before
// the first successful probe a failure keeps the machine quietly in
// [Disconnected]. After a connection has existed, a failure disconnects,
// even mid-request. Returns true when the state actually changed.
func (m *Machine) ProbeFailed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.everConnected || m.state == Disconnected {
		return false
	}
	m.transition(Disconnected)
	return true
}

// ConsumeOpening claims the one-shot opening-scene trigger. The first call
// per adventure returns true; every later call returns false until
// [Machine.ResetOpening]. Claiming is separate from probing so that a load
// or a new-adventure reset can manage the flag explicitly.
func (m *Machine) ConsumeOpening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openingDone {
		return false
	}
	m.openingDone = true
	return true
}

// MarkOpeningDone latches the opening flag without claiming it, used when
// a loaded save already contains an opening scene.
func (m *Machine) MarkOpeningDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openingDone = true
}

// ResetOpening re-arms the one-shot opening trigger for a new adventure.
// Lifetime counters are deliberately untouched.
func (m *Machine) ResetOpening() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openingDone = false
}

// BeginTurn opens a turn: it locks the gate, stamps the turn with the next
// sequence number, and bumps the counters. isAction marks a player-taken
// action as opposed to a client-initiated scene request such as the
// opening scene.
//
// Returns [ErrDisconnected] or [ErrBusy] when the gate is locked.
func (m *Machine) BeginTurn(isAction bool) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Disconnected:
		return 0, ErrDisconnected
	case AwaitingResponse:
		return 0, ErrBusy
	}

	m.seq++
	m.active = m.seq
	m.scenes++
	if isAction {
		m.actions++
	}
	m.transition(AwaitingResponse)
	return m.seq, nil
}

// Settle closes the turn with the given sequence, success and failure
// alike, reopening the gate when the machine is still awaiting that turn.
// It returns false for a stale sequence, in which case the caller must
// discard the turn's results.
func (m *Machine) Settle(seq uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq == 0 || seq != m.active {
		return false
	}
	m.active = 0
	if m.state == AwaitingResponse {
		m.transition(ConnectedIdle)
	}
	return true
}

// Counters returns the lifetime scene and action counts.
func (m *Machine) Counters() (scenes, actions uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scenes, m.actions
}

// transition switches state. Callers must hold m.mu.
func (m *Machine) transition(to State) {
	if m.state == to {
		return
	}
	slog.Debug("turn state change", "from", m.state, "to", to)
	m.state = to
}
