// state.go implements the per-poll state machine.
//
// Every GetStatus call runs a fresh cycle:
//
//	Idle → Connecting → ContextSelected → Discovering → QueryingTunnel* → Assembling → Done
//
// with any state able to move to Failed. The session is always closed before
// a cycle enters Done or Failed. Transitions are recorded on the cycle for
// logging and passed to registered callbacks; nothing survives the cycle.

package vpnstatus

import (
	"encoding/json"
	"time"
)

// CycleState is the position of one poll in the protocol sequence.
type CycleState int

const (
	StateIdle CycleState = iota
	StateConnecting
	StateContextSelected
	StateDiscovering
	StateQueryingTunnel
	StateAssembling
	StateDone
	StateFailed
)

// String returns the human-readable name of the state.
func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateContextSelected:
		return "context_selected"
	case StateDiscovering:
		return "discovering"
	case StateQueryingTunnel:
		return "querying_tunnel"
	case StateAssembling:
		return "assembling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name.
func (s CycleState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// StateTransition records a single state change within a cycle.
type StateTransition struct {
	From      CycleState `json:"from"`
	To        CycleState `json:"to"`
	Timestamp time.Time  `json:"timestamp"`
	Reason    string     `json:"reason"`

	// Err is set on the transition into StateFailed.
	Err error `json:"-"`
}

// StateChangeCallback is called on every transition of every cycle.
// Callbacks run synchronously on the polling goroutine; long-running handlers
// should spawn goroutines.
type StateChangeCallback func(cycleID string, t StateTransition)

// cycle tracks one poll's state and transition history.
type cycle struct {
	id          string
	current     CycleState
	transitions []StateTransition
	callbacks   []StateChangeCallback
	now         func() time.Time
}

func newCycle(id string, now func() time.Time, callbacks []StateChangeCallback) *cycle {
	return &cycle{
		id:        id,
		current:   StateIdle,
		callbacks: callbacks,
		now:       now,
	}
}

// setState moves the cycle to state. Re-entering the current state is recorded
// too, since QueryingTunnel repeats once per tunnel.
func (c *cycle) setState(state CycleState, reason string) {
	c.transition(state, reason, nil)
}

// fail moves the cycle to StateFailed with err as the reason.
func (c *cycle) fail(err error) {
	c.transition(StateFailed, err.Error(), err)
}

func (c *cycle) transition(state CycleState, reason string, err error) {
	t := StateTransition{
		From:      c.current,
		To:        state,
		Timestamp: c.now(),
		Reason:    reason,
		Err:       err,
	}
	c.current = state
	c.transitions = append(c.transitions, t)
	for _, cb := range c.callbacks {
		cb(c.id, t)
	}
}

// elapsed returns the time since the cycle left Idle.
func (c *cycle) elapsed() time.Duration {
	if len(c.transitions) == 0 {
		return 0
	}
	return c.now().Sub(c.transitions[0].Timestamp)
}
