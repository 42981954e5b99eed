// Package station is the control-plane side of a compass agent: lifecycle
// state, liveness heartbeats, and resource metrics reported to the
// platform station.
package station

import (
	"fmt"
	"time"
)

// State is the agent's lifecycle state.
type State string

const (
	StateNew         State = "NEW"
	StateProvisioned State = "PROVISIONED"
	StateActive      State = "ACTIVE"
	StateDraining    State = "DRAINING"
	StateTerminated  State = "TERMINATED"
	StateKilled      State = "KILLED"
)

// validTransitions is the lifecycle state machine. DRAINING may return to
// ACTIVE; KILLED is the error exit from ACTIVE.
var validTransitions = map[State][]State{
	StateNew:         {StateProvisioned},
	StateProvisioned: {StateActive},
	StateActive:      {StateDraining, StateKilled},
	StateDraining:    {StateActive, StateTerminated},
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned for a move the state machine forbids.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid lifecycle transition %s -> %s", e.From, e.To)
}

// Mode is the heartbeat cadence class.
type Mode string

const (
	ModeEmergency Mode = "EMERGENCY"
	ModeIdle      Mode = "IDLE"
	ModeSleep     Mode = "SLEEP"
)

// Interval returns the heartbeat period for the mode.
func (m Mode) Interval() time.Duration {
	switch m {
	case ModeEmergency:
		return 5 * time.Second
	case ModeSleep:
		return 900 * time.Second
	default:
		return 30 * time.Second
	}
}
