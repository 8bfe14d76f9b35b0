package engine

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// LifecycleState is a state of the per-request reconciliation state machine.
type LifecycleState string

const (
	StateStart      LifecycleState = "start"
	StateCreating   LifecycleState = "creating"
	StateDeleting   LifecycleState = "deleting"
	StateDeciding   LifecycleState = "deciding"
	StateConverging LifecycleState = "converging"
	StateReporting  LifecycleState = "reporting"
	StateDone       LifecycleState = "done"
	StateFailed     LifecycleState = "failed"
)

// transitions lists the allowed successors of each state. Failed is
// reachable from everywhere and is absorbing.
var transitions = map[LifecycleState][]LifecycleState{
	StateStart:      {StateCreating, StateDeleting, StateDeciding},
	StateDeciding:   {StateCreating, StateConverging},
	StateCreating:   {StateConverging},
	StateDeleting:   {StateConverging, StateReporting},
	StateConverging: {StateReporting},
	StateReporting:  {StateDone},
}

// Lifecycle tracks the state of a single reconciliation.
type Lifecycle struct {
	mu      sync.Mutex
	state   LifecycleState
	history []LifecycleState
	logger  zerolog.Logger
}

// NewLifecycle returns a lifecycle in the start state.
func NewLifecycle(logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		state:   StateStart,
		history: []LifecycleState{StateStart},
		logger:  logger,
	}
}

// State returns the current state.
func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// History returns every state visited, in order.
func (l *Lifecycle) History() []LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LifecycleState, len(l.history))
	copy(out, l.history)
	return out
}

// Transition moves to the given state if the move is allowed.
func (l *Lifecycle) Transition(to LifecycleState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateFailed {
		return fmt.Errorf("lifecycle already failed, cannot move to %s", to)
	}
	if to != StateFailed && !allowed(l.state, to) {
		return NewInternalError(fmt.Sprintf("invalid lifecycle transition %s -> %s", l.state, to), nil)
	}

	l.logger.Debug().
		Str("from", string(l.state)).
		Str("to", string(to)).
		Msg("lifecycle transition")

	l.state = to
	l.history = append(l.history, to)
	return nil
}

// Fail moves to the absorbing failed state.
func (l *Lifecycle) Fail() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateFailed {
		return
	}
	l.state = StateFailed
	l.history = append(l.history, StateFailed)
}

func allowed(from, to LifecycleState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
