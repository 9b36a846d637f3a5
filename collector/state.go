package collector

import (
	"errors"
	"fmt"
)

// EpisodeState is a state of the episode state machine.
type EpisodeState string

const (
	StateInit      EpisodeState = "INIT"
	StateConnected EpisodeState = "CONNECTED"
	StateRunning   EpisodeState = "RUNNING"
	StateResetting EpisodeState = "RESETTING"
	StateDone      EpisodeState = "DONE"
	StateFailed    EpisodeState = "FAILED"
)

// ErrInvalidTransition is returned for a transition missing from the table.
var ErrInvalidTransition = errors.New("collector: invalid episode state transition")

var allowedTransitions = map[EpisodeState]map[EpisodeState]bool{
	StateInit:      {StateConnected: true, StateFailed: true, StateDone: true},
	StateConnected: {StateRunning: true, StateFailed: true, StateDone: true},
	StateRunning:   {StateResetting: true, StateDone: true, StateFailed: true},
	StateResetting: {StateRunning: true, StateFailed: true},
	StateDone:      {},
	StateFailed:    {},
}

// ValidateTransition returns ErrInvalidTransition unless from → to is allowed.
func ValidateTransition(from, to EpisodeState) error {
	next, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, from)
	}
	if !next[to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Terminal reports whether s ends the episode.
func (s EpisodeState) Terminal() bool {
	return s == StateDone || s == StateFailed
}
