// Package notify publishes job lifecycle events so that operators can follow
// a long collection run from outside the process.
package notify

import (
	"context"
	"time"
)

// Event kinds.
const (
	EventStarted   = "started"
	EventSucceeded = "succeeded"
	EventFailed    = "failed"
	EventCanceled  = "canceled"
)

// Event describes one job state change.
type Event struct {
	RunID          string    `json:"run_id"`
	Kind           string    `json:"kind"`
	Job            string    `json:"job"`
	Town           string    `json:"town"`
	Weather        string    `json:"weather"`
	Behavior       string    `json:"behavior"`
	NavigationType string    `json:"navigation_type"`
	Steps          int       `json:"steps,omitempty"`
	Records        int       `json:"records,omitempty"`
	Error          string    `json:"error,omitempty"`
	Time           time.Time `json:"time"`
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
