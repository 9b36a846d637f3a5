// Package trace provides episode event recording for post-run analysis.
// This package has no dependencies on collector/; it stores pure data types.
package trace

// ResetReason names why an episode re-planned.
type ResetReason string

const (
	// ResetCollision marks a re-plan after a collision.
	ResetCollision ResetReason = "collision"
	// ResetRouteCompleted marks a re-plan after the agent reached its destination.
	ResetRouteCompleted ResetReason = "route_completed"
)

// ResetRecord captures a single re-plan of an episode.
type ResetRecord struct {
	Step   int
	Reason ResetReason
	// Destination is the new goal as [x, y, z].
	Destination [3]float64
}

// TransitionRecord captures one state machine transition.
type TransitionRecord struct {
	Step int
	From string
	To   string
}
