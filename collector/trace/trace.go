package trace

// TraceLevel controls the verbosity of episode tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelResets captures re-plans only.
	TraceLevelResets TraceLevel = "resets"
	// TraceLevelAll captures re-plans and every state transition.
	TraceLevelAll TraceLevel = "all"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelResets: true,
	TraceLevelAll:    true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// EpisodeTrace collects event records during one episode.
type EpisodeTrace struct {
	Level       TraceLevel
	Resets      []ResetRecord
	Transitions []TransitionRecord
}

// NewEpisodeTrace creates an EpisodeTrace ready for recording.
func NewEpisodeTrace(level TraceLevel) *EpisodeTrace {
	return &EpisodeTrace{
		Level:       level,
		Resets:      make([]ResetRecord, 0),
		Transitions: make([]TransitionRecord, 0),
	}
}

// RecordReset appends a reset record unless tracing is off.
func (et *EpisodeTrace) RecordReset(record ResetRecord) {
	if et == nil || et.Level == TraceLevelNone || et.Level == "" {
		return
	}
	et.Resets = append(et.Resets, record)
}

// RecordTransition appends a transition record at TraceLevelAll.
func (et *EpisodeTrace) RecordTransition(record TransitionRecord) {
	if et == nil || et.Level != TraceLevelAll {
		return
	}
	et.Transitions = append(et.Transitions, record)
}

// CountResets returns the number of recorded resets with the given reason.
func (et *EpisodeTrace) CountResets(reason ResetReason) int {
	if et == nil {
		return 0
	}
	n := 0
	for _, r := range et.Resets {
		if r.Reason == reason {
			n++
		}
	}
	return n
}
