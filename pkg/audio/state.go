package audio

// PlayerState represents the current state of the playback engine.
type PlayerState int

const (
	// StateIdle indicates nothing is playing and the queue is empty.
	StateIdle PlayerState = iota
	// StatePlaying indicates a player subprocess is running.
	StatePlaying
	// StatePaused indicates playback is reported as paused. The pause is
	// advisory only: the underlying subprocess keeps running.
	StatePaused
	// StateStopping indicates Stop was requested and the engine is
	// terminating the active subprocess and draining the queue.
	StateStopping
)

// String returns the string representation of the state.
func (s PlayerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// IsActive returns true if the engine is playing or reported paused.
func (s PlayerState) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}

// CanPause returns true if Pause is meaningful in this state.
func (s PlayerState) CanPause() bool {
	return s == StatePlaying
}

// CanResume returns true if Play will flip the reported state back.
func (s PlayerState) CanResume() bool {
	return s == StatePaused
}

// validTransitions describes the legal state changes of the engine.
var validTransitions = map[PlayerState][]PlayerState{
	StateIdle:     {StatePlaying, StateStopping},
	StatePlaying:  {StateIdle, StatePaused, StateStopping},
	StatePaused:   {StatePlaying, StateIdle, StateStopping},
	StateStopping: {StateIdle},
}

// canTransition reports whether moving from one state to another is legal.
func canTransition(from, to PlayerState) bool {
	if from == to {
		return true
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
