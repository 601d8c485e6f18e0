package flasher

// State is a stage of a programming run.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateErasing
	StateWriting
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateErasing:
		return "erasing"
	case StateWriting:
		return "writing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Next returns the state following s after a stage finished with ok.
// Terminal states stay where they are.
func Next(s State, ok bool) State {
	switch s {
	case StateDone, StateFailed:
		return s
	case StateIdle:
		return StateConnecting
	}
	if !ok {
		return StateFailed
	}
	switch s {
	case StateConnecting:
		return StateErasing
	case StateErasing:
		return StateWriting
	case StateWriting:
		return StateFinalizing
	case StateFinalizing:
		return StateDone
	}
	return StateFailed
}
