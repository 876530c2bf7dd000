package pipeline

// State is the pipeline lifecycle state
type State int32

const (
	Idle State = iota
	AwaitingRegion
	Running
	Processing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingRegion:
		return "awaiting_region"
	case Running:
		return "running"
	case Processing:
		return "processing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether the capture loop is armed.
func (s State) Active() bool {
	return s == Running || s == Processing
}
