package supervisor

// State is the lifecycle phase of a Supervisor.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateServing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateServing:
		return "serving"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
