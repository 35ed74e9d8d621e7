package outbox

// Status is the lifecycle state of a Queue.
type Status int32

const (
	StatusInactive Status = iota
	StatusActive
	StatusStopping
	StatusStopped
	StatusForceStopping
	StatusForceStopped
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusForceStopping:
		return "force_stopping"
	case StatusForceStopped:
		return "force_stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the worker has exited.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusForceStopped
}
